// Command gateway runs the AI provider gateway: it loads configuration,
// registers provider adapters, resolves the dual-mode router, and serves
// the HTTP and WebSocket interfaces described in §6.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/aiprovidergw/gateway/internal/approval"
	"github.com/aiprovidergw/gateway/internal/config"
	"github.com/aiprovidergw/gateway/internal/provider"
	"github.com/aiprovidergw/gateway/internal/registry"
	"github.com/aiprovidergw/gateway/internal/router"
	"github.com/aiprovidergw/gateway/internal/server"
	"github.com/aiprovidergw/gateway/internal/wsgateway"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the gateway config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("gateway: loading config: %v", err)
	}

	reg := registry.New()
	registerProviders(reg, cfg)

	var proxyAdapter provider.Provider
	if p, ok := reg.Get(provider.Proxy); ok {
		proxyAdapter = p
	}

	startupMode := router.Mode(cfg.Router.Mode)
	if startupMode == "" {
		startupMode = router.Direct
	}

	gw := router.New(reg, proxyAdapter, startupMode)
	if resolved := gw.ResolveAuto(context.Background()); startupMode == router.Auto {
		log.Printf("gateway: auto mode resolved to %s", resolved)
	}

	ws := wsgateway.New()

	eng := approval.NewEngine(approval.NewChannelPrompter())
	defer eng.Close()
	for _, rule := range rulesFromConfig(cfg.Approval.Rules) {
		eng.AddRule(rule)
	}

	srv := server.New(cfg, gw, reg, ws)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Printf("gateway: listening on %s (mode=%s)", httpServer.Addr, gw.Mode())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("gateway: server error: %v", err)
	}
}

// registerProviders builds and registers one adapter per configured
// provider name. The DeepSeek entry reuses the OpenAI adapter — DeepSeek's
// chat API is OpenAI-wire-compatible, so NewOpenAIProvider(provider.DeepSeek, ...)
// is a full, faithful adapter rather than a stub.
func registerProviders(reg *registry.Registry, cfg *config.Config) {
	client := &http.Client{Timeout: 60 * time.Second}

	for name, pcfg := range cfg.Providers {
		id, ok := provider.ParseID(name)
		if !ok {
			log.Printf("gateway: skipping unknown provider %q in config", name)
			continue
		}

		adapter := buildAdapter(id, pcfg, client)
		if adapter == nil {
			log.Printf("gateway: no adapter builder for provider %q, skipping", name)
			continue
		}

		reg.Register(adapter, registry.Config{
			Priority:           pcfg.Priority,
			Capabilities:       capabilitySet(pcfg.Capabilities),
			RateLimitPerMinute: pcfg.RateLimitPerMinute,
			Timeout:            pcfg.Timeout,
			Fallbacks:          fallbackIDs(pcfg.Fallbacks),
		})
	}
}

func buildAdapter(id provider.ID, pcfg config.ProviderConfig, client *http.Client) provider.Provider {
	switch id {
	case provider.OpenAI:
		return provider.NewOpenAIProvider(provider.OpenAI, pcfg.APIKey, pcfg.BaseURL, pcfg.Model, client)
	case provider.DeepSeek:
		return provider.NewOpenAIProvider(provider.DeepSeek, pcfg.APIKey, pcfg.BaseURL, pcfg.Model, client)
	case provider.Claude:
		return provider.NewAnthropicProvider(pcfg.APIKey, pcfg.BaseURL, pcfg.Model, client)
	case provider.LocalDaemon:
		return provider.NewLocalDaemonProvider(pcfg.BaseURL, pcfg.Model, client)
	case provider.Proxy:
		return provider.NewProxyProvider(pcfg.BaseURL, pcfg.APIKey, pcfg.Model, client)
	case provider.Copilot:
		oauthCfg := oauth2.Config{ClientID: pcfg.APIKey}
		adapter := provider.NewCopilotProvider(oauthCfg, pcfg.BaseURL, pcfg.Model, client)
		if pcfg.APIKey != "" {
			adapter.SeedToken(&oauth2.Token{AccessToken: pcfg.APIKey})
		}
		return adapter
	default:
		return nil
	}
}

func capabilitySet(names []string) map[provider.Capability]bool {
	set := make(map[provider.Capability]bool, len(names))
	for _, n := range names {
		set[provider.Capability(n)] = true
	}
	return set
}

func fallbackIDs(names []string) []provider.ID {
	ids := make([]provider.ID, 0, len(names))
	for _, n := range names {
		if id, ok := provider.ParseID(n); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// rulesFromConfig converts the YAML-friendly ApprovalRuleConfig shape into
// the approval package's tagged-union ApprovalRule.
func rulesFromConfig(rules []config.ApprovalRuleConfig) []approval.ApprovalRule {
	out := make([]approval.ApprovalRule, 0, len(rules))
	for _, rc := range rules {
		out = append(out, approval.ApprovalRule{
			Name: rc.Name,
			ActionPattern: approval.ActionPattern{
				Kind:       approval.PatternKind(rc.PatternKind),
				ActionKind: approval.ActionKind(rc.ActionKind),
				Glob:       rc.Glob,
				CmdSubstr:  rc.CmdSubstr,
			},
			AutoApprove: rc.AutoApprove,
			Conditions:  conditionsFromConfig(rc.Conditions),
		})
	}
	return out
}

func conditionsFromConfig(conditions []config.RuleConditionConfig) []approval.RuleCondition {
	out := make([]approval.RuleCondition, 0, len(conditions))
	for _, c := range conditions {
		out = append(out, approval.RuleCondition{
			Kind:      approval.ConditionKind(c.Kind),
			Scope:     c.Scope,
			StartHour: c.StartHour,
			EndHour:   c.EndHour,
			Key:       c.Key,
			Value:     c.Value,
		})
	}
	return out
}
