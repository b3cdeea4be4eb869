// Package config handles loading and validating gateway configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level configuration for the gateway.
type Config struct {
	Server    ServerConfig              `koanf:"server"`
	Router    RouterConfig              `koanf:"router"`
	Providers map[string]ProviderConfig `koanf:"providers"`
	Approval  ApprovalConfig            `koanf:"approval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// RouterConfig holds the dual-mode router's startup settings.
type RouterConfig struct {
	// Mode is one of "direct", "proxy", "auto".
	Mode string `koanf:"mode"`

	ProxyBaseURL            string        `koanf:"proxy_base_url"`
	ProxyAPIKey             string        `koanf:"proxy_api_key"`
	ProxyHealthCheckTimeout time.Duration `koanf:"proxy_health_check_timeout"`
}

// ProviderConfig holds the settings for a single LLM provider: both the
// adapter's connection details and the registry's static scoring
// config.
type ProviderConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`

	Priority           int           `koanf:"priority"`
	Capabilities       []string      `koanf:"capabilities"`
	RateLimitPerMinute int           `koanf:"rate_limit_per_minute"`
	Timeout            time.Duration `koanf:"timeout"`
	Fallbacks          []string      `koanf:"fallbacks"`
}

// ApprovalConfig holds the approval engine's statically authored rule
// set.
type ApprovalConfig struct {
	Rules []ApprovalRuleConfig `koanf:"rules"`
}

// ApprovalRuleConfig mirrors approval.ApprovalRule in a YAML-friendly
// shape; cmd/gateway converts it field by field into the real
// tagged-union types.
type ApprovalRuleConfig struct {
	Name string `koanf:"name"`

	PatternKind string `koanf:"pattern_kind"` // match_all, match_type, match_file_pat, match_cmd_pat
	ActionKind  string `koanf:"action_kind"`  // for match_type
	Glob        string `koanf:"glob"`         // for match_file_pat
	CmdSubstr   string `koanf:"cmd_substr"`   // for match_cmd_pat

	AutoApprove bool                  `koanf:"auto_approve"`
	Conditions  []RuleConditionConfig `koanf:"conditions"`
}

// RuleConditionConfig mirrors approval.RuleCondition.
type RuleConditionConfig struct {
	Kind      string `koanf:"kind"` // project_scope, session_prop, time_window
	Scope     string `koanf:"scope"`
	StartHour int    `koanf:"start_hour"`
	EndHour   int    `koanf:"end_hour"`
	Key       string `koanf:"key"`
	Value     string `koanf:"value"`
}

// envPrefix is the environment variable prefix koanf overrides fall
// under, e.g. GATEWAY_SERVER_PORT -> server.port.
const envPrefix = "GATEWAY_"

// Load reads configuration from a YAML file, layers environment
// variable overrides on top, and returns a fully populated Config.
func Load(path string) (*Config, error) {
	// Load .env file into the process environment (ignored if not present).
	_ = godotenv.Load()

	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	// Layer environment variables on top. Any env var starting with
	// "GATEWAY_" can override a config value:
	//   GATEWAY_SERVER_PORT -> server.port
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, envPrefix)),
			"_", ".",
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	expandSecret(&cfg.Router.ProxyAPIKey)
	for name, p := range cfg.Providers {
		expandSecret(&p.APIKey)
		cfg.Providers[name] = p
	}

	return &cfg, nil
}

// expandSecret replaces a "${VAR_NAME}" value in place with the value
// of the named environment variable.
func expandSecret(value *string) {
	if strings.HasPrefix(*value, "${") && strings.HasSuffix(*value, "}") {
		envVar := (*value)[2 : len(*value)-1]
		*value = os.Getenv(envVar)
	}
}
