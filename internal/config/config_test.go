package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  port: 9090
  read_timeout: 10s
  write_timeout: 60s

router:
  mode: auto
  proxy_base_url: https://proxy.example.com
  proxy_health_check_timeout: 5s

providers:
  claude:
    api_key: ${TEST_API_KEY}
    base_url: https://api.anthropic.com
    model: claude-3-5-sonnet
    priority: 9
    capabilities:
      - chat_completion
      - streaming
    rate_limit_per_minute: 60
    timeout: 30s
    fallbacks:
      - openai

approval:
  rules:
    - name: deny_dangerous_commands
      pattern_kind: match_cmd_pat
      cmd_substr: "rm -rf"
      auto_approve: false
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	t.Setenv("TEST_API_KEY", "my-secret-key")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)

	assert.Equal(t, "auto", cfg.Router.Mode)
	assert.Equal(t, "https://proxy.example.com", cfg.Router.ProxyBaseURL)
	assert.Equal(t, 5*time.Second, cfg.Router.ProxyHealthCheckTimeout)

	claude, ok := cfg.Providers["claude"]
	assert.True(t, ok, "claude provider should exist")
	assert.Equal(t, "my-secret-key", claude.APIKey)
	assert.Equal(t, "https://api.anthropic.com", claude.BaseURL)
	assert.Equal(t, 9, claude.Priority)
	assert.Equal(t, []string{"chat_completion", "streaming"}, claude.Capabilities)
	assert.Equal(t, []string{"openai"}, claude.Fallbacks)

	require.Len(t, cfg.Approval.Rules, 1)
	assert.Equal(t, "deny_dangerous_commands", cfg.Approval.Rules[0].Name)
	assert.Equal(t, "rm -rf", cfg.Approval.Rules[0].CmdSubstr)
}

func TestLoadEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  port: 8080
  read_timeout: 30s
  write_timeout: 120s
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	// GATEWAY_SERVER_PORT overrides server.port from 8080 to 3000.
	t.Setenv("GATEWAY_SERVER_PORT", "3000")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
}
