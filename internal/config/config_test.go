// ABOUTME: Tests for configuration loading and validation
// ABOUTME: Covers YAML, TOML, env expansion, defaults, and error cases

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", `
server:
  http_addr: "localhost:8080"

database:
  path: ":memory:"

auth:
  jwt_secret: "secret"
  api_keys:
    - "sk-test"

completions:
  default_model: "openwire-dev"
  default_agent: "echo"
  agent_models:
    gpt-4: "researcher"
  max_body_bytes: 65536

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost:8080", cfg.Server.HTTPAddr)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.Equal(t, "secret", cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"sk-test"}, cfg.Auth.APIKeys)
	assert.Equal(t, "openwire-dev", cfg.Completions.DefaultModel)
	assert.Equal(t, "researcher", cfg.Completions.AgentModels["gpt-4"])
	assert.Equal(t, int64(65536), cfg.Completions.MaxBodyBytes)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "gateway.toml", `
[server]
http_addr = "localhost:9090"

[database]
path = ":memory:"

[completions]
default_agent = "echo"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost:9090", cfg.Server.HTTPAddr)
	assert.Equal(t, "echo", cfg.Completions.DefaultAgent)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("OPENWIRE_TEST_SECRET", "from-env")

	path := writeConfig(t, "gateway.yaml", `
server:
  http_addr: "localhost:8080"
database:
  path: ":memory:"
auth:
  jwt_secret: "${OPENWIRE_TEST_SECRET}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", `
server:
  http_addr: "localhost:8080"
database:
  path: ":memory:"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openwire", cfg.Completions.DefaultModel)
	assert.Equal(t, "default", cfg.Completions.DefaultAgent)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateMissingHTTPAddr(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", `
database:
  path: ":memory:"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.http_addr is required")
}

func TestValidateTailscaleNeedsHostname(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", `
tailscale:
  enabled: true
database:
  path: ":memory:"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tailscale.hostname is required")
}

func TestValidateMissingDatabasePath(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", `
server:
  http_addr: "localhost:8080"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.path is required")
}
