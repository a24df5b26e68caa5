package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFileParsesControllerSection(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "controller.yaml")

	content := `environment: staging
controller:
  state_dir: /var/lib/sage/controller
  socket_path: /run/sage/agent.sock
  agent_executable: /usr/local/bin/edge-agent
  config_dir: /etc/sage
  update_source_url: https://updates.example.com/edge-agent
  trust_root_refresh: 1h
  poll_interval: 10s
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	require.NotNil(t, cfg.Controller)
	assert.Equal(t, "/var/lib/sage/controller", cfg.Controller.StateDir)
	assert.Equal(t, "/run/sage/agent.sock", cfg.Controller.SocketPath)
	assert.Equal(t, time.Hour, cfg.Controller.TrustRootRefresh)
	assert.Equal(t, 10*time.Second, cfg.Controller.PollInterval)
	assert.Equal(t, 8090, cfg.Controller.HealthPort, "unset health port falls back to the default")
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromFileAppliesDefaultsWhenSectionsOmitted(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "minimal.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("agent:\n  socket_path: /run/sage/agent.sock\n"), 0644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	require.NotNil(t, cfg.Agent)
	assert.Equal(t, "/run/sage/agent.sock", cfg.Agent.SocketPath)
	assert.Nil(t, cfg.Controller)
}

func TestLoadFromFileMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
