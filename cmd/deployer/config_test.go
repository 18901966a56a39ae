package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8545", cfg.Network.Endpoint)
	assert.Equal(t, uint64(20_000_000_000), cfg.Network.GasPrice)
	assert.Equal(t, 30*time.Second, cfg.Network.Timeout)
	assert.Equal(t, time.Second, cfg.Network.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.Network.ConfirmationTimeout)
	assert.Equal(t, "./output/contracts/contracts.json", cfg.Deployer.ContractInputPath)
	assert.True(t, cfg.Deployer.CreateGenesisUniverse)
	assert.False(t, cfg.Deployer.IsProduction)
	assert.Equal(t, "libraries/", cfg.Deployer.LibraryPrefix)
	assert.Equal(t, 8, cfg.Deployer.MaxConcurrency)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "deployer", cfg.Tracing.ServiceName)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
network:
  endpoint: "http://node:8545"
  network_name: "rinkeby"
  from: "0x00000000000000000000000000000000000000d0"
  confirmation_timeout: 90s

deployer:
  controller_address: "0x00000000000000000000000000000000000000c1"
  is_production: true
  create_genesis_universe: false
  provenance:
    override: "0123456789abcdef0123456789abcdef01234567"

log:
  level: "debug"
  format: "text"

journal:
  dsn: "/tmp/journal.db"
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile, nil)
	require.NoError(t, err)

	assert.Equal(t, "http://node:8545", cfg.Network.Endpoint)
	assert.Equal(t, "rinkeby", cfg.Network.NetworkName)
	assert.Equal(t, 90*time.Second, cfg.Network.ConfirmationTimeout)
	assert.Equal(t, "0x00000000000000000000000000000000000000c1", cfg.Deployer.ControllerAddress)
	assert.True(t, cfg.Deployer.IsProduction)
	assert.False(t, cfg.Deployer.CreateGenesisUniverse)
	assert.Equal(t, "0123456789abcdef0123456789abcdef01234567", cfg.Deployer.Provenance.Override)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/journal.db", cfg.Journal.DSN)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("DEPLOYER_NETWORK_ENDPOINT", "http://env:8545")
	t.Setenv("DEPLOYER_DEPLOYER_USE_NORMAL_TIME", "true")
	t.Setenv("DEPLOYER_JOURNAL_ENABLED", "false")
	t.Setenv("DEPLOYER_LOG_LEVEL", "warn")

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, "http://env:8545", cfg.Network.Endpoint)
	assert.True(t, cfg.Deployer.UseNormalTime)
	assert.False(t, cfg.Journal.Enabled)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfig_FlagsOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEPLOYER_NETWORK_ENDPOINT", "http://env:8545")

	cmd := newDeployCmd(new(string))
	require.NoError(t, cmd.ParseFlags([]string{"--endpoint", "http://flag:8545", "--production"}))

	cfg, err := LoadConfig("", bindFlags(cmd, deployFlags))
	require.NoError(t, err)

	assert.Equal(t, "http://flag:8545", cfg.Network.Endpoint)
	assert.True(t, cfg.Deployer.IsProduction)
	assert.True(t, cfg.Deployer.CreateGenesisUniverse)
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/config.yaml", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8545", cfg.Network.Endpoint)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile, nil)
	assert.Error(t, err)
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		name     string
		log      LogConfig
		debugOut bool
		contains string
	}{
		{"json info", LogConfig{Level: "info", Format: "json"}, false, `"msg":"hello"`},
		{"text debug", LogConfig{Level: "debug", Format: "text"}, true, "msg=hello"},
		{"invalid level falls back to info", LogConfig{Level: "loud", Format: "json"}, false, `"level":"INFO"`},
		{"warning alias", LogConfig{Level: "warning", Format: "text"}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := SetupLogger(&Config{Log: tt.log}, &buf)
			logger.Debug("debug line")
			logger.Info("hello")

			assert.Equal(t, tt.debugOut, bytes.Contains(buf.Bytes(), []byte("debug line")))
			assert.Contains(t, buf.String(), tt.contains)
		})
	}
}

// =============================================================================
// Test Helpers
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"DEPLOYER_NETWORK_ENDPOINT",
		"DEPLOYER_NETWORK_FROM",
		"DEPLOYER_DEPLOYER_USE_NORMAL_TIME",
		"DEPLOYER_DEPLOYER_CONTROLLER_ADDRESS",
		"DEPLOYER_JOURNAL_ENABLED",
		"DEPLOYER_JOURNAL_DSN",
		"DEPLOYER_LOG_LEVEL",
		"DEPLOYER_LOG_FORMAT",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}
