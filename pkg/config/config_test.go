package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walletcache/internal/filter"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "walletcache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	config, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), config)
	assert.Empty(t, config.Path)
	assert.NoError(t, config.Validate())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
session:
  id: wallet-42
http:
  port: 8081
stores:
  transactions:
    max_records: 500
    admission_filter:
      enabled: true
      hash_function: murmur3
      false_positive_rate: 0.02
response_cache:
  ttl: 5s
monitor:
  poll_interval: 2s
  warning: 64MB
  critical: 96MB
  emergency: 128MB
  emergency_grace: 10s
`)

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, config.Path)
	assert.Equal(t, "wallet-42", config.Session.ID)
	assert.Equal(t, 8081, config.HTTP.Port)
	assert.Equal(t, "127.0.0.1:8081", config.Addr())
	assert.Equal(t, 5*time.Second, config.ResponseCache.TTL)
	// untouched sections keep defaults
	assert.Equal(t, 256, config.ResponseCache.Capacity)
	assert.Equal(t, 10000, config.Stores.Users.MaxRecords)

	monitorConfig, err := config.ToMonitorConfig()
	require.NoError(t, err)
	assert.Equal(t, uint64(64_000_000), monitorConfig.WarningBytes)
	assert.Equal(t, uint64(128_000_000), monitorConfig.EmergencyBytes)
	assert.Equal(t, 2*time.Second, monitorConfig.PollInterval)
	assert.Equal(t, 10*time.Second, monitorConfig.EmergencyGrace)

	sessionConfig, err := config.ToSessionConfig()
	require.NoError(t, err)
	assert.Equal(t, "wallet-42", sessionConfig.ID)
	assert.Equal(t, 500, sessionConfig.Transactions.MaxRecords)
	require.NotNil(t, sessionConfig.Transactions.AdmissionFilter)
	assert.Equal(t, filter.HashMurmur3, sessionConfig.Transactions.AdmissionFilter.HashFunction)
	assert.Equal(t, uint64(100000), sessionConfig.Transactions.AdmissionFilter.ExpectedItems)
	assert.Nil(t, sessionConfig.Users.AdmissionFilter)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "session: [unterminated"},
		{"empty session id", "session:\n  id: \"\"\n"},
		{"port out of range", "http:\n  port: 70000\n"},
		{"unordered thresholds", "monitor:\n  warning: 1GB\n  critical: 512MB\n"},
		{"bad size", "monitor:\n  warning: lots\n"},
		{"bad hash", "stores:\n  users:\n    admission_filter:\n      enabled: true\n      hash_function: sha1\n      false_positive_rate: 0.01\n"},
		{"bad level", "logging:\n  level: chatty\n"},
		{"negative records", "stores:\n  users:\n    max_records: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestToLogConfig(t *testing.T) {
	config := Default()
	config.Logging.Level = "debug"
	logConfig := config.ToLogConfig()
	assert.Equal(t, "debug", logConfig.Level)
	assert.Equal(t, "100MB", logConfig.MaxFileSize)
}
