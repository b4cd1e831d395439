package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "us-east-1", cfg.AWS.Region)
	assert.Equal(t, 5, cfg.AWS.AdminMaxAttempts, "the admin client carries a higher retry budget")
	assert.False(t, cfg.SSO.SupportNestedOU)
	assert.Equal(t, int32(20), cfg.SSO.PageSize)
	assert.Equal(t, 10, cfg.Queue.Partitions)

	assert.Equal(t, 5*time.Second, cfg.Waiter.InitialDelay)
	assert.Equal(t, 60*time.Second, cfg.Waiter.CreateInterval)
	assert.Equal(t, 2*time.Second, cfg.Waiter.DeleteInterval, "deletion polls on a tight interval")
	assert.Equal(t, 600*time.Second, cfg.Waiter.MaxWait)
}

func TestLoadFromFile(t *testing.T) {
	configYAML := `
logging:
  level: debug
  format: json
sso:
  payer_account_id: "999999999999"
  support_nested_ou: true
  domain_suffixing: true
  directory_domain: corp.example.com
waiter:
  create_interval: 90s
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "999999999999", cfg.SSO.PayerAccountID)
	assert.True(t, cfg.SSO.SupportNestedOU)
	assert.Equal(t, "corp.example.com", cfg.SSO.DirectoryDomain)
	assert.Equal(t, 90*time.Second, cfg.Waiter.CreateInterval)
	assert.Equal(t, 2*time.Second, cfg.Waiter.DeleteInterval, "unset keys keep their defaults")
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	configYAML := "logging:\n  level: shouting\n"
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
