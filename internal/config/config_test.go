package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
app:
  port: "9090"
  env: development
storage:
  driver: memory
catalog:
  premiumProductID: prod_premium
  lifetimeProductID: prod_lifetime
checkout:
  successURL: https://app.example.com/billing/success
  cancelURL: https://app.example.com/billing/cancel
auth:
  jwtSecret: test-secret
retry:
  maxAttempts: 4
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := writeConfig(t, sampleConfig)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "prod_premium", cfg.Catalog.PremiumProductID)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	// defaults
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.Step)
	assert.Equal(t, 10*time.Minute, cfg.Sync.Timeout)
	assert.Equal(t, "kafka-go", cfg.Kafka.Driver)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	dir := writeConfig(t, sampleConfig)
	t.Setenv("STRIPE_APIKEY", "sk_test_env")
	t.Setenv("APP_PORT", "7070")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "sk_test_env", cfg.Stripe.APIKey)
	assert.Equal(t, "7070", cfg.App.Port)
}

func TestLoadConfigMissingRequired(t *testing.T) {
	dir := writeConfig(t, "storage:\n  driver: postgres\n")

	_, err := LoadConfig(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog.premiumProductID")
	assert.Contains(t, err.Error(), "database.dsn")
	assert.Contains(t, err.Error(), "auth.jwtSecret")
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := &Config{}
	cfg.Catalog.PremiumProductID = "p"
	cfg.Catalog.LifetimeProductID = "l"
	cfg.Auth.JWTSecret = "s"
	cfg.Storage.Driver = "sqlite"
	cfg.Retry.MaxAttempts = 1

	assert.ErrorContains(t, cfg.Validate(), "unknown storage.driver")
}
