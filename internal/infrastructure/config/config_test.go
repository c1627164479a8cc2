package config

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "oms-integrations", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 3, cfg.Transport.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Transport.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Transport.MaxDelay)
	assert.Equal(t, 15*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 50, cfg.Sync.PageSize)
	assert.Equal(t, "OMS_VAULT_KEY", cfg.Vault.KeyEnvVar)
	assert.Equal(t, "oms-shipping-labels", cfg.Storage.Bucket)
	assert.Equal(t, 1.0, cfg.Telemetry.SamplingRatio)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("OMS_APP_PORT", "9090")
	t.Setenv("OMS_DATABASE_HOST", "db.internal")
	t.Setenv("OMS_SYNC_PAGE_SIZE", "100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 100, cfg.Sync.PageSize)
}

func TestDSN_EscapesCredentials(t *testing.T) {
	d := DatabaseConfig{
		Host: "localhost", Port: 5432,
		User: "oms", Password: "p@ss:word/1",
		DBName: "oms", SSLMode: "disable",
	}
	dsn := d.DSN()
	assert.Contains(t, dsn, "postgres://")
	assert.Contains(t, dsn, "sslmode=disable")
	assert.NotContains(t, dsn, "p@ss:word/1", "password must be URL-escaped")
}

func TestVaultKey_FromEnv(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	t.Setenv("OMS_VAULT_KEY", hex.EncodeToString(key))

	cfg, err := Load()
	require.NoError(t, err)

	got, err := cfg.VaultKey()
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestVaultKey_MissingEnv(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	_, err = cfg.VaultKey()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OMS_VAULT_KEY")
}

func TestValidate_ProductionRequirements(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.App.Env = "production"

	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.password")

	cfg.Database.Password = "secret"
	err = cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sslmode")

	cfg.Database.SSLMode = "require"
	assert.NoError(t, cfg.validate())
}

func TestValidate_TransportBounds(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Transport.BaseDelay = time.Minute
	cfg.Transport.MaxDelay = time.Second

	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_delay")
}
