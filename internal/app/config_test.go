package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", StorageMemory)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "pl", cfg.DefaultLanguage)
	require.Equal(t, 2, cfg.RouterRetries)
	require.Equal(t, 24*time.Hour, cfg.TokenTTL)
	require.Equal(t, "cms:events", cfg.EventsChannel)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", StoragePostgres)
	t.Setenv("PG_DSN", "postgres://example/cms")
	t.Setenv("DEFAULT_LANGUAGE", "en")
	t.Setenv("ROUTER_RETRIES", "0")
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "en", cfg.DefaultLanguage)
	require.Equal(t, 0, cfg.RouterRetries)
	require.True(t, cfg.IsProduction())
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{StorageDriver: StorageMemory, DefaultLanguage: "pl", TokenTTL: time.Hour}
	}
	require.NoError(t, (&Config{StorageDriver: StoragePostgres, PGDSN: "x", DefaultLanguage: "pl", TokenTTL: time.Hour}).Validate())

	cases := map[string]func(*Config){
		"unknown driver":   func(c *Config) { c.StorageDriver = "sqlite" },
		"postgres no dsn":  func(c *Config) { c.StorageDriver = StoragePostgres },
		"negative retries": func(c *Config) { c.RouterRetries = -1 },
		"no language":      func(c *Config) { c.DefaultLanguage = "" },
		"no ttl":           func(c *Config) { c.TokenTTL = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
