package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Baseline(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("FACILITY_TIMEZONE", "America/Mexico_City")
	t.Setenv("DB_NAME", "clinic")
	t.Setenv("SLOT_LOCK_TTL", "10s")
	t.Setenv("RATE_LIMIT_RPS", "5")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("METRICS_ENABLED", "true")
	t.Setenv("APP_ENV", "development")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "America/Mexico_City", cfg.Location.String())
	assert.Contains(t, cfg.Database.DSN, "/clinic?")
	assert.Contains(t, cfg.Database.DSN, "loc=America%2FMexico_City")
	assert.Contains(t, cfg.Database.DSN, "parseTime=True")
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, 10*time.Second, cfg.SlotLockTTL)
	assert.Equal(t, 5.0, cfg.RateLimitRPS)
	assert.Equal(t, 10, cfg.RateLimitBurst)
	assert.True(t, cfg.MetricsEnabled)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("FACILITY_TIMEZONE", "UTC")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("SLOT_LOCK_TTL", "3s")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 3*time.Second, cfg.SlotLockTTL)
	assert.False(t, cfg.MetricsEnabled)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"FACILITY_TIMEZONE": "Mars/Olympus_Mons",
		"REDIS_DB":          "zero",
		"SLOT_LOCK_TTL":     "soon",
		"RATE_LIMIT_RPS":    "-1",
		"RATE_LIMIT_BURST":  "many",
		"METRICS_ENABLED":   "perhaps",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}
