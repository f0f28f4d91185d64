package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		APIPort:               6532,
		StorageDriver:         StorageDriverMemory,
		VAPIDPublicKey:        "pub",
		VAPIDPrivateKey:       "priv",
		VAPIDSubject:          "mailto:ops@example.com",
		PushTTLSeconds:        60,
		PushConcurrency:       8,
		VisitTTL:              15 * time.Minute,
		MaxRingDistanceMeters: 50,
		SubscriptionCap:       4,
		RingCooldown:          5 * time.Second,
		VisitRetention:        720 * time.Hour,
		JWTSecret:             "secret",
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("API_PORT", "")
	t.Setenv("VISIT_TTL", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 6532, cfg.APIPort, "unparsable values fall back to defaults")
	assert.Equal(t, 15*time.Minute, cfg.VisitTTL)
	assert.Equal(t, 50, cfg.MaxRingDistanceMeters)
	assert.Equal(t, 4, cfg.SubscriptionCap)
	assert.Equal(t, 10*time.Second, cfg.PushTimeout)
	assert.Equal(t, 720*time.Hour, cfg.VisitRetention)
	assert.NotEmpty(t, cfg.InstanceID)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("RING_COOLDOWN", "0s")
	t.Setenv("PUSH_DEACTIVATE_GONE", "true")
	t.Setenv("SUBSCRIPTION_CAP", "2")
	t.Setenv("INSTANCE_ID", "node-a")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, StorageDriverMemory, cfg.StorageDriver)
	assert.Zero(t, cfg.RingCooldown)
	assert.True(t, cfg.PushDeactivateGone)
	assert.Equal(t, 2, cfg.SubscriptionCap)
	assert.Equal(t, "node-a", cfg.InstanceID)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"unknown driver", func(c *Config) { c.StorageDriver = "sqlite" }, "STORAGE_DRIVER"},
		{"postgres without host", func(c *Config) { c.StorageDriver = StorageDriverPostgres; c.PostgresDB = "doorbell" }, "POSTGRES_HOST"},
		{"missing vapid", func(c *Config) { c.VAPIDPrivateKey = "" }, "VAPID_PUBLIC_KEY"},
		{"bad subject", func(c *Config) { c.VAPIDSubject = "ops@example.com" }, "VAPID_SUBJECT"},
		{"missing jwt secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET"},
		{"zero ttl", func(c *Config) { c.VisitTTL = 0 }, "VISIT_TTL"},
		{"zero distance", func(c *Config) { c.MaxRingDistanceMeters = 0 }, "MAX_RING_DISTANCE_METERS"},
		{"zero cap", func(c *Config) { c.SubscriptionCap = 0 }, "SUBSCRIPTION_CAP"},
		{"negative cooldown", func(c *Config) { c.RingCooldown = -time.Second }, "RING_COOLDOWN"},
		{"retention shorter than ttl", func(c *Config) { c.VisitRetention = time.Minute }, "VISIT_RETENTION"},
		{"telegram without chat", func(c *Config) { c.TelegramBotToken = "t" }, "TELEGRAM_ALERT_CHAT_ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestTelegramEnabled(t *testing.T) {
	cfg := validConfig()
	assert.False(t, cfg.TelegramEnabled())
	cfg.TelegramBotToken, cfg.TelegramAlertChatID = "t", "1"
	assert.True(t, cfg.TelegramEnabled())
}
