package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	Development bool
	// API configuration
	APIPort int
	// StorageDriver selects postgres or the in-memory repository.
	StorageDriver string
	// Postgres configuration
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string

	// Web Push configuration
	VAPIDPublicKey     string
	VAPIDPrivateKey    string
	VAPIDSubject       string
	PushTTLSeconds     int
	PushTimeout        time.Duration
	PushConcurrency    int
	PushDeactivateGone bool

	// Doorbell rules
	VisitTTL              time.Duration
	MaxRingDistanceMeters int
	// SubscriptionCap is how many active subscriptions survive a new subscribe.
	SubscriptionCap int
	RingCooldown    time.Duration
	VisitRetention  time.Duration

	// RedisURL enables the shared ring cooldown store when set.
	RedisURL string
	// JWTSecret signs resident bearer tokens (HS256).
	JWTSecret string

	// Operator alerts
	TelegramBotToken    string
	TelegramAlertChatID string

	// InstanceID identifies this process when taking maintenance locks.
	InstanceID string
}

// LoadConfig loads the configuration from environment variables. Call Validate
// once command line overrides have been applied.
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development:      getEnvAsBool("DEVELOPMENT", false),
		APIPort:          getEnvAsInt("API_PORT", 6532),
		StorageDriver:    getEnv("STORAGE_DRIVER", StorageDriverPostgres),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "doorbell"),

		VAPIDPublicKey:     getEnv("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey:    getEnv("VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:       getEnv("VAPID_SUBJECT", "mailto:admin@example.com"),
		PushTTLSeconds:     getEnvAsInt("PUSH_TTL_SECONDS", 60),
		PushTimeout:        getEnvAsDuration("PUSH_TIMEOUT", 10*time.Second),
		PushConcurrency:    getEnvAsInt("PUSH_CONCURRENCY", 8),
		PushDeactivateGone: getEnvAsBool("PUSH_DEACTIVATE_GONE", false),

		VisitTTL:              getEnvAsDuration("VISIT_TTL", 15*time.Minute),
		MaxRingDistanceMeters: getEnvAsInt("MAX_RING_DISTANCE_METERS", 50),
		SubscriptionCap:       getEnvAsInt("SUBSCRIPTION_CAP", 4),
		RingCooldown:          getEnvAsDuration("RING_COOLDOWN", 5*time.Second),
		VisitRetention:        getEnvAsDuration("VISIT_RETENTION", 30*24*time.Hour),

		RedisURL:  getEnv("REDIS_URL", ""),
		JWTSecret: getEnv("JWT_SECRET", ""),

		TelegramBotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAlertChatID: getEnv("TELEGRAM_ALERT_CHAT_ID", ""),

		InstanceID: getEnv("INSTANCE_ID", defaultInstanceID()),
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are properly set
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverPostgres:
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required")
		}
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StorageDriverPostgres, StorageDriverMemory, c.StorageDriver)
	}

	if c.VAPIDPublicKey == "" || c.VAPIDPrivateKey == "" {
		return fmt.Errorf("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY are required (generate them with `doorbell vapid-keys`)")
	}
	if !strings.HasPrefix(c.VAPIDSubject, "mailto:") && !strings.HasPrefix(c.VAPIDSubject, "https://") {
		return fmt.Errorf("VAPID_SUBJECT must be a mailto: or https:// URI")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.VisitTTL <= 0 {
		return fmt.Errorf("VISIT_TTL must be positive")
	}
	if c.MaxRingDistanceMeters <= 0 {
		return fmt.Errorf("MAX_RING_DISTANCE_METERS must be positive")
	}
	if c.SubscriptionCap <= 0 {
		return fmt.Errorf("SUBSCRIPTION_CAP must be positive")
	}
	if c.PushConcurrency <= 0 {
		return fmt.Errorf("PUSH_CONCURRENCY must be positive")
	}
	if c.PushTTLSeconds < 0 {
		return fmt.Errorf("PUSH_TTL_SECONDS cannot be negative")
	}
	if c.RingCooldown < 0 {
		return fmt.Errorf("RING_COOLDOWN cannot be negative")
	}
	if c.VisitRetention < c.VisitTTL {
		return fmt.Errorf("VISIT_RETENTION must not be shorter than VISIT_TTL")
	}

	if c.TelegramBotToken != "" && c.TelegramAlertChatID == "" {
		return fmt.Errorf("TELEGRAM_ALERT_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}

	return nil
}

// TelegramEnabled reports whether operator alerts are configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramAlertChatID != ""
}

func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return fmt.Sprintf("doorbell-%d", os.Getpid())
	}
	return host
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(name string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
