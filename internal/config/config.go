package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Notification NotificationConfig
	Routing      RoutingConfig
	Jobs         JobsConfig
	Security     SecurityConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// URL returns the database connection URL
func (c DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string
	PASSWORD string
}

// KafkaConfig holds the merchant notification topic settings
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// NotificationConfig selects and configures the merchant notification queue
type NotificationConfig struct {
	// Driver is one of "redis", "kafka" or "log".
	Driver        string
	Stream        string
	StreamMaxLen  int64
	SigningSecret string
	TokenTTL      time.Duration
}

// RoutingConfig tunes the orchestrator
type RoutingConfig struct {
	GatewayCallTimeout time.Duration
	DefaultStrategy    string
	MaxAttempts        int

	// AvailabilityFallback lets routing pick among unhealthy gateways when
	// none pass the health thresholds.
	AvailabilityFallback bool
	// HealthMaxAge is how long a health metric stays usable after its
	// window ends. Older metrics count as missing.
	HealthMaxAge         time.Duration
}

// JobsConfig holds background job cadence
type JobsConfig struct {
	SweepInterval   time.Duration
	StuckAfter      time.Duration
	SweepBatch      int
	HealthInterval  time.Duration
	HealthWindow    time.Duration
	// HealthRetention bounds how long aggregated metrics are kept.
	HealthRetention time.Duration
}

// SecurityConfig holds sealing keys and the operator token hash
type SecurityConfig struct {
	CredentialKey  string
	AdminTokenHash string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "payroute"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			PASSWORD: getEnv("REDIS_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_NOTIFICATION_TOPIC", "merchant-notifications"),
		},
		Notification: NotificationConfig{
			Driver:        getEnv("NOTIFICATION_DRIVER", "redis"),
			Stream:        getEnv("NOTIFICATION_STREAM", "payroute:merchant-notifications"),
			StreamMaxLen:  int64(getEnvAsInt("NOTIFICATION_STREAM_MAXLEN", 100000)),
			SigningSecret: getEnv("NOTIFICATION_SIGNING_SECRET", "change-this-in-production"),
			TokenTTL:      getEnvAsDuration("NOTIFICATION_TOKEN_TTL", 24*time.Hour),
		},
		Routing: RoutingConfig{
			GatewayCallTimeout:   getEnvAsDuration("GATEWAY_CALL_TIMEOUT", 30*time.Second),
			DefaultStrategy:      getEnv("ROUTING_DEFAULT_STRATEGY", "failover"),
			MaxAttempts:          getEnvAsInt("ROUTING_MAX_ATTEMPTS", 3),
			AvailabilityFallback: getEnvAsBool("ROUTING_AVAILABILITY_FALLBACK", true),
			HealthMaxAge:         getEnvAsDuration("ROUTING_HEALTH_MAX_AGE", 15*time.Minute),
		},
		Jobs: JobsConfig{
			SweepInterval:   getEnvAsDuration("JOB_SWEEP_INTERVAL", time.Minute),
			StuckAfter:      getEnvAsDuration("JOB_STUCK_AFTER", 15*time.Minute),
			SweepBatch:      getEnvAsInt("JOB_SWEEP_BATCH", 100),
			HealthInterval:  getEnvAsDuration("JOB_HEALTH_INTERVAL", time.Minute),
			HealthWindow:    getEnvAsDuration("JOB_HEALTH_WINDOW", 15*time.Minute),
			HealthRetention: getEnvAsDuration("JOB_HEALTH_RETENTION", 7*24*time.Hour),
		},
		Security: SecurityConfig{
			CredentialKey:  getEnv("CREDENTIAL_SEALING_KEY", "0000000000000000000000000000000000000000000000000000000000000000"), // 32-bytes hex string
			AdminTokenHash: getEnv("ADMIN_TOKEN_HASH", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
