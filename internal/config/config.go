package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerAddress   string        `validate:"required"`
	AllowedOrigins  []string      `validate:"min=1,dive,required"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
	JWTSecret       string        `validate:"required,min=16"`

	// Logging
	LogLevel  string `validate:"oneof=trace debug info warn error"`
	LogFormat string `validate:"oneof=json console"`

	// PostgreSQL
	PostgresHost     string `validate:"required"`
	PostgresPort     int    `validate:"gt=0"`
	PostgresUser     string `validate:"required"`
	PostgresPassword string
	PostgresDB       string `validate:"required"`
	PostgresSSLMode  string `validate:"oneof=disable require verify-ca verify-full"`

	// Session provider
	ProviderBaseURL string        `validate:"required,url"`
	ProviderAPIKey  string        `validate:"required"`
	ProviderTimeout time.Duration `validate:"gt=0"`

	// Status polling
	PollInterval           time.Duration `validate:"gt=0"`
	PollMaxAttempts        int           `validate:"gte=1"`
	PollFailureNotifyEvery int           `validate:"gte=1"`

	// Auto-join
	AutoJoinDelays  []time.Duration
	AutoJoinTimeout time.Duration `validate:"gt=0"`

	// Call transport
	ICEServers              []string
	DeviceCatalog           string        `validate:"required"`
	JoinTimeout             time.Duration `validate:"gt=0"`
	TransportAcquireTimeout time.Duration `validate:"gt=0"`
	DisplayName             string

	// RabbitMQ
	RabbitMQEnabled  bool
	RabbitMQURL      string `validate:"required_if=RabbitMQEnabled true"`
	RabbitMQExchange string `validate:"required_if=RabbitMQEnabled true"`
}

// Load reads an optional .env file, then the environment, and validates
// the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerAddress:   getEnv("SERVER_ADDRESS", ":8080"),
		AllowedOrigins:  getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		JWTSecret:       getEnv("JWT_SECRET", ""),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnv("POSTGRES_DB", "interviewd"),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		ProviderBaseURL: getEnv("PROVIDER_BASE_URL", ""),
		ProviderAPIKey:  getEnv("PROVIDER_API_KEY", ""),
		ProviderTimeout: getEnvAsDuration("PROVIDER_TIMEOUT", 15*time.Second),

		PollInterval:           getEnvAsDuration("POLL_INTERVAL", 10*time.Second),
		PollMaxAttempts:        getEnvAsInt("POLL_MAX_ATTEMPTS", 360),
		PollFailureNotifyEvery: getEnvAsInt("POLL_FAILURE_NOTIFY_EVERY", 3),

		AutoJoinDelays:  getEnvAsDurations("AUTO_JOIN_DELAYS", []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}),
		AutoJoinTimeout: getEnvAsDuration("AUTO_JOIN_TIMEOUT", 3*time.Second),

		ICEServers:              getEnvAsList("ICE_SERVERS", []string{"stun:stun.l.google.com:19302"}),
		DeviceCatalog:           getEnv("DEVICE_CATALOG", "camera:default:Default camera,microphone:default:Default microphone,speaker:default:Default speaker"),
		JoinTimeout:             getEnvAsDuration("JOIN_TIMEOUT", 20*time.Second),
		TransportAcquireTimeout: getEnvAsDuration("TRANSPORT_ACQUIRE_TIMEOUT", 10*time.Second),
		DisplayName:             getEnv("DISPLAY_NAME", "Candidate"),

		RabbitMQEnabled:  getEnvAsBool("RABBITMQ_ENABLED", false),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange: getEnv("RABBITMQ_EXCHANGE", "interview.events"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// PostgresDSN is the lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresUser,
		c.PostgresPassword,
		c.PostgresDB,
		c.PostgresSSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value and drops empty items.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvAsDurations(key string, defaultValue []time.Duration) []time.Duration {
	items := getEnvAsList(key, nil)
	if items == nil {
		return defaultValue
	}
	out := make([]time.Duration, 0, len(items))
	for _, item := range items {
		d, err := time.ParseDuration(item)
		if err != nil || d < 0 {
			return defaultValue
		}
		out = append(out, d)
	}
	return out
}
