package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("PROVIDER_BASE_URL", "https://provider.example.com/v2")
	t.Setenv("PROVIDER_API_KEY", "key")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, 360, cfg.PollMaxAttempts)
	assert.Equal(t, 3, cfg.PollFailureNotifyEvery)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, cfg.AutoJoinDelays)
	assert.False(t, cfg.RabbitMQEnabled)
	assert.Equal(t, "host=localhost port=5432 user=postgres password= dbname=interviewd sslmode=disable", cfg.PostgresDSN())
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("POLL_INTERVAL", "5s")
	t.Setenv("AUTO_JOIN_DELAYS", "500ms, 1s")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com, ,https://admin.example.com")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("POSTGRES_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, cfg.AutoJoinDelays)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5432, cfg.PostgresPort)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "short jwt secret", env: map[string]string{"JWT_SECRET": "short"}},
		{name: "provider url", env: map[string]string{"PROVIDER_BASE_URL": "not a url"}},
		{name: "log format", env: map[string]string{"LOG_FORMAT": "xml"}},
		{name: "rabbitmq without url", env: map[string]string{"RABBITMQ_ENABLED": "true"}},
		{name: "poll attempts", env: map[string]string{"POLL_MAX_ATTEMPTS": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
