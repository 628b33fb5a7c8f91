package app

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/coursebuilder")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JWT_SECRET_KEY", "secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setBaseEnv(t)
	cfg, err := loadFrom(viper.New(), ModeServe)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddress)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.Equal(t, 120*time.Second, cfg.StreamIdleTimeout)
	assert.Empty(t, cfg.CORSOrigins)
}

func TestLoadConfigOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ACCESS_TOKEN_TTL", "900")
	t.Setenv("REFRESH_TOKEN_TTL", "48h")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("WORKER_POLL_INTERVAL", "250ms")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("OTEL_ENABLED", "true")

	cfg, err := loadFrom(viper.New(), ModeServe)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 48*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 8, cfg.WorkerConcurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.WorkerPollInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.OtelEnabled)
}

func TestLoadConfigRequiresStores(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("JWT_SECRET_KEY", "secret")

	_, err := loadFrom(viper.New(), ModeServe)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "REDIS_URL is required")
}

func TestLoadConfigOpenAIKeyDependsOnMode(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("OPENAI_API_KEY", "")

	_, err := loadFrom(viper.New(), ModeServe)
	assert.NoError(t, err)

	for _, mode := range []Mode{ModeWorker, ModeAll} {
		_, err := loadFrom(viper.New(), mode)
		require.Error(t, err, mode)
		assert.Contains(t, err.Error(), "OPENAI_API_KEY")
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")
	_, err = loadFrom(viper.New(), ModeWorker)
	assert.NoError(t, err)
}

func TestLoadConfigWorkerSkipsJWTSecret(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("JWT_SECRET_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	_, err := loadFrom(viper.New(), ModeWorker)
	assert.NoError(t, err)

	_, err = loadFrom(viper.New(), ModeServe)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET_KEY")
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := Config{
		DatabaseURL:       "postgres://x",
		RedisURL:          "redis://x",
		AccessTokenTTL:    time.Hour,
		RefreshTokenTTL:   time.Hour,
		WorkerConcurrency: 1,
	}
	assert.Error(t, cfg.Validate(Mode("batch")))
}
