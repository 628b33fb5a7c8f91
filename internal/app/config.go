package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Mode string

const (
	ModeServe  Mode = "serve"
	ModeWorker Mode = "worker"
	ModeAll    Mode = "all"
)

func (m Mode) RunsHTTP() bool   { return m == ModeServe || m == ModeAll }
func (m Mode) RunsWorker() bool { return m == ModeWorker || m == ModeAll }

type Config struct {
	LogMode     string `mapstructure:"log_mode"`
	Environment string `mapstructure:"app_environment"`
	ServiceName string `mapstructure:"service_name"`

	HTTPAddress     string        `mapstructure:"http_address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"-"`

	DatabaseURL    string `mapstructure:"database_url"`
	DBMaxOpenConns int    `mapstructure:"db_max_open_conns"`
	DBMaxIdleConns int    `mapstructure:"db_max_idle_conns"`
	RedisURL       string `mapstructure:"redis_url"`

	JWTSecretKey    string        `mapstructure:"jwt_secret_key"`
	AccessTokenTTL  time.Duration `mapstructure:"-"`
	RefreshTokenTTL time.Duration `mapstructure:"-"`

	StripeWebhookSecret string `mapstructure:"stripe_webhook_secret"`

	OpenAIAPIKey     string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL    string        `mapstructure:"openai_base_url"`
	OpenAIModel      string        `mapstructure:"openai_model"`
	OpenAITimeout    time.Duration `mapstructure:"openai_timeout"`
	OpenAIMaxRetries int           `mapstructure:"openai_max_retries"`

	WorkerConcurrency  int           `mapstructure:"worker_concurrency"`
	WorkerPollInterval time.Duration `mapstructure:"worker_poll_interval"`
	WorkerStaleRunning time.Duration `mapstructure:"worker_stale_running"`
	StreamIdleTimeout  time.Duration `mapstructure:"stream_idle_timeout"`
	MetricsInterval    time.Duration `mapstructure:"metrics_queue_interval"`

	OtelEnabled     bool    `mapstructure:"otel_enabled"`
	OtelEndpoint    string  `mapstructure:"otel_exporter_otlp_endpoint"`
	OtelHeaders     string  `mapstructure:"otel_exporter_otlp_headers"`
	OtelInsecure    bool    `mapstructure:"otel_exporter_otlp_insecure"`
	OtelSampleRatio float64 `mapstructure:"otel_sample_ratio"`
	Version         string  `mapstructure:"app_version"`
}

var defaults = map[string]any{
	"log_mode":                    "development",
	"app_environment":             "development",
	"service_name":                "coursebuilder-backend",
	"http_address":                ":8080",
	"shutdown_timeout":            15 * time.Second,
	"cors_origins":                "",
	"database_url":                "",
	"db_max_open_conns":           20,
	"db_max_idle_conns":           5,
	"redis_url":                   "",
	"jwt_secret_key":              "",
	"access_token_ttl":            time.Hour,
	"refresh_token_ttl":           24 * time.Hour,
	"stripe_webhook_secret":       "",
	"openai_api_key":              "",
	"openai_base_url":             "",
	"openai_model":                "gpt-4o-mini",
	"openai_timeout":              2 * time.Minute,
	"openai_max_retries":          2,
	"worker_concurrency":          4,
	"worker_poll_interval":        time.Second,
	"worker_stale_running":        5 * time.Minute,
	"stream_idle_timeout":         120 * time.Second,
	"metrics_queue_interval":      15 * time.Second,
	"otel_enabled":                false,
	"otel_exporter_otlp_endpoint": "",
	"otel_exporter_otlp_headers":  "",
	"otel_exporter_otlp_insecure": false,
	"otel_sample_ratio":           1.0,
	"app_version":                 "dev",
}

// LoadConfig reads .env (when present) and the process environment, then validates for mode.
func LoadConfig(mode Mode) (Config, error) {
	loadEnvFile()
	return loadFrom(viper.New(), mode)
}

func loadFrom(v *viper.Viper, mode Mode) (Config, error) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitList(v.GetString("cors_origins"))
	cfg.AccessTokenTTL = seconds(v, "access_token_ttl")
	cfg.RefreshTokenTTL = seconds(v, "refresh_token_ttl")

	if err := cfg.Validate(mode); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate reports every missing or malformed setting at once.
func (c Config) Validate(mode Mode) error {
	var errs []error
	switch mode {
	case ModeServe, ModeWorker, ModeAll:
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q", mode))
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if strings.TrimSpace(c.RedisURL) == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	if mode.RunsWorker() && strings.TrimSpace(c.OpenAIAPIKey) == "" {
		errs = append(errs, fmt.Errorf("OPENAI_API_KEY is required in %s mode", mode))
	}
	if mode.RunsHTTP() && strings.TrimSpace(c.JWTSecretKey) == "" {
		errs = append(errs, errors.New("JWT_SECRET_KEY is required"))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	if c.WorkerConcurrency < 1 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be at least 1"))
	}
	return errors.Join(errs...)
}

// seconds accepts either a bare number of seconds or a Go duration string.
func seconds(v *viper.Viper, key string) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if n := v.GetInt(key); n > 0 {
		return time.Duration(n) * time.Second
	}
	return v.GetDuration(key)
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func loadEnvFile() {
	paths := []string{".env", "../.env", "../../.env"}
	if root := findProjectRoot(); root != "" {
		paths = append(paths, filepath.Join(root, ".env"))
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			if err := godotenv.Load(p); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
