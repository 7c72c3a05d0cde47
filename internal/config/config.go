package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the copilot client engine.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string
	LogLevel                 string

	AllowAnyOrigin bool

	APIBaseURL     string
	AuthToken      string
	LoginURL       string
	RequestTimeout time.Duration

	AutoCompleteDelay time.Duration

	AdminTimeout   time.Duration
	BurnoutTimeout time.Duration
	HomeTimeout    time.Duration

	CacheBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LanguagesFile string

	PlayerCommand    string
	RecorderCommand  string
	RecordSampleRate int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("COPILOT_BIND_ADDR", ":8090"),
		MetricsNamespace:         envOrDefault("COPILOT_METRICS_NAMESPACE", "aidcare_copilot"),
		LogLevel:                 envOrDefault("COPILOT_LOG_LEVEL", "info"),
		AllowAnyOrigin:           false,
		APIBaseURL:               envOrDefault("COPILOT_API_BASE_URL", "http://localhost:8000"),
		AuthToken:                stringsTrimSpace("COPILOT_AUTH_TOKEN"),
		LoginURL:                 envOrDefault("COPILOT_LOGIN_URL", "/login"),
		CacheBackend:             envOrDefault("COPILOT_CACHE_BACKEND", "memory"),
		RedisAddr:                envOrDefault("COPILOT_REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:            stringsTrimSpace("COPILOT_REDIS_PASSWORD"),
		RedisDB:                  0,
		LanguagesFile:            stringsTrimSpace("COPILOT_LANGUAGES_FILE"),
		PlayerCommand:            stringsTrimSpace("COPILOT_PLAYER_CMD"),
		RecorderCommand:          stringsTrimSpace("COPILOT_RECORDER_CMD"),
		RecordSampleRate:         16000,
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
		RequestTimeout:           60 * time.Second,
		AutoCompleteDelay:        1300 * time.Millisecond,
		// The admin dashboard aggregates across a slow remote DB.
		AdminTimeout:   45 * time.Second,
		BurnoutTimeout: 10 * time.Second,
		HomeTimeout:    10 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("COPILOT_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("COPILOT_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RequestTimeout, err = durationFromEnv("COPILOT_REQUEST_TIMEOUT", cfg.RequestTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AutoCompleteDelay, err = durationFromEnv("COPILOT_AUTO_COMPLETE_DELAY", cfg.AutoCompleteDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.AdminTimeout, err = durationFromEnv("COPILOT_ADMIN_TIMEOUT", cfg.AdminTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.BurnoutTimeout, err = durationFromEnv("COPILOT_BURNOUT_TIMEOUT", cfg.BurnoutTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.HomeTimeout, err = durationFromEnv("COPILOT_HOME_TIMEOUT", cfg.HomeTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RedisDB, err = intFromEnv("COPILOT_REDIS_DB", cfg.RedisDB)
	if err != nil {
		return Config{}, err
	}
	cfg.RecordSampleRate, err = intFromEnv("COPILOT_RECORD_SAMPLE_RATE", cfg.RecordSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("COPILOT_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. Load calls it; callers that build
// a Config by hand (tests, CLI flag overrides) should call it too.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("COPILOT_API_BASE_URL must not be empty")
	}
	// A zero delay would move to results while the last reply is still being spoken.
	if c.AutoCompleteDelay <= 0 {
		return fmt.Errorf("COPILOT_AUTO_COMPLETE_DELAY must be positive")
	}
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("COPILOT_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	for name, d := range map[string]time.Duration{
		"COPILOT_ADMIN_TIMEOUT":   c.AdminTimeout,
		"COPILOT_BURNOUT_TIMEOUT": c.BurnoutTimeout,
		"COPILOT_HOME_TIMEOUT":    c.HomeTimeout,
		"COPILOT_REQUEST_TIMEOUT": c.RequestTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.CacheBackend)) {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid COPILOT_CACHE_BACKEND: %q (expected memory|redis)", c.CacheBackend)
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("COPILOT_REDIS_DB must be >= 0")
	}
	if c.RecordSampleRate <= 0 {
		return fmt.Errorf("COPILOT_RECORD_SAMPLE_RATE must be positive")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
