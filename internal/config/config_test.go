package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AutoCompleteDelay != 1300*time.Millisecond {
		t.Fatalf("AutoCompleteDelay = %v, want 1.3s", cfg.AutoCompleteDelay)
	}
	if cfg.AdminTimeout != 45*time.Second || cfg.BurnoutTimeout != 10*time.Second {
		t.Fatalf("dashboard timeouts = %v/%v, want 45s/10s", cfg.AdminTimeout, cfg.BurnoutTimeout)
	}
	if cfg.CacheBackend != "memory" {
		t.Fatalf("CacheBackend = %q, want memory", cfg.CacheBackend)
	}
	if cfg.AuthToken != "" {
		t.Fatalf("AuthToken = %q, want empty default", cfg.AuthToken)
	}
}

func TestLoadUsesExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("COPILOT_API_BASE_URL", "https://triage.example.test")
	t.Setenv("COPILOT_AUTH_TOKEN", "  tok-123 ")
	t.Setenv("COPILOT_AUTO_COMPLETE_DELAY", "2s")
	t.Setenv("COPILOT_CACHE_BACKEND", "redis")
	t.Setenv("COPILOT_REDIS_DB", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIBaseURL != "https://triage.example.test" {
		t.Fatalf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.AuthToken != "tok-123" {
		t.Fatalf("AuthToken = %q, want trimmed token", cfg.AuthToken)
	}
	if cfg.AutoCompleteDelay != 2*time.Second {
		t.Fatalf("AutoCompleteDelay = %v, want 2s", cfg.AutoCompleteDelay)
	}
	if cfg.RedisDB != 3 {
		t.Fatalf("RedisDB = %d, want 3", cfg.RedisDB)
	}
}

func TestLoadRejectsZeroAutoCompleteDelay(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("COPILOT_AUTO_COMPLETE_DELAY", "0s")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for zero auto-complete delay")
	}
}

func TestLoadRejectsUnknownCacheBackend(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("COPILOT_CACHE_BACKEND", "memcached")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for unknown cache backend")
	}
}

func TestLoadRejectsBadBool(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("COPILOT_ALLOW_ANY_ORIGIN", "maybe")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected bool parse error")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"COPILOT_BIND_ADDR",
		"COPILOT_SHUTDOWN_TIMEOUT",
		"COPILOT_SESSION_INACTIVITY_TIMEOUT",
		"COPILOT_METRICS_NAMESPACE",
		"COPILOT_LOG_LEVEL",
		"COPILOT_ALLOW_ANY_ORIGIN",
		"COPILOT_API_BASE_URL",
		"COPILOT_AUTH_TOKEN",
		"COPILOT_LOGIN_URL",
		"COPILOT_REQUEST_TIMEOUT",
		"COPILOT_AUTO_COMPLETE_DELAY",
		"COPILOT_ADMIN_TIMEOUT",
		"COPILOT_BURNOUT_TIMEOUT",
		"COPILOT_HOME_TIMEOUT",
		"COPILOT_CACHE_BACKEND",
		"COPILOT_REDIS_ADDR",
		"COPILOT_REDIS_PASSWORD",
		"COPILOT_REDIS_DB",
		"COPILOT_LANGUAGES_FILE",
		"COPILOT_PLAYER_CMD",
		"COPILOT_RECORDER_CMD",
		"COPILOT_RECORD_SAMPLE_RATE",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
