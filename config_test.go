package goSession

import (
	"testing"
	"time"

	"github.com/MrEthical07/goSession/keys"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Keys.Algorithm != keys.AlgES256 {
		t.Fatalf("expected es256 default, got %q", cfg.Keys.Algorithm)
	}
	if cfg.Session.AssertionTTL != 5*time.Minute {
		t.Fatalf("expected 5m assertion TTL, got %v", cfg.Session.AssertionTTL)
	}
	if cfg.Session.Lifetime != 30*24*time.Hour {
		t.Fatalf("expected 30d lifetime, got %v", cfg.Session.Lifetime)
	}
	if cfg.Passwordless.PollInterval != time.Second {
		t.Fatalf("expected 1s poll interval, got %v", cfg.Passwordless.PollInterval)
	}
	if cfg.Passwordless.DeleteOnCancel {
		t.Fatal("expected DeleteOnCancel disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}

func TestStrictConfigValidates(t *testing.T) {
	cfg := StrictConfig()

	if cfg.Session.AssertionTTL != time.Minute {
		t.Fatalf("expected 1m assertion TTL, got %v", cfg.Session.AssertionTTL)
	}
	if !cfg.Passwordless.DeleteOnCancel {
		t.Fatal("expected DeleteOnCancel enabled")
	}
	if !cfg.Audit.Enabled || cfg.Audit.DropIfFull {
		t.Fatal("expected blocking audit enabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected strict config to validate, got %v", err)
	}
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty prefix", func(c *Config) { c.Session.RedisPrefix = "" }},
		{"zero assertion ttl", func(c *Config) { c.Session.AssertionTTL = 0 }},
		{"huge assertion ttl", func(c *Config) { c.Session.AssertionTTL = 2 * time.Hour }},
		{"zero lifetime", func(c *Config) { c.Session.Lifetime = 0 }},
		{"zero poll interval", func(c *Config) { c.Passwordless.PollInterval = 0 }},
		{"unknown algorithm", func(c *Config) { c.Keys.Algorithm = "ed25519" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("GOSESSION_API_BASE_URL", "https://auth.example.com")
	t.Setenv("GOSESSION_REDIS_PREFIX", "myapp")
	t.Setenv("GOSESSION_ASSERTION_TTL", "2m")
	t.Setenv("GOSESSION_SESSION_LIFETIME", "168h")
	t.Setenv("GOSESSION_KEY_ALGORITHM", "rs256")
	t.Setenv("GOSESSION_PASSWORDLESS_DELETE_ON_CANCEL", "true")
	t.Setenv("GOSESSION_METRICS_LATENCY", "true")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv failed: %v", err)
	}

	if cfg.API.BaseURL != "https://auth.example.com" {
		t.Fatalf("unexpected base url %q", cfg.API.BaseURL)
	}
	if cfg.Session.RedisPrefix != "myapp" {
		t.Fatalf("unexpected prefix %q", cfg.Session.RedisPrefix)
	}
	if cfg.Session.AssertionTTL != 2*time.Minute {
		t.Fatalf("unexpected assertion TTL %v", cfg.Session.AssertionTTL)
	}
	if cfg.Session.Lifetime != 168*time.Hour {
		t.Fatalf("unexpected lifetime %v", cfg.Session.Lifetime)
	}
	if cfg.Keys.Algorithm != keys.AlgRS256 {
		t.Fatalf("unexpected algorithm %q", cfg.Keys.Algorithm)
	}
	if !cfg.Passwordless.DeleteOnCancel {
		t.Fatal("expected DeleteOnCancel enabled from env")
	}
	if !cfg.Metrics.EnableLatencyHistograms {
		t.Fatal("expected latency histograms enabled from env")
	}
}

func TestConfigFromEnvRejectsInvalid(t *testing.T) {
	t.Setenv("GOSESSION_KEY_ALGORITHM", "dsa")

	if _, err := ConfigFromEnv(); err == nil {
		t.Fatal("expected invalid algorithm to be rejected")
	}
}
