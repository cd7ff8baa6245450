package goSession

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/MrEthical07/goSession/keys"
)

type envConfig struct {
	BaseURL   string `env:"GOSESSION_API_BASE_URL"`
	UserAgent string `env:"GOSESSION_USER_AGENT" envDefault:"goSession"`

	RedisPrefix  string        `env:"GOSESSION_REDIS_PREFIX" envDefault:"gs"`
	AssertionTTL time.Duration `env:"GOSESSION_ASSERTION_TTL" envDefault:"5m"`
	Lifetime     time.Duration `env:"GOSESSION_SESSION_LIFETIME" envDefault:"720h"`
	TearDown     bool          `env:"GOSESSION_TEARDOWN_ON_CLIENT_ERROR" envDefault:"true"`

	KeyAlgorithm string `env:"GOSESSION_KEY_ALGORITHM" envDefault:"es256"`
	RSABits      int    `env:"GOSESSION_RSA_BITS" envDefault:"2048"`

	PollInterval   time.Duration `env:"GOSESSION_PASSWORDLESS_POLL_INTERVAL" envDefault:"1s"`
	MaxAttempts    uint          `env:"GOSESSION_PASSWORDLESS_MAX_ATTEMPTS" envDefault:"0"`
	DeleteOnCancel bool          `env:"GOSESSION_PASSWORDLESS_DELETE_ON_CANCEL" envDefault:"false"`

	AuditEnabled    bool `env:"GOSESSION_AUDIT_ENABLED" envDefault:"false"`
	AuditBufferSize int  `env:"GOSESSION_AUDIT_BUFFER_SIZE" envDefault:"256"`
	AuditDropIfFull bool `env:"GOSESSION_AUDIT_DROP_IF_FULL" envDefault:"true"`

	MetricsEnabled bool `env:"GOSESSION_METRICS_ENABLED" envDefault:"true"`
	LatencyEnabled bool `env:"GOSESSION_METRICS_LATENCY" envDefault:"false"`
}

// ConfigFromEnv builds a [Config] from GOSESSION_* environment variables,
// falling back to the engine defaults for anything unset.
func ConfigFromEnv() (Config, error) {
	parsed, err := env.ParseAs[envConfig]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	cfg := defaultConfig()
	cfg.API.BaseURL = parsed.BaseURL
	cfg.API.UserAgent = parsed.UserAgent
	cfg.Session.RedisPrefix = parsed.RedisPrefix
	cfg.Session.AssertionTTL = parsed.AssertionTTL
	cfg.Session.Lifetime = parsed.Lifetime
	cfg.Session.TearDownActiveOnClientError = parsed.TearDown
	cfg.Keys.Algorithm = keys.Algorithm(parsed.KeyAlgorithm)
	cfg.Keys.RSABits = parsed.RSABits
	cfg.Passwordless.PollInterval = parsed.PollInterval
	cfg.Passwordless.MaxAttempts = parsed.MaxAttempts
	cfg.Passwordless.DeleteOnCancel = parsed.DeleteOnCancel
	cfg.Audit.Enabled = parsed.AuditEnabled
	cfg.Audit.BufferSize = parsed.AuditBufferSize
	cfg.Audit.DropIfFull = parsed.AuditDropIfFull
	cfg.Metrics.Enabled = parsed.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = parsed.LatencyEnabled

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid environment config: %w", err)
	}
	return cfg, nil
}
