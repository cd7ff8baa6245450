package goSession

import (
	"errors"
	"time"

	"github.com/MrEthical07/goSession/keys"
)

// Config defines a public type used by goSession APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	API          APIConfig
	Session      SessionConfig
	Keys         KeysConfig
	Passwordless PasswordlessConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig defines a public type used by goSession APIs.
//
// APIConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type APIConfig struct {
	BaseURL   string
	UserAgent string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by goSession APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	RedisPrefix string

	// AssertionTTL bounds the validity of self-signed refresh assertions.
	AssertionTTL time.Duration

	// Lifetime is the sliding session lifetime the authority is expected to
	// extend on every refresh. Configurable, not a protocol constant.
	Lifetime time.Duration

	// TearDownActiveOnClientError removes the active session when its token
	// refresh fails with a 4xx-class error.
	TearDownActiveOnClientError bool
}

/*
====================================
KEYS CONFIG
====================================
*/

// KeysConfig defines a public type used by goSession APIs.
//
// KeysConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type KeysConfig struct {
	Algorithm keys.Algorithm // "es256" (default), "rs256" optional
	RSABits   int
}

/*
====================================
PASSWORDLESS CONFIG
====================================
*/

// PasswordlessConfig defines a public type used by goSession APIs.
//
// PasswordlessConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordlessConfig struct {
	// PollInterval is the fixed wait between verification attempts while the
	// authority reports the confirmation is still pending.
	PollInterval time.Duration

	// MaxAttempts caps verification polls; 0 means unlimited.
	MaxAttempts uint

	// DeleteOnCancel removes the pending session when the poll is cancelled.
	// Default false: the entry is left in place so the user may resume.
	DeleteOnCancel bool
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig defines a public type used by goSession APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by goSession APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		API: APIConfig{
			UserAgent: "goSession",
		},
		Session: SessionConfig{
			RedisPrefix:                 "gs",
			AssertionTTL:                5 * time.Minute,
			Lifetime:                    30 * 24 * time.Hour,
			TearDownActiveOnClientError: true,
		},
		Keys: KeysConfig{
			Algorithm: keys.AlgES256,
			RSABits:   2048,
		},
		Passwordless: PasswordlessConfig{
			PollInterval: time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// DefaultConfig returns the engine defaults: ES256 keys, 5-minute refresh
// assertions, 30-day sliding session lifetime, 1-second passwordless polls.
func DefaultConfig() Config {
	return defaultConfig()
}

// StrictConfig returns a hardened preset: 1-minute assertions, 7-day session
// lifetime, capped passwordless polling with cleanup on cancel, audit and
// latency histograms enabled.
func StrictConfig() Config {
	cfg := defaultConfig()
	cfg.Session.AssertionTTL = time.Minute
	cfg.Session.Lifetime = 7 * 24 * time.Hour
	cfg.Passwordless.MaxAttempts = 300
	cfg.Passwordless.DeleteOnCancel = true
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func cloneConfig(cfg Config) Config {
	// All fields are value types; a struct copy is a deep copy.
	return cfg
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
func (c *Config) Validate() error {
	if c.Session.RedisPrefix == "" {
		return errors.New("session redis prefix required")
	}
	if c.Session.AssertionTTL <= 0 {
		return errors.New("assertion TTL must be positive")
	}
	if c.Session.AssertionTTL > time.Hour {
		return errors.New("assertion TTL above one hour defeats replay bounds")
	}
	if c.Session.Lifetime <= 0 {
		return errors.New("session lifetime must be positive")
	}
	if c.Passwordless.PollInterval <= 0 {
		return errors.New("passwordless poll interval must be positive")
	}
	switch c.Keys.Algorithm {
	case keys.AlgES256, keys.AlgRS256:
	default:
		return errors.New("unsupported key algorithm")
	}
	return nil
}
