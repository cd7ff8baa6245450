package goSession

import (
	"time"

	"github.com/MrEthical07/goSession/keys"
)

// SecurityReport is a point-in-time summary of the client's effective
// security posture, for operator dashboards and support bundles.
type SecurityReport struct {
	SigningAlgorithm      keys.Algorithm
	RSABits               int
	AssertionTTL          time.Duration
	SessionLifetime       time.Duration
	TearDownOnClientError bool
	PasswordlessInterval  time.Duration
	PasswordlessMaxPolls  uint
	DeleteOnCancel        bool
	AuditEnabled          bool
	AuditDroppedEvents    uint64
	MetricsEnabled        bool
	LatencyHistograms     bool
	RegisteredSessions    int
	ActiveSessionResolved bool
}

// SecurityReport describes the securityreport operation and its observable behavior.
func (c *Client) SecurityReport() SecurityReport {
	if c == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		SigningAlgorithm:      c.cfg.Keys.Algorithm,
		RSABits:               c.cfg.Keys.RSABits,
		AssertionTTL:          c.cfg.Session.AssertionTTL,
		SessionLifetime:       c.cfg.Session.Lifetime,
		TearDownOnClientError: c.cfg.Session.TearDownActiveOnClientError,
		PasswordlessInterval:  c.cfg.Passwordless.PollInterval,
		PasswordlessMaxPolls:  c.cfg.Passwordless.MaxAttempts,
		DeleteOnCancel:        c.cfg.Passwordless.DeleteOnCancel,
		AuditEnabled:          c.cfg.Audit.Enabled,
		AuditDroppedEvents:    c.audit.Dropped(),
		MetricsEnabled:        c.cfg.Metrics.Enabled,
		LatencyHistograms:     c.cfg.Metrics.EnableLatencyHistograms,
		RegisteredSessions:    len(c.sessions.list()),
		ActiveSessionResolved: c.sessions.current() != nil,
	}
}
