package goSession

import (
	"io"
	"time"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/session"
)

// User is the hydrated user snapshot attached to an authenticated session.
// It mirrors the authority's current-user resource and is refreshed on every
// successful token exchange.
type User = session.User

// Session is one session-identity record: a client-generated handle plus an
// optional hydrated user snapshot and expiry. Key material is referenced by
// ID and held by the keystore, never by the record itself.
type Session = session.Entry

// SessionData is the authority's response to a successful sign-in, sign-up,
// passwordless confirmation, or token refresh. Token is the short-lived
// bearer credential; ExpireAt is the session expiry the authority assigned.
type SessionData struct {
	SessionID string     `json:"sessionId"`
	Token     string     `json:"token"`
	ExpireAt  *time.Time `json:"expireAt,omitempty"`
}

// PasswordlessRequest pairs a server-issued confirmation handle with the
// local anonymous session awaiting out-of-band approval.
type PasswordlessRequest struct {
	ConfirmationID string `json:"confirmationId"`
	SessionID      string `json:"sessionId"`
}

// Flags is the authority's feature-flag document for the current deployment.
type Flags struct {
	SignUpDisabled       bool `json:"signUpDisabled,omitempty"`
	PasswordlessDisabled bool `json:"passwordlessDisabled,omitempty"`
	PasswordResetEnabled bool `json:"passwordResetEnabled,omitempty"`
}

// AuditEvent is a structured audit record emitted by the client.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the client's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
