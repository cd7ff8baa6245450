package goSession

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/keys"
	"github.com/MrEthical07/goSession/session"
)

const (
	epSignIn              = "auth/sign-in"
	epSignUp              = "auth/sign-up"
	epPasswordlessRequest = "auth/passwordless/request"
	epPasswordReset       = "auth/password-reset/request"
	epPasswordResetSet    = "auth/password-reset/confirm"
	epPasswordResetVerify = "auth/password-reset/verify"
	epEmailVerify         = "auth/email/verify"
	epCurrentUser         = "auth/me"
	epFlags               = "auth/flags"
)

func epToken(sessionID string) string {
	return "auth/sessions/" + sessionID + "/token"
}

func epSignOut(sessionID string) string {
	return "auth/sessions/" + sessionID + "/sign-out"
}

func epSignOutAll(sessionID string) string {
	return "auth/sessions/" + sessionID + "/sign-out-all"
}

func epPasswordlessVerify(sessionID string) string {
	return "auth/sessions/" + sessionID + "/passwordless/verify"
}

type credentialsRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Name      string `json:"name,omitempty"`
	SessionID string `json:"sessionId"`
	PublicKey string `json:"publicKey"`
}

type assertionRequest struct {
	Assertion string `json:"assertion"`
}

// Client is the engine façade: sign-in/up/out, passwordless, token access,
// and account flows. One Client owns one persistence context; multiple
// Clients in one process are independent.
//
// Client instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Client struct {
	cfg       Config
	transport Transport
	store     *session.Store
	keys      *keys.Manager
	sessions  *sessionService
	tokens    *tokenCache
	metrics   *Metrics
	audit     *auditDispatcher

	closed atomic.Bool
}

func (c *Client) ready() error {
	if c == nil || c.closed.Load() {
		return ErrClientNotReady
	}
	return nil
}

// Close stops the cross-instance subscription and drains the audit
// dispatcher. The Client must not be used afterwards.
func (c *Client) Close() {
	if c == nil || !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.sessions.stop()
	c.audit.Close()
}

// Metrics returns the client's metrics instance for export wiring.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// MetricsSnapshot returns a point-in-time copy of all engine metrics.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// AuditDropped returns the number of audit events dropped under dispatcher
// backpressure.
func (c *Client) AuditDropped() uint64 {
	return c.audit.Dropped()
}

// Store returns the underlying persistence layer, mainly for health probes.
func (c *Client) Store() *session.Store {
	return c.store
}

/*
====================================
SESSION SURFACE
====================================
*/

// Sessions returns all registry entries in insertion order.
func (c *Client) Sessions() []*Session {
	if c.ready() != nil {
		return nil
	}
	return c.sessions.list()
}

// Current resolves the given session id, or the active session when no id is
// passed. Returns nil when nothing resolves.
func (c *Client) Current(id ...string) *Session {
	if c.ready() != nil {
		return nil
	}
	if len(id) > 0 && id[0] != "" {
		return c.sessions.get(id[0])
	}
	return c.sessions.current()
}

// CreateSession mints a fresh anonymous session identity with its key pair.
// Most callers want SignIn/SignUp instead; this is the low-level entry for
// custom flows. extractable permits later private-key export for backup.
func (c *Client) CreateSession(ctx context.Context, extractable bool) (*Session, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	entry, err := c.sessions.create(ctx, extractable)
	if err != nil {
		return nil, err
	}

	c.metrics.Inc(MetricSessionCreated)
	c.emitAudit(ctx, auditEventSessionCreated, true, entry.ID, "", nil, nil)
	return entry, nil
}

// Activate makes the given session the active one and notifies subscribers,
// here and in other running instances.
func (c *Client) Activate(ctx context.Context, id string) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := c.sessions.activate(ctx, id); err != nil {
		return err
	}

	c.metrics.Inc(MetricSessionActivated)
	c.emitAudit(ctx, auditEventSessionActivated, true, id, "", nil, nil)
	return nil
}

// Subscribe registers fn for session-state changes: creation, hydration,
// activation, removal, including changes made by other instances. The
// returned function cancels the subscription. fn is not seeded with the
// current state; call Current first when needed.
func (c *Client) Subscribe(fn func(SessionEvent)) func() {
	if c.ready() != nil {
		return func() {}
	}
	return c.sessions.subscribe(fn)
}

/*
====================================
SIGN-IN / SIGN-UP
====================================
*/

// SignIn authenticates against the authority with email and password. A
// fresh session identity is created for the attempt and rolled back on
// failure, so a rejected sign-in leaves no local trace.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	entry, err := c.authenticate(ctx, epSignIn, credentialsRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		c.metrics.Inc(MetricSignInFailure)
		c.emitAudit(ctx, auditEventSignInFailure, false, "", "", err, func() map[string]string {
			return map[string]string{"email": email}
		})
		return nil, err
	}

	c.metrics.Inc(MetricSignInSuccess)
	c.emitAudit(ctx, auditEventSignInSuccess, true, entry.ID, entry.User.ID, nil, nil)
	return entry, nil
}

// SignUp registers a new account and signs it in. Rollback semantics match
// [Client.SignIn].
func (c *Client) SignUp(ctx context.Context, email, password, name string) (*Session, error) {
	entry, err := c.authenticate(ctx, epSignUp, credentialsRequest{
		Email:    email,
		Password: password,
		Name:     name,
	})
	if err != nil {
		c.metrics.Inc(MetricSignUpFailure)
		c.emitAudit(ctx, auditEventSignUpFailure, false, "", "", err, func() map[string]string {
			return map[string]string{"email": email}
		})
		return nil, err
	}

	c.metrics.Inc(MetricSignUpSuccess)
	c.emitAudit(ctx, auditEventSignUpSuccess, true, entry.ID, entry.User.ID, nil, nil)
	return entry, nil
}

func (c *Client) authenticate(ctx context.Context, endpoint string, req credentialsRequest) (*Session, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	entry, err := c.sessions.create(ctx, false)
	if err != nil {
		return nil, err
	}
	c.metrics.Inc(MetricSessionCreated)

	publicKey, err := c.exportPublicKey(ctx, entry.ID)
	if err != nil {
		c.rollback(ctx, entry.ID)
		return nil, err
	}

	req.SessionID = entry.ID
	req.PublicKey = publicKey

	var data SessionData
	if err := c.transport.Post(ctx, endpoint, req, CallOptions{}, &data); err != nil {
		c.rollback(ctx, entry.ID)
		return nil, err
	}

	bound, err := c.FromResponse(ctx, data)
	if err != nil {
		c.rollback(ctx, entry.ID)
		return nil, err
	}

	if err := c.sessions.activate(ctx, bound.ID); err != nil {
		return nil, err
	}
	c.metrics.Inc(MetricSessionActivated)
	return bound, nil
}

// rollback removes a placeholder session created at the start of an
// authentication attempt that failed (registry entry and key pair together).
func (c *Client) rollback(ctx context.Context, sessionID string) {
	if err := c.sessions.remove(ctx, sessionID); err != nil {
		log.Printf("goSession: rollback session %s: %v", sessionID, err)
		return
	}
	c.metrics.Inc(MetricSessionRemoved)
	c.emitAudit(ctx, auditEventSessionRemoved, true, sessionID, "", nil, func() map[string]string {
		return map[string]string{"reason": "rollback"}
	})
}

func (c *Client) exportPublicKey(ctx context.Context, sessionID string) (string, error) {
	kp, err := c.keys.Load(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionKeysNotFound, err)
	}
	pem, err := c.keys.ExportPublicKey(kp)
	if err != nil {
		return "", err
	}
	return string(pem), nil
}

// FromResponse applies a session payload obtained from the authority: it
// hydrates the user through the current-user endpoint with the fresh token,
// garbage-collects duplicate and abandoned entries, and upserts the
// now-authenticated entry. It does not activate the session.
func (c *Client) FromResponse(ctx context.Context, data SessionData) (*Session, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if data.SessionID == "" {
		return nil, ErrSessionNotFound
	}

	var user User
	if err := c.transport.Get(ctx, epCurrentUser, bearerOpts(data.Token), &user); err != nil {
		return nil, err
	}

	c.tokens.set(data.SessionID, data.Token)

	entry, removed, err := c.sessions.bind(ctx, data.SessionID, &user, data.ExpireAt)
	if err != nil {
		return nil, err
	}

	for _, id := range removed {
		c.tokens.remove(id)
		c.metrics.Inc(MetricDedupRemoved)
		c.emitAudit(ctx, auditEventSessionDedupRemoved, true, id, user.ID, nil, nil)
	}
	return entry, nil
}

/*
====================================
SIGN-OUT
====================================
*/

// SignOut removes the given session, or the active one when no id is passed.
// Local state is removed first; the authority call is best effort because the
// key material is invalidated either way.
func (c *Client) SignOut(ctx context.Context, id ...string) error {
	if err := c.ready(); err != nil {
		return err
	}

	entry := c.Current(id...)
	if entry == nil {
		return ErrSessionNotFound
	}

	assertion := c.signOutAssertion(ctx, entry.ID)

	if err := c.sessions.remove(ctx, entry.ID); err != nil {
		return err
	}
	c.tokens.remove(entry.ID)

	c.postSignOut(ctx, epSignOut(entry.ID), assertion)

	c.metrics.Inc(MetricSignOut)
	c.metrics.Inc(MetricSessionRemoved)
	c.emitAudit(ctx, auditEventSignOut, true, entry.ID, userID(entry), nil, nil)
	return nil
}

// SignOutAll removes every session on this device. The proof-of-possession
// assertion is signed with the given session's key, defaulting to the active
// one; with no resolvable session the registry is still cleared locally.
func (c *Client) SignOutAll(ctx context.Context, id ...string) error {
	if err := c.ready(); err != nil {
		return err
	}

	entry := c.Current(id...)
	var assertion, endpoint string
	if entry != nil {
		assertion = c.signOutAssertion(ctx, entry.ID)
		endpoint = epSignOutAll(entry.ID)
	}

	entries := c.sessions.list()
	if err := c.sessions.removeAll(ctx); err != nil {
		return err
	}
	for _, e := range entries {
		c.tokens.remove(e.ID)
	}

	if endpoint != "" {
		c.postSignOut(ctx, endpoint, assertion)
	}

	c.metrics.Inc(MetricSignOutAll)
	c.emitAudit(ctx, auditEventSignOutAll, true, "", "", nil, func() map[string]string {
		return map[string]string{"sessions": fmt.Sprintf("%d", len(entries))}
	})
	return nil
}

func (c *Client) signOutAssertion(ctx context.Context, sessionID string) string {
	assertion, err := c.signAssertion(ctx, sessionID)
	if err != nil {
		log.Printf("goSession: sign-out assertion for session %s: %v", sessionID, err)
		return ""
	}
	return assertion
}

func (c *Client) postSignOut(ctx context.Context, endpoint, assertion string) {
	if assertion == "" {
		return
	}
	if err := c.transport.Post(ctx, endpoint, assertionRequest{Assertion: assertion}, CallOptions{}, nil); err != nil {
		log.Printf("goSession: sign-out notify authority: %v", err)
	}
}

// signAssertion produces a short-lived proof-of-possession token for the
// session: claims {exp, jti} signed with the session's private key.
func (c *Client) signAssertion(ctx context.Context, sessionID string) (string, error) {
	assertion, err := c.keys.Sign(ctx, sessionID, map[string]any{
		"exp": time.Now().Add(c.cfg.Session.AssertionTTL).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionKeysNotFound, err)
	}
	return assertion, nil
}

func bearerOpts(token string) CallOptions {
	return CallOptions{Headers: map[string]string{"Authorization": "Bearer " + token}}
}

func userID(e *Session) string {
	if e == nil || e.User == nil {
		return ""
	}
	return e.User.ID
}
