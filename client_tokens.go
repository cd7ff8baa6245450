package goSession

import (
	"context"
	"log"
	"time"
)

/*
====================================
TOKEN ACCESS
====================================
*/

// GetToken returns an access token for the given session, or the active one
// when no id is passed. A cached token is returned without a network call;
// otherwise a refresh is driven, coalesced with any refresh already in
// flight for the same session.
func (c *Client) GetToken(ctx context.Context, id ...string) (string, error) {
	return c.token(ctx, false, id...)
}

// ForceToken always drives a refresh, bypassing the cache but still joining
// an in-flight refresh for the same session instead of duplicating it.
func (c *Client) ForceToken(ctx context.Context, id ...string) (string, error) {
	return c.token(ctx, true, id...)
}

func (c *Client) token(ctx context.Context, force bool, id ...string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}

	entry := c.Current(id...)
	if entry == nil {
		return "", ErrSessionNotFound
	}
	if expired(entry) {
		c.expireLocal(ctx, entry.ID)
		return "", ErrSessionExpired
	}

	var (
		token     string
		coalesced bool
		err       error
	)
	if force {
		token, coalesced, err = c.tokens.force(ctx, entry.ID, c.refreshSession)
	} else {
		token, coalesced, err = c.tokens.get(ctx, entry.ID, c.refreshSession)
	}
	if coalesced {
		c.metrics.Inc(MetricRefreshCoalesced)
	}
	if err != nil {
		c.maybeTearDownActive(ctx, entry.ID, err)
		return "", err
	}
	return token, nil
}

// refreshSession is the network half of a token refresh: it signs a fresh
// assertion, exchanges it at the per-session token endpoint, and refreshes
// the hydrated user and sliding expiry on success.
func (c *Client) refreshSession(ctx context.Context, sessionID string) (string, error) {
	start := time.Now()

	assertion, err := c.signAssertion(ctx, sessionID)
	if err != nil {
		c.metrics.Inc(MetricRefreshFailure)
		c.emitAudit(ctx, auditEventRefreshFailure, false, sessionID, "", err, nil)
		return "", err
	}

	var data SessionData
	if err := c.transport.Post(ctx, epToken(sessionID), assertionRequest{Assertion: assertion}, CallOptions{}, &data); err != nil {
		c.metrics.Inc(MetricRefreshFailure)
		if !IsCancellation(err) {
			c.emitAudit(ctx, auditEventRefreshFailure, false, sessionID, "", err, nil)
		}
		return "", err
	}

	c.metrics.Inc(MetricRefreshSuccess)
	c.metrics.Observe(MetricRefreshLatency, time.Since(start))

	c.rehydrate(ctx, sessionID, data)

	c.emitAudit(ctx, auditEventRefreshSuccess, true, sessionID, "", nil, nil)
	return data.Token, nil
}

// rehydrate refreshes the user snapshot and sliding expiry after a
// successful refresh. Best effort: the fresh token is valid either way.
func (c *Client) rehydrate(ctx context.Context, sessionID string, data SessionData) {
	var user User
	if err := c.transport.Get(ctx, epCurrentUser, bearerOpts(data.Token), &user); err != nil {
		log.Printf("goSession: hydrate user after refresh for session %s: %v", sessionID, err)
		c.sessions.touch(ctx, sessionID)
		return
	}

	expireAt := data.ExpireAt
	if expireAt == nil {
		t := time.Now().Add(c.cfg.Session.Lifetime).UTC()
		expireAt = &t
	}

	if _, removed, err := c.sessions.bind(ctx, sessionID, &user, expireAt); err != nil {
		log.Printf("goSession: update session %s after refresh: %v", sessionID, err)
	} else {
		for _, id := range removed {
			c.tokens.remove(id)
			c.metrics.Inc(MetricDedupRemoved)
			c.emitAudit(ctx, auditEventSessionDedupRemoved, true, id, user.ID, nil, nil)
		}
	}
}

// WithToken calls fn with an access token for the session, retrying exactly
// once with a forced refresh when fn reports unauthorized. A second
// unauthorized result signs the session out and returns [ErrSessionExpired];
// there is never more than one retry.
func (c *Client) WithToken(ctx context.Context, fn func(ctx context.Context, token string) error, id ...string) error {
	if err := c.ready(); err != nil {
		return err
	}

	entry := c.Current(id...)
	if entry == nil {
		return ErrSessionNotFound
	}

	token, err := c.GetToken(ctx, entry.ID)
	if err != nil {
		return err
	}

	err = fn(ctx, token)
	if err == nil || !IsKind(err, KindUnauthorized) {
		return err
	}

	token, err = c.ForceToken(ctx, entry.ID)
	if err != nil {
		return err
	}

	err = fn(ctx, token)
	if err != nil && IsKind(err, KindUnauthorized) {
		c.metrics.Inc(MetricTokenRetryExhausted)
		c.expireLocal(ctx, entry.ID)
		return ErrSessionExpired
	}
	return err
}

// maybeTearDownActive removes the active session after a client-kind refresh
// failure: the authority has rejected its credentials, so keeping the local
// state only produces repeated failures.
func (c *Client) maybeTearDownActive(ctx context.Context, sessionID string, err error) {
	if !c.cfg.Session.TearDownActiveOnClientError {
		return
	}
	if !IsClientKind(err) || IsCancellation(err) {
		return
	}
	if c.sessions.activeID() != sessionID {
		return
	}
	c.expireLocal(ctx, sessionID)
}

// expireLocal removes a session's local state without contacting the
// authority.
func (c *Client) expireLocal(ctx context.Context, sessionID string) {
	if err := c.sessions.remove(ctx, sessionID); err != nil {
		log.Printf("goSession: remove expired session %s: %v", sessionID, err)
		return
	}
	c.tokens.remove(sessionID)
	c.metrics.Inc(MetricSessionRemoved)
	c.emitAudit(ctx, auditEventSessionExpired, true, sessionID, "", nil, nil)
}
