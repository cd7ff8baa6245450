package goSession

import (
	"context"

	"github.com/cenkalti/backoff/v5"
)

type passwordlessRequestBody struct {
	Email     string `json:"email"`
	SessionID string `json:"sessionId"`
	PublicKey string `json:"publicKey"`
}

type passwordlessConfirmation struct {
	ConfirmationID string `json:"confirmationId"`
}

type passwordlessVerifyBody struct {
	ConfirmationID string `json:"confirmationId"`
	Assertion      string `json:"assertion"`
}

/*
====================================
PASSWORDLESS
====================================
*/

// RequestPasswordless starts a passwordless login: a fresh session identity
// is created and its public key registered with the authority, which issues
// a confirmation handle delivered to the user out of band. The returned
// request pairs that handle with the local pending session for
// [Client.VerifyPasswordless].
func (c *Client) RequestPasswordless(ctx context.Context, email string) (*PasswordlessRequest, error) {
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

	var confirmation passwordlessConfirmation
	err = c.transport.Post(ctx, epPasswordlessRequest, passwordlessRequestBody{
		Email:     email,
		SessionID: entry.ID,
		PublicKey: publicKey,
	}, CallOptions{}, &confirmation)
	if err != nil {
		c.rollback(ctx, entry.ID)
		c.metrics.Inc(MetricPasswordlessFailure)
		c.emitAudit(ctx, auditEventPasswordlessFailure, false, entry.ID, "", err, nil)
		return nil, err
	}

	c.metrics.Inc(MetricPasswordlessRequest)
	c.emitAudit(ctx, auditEventPasswordlessRequest, true, entry.ID, "", nil, func() map[string]string {
		return map[string]string{"email": email}
	})
	return &PasswordlessRequest{
		ConfirmationID: confirmation.ConfirmationID,
		SessionID:      entry.ID,
	}, nil
}

// VerifyPasswordless polls the authority until the user confirms the login
// out of band. A fresh assertion is signed for every poll because assertions
// expire and carry single-use nonces. While the authority reports the
// confirmation as pending, the poll waits the configured interval and tries
// again. Any other failure removes the pending session and returns the
// error. Cancelling ctx resolves (nil, nil); the pending session is kept
// unless DeleteOnCancel is configured.
func (c *Client) VerifyPasswordless(ctx context.Context, req *PasswordlessRequest) (*Session, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if req == nil || req.SessionID == "" {
		return nil, ErrSessionNotFound
	}

	operation := func() (SessionData, error) {
		assertion, err := c.signAssertion(ctx, req.SessionID)
		if err != nil {
			return SessionData{}, backoff.Permanent(err)
		}

		var data SessionData
		err = c.transport.Post(ctx, epPasswordlessVerify(req.SessionID), passwordlessVerifyBody{
			ConfirmationID: req.ConfirmationID,
			Assertion:      assertion,
		}, CallOptions{}, &data)
		if err != nil {
			if IsAwaitConfirmation(err) {
				return SessionData{}, err
			}
			return SessionData{}, backoff.Permanent(err)
		}
		return data, nil
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(c.cfg.Passwordless.PollInterval)),
	}
	if c.cfg.Passwordless.MaxAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(c.cfg.Passwordless.MaxAttempts))
	}

	data, err := backoff.Retry(ctx, operation, opts...)
	if err != nil {
		if IsCancellation(err) {
			c.metrics.Inc(MetricPasswordlessCancelled)
			c.emitAudit(ctx, auditEventPasswordlessCancel, true, req.SessionID, "", nil, nil)
			if c.cfg.Passwordless.DeleteOnCancel {
				c.rollback(context.WithoutCancel(ctx), req.SessionID)
			}
			return nil, nil
		}

		c.rollback(ctx, req.SessionID)
		c.metrics.Inc(MetricPasswordlessFailure)
		c.emitAudit(ctx, auditEventPasswordlessFailure, false, req.SessionID, "", err, nil)
		return nil, err
	}

	if data.SessionID == "" {
		data.SessionID = req.SessionID
	}

	entry, err := c.FromResponse(ctx, data)
	if err != nil {
		c.rollback(ctx, req.SessionID)
		c.metrics.Inc(MetricPasswordlessFailure)
		c.emitAudit(ctx, auditEventPasswordlessFailure, false, req.SessionID, "", err, nil)
		return nil, err
	}

	if err := c.sessions.activate(ctx, entry.ID); err != nil {
		return nil, err
	}
	c.metrics.Inc(MetricSessionActivated)

	c.metrics.Inc(MetricPasswordlessConfirmed)
	c.emitAudit(ctx, auditEventPasswordlessConfirm, true, entry.ID, userID(entry), nil, nil)
	return entry, nil
}
