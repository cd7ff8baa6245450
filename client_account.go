package goSession

import "context"

type emailRequest struct {
	Email string `json:"email"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type resetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

/*
====================================
ACCOUNT FLOWS
====================================
*/

// ResetPassword asks the authority to start a password reset for the given
// email. No local state changes.
func (c *Client) ResetPassword(ctx context.Context, email string) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := c.transport.Post(ctx, epPasswordReset, emailRequest{Email: email}, CallOptions{}, nil); err != nil {
		return err
	}

	c.metrics.Inc(MetricPasswordResetRequest)
	c.emitAudit(ctx, auditEventPasswordResetRequest, true, "", "", nil, func() map[string]string {
		return map[string]string{"email": email}
	})
	return nil
}

// SetResetPassword completes a password reset with the emailed token and the
// new password.
func (c *Client) SetResetPassword(ctx context.Context, token, password string) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := c.transport.Post(ctx, epPasswordResetSet, resetConfirmRequest{
		Token:    token,
		Password: password,
	}, CallOptions{}, nil); err != nil {
		return err
	}

	c.metrics.Inc(MetricPasswordResetConfirm)
	c.emitAudit(ctx, auditEventPasswordResetConfirm, true, "", "", nil, nil)
	return nil
}

// VerifyToken checks whether a password-reset token is still valid without
// consuming it.
func (c *Client) VerifyToken(ctx context.Context, token string) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.transport.Post(ctx, epPasswordResetVerify, tokenRequest{Token: token}, CallOptions{}, nil)
}

// VerifyEmail confirms an email address with the emailed verification token.
func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := c.transport.Post(ctx, epEmailVerify, tokenRequest{Token: token}, CallOptions{}, nil); err != nil {
		return err
	}

	c.metrics.Inc(MetricEmailVerification)
	c.emitAudit(ctx, auditEventEmailVerification, true, "", "", nil, nil)
	return nil
}

// Flags fetches the authority's feature flags for the sign-in surface.
func (c *Client) Flags(ctx context.Context) (*Flags, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var flags Flags
	if err := c.transport.Get(ctx, epFlags, CallOptions{}, &flags); err != nil {
		return nil, err
	}
	return &flags, nil
}
