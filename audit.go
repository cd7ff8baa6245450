package goSession

import (
	"context"
	"time"
)

const (
	auditEventSignInSuccess        = "sign_in_success"
	auditEventSignInFailure        = "sign_in_failure"
	auditEventSignUpSuccess        = "sign_up_success"
	auditEventSignUpFailure        = "sign_up_failure"
	auditEventSignOut              = "sign_out"
	auditEventSignOutAll           = "sign_out_all"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshFailure       = "refresh_failure"
	auditEventSessionCreated       = "session_created"
	auditEventSessionActivated     = "session_activated"
	auditEventSessionRemoved       = "session_removed"
	auditEventSessionDedupRemoved  = "session_dedup_removed"
	auditEventSessionExpired       = "session_expired"
	auditEventPasswordlessRequest  = "passwordless_request"
	auditEventPasswordlessConfirm  = "passwordless_confirm"
	auditEventPasswordlessCancel   = "passwordless_cancel"
	auditEventPasswordlessFailure  = "passwordless_failure"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordResetConfirm = "password_reset_confirm"
	auditEventEmailVerification    = "email_verification"
)

func (c *Client) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	sessionID string,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if c == nil || c.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		SessionID: sessionID,
		UserID:    userID,
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}

	c.audit.Emit(ctx, event)
}
