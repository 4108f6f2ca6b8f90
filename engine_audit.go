package greenauth

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess           = "login_success"
	auditEventLoginFailure           = "login_failure"
	auditEventLoginRateLimited       = "login_rate_limited"
	auditEventRefreshSuccess         = "refresh_success"
	auditEventRefreshInvalid         = "refresh_invalid"
	auditEventRefreshReuseDetected   = "refresh_reuse_detected"
	auditEventLogout                 = "logout"
	auditEventAccountCreated         = "account_created"
	auditEventAccountCreationFailure = "account_creation_failure"
	auditEventAccountStatusChange    = "account_status_change"
	auditEventPasswordRehashed       = "password_rehashed"
)

// AuditErrorCode is the error classification stamped on failed audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountDisabled    AuditErrorCode = "account_disabled"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrTokenRevoked       AuditErrorCode = "token_revoked"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrAccountNotFound    AuditErrorCode = "account_not_found"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrInvalidRequest     AuditErrorCode = "invalid_request"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// auditRecord is the variable part of an event; the engine fills in time and IP.
type auditRecord struct {
	eventType string
	success   bool
	userID    string
	recordID  string
	device    string
	err       error
	metadata  func() map[string]string
}

func (e *Engine) emitAudit(ctx context.Context, rec auditRecord) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if rec.metadata != nil {
		metadata = rec.metadata()
	}

	event := AuditEvent{
		Timestamp: e.now(),
		EventType: rec.eventType,
		UserID:    rec.userID,
		RecordID:  rec.recordID,
		Device:    rec.device,
		IP:        clientIPFromContext(ctx),
		Success:   rec.success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(rec.err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func reason(r string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"reason": r}
	}
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrLoginRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrInvalidAccount),
		errors.Is(err, ErrInvalidRole),
		errors.Is(err, ErrSelfDeactivation):
		return auditErrInvalidRequest
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
