package auth

import (
	"context"

	otlpaudit "github.com/openkcm/common-sdk/pkg/otlp/audit"
	slogctx "github.com/veqryn/slog-context"
)

// sendUserLoginFailureAudit creates the user-login-failure audit event and sends it.
// Errors are logged, never returned.
func (e *Engine) sendUserLoginFailureAudit(ctx context.Context, metadata otlpaudit.EventMetadata, objectID, reason string) {
	if e.audit == nil {
		slogctx.Debug(ctx, "audit logger is nil; skipping user login failure event")
		return
	}

	event, err := otlpaudit.NewUserLoginFailureEvent(metadata, objectID, otlpaudit.LOGINMETHOD_OPENIDCONNECT, otlpaudit.FailReason(reason), objectID)
	if err != nil {
		slogctx.Error(ctx, "creating audit log", "error", err)
		return
	}

	if err := e.audit.SendEvent(ctx, event); err != nil {
		slogctx.Error(ctx, "Failed to send audit log for user login failure", "error", err)
	}
}

func (e *Engine) sendUserLoginSuccessAudit(ctx context.Context, metadata otlpaudit.EventMetadata, subject string) {
	if e.audit == nil {
		slogctx.Debug(ctx, "audit logger is nil; skipping user login success event")
		return
	}

	event, err := otlpaudit.NewUserLoginSuccessEvent(metadata, subject, otlpaudit.LOGINMETHOD_OPENIDCONNECT, otlpaudit.MFATYPE_NONE, otlpaudit.USERTYPE_BUSINESS, subject)
	if err != nil {
		slogctx.Error(ctx, "creating audit log", "error", err)
		return
	}

	if err := e.audit.SendEvent(ctx, event); err != nil {
		slogctx.Error(ctx, "Failed to send audit log for user login success", "error", err)
	}
}
