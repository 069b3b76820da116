package audit

import (
	"context"

	"github.com/weiawesome/wes-io-dm/pkg/log"
)

// Audit actions for chat-service.
const (
	ActionConnect     = "chat.connect"
	ActionDisconnect  = "chat.disconnect"
	ActionJoinChat    = "chat.join_chat"
	ActionSendMessage = "chat.send_message"
	ActionMarkSeen    = "chat.mark_seen"
	ActionTyping      = "chat.typing"
	ActionPresence    = "chat.presence"
	ActionAuthFailed  = "chat.auth_failed"
)

// Field constants for audit entries.
const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, userID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action string, userID string, detail string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldDetail, detail).
		Msg(msg)
}

// Dropped records an intent that was accepted but had no effect. The
// client is never told; this entry is the only trace.
func Dropped(ctx context.Context, action, userID, targetID, reason string, err error) {
	l := log.Ctx(ctx)
	e := l.Warn()
	if err != nil {
		e = l.Error().Err(err)
	}
	e.Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldTargetID, targetID).
		Str(log.FieldOutcome, "dropped").
		Str(log.FieldReason, reason).
		Msg("intent dropped")
}
