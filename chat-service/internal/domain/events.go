package domain

import "time"

// Chat event types on the dm-events stream.
const (
	ChatEventMessageAppended = "message_appended"
	ChatEventMessagesSeen    = "messages_seen"
)

// ChatEvent records one committed conversation mutation for downstream
// consumers. It is keyed by RoomID.
type ChatEvent struct {
	Type           string           `json:"type"`
	ConversationID string           `json:"conversation_id"`
	RoomID         string           `json:"room_id"`
	UserID         string           `json:"user_id"`
	TargetUserID   string           `json:"target_user_id"`
	MessageID      string           `json:"message_id,omitempty"`
	Text           string           `json:"text,omitempty"`
	UnreadCount    map[string]int64 `json:"unread_count"`
	OccurredAt     time.Time        `json:"occurred_at"`
}
