package domain

import "time"

// WebSocket intents from client.
const (
	MsgTypeJoinChat    = "joinChat"
	MsgTypeSendMessage = "sendMessage"
	MsgTypeMarkAsSeen  = "markAsSeen"
	MsgTypeTyping      = "typing"
	MsgTypeUserOnline  = "userOnline"
	MsgTypeUserOffline = "userOffline"
	MsgTypePing        = "ping"
)

// WebSocket events to client.
const (
	MsgTypeConnected         = "connected"
	MsgTypeChatJoined        = "chatJoined"
	MsgTypeMessageReceived   = "messageReceived"
	MsgTypeUnreadCountUpdate = "unreadCountUpdate"
	MsgTypeMessagesSeen      = "messagesSeen"
	MsgTypeTypingStatus      = "typingStatus"
	MsgTypeUserStatusChanged = "userStatusChanged"
	MsgTypeError             = "error"
	MsgTypePong              = "pong"
)

// Error codes
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages. UserID is optional; when present it must
// equal the handshake identity.

type JoinChatMessage struct {
	Type         string `json:"type"`
	UserID       string `json:"userId,omitempty"`
	TargetUserID string `json:"targetUserId"`
}

type SendMessageMessage struct {
	Type         string `json:"type"`
	UserID       string `json:"userId,omitempty"`
	TargetUserID string `json:"targetUserId"`
	Text         string `json:"text"`
	TempID       string `json:"tempId,omitempty"`
}

type MarkAsSeenMessage struct {
	Type         string `json:"type"`
	UserID       string `json:"userId,omitempty"`
	TargetUserID string `json:"targetUserId"`
}

type TypingMessage struct {
	Type         string `json:"type"`
	UserID       string `json:"userId,omitempty"`
	TargetUserID string `json:"targetUserId"`
	IsTyping     bool   `json:"isTyping"`
}

type PresenceMessage struct {
	Type   string `json:"type"`
	UserID string `json:"userId,omitempty"`
}

// Server -> Client messages

type ConnectedMessage struct {
	Type   string `json:"type"`
	ConnID string `json:"connId"`
	UserID string `json:"userId"`
}

type ChatJoinedMessage struct {
	Type         string `json:"type"`
	RoomID       string `json:"roomId"`
	TargetUserID string `json:"targetUserId"`
}

type MessageReceivedMessage struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	SenderID       string    `json:"senderId"`
	FirstName      string    `json:"firstName,omitempty"`
	LastName       string    `json:"lastName,omitempty"`
	Text           string    `json:"text"`
	Seen           bool      `json:"seen"`
	Timestamp      time.Time `json:"timestamp"`
	TempID         string    `json:"tempId,omitempty"`
}

type UnreadCountUpdateMessage struct {
	Type           string           `json:"type"`
	ConversationID string           `json:"conversationId"`
	UnreadCount    map[string]int64 `json:"unreadCount"`
}

type MessagesSeenMessage struct {
	Type           string           `json:"type"`
	ConversationID string           `json:"conversationId"`
	UserID         string           `json:"userId"`
	UnreadCount    map[string]int64 `json:"unreadCount"`
}

type TypingStatusMessage struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type UserStatusChangedMessage struct {
	Type       string    `json:"type"`
	UserID     string    `json:"userId"`
	IsOnline   bool      `json:"isOnline"`
	LastActive time.Time `json:"lastActive"`
}

type PongMessage struct {
	Type string `json:"type"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}
