package domain

import (
	"time"

	"github.com/weiawesome/wes-io-dm/internal/conversation"
)

// Participant is a conversation member with display fields resolved.
type Participant struct {
	ID         string    `json:"id"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	PhotoURL   string    `json:"photoUrl,omitempty"`
	IsOnline   bool      `json:"isOnline"`
	LastActive time.Time `json:"lastActive,omitempty"`
}

// ConversationView is the full conversation returned to a participant.
type ConversationView struct {
	ID           string                 `json:"id"`
	RoomID       string                 `json:"roomId"`
	Participants []Participant          `json:"participants"`
	Messages     []conversation.Message `json:"messages"`
	UnreadCount  map[string]int64       `json:"unreadCount"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// ConversationSummary is one row of the caller's inbox.
type ConversationSummary struct {
	ID          string                `json:"id"`
	RoomID      string                `json:"roomId"`
	Counterpart Participant           `json:"counterpart"`
	LastMessage *conversation.Message `json:"lastMessage,omitempty"`
	UnreadCount int64                 `json:"unreadCount"`
	UpdatedAt   time.Time             `json:"updatedAt"`
}

type MarkAllSeenResponse struct {
	Updated int64 `json:"updated"`
}
