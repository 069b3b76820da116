package service

import (
	"context"

	"github.com/weiawesome/wes-io-dm/conversation-service/internal/domain"
)

// QueryService is the request/response view of a user's conversations.
type QueryService interface {
	// GetConversation returns the conversation with target, creating it on
	// first view, and marks the target's messages as seen by userID.
	GetConversation(ctx context.Context, userID, targetUserID string) (*domain.ConversationView, error)
	ListConversations(ctx context.Context, userID string) ([]*domain.ConversationSummary, error)
	// MarkAllSeen marks every message addressed to userID as seen and
	// returns how many changed.
	MarkAllSeen(ctx context.Context, userID string) (int64, error)
}
