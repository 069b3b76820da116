package service

import (
	"context"

	"github.com/weiawesome/wes-io-dm/conversation-service/internal/domain"
	"github.com/weiawesome/wes-io-dm/internal/conversation"
	"github.com/weiawesome/wes-io-dm/internal/userdir"
	pkglog "github.com/weiawesome/wes-io-dm/pkg/log"
)

type queryService struct {
	store     conversation.Store
	directory userdir.Directory
}

// NewQueryService creates the query service. directory may be nil, in
// which case participants carry ids only.
func NewQueryService(store conversation.Store, directory userdir.Directory) QueryService {
	return &queryService{store: store, directory: directory}
}

func (s *queryService) GetConversation(ctx context.Context, userID, targetUserID string) (*domain.ConversationView, error) {
	conv, err := s.store.FindOrCreate(ctx, userID, targetUserID)
	if err != nil {
		return nil, err
	}
	ctx = pkglog.WithStr(ctx, pkglog.FieldConversationID, conv.ID)

	conv, err = s.store.MarkSeen(ctx, conv.ID, userID, targetUserID)
	if err != nil {
		return nil, err
	}

	profiles := s.resolve(ctx, conv.Participants[0], conv.Participants[1])
	view := &domain.ConversationView{
		ID:           conv.ID,
		RoomID:       conv.RoomID(),
		Participants: make([]domain.Participant, 0, 2),
		Messages:     conv.Messages,
		UnreadCount:  conv.Unread.Map(),
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
	}
	if view.Messages == nil {
		view.Messages = []conversation.Message{}
	}
	for _, id := range conv.Participants {
		view.Participants = append(view.Participants, participant(id, profiles))
	}
	return view, nil
}

func (s *queryService) ListConversations(ctx context.Context, userID string) ([]*domain.ConversationSummary, error) {
	convs, err := s.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	counterparts := make([]string, 0, len(convs))
	for _, c := range convs {
		if other, ok := c.Counterpart(userID); ok {
			counterparts = append(counterparts, other)
		}
	}
	profiles := s.resolve(ctx, counterparts...)

	out := make([]*domain.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		other, _ := c.Counterpart(userID)
		out = append(out, &domain.ConversationSummary{
			ID:          c.ID,
			RoomID:      c.RoomID(),
			Counterpart: participant(other, profiles),
			LastMessage: c.LastMessage(),
			UnreadCount: c.Unread.For(userID),
			UpdatedAt:   c.UpdatedAt,
		})
	}
	return out, nil
}

func (s *queryService) MarkAllSeen(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.MarkAllSeen(ctx, userID)
	if err != nil {
		return 0, err
	}
	l := pkglog.Ctx(ctx)
	l.Info().Int64("updated", n).Msg("marked all messages seen")
	return n, nil
}

// resolve looks up display fields. A directory failure degrades the
// response to bare ids rather than failing it.
func (s *queryService) resolve(ctx context.Context, ids ...string) map[string]userdir.Profile {
	if s.directory == nil || len(ids) == 0 {
		return nil
	}
	profiles, err := s.directory.Resolve(ctx, ids...)
	if err != nil {
		l := pkglog.Ctx(ctx)
		l.Warn().Err(err).Int("count", len(ids)).Msg("profile lookup failed")
		return nil
	}
	return profiles
}

func participant(id string, profiles map[string]userdir.Profile) domain.Participant {
	p, ok := profiles[id]
	if !ok {
		return domain.Participant{ID: id}
	}
	return domain.Participant{
		ID:         id,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		PhotoURL:   p.PhotoURL,
		IsOnline:   p.IsOnline,
		LastActive: p.LastActive,
	}
}
