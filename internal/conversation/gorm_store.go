package conversation

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-io-dm/internal/chaterr"
	"github.com/weiawesome/wes-io-dm/internal/idgen"
)

// ConversationModel is the SQL row of a conversation. UserA < UserB always
// holds, and the pair is unique.
type ConversationModel struct {
	ID        string    `gorm:"primaryKey;size:64"`
	UserA     string    `gorm:"size:128;not null;uniqueIndex:uidx_conversations_pair,priority:1"`
	UserB     string    `gorm:"size:128;not null;uniqueIndex:uidx_conversations_pair,priority:2;index"`
	UnreadA   int64     `gorm:"not null;default:0"`
	UnreadB   int64     `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;index"`
}

func (ConversationModel) TableName() string { return "conversations" }

// MessageModel is one message row. Seq gives the log order.
type MessageModel struct {
	Seq            int64     `gorm:"primaryKey;autoIncrement"`
	ID             string    `gorm:"size:64;not null;uniqueIndex"`
	ConversationID string    `gorm:"size:64;not null;index:idx_messages_conv_sender_seen,priority:1"`
	SenderID       string    `gorm:"size:128;not null;index:idx_messages_conv_sender_seen,priority:2"`
	Text           string    `gorm:"type:text;not null"`
	Seen           bool      `gorm:"not null;index:idx_messages_conv_sender_seen,priority:3"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (MessageModel) TableName() string { return "messages" }

func (m *ConversationModel) participants() [2]string {
	return [2]string{m.UserA, m.UserB}
}

func (m *ConversationModel) toDomain(msgs []MessageModel) *Conversation {
	p := m.participants()
	c := &Conversation{
		ID:           m.ID,
		Participants: p,
		Unread:       NewUnreadCount(p, m.UnreadA, m.UnreadB),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if msgs != nil {
		c.Messages = make([]Message, 0, len(msgs))
		for _, mm := range msgs {
			c.Messages = append(c.Messages, mm.toDomain())
		}
	}
	return c
}

func (m MessageModel) toDomain() Message {
	return Message{ID: m.ID, SenderID: m.SenderID, Text: m.Text, Seen: m.Seen, Timestamp: m.CreatedAt}
}

var unreadColumns = [2]string{"unread_a", "unread_b"}

// GormStore implements Store on a relational database through GORM.
// Appends and seen sweeps each run in one transaction that first takes a
// row lock on the conversation, so the two serialize per conversation.
type GormStore struct {
	db            *gorm.DB
	ids           idgen.Generator
	maxTextLength int
	now           func() time.Time
}

// NewGormStore creates a GORM-backed store.
func NewGormStore(db *gorm.DB, ids idgen.Generator, maxTextLength int) *GormStore {
	return &GormStore{db: db, ids: ids, maxTextLength: maxTextLength, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate creates or updates the conversations and messages tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&ConversationModel{}, &MessageModel{})
}

func (s *GormStore) FindOrCreate(ctx context.Context, a, b string) (*Conversation, error) {
	if err := ValidatePair(a, b); err != nil {
		return nil, err
	}
	pair := canonicalPair(a, b)

	id, err := s.ids.Generate()
	if err != nil {
		return nil, err
	}
	now := s.now()
	row := ConversationModel{ID: id, UserA: pair[0], UserB: pair[1], CreatedAt: now, UpdatedAt: now}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_a"}, {Name: "user_b"}},
			DoNothing: true,
		}).
		Create(&row).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, storeErr("create conversation", err)
	}

	var existing ConversationModel
	if err := s.db.WithContext(ctx).
		Where("user_a = ? AND user_b = ?", pair[0], pair[1]).
		Take(&existing).Error; err != nil {
		return nil, storeErr("load conversation", err)
	}

	msgs, err := s.loadMessages(s.db.WithContext(ctx), existing.ID)
	if err != nil {
		return nil, err
	}
	return existing.toDomain(msgs), nil
}

func (s *GormStore) AppendMessage(ctx context.Context, conversationID, senderID, text string) (*Message, *Conversation, error) {
	if err := validateID("conversation id", conversationID); err != nil {
		return nil, nil, err
	}
	if err := validateID("sender id", senderID); err != nil {
		return nil, nil, err
	}
	if err := ValidateText(text, s.maxTextLength); err != nil {
		return nil, nil, err
	}

	msgID, err := s.ids.Generate()
	if err != nil {
		return nil, nil, err
	}

	var (
		msg  MessageModel
		conv ConversationModel
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockConversation(tx, conversationID, &conv); err != nil {
			return err
		}
		slot, ok := otherSlot(conv.participants(), senderID)
		if !ok {
			return ErrNotParticipant
		}

		now := s.now()
		col := unreadColumns[slot]
		if err := tx.Model(&ConversationModel{}).
			Where("id = ?", conversationID).
			UpdateColumns(map[string]any{
				col:          gorm.Expr(col + " + 1"),
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		msg = MessageModel{ID: msgID, ConversationID: conversationID, SenderID: senderID, Text: text, CreatedAt: now}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}

		return tx.Where("id = ?", conversationID).Take(&conv).Error
	})
	if err != nil {
		return nil, nil, storeErr("append message", err)
	}

	out := msg.toDomain()
	return &out, conv.toDomain(nil), nil
}

func (s *GormStore) MarkSeen(ctx context.Context, conversationID, viewerID, counterpartID string) (*Conversation, error) {
	if err := validateID("conversation id", conversationID); err != nil {
		return nil, err
	}

	var (
		conv ConversationModel
		msgs []MessageModel
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockConversation(tx, conversationID, &conv); err != nil {
			return err
		}
		p := conv.participants()
		slot, ok := slotOf(p, viewerID)
		if !ok || viewerID == counterpartID {
			return ErrNotParticipant
		}
		if _, ok := slotOf(p, counterpartID); !ok {
			return ErrNotParticipant
		}

		if err := tx.Model(&MessageModel{}).
			Where("conversation_id = ? AND sender_id = ? AND seen = ?", conversationID, counterpartID, false).
			UpdateColumn("seen", true).Error; err != nil {
			return err
		}
		if err := tx.Model(&ConversationModel{}).
			Where("id = ?", conversationID).
			UpdateColumn(unreadColumns[slot], 0).Error; err != nil {
			return err
		}

		if err := tx.Where("id = ?", conversationID).Take(&conv).Error; err != nil {
			return err
		}
		var err error
		msgs, err = s.loadMessages(tx, conversationID)
		return err
	})
	if err != nil {
		return nil, storeErr("mark seen", err)
	}
	return conv.toDomain(msgs), nil
}

func (s *GormStore) ListForUser(ctx context.Context, userID string) ([]*Conversation, error) {
	if err := validateID("user id", userID); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	var rows []ConversationModel
	if err := db.Where("user_a = ? OR user_b = ?", userID, userID).
		Order("updated_at DESC").Order("id").
		Find(&rows).Error; err != nil {
		return nil, storeErr("list conversations", err)
	}
	if len(rows) == 0 {
		return []*Conversation{}, nil
	}

	ids := make([]string, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	var msgs []MessageModel
	if err := db.Where("conversation_id IN ?", ids).Order("seq").Find(&msgs).Error; err != nil {
		return nil, storeErr("list messages", err)
	}
	byConv := make(map[string][]MessageModel, len(rows))
	for _, m := range msgs {
		byConv[m.ConversationID] = append(byConv[m.ConversationID], m)
	}

	out := make([]*Conversation, 0, len(rows))
	for i := range rows {
		entries := byConv[rows[i].ID]
		if entries == nil {
			entries = []MessageModel{}
		}
		out = append(out, rows[i].toDomain(entries))
	}
	return out, nil
}

func (s *GormStore) MarkAllSeen(ctx context.Context, userID string) (int64, error) {
	if err := validateID("user id", userID); err != nil {
		return 0, err
	}

	var flipped int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&ConversationModel{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_a = ? OR user_b = ?", userID, userID).
			Order("id").
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		res := tx.Model(&MessageModel{}).
			Where("conversation_id IN ? AND sender_id <> ? AND seen = ?", ids, userID, false).
			UpdateColumn("seen", true)
		if res.Error != nil {
			return res.Error
		}
		flipped = res.RowsAffected

		if err := tx.Model(&ConversationModel{}).Where("user_a = ?", userID).UpdateColumn("unread_a", 0).Error; err != nil {
			return err
		}
		return tx.Model(&ConversationModel{}).Where("user_b = ?", userID).UpdateColumn("unread_b", 0).Error
	})
	if err != nil {
		return 0, storeErr("mark all seen", err)
	}
	return flipped, nil
}

func (s *GormStore) loadMessages(db *gorm.DB, conversationID string) ([]MessageModel, error) {
	msgs := []MessageModel{}
	if err := db.Where("conversation_id = ?", conversationID).Order("seq").Find(&msgs).Error; err != nil {
		return nil, storeErr("load messages", err)
	}
	return msgs, nil
}

// lockConversation reads the row under SELECT ... FOR UPDATE. SQLite has
// no row locks; its single-writer transactions give the same ordering.
func lockConversation(tx *gorm.DB, id string, dst *ConversationModel) error {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(dst).Error
}

// storeErr maps driver errors onto the chat error kinds, leaving already
// classified errors untouched.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chaterr.ErrValidation), errors.Is(err, chaterr.ErrNotFound), errors.Is(err, chaterr.ErrStoreUnavailable):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return chaterr.NotFound("conversation")
	default:
		return chaterr.StoreUnavailable(op, err)
	}
}

var _ Store = (*GormStore)(nil)
