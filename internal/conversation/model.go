// Package conversation owns the durable two-party conversation: its
// append-only message log, per-participant unread counters and the seen
// flags, together with the atomic mutations that keep them consistent.
package conversation

import (
	"encoding/json"
	"time"

	"github.com/weiawesome/wes-io-dm/internal/roomid"
)

// Message is one entry of a conversation log. Only Seen ever changes, and
// only from false to true.
type Message struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	Seen      bool      `json:"seen"`
	Timestamp time.Time `json:"timestamp"`
}

// UnreadCount holds one counter per participant, aligned with
// Conversation.Participants.
type UnreadCount struct {
	users  [2]string
	counts [2]int64
}

// NewUnreadCount builds the counters for a canonical participant pair.
func NewUnreadCount(participants [2]string, a, b int64) UnreadCount {
	return UnreadCount{users: participants, counts: [2]int64{a, b}}
}

// For returns the unread count of userID, or 0 for a non-participant.
func (u UnreadCount) For(userID string) int64 {
	if i, ok := u.slot(userID); ok {
		return u.counts[i]
	}
	return 0
}

// Map returns the wire form {userId: count}.
func (u UnreadCount) Map() map[string]int64 {
	out := make(map[string]int64, 2)
	for i, id := range u.users {
		if id != "" {
			out[id] = u.counts[i]
		}
	}
	return out
}

func (u UnreadCount) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.Map())
}

func (u UnreadCount) slot(userID string) (int, bool) {
	switch userID {
	case "":
		return 0, false
	case u.users[0]:
		return 0, true
	case u.users[1]:
		return 1, true
	}
	return 0, false
}

// Conversation is the whole history between exactly two users.
// Participants is stored in canonical (sorted) order and never changes.
type Conversation struct {
	ID           string      `json:"id"`
	Participants [2]string   `json:"participants"`
	Messages     []Message   `json:"messages"`
	Unread       UnreadCount `json:"unreadCount"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.Participants[0] == userID || c.Participants[1] == userID)
}

// Counterpart returns the participant that is not userID.
func (c *Conversation) Counterpart(userID string) (string, bool) {
	switch userID {
	case c.Participants[0]:
		return c.Participants[1], true
	case c.Participants[1]:
		return c.Participants[0], true
	}
	return "", false
}

// LastMessage returns the most recent message, or nil for an empty log.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// RoomID returns the channel token both participants join.
func (c *Conversation) RoomID() string {
	id, _ := roomid.Compute(c.Participants[0], c.Participants[1])
	return id
}

func canonicalPair(a, b string) [2]string {
	lo, hi := roomid.Canonical(a, b)
	return [2]string{lo, hi}
}

// otherSlot is the counter index of the participant that did not send.
func otherSlot(participants [2]string, senderID string) (int, bool) {
	switch senderID {
	case participants[0]:
		return 1, true
	case participants[1]:
		return 0, true
	}
	return 0, false
}

func slotOf(participants [2]string, userID string) (int, bool) {
	switch userID {
	case participants[0]:
		return 0, true
	case participants[1]:
		return 1, true
	}
	return 0, false
}
