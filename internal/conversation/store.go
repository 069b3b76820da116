package conversation

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/weiawesome/wes-io-dm/internal/chaterr"
	"github.com/weiawesome/wes-io-dm/internal/roomid"
)

// DefaultMaxTextLength bounds a message body in runes.
const DefaultMaxTextLength = 4000

// Store is the durable home of conversations. Every mutation is a single
// atomic unit on the backing engine; no method performs a read-modify-write
// of mutable fields from the application side.
type Store interface {
	// FindOrCreate returns the conversation for the unordered pair {a, b},
	// creating it with an empty log and zeroed counters if absent.
	// Concurrent calls for one pair yield one conversation.
	FindOrCreate(ctx context.Context, a, b string) (*Conversation, error)

	// AppendMessage appends an unseen message and increments the other
	// participant's unread counter in the same atomic step. The returned
	// conversation carries the post-append counters but no message log.
	AppendMessage(ctx context.Context, conversationID, senderID, text string) (*Message, *Conversation, error)

	// MarkSeen flags every unseen message sent by counterpartID and zeroes
	// viewerID's counter in one atomic step, then returns the refreshed
	// conversation. Repeating it changes nothing.
	MarkSeen(ctx context.Context, conversationID, viewerID, counterpartID string) (*Conversation, error)

	// ListForUser returns every conversation of userID, most recently
	// active first.
	ListForUser(ctx context.Context, userID string) ([]*Conversation, error)

	// MarkAllSeen flags every message addressed to userID as seen across
	// all of their conversations and returns how many flipped.
	MarkAllSeen(ctx context.Context, userID string) (int64, error)
}

// ValidatePair rejects empty ids, reserved characters and self-pairs.
func ValidatePair(a, b string) error {
	if _, err := roomid.Compute(a, b); err != nil {
		return err
	}
	if a == b {
		return chaterr.Validation("a conversation needs two distinct participants")
	}
	return nil
}

// ValidateText rejects blank or oversized message bodies.
func ValidateText(text string, maxLen int) error {
	if strings.TrimSpace(text) == "" {
		return chaterr.Validation("message text must not be empty")
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxTextLength
	}
	if n := utf8.RuneCountInString(text); n > maxLen {
		return chaterr.Validation("message text has %d characters, limit is %d", n, maxLen)
	}
	return nil
}

func validateID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return chaterr.Validation("%s must not be empty", kind)
	}
	return nil
}

// ErrNotParticipant rejects a mutation naming a user outside the
// conversation.
var ErrNotParticipant = chaterr.Validation("user is not a participant of this conversation")
