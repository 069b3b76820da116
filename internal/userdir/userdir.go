// Package userdir resolves the display fields of chat participants.
package userdir

import (
	"context"
	"time"

	"github.com/weiawesome/wes-io-dm/internal/presence"
)

// Profile is what a conversation view shows about a participant.
type Profile struct {
	ID         string    `json:"id"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	PhotoURL   string    `json:"photoUrl"`
	IsOnline   bool      `json:"isOnline"`
	LastActive time.Time `json:"lastActive,omitempty"`
}

// Directory resolves profiles by id. Unknown ids are absent from the
// result rather than an error.
type Directory interface {
	Resolve(ctx context.Context, ids ...string) (map[string]Profile, error)
}

// Source loads the static part of profiles.
type Source interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]Profile, error)
}

// PresenceReader is satisfied by *presence.Tracker.
type PresenceReader interface {
	Get(ctx context.Context, userID string) (presence.Record, error)
}
