// Package presence tracks whether each user is online and when they were
// last active, and notifies subscribers of every transition.
package presence

import (
	"context"
	"time"
)

// Record is the current presence of one user. Only the latest write
// matters.
type Record struct {
	IsOnline   bool      `json:"isOnline"`
	LastActive time.Time `json:"lastActive"`
}

// Event reports one transition, in the order the tracker applied it.
type Event struct {
	UserID   string    `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	At       time.Time `json:"at"`
}

// Store persists presence records. Writes are last-writer-wins.
type Store interface {
	Set(ctx context.Context, userID string, rec Record) error
	// Get returns the zero Record for a user never seen.
	Get(ctx context.Context, userID string) (Record, error)
}
