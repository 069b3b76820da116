package presence

import (
	"context"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-dm/internal/chaterr"
	pkglog "github.com/weiawesome/wes-io-dm/pkg/log"
)

type subscriber struct {
	ch   chan Event
	done chan struct{}
}

// Tracker applies online/offline transitions one at a time. Every
// subscriber sees the events in exactly the order the calls were applied.
type Tracker struct {
	store Store
	now   func() time.Time

	// mu serializes write+emit so emitted order equals applied order.
	mu sync.Mutex

	subsMu sync.RWMutex
	subs   map[int]*subscriber
	nextID int
}

// NewTracker creates a tracker over store.
func NewTracker(store Store) *Tracker {
	return &Tracker{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		subs:  make(map[int]*subscriber),
	}
}

// SetOnline marks userID online and refreshes its last-active time.
func (t *Tracker) SetOnline(ctx context.Context, userID string) (Event, error) {
	return t.set(ctx, userID, true)
}

// SetOffline marks userID offline and refreshes its last-active time.
func (t *Tracker) SetOffline(ctx context.Context, userID string) (Event, error) {
	return t.set(ctx, userID, false)
}

// Get returns the stored record of userID.
func (t *Tracker) Get(ctx context.Context, userID string) (Record, error) {
	if userID == "" {
		return Record{}, chaterr.Validation("user id must not be empty")
	}
	return t.store.Get(ctx, userID)
}

// Subscribe registers a listener. Delivery blocks on a full buffer, so a
// subscriber that stops reading must call the returned func. The channel
// is never closed.
func (t *Tracker) Subscribe(buffer int) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, buffer), done: make(chan struct{})}

	t.subsMu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = sub
	t.subsMu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			t.subsMu.Lock()
			delete(t.subs, id)
			t.subsMu.Unlock()
			close(sub.done)
		})
	}
}

func (t *Tracker) set(ctx context.Context, userID string, online bool) (Event, error) {
	if userID == "" {
		return Event{}, chaterr.Validation("user id must not be empty")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if err := t.store.Set(ctx, userID, Record{IsOnline: online, LastActive: now}); err != nil {
		return Event{}, err
	}

	ev := Event{UserID: userID, IsOnline: online, At: now}
	t.emit(ctx, ev)
	return ev, nil
}

func (t *Tracker) emit(ctx context.Context, ev Event) {
	t.subsMu.RLock()
	targets := make([]*subscriber, 0, len(t.subs))
	for _, s := range t.subs {
		targets = append(targets, s)
	}
	t.subsMu.RUnlock()

	for _, s := range targets {
		select {
		case s.ch <- ev:
		case <-s.done:
		case <-ctx.Done():
			l := pkglog.Ctx(ctx)
			l.Warn().
				Str(pkglog.FieldUserID, ev.UserID).
				Bool("is_online", ev.IsOnline).
				Msg("presence event not delivered, context done")
			return
		}
	}
}
