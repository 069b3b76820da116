package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-dm/internal/chaterr"
)

type failingStore struct{}

func (failingStore) Set(context.Context, string, Record) error {
	return chaterr.StoreUnavailable("set presence", errors.New("down"))
}

func (failingStore) Get(context.Context, string) (Record, error) {
	return Record{}, nil
}

func newTestTracker(store Store) *Tracker {
	tr := NewTracker(store)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	tr.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return tr
}

func TestTracker_OnlineThenOfflineInOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tr := newTestTracker(store)

	events, unsubscribe := tr.Subscribe(8)
	defer unsubscribe()

	on, err := tr.SetOnline(ctx, "u1")
	require.NoError(t, err)
	off, err := tr.SetOffline(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, on, <-events)
	assert.Equal(t, off, <-events)
	assert.True(t, on.IsOnline)
	assert.False(t, off.IsOnline)

	rec, err := tr.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, rec.IsOnline)
	assert.Equal(t, off.At, rec.LastActive)
}

func TestTracker_FlappingIsNotCoalesced(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(NewMemoryStore())

	events, unsubscribe := tr.Subscribe(16)
	defer unsubscribe()

	want := []bool{true, false, true, false, true}
	for _, online := range want {
		var err error
		if online {
			_, err = tr.SetOnline(ctx, "u1")
		} else {
			_, err = tr.SetOffline(ctx, "u1")
		}
		require.NoError(t, err)
	}

	for i, online := range want {
		ev := <-events
		assert.Equal(t, online, ev.IsOnline, "event %d", i)
	}
}

func TestTracker_FanOutToEverySubscriber(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(NewMemoryStore())

	a, unsubA := tr.Subscribe(1)
	defer unsubA()
	b, unsubB := tr.Subscribe(1)
	defer unsubB()

	ev, err := tr.SetOnline(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ev, <-a)
	assert.Equal(t, ev, <-b)
}

func TestTracker_UnsubscribedListenerDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(NewMemoryStore())

	_, unsubscribe := tr.Subscribe(0)
	unsubscribe()
	unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = tr.SetOnline(ctx, "u1")
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SetOnline blocked on an unsubscribed listener")
	}
}

func TestTracker_StoreFailureEmitsNothing(t *testing.T) {
	tr := newTestTracker(failingStore{})

	events, unsubscribe := tr.Subscribe(1)
	defer unsubscribe()

	_, err := tr.SetOnline(context.Background(), "u1")
	assert.ErrorIs(t, err, chaterr.ErrStoreUnavailable)
	assert.Empty(t, events)
}

func TestTracker_RejectsEmptyUser(t *testing.T) {
	tr := newTestTracker(NewMemoryStore())

	_, err := tr.SetOnline(context.Background(), "")
	assert.ErrorIs(t, err, chaterr.ErrValidation)
	_, err = tr.Get(context.Background(), "")
	assert.ErrorIs(t, err, chaterr.ErrValidation)
}
