package membership

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-dm/internal/chaterr"
	"github.com/weiawesome/wes-io-dm/pkg/database"
)

func TestGormRepository_IsConnected(t *testing.T) {
	db, err := database.New(&database.Config{
		Driver:   "sqlite",
		FilePath: filepath.Join(t.TempDir(), "membership.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, &ConnectionRequestModel{}))

	require.NoError(t, db.Create(&[]ConnectionRequestModel{
		{FromUserID: "alice", ToUserID: "bob", Status: StatusAccepted},
		{FromUserID: "carol", ToUserID: "alice", Status: "pending"},
		{FromUserID: "dave", ToUserID: "alice", Status: StatusAccepted},
	}).Error)

	repo := NewGormRepository(db)
	ctx := context.Background()

	cases := []struct {
		a, b string
		want bool
	}{
		{"alice", "bob", true},
		{"bob", "alice", true},
		{"alice", "dave", true},
		{"alice", "carol", false},
		{"bob", "dave", false},
	}
	for _, tc := range cases {
		got, err := repo.IsConnected(ctx, tc.a, tc.b)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s-%s", tc.a, tc.b)
	}
}

type countingGuard struct {
	calls     atomic.Int32
	connected bool
	err       error
	gate      chan struct{}
}

func (g *countingGuard) IsConnected(context.Context, string, string) (bool, error) {
	g.calls.Add(1)
	if g.gate != nil {
		<-g.gate
	}
	return g.connected, g.err
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]bool
	getErr  error
	deleted []string
}

func newMemCache() *memCache { return &memCache{entries: map[string]bool{}} }

func (c *memCache) key(a, b string) string {
	k, _ := pairKey(a, b)
	return k
}

func (c *memCache) Get(_ context.Context, a, b string) (bool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return false, false, c.getErr
	}
	v, ok := c.entries[c.key(a, b)]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, a, b string, connected bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(a, b)] = connected
	return nil
}

func (c *memCache) Invalidate(_ context.Context, a, b string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, c.key(a, b))
	c.deleted = append(c.deleted, a+"|"+b)
	return nil
}

func TestCachedGuard_CachesBothOrders(t *testing.T) {
	src := &countingGuard{connected: true}
	g := NewCachedGuard(src, newMemCache())
	ctx := context.Background()

	ok, err := g.IsConnected(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = g.IsConnected(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.EqualValues(t, 1, src.calls.Load())
}

func TestCachedGuard_CachesDenials(t *testing.T) {
	src := &countingGuard{}
	g := NewCachedGuard(src, newMemCache())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := g.IsConnected(ctx, "alice", "bob")
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.EqualValues(t, 1, src.calls.Load())

	require.NoError(t, g.Invalidate(ctx, "bob", "alice"))
	src.connected = true
	ok, err := g.IsConnected(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestCachedGuard_CoalescesConcurrentMisses(t *testing.T) {
	src := &countingGuard{connected: true, gate: make(chan struct{})}
	g := NewCachedGuard(src, newMemCache())
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := g.IsConnected(ctx, "alice", "bob")
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	// Let the first lookup start before releasing it.
	require.Eventually(t, func() bool { return src.calls.Load() >= 1 }, time.Second, time.Millisecond)
	close(src.gate)
	wg.Wait()

	assert.LessOrEqual(t, src.calls.Load(), int32(n))
	assert.GreaterOrEqual(t, src.calls.Load(), int32(1))
}

func TestCachedGuard_CacheOutageFallsBackToSource(t *testing.T) {
	cache := newMemCache()
	cache.getErr = errors.New("redis down")
	src := &countingGuard{connected: true}
	g := NewCachedGuard(src, cache)

	ok, err := g.IsConnected(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCachedGuard_SourceErrorIsNotCached(t *testing.T) {
	src := &countingGuard{err: chaterr.StoreUnavailable("check connection", errors.New("db down"))}
	cache := newMemCache()
	g := NewCachedGuard(src, cache)

	_, err := g.IsConnected(context.Background(), "alice", "bob")
	assert.ErrorIs(t, err, chaterr.ErrStoreUnavailable)
	assert.Empty(t, cache.entries)
}

func TestCachedGuard_RejectsInvalidIDs(t *testing.T) {
	src := &countingGuard{connected: true}
	g := NewCachedGuard(src, newMemCache())

	_, err := g.IsConnected(context.Background(), "", "bob")
	assert.ErrorIs(t, err, chaterr.ErrValidation)
	assert.Zero(t, src.calls.Load())
}

func TestCacheInvalidationHandler(t *testing.T) {
	cache := newMemCache()
	h := NewCacheInvalidationHandler(cache)
	ctx := context.Background()

	err := h.HandleCDCEvent(ctx, &DebeziumMessage{Payload: DebeziumPayload{
		Op:     "u",
		Before: &DebeziumConnectionRecord{FromUserID: "bob", ToUserID: "alice", Status: "pending"},
		After:  &DebeziumConnectionRecord{FromUserID: "bob", ToUserID: "alice", Status: StatusAccepted},
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice|bob"}, cache.deleted)

	err = h.HandleCDCEvent(ctx, &DebeziumMessage{Payload: DebeziumPayload{
		Op:     "d",
		Before: &DebeziumConnectionRecord{FromUserID: "carol", ToUserID: "dave"},
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice|bob", "carol|dave"}, cache.deleted)

	err = h.HandleCDCEvent(ctx, &DebeziumMessage{Payload: DebeziumPayload{Op: "t"}})
	require.NoError(t, err)
	assert.Len(t, cache.deleted, 2)
}

func TestPairKeyIsSymmetric(t *testing.T) {
	ab, err := pairKey("alice", "bob")
	require.NoError(t, err)
	ba, err := pairKey("bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
	assert.Contains(t, ab, pairKeyPrefix)
}
