package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
)

type memorySub struct {
	pattern bool
	ch      chan *Event
	ctx     context.Context
	stop    chan struct{}
	once    sync.Once
}

func (s *memorySub) close() {
	s.once.Do(func() { close(s.stop) })
}

// MemoryPubSub is an in-process PubSub for single-instance deployments
// and tests. Events are copied through JSON so subscribers never share
// payload memory with the publisher.
type MemoryPubSub struct {
	mu         sync.RWMutex
	subs       map[string]*memorySub
	bufferSize int
	closed     bool
}

// NewMemoryPubSub returns an empty in-process bus.
func NewMemoryPubSub(bufferSize int) *MemoryPubSub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &MemoryPubSub{subs: make(map[string]*memorySub), bufferSize: bufferSize}
}

// Publish delivers event to every matching subscription, blocking while a
// subscriber's buffer is full.
func (m *MemoryPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("pubsub closed")
	}
	targets := make([]*memorySub, 0, len(m.subs))
	for key, sub := range m.subs {
		if matches(key, sub.pattern, channel) {
			targets = append(targets, sub)
		}
	}
	m.mu.RUnlock()

	for _, sub := range targets {
		var copyEvt Event
		if err := json.Unmarshal(data, &copyEvt); err != nil {
			return err
		}
		select {
		case sub.ch <- &copyEvt:
		case <-sub.stop:
		case <-sub.ctx.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func matches(key string, pattern bool, channel string) bool {
	if !pattern {
		return key == channel
	}
	ok, err := path.Match(key, channel)
	return err == nil && ok
}

// Subscribe subscribes to a specific channel.
func (m *MemoryPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return m.add(ctx, channel, false)
}

// SubscribePattern subscribes with a glob pattern where * spans one segment.
func (m *MemoryPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return m.add(ctx, pattern, true)
}

func (m *MemoryPubSub) add(ctx context.Context, key string, pattern bool) (<-chan *Event, error) {
	sub := &memorySub{
		pattern: pattern,
		ch:      make(chan *Event, m.bufferSize),
		ctx:     ctx,
		stop:    make(chan struct{}),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("pubsub closed")
	}
	if old, ok := m.subs[key]; ok {
		old.close()
	}
	m.subs[key] = sub
	m.mu.Unlock()

	out := make(chan *Event, m.bufferSize)
	go func() {
		defer close(out)
		for {
			select {
			case evt := <-sub.ch:
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				case <-sub.stop:
					return
				}
			case <-ctx.Done():
				return
			case <-sub.stop:
				return
			}
		}
	}()
	return out, nil
}

// Unsubscribe unsubscribes from a channel or pattern.
func (m *MemoryPubSub) Unsubscribe(_ context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.subs[channel]; ok {
		sub.close()
		delete(m.subs, channel)
	}
	return nil
}

// Close removes every subscription.
func (m *MemoryPubSub) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, sub := range m.subs {
		sub.close()
		delete(m.subs, key)
	}
	m.closed = true
	return nil
}
