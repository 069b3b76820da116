// Package relay delivers broadcasts published by other gateway instances
// to the connections held by this one.
package relay

import (
	"context"
	"time"

	pkglog "github.com/weiawesome/wes-io-dm/pkg/log"
	"github.com/weiawesome/wes-io-dm/pkg/pubsub"
)

// Fanout is the local delivery side, satisfied by *hub.Hub.
type Fanout interface {
	BroadcastToRoom(roomID string, data []byte, exclude string)
	BroadcastToAll(data []byte, exclude string)
}

// Subscriber listens on every to_gateway channel and skips events this
// instance published itself.
type Subscriber struct {
	ps         pubsub.Subscriber
	fanout     Fanout
	instanceID string
	retryDelay time.Duration
	doneCh     chan struct{}
}

func NewSubscriber(ps pubsub.Subscriber, fanout Fanout, instanceID string) *Subscriber {
	return &Subscriber{
		ps:         ps,
		fanout:     fanout,
		instanceID: instanceID,
		retryDelay: 2 * time.Second,
		doneCh:     make(chan struct{}),
	}
}

// Done returns a channel that is closed when Run() exits.
func (s *Subscriber) Done() <-chan struct{} { return s.doneCh }

// Run subscribes and delivers until ctx is done, resubscribing when the
// subscription ends early.
func (s *Subscriber) Run(ctx context.Context) {
	defer close(s.doneCh)
	l := pkglog.L()

	for {
		err := s.runSubscription(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.Warn().Err(err).Dur("retry_in", s.retryDelay).Msg("relay subscription error, resubscribing")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retryDelay):
		}
	}
}

func (s *Subscriber) runSubscription(ctx context.Context) error {
	events, err := s.ps.SubscribePattern(ctx, pubsub.PatternChatToGateway)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.handle(ev)
		}
	}
}

func (s *Subscriber) handle(ev *pubsub.Event) {
	if ev == nil || ev.Origin == s.instanceID {
		return
	}
	switch ev.Type {
	case pubsub.EventRoomBroadcast:
		if ev.RoomID != "" {
			s.fanout.BroadcastToRoom(ev.RoomID, ev.Payload, "")
		}
	case pubsub.EventPresenceBroadcast:
		s.fanout.BroadcastToAll(ev.Payload, "")
	default:
		l := pkglog.L()
		l.Debug().Str("type", ev.Type).Msg("relay ignored unknown event")
	}
}
