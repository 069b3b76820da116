package kafka

import (
	"context"

	"github.com/weiawesome/wes-io-dm/chat-service/internal/domain"
)

// EventProducer publishes committed chat mutations.
type EventProducer interface {
	ProduceEvent(ctx context.Context, ev *domain.ChatEvent) error
	Close() error
}

// NoopProducer is used when no brokers are configured.
type NoopProducer struct{}

func (NoopProducer) ProduceEvent(context.Context, *domain.ChatEvent) error { return nil }

func (NoopProducer) Close() error { return nil }
