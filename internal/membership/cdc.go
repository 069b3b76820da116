package membership

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	pkglog "github.com/weiawesome/wes-io-dm/pkg/log"
)

// DebeziumConnectionRecord is a connection_requests row inside a Debezium
// change event.
type DebeziumConnectionRecord struct {
	ID         int64  `json:"id"`
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
	Status     string `json:"status"`
}

// DebeziumPayload is the payload field of a Debezium CDC message.
type DebeziumPayload struct {
	Before *DebeziumConnectionRecord `json:"before"`
	After  *DebeziumConnectionRecord `json:"after"`
	Op     string                    `json:"op"` // "c"=create, "u"=update, "d"=delete, "r"=snapshot
	TsMs   int64                     `json:"ts_ms"`
}

// DebeziumMessage is the top-level Debezium CDC message envelope.
type DebeziumMessage struct {
	Payload DebeziumPayload `json:"payload"`
}

// Invalidator drops cached answers for a pair.
type Invalidator interface {
	Invalidate(ctx context.Context, a, b string) error
}

// CacheInvalidationHandler evicts every pair touched by a change event.
type CacheInvalidationHandler struct {
	cache Invalidator
}

func NewCacheInvalidationHandler(cache Invalidator) *CacheInvalidationHandler {
	return &CacheInvalidationHandler{cache: cache}
}

func (h *CacheInvalidationHandler) HandleCDCEvent(ctx context.Context, event *DebeziumMessage) error {
	switch event.Payload.Op {
	case "c", "u", "d", "r":
	default:
		return nil
	}

	var errs []error
	seen := make(map[[2]string]bool, 2)
	for _, rec := range []*DebeziumConnectionRecord{event.Payload.Before, event.Payload.After} {
		if rec == nil || rec.FromUserID == "" || rec.ToUserID == "" {
			continue
		}
		pair := [2]string{rec.FromUserID, rec.ToUserID}
		if pair[1] < pair[0] {
			pair[0], pair[1] = pair[1], pair[0]
		}
		if seen[pair] {
			continue
		}
		seen[pair] = true
		if err := h.cache.Invalidate(ctx, pair[0], pair[1]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CDCConsumer feeds connection_requests change events from Kafka to a
// handler.
type CDCConsumer struct {
	consumer *kafka.Consumer
	topic    string
	handler  *CacheInvalidationHandler
	doneCh   chan struct{}
}

// NewCDCConsumer creates a new Kafka consumer for CDC events.
func NewCDCConsumer(brokers, topic, groupID string, handler *CacheInvalidationHandler) (*CDCConsumer, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  brokers,
		"group.id":           groupID,
		"auto.offset.reset":  "latest",
		"enable.auto.commit": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	return &CDCConsumer{
		consumer: c,
		topic:    topic,
		handler:  handler,
		doneCh:   make(chan struct{}),
	}, nil
}

// Start subscribes and consumes in the background until ctx is done.
func (cc *CDCConsumer) Start(ctx context.Context) error {
	if err := cc.consumer.Subscribe(cc.topic, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", cc.topic, err)
	}

	l := pkglog.L()
	l.Info().Str("topic", cc.topic).Msg("membership CDC consumer started")

	go cc.consumeLoop(ctx)
	return nil
}

func (cc *CDCConsumer) consumeLoop(ctx context.Context) {
	l := pkglog.L()
	defer close(cc.doneCh)

	for {
		select {
		case <-ctx.Done():
			l.Info().Msg("membership CDC consumer shutting down")
			return
		default:
			msg, err := cc.consumer.ReadMessage(100 * time.Millisecond)
			if err != nil {
				var kerr kafka.Error
				if errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut {
					continue
				}
				l.Error().Err(err).Msg("membership CDC consumer error")
				continue
			}

			cc.process(context.WithoutCancel(ctx), msg.Value)
		}
	}
}

func (cc *CDCConsumer) process(ctx context.Context, value []byte) {
	l := pkglog.L()

	// Tombstones follow deletes and carry no payload.
	if len(value) == 0 {
		return
	}

	var event DebeziumMessage
	if err := json.Unmarshal(value, &event); err != nil {
		l.Error().Err(err).Msg("failed to unmarshal debezium CDC event")
		return
	}

	if err := cc.handler.HandleCDCEvent(ctx, &event); err != nil {
		l.Error().Err(err).Str("op", event.Payload.Op).Msg("failed to invalidate membership cache")
	}
}

// Close waits for the consume loop to stop, then closes the consumer.
// Cancel the Start context first.
func (cc *CDCConsumer) Close() error {
	<-cc.doneCh
	if err := cc.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	return nil
}
