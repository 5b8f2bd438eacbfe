package ingestion

import (
	"RailLedger/internal/event"
	"RailLedger/internal/observability"
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// Publisher is the subset of jetstream.JetStream the relay needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Relay publishes decoded chain events to JetStream so any number of
// reducers can consume the same ordered stream.
// Subjects follow the pattern: railledger.events.{event_type}
type Relay struct {
	js      Publisher
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewRelay(js Publisher, logger zerolog.Logger, metrics *observability.Metrics) *Relay {
	return &Relay{js: js, logger: logger, metrics: metrics}
}

// Publish sends one event. The idempotency key is the JetStream message id,
// so a re-polled block range does not append duplicates inside the
// stream's dedup window.
func (r *Relay) Publish(ctx context.Context, evt event.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", evt.EventType(), err)
	}

	ack, err := r.js.Publish(ctx, Subject(evt.EventType()), data, jetstream.WithMsgID(evt.IdempotencyKey()))
	if err != nil {
		return fmt.Errorf("publish %s %s: %w", evt.EventType(), evt.IdempotencyKey(), err)
	}
	if ack != nil && ack.Duplicate {
		r.logger.Debug().Str("key", evt.IdempotencyKey()).Msg("relay: duplicate suppressed by stream")
		return nil
	}
	if r.metrics != nil {
		r.metrics.RelayPublished.WithLabelValues(evt.EventType().String()).Inc()
	}
	return nil
}
