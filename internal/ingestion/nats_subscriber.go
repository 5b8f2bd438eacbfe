package ingestion

import (
	"RailLedger/internal/observability"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// StreamName holds every decoded payments-contract event.
const StreamName = "RAIL_EVENTS"

// DefaultConsumerName is the durable consumer the reducer reads through.
const DefaultConsumerName = "railledger-reducer"

// NATSSubscriber feeds JetStream messages into the reducer via eventChan.
// A single durable consumer with one message in flight keeps the stream
// order, which the reducer depends on.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumer  jetstream.ConsumeContext
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// RawEvent is the parsed-but-untyped event from NATS, ready for the shell
// to validate and convert into a typed event.Event.
type RawEvent struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // Call to ACK the NATS message after the event is durable
	NakFunc   func() // Call to NAK on failure (will be redelivered)
}

// ConsumerName returns the durable name to consume with. A resync gets a
// fresh consumer so the stream is delivered again from the start.
func ConsumerName(resync bool) string {
	if !resync {
		return DefaultConsumerName
	}
	return fmt.Sprintf("%s-%s", DefaultConsumerName, uuid.NewString()[:8])
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent, logger zerolog.Logger, metrics *observability.Metrics) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
		logger:    logger,
		metrics:   metrics,
	}
}

// Subscribe creates the durable consumer and starts delivering.
// Consumers use explicit ACK, unlimited redelivery, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, consumerName string) error {
	consumer, err := ns.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       consumerName,
		FilterSubject: SubjectPrefix + ".>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    -1,
		MaxAckPending: 1,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	consumeContext, err := consumer.Consume(func(msg jetstream.Msg) {
		raw := RawEvent{
			Subject:   msg.Subject(),
			Data:      msg.Data(),
			Timestamp: time.Now(),
			AckFunc:   func() { ns.settle(msg.Ack(), "ack") },
			NakFunc:   func() { ns.settle(msg.Nak(), "nak") },
		}
		if md, err := msg.Metadata(); err == nil && ns.metrics != nil {
			ns.metrics.SourceLag.WithLabelValues("nats").Set(float64(md.NumPending))
		}

		select {
		case ns.eventChan <- raw:
			// Queued for the reducer
		case <-ctx.Done():
			ns.settle(msg.Nak(), "nak")
		}
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", consumerName, err)
	}

	ns.consumer = consumeContext
	ns.logger.Info().Str("stream", StreamName).Str("consumer", consumerName).Msg("subscribed")
	return nil
}

func (ns *NATSSubscriber) settle(err error, result string) {
	if err != nil {
		ns.logger.Warn().Err(err).Str("result", result).Msg("settle message failed")
		result = "settle_error"
	}
	if ns.metrics != nil {
		ns.metrics.NATSMessages.WithLabelValues(result).Inc()
	}
}

// EnsureStream creates the event stream if it doesn't exist.
// The stream keeps everything: a resync replays it from the first message.
func EnsureStream(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	cfg := jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{SubjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		Duplicates: 24 * time.Hour,
		Replicas:   1,
	}
	if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
		return fmt.Errorf("create stream %s: %w", cfg.Name, err)
	}
	logger.Info().Str("stream", cfg.Name).Msg("ensured stream")
	return nil
}

// Stop gracefully stops the consumer.
func (ns *NATSSubscriber) Stop() {
	if ns.consumer != nil {
		ns.consumer.Stop()
	}
	ns.logger.Info().Msg("NATS subscriber stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("railledger"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
