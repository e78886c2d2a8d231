package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gantryci/gantry/pkg/events"
)

const SourceEventsTopic = "gantry.source-events"

// watermillSourceEventBus implements SourceEventBus on any watermill
// publisher/subscriber pair, so the same bus runs on Kafka in production
// and on in-memory channels in development and tests.
type watermillSourceEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	handlers   []SourceEventHandler
	logger     *slog.Logger
}

func NewWatermillSourceEventBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) SourceEventBus {
	return &watermillSourceEventBus{
		publisher:  pub,
		subscriber: sub,
		handlers:   make([]SourceEventHandler, 0),
		logger:     logger.With("module", "source-event-bus"),
	}
}

// PublishSourceEvent publishes a validated source event to the source
// events topic.
func (b *watermillSourceEventBus) PublishSourceEvent(ctx context.Context, sourceEvent *events.SourceEvent) error {
	if err := sourceEvent.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(sourceEvent)
	if err != nil {
		b.logger.ErrorContext(ctx, "Failed to marshal source event", "error", err, "source_id", sourceEvent.SourceID)

		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, sourceEvent.SourceID) // Required for Kafka partitioning
	msg.Metadata.Set("source_id", sourceEvent.SourceID)
	msg.Metadata.Set("provider_id", sourceEvent.ProviderID)
	msg.Metadata.Set(events.EventTypeMetadataKey, sourceEvent.EventType)

	b.logger.DebugContext(ctx, "Publishing source event",
		"source_id", sourceEvent.SourceID,
		"provider_id", sourceEvent.ProviderID,
		"event_type", sourceEvent.EventType,
		"topic", SourceEventsTopic)

	return b.publisher.Publish(SourceEventsTopic, msg)
}

// HandleSourceEvents registers a handler for source events.
func (b *watermillSourceEventBus) HandleSourceEvents(handler SourceEventHandler) error {
	b.handlers = append(b.handlers, handler)

	return nil
}

// SubscribeToSourceEvents starts consuming source events.
func (b *watermillSourceEventBus) SubscribeToSourceEvents(ctx context.Context) error {
	if len(b.handlers) == 0 {
		b.logger.WarnContext(ctx, "No handlers registered for source events")

		return nil
	}

	messages, err := b.subscriber.Subscribe(ctx, SourceEventsTopic)
	if err != nil {
		b.logger.ErrorContext(ctx, "Failed to subscribe to source events topic", "error", err, "topic", SourceEventsTopic)

		return err
	}

	go func() {
		for msg := range messages {
			var sourceEvent events.SourceEvent
			if err := json.Unmarshal(msg.Payload, &sourceEvent); err != nil {
				b.logger.Error("Failed to unmarshal source event", "error", err, "message_id", msg.UUID)
				msg.Nack()

				continue
			}

			b.logger.Debug("Processing source event",
				"source_id", sourceEvent.SourceID,
				"provider_id", sourceEvent.ProviderID,
				"event_type", sourceEvent.EventType)

			success := true

			for _, handler := range b.handlers {
				if err := handler(ctx, &sourceEvent); err != nil {
					b.logger.Error("Source event handler failed",
						"error", err,
						"source_id", sourceEvent.SourceID,
						"event_type", sourceEvent.EventType)

					success = false
				}
			}

			if success {
				msg.Ack()
			} else {
				msg.Nack()
			}
		}
	}()

	return nil
}

func (b *watermillSourceEventBus) Close() error {
	err := b.publisher.Close()
	if err != nil {
		return err
	}

	return b.subscriber.Close()
}
