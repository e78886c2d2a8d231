package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/gantryci/gantry/pkg/channels/gochannel"
	"github.com/gantryci/gantry/pkg/channels/kafka"
	"github.com/gantryci/gantry/pkg/eventbus"
)

// NewEventBus creates the run event bus for the given provider. The service
// name becomes the Kafka consumer group, so dispatcher and runner instances
// track offsets independently while runner replicas share one group.
func NewEventBus(provider, serviceName string, logger *slog.Logger) eventbus.EventBus {
	pub, sub := createChannel(provider, serviceName, logger)

	return eventbus.NewWatermillEventBus(pub, sub)
}

// NewSourceEventBus creates the source event bus for the given provider.
func NewSourceEventBus(provider, serviceName string, logger *slog.Logger) eventbus.SourceEventBus {
	pub, sub := createChannel(provider, serviceName, logger)

	return eventbus.NewWatermillSourceEventBus(pub, sub, logger)
}

func createChannel(provider, serviceName string, logger *slog.Logger) (message.Publisher, message.Subscriber) {
	watermillLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermillLogger, serviceName, kafkaBrokers())
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return pub, sub
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermillLogger)
		if err != nil {
			panic(fmt.Errorf("failed to create in-memory pub/sub: %w", err))
		}

		return pub, sub
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}

func kafkaBrokers() []string {
	return strings.Split(os.Getenv("KAFKA_BROKERS"), ",")
}
