// Package queue implements the manual dispatch intake: a Redis Streams
// consumer group that turns queued dispatch requests into ManualDispatch
// source events.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gantryci/gantry/pkg/events"
	"github.com/gantryci/gantry/pkg/protocol"
)

const (
	defaultStream        = "gantry.dispatch"
	defaultConsumerGroup = "gantry-sources"

	readBlockTimeout = 1 * time.Second
	readBatchSize    = 10
	pingTimeout      = 5 * time.Second
)

// Provider consumes dispatch requests from a Redis stream. Each entry names
// a pipeline by slug or id and becomes one ManualDispatch source event.
// Entries are acknowledged only after their event is published, so a failed
// publish leaves the request pending for redelivery.
type Provider struct {
	stream        string
	consumerGroup string
	consumer      string
	connection    map[string]string

	client   redis.UniversalClient
	callback protocol.SourceEventCallback
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewProvider creates a queue provider from the given configuration.
func NewProvider(config map[string]any, logger *slog.Logger) (*Provider, error) {
	stream := defaultStream
	if value, exists := config["stream"]; exists {
		stream, _ = value.(string)
	}

	consumerGroup := defaultConsumerGroup
	if value, exists := config["consumer_group"]; exists {
		consumerGroup, _ = value.(string)
	}

	// Consumer names must be unique per instance or Redis delivers each
	// entry to only one of the clashing consumers.
	consumer, _ := config["consumer"].(string)
	if consumer == "" {
		consumer = "source-" + uuid.New().String()[:8]
	}

	connection := make(map[string]string)

	if connectionConfig, ok := config["connection"].(map[string]any); ok {
		for key, value := range connectionConfig {
			if str, ok := value.(string); ok {
				connection[key] = str
			}
		}
	}

	provider := &Provider{
		stream:        stream,
		consumerGroup: consumerGroup,
		consumer:      consumer,
		connection:    connection,
		stopCh:        make(chan struct{}),
		logger: logger.With(
			"module", "queue_provider",
			"stream", stream,
			"consumer_group", consumerGroup,
		),
	}

	if err := provider.Validate(); err != nil {
		return nil, err
	}

	return provider, nil
}

// Validate checks if the queue provider configuration is valid.
func (p *Provider) Validate() error {
	if p.stream == "" {
		return errors.New("queue provider stream name is required")
	}

	if p.consumerGroup == "" {
		return errors.New("queue provider consumer group is required")
	}

	return nil
}

// Start connects to Redis, ensures the consumer group exists and begins
// consuming dispatch requests.
func (p *Provider) Start(ctx context.Context, callback protocol.SourceEventCallback) error {
	p.logger.InfoContext(ctx, "Starting queue provider", "consumer", p.consumer)
	p.callback = callback

	if err := p.initializeClient(ctx); err != nil {
		return fmt.Errorf("failed to initialize queue client: %w", err)
	}

	if err := p.ensureConsumerGroup(ctx); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	p.wg.Add(1)

	go p.consume(ctx)

	return nil
}

// Stop gracefully shuts down the queue provider.
func (p *Provider) Stop(ctx context.Context) error {
	p.logger.InfoContext(ctx, "Stopping queue provider")

	close(p.stopCh)
	p.wg.Wait()

	if p.client != nil {
		if err := p.client.Close(); err != nil {
			return fmt.Errorf("failed to close queue client: %w", err)
		}
	}

	return nil
}

func (p *Provider) initializeClient(ctx context.Context) error {
	addr := p.connection["addr"]
	if addr == "" {
		addr = "localhost:6379"
	}

	p.client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: p.connection["password"],
		DB:       parseDB(p.connection["db"]),
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := p.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return nil
}

// ensureConsumerGroup creates the consumer group, starting from the
// beginning of the stream so requests queued before the first consumer
// came up are not lost.
func (p *Provider) ensureConsumerGroup(ctx context.Context) error {
	err := p.client.XGroupCreateMkStream(ctx, p.stream, p.consumerGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}

	return nil
}

func (p *Provider) consume(ctx context.Context) {
	defer p.wg.Done()

	p.logger.InfoContext(ctx, "Starting dispatch request consumer", "consumer", p.consumer)

	for {
		select {
		case <-p.stopCh:
			p.logger.InfoContext(ctx, "Dispatch request consumer stopped")

			return
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "Context cancelled, stopping dispatch request consumer")

			return
		default:
			if err := p.readMessages(ctx); err != nil {
				p.logger.ErrorContext(ctx, "Error reading dispatch requests", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (p *Provider) readMessages(ctx context.Context) error {
	streams, err := p.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    p.consumerGroup,
		Consumer: p.consumer,
		Streams:  []string{p.stream, ">"},
		Count:    readBatchSize,
		Block:    readBlockTimeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to read from stream %s: %w", p.stream, err)
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			p.handleMessage(ctx, message)
		}
	}

	return nil
}

// handleMessage turns one stream entry into a ManualDispatch source event
// and acknowledges it once the event is published.
func (p *Provider) handleMessage(ctx context.Context, message redis.XMessage) {
	logger := p.logger.With("message_id", message.ID)

	request := p.parseRequest(message)
	eventData := p.buildEventData(request, message.ID)

	if err := p.callback(ctx, p.sourceID(request), "queue", events.SourceEventManualDispatch, eventData); err != nil {
		logger.ErrorContext(ctx, "Failed to publish dispatch request", "error", err)

		return
	}

	if err := p.client.XAck(ctx, p.stream, p.consumerGroup, message.ID).Err(); err != nil {
		logger.ErrorContext(ctx, "Failed to acknowledge dispatch request", "error", err)

		return
	}

	logger.InfoContext(ctx, "Dispatch request accepted", "pipeline", eventData["pipeline"])
}

// parseRequest decodes the dispatch request carried by a stream entry. The
// payload field holds the request as JSON; entries without one are read as
// plain field-value pairs.
func (p *Provider) parseRequest(message redis.XMessage) map[string]any {
	if payload, ok := message.Values["payload"].(string); ok && payload != "" {
		var request map[string]any
		if err := json.Unmarshal([]byte(payload), &request); err == nil {
			return request
		}

		p.logger.Warn("Dispatch request payload is not valid JSON", "message_id", message.ID)
	}

	request := make(map[string]any, len(message.Values))
	for key, value := range message.Values {
		request[key] = value
	}

	return request
}

// sourceID resolves the source id the event is published under. Requests
// may pin an explicit source_id; everything else is addressed by stream
// name, which is what dispatch triggers bind to.
func (p *Provider) sourceID(request map[string]any) string {
	if explicit, ok := request["source_id"].(string); ok && explicit != "" {
		return explicit
	}

	return p.stream
}

func (p *Provider) buildEventData(request map[string]any, messageID string) map[string]any {
	eventData := make(map[string]any, len(request)+1)
	for key, value := range request {
		eventData[key] = value
	}

	eventData["queue"] = map[string]any{
		"stream":         p.stream,
		"consumer_group": p.consumerGroup,
		"message_id":     messageID,
		"received_at":    time.Now().UTC().Format(time.RFC3339),
	}

	return eventData
}

func parseDB(value string) int {
	if value == "" {
		return 0
	}

	db := 0
	if _, err := fmt.Sscanf(value, "%d", &db); err != nil {
		return 0
	}

	return db
}
