// Package eventbridge publishes domain events to an AWS EventBridge bus.
package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"flock-backend/internal/domain/events"
)

// EventBridge accepts at most 10 entries per PutEvents call.
const batchSize = 10

// API is the subset of the EventBridge client used by Publisher.
type API interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Publisher implements events.Publisher using AWS EventBridge.
type Publisher struct {
	client     API
	busName    string
	source     string
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

var _ events.Publisher = (*Publisher)(nil)

// NewPublisher creates a new EventBridge publisher
func NewPublisher(client API, busName, source string, logger *zap.Logger) *Publisher {
	if busName == "" {
		busName = "default"
	}
	if source == "" {
		source = "flock.prayers"
	}
	return &Publisher{
		client:     client,
		busName:    busName,
		source:     source,
		maxRetries: 3,
		backoff:    100 * time.Millisecond,
		logger:     logger,
	}
}

// Publish sends events in batches. Entries EventBridge rejects are retried
// with exponential backoff; the first batch that still has failures after
// the last attempt stops publishing.
func (p *Publisher) Publish(ctx context.Context, domainEvents ...events.DomainEvent) error {
	for i := 0; i < len(domainEvents); i += batchSize {
		end := i + batchSize
		if end > len(domainEvents) {
			end = len(domainEvents)
		}
		if err := p.publishWithRetry(ctx, domainEvents[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) publishWithRetry(ctx context.Context, batch []events.DomainEvent) error {
	entries, err := p.entries(batch)
	if err != nil {
		return err
	}

	backoff := p.backoff
	for attempt := 1; ; attempt++ {
		entries, err = p.put(ctx, entries)
		if err == nil || attempt >= p.maxRetries {
			return err
		}

		p.logger.Warn("Retrying event publication",
			zap.Int("attempt", attempt),
			zap.Int("pending", len(entries)),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Publisher) entries(batch []events.DomainEvent) ([]types.PutEventsRequestEntry, error) {
	entries := make([]types.PutEventsRequestEntry, 0, len(batch))
	for _, event := range batch {
		detail, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s event: %w", event.GetEventType(), err)
		}
		entries = append(entries, types.PutEventsRequestEntry{
			EventBusName: aws.String(p.busName),
			Source:       aws.String(p.source),
			DetailType:   aws.String(event.GetEventType()),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(event.GetTimestamp()),
			Resources:    []string{"flock:" + event.GetAggregateID()},
		})
	}
	return entries, nil
}

// put sends entries and returns those EventBridge rejected.
func (p *Publisher) put(ctx context.Context, entries []types.PutEventsRequestEntry) ([]types.PutEventsRequestEntry, error) {
	out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return entries, fmt.Errorf("failed to publish events to EventBridge: %w", err)
	}
	if out.FailedEntryCount == 0 {
		p.logger.Debug("Events published to EventBridge",
			zap.Int("count", len(entries)),
			zap.String("eventBus", p.busName),
		)
		return nil, nil
	}

	var failed []types.PutEventsRequestEntry
	for i, result := range out.Entries {
		if result.ErrorCode == nil || i >= len(entries) {
			continue
		}
		p.logger.Error("Failed to publish event",
			zap.String("eventType", aws.ToString(entries[i].DetailType)),
			zap.String("errorCode", aws.ToString(result.ErrorCode)),
			zap.String("errorMessage", aws.ToString(result.ErrorMessage)),
		)
		failed = append(failed, entries[i])
	}
	return failed, fmt.Errorf("%d events failed to publish", out.FailedEntryCount)
}
