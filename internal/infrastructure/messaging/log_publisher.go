// Package messaging holds event publishers that do not need a broker.
package messaging

import (
	"context"

	"go.uber.org/zap"

	"flock-backend/internal/domain/events"
)

// LogPublisher writes events to the log. It is used when no event bus is
// configured.
type LogPublisher struct {
	logger *zap.Logger
}

var _ events.Publisher = (*LogPublisher)(nil)

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, domainEvents ...events.DomainEvent) error {
	for _, e := range domainEvents {
		p.logger.Info("Domain event",
			zap.String("eventType", e.GetEventType()),
			zap.String("aggregateId", e.GetAggregateID()),
			zap.Int("version", e.GetVersion()),
			zap.Time("timestamp", e.GetTimestamp()),
		)
	}
	return nil
}
