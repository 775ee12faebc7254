// Package lifecycle keeps standalone vectors exclusive: a prayer carries a
// vector only while it belongs to no topic, and a topic without a journey
// carries none.
package lifecycle

import (
	"context"
	"time"

	"go.uber.org/zap"

	"flock-backend/internal/domain/events"
	"flock-backend/internal/domain/prayer"
	"flock-backend/internal/domain/shared"
	apperrors "flock-backend/internal/errors"
	"flock-backend/internal/infrastructure/observability"
	"flock-backend/internal/repository"
)

// Reasons recorded on StandaloneVectorRemoved events and metrics.
const (
	ReasonRequested = "requested"
	ReasonLinked    = "linked"
	ReasonStale     = "stale"
	ReasonTombstone = "tombstone"
)

// HealReport summarizes a Heal scan.
type HealReport struct {
	PrayersScanned   int                `json:"prayersScanned"`
	TopicsScanned    int                `json:"topicsScanned"`
	VectorsCleared   []shared.EntityRef `json:"vectorsCleared"`
	TopicsTombstoned []string           `json:"topicsTombstoned"`
	Conflicts        int                `json:"conflicts"`
}

// Manager removes standalone vectors and repairs records left behind by an
// interrupted merge.
type Manager struct {
	store     repository.Store
	publisher events.Publisher
	logger    *zap.Logger
	metrics   *observability.Collector
	now       func() time.Time
}

// NewManager creates a new Manager
func NewManager(store repository.Store, publisher events.Publisher, logger *zap.Logger, metrics *observability.Collector) *Manager {
	return &Manager{
		store:     store,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// RemoveStandaloneVector clears the vector on ref. Calling it again is a
// no-op. A missing entity is NotFound.
func (m *Manager) RemoveStandaloneVector(ctx context.Context, authorID string, ref shared.EntityRef) error {
	if authorID == "" {
		return apperrors.NewUnauthenticated("")
	}
	if !ref.Kind.Valid() || ref.ID == "" {
		return apperrors.NewInvalidArgument("invalid-ref", "entity kind and id are required")
	}
	return m.remove(ctx, authorID, ref, ReasonRequested)
}

// Forget clears stale vectors reported by a candidate scan. Failures are
// logged; the next scan retries them.
func (m *Manager) Forget(ctx context.Context, authorID string, refs []shared.EntityRef) {
	for _, ref := range refs {
		if err := m.remove(ctx, authorID, ref, ReasonStale); err != nil {
			m.logger.Warn("Failed to clear stale vector",
				zap.String("authorID", authorID),
				zap.Stringer("ref", ref),
				zap.Error(err),
			)
		}
	}
}

func (m *Manager) remove(ctx context.Context, authorID string, ref shared.EntityRef, reason string) error {
	if err := m.store.RemoveVector(ctx, authorID, ref); err != nil {
		return err
	}
	m.metrics.ObserveVectorRemoved(reason)
	m.publish(ctx, events.NewStandaloneVectorRemoved(authorID, ref, reason, m.now().UTC()))
	return nil
}

// CheckExclusive reports whether p satisfies the vector exclusivity rule.
func CheckExclusive(p *prayer.Prayer) bool {
	return !p.HasStaleVector()
}

// Heal scans the author's records. Linked prayers lose any standalone
// vector, and topics with an empty journey are tombstoned. A topic that
// changes during the scan is skipped and counted as a conflict.
func (m *Manager) Heal(ctx context.Context, authorID string) (*HealReport, error) {
	if authorID == "" {
		return nil, apperrors.NewUnauthenticated("")
	}

	prayers, err := m.store.ListPrayers(ctx, authorID)
	if err != nil && !apperrors.IsNotFound(err) {
		return nil, apperrors.Wrap(err, "failed to list prayers")
	}
	topics, err := m.store.ListTopics(ctx, authorID)
	if err != nil && !apperrors.IsNotFound(err) {
		return nil, apperrors.Wrap(err, "failed to list topics")
	}

	report := &HealReport{PrayersScanned: len(prayers), TopicsScanned: len(topics)}

	for _, p := range prayers {
		if CheckExclusive(p) {
			continue
		}
		if err := m.remove(ctx, authorID, p.Ref(), ReasonStale); err != nil {
			if apperrors.IsNotFound(err) {
				continue
			}
			return report, err
		}
		report.VectorsCleared = append(report.VectorsCleared, p.Ref())
	}

	for _, t := range topics {
		if !t.Tombstoned() || (t.ContextText == nil && !t.HasVector()) {
			continue
		}
		hadVector := t.HasVector()
		expected := t.Version
		t.Tombstone()
		t.UpdatedAt = m.now().UTC()

		batch := repository.NewMergeBatch().UpdateTopic(authorID, t, expected)
		if err := m.store.CommitMerge(ctx, batch); err != nil {
			if apperrors.IsConflict(err) || apperrors.IsNotFound(err) {
				report.Conflicts++
				m.logger.Info("Skipped topic changed during heal",
					zap.String("topicID", t.ID),
					zap.Error(err),
				)
				continue
			}
			return report, err
		}
		report.TopicsTombstoned = append(report.TopicsTombstoned, t.ID)
		if hadVector {
			ref := shared.EntityRef{Kind: shared.KindTopic, ID: t.ID}
			m.metrics.ObserveVectorRemoved(ReasonTombstone)
			m.publish(ctx, events.NewStandaloneVectorRemoved(authorID, ref, ReasonTombstone, m.now().UTC()))
		}
	}

	m.logger.Info("Heal scan completed",
		zap.String("authorID", authorID),
		zap.Int("vectorsCleared", len(report.VectorsCleared)),
		zap.Int("topicsTombstoned", len(report.TopicsTombstoned)),
		zap.Int("conflicts", report.Conflicts),
	)
	return report, nil
}

func (m *Manager) publish(ctx context.Context, evts ...events.DomainEvent) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(ctx, evts...); err != nil {
		m.logger.Warn("Failed to publish events", zap.Error(err))
	}
}
