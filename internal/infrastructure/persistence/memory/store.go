// Package memory provides a process-local Store for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"flock-backend/internal/domain/prayer"
	"flock-backend/internal/domain/shared"
	"flock-backend/internal/domain/topic"
	apperrors "flock-backend/internal/errors"
	"flock-backend/internal/repository"
)

// WriteHook runs before each merge op is applied. Returning an error aborts
// the batch at that op, leaving earlier ops applied.
type WriteHook func(op repository.Op) error

// Store is an in-memory repository.Store. Merge batches are applied
// sequentially with no rollback, the same as the non-transactional
// DynamoDB path.
type Store struct {
	mu      sync.RWMutex
	prayers map[string]map[string]*prayer.Prayer
	topics  map[string]map[string]*topic.Topic
	hook    WriteHook
	applied []repository.Op
}

var _ repository.Store = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		prayers: make(map[string]map[string]*prayer.Prayer),
		topics:  make(map[string]map[string]*topic.Topic),
	}
}

// SetWriteHook installs a hook for merge ops.
func (s *Store) SetWriteHook(h WriteHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = h
}

// Applied returns the merge ops applied so far, in order.
func (s *Store) Applied() []repository.Op {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]repository.Op(nil), s.applied...)
}

// PutTopic stores a topic directly, bypassing version checks. Used for seeding.
func (s *Store) PutTopic(t *topic.Topic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topicsOf(t.AuthorID)[t.ID] = t.Clone()
}

func (s *Store) prayersOf(authorID string) map[string]*prayer.Prayer {
	m, ok := s.prayers[authorID]
	if !ok {
		m = make(map[string]*prayer.Prayer)
		s.prayers[authorID] = m
	}
	return m
}

func (s *Store) topicsOf(authorID string) map[string]*topic.Topic {
	m, ok := s.topics[authorID]
	if !ok {
		m = make(map[string]*topic.Topic)
		s.topics[authorID] = m
	}
	return m
}

func (s *Store) SavePrayer(ctx context.Context, p *prayer.Prayer) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewStorageError("save prayer", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prayersOf(p.AuthorID)[p.ID] = p.Clone()
	return nil
}

func (s *Store) GetPrayer(ctx context.Context, authorID, id string) (*prayer.Prayer, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStorageReadError("get prayer", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prayers[authorID][id]
	if !ok {
		return nil, apperrors.NewNotFound("prayer", id)
	}
	return p.Clone(), nil
}

func (s *Store) ListPrayers(ctx context.Context, authorID string) ([]*prayer.Prayer, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStorageReadError("list prayers", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*prayer.Prayer, 0, len(s.prayers[authorID]))
	for _, p := range s.prayers[authorID] {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) DeletePrayer(ctx context.Context, authorID, id string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewStorageError("delete prayer", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prayers[authorID][id]; !ok {
		return apperrors.NewNotFound("prayer", id)
	}
	delete(s.prayers[authorID], id)
	return nil
}

func (s *Store) SetPrayerVector(ctx context.Context, authorID, id string, v shared.Vector) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewStorageError("set prayer vector", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prayers[authorID][id]
	if !ok {
		return apperrors.NewNotFound("prayer", id)
	}
	if p.IsLinked() {
		return apperrors.NewConflict("prayer joined a topic before its vector was stored")
	}
	p.Vector = v.Clone()
	return nil
}

func (s *Store) GetTopic(ctx context.Context, authorID, id string) (*topic.Topic, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStorageReadError("get topic", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.topics[authorID][id]
	if !ok {
		return nil, apperrors.NewNotFound("topic", id)
	}
	return t.Clone(), nil
}

func (s *Store) ListTopics(ctx context.Context, authorID string) ([]*topic.Topic, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStorageReadError("list topics", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*topic.Topic, 0, len(s.topics[authorID]))
	for _, t := range s.topics[authorID] {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Store) RemoveVector(ctx context.Context, authorID string, ref shared.EntityRef) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewStorageError("remove vector", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeVectorLocked(authorID, ref)
}

func (s *Store) removeVectorLocked(authorID string, ref shared.EntityRef) error {
	switch ref.Kind {
	case shared.KindPrayer:
		p, ok := s.prayers[authorID][ref.ID]
		if !ok {
			return apperrors.NewNotFound("prayer", ref.ID)
		}
		p.Vector = nil
	case shared.KindTopic:
		t, ok := s.topics[authorID][ref.ID]
		if !ok {
			return apperrors.NewNotFound("topic", ref.ID)
		}
		t.Vector = nil
	default:
		return apperrors.NewInvalidArgument("invalid-kind", "unknown entity kind "+string(ref.Kind))
	}
	return nil
}

// CommitMerge applies ops in order and stops at the first failure.
func (s *Store) CommitMerge(ctx context.Context, batch *repository.MergeBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range batch.Ops() {
		if err := ctx.Err(); err != nil {
			return apperrors.NewStorageError(string(op.Type), err)
		}
		if s.hook != nil {
			if err := s.hook(op); err != nil {
				return apperrors.NewStorageError(op.String(), err)
			}
		}
		if err := s.applyLocked(op); err != nil {
			return err
		}
		s.applied = append(s.applied, op)
	}
	return nil
}

func (s *Store) applyLocked(op repository.Op) error {
	switch op.Type {
	case repository.OpCreateTopic:
		topics := s.topicsOf(op.AuthorID)
		if _, exists := topics[op.Topic.ID]; exists {
			return apperrors.NewConflict("topic " + op.Topic.ID + " already exists")
		}
		t := op.Topic.Clone()
		t.Version = 1
		topics[t.ID] = t

	case repository.OpUpdateTopic:
		current, ok := s.topics[op.AuthorID][op.Topic.ID]
		if !ok {
			return apperrors.NewNotFound("topic", op.Topic.ID)
		}
		if current.Version != op.ExpectedVersion {
			return apperrors.NewConflict("topic " + op.Topic.ID + " was modified concurrently")
		}
		t := op.Topic.Clone()
		t.Version = op.ExpectedVersion + 1
		s.topics[op.AuthorID][t.ID] = t

	case repository.OpLinkPrayer:
		p, ok := s.prayers[op.AuthorID][op.Target.ID]
		if !ok {
			return apperrors.NewNotFound("prayer", op.Target.ID)
		}
		p.TopicRefs = append([]shared.TopicRef(nil), op.TopicRefs...)

	case repository.OpRemoveVector:
		return s.removeVectorLocked(op.AuthorID, op.Target)

	default:
		return apperrors.NewInternal("unknown merge op " + string(op.Type))
	}
	return nil
}
