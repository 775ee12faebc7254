package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flock-backend/internal/domain/events"
	"flock-backend/internal/domain/prayer"
	"flock-backend/internal/domain/shared"
	"flock-backend/internal/domain/topic"
	apperrors "flock-backend/internal/errors"
	"flock-backend/internal/infrastructure/persistence/memory"
	"flock-backend/internal/repository"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.DomainEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, evts ...events.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evts...)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.GetEventType()
	}
	return out
}

func newManager(t *testing.T) (*Manager, *memory.Store, *recordingPublisher) {
	t.Helper()
	s := memory.NewStore()
	pub := &recordingPublisher{}
	return NewManager(s, pub, zap.NewNop(), nil), s, pub
}

func TestRemoveStandaloneVector_Idempotent(t *testing.T) {
	m, s, pub := newManager(t)
	ctx := context.Background()
	require.NoError(t, s.SavePrayer(ctx, &prayer.Prayer{ID: "p1", AuthorID: "u1", Title: "Exam", Vector: shared.Vector{1, 0}}))
	ref := shared.EntityRef{Kind: shared.KindPrayer, ID: "p1"}

	require.NoError(t, m.RemoveStandaloneVector(ctx, "u1", ref))
	require.NoError(t, m.RemoveStandaloneVector(ctx, "u1", ref))

	p, err := s.GetPrayer(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Nil(t, p.Vector)
	assert.Equal(t, []string{events.TypeStandaloneVectorRemoved, events.TypeStandaloneVectorRemoved}, pub.types())
}

func TestRemoveStandaloneVector_Errors(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	err := m.RemoveStandaloneVector(ctx, "", shared.EntityRef{Kind: shared.KindPrayer, ID: "p1"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnauthenticated))

	err = m.RemoveStandaloneVector(ctx, "u1", shared.EntityRef{Kind: shared.KindTopic, ID: "missing"})
	assert.True(t, apperrors.IsNotFound(err))

	err = m.RemoveStandaloneVector(ctx, "u1", shared.EntityRef{Kind: "note", ID: "x"})
	assert.True(t, apperrors.IsInvalidArgument(err))
}

func TestRemoveStandaloneVector_PublishFailureIsNotFatal(t *testing.T) {
	m, s, pub := newManager(t)
	pub.err = errors.New("bus unavailable")
	ctx := context.Background()
	require.NoError(t, s.SavePrayer(ctx, &prayer.Prayer{ID: "p1", AuthorID: "u1", Title: "Exam", Vector: shared.Vector{1}}))

	err := m.RemoveStandaloneVector(ctx, "u1", shared.EntityRef{Kind: shared.KindPrayer, ID: "p1"})

	assert.NoError(t, err)
}

func TestHeal_RepairsInterruptedMerge(t *testing.T) {
	m, s, _ := newManager(t)
	ctx := context.Background()
	text := "Exam"

	require.NoError(t, s.SavePrayer(ctx, &prayer.Prayer{
		ID: "linked", AuthorID: "u1", Title: "Exam", Vector: shared.Vector{1},
		TopicRefs: []shared.TopicRef{{ID: "t1", Title: "School"}},
	}))
	require.NoError(t, s.SavePrayer(ctx, &prayer.Prayer{ID: "bare", AuthorID: "u1", Title: "Work", Vector: shared.Vector{1}}))
	s.PutTopic(&topic.Topic{
		ID: "t1", AuthorID: "u1", Title: "School",
		Journey: []topic.JourneyItem{{ID: "linked", Title: "Exam"}},
		Vector:  shared.Vector{1},
	})
	s.PutTopic(&topic.Topic{ID: "t2", AuthorID: "u1", Title: "Empty", ContextText: &text, Vector: shared.Vector{1}})

	report, err := m.Heal(ctx, "u1")

	require.NoError(t, err)
	assert.Equal(t, []shared.EntityRef{{Kind: shared.KindPrayer, ID: "linked"}}, report.VectorsCleared)
	assert.Equal(t, []string{"t2"}, report.TopicsTombstoned)
	assert.Equal(t, 2, report.PrayersScanned)
	assert.Equal(t, 2, report.TopicsScanned)

	linked, err := s.GetPrayer(ctx, "u1", "linked")
	require.NoError(t, err)
	assert.True(t, CheckExclusive(linked))

	bare, err := s.GetPrayer(ctx, "u1", "bare")
	require.NoError(t, err)
	assert.NotNil(t, bare.Vector)

	empty, err := s.GetTopic(ctx, "u1", "t2")
	require.NoError(t, err)
	assert.Nil(t, empty.ContextText)
	assert.Nil(t, empty.Vector)
	assert.Nil(t, empty.Journey)
	assert.Equal(t, int64(1), empty.Version)

	kept, err := s.GetTopic(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.NotNil(t, kept.Vector)
}

// racingStore rewrites a topic just before each commit, as a concurrent
// link would.
type racingStore struct {
	*memory.Store
	rival *topic.Topic
}

func (s *racingStore) CommitMerge(ctx context.Context, batch *repository.MergeBatch) error {
	s.PutTopic(s.rival)
	return s.Store.CommitMerge(ctx, batch)
}

func TestHeal_SkipsTopicChangedConcurrently(t *testing.T) {
	s := &racingStore{
		Store: memory.NewStore(),
		rival: &topic.Topic{ID: "t2", AuthorID: "u1", Title: "Renamed", Version: 7},
	}
	m := NewManager(s, nil, zap.NewNop(), nil)
	s.PutTopic(&topic.Topic{ID: "t2", AuthorID: "u1", Title: "Empty", Vector: shared.Vector{1}})

	report, err := m.Heal(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, 1, report.Conflicts)
	assert.Empty(t, report.TopicsTombstoned)
}

func TestHeal_EmptyAuthor(t *testing.T) {
	m, _, _ := newManager(t)

	report, err := m.Heal(context.Background(), "nobody")

	require.NoError(t, err)
	assert.Zero(t, report.PrayersScanned)
}
