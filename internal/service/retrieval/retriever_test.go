package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"flock-backend/internal/domain/candidate"
	"flock-backend/internal/domain/prayer"
	"flock-backend/internal/domain/shared"
	"flock-backend/internal/domain/topic"
	apperrors "flock-backend/internal/errors"
	"flock-backend/internal/infrastructure/persistence/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func seed(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	s := memory.NewStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, p := range []*prayer.Prayer{
		{ID: "source", AuthorID: "u1", Title: "source", Vector: shared.Vector{1}, CreatedAt: base.Add(4 * time.Hour)},
		{ID: "bare", AuthorID: "u1", Title: "bare", Vector: shared.Vector{1}, CreatedAt: base.Add(3 * time.Hour)},
		{ID: "novector", AuthorID: "u1", Title: "no vector", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "stale", AuthorID: "u1", Title: "stale", Vector: shared.Vector{1},
			TopicRefs: []shared.TopicRef{{ID: "t1"}}, CreatedAt: base.Add(time.Hour)},
		{ID: "other", AuthorID: "u2", Title: "someone else", Vector: shared.Vector{1}, CreatedAt: base},
	} {
		require.NoError(t, s.SavePrayer(ctx, p))
	}
	s.PutTopic(&topic.Topic{ID: "t1", AuthorID: "u1", Title: "School", Vector: shared.Vector{1}})
	s.PutTopic(&topic.Topic{ID: "t2", AuthorID: "u1", Title: "Tombstoned"})
	return s
}

func TestRetriever_FindCandidates_Filters(t *testing.T) {
	s := seed(t)
	r := NewRetriever(s, s, zap.NewNop())

	res, err := r.FindCandidates(context.Background(), "u1", "source")

	require.NoError(t, err)
	var got []shared.EntityRef
	for _, c := range res.Candidates {
		got = append(got, candidate.Ref(c))
	}
	assert.Equal(t, []shared.EntityRef{
		{Kind: shared.KindPrayer, ID: "bare"},
		{Kind: shared.KindTopic, ID: "t1"},
	}, got)
	assert.Equal(t, []shared.EntityRef{{Kind: shared.KindPrayer, ID: "stale"}}, res.Stale)
}

func TestRetriever_FindCandidates_RequiresAuthor(t *testing.T) {
	s := seed(t)
	r := NewRetriever(s, s, zap.NewNop())

	_, err := r.FindCandidates(context.Background(), "", "")

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnauthenticated))
}

func TestRetriever_FindCandidates_UnknownAuthorIsEmpty(t *testing.T) {
	s := seed(t)
	r := NewRetriever(s, s, zap.NewNop())

	res, err := r.FindCandidates(context.Background(), "nobody", "")

	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
}

type MockTopics struct {
	mock.Mock
}

func (m *MockTopics) GetTopic(ctx context.Context, authorID, id string) (*topic.Topic, error) {
	args := m.Called(ctx, authorID, id)
	if t := args.Get(0); t != nil {
		return t.(*topic.Topic), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTopics) ListTopics(ctx context.Context, authorID string) ([]*topic.Topic, error) {
	args := m.Called(ctx, authorID)
	if t := args.Get(0); t != nil {
		return t.([]*topic.Topic), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestRetriever_FindCandidates_StorageFailure(t *testing.T) {
	s := seed(t)
	topics := new(MockTopics)
	topics.On("ListTopics", mock.Anything, "u1").
		Return(nil, apperrors.NewStorageReadError("query topics", errors.New("throttled")))
	r := NewRetriever(s, topics, zap.NewNop())

	_, err := r.FindCandidates(context.Background(), "u1", "")

	assert.True(t, apperrors.IsStorage(err))
	topics.AssertExpectations(t)
}

func TestRetriever_Load(t *testing.T) {
	s := seed(t)
	r := NewRetriever(s, s, zap.NewNop())
	ctx := context.Background()

	c, err := r.Load(ctx, "u1", shared.EntityRef{Kind: shared.KindTopic, ID: "t1"})
	require.NoError(t, err)
	tc, ok := c.(*candidate.Topic)
	require.True(t, ok)
	assert.Equal(t, "School", tc.Aggregate.Title)

	_, err = r.Load(ctx, "u1", shared.EntityRef{Kind: shared.KindPrayer, ID: "other"})
	assert.True(t, apperrors.IsNotFound(err))

	_, err = r.Load(ctx, "u1", shared.EntityRef{Kind: "note", ID: "x"})
	assert.True(t, apperrors.IsInvalidArgument(err))
}
