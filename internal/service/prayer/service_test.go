package prayer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	prayerdomain "flock-backend/internal/domain/prayer"
	"flock-backend/internal/domain/shared"
	apperrors "flock-backend/internal/errors"
	"flock-backend/internal/infrastructure/persistence/memory"
	"flock-backend/internal/service/search"
	"flock-backend/internal/service/similarity"
)

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) (shared.Vector, error) {
	args := m.Called(ctx, text)
	if v := args.Get(0); v != nil {
		return v.(shared.Vector), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) SearchByVector(ctx context.Context, in search.SearchInput) ([]similarity.Result, error) {
	args := m.Called(ctx, in)
	if r := args.Get(0); r != nil {
		return r.([]similarity.Result), args.Error(1)
	}
	return nil, args.Error(1)
}

var submittedAt = time.Date(2024, 3, 2, 8, 30, 0, 0, time.UTC)

func newService(embedder *MockEmbedder, searcher *MockSearcher) (*Service, *memory.Store) {
	store := memory.NewStore()
	svc := NewService(store, embedder, searcher, 250, zap.NewNop())
	svc.now = func() time.Time { return submittedAt }
	return svc, store
}

func TestSubmit_WithAnalysis(t *testing.T) {
	embedder := new(MockEmbedder)
	searcher := new(MockSearcher)
	svc, store := newService(embedder, searcher)
	vec := shared.Vector{0.6, 0.8}
	suggestions := []similarity.Result{{ID: "exam", Title: "Exam", Tag: shared.TagRequest, Kind: shared.KindPrayer, Similarity: 0.9}}

	embedder.On("Embed", mock.Anything, "March 2, 2024, Passed exam, Thank you").Return(vec, nil)
	searcher.On("SearchByVector", mock.Anything, mock.MatchedBy(func(in search.SearchInput) bool {
		return in.UserID == "u1" && in.SourcePrayerID != "" && in.TopK == 3
	})).Return(suggestions, nil)

	res, err := svc.Submit(context.Background(), SubmitInput{
		AuthorID: "u1", Title: " Passed exam ", Body: "Thank you", Tag: shared.TagPraise, AIOptIn: true, TopK: 3,
	})

	require.NoError(t, err)
	assert.False(t, res.AnalysisDegraded)
	assert.Equal(t, suggestions, res.Suggestions)
	assert.Equal(t, shared.PrivacyPrivate, res.Prayer.Privacy)

	stored, err := store.GetPrayer(context.Background(), "u1", res.Prayer.ID)
	require.NoError(t, err)
	assert.Equal(t, vec, stored.Vector)
	assert.Equal(t, "Passed exam", stored.Title)
	embedder.AssertExpectations(t)
	searcher.AssertExpectations(t)
}

func TestSubmit_AnalysisFailureDoesNotBlockSave(t *testing.T) {
	embedder := new(MockEmbedder)
	searcher := new(MockSearcher)
	svc, store := newService(embedder, searcher)
	embedder.On("Embed", mock.Anything, mock.Anything).
		Return(nil, apperrors.NewEmbeddingError(apperrors.CodeEmbeddingFailed, "quota exceeded", nil))

	res, err := svc.Submit(context.Background(), SubmitInput{AuthorID: "u1", Title: "Exam", AIOptIn: true})

	require.NoError(t, err)
	assert.True(t, res.AnalysisDegraded)
	assert.Empty(t, res.Suggestions)
	assert.Equal(t, shared.TagRequest, res.Prayer.Tag)

	stored, err := store.GetPrayer(context.Background(), "u1", res.Prayer.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Vector)
	searcher.AssertNotCalled(t, "SearchByVector", mock.Anything, mock.Anything)
}

func TestSubmit_OptOutSkipsAnalysis(t *testing.T) {
	embedder := new(MockEmbedder)
	searcher := new(MockSearcher)
	svc, _ := newService(embedder, searcher)

	res, err := svc.Submit(context.Background(), SubmitInput{AuthorID: "u1", Body: "Quiet day"})

	require.NoError(t, err)
	assert.False(t, res.AnalysisDegraded)
	assert.False(t, res.Prayer.HasVector())
	embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestSubmit_Validation(t *testing.T) {
	svc, _ := newService(new(MockEmbedder), new(MockSearcher))
	ctx := context.Background()

	_, err := svc.Submit(ctx, SubmitInput{Title: "Exam"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnauthenticated))

	_, err = svc.Submit(ctx, SubmitInput{AuthorID: "u1", Title: "  ", Body: "\n"})
	assert.ErrorIs(t, err, apperrors.ErrEmptyContent)

	_, err = svc.Submit(ctx, SubmitInput{AuthorID: "u1", Title: "Exam", Tag: "gossip"})
	assert.True(t, apperrors.IsInvalidArgument(err))
}

func TestDelete_DoesNotCascade(t *testing.T) {
	svc, store := newService(new(MockEmbedder), new(MockSearcher))
	ctx := context.Background()
	p := &prayerdomain.Prayer{ID: "a", AuthorID: "u1", Title: "Exam", TopicRefs: []shared.TopicRef{{ID: "t1", Title: "School"}}}
	require.NoError(t, store.SavePrayer(ctx, p))

	require.NoError(t, svc.Delete(ctx, "u1", "a"))

	_, err := svc.Get(ctx, "u1", "a")
	assert.True(t, apperrors.IsNotFound(err))
	assert.True(t, apperrors.IsNotFound(svc.Delete(ctx, "u1", "a")))
	assert.Empty(t, store.Applied())
}

func TestList(t *testing.T) {
	svc, _ := newService(new(MockEmbedder), new(MockSearcher))
	ctx := context.Background()
	_, err := svc.Submit(ctx, SubmitInput{AuthorID: "u1", Title: "Exam"})
	require.NoError(t, err)

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	empty, err := svc.List(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
