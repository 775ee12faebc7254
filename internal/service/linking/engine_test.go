package linking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"flock-backend/internal/domain/events"
	"flock-backend/internal/domain/prayer"
	"flock-backend/internal/domain/shared"
	"flock-backend/internal/domain/topic"
	apperrors "flock-backend/internal/errors"
	infraembedding "flock-backend/internal/infrastructure/embedding"
	"flock-backend/internal/infrastructure/persistence/memory"
	"flock-backend/internal/repository"
	"flock-backend/internal/service/embedding"
	"flock-backend/internal/service/retrieval"
	"flock-backend/internal/service/similarity"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// genai registers opencensus views at init.
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

var day0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	events []events.DomainEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, evts ...events.DomainEvent) error {
	p.events = append(p.events, evts...)
	return p.err
}

func (p *recordingPublisher) types() []string {
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.GetEventType()
	}
	return out
}

// countingEmbedder wraps an Embedder and counts calls.
type countingEmbedder struct {
	next  embedding.Embedder
	err   error
	calls atomic.Int32
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) (shared.Vector, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.next.Embed(ctx, text)
}

type fixture struct {
	store     *memory.Store
	client    *embedding.Client
	embedder  *countingEmbedder
	retriever *retrieval.Retriever
	publisher *recordingPublisher
	engine    *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore(), publisher: &recordingPublisher{}}
	f.client = embedding.NewClient(infraembedding.NewHashProvider(1536), 1536, 250, zap.NewNop(), nil)
	f.embedder = &countingEmbedder{next: f.client}
	f.retriever = retrieval.NewRetriever(f.store, f.store, zap.NewNop())
	f.engine = f.newEngine(f.store)
	return f
}

func (f *fixture) newEngine(committer repository.MergeCommitter) *Engine {
	e := NewEngine(f.retriever, f.store, committer, f.embedder, f.publisher,
		Options{SnapshotBodyLimit: 500, ContextBodyLimit: 250}, zap.NewNop(), nil)
	e.now = func() time.Time { return day0.Add(48 * time.Hour) }
	return e
}

// submit stores a prayer with the vector of its own text, as submission does.
func (f *fixture) submit(t *testing.T, id, title string, tag shared.Tag, at time.Time) *prayer.Prayer {
	t.Helper()
	ctx := context.Background()
	p := &prayer.Prayer{ID: id, AuthorID: "u1", AuthorName: "Ruth", Title: title, Tag: tag, CreatedAt: at, UpdatedAt: at}
	v, err := f.client.Embed(ctx, embedding.PrayerText(p.CreatedAt, p.Title, p.Body, f.client.TextBudget()))
	require.NoError(t, err)
	require.NoError(t, p.AttachVector(v))
	require.NoError(t, f.store.SavePrayer(ctx, p))
	return p
}

func (f *fixture) prayer(t *testing.T, id string) *prayer.Prayer {
	t.Helper()
	p, err := f.store.GetPrayer(context.Background(), "u1", id)
	require.NoError(t, err)
	return p
}

func opTypes(ops []repository.Op) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.String()
	}
	return out
}

func journeyIDs(j []topic.JourneyItem) []string {
	out := make([]string, len(j))
	for i, item := range j {
		out[i] = item.ID
	}
	return out
}

func prayerRef(id string) shared.EntityRef {
	return shared.EntityRef{Kind: shared.KindPrayer, ID: id}
}

func TestMergeIntoTopic_ExamScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.submit(t, "A", "Exam", shared.TagRequest, day0)
	b := f.submit(t, "B", "Passed exam", shared.TagPraise, day0.Add(24*time.Hour))

	found, err := f.retriever.FindCandidates(ctx, "u1", b.ID)
	require.NoError(t, err)
	ranked, err := similarity.NewRanker(similarity.DefaultLimits()).Rank(b.Vector, found.Candidates, 5)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "A", ranked[0].ID)
	assert.Greater(t, ranked[0].Similarity, 0.0)

	res, err := f.engine.MergeIntoTopic(ctx, LinkRequest{
		AuthorID:   "u1",
		PrayerID:   b.ID,
		Target:     shared.EntityRef{Kind: ranked[0].Kind, ID: ranked[0].ID},
		TopicTitle: "School",
		AIOptIn:    true,
	})
	require.NoError(t, err)

	assert.Equal(t, ResolutionNew, res.Resolution)
	assert.Equal(t, StateMerged, res.State)
	assert.Equal(t, []State{StateUnlinked, StateCandidateSelected, StateTopicResolved, StateMerged}, res.Path)
	assert.Nil(t, res.Prayer.Vector)

	stored, err := f.store.GetTopic(ctx, "u1", res.TopicID)
	require.NoError(t, err)
	assert.Equal(t, "School", stored.Title)
	assert.Equal(t, []shared.Tag{shared.TagRequest, shared.TagPraise}, stored.Tags)
	assert.Equal(t, []string{"B", "A"}, journeyIDs(stored.Journey))
	require.NotNil(t, stored.ContextText)
	assert.Equal(t, "Passed exam\nExam", *stored.ContextText)
	assert.NotEmpty(t, stored.Vector)
	assert.Equal(t, int64(1), stored.Version)

	want, err := f.client.Embed(ctx, "Passed exam\nExam")
	require.NoError(t, err)
	assert.Equal(t, want, stored.Vector)

	for _, id := range []string{a.ID, b.ID} {
		p := f.prayer(t, id)
		assert.Nil(t, p.Vector, "prayer %s kept a standalone vector", id)
		assert.Equal(t, []shared.TopicRef{{ID: res.TopicID, Title: "School"}}, p.TopicRefs)
	}

	assert.Equal(t, []string{
		"CREATE_TOPIC(" + res.TopicID + ")",
		"LINK_PRAYER(prayer/B)",
		"LINK_PRAYER(prayer/A)",
		"REMOVE_VECTOR(prayer/A)",
		"REMOVE_VECTOR(prayer/B)",
	}, opTypes(f.store.Applied()))
	assert.Equal(t, []string{
		events.TypeTopicCreated, events.TypePrayerLinked, events.TypePrayerLinked,
	}, f.publisher.types())

	again, err := f.retriever.FindCandidates(ctx, "u1", "")
	require.NoError(t, err)
	require.Len(t, again.Candidates, 1)
	assert.Equal(t, shared.KindTopic, again.Candidates[0].Kind())
}

func TestMergeIntoTopic_LongJourneyContextStaysWithinBudget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := NewEngine(f.retriever, f.store, f.store, f.embedder, f.publisher,
		Options{SnapshotBodyLimit: 500, ContextBodyLimit: 250, ContextBudget: 1000}, zap.NewNop(), nil)
	body := strings.Repeat("grace ", 50)

	var topicID string
	for i := 0; i < 30; i++ {
		p := &prayer.Prayer{
			ID: fmt.Sprintf("P%02d", i), AuthorID: "u1",
			Title: fmt.Sprintf("Prayer %02d", i), Body: body, Tag: shared.TagRequest,
			CreatedAt: day0.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, f.store.SavePrayer(ctx, p))
		if i == 0 {
			continue
		}

		req := LinkRequest{AuthorID: "u1", PrayerID: p.ID, AIOptIn: true}
		if topicID == "" {
			req.Target, req.TopicTitle = prayerRef("P00"), "Long season"
		} else {
			req.Target = shared.EntityRef{Kind: shared.KindTopic, ID: topicID}
		}
		res, err := engine.MergeIntoTopic(ctx, req)
		require.NoError(t, err, "link %d", i)
		topicID = res.TopicID
	}

	stored, err := f.store.GetTopic(ctx, "u1", topicID)
	require.NoError(t, err)
	assert.Len(t, stored.Journey, 30)
	require.NotNil(t, stored.ContextText)
	assert.LessOrEqual(t, utf8.RuneCountInString(*stored.ContextText), 1000)
	assert.True(t, strings.HasPrefix(*stored.ContextText, "Prayer 29, grace"))
	assert.NotContains(t, *stored.ContextText, "Prayer 00")
	assert.NotEmpty(t, stored.Vector)
}

func TestMergeIntoTopic_JoinsExistingTopic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, "A", "Exam", shared.TagRequest, day0)
	f.submit(t, "B", "Passed exam", shared.TagPraise, day0.Add(24*time.Hour))
	first, err := f.engine.MergeIntoTopic(ctx, LinkRequest{
		AuthorID: "u1", PrayerID: "B", Target: prayerRef("A"), TopicTitle: "School", AIOptIn: true,
	})
	require.NoError(t, err)
	c := f.submit(t, "C", "Thank you for teachers", shared.TagThanksgiving, day0.Add(36*time.Hour))

	res, err := f.engine.MergeIntoTopic(ctx, LinkRequest{
		AuthorID: "u1", PrayerID: c.ID,
		Target:  shared.EntityRef{Kind: shared.KindTopic, ID: first.TopicID},
		AIOptIn: true,
	})
	require.NoError(t, err)

	assert.Equal(t, ResolutionExisting, res.Resolution)
	assert.Equal(t, first.TopicID, res.TopicID)
	assert.Equal(t, int64(2), res.Topic.Version)

	stored, err := f.store.GetTopic(ctx, "u1", first.TopicID)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, journeyIDs(stored.Journey))
	assert.Equal(t, []shared.Tag{shared.TagRequest, shared.TagPraise, shared.TagThanksgiving}, stored.Tags)
	assert.Nil(t, f.prayer(t, "C").Vector)
	assert.Equal(t, events.TypeTopicUpdated, f.publisher.events[len(f.publisher.events)-2].GetEventType())
}

func TestMergeIntoTopic_LinkedMemberRoutesToItsTopic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, "A", "Exam", shared.TagRequest, day0)
	f.submit(t, "B", "Passed exam", shared.TagPraise, day0.Add(24*time.Hour))
	first, err := f.engine.MergeIntoTopic(ctx, LinkRequest{
		AuthorID: "u1", PrayerID: "B", Target: prayerRef("A"), TopicTitle: "School",
	})
	require.NoError(t, err)
	f.submit(t, "C", "Graduation", shared.TagPraise, day0.Add(36*time.Hour))

	res, err := f.engine.MergeIntoTopic(ctx, LinkRequest{AuthorID: "u1", PrayerID: "C", Target: prayerRef("A")})

	require.NoError(t, err)
	assert.Equal(t, ResolutionExisting, res.Resolution)
	assert.Equal(t, first.TopicID, res.TopicID)
	assert.Len(t, res.Topic.Journey, 3)
}

func TestMergeIntoTopic_MissingTopicTitle(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "A", "Exam", shared.TagRequest, day0)
	f.submit(t, "B", "Passed exam", shared.TagPraise, day0.Add(24*time.Hour))

	_, err := f.engine.MergeIntoTopic(context.Background(), LinkRequest{
		AuthorID: "u1", PrayerID: "B", Target: prayerRef("A"), TopicTitle: "   ", AIOptIn: true,
	})

	assert.ErrorIs(t, err, apperrors.ErrMissingTopicTitle)
	assert.Empty(t, f.store.Applied())
	assert.NotNil(t, f.prayer(t, "A").Vector)
	assert.Zero(t, f.embedder.calls.Load())
}

func TestMergeIntoTopic_EmptyJourneyTombstones(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"A", "B"} {
		require.NoError(t, f.store.SavePrayer(ctx, &prayer.Prayer{
			ID: id, AuthorID: "u1", Title: "  ", Tag: shared.TagLament, CreatedAt: day0, Vector: shared.Vector{1, 0},
		}))
	}

	res, err := f.engine.MergeIntoTopic(ctx, LinkRequest{
		AuthorID: "u1", PrayerID: "B", Target: prayerRef("A"), TopicTitle: "Grief", AIOptIn: true,
	})
	require.NoError(t, err)

	stored, err := f.store.GetTopic(ctx, "u1", res.TopicID)
	require.NoError(t, err)
	assert.Nil(t, stored.Journey)
	assert.Nil(t, stored.ContextText)
	assert.Nil(t, stored.Vector)
	assert.Zero(t, f.embedder.calls.Load())
	assert.Nil(t, f.prayer(t, "A").Vector)
	assert.Nil(t, f.prayer(t, "B").Vector)
}

func TestMergeIntoTopic_OptOutLeavesContextUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	text := "Exam"
	f.store.PutTopic(&topic.Topic{
		ID: "t1", AuthorID: "u1", Title: "School", Tags: []shared.Tag{shared.TagRequest},
		Journey:     []topic.JourneyItem{{ID: "A", Title: "Exam", Tag: shared.TagRequest, CreatedAt: day0}},
		ContextText: &text,
		Vector:      shared.Vector{0, 1},
		Version:     3,
	})
	f.submit(t, "B", "Passed exam", shared.TagPraise, day0.Add(24*time.Hour))

	res, err := f.engine.MergeIntoTopic(ctx, LinkRequest{
		AuthorID: "u1", PrayerID: "B", Target: shared.EntityRef{Kind: shared.KindTopic, ID: "t1"},
	})
	require.NoError(t, err)

	stored, err := f.store.GetTopic(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), stored.Version)
	assert.Equal(t, "Exam", *stored.ContextText)
	assert.Equal(t, shared.Vector{0, 1}, stored.Vector)
	assert.Equal(t, []string{"B", "A"}, journeyIDs(stored.Journey))
	assert.Zero(t, f.embedder.calls.Load())
	assert.Nil(t, res.Prayer.Vector)
}

func TestMergeIntoTopic_EmbeddingFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "A", "Exam", shared.TagRequest, day0)
	f.submit(t, "B", "Passed exam", shared.TagPraise, day0.Add(24*time.Hour))
	f.embedder.err = apperrors.NewEmbeddingError(apperrors.CodeEmbeddingFailed, "upstream 503", nil)

	_, err := f.engine.MergeIntoTopic(context.Background(), LinkRequest{
		AuthorID: "u1", PrayerID: "B", Target: prayerRef("A"), TopicTitle: "School", AIOptIn: true,
	})

	assert.True(t, apperrors.IsEmbedding(err))
	assert.Empty(t, f.store.Applied())
	assert.NotNil(t, f.prayer(t, "B").Vector)
}

func TestMergeIntoTopic_PartialWriteSurfacesStorageError(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "A", "Exam", shared.TagRequest, day0)
	f.submit(t, "B", "Passed exam", shared.TagPraise, day0.Add(24*time.Hour))
	f.store.SetWriteHook(func(op repository.Op) error {
		if op.Type == repository.OpRemoveVector {
			return errors.New("connection reset")
		}
		return nil
	})

	_, err := f.engine.MergeIntoTopic(context.Background(), LinkRequest{
		AuthorID: "u1", PrayerID: "B", Target: prayerRef("A"), TopicTitle: "School", AIOptIn: true,
	})

	require.True(t, apperrors.IsStorage(err))
	assert.Equal(t, "internal", apperrors.CallableStatus(err))
	assert.Len(t, f.store.Applied(), 3)
	a := f.prayer(t, "A")
	assert.True(t, a.HasStaleVector(), "origin keeps a redundant vector for healing")
	assert.Empty(t, f.publisher.events)
}

type bumpingCommitter struct {
	store *memory.Store
	rival *topic.Topic
}

func (c *bumpingCommitter) CommitMerge(ctx context.Context, batch *repository.MergeBatch) error {
	c.store.PutTopic(c.rival)
	return c.store.CommitMerge(ctx, batch)
}

func TestMergeIntoTopic_VersionConflict(t *testing.T) {
	f := newFixture(t)
	f.store.PutTopic(&topic.Topic{
		ID: "t1", AuthorID: "u1", Title: "School",
		Journey: []topic.JourneyItem{{ID: "A", Title: "Exam", CreatedAt: day0}},
		Version: 1,
	})
	f.submit(t, "B", "Passed exam", shared.TagPraise, day0.Add(24*time.Hour))
	engine := f.newEngine(&bumpingCommitter{
		store: f.store,
		rival: &topic.Topic{ID: "t1", AuthorID: "u1", Title: "School", Version: 2},
	})

	_, err := engine.MergeIntoTopic(context.Background(), LinkRequest{
		AuthorID: "u1", PrayerID: "B", Target: shared.EntityRef{Kind: shared.KindTopic, ID: "t1"},
	})

	assert.True(t, apperrors.IsConflict(err))
	assert.Empty(t, f.prayer(t, "B").TopicRefs)
}

func TestMergeIntoTopic_RejectsBadRequests(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "A", "Exam", shared.TagRequest, day0)
	ctx := context.Background()

	_, err := f.engine.MergeIntoTopic(ctx, LinkRequest{PrayerID: "A", Target: prayerRef("B")})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnauthenticated))

	_, err = f.engine.MergeIntoTopic(ctx, LinkRequest{AuthorID: "u1", PrayerID: "A", Target: prayerRef("A"), TopicTitle: "x"})
	assert.Equal(t, apperrors.CodeSelfLink, apperrors.GetAppError(err).Code)

	_, err = f.engine.MergeIntoTopic(ctx, LinkRequest{AuthorID: "u1", PrayerID: "A", Target: prayerRef("gone"), TopicTitle: "x"})
	assert.True(t, apperrors.IsNotFound(err))

	_, err = f.engine.MergeIntoTopic(ctx, LinkRequest{AuthorID: "u2", PrayerID: "A", Target: prayerRef("B"), TopicTitle: "x"})
	assert.True(t, apperrors.IsNotFound(err), "another author's prayer is invisible")

	assert.Empty(t, f.store.Applied())
}
