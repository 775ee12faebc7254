package topic

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock-backend/internal/domain/prayer"
	"flock-backend/internal/domain/shared"
	apperrors "flock-backend/internal/errors"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func TestMergeJourney_DedupKeepsLaterSnapshotAndSortsNewestFirst(t *testing.T) {
	t1, t2, t3 := t0, t0.Add(time.Hour), t0.Add(2*time.Hour)
	existing := []JourneyItem{{ID: "a", Title: "first draft", CreatedAt: t1}}
	incoming := []JourneyItem{
		{ID: "a", Title: "edited", CreatedAt: t2},
		{ID: "b", Title: "other", CreatedAt: t3},
	}

	got := MergeJourney(existing, incoming)

	want := []JourneyItem{
		{ID: "b", Title: "other", CreatedAt: t3},
		{ID: "a", Title: "edited", CreatedAt: t2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MergeJourney() mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeJourney_LastWriteWinsEvenWhenOlder(t *testing.T) {
	got := MergeJourney(
		[]JourneyItem{{ID: "a", Title: "v1", CreatedAt: t0.Add(time.Hour)}},
		[]JourneyItem{{ID: "a", Title: "v2", CreatedAt: t0}},
	)

	require.Len(t, got, 1)
	assert.Equal(t, "v2", got[0].Title)
}

func TestMergeJourney_EqualTimestampsKeepMergeOrder(t *testing.T) {
	got := MergeJourney([]JourneyItem{
		{ID: "x", Title: "x", CreatedAt: t0},
		{ID: "y", Title: "y", CreatedAt: t0},
		{ID: "z", Title: "z", CreatedAt: t0},
	})

	ids := []string{got[0].ID, got[1].ID, got[2].ID}
	assert.Equal(t, []string{"x", "y", "z"}, ids)
}

func TestMergeJourney_InvalidItemsDroppedAndEmptyIsNil(t *testing.T) {
	got := MergeJourney(
		[]JourneyItem{{ID: "a", CreatedAt: t0}},
		[]JourneyItem{{ID: "", Title: "no id"}, {ID: "b", Title: "  ", Body: ""}},
	)

	assert.Nil(t, got)
}

func TestMergeJourney_TitleOnlyAndBodyOnlyKept(t *testing.T) {
	got := MergeJourney([]JourneyItem{
		{ID: "a", Title: "title only", CreatedAt: t0},
		{ID: "b", Body: "body only", CreatedAt: t0.Add(time.Minute)},
	})

	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
}

func TestSnapshot_TruncatesBody(t *testing.T) {
	p := &prayer.Prayer{
		ID: "p1", Title: "Exam", Body: "please help me study well", Tag: shared.TagRequest,
		AuthorID: "u1", AuthorName: "Ana", CreatedAt: t0,
	}

	item := Snapshot(p, 11)

	assert.Equal(t, "please help", item.Body)
	assert.Equal(t, shared.TagRequest, item.Tag)
	assert.Equal(t, "Ana", item.AuthorName)
}

func TestContextText_SkipsEmptyFields(t *testing.T) {
	journey := []JourneyItem{
		{ID: "b", Title: "Passed exam", Body: "thank you"},
		{ID: "a", Title: "Exam"},
		{ID: "c", Body: "only a body that is long"},
	}

	got := ContextText(journey, 11, 0)

	assert.Equal(t, "Passed exam, thank you\nExam\nonly a body", got)
}

func TestContextText_KeepsNewestWithinBudget(t *testing.T) {
	journey := []JourneyItem{
		{ID: "c", Title: "Newest", Body: "still praying"},
		{ID: "b", Title: "Middle", Body: "some progress"},
		{ID: "a", Title: "Oldest", Body: "first request"},
	}

	got := ContextText(journey, 0, 45)

	assert.Equal(t, "Newest, still praying\nMiddle, some progress", got)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 45)
}

func TestContextText_TruncatesOversizedFirstLine(t *testing.T) {
	journey := []JourneyItem{
		{ID: "b", Title: "Long", Body: strings.Repeat("x", 100)},
		{ID: "a", Title: "Short"},
	}

	got := ContextText(journey, 0, 10)

	assert.Equal(t, "Long, xxxx", got)
}

func TestTopic_New_RequiresTitle(t *testing.T) {
	_, err := New("u1", "   ", t0)

	assert.ErrorIs(t, err, apperrors.ErrMissingTopicTitle)
}

func TestTopic_SetJourney_EmptyTombstones(t *testing.T) {
	ctx := "old"
	tp := &Topic{
		ID:          "t1",
		Journey:     []JourneyItem{{ID: "a", Title: "x"}},
		ContextText: &ctx,
		Vector:      shared.Vector{1},
	}

	tp.SetJourney([]JourneyItem{})

	assert.Nil(t, tp.Journey)
	assert.Nil(t, tp.ContextText)
	assert.Nil(t, tp.Vector)
	assert.True(t, tp.Tombstoned())
}
