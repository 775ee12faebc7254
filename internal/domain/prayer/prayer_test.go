package prayer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock-backend/internal/domain/shared"
	apperrors "flock-backend/internal/errors"
)

func TestNew_Validation(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	_, err := New("", "", "Exam", "", shared.TagRequest, shared.PrivacyPrivate, now)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnauthenticated))

	_, err = New("u1", "", "  ", "\n", shared.TagRequest, shared.PrivacyPrivate, now)
	assert.ErrorIs(t, err, apperrors.ErrEmptyContent)

	_, err = New("u1", "", "Exam", "", shared.Tag("party"), shared.PrivacyPrivate, now)
	assert.True(t, apperrors.IsInvalidArgument(err))

	p, err := New("u1", "Ana", " Exam ", "", shared.TagRequest, "", now)
	require.NoError(t, err)
	assert.Equal(t, "Exam", p.Title)
	assert.Equal(t, shared.PrivacyPrivate, p.Privacy)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, now, p.CreatedAt)
}

func TestPrayer_JoinTopic_ClearsVector(t *testing.T) {
	p := &Prayer{ID: "p1", Vector: shared.Vector{1, 0}}

	p.JoinTopic(shared.TopicRef{ID: "t1", Title: "School"})
	p.JoinTopic(shared.TopicRef{ID: "t1", Title: "School year"})

	assert.False(t, p.HasVector())
	assert.True(t, p.IsLinked())
	require.Len(t, p.TopicRefs, 1)
	assert.Equal(t, "School year", p.TopicRefs[0].Title)
}

func TestPrayer_AttachVector_RejectedWhenLinked(t *testing.T) {
	p := &Prayer{ID: "p1", TopicRefs: []shared.TopicRef{{ID: "t1"}}}

	err := p.AttachVector(shared.Vector{1})

	assert.True(t, apperrors.IsInvalidArgument(err))
	assert.False(t, p.HasVector())
}

func TestPrayer_Clone_IsDeep(t *testing.T) {
	p := &Prayer{ID: "p1", Vector: shared.Vector{1, 2}, TopicRefs: []shared.TopicRef{{ID: "t1"}}}

	c := p.Clone()
	c.Vector[0] = 9
	c.TopicRefs[0].ID = "t2"

	assert.Equal(t, float32(1), p.Vector[0])
	assert.Equal(t, "t1", p.TopicRefs[0].ID)
}
