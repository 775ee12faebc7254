package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"flock-backend/internal/domain/shared"
	"flock-backend/internal/domain/topic"
)

func TestMergeBatch_KeepsInsertionOrder(t *testing.T) {
	tp := &topic.Topic{ID: "t1"}
	refs := []shared.TopicRef{{ID: "t1", Title: "School"}}

	b := NewMergeBatch().
		CreateTopic("u1", tp).
		LinkPrayer("u1", "p2", refs).
		LinkPrayer("u1", "p1", refs).
		RemoveVector("u1", shared.EntityRef{Kind: shared.KindPrayer, ID: "p1"})

	var got []string
	for _, op := range b.Ops() {
		got = append(got, op.String())
	}
	assert.Equal(t, []string{
		"CREATE_TOPIC(t1)",
		"LINK_PRAYER(prayer/p2)",
		"LINK_PRAYER(prayer/p1)",
		"REMOVE_VECTOR(prayer/p1)",
	}, got)
}

func TestMergeBatch_LinkPrayerCopiesRefs(t *testing.T) {
	refs := []shared.TopicRef{{ID: "t1"}}
	b := NewMergeBatch().LinkPrayer("u1", "p1", refs)

	refs[0].ID = "changed"

	assert.Equal(t, "t1", b.Ops()[0].TopicRefs[0].ID)
}
