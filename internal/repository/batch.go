package repository

import (
	"fmt"

	"flock-backend/internal/domain/shared"
	"flock-backend/internal/domain/topic"
)

// OpType identifies a write in a MergeBatch.
type OpType string

const (
	OpCreateTopic  OpType = "CREATE_TOPIC"
	OpUpdateTopic  OpType = "UPDATE_TOPIC"
	OpLinkPrayer   OpType = "LINK_PRAYER"
	OpRemoveVector OpType = "REMOVE_VECTOR"
)

// Op is one write. Only the fields relevant to Type are set.
type Op struct {
	Type     OpType
	AuthorID string

	// CREATE_TOPIC, UPDATE_TOPIC
	Topic           *topic.Topic
	ExpectedVersion int64

	// LINK_PRAYER, REMOVE_VECTOR
	Target shared.EntityRef

	// LINK_PRAYER: the full ref list to store on the prayer.
	TopicRefs []shared.TopicRef
}

func (o Op) String() string {
	switch o.Type {
	case OpCreateTopic, OpUpdateTopic:
		return fmt.Sprintf("%s(%s)", o.Type, o.Topic.ID)
	default:
		return fmt.Sprintf("%s(%s)", o.Type, o.Target)
	}
}

// MergeBatch is an ordered list of writes. Stores apply ops in the order
// they were added and stop at the first failure.
type MergeBatch struct {
	ops []Op
}

// NewMergeBatch creates an empty batch.
func NewMergeBatch() *MergeBatch {
	return &MergeBatch{}
}

// CreateTopic adds a conditional put of a new topic.
func (b *MergeBatch) CreateTopic(authorID string, t *topic.Topic) *MergeBatch {
	b.ops = append(b.ops, Op{Type: OpCreateTopic, AuthorID: authorID, Topic: t})
	return b
}

// UpdateTopic adds a topic replace guarded by the version it was loaded at.
// The stored version becomes expectedVersion+1.
func (b *MergeBatch) UpdateTopic(authorID string, t *topic.Topic, expectedVersion int64) *MergeBatch {
	b.ops = append(b.ops, Op{Type: OpUpdateTopic, AuthorID: authorID, Topic: t, ExpectedVersion: expectedVersion})
	return b
}

// LinkPrayer adds a write of the prayer's topic back-references.
func (b *MergeBatch) LinkPrayer(authorID, prayerID string, refs []shared.TopicRef) *MergeBatch {
	b.ops = append(b.ops, Op{
		Type:      OpLinkPrayer,
		AuthorID:  authorID,
		Target:    shared.EntityRef{Kind: shared.KindPrayer, ID: prayerID},
		TopicRefs: append([]shared.TopicRef(nil), refs...),
	})
	return b
}

// RemoveVector adds an idempotent removal of a standalone vector.
func (b *MergeBatch) RemoveVector(authorID string, ref shared.EntityRef) *MergeBatch {
	b.ops = append(b.ops, Op{Type: OpRemoveVector, AuthorID: authorID, Target: ref})
	return b
}

// Ops returns the ops in order.
func (b *MergeBatch) Ops() []Op {
	return b.ops
}

// Len returns the number of ops.
func (b *MergeBatch) Len() int {
	return len(b.ops)
}
