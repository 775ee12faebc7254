// Package candidate defines the closed set of records a query vector can be
// ranked against: a bare prayer or a topic.
package candidate

import (
	"fmt"

	"flock-backend/internal/domain/prayer"
	"flock-backend/internal/domain/shared"
	"flock-backend/internal/domain/topic"
)

// Candidate is either *Prayer or *Topic. The unexported method keeps the
// set closed to this package.
type Candidate interface {
	Kind() shared.EntityKind
	ID() string
	Title() string
	Tags() []shared.Tag
	Vector() shared.Vector
	sealed()
}

// Prayer is a bare prayer candidate.
type Prayer struct{ Entry *prayer.Prayer }

// Topic is a topic candidate.
type Topic struct{ Aggregate *topic.Topic }

// FromPrayer wraps p.
func FromPrayer(p *prayer.Prayer) *Prayer { return &Prayer{Entry: p} }

// FromTopic wraps t.
func FromTopic(t *topic.Topic) *Topic { return &Topic{Aggregate: t} }

func (c *Prayer) Kind() shared.EntityKind { return shared.KindPrayer }
func (c *Prayer) ID() string              { return c.Entry.ID }
func (c *Prayer) Title() string           { return c.Entry.Title }
func (c *Prayer) Tags() []shared.Tag      { return []shared.Tag{c.Entry.Tag} }
func (c *Prayer) Vector() shared.Vector   { return c.Entry.Vector }
func (c *Prayer) sealed()                 {}

func (c *Topic) Kind() shared.EntityKind { return shared.KindTopic }
func (c *Topic) ID() string              { return c.Aggregate.ID }
func (c *Topic) Title() string           { return c.Aggregate.Title }
func (c *Topic) Tags() []shared.Tag      { return c.Aggregate.Tags }
func (c *Topic) Vector() shared.Vector   { return c.Aggregate.Vector }
func (c *Topic) sealed()                 {}

// Ref returns the address of c.
func Ref(c Candidate) shared.EntityRef {
	return shared.EntityRef{Kind: c.Kind(), ID: c.ID()}
}

// PrimaryTag is the tag shown for a candidate in ranked results.
func PrimaryTag(c Candidate) shared.Tag {
	tags := c.Tags()
	if len(tags) == 0 {
		return ""
	}
	return tags[0]
}

// Match dispatches on the variant. Every case must be handled.
func Match[T any](c Candidate, onPrayer func(*Prayer) T, onTopic func(*Topic) T) (T, error) {
	switch v := c.(type) {
	case *Prayer:
		return onPrayer(v), nil
	case *Topic:
		return onTopic(v), nil
	default:
		var zero T
		return zero, fmt.Errorf("unsupported candidate %T", c)
	}
}
