// Package topic defines the Topic aggregate: a merged thread of related
// prayers with one combined journey and vector.
package topic

import (
	"strings"
	"time"

	"flock-backend/internal/domain/shared"
	apperrors "flock-backend/internal/errors"
)

// Topic is the aggregate of linked prayers.
//
// Journey, ContextText and Vector are nil when the topic has no coherent
// combined context. They are never stored as empty values.
type Topic struct {
	ID          string        `json:"id"`
	AuthorID    string        `json:"authorId"`
	Title       string        `json:"title"`
	Tags        []shared.Tag  `json:"tags"`
	Journey     []JourneyItem `json:"journey,omitempty"`
	ContextText *string       `json:"contextText,omitempty"`
	Vector      shared.Vector `json:"-"`
	Version     int64         `json:"version"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// New creates a topic with the given title. The title is required.
func New(authorID, title string, now time.Time) (*Topic, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperrors.NewMissingTopicTitle()
	}
	now = now.UTC()
	return &Topic{
		ID:        shared.NewID(),
		AuthorID:  authorID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Kind returns shared.KindTopic.
func (t *Topic) Kind() shared.EntityKind { return shared.KindTopic }

// Ref returns the back-reference stored on member prayers.
func (t *Topic) Ref() shared.TopicRef {
	return shared.TopicRef{ID: t.ID, Title: t.Title}
}

// HasVector reports whether the topic carries a vector.
func (t *Topic) HasVector() bool { return !t.Vector.IsZero() }

// Tombstoned reports whether the topic currently has no journey.
func (t *Topic) Tombstoned() bool { return len(t.Journey) == 0 }

// Contains reports whether a prayer id is in the journey.
func (t *Topic) Contains(prayerID string) bool {
	for _, item := range t.Journey {
		if item.ID == prayerID {
			return true
		}
	}
	return false
}

// SetJourney replaces the journey. An empty journey tombstones the topic.
func (t *Topic) SetJourney(journey []JourneyItem) {
	if len(journey) == 0 {
		t.Tombstone()
		return
	}
	t.Journey = journey
}

// Tombstone clears journey, context and vector.
func (t *Topic) Tombstone() {
	t.Journey = nil
	t.ContextText = nil
	t.Vector = nil
}

// SetContext records the text and the vector computed from it.
func (t *Topic) SetContext(text string, v shared.Vector) {
	t.ContextText = &text
	t.Vector = v.Clone()
}

// AddTags unions tags into the topic.
func (t *Topic) AddTags(tags ...shared.Tag) {
	t.Tags = shared.UnionTags(t.Tags, tags)
}

// Clone returns a deep copy.
func (t *Topic) Clone() *Topic {
	c := *t
	c.Tags = append([]shared.Tag(nil), t.Tags...)
	if t.Journey != nil {
		c.Journey = append([]JourneyItem(nil), t.Journey...)
	}
	if t.ContextText != nil {
		text := *t.ContextText
		c.ContextText = &text
	}
	c.Vector = t.Vector.Clone()
	return &c
}
