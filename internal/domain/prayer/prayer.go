// Package prayer defines the Prayer entity, a single journaled entry.
package prayer

import (
	"strings"
	"time"

	"flock-backend/internal/domain/shared"
	apperrors "flock-backend/internal/errors"
)

// Prayer is a single journaled entry. A prayer carries a standalone vector
// only while it is not linked into any topic.
type Prayer struct {
	ID         string            `json:"id"`
	AuthorID   string            `json:"authorId"`
	AuthorName string            `json:"authorName,omitempty"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Tag        shared.Tag        `json:"tag"`
	Privacy    shared.Privacy    `json:"privacy"`
	Vector     shared.Vector     `json:"-"`
	TopicRefs  []shared.TopicRef `json:"linkedTopics,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// New creates a new Prayer. At least one of title and body must be non-empty.
func New(authorID, authorName, title, body string, tag shared.Tag, privacy shared.Privacy, now time.Time) (*Prayer, error) {
	if strings.TrimSpace(authorID) == "" {
		return nil, apperrors.NewUnauthenticated("prayer author is required")
	}
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if title == "" && body == "" {
		return nil, apperrors.NewInvalidArgument(apperrors.CodeEmptyContent, "prayer must have a title or body")
	}
	if !tag.Valid() {
		return nil, apperrors.NewInvalidArgument(apperrors.CodeInvalidTag, "unknown prayer tag "+string(tag))
	}
	if privacy == "" {
		privacy = shared.PrivacyPrivate
	}

	now = now.UTC()
	return &Prayer{
		ID:         shared.NewID(),
		AuthorID:   authorID,
		AuthorName: authorName,
		Title:      title,
		Body:       body,
		Tag:        tag,
		Privacy:    privacy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Kind returns shared.KindPrayer.
func (p *Prayer) Kind() shared.EntityKind { return shared.KindPrayer }

// Ref returns the address of this prayer.
func (p *Prayer) Ref() shared.EntityRef {
	return shared.EntityRef{Kind: shared.KindPrayer, ID: p.ID}
}

// HasVector reports whether the prayer carries a standalone vector.
func (p *Prayer) HasVector() bool { return !p.Vector.IsZero() }

// IsLinked reports whether the prayer has joined at least one topic.
func (p *Prayer) IsLinked() bool { return len(p.TopicRefs) > 0 }

// HasContent reports whether the prayer has a non-blank title or body.
func (p *Prayer) HasContent() bool {
	return strings.TrimSpace(p.Title) != "" || strings.TrimSpace(p.Body) != ""
}

// HasStaleVector reports a linked prayer that still carries a vector.
func (p *Prayer) HasStaleVector() bool { return p.IsLinked() && p.HasVector() }

// AttachVector stores a standalone vector. Linked prayers are summarized by
// their topic and never take a vector of their own.
func (p *Prayer) AttachVector(v shared.Vector) error {
	if p.IsLinked() {
		return apperrors.NewInvalidArgument("linked-prayer", "a linked prayer cannot carry a standalone vector")
	}
	if v.IsZero() {
		return apperrors.NewInvalidArgument(apperrors.CodeEmptyVector, "vector is empty")
	}
	p.Vector = v.Clone()
	return nil
}

// JoinTopic records membership in a topic and drops the standalone vector.
// A ref with the same id is replaced so renamed topics stay current.
func (p *Prayer) JoinTopic(ref shared.TopicRef) {
	for i, existing := range p.TopicRefs {
		if existing.ID == ref.ID {
			p.TopicRefs[i] = ref
			p.Vector = nil
			return
		}
	}
	p.TopicRefs = append(p.TopicRefs, ref)
	p.Vector = nil
}

// LatestTopic returns the most recently joined topic ref.
func (p *Prayer) LatestTopic() (shared.TopicRef, bool) {
	if len(p.TopicRefs) == 0 {
		return shared.TopicRef{}, false
	}
	return p.TopicRefs[len(p.TopicRefs)-1], true
}

// Clone returns a deep copy.
func (p *Prayer) Clone() *Prayer {
	c := *p
	c.Vector = p.Vector.Clone()
	if p.TopicRefs != nil {
		c.TopicRefs = append([]shared.TopicRef(nil), p.TopicRefs...)
	}
	return &c
}
