// Package events defines the domain events raised by linking and vector
// lifecycle operations.
package events

import (
	"context"
	"time"

	"flock-backend/internal/domain/shared"
)

const (
	TypeTopicCreated            = "topic.created"
	TypeTopicUpdated            = "topic.updated"
	TypePrayerLinked            = "prayer.linked"
	TypeStandaloneVectorRemoved = "prayer.vector_removed"
)

// DomainEvent is the base interface for all domain events
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// Publisher sends domain events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
	UserID      string    `json:"user_id"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

// TopicCreated is raised when two prayers are first linked into a new topic.
type TopicCreated struct {
	BaseEvent
	Title     string       `json:"title"`
	Tags      []shared.Tag `json:"tags"`
	MemberIDs []string     `json:"member_ids"`
}

// NewTopicCreated creates a TopicCreated event
func NewTopicCreated(userID, topicID, title string, tags []shared.Tag, memberIDs []string, at time.Time) TopicCreated {
	return TopicCreated{
		BaseEvent: BaseEvent{
			AggregateID: topicID,
			EventType:   TypeTopicCreated,
			Timestamp:   at,
			Version:     1,
			UserID:      userID,
		},
		Title:     title,
		Tags:      tags,
		MemberIDs: memberIDs,
	}
}

// TopicUpdated is raised when a prayer joins an existing topic.
type TopicUpdated struct {
	BaseEvent
	AddedPrayerID string `json:"added_prayer_id"`
	JourneyLength int    `json:"journey_length"`
	VectorChanged bool   `json:"vector_changed"`
}

// NewTopicUpdated creates a TopicUpdated event
func NewTopicUpdated(userID, topicID, prayerID string, journeyLength int, vectorChanged bool, version int64, at time.Time) TopicUpdated {
	return TopicUpdated{
		BaseEvent: BaseEvent{
			AggregateID: topicID,
			EventType:   TypeTopicUpdated,
			Timestamp:   at,
			Version:     int(version),
			UserID:      userID,
		},
		AddedPrayerID: prayerID,
		JourneyLength: journeyLength,
		VectorChanged: vectorChanged,
	}
}

// PrayerLinked is raised for each prayer whose link pointer was written.
type PrayerLinked struct {
	BaseEvent
	TopicID string `json:"topic_id"`
}

// NewPrayerLinked creates a PrayerLinked event
func NewPrayerLinked(userID, prayerID, topicID string, at time.Time) PrayerLinked {
	return PrayerLinked{
		BaseEvent: BaseEvent{
			AggregateID: prayerID,
			EventType:   TypePrayerLinked,
			Timestamp:   at,
			Version:     1,
			UserID:      userID,
		},
		TopicID: topicID,
	}
}

// StandaloneVectorRemoved is raised when a vector is cleared from storage.
type StandaloneVectorRemoved struct {
	BaseEvent
	EntityKind shared.EntityKind `json:"entity_kind"`
	Reason     string            `json:"reason"`
}

// NewStandaloneVectorRemoved creates a StandaloneVectorRemoved event
func NewStandaloneVectorRemoved(userID string, ref shared.EntityRef, reason string, at time.Time) StandaloneVectorRemoved {
	return StandaloneVectorRemoved{
		BaseEvent: BaseEvent{
			AggregateID: ref.ID,
			EventType:   TypeStandaloneVectorRemoved,
			Timestamp:   at,
			Version:     1,
			UserID:      userID,
		},
		EntityKind: ref.Kind,
		Reason:     reason,
	}
}
