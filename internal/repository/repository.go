// Package repository defines the storage ports used by the services.
package repository

import (
	"context"

	"flock-backend/internal/domain/prayer"
	"flock-backend/internal/domain/shared"
	"flock-backend/internal/domain/topic"
)

// PrayerRepository reads and writes prayers. Every method is scoped to one
// author; records of other authors are reported as not found.
type PrayerRepository interface {
	SavePrayer(ctx context.Context, p *prayer.Prayer) error
	GetPrayer(ctx context.Context, authorID, id string) (*prayer.Prayer, error)
	// ListPrayers returns the author's prayers, newest first.
	ListPrayers(ctx context.Context, authorID string) ([]*prayer.Prayer, error)
	DeletePrayer(ctx context.Context, authorID, id string) error
	// SetPrayerVector stores a standalone vector. It fails with a conflict
	// if the prayer has joined a topic in the meantime.
	SetPrayerVector(ctx context.Context, authorID, id string, v shared.Vector) error
}

// TopicRepository reads topics. Topic writes go through a MergeBatch.
type TopicRepository interface {
	GetTopic(ctx context.Context, authorID, id string) (*topic.Topic, error)
	// ListTopics returns the author's topics, most recently updated first.
	ListTopics(ctx context.Context, authorID string) ([]*topic.Topic, error)
}

// VectorRemover clears a standalone vector. Removing an absent vector is a
// no-op; a missing entity is NotFound.
type VectorRemover interface {
	RemoveVector(ctx context.Context, authorID string, ref shared.EntityRef) error
}

// MergeCommitter applies a MergeBatch in op order.
type MergeCommitter interface {
	CommitMerge(ctx context.Context, batch *MergeBatch) error
}

// Store is the full storage port.
type Store interface {
	PrayerRepository
	TopicRepository
	VectorRemover
	MergeCommitter
}
