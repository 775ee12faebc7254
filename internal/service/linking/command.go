package linking

import (
	"flock-backend/internal/domain/prayer"
	"flock-backend/internal/domain/topic"
	"flock-backend/internal/repository"
)

// TopicCommand is the topic write chosen for a link. It is either a
// CreateTopicCommand or an UpdateTopicCommand and is resolved exactly once
// per attempt.
type TopicCommand interface {
	Resolution() Resolution
	Topic() *topic.Topic
	// Origin is the bare prayer the new entry was matched with, or nil when
	// the match was a topic.
	Origin() *prayer.Prayer
	stage(b *repository.MergeBatch, authorID string)
}

// CreateTopicCommand creates a topic from two unlinked prayers.
type CreateTopicCommand struct {
	NewTopic *topic.Topic
	Source   *prayer.Prayer
}

func (c *CreateTopicCommand) Resolution() Resolution { return ResolutionNew }
func (c *CreateTopicCommand) Topic() *topic.Topic    { return c.NewTopic }
func (c *CreateTopicCommand) Origin() *prayer.Prayer { return c.Source }

func (c *CreateTopicCommand) stage(b *repository.MergeBatch, authorID string) {
	b.CreateTopic(authorID, c.NewTopic)
}

// UpdateTopicCommand merges into a topic loaded at ExpectedVersion.
type UpdateTopicCommand struct {
	Existing        *topic.Topic
	ExpectedVersion int64
	// Source is set when the match was a prayer already inside Existing.
	Source *prayer.Prayer
}

func (c *UpdateTopicCommand) Resolution() Resolution { return ResolutionExisting }
func (c *UpdateTopicCommand) Topic() *topic.Topic    { return c.Existing }
func (c *UpdateTopicCommand) Origin() *prayer.Prayer { return c.Source }

func (c *UpdateTopicCommand) stage(b *repository.MergeBatch, authorID string) {
	b.UpdateTopic(authorID, c.Existing, c.ExpectedVersion)
}
