// Package dynamodb stores prayers and topics in a single DynamoDB table.
//
// Key layout:
//
//	PK: "USER#{authorID}"
//	SK: "PRAYER#{prayerID}" | "TOPIC#{topicID}"
//
// Every item carries an EntityType attribute. Items are decoded by that
// attribute only, never by which other attributes happen to be present.
package dynamodb

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"flock-backend/internal/domain/prayer"
	"flock-backend/internal/domain/shared"
	"flock-backend/internal/domain/topic"
)

const (
	EntityTypePrayer = "PRAYER"
	EntityTypeTopic  = "TOPIC"
)

// BuildUserPK constructs a user partition key in the standard format: USER#{userId}
func BuildUserPK(authorID string) string {
	return fmt.Sprintf("USER#%s", authorID)
}

// BuildPrayerSK constructs a prayer sort key: PRAYER#{prayerId}
func BuildPrayerSK(prayerID string) string {
	return fmt.Sprintf("PRAYER#%s", prayerID)
}

// BuildTopicSK constructs a topic sort key: TOPIC#{topicId}
func BuildTopicSK(topicID string) string {
	return fmt.Sprintf("TOPIC#%s", topicID)
}

// StringAttr creates a DynamoDB string attribute value
func StringAttr(value string) *types.AttributeValueMemberS {
	return &types.AttributeValueMemberS{Value: value}
}

func itemKey(authorID string, ref shared.EntityRef) map[string]types.AttributeValue {
	sk := BuildPrayerSK(ref.ID)
	if ref.Kind == shared.KindTopic {
		sk = BuildTopicSK(ref.ID)
	}
	return map[string]types.AttributeValue{
		"PK": StringAttr(BuildUserPK(authorID)),
		"SK": StringAttr(sk),
	}
}

type prayerItem struct {
	PK         string            `dynamodbav:"PK"`
	SK         string            `dynamodbav:"SK"`
	EntityType string            `dynamodbav:"EntityType"`
	PrayerID   string            `dynamodbav:"PrayerID"`
	AuthorID   string            `dynamodbav:"AuthorID"`
	AuthorName string            `dynamodbav:"AuthorName,omitempty"`
	Title      string            `dynamodbav:"Title,omitempty"`
	Body       string            `dynamodbav:"Body,omitempty"`
	Tag        string            `dynamodbav:"Tag"`
	Privacy    string            `dynamodbav:"Privacy"`
	Vector     []float32         `dynamodbav:"Vector,omitempty"`
	TopicRefs  []shared.TopicRef `dynamodbav:"TopicRefs,omitempty"`
	CreatedAt  time.Time         `dynamodbav:"CreatedAt"`
	UpdatedAt  time.Time         `dynamodbav:"UpdatedAt"`
}

type journeyItem struct {
	ID         string    `dynamodbav:"id"`
	Tag        string    `dynamodbav:"tag"`
	Title      string    `dynamodbav:"title,omitempty"`
	Body       string    `dynamodbav:"body,omitempty"`
	CreatedAt  time.Time `dynamodbav:"createdAt"`
	AuthorID   string    `dynamodbav:"authorId"`
	AuthorName string    `dynamodbav:"authorName,omitempty"`
}

type topicItem struct {
	PK          string        `dynamodbav:"PK"`
	SK          string        `dynamodbav:"SK"`
	EntityType  string        `dynamodbav:"EntityType"`
	TopicID     string        `dynamodbav:"TopicID"`
	AuthorID    string        `dynamodbav:"AuthorID"`
	Title       string        `dynamodbav:"Title"`
	Tags        []string      `dynamodbav:"Tags,omitempty"`
	Journey     []journeyItem `dynamodbav:"Journey,omitempty"`
	ContextText *string       `dynamodbav:"ContextText,omitempty"`
	Vector      []float32     `dynamodbav:"Vector,omitempty"`
	Version     int64         `dynamodbav:"Version"`
	CreatedAt   time.Time     `dynamodbav:"CreatedAt"`
	UpdatedAt   time.Time     `dynamodbav:"UpdatedAt"`
}

func marshalPrayer(p *prayer.Prayer) (map[string]types.AttributeValue, error) {
	item := prayerItem{
		PK:         BuildUserPK(p.AuthorID),
		SK:         BuildPrayerSK(p.ID),
		EntityType: EntityTypePrayer,
		PrayerID:   p.ID,
		AuthorID:   p.AuthorID,
		AuthorName: p.AuthorName,
		Title:      p.Title,
		Body:       p.Body,
		Tag:        string(p.Tag),
		Privacy:    string(p.Privacy),
		Vector:     p.Vector,
		TopicRefs:  p.TopicRefs,
		CreatedAt:  p.CreatedAt.UTC(),
		UpdatedAt:  p.UpdatedAt.UTC(),
	}
	return attributevalue.MarshalMap(item)
}

func unmarshalPrayer(av map[string]types.AttributeValue) (*prayer.Prayer, error) {
	var item prayerItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prayer: %w", err)
	}
	if item.EntityType != EntityTypePrayer {
		return nil, fmt.Errorf("item %s has entity type %q, want %q", item.SK, item.EntityType, EntityTypePrayer)
	}
	tag, err := shared.ParseTag(item.Tag)
	if err != nil {
		return nil, err
	}
	privacy, err := shared.ParsePrivacy(item.Privacy)
	if err != nil {
		return nil, err
	}
	return &prayer.Prayer{
		ID:         item.PrayerID,
		AuthorID:   item.AuthorID,
		AuthorName: item.AuthorName,
		Title:      item.Title,
		Body:       item.Body,
		Tag:        tag,
		Privacy:    privacy,
		Vector:     shared.Vector(item.Vector),
		TopicRefs:  item.TopicRefs,
		CreatedAt:  item.CreatedAt,
		UpdatedAt:  item.UpdatedAt,
	}, nil
}

func marshalTopic(t *topic.Topic, version int64) (map[string]types.AttributeValue, error) {
	item := topicItem{
		PK:          BuildUserPK(t.AuthorID),
		SK:          BuildTopicSK(t.ID),
		EntityType:  EntityTypeTopic,
		TopicID:     t.ID,
		AuthorID:    t.AuthorID,
		Title:       t.Title,
		ContextText: t.ContextText,
		Vector:      t.Vector,
		Version:     version,
		CreatedAt:   t.CreatedAt.UTC(),
		UpdatedAt:   t.UpdatedAt.UTC(),
	}
	for _, tag := range t.Tags {
		item.Tags = append(item.Tags, string(tag))
	}
	for _, j := range t.Journey {
		item.Journey = append(item.Journey, journeyItem{
			ID:         j.ID,
			Tag:        string(j.Tag),
			Title:      j.Title,
			Body:       j.Body,
			CreatedAt:  j.CreatedAt.UTC(),
			AuthorID:   j.AuthorID,
			AuthorName: j.AuthorName,
		})
	}
	return attributevalue.MarshalMap(item)
}

func unmarshalTopic(av map[string]types.AttributeValue) (*topic.Topic, error) {
	var item topicItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal topic: %w", err)
	}
	if item.EntityType != EntityTypeTopic {
		return nil, fmt.Errorf("item %s has entity type %q, want %q", item.SK, item.EntityType, EntityTypeTopic)
	}
	t := &topic.Topic{
		ID:          item.TopicID,
		AuthorID:    item.AuthorID,
		Title:       item.Title,
		ContextText: item.ContextText,
		Vector:      shared.Vector(item.Vector),
		Version:     item.Version,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
	for _, s := range item.Tags {
		tag, err := shared.ParseTag(s)
		if err != nil {
			return nil, err
		}
		t.Tags = append(t.Tags, tag)
	}
	for _, j := range item.Journey {
		tag, err := shared.ParseTag(j.Tag)
		if err != nil {
			return nil, err
		}
		t.Journey = append(t.Journey, topic.JourneyItem{
			ID:         j.ID,
			Tag:        tag,
			Title:      j.Title,
			Body:       j.Body,
			CreatedAt:  j.CreatedAt,
			AuthorID:   j.AuthorID,
			AuthorName: j.AuthorName,
		})
	}
	return t, nil
}
