// Package shared holds the value types used by both prayers and topics.
package shared

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// EntityKind is the explicit discriminant stored on every searchable record.
type EntityKind string

const (
	KindPrayer EntityKind = "prayer"
	KindTopic  EntityKind = "topic"
)

// Valid reports whether k is a known kind.
func (k EntityKind) Valid() bool {
	return k == KindPrayer || k == KindTopic
}

// ParseEntityKind parses a stored discriminant. Unknown values are an error,
// never a guess.
func ParseEntityKind(s string) (EntityKind, error) {
	k := EntityKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown entity kind %q", s)
	}
	return k, nil
}

// Tag is the category of a prayer, one of a closed set.
type Tag string

const (
	TagRequest      Tag = "request"
	TagPraise       Tag = "praise"
	TagThanksgiving Tag = "thanksgiving"
	TagConfession   Tag = "confession"
	TagLament       Tag = "lament"
)

var tagOrder = map[Tag]int{
	TagRequest:      0,
	TagPraise:       1,
	TagThanksgiving: 2,
	TagConfession:   3,
	TagLament:       4,
}

// Valid reports whether t is in the closed tag set.
func (t Tag) Valid() bool {
	_, ok := tagOrder[t]
	return ok
}

// ParseTag parses a tag, defaulting an empty string to TagRequest.
func ParseTag(s string) (Tag, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return TagRequest, nil
	}
	t := Tag(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown tag %q", s)
	}
	return t, nil
}

// UnionTags returns the set union of the given tag groups in canonical order.
// Invalid tags are dropped.
func UnionTags(groups ...[]Tag) []Tag {
	seen := make(map[Tag]struct{})
	for _, g := range groups {
		for _, t := range g {
			if t.Valid() {
				seen[t] = struct{}{}
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]Tag, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return tagOrder[out[i]] < tagOrder[out[j]] })
	return out
}

// Privacy controls who may read a prayer.
type Privacy string

const (
	PrivacyPrivate Privacy = "private"
	PrivacyPublic  Privacy = "public"
)

// ParsePrivacy parses a privacy value, defaulting to private.
func ParsePrivacy(s string) (Privacy, error) {
	switch Privacy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PrivacyPrivate:
		return PrivacyPrivate, nil
	case PrivacyPublic:
		return PrivacyPublic, nil
	default:
		return "", fmt.Errorf("unknown privacy %q", s)
	}
}

// TopicRef is a back-reference from a prayer to a topic it has joined.
type TopicRef struct {
	ID    string `json:"id" dynamodbav:"id"`
	Title string `json:"title" dynamodbav:"title"`
}

// EntityRef addresses one searchable record.
type EntityRef struct {
	Kind EntityKind `json:"entityKind"`
	ID   string     `json:"id"`
}

func (r EntityRef) String() string {
	return string(r.Kind) + "/" + r.ID
}

// NewID returns a new random identifier.
func NewID() string {
	return uuid.New().String()
}

// Truncate shortens s to at most limit runes. A limit <= 0 means no limit.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
