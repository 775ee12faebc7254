package topic

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"flock-backend/internal/domain/prayer"
	"flock-backend/internal/domain/shared"
)

// JourneyItem is a snapshot of a prayer taken when it joined a topic.
// Later edits to the prayer do not change it.
type JourneyItem struct {
	ID         string     `json:"id"`
	Tag        shared.Tag `json:"tag"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	CreatedAt  time.Time  `json:"createdAt"`
	AuthorID   string     `json:"authorId"`
	AuthorName string     `json:"authorName,omitempty"`
}

// Snapshot captures p as a journey item, truncating the body to bodyLimit runes.
func Snapshot(p *prayer.Prayer, bodyLimit int) JourneyItem {
	return JourneyItem{
		ID:         p.ID,
		Tag:        p.Tag,
		Title:      strings.TrimSpace(p.Title),
		Body:       shared.Truncate(strings.TrimSpace(p.Body), bodyLimit),
		CreatedAt:  p.CreatedAt.UTC(),
		AuthorID:   p.AuthorID,
		AuthorName: p.AuthorName,
	}
}

// Valid reports whether the item can appear in a journey: it needs an id
// and at least one of title or body.
func (j JourneyItem) Valid() bool {
	if j.ID == "" {
		return false
	}
	return strings.TrimSpace(j.Title) != "" || strings.TrimSpace(j.Body) != ""
}

// MergeJourney concatenates the groups in order, keeps the last snapshot
// seen for each id, drops invalid items and sorts newest first. Items with
// equal createdAt keep their merge order. An empty result is nil.
func MergeJourney(groups ...[]JourneyItem) []JourneyItem {
	index := make(map[string]int)
	var merged []JourneyItem
	for _, g := range groups {
		for _, item := range g {
			if i, ok := index[item.ID]; ok {
				merged[i] = item
				continue
			}
			index[item.ID] = len(merged)
			merged = append(merged, item)
		}
	}

	out := merged[:0]
	for _, item := range merged {
		if item.Valid() {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// ContextText joins each item's title and truncated body, one item per line.
// Empty fields are skipped. Lines are taken in journey order (newest first)
// until the next one would exceed budget runes; the first line is truncated
// rather than dropped. A budget <= 0 means no limit.
func ContextText(journey []JourneyItem, bodyLimit, budget int) string {
	lines := make([]string, 0, len(journey))
	used := 0
	for _, item := range journey {
		parts := make([]string, 0, 2)
		if title := strings.TrimSpace(item.Title); title != "" {
			parts = append(parts, title)
		}
		if body := shared.Truncate(strings.TrimSpace(item.Body), bodyLimit); body != "" {
			parts = append(parts, body)
		}
		if len(parts) == 0 {
			continue
		}
		line := strings.Join(parts, ", ")
		n := utf8.RuneCountInString(line)
		if len(lines) > 0 {
			n++
		}
		if budget > 0 && used+n > budget {
			if len(lines) == 0 {
				lines = append(lines, shared.Truncate(line, budget))
			}
			break
		}
		used += n
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// Tags returns the tags of every item.
func Tags(journey []JourneyItem) []shared.Tag {
	tags := make([]shared.Tag, 0, len(journey))
	for _, item := range journey {
		tags = append(tags, item.Tag)
	}
	return tags
}
