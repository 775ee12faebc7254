// Package similarity ranks candidates against a query vector by brute-force
// cosine similarity.
package similarity

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync/atomic"

	"flock-backend/internal/domain/candidate"
	"flock-backend/internal/domain/shared"
	apperrors "flock-backend/internal/errors"
)

// Limits bounds a rank call.
type Limits struct {
	DefaultTopK     int
	MaxTopK         int
	MaxVectorLength int
}

// DefaultLimits returns the standard bounds.
func DefaultLimits() Limits {
	return Limits{DefaultTopK: 5, MaxTopK: 10, MaxVectorLength: 1536}
}

// Result is the projection of a ranked candidate. It never carries the vector.
type Result struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Tag        shared.Tag        `json:"tag"`
	Tags       []shared.Tag      `json:"tags,omitempty"`
	Kind       shared.EntityKind `json:"entityKind"`
	Similarity float64           `json:"-"`
}

// FormattedSimilarity renders the score with two decimals.
func (r Result) FormattedSimilarity() string {
	return strconv.FormatFloat(r.Similarity, 'f', 2, 64)
}

// Ranker scores candidates. Limits can be swapped at runtime.
type Ranker struct {
	limits atomic.Pointer[Limits]
}

// NewRanker creates a ranker with the given limits.
func NewRanker(limits Limits) *Ranker {
	r := &Ranker{}
	r.SetLimits(limits)
	return r
}

// SetLimits replaces the limits used by subsequent calls.
func (r *Ranker) SetLimits(l Limits) {
	r.limits.Store(&l)
}

// Limits returns the current limits.
func (r *Ranker) Limits() Limits {
	return *r.limits.Load()
}

// Rank returns up to min(topK, MaxTopK) candidates ordered by descending
// similarity. Equal scores keep candidate order. topK <= 0 selects
// DefaultTopK. The candidate list is not filtered.
func (r *Ranker) Rank(query shared.Vector, candidates []candidate.Candidate, topK int) ([]Result, error) {
	limits := r.Limits()
	if err := ValidateQuery(query, limits.MaxVectorLength); err != nil {
		return nil, err
	}

	if topK <= 0 {
		topK = limits.DefaultTopK
	}
	if topK > limits.MaxTopK {
		topK = limits.MaxTopK
	}

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		if c == nil {
			continue
		}
		results = append(results, Result{
			ID:         c.ID(),
			Title:      c.Title(),
			Tag:        candidate.PrimaryTag(c),
			Tags:       c.Tags(),
			Kind:       c.Kind(),
			Similarity: Cosine(query, c.Vector()),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// ValidateQuery rejects an empty, oversized or non-finite query vector.
func ValidateQuery(query shared.Vector, maxLength int) error {
	if query.IsZero() {
		return apperrors.NewInvalidArgument(apperrors.CodeEmptyVector, "query embedding is empty")
	}
	if maxLength > 0 && len(query) > maxLength {
		return apperrors.NewInvalidArgument(apperrors.CodeVectorTooLong,
			fmt.Sprintf("query embedding has %d dimensions, limit is %d", len(query), maxLength))
	}
	if !query.Finite() {
		return apperrors.NewInvalidArgument(apperrors.CodeNonFiniteVector, "query embedding contains non-finite values")
	}
	return nil
}

// Cosine computes dot(a,b) / (|a|*|b|). Vectors of different length and
// vectors with zero magnitude score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	s := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(s) {
		return 0
	}
	return s
}
