package handlers

import (
	"flock-backend/internal/domain/shared"
	"flock-backend/internal/service/similarity"
)

// SimilarityResult is a ranked record as returned to clients.
type SimilarityResult struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Tag        shared.Tag        `json:"tag"`
	EntityKind shared.EntityKind `json:"entityKind"`
	Similarity string            `json:"similarity"`
}

// RankResponse is the body of the rank callable.
type RankResponse struct {
	Result []SimilarityResult `json:"result"`
}

func toSimilarityResults(results []similarity.Result) []SimilarityResult {
	out := make([]SimilarityResult, 0, len(results))
	for _, r := range results {
		out = append(out, SimilarityResult{
			ID:         r.ID,
			Title:      r.Title,
			Tag:        r.Tag,
			EntityKind: r.Kind,
			Similarity: r.FormattedSimilarity(),
		})
	}
	return out
}
