package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"flock-backend/internal/auth"
	"flock-backend/internal/domain/shared"
	apperrors "flock-backend/internal/errors"
	"flock-backend/internal/service/search"
)

// Headers carried by draft suggestion requests.
const (
	HeaderSessionID  = "X-Session-ID"
	HeaderGeneration = "X-Session-Generation"
)

// SearchHandler serves similarity searches.
type SearchHandler struct {
	search *search.Service
	errs   *apperrors.ErrorHandler
	logger *zap.Logger
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(svc *search.Service, errs *apperrors.ErrorHandler, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{search: svc, errs: errs, logger: logger}
}

// RankRequest is the body of POST /similar-prayers.
type RankRequest struct {
	QueryEmbedding []float32 `json:"queryEmbedding"`
	TopK           int       `json:"topK" validate:"gte=0"`
	UserID         string    `json:"userId"`
	SourcePrayerID string    `json:"sourcePrayerId"`
}

// DraftRequest is the body of POST /prayers/{id}/suggestions.
type DraftRequest struct {
	Title string `json:"title" validate:"max=200"`
	Body  string `json:"body" validate:"max=10000"`
	TopK  int    `json:"topK" validate:"gte=0"`
}

// SimilarPrayers handles POST /similar-prayers
func (h *SearchHandler) SimilarPrayers(w http.ResponseWriter, r *http.Request) {
	var req RankRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errs.Handle(w, r, err)
		return
	}

	userID := auth.UserID(r.Context())
	if req.UserID != "" && req.UserID != userID {
		h.errs.Handle(w, r, apperrors.NewUnauthenticated("userId does not match the authenticated caller"))
		return
	}

	results, err := h.search.SearchByVector(r.Context(), search.SearchInput{
		UserID:         userID,
		QueryEmbedding: shared.Vector(req.QueryEmbedding),
		TopK:           req.TopK,
		SourcePrayerID: req.SourcePrayerID,
	})
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, RankResponse{Result: toSimilarityResults(results)})
}

// DraftSuggestions handles POST /prayers/{id}/suggestions. A response that
// was superseded by a newer generation, or whose session was abandoned,
// is answered with 204 and no body.
func (h *SearchHandler) DraftSuggestions(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errs.Handle(w, r, err)
		return
	}

	var gen uint64
	if raw := r.Header.Get(HeaderGeneration); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			h.errs.Handle(w, r, apperrors.NewInvalidArgument("invalid-generation", HeaderGeneration+" must be an unsigned integer"))
			return
		}
		gen = parsed
	}

	results, err := h.search.SearchByText(r.Context(), search.TextQuery{
		UserID:     auth.UserID(r.Context()),
		SessionID:  r.Header.Get(HeaderSessionID),
		Generation: gen,
		Title:      req.Title,
		Body:       req.Body,
		ExcludeID:  chi.URLParam(r, "prayerID"),
		TopK:       req.TopK,
	})
	if errors.Is(err, search.ErrSuperseded) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, RankResponse{Result: toSimilarityResults(results)})
}

// AbandonSession handles DELETE /sessions/{sessionID}
func (h *SearchHandler) AbandonSession(w http.ResponseWriter, r *http.Request) {
	h.search.Sessions().Abandon(chi.URLParam(r, "sessionID"))
	w.WriteHeader(http.StatusNoContent)
}
