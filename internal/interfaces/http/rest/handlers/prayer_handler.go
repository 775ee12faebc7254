package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"flock-backend/internal/auth"
	prayerdomain "flock-backend/internal/domain/prayer"
	"flock-backend/internal/domain/shared"
	apperrors "flock-backend/internal/errors"
	"flock-backend/internal/service/prayer"
)

// PrayerHandler handles prayer-related HTTP requests
type PrayerHandler struct {
	prayers *prayer.Service
	errs    *apperrors.ErrorHandler
	logger  *zap.Logger
}

// NewPrayerHandler creates a new prayer handler
func NewPrayerHandler(svc *prayer.Service, errs *apperrors.ErrorHandler, logger *zap.Logger) *PrayerHandler {
	return &PrayerHandler{prayers: svc, errs: errs, logger: logger}
}

// SubmitPrayerRequest is the body of POST /prayers.
type SubmitPrayerRequest struct {
	Title   string `json:"title" validate:"max=200"`
	Body    string `json:"body" validate:"max=10000"`
	Tag     string `json:"tag" validate:"omitempty,oneof=request praise thanksgiving confession lament"`
	Privacy string `json:"privacy" validate:"omitempty,oneof=private public"`
	AIOptIn bool   `json:"aiOptIn"`
	TopK    int    `json:"topK" validate:"gte=0"`
}

// SubmitPrayerResponse is returned by POST /prayers.
type SubmitPrayerResponse struct {
	Prayer           *prayerdomain.Prayer `json:"prayer"`
	Suggestions      []SimilarityResult   `json:"suggestions"`
	AnalysisDegraded bool                 `json:"analysisDegraded"`
}

// Submit handles POST /prayers
func (h *PrayerHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitPrayerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	tag, err := shared.ParseTag(req.Tag)
	if err != nil {
		h.errs.Handle(w, r, apperrors.NewInvalidArgument(apperrors.CodeInvalidTag, err.Error()))
		return
	}
	privacy, err := shared.ParsePrivacy(req.Privacy)
	if err != nil {
		h.errs.Handle(w, r, apperrors.NewInvalidArgument("invalid-privacy", err.Error()))
		return
	}

	user, _ := auth.UserFromContext(r.Context())
	res, err := h.prayers.Submit(r.Context(), prayer.SubmitInput{
		AuthorID:   user.ID,
		AuthorName: user.Name,
		Title:      req.Title,
		Body:       req.Body,
		Tag:        tag,
		Privacy:    privacy,
		AIOptIn:    req.AIOptIn,
		TopK:       req.TopK,
	})
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, SubmitPrayerResponse{
		Prayer:           res.Prayer,
		Suggestions:      toSimilarityResults(res.Suggestions),
		AnalysisDegraded: res.AnalysisDegraded,
	})
}

// List handles GET /prayers
func (h *PrayerHandler) List(w http.ResponseWriter, r *http.Request) {
	prayers, err := h.prayers.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"prayers": prayers,
		"count":   len(prayers),
	})
}

// Get handles GET /prayers/{prayerID}
func (h *PrayerHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.prayers.Get(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "prayerID"))
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Delete handles DELETE /prayers/{prayerID}
func (h *PrayerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.prayers.Delete(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "prayerID")); err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
