package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"flock-backend/internal/auth"
	"flock-backend/internal/domain/shared"
	apperrors "flock-backend/internal/errors"
	"flock-backend/internal/service/lifecycle"
	"flock-backend/internal/service/linking"
)

// LinkHandler serves topic merges and vector maintenance.
type LinkHandler struct {
	engine    *linking.Engine
	lifecycle *lifecycle.Manager
	errs      *apperrors.ErrorHandler
	logger    *zap.Logger
}

// NewLinkHandler creates a new link handler
func NewLinkHandler(engine *linking.Engine, manager *lifecycle.Manager, errs *apperrors.ErrorHandler, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{engine: engine, lifecycle: manager, errs: errs, logger: logger}
}

// LinkRequest is the body of POST /prayers/{prayerID}/link.
type LinkRequest struct {
	TargetID   string `json:"targetId" validate:"required"`
	TargetKind string `json:"targetKind" validate:"required,oneof=prayer topic"`
	TopicTitle string `json:"topicTitle" validate:"max=200"`
	AIOptIn    bool   `json:"aiOptIn"`
}

// Link handles POST /prayers/{prayerID}/link
func (h *LinkHandler) Link(w http.ResponseWriter, r *http.Request) {
	var req LinkRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	kind, err := shared.ParseEntityKind(req.TargetKind)
	if err != nil {
		h.errs.Handle(w, r, apperrors.NewInvalidArgument("invalid-kind", err.Error()))
		return
	}

	res, err := h.engine.MergeIntoTopic(r.Context(), linking.LinkRequest{
		AuthorID:   auth.UserID(r.Context()),
		PrayerID:   chi.URLParam(r, "prayerID"),
		Target:     shared.EntityRef{Kind: kind, ID: req.TargetID},
		TopicTitle: req.TopicTitle,
		AIOptIn:    req.AIOptIn,
	})
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// RemoveVector handles DELETE /prayers/{prayerID}/vector
func (h *LinkHandler) RemoveVector(w http.ResponseWriter, r *http.Request) {
	ref := shared.EntityRef{Kind: shared.KindPrayer, ID: chi.URLParam(r, "prayerID")}
	if err := h.lifecycle.RemoveStandaloneVector(r.Context(), auth.UserID(r.Context()), ref); err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Heal handles POST /maintenance/heal
func (h *LinkHandler) Heal(w http.ResponseWriter, r *http.Request) {
	report, err := h.lifecycle.Heal(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	h.logger.Info("Heal scan finished",
		zap.Int("vectorsCleared", len(report.VectorsCleared)),
		zap.Int("topicsTombstoned", len(report.TopicsTombstoned)),
		zap.Int("conflicts", report.Conflicts),
	)
	respondJSON(w, http.StatusOK, report)
}
