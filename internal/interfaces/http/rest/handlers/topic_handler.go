package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"flock-backend/internal/auth"
	"flock-backend/internal/domain/topic"
	apperrors "flock-backend/internal/errors"
	"flock-backend/internal/repository"
)

// TopicHandler serves read access to topics.
type TopicHandler struct {
	topics repository.TopicRepository
	errs   *apperrors.ErrorHandler
	logger *zap.Logger
}

// NewTopicHandler creates a new topic handler
func NewTopicHandler(topics repository.TopicRepository, errs *apperrors.ErrorHandler, logger *zap.Logger) *TopicHandler {
	return &TopicHandler{topics: topics, errs: errs, logger: logger}
}

// List handles GET /topics
func (h *TopicHandler) List(w http.ResponseWriter, r *http.Request) {
	topics, err := h.topics.ListTopics(r.Context(), auth.UserID(r.Context()))
	if apperrors.IsNotFound(err) {
		topics, err = []*topic.Topic{}, nil
	}
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"topics": topics,
		"count":  len(topics),
	})
}

// Get handles GET /topics/{topicID}
func (h *TopicHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.topics.GetTopic(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "topicID"))
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}
