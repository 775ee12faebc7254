// Package search answers "which of my earlier prayers is this like?" for a
// vector or a draft being typed.
package search

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"flock-backend/internal/domain/shared"
	apperrors "flock-backend/internal/errors"
	"flock-backend/internal/infrastructure/observability"
	"flock-backend/internal/service/embedding"
	"flock-backend/internal/service/retrieval"
	"flock-backend/internal/service/similarity"
)

// CandidateFinder loads an author's searchable records.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, authorID, excludeID string) (*retrieval.Result, error)
}

// StaleVectorHealer clears vectors left on linked prayers.
type StaleVectorHealer interface {
	Forget(ctx context.Context, authorID string, refs []shared.EntityRef)
}

// SearchInput is the rank request.
type SearchInput struct {
	UserID         string
	QueryEmbedding shared.Vector
	TopK           int
	SourcePrayerID string
}

// TextQuery searches with a draft that has not been saved yet.
type TextQuery struct {
	UserID     string
	SessionID  string
	Generation uint64
	Title      string
	Body       string
	ExcludeID  string
	TopK       int
}

// Service runs similarity searches.
type Service struct {
	finder     CandidateFinder
	ranker     *similarity.Ranker
	embedder   embedding.Embedder
	healer     StaleVectorHealer
	sessions   *Sessions
	textBudget int
	logger     *zap.Logger
	metrics    *observability.Collector
	now        func() time.Time
}

// NewService creates a new Service. healer may be nil.
func NewService(
	finder CandidateFinder,
	ranker *similarity.Ranker,
	embedder embedding.Embedder,
	healer StaleVectorHealer,
	sessions *Sessions,
	textBudget int,
	logger *zap.Logger,
	metrics *observability.Collector,
) *Service {
	return &Service{
		finder:     finder,
		ranker:     ranker,
		embedder:   embedder,
		healer:     healer,
		sessions:   sessions,
		textBudget: textBudget,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
	}
}

// Sessions returns the session tracker.
func (s *Service) Sessions() *Sessions {
	return s.sessions
}

// SearchByVector ranks the caller's own candidates against in.QueryEmbedding.
// The source prayer is never returned.
func (s *Service) SearchByVector(ctx context.Context, in SearchInput) ([]similarity.Result, error) {
	if in.UserID == "" {
		return nil, apperrors.NewUnauthenticated("")
	}
	if err := similarity.ValidateQuery(in.QueryEmbedding, s.ranker.Limits().MaxVectorLength); err != nil {
		s.metrics.ObserveRank("invalid", 0)
		return nil, err
	}

	ctx, span := otel.Tracer("flock/search").Start(ctx, "search.SearchByVector")
	defer span.End()

	found, err := s.finder.FindCandidates(ctx, in.UserID, in.SourcePrayerID)
	if err != nil {
		s.metrics.ObserveRank("error", 0)
		return nil, err
	}
	if len(found.Stale) > 0 && s.healer != nil {
		s.healer.Forget(ctx, in.UserID, found.Stale)
	}

	results, err := s.ranker.Rank(in.QueryEmbedding, found.Candidates, in.TopK)
	if err != nil {
		s.metrics.ObserveRank("error", len(found.Candidates))
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("search.candidates", len(found.Candidates)),
		attribute.Int("search.results", len(results)),
	)
	s.metrics.ObserveRank("ok", len(found.Candidates))
	return results, nil
}

// SearchByText embeds a draft and searches with it. When q carries a
// session, the results are dropped with ErrSuperseded if a newer generation
// arrived or the session was abandoned meanwhile.
func (s *Service) SearchByText(ctx context.Context, q TextQuery) ([]similarity.Result, error) {
	if q.UserID == "" {
		return nil, apperrors.NewUnauthenticated("")
	}
	if !s.sessions.Begin(q.SessionID, q.Generation) {
		s.metrics.ObserveStaleResponse()
		return nil, ErrSuperseded
	}

	text := embedding.PrayerText(s.now(), q.Title, q.Body, s.textBudget)
	if text == "" {
		return nil, apperrors.NewInvalidArgument(apperrors.CodeEmptyContent, "draft has no title or body")
	}
	v, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	results, err := s.SearchByVector(ctx, SearchInput{
		UserID:         q.UserID,
		QueryEmbedding: v,
		TopK:           q.TopK,
		SourcePrayerID: q.ExcludeID,
	})
	if err != nil {
		return nil, err
	}

	if !s.sessions.Current(q.SessionID, q.Generation) {
		s.metrics.ObserveStaleResponse()
		s.logger.Debug("Discarded superseded search",
			zap.String("sessionID", q.SessionID),
			zap.Uint64("generation", q.Generation),
		)
		return nil, ErrSuperseded
	}
	return results, nil
}
