// Package prayer handles prayer submission and reads. Submission saves
// first and analyzes second; analysis never blocks the save.
package prayer

import (
	"context"
	"time"

	"go.uber.org/zap"

	prayerdomain "flock-backend/internal/domain/prayer"
	"flock-backend/internal/domain/shared"
	apperrors "flock-backend/internal/errors"
	"flock-backend/internal/repository"
	"flock-backend/internal/service/embedding"
	"flock-backend/internal/service/search"
	"flock-backend/internal/service/similarity"
)

// Searcher ranks the author's candidates against a vector.
type Searcher interface {
	SearchByVector(ctx context.Context, in search.SearchInput) ([]similarity.Result, error)
}

// SubmitInput is a new prayer.
type SubmitInput struct {
	AuthorID   string
	AuthorName string
	Title      string
	Body       string
	Tag        shared.Tag
	Privacy    shared.Privacy
	AIOptIn    bool
	TopK       int
}

// SubmitResult carries the saved prayer and any link suggestions.
type SubmitResult struct {
	Prayer           *prayerdomain.Prayer `json:"prayer"`
	Suggestions      []similarity.Result  `json:"suggestions"`
	AnalysisDegraded bool                 `json:"analysisDegraded"`
}

// Service manages prayers.
type Service struct {
	repo       repository.PrayerRepository
	embedder   embedding.Embedder
	searcher   Searcher
	textBudget int
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a new Service
func NewService(repo repository.PrayerRepository, embedder embedding.Embedder, searcher Searcher, textBudget int, logger *zap.Logger) *Service {
	return &Service{
		repo:       repo,
		embedder:   embedder,
		searcher:   searcher,
		textBudget: textBudget,
		logger:     logger,
		now:        time.Now,
	}
}

// Submit validates and saves a prayer. With AIOptIn it then embeds the
// prayer, stores the vector and returns similar records. Any failure after
// the save only sets AnalysisDegraded.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	tag := in.Tag
	if tag == "" {
		tag = shared.TagRequest
	}
	p, err := prayerdomain.New(in.AuthorID, in.AuthorName, in.Title, in.Body, tag, in.Privacy, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.SavePrayer(ctx, p); err != nil {
		return nil, apperrors.Wrap(err, "failed to save prayer")
	}

	s.logger.Info("Prayer saved",
		zap.String("prayerID", p.ID),
		zap.String("authorID", p.AuthorID),
		zap.String("tag", string(p.Tag)),
	)

	result := &SubmitResult{Prayer: p, Suggestions: []similarity.Result{}}
	if !in.AIOptIn {
		return result, nil
	}

	suggestions, err := s.analyze(ctx, p, in.TopK)
	if err != nil {
		s.logger.Warn("Prayer analysis failed, continuing without suggestions",
			zap.String("prayerID", p.ID),
			zap.Error(err),
		)
		result.AnalysisDegraded = true
		return result, nil
	}
	result.Suggestions = suggestions
	return result, nil
}

func (s *Service) analyze(ctx context.Context, p *prayerdomain.Prayer, topK int) ([]similarity.Result, error) {
	text := embedding.PrayerText(p.CreatedAt, p.Title, p.Body, s.textBudget)
	v, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetPrayerVector(ctx, p.AuthorID, p.ID, v); err != nil {
		return nil, err
	}
	if err := p.AttachVector(v); err != nil {
		return nil, err
	}
	results, err := s.searcher.SearchByVector(ctx, search.SearchInput{
		UserID:         p.AuthorID,
		QueryEmbedding: v,
		TopK:           topK,
		SourcePrayerID: p.ID,
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Get returns one of the author's prayers.
func (s *Service) Get(ctx context.Context, authorID, id string) (*prayerdomain.Prayer, error) {
	if authorID == "" {
		return nil, apperrors.NewUnauthenticated("")
	}
	return s.repo.GetPrayer(ctx, authorID, id)
}

// List returns the author's prayers, newest first.
func (s *Service) List(ctx context.Context, authorID string) ([]*prayerdomain.Prayer, error) {
	if authorID == "" {
		return nil, apperrors.NewUnauthenticated("")
	}
	prayers, err := s.repo.ListPrayers(ctx, authorID)
	if apperrors.IsNotFound(err) {
		return []*prayerdomain.Prayer{}, nil
	}
	return prayers, err
}

// Delete removes a prayer. Topics it joined keep their journey snapshot of
// it and are not modified.
func (s *Service) Delete(ctx context.Context, authorID, id string) error {
	if authorID == "" {
		return apperrors.NewUnauthenticated("")
	}
	p, err := s.repo.GetPrayer(ctx, authorID, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeletePrayer(ctx, authorID, id); err != nil {
		return apperrors.Wrap(err, "failed to delete prayer")
	}
	s.logger.Info("Prayer deleted",
		zap.String("prayerID", id),
		zap.String("authorID", authorID),
		zap.Int("linkedTopics", len(p.TopicRefs)),
	)
	return nil
}
