// Package retrieval loads the caller's own searchable prayers and topics.
package retrieval

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"flock-backend/internal/domain/candidate"
	"flock-backend/internal/domain/prayer"
	"flock-backend/internal/domain/shared"
	"flock-backend/internal/domain/topic"
	apperrors "flock-backend/internal/errors"
	"flock-backend/internal/repository"
)

// Result is the outcome of a candidate scan.
type Result struct {
	// Candidates are prayers first, newest first, then topics.
	Candidates []candidate.Candidate
	// Stale lists linked prayers still carrying a standalone vector. They
	// are excluded from Candidates and should be healed.
	Stale []shared.EntityRef
}

// Retriever fetches candidates for one author. Only the author's own
// records are ever returned.
type Retriever struct {
	prayers repository.PrayerRepository
	topics  repository.TopicRepository
	logger  *zap.Logger
}

// NewRetriever creates a new Retriever
func NewRetriever(prayers repository.PrayerRepository, topics repository.TopicRepository, logger *zap.Logger) *Retriever {
	return &Retriever{prayers: prayers, topics: topics, logger: logger}
}

// FindCandidates returns every prayer and topic of authorID that carries a
// vector, except excludeID. Linked prayers are left out even if a stale
// vector remains on them.
func (r *Retriever) FindCandidates(ctx context.Context, authorID, excludeID string) (*Result, error) {
	if authorID == "" {
		return nil, apperrors.NewUnauthenticated("")
	}

	var (
		prayers []*prayer.Prayer
		topics  []*topic.Topic
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		prayers, err = r.prayers.ListPrayers(gctx, authorID)
		return err
	})
	g.Go(func() error {
		var err error
		topics, err = r.topics.ListTopics(gctx, authorID)
		return err
	})
	if err := g.Wait(); err != nil {
		if apperrors.IsNotFound(err) {
			return &Result{}, nil
		}
		return nil, apperrors.Wrap(err, "failed to load candidates")
	}

	res := &Result{Candidates: make([]candidate.Candidate, 0, len(prayers)+len(topics))}
	for _, p := range prayers {
		switch {
		case p.ID == excludeID, p.AuthorID != authorID:
			continue
		case p.HasStaleVector():
			res.Stale = append(res.Stale, p.Ref())
		case p.HasVector() && !p.IsLinked():
			res.Candidates = append(res.Candidates, candidate.FromPrayer(p))
		}
	}
	for _, t := range topics {
		if t.ID == excludeID || t.AuthorID != authorID || !t.HasVector() {
			continue
		}
		res.Candidates = append(res.Candidates, candidate.FromTopic(t))
	}

	r.logger.Debug("Loaded similarity candidates",
		zap.String("authorID", authorID),
		zap.Int("prayers", len(prayers)),
		zap.Int("topics", len(topics)),
		zap.Int("candidates", len(res.Candidates)),
		zap.Int("stale", len(res.Stale)),
	)
	return res, nil
}

// Load returns the full record behind a ranked result. A missing record is
// NotFound.
func (r *Retriever) Load(ctx context.Context, authorID string, ref shared.EntityRef) (candidate.Candidate, error) {
	switch ref.Kind {
	case shared.KindPrayer:
		p, err := r.prayers.GetPrayer(ctx, authorID, ref.ID)
		if err != nil {
			return nil, err
		}
		return candidate.FromPrayer(p), nil
	case shared.KindTopic:
		t, err := r.topics.GetTopic(ctx, authorID, ref.ID)
		if err != nil {
			return nil, err
		}
		return candidate.FromTopic(t), nil
	default:
		return nil, apperrors.NewInvalidArgument("invalid-kind", "unknown entity kind "+string(ref.Kind))
	}
}
