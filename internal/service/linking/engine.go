// Package linking merges a prayer into a topic. A link either creates a
// topic from two bare prayers or joins an existing topic, and in both cases
// migrates vectors so only the topic stays searchable.
package linking

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"flock-backend/internal/domain/candidate"
	"flock-backend/internal/domain/events"
	"flock-backend/internal/domain/prayer"
	"flock-backend/internal/domain/shared"
	"flock-backend/internal/domain/topic"
	apperrors "flock-backend/internal/errors"
	"flock-backend/internal/infrastructure/observability"
	"flock-backend/internal/repository"
	"flock-backend/internal/service/embedding"
	"flock-backend/internal/service/lifecycle"
)

// Loader fetches the full record behind a ranked result.
type Loader interface {
	Load(ctx context.Context, authorID string, ref shared.EntityRef) (candidate.Candidate, error)
}

// Options bounds journey snapshots and the text embedded for a topic.
type Options struct {
	SnapshotBodyLimit int
	ContextBodyLimit  int

	// ContextBudget caps the whole context text in runes.
	ContextBudget int
}

// LinkRequest asks to merge PrayerID into whatever Target resolves to.
type LinkRequest struct {
	AuthorID   string
	PrayerID   string
	Target     shared.EntityRef
	TopicTitle string
	AIOptIn    bool
}

// LinkResult is the outcome of a successful merge.
type LinkResult struct {
	Prayer     *prayer.Prayer `json:"prayer"`
	TopicID    string         `json:"topicId"`
	Topic      *topic.Topic   `json:"topic"`
	Resolution Resolution     `json:"resolution"`
	State      State          `json:"state"`
	Path       []State        `json:"-"`
}

// Engine runs link attempts.
type Engine struct {
	loader    Loader
	topics    repository.TopicRepository
	committer repository.MergeCommitter
	embedder  embedding.Embedder
	publisher events.Publisher
	opts      Options
	logger    *zap.Logger
	metrics   *observability.Collector
	now       func() time.Time
}

// NewEngine creates a new Engine
func NewEngine(
	loader Loader,
	topics repository.TopicRepository,
	committer repository.MergeCommitter,
	embedder embedding.Embedder,
	publisher events.Publisher,
	opts Options,
	logger *zap.Logger,
	metrics *observability.Collector,
) *Engine {
	return &Engine{
		loader:    loader,
		topics:    topics,
		committer: committer,
		embedder:  embedder,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// MergeIntoTopic links req.PrayerID to req.Target. Writes are issued topic
// first, then link pointers, then vector removals. On any failure the
// attempt ends in StateFailed with no retry; partial writes are left for
// lifecycle healing.
func (e *Engine) MergeIntoTopic(ctx context.Context, req LinkRequest) (*LinkResult, error) {
	ctx, span := otel.Tracer("flock/linking").Start(ctx, "linking.MergeIntoTopic")
	defer span.End()
	span.SetAttributes(
		attribute.String("link.target_kind", string(req.Target.Kind)),
		attribute.Bool("link.ai_opt_in", req.AIOptIn),
	)

	m := newMachine()
	res, err := e.run(ctx, m, req)
	if err != nil {
		_ = m.fail(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "link failed")
		e.metrics.ObserveMerge("", string(StateFailed))
		e.logger.Warn("Link attempt failed",
			zap.String("authorID", req.AuthorID),
			zap.String("prayerID", req.PrayerID),
			zap.Stringer("target", req.Target),
			zap.Strings("path", pathStrings(m.path)),
			zap.Error(err),
		)
		return nil, err
	}
	res.Path = m.path
	span.SetAttributes(attribute.String("link.resolution", string(res.Resolution)))
	return res, nil
}

func (e *Engine) run(ctx context.Context, m *machine, req LinkRequest) (*LinkResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	entry, err := e.loadPrayer(ctx, req.AuthorID, req.PrayerID)
	if err != nil {
		return nil, err
	}

	// Unlinked -> CandidateSelected
	target, err := e.loader.Load(ctx, req.AuthorID, req.Target)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load link target")
	}
	if err := m.advance(StateCandidateSelected); err != nil {
		return nil, err
	}

	// CandidateSelected -> TopicResolved
	cmd, err := e.resolve(ctx, req, target)
	if err != nil {
		return nil, err
	}
	if err := m.advance(StateTopicResolved); err != nil {
		return nil, err
	}

	// TopicResolved -> Merged
	now := e.now().UTC()
	t := cmd.Topic()
	origin := cmd.Origin()

	groups := make([][]topic.JourneyItem, 0, 3)
	if upd, ok := cmd.(*UpdateTopicCommand); ok {
		groups = append(groups, upd.Existing.Journey)
	}
	if _, ok := cmd.(*CreateTopicCommand); ok {
		groups = append(groups, []topic.JourneyItem{topic.Snapshot(origin, e.opts.SnapshotBodyLimit)})
		t.AddTags(origin.Tag)
	}
	groups = append(groups, []topic.JourneyItem{topic.Snapshot(entry, e.opts.SnapshotBodyLimit)})
	t.AddTags(entry.Tag)
	t.SetJourney(topic.MergeJourney(groups...))
	t.UpdatedAt = now

	vectorChanged := false
	if t.Tombstoned() {
		vectorChanged = true
	} else if req.AIOptIn {
		text := topic.ContextText(t.Journey, e.opts.ContextBodyLimit, e.opts.ContextBudget)
		v, err := e.embedder.Embed(ctx, text)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to embed topic context")
		}
		t.SetContext(text, v)
		vectorChanged = true
	}

	entry.JoinTopic(t.Ref())
	entry.UpdatedAt = now
	batch := repository.NewMergeBatch()
	cmd.stage(batch, req.AuthorID)
	batch.LinkPrayer(req.AuthorID, entry.ID, entry.TopicRefs)
	if cmd.Resolution() == ResolutionNew {
		origin.JoinTopic(t.Ref())
		batch.LinkPrayer(req.AuthorID, origin.ID, origin.TopicRefs)
	}
	removed := []shared.EntityRef{entry.Ref()}
	if origin != nil {
		removed = append([]shared.EntityRef{origin.Ref()}, removed...)
	}
	for _, ref := range removed {
		batch.RemoveVector(req.AuthorID, ref)
	}

	if err := e.committer.CommitMerge(ctx, batch); err != nil {
		return nil, apperrors.Wrap(err, "failed to commit merge")
	}
	if err := m.advance(StateMerged); err != nil {
		return nil, err
	}

	switch c := cmd.(type) {
	case *CreateTopicCommand:
		t.Version = 1
	case *UpdateTopicCommand:
		t.Version = c.ExpectedVersion + 1
	}

	e.metrics.ObserveMerge(string(cmd.Resolution()), string(StateMerged))
	for range removed {
		e.metrics.ObserveVectorRemoved(lifecycle.ReasonLinked)
	}
	e.publish(ctx, linkEvents(req.AuthorID, cmd, entry, vectorChanged, now)...)

	e.logger.Info("Prayer linked to topic",
		zap.String("authorID", req.AuthorID),
		zap.String("prayerID", entry.ID),
		zap.String("topicID", t.ID),
		zap.String("resolution", string(cmd.Resolution())),
		zap.Int("journeyLength", len(t.Journey)),
		zap.Bool("tombstoned", t.Tombstoned()),
	)

	return &LinkResult{
		Prayer:     entry,
		TopicID:    t.ID,
		Topic:      t,
		Resolution: cmd.Resolution(),
		State:      StateMerged,
	}, nil
}

func validate(req LinkRequest) error {
	if strings.TrimSpace(req.AuthorID) == "" {
		return apperrors.NewUnauthenticated("")
	}
	if req.PrayerID == "" {
		return apperrors.NewInvalidArgument("missing-prayer", "prayer id is required")
	}
	if !req.Target.Kind.Valid() || req.Target.ID == "" {
		return apperrors.NewInvalidArgument("invalid-ref", "link target kind and id are required")
	}
	if req.Target.Kind == shared.KindPrayer && req.Target.ID == req.PrayerID {
		return apperrors.NewInvalidArgument(apperrors.CodeSelfLink, "a prayer cannot be linked to itself")
	}
	return nil
}

func (e *Engine) loadPrayer(ctx context.Context, authorID, id string) (*prayer.Prayer, error) {
	c, err := e.loader.Load(ctx, authorID, shared.EntityRef{Kind: shared.KindPrayer, ID: id})
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load prayer")
	}
	p, ok := c.(*candidate.Prayer)
	if !ok {
		return nil, apperrors.NewInternal("loader returned a non-prayer for a prayer ref")
	}
	return p.Entry, nil
}

// resolve picks the topic command for the matched candidate. A prayer that
// already belongs to a topic routes the link into its most recent topic.
func (e *Engine) resolve(ctx context.Context, req LinkRequest, target candidate.Candidate) (TopicCommand, error) {
	var resolveErr error
	cmd, err := candidate.Match(target,
		func(c *candidate.Prayer) TopicCommand {
			if existing := e.memberTopic(ctx, req.AuthorID, c.Entry); existing != nil {
				return &UpdateTopicCommand{Existing: existing, ExpectedVersion: existing.Version, Source: c.Entry}
			}
			t, err := topic.New(req.AuthorID, req.TopicTitle, e.now())
			if err != nil {
				resolveErr = err
				return nil
			}
			return &CreateTopicCommand{NewTopic: t, Source: c.Entry}
		},
		func(c *candidate.Topic) TopicCommand {
			return &UpdateTopicCommand{Existing: c.Aggregate, ExpectedVersion: c.Aggregate.Version}
		},
	)
	if err != nil {
		return nil, apperrors.NewInternal(err.Error())
	}
	if resolveErr != nil {
		return nil, resolveErr
	}
	return cmd, nil
}

// memberTopic returns the newest surviving topic p belongs to, or nil.
func (e *Engine) memberTopic(ctx context.Context, authorID string, p *prayer.Prayer) *topic.Topic {
	for i := len(p.TopicRefs) - 1; i >= 0; i-- {
		t, err := e.topics.GetTopic(ctx, authorID, p.TopicRefs[i].ID)
		if err == nil {
			return t
		}
		if !apperrors.IsNotFound(err) {
			e.logger.Warn("Failed to load member topic",
				zap.String("topicID", p.TopicRefs[i].ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func linkEvents(authorID string, cmd TopicCommand, entry *prayer.Prayer, vectorChanged bool, at time.Time) []events.DomainEvent {
	t := cmd.Topic()
	var out []events.DomainEvent
	switch c := cmd.(type) {
	case *CreateTopicCommand:
		out = append(out,
			events.NewTopicCreated(authorID, t.ID, t.Title, t.Tags, []string{c.Source.ID, entry.ID}, at),
			events.NewPrayerLinked(authorID, c.Source.ID, t.ID, at),
		)
	case *UpdateTopicCommand:
		out = append(out, events.NewTopicUpdated(authorID, t.ID, entry.ID, len(t.Journey), vectorChanged, t.Version, at))
	}
	return append(out, events.NewPrayerLinked(authorID, entry.ID, t.ID, at))
}

func (e *Engine) publish(ctx context.Context, evts ...events.DomainEvent) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, evts...); err != nil {
		e.logger.Warn("Failed to publish link events", zap.Error(err))
	}
}

func pathStrings(path []State) []string {
	out := make([]string, len(path))
	for i, s := range path {
		out[i] = string(s)
	}
	return out
}
