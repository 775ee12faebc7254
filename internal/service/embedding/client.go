// Package embedding turns text into vectors through a pluggable Provider and
// enforces the shape of what comes back.
package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"flock-backend/internal/domain/shared"
	apperrors "flock-backend/internal/errors"
	"flock-backend/internal/infrastructure/observability"
)

// Provider is an upstream embedding model.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// Embedder is what the services depend on.
type Embedder interface {
	Embed(ctx context.Context, text string) (shared.Vector, error)
}

// Client validates input and output around a Provider. It does not retry.
type Client struct {
	provider   Provider
	maxDims    int
	textBudget int
	logger     *zap.Logger
	metrics    *observability.Collector
}

// NewClient creates a new Client. maxDims bounds the accepted vector length;
// textBudget is the rune budget used by PrayerText.
func NewClient(provider Provider, maxDims, textBudget int, logger *zap.Logger, metrics *observability.Collector) *Client {
	return &Client{
		provider:   provider,
		maxDims:    maxDims,
		textBudget: textBudget,
		logger:     logger,
		metrics:    metrics,
	}
}

// Embed returns the vector for text. Text that is empty after trimming is
// an InvalidArgument; upstream failures and malformed vectors are
// EmbeddingErrors.
func (c *Client) Embed(ctx context.Context, text string) (shared.Vector, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewInvalidArgument(apperrors.CodeEmptyContent, "text to embed is empty")
	}

	ctx, span := otel.Tracer("flock/embedding").Start(ctx, "embedding.Embed")
	defer span.End()
	span.SetAttributes(
		attribute.String("embedding.provider", c.provider.Name()),
		attribute.Int("embedding.text_length", len(text)),
	)

	start := time.Now()
	values, err := c.provider.Embed(ctx, text)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.ObserveEmbedding(c.provider.Name(), "error", elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		if apperrors.IsEmbedding(err) {
			return nil, err
		}
		return nil, apperrors.NewEmbeddingError(apperrors.CodeEmbeddingFailed,
			fmt.Sprintf("embedding provider %s failed", c.provider.Name()), err)
	}

	v := shared.Vector(values)
	if err := c.check(v); err != nil {
		c.metrics.ObserveEmbedding(c.provider.Name(), "malformed", elapsed)
		span.SetStatus(codes.Error, "malformed embedding")
		c.logger.Warn("Embedding provider returned malformed vector",
			zap.String("provider", c.provider.Name()),
			zap.Int("dimensions", len(v)),
			zap.Error(err),
		)
		return nil, err
	}

	c.metrics.ObserveEmbedding(c.provider.Name(), "ok", elapsed)
	span.SetAttributes(attribute.Int("embedding.dimensions", len(v)))
	return v, nil
}

func (c *Client) check(v shared.Vector) error {
	switch {
	case v.IsZero():
		return apperrors.NewEmbeddingError(apperrors.CodeMalformedEmbedding, "embedding provider returned an empty vector", nil)
	case c.maxDims > 0 && len(v) > c.maxDims:
		return apperrors.NewEmbeddingError(apperrors.CodeMalformedEmbedding,
			fmt.Sprintf("embedding has %d dimensions, limit is %d", len(v), c.maxDims), nil)
	case !v.Finite():
		return apperrors.NewEmbeddingError(apperrors.CodeMalformedEmbedding, "embedding contains non-finite values", nil)
	}
	return nil
}

// TextBudget returns the rune budget for prayer text.
func (c *Client) TextBudget() int {
	return c.textBudget
}

// PrayerText builds the text embedded for a single prayer:
// "{date}, {title}, {body}" cut to budget runes. Empty fields are skipped.
// It returns "" when the prayer has neither title nor body.
func PrayerText(createdAt time.Time, title, body string, budget int) string {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if title == "" && body == "" {
		return ""
	}
	parts := []string{createdAt.UTC().Format("January 2, 2006")}
	if title != "" {
		parts = append(parts, title)
	}
	if body != "" {
		parts = append(parts, body)
	}
	return shared.Truncate(strings.Join(parts, ", "), budget)
}
