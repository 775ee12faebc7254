package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	apperrors "flock-backend/internal/errors"
	"flock-backend/internal/service/embedding"
)

// BreakerConfig holds configuration for the circuit breaker
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// BreakerProvider stops calling an unhealthy provider for a while after
// repeated failures. Calls rejected by an open breaker fail fast with an
// EmbeddingError.
type BreakerProvider struct {
	next    embedding.Provider
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewBreakerProvider wraps next. callTimeout bounds each upstream call.
func NewBreakerProvider(next embedding.Provider, cfg BreakerConfig, callTimeout time.Duration, logger *zap.Logger) *BreakerProvider {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Embedding circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// Callers giving up is not a provider failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &BreakerProvider{next: next, cb: cb, timeout: callTimeout}
}

// Embed calls the wrapped provider through the breaker.
func (p *BreakerProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := p.cb.Execute(func() (interface{}, error) {
		callCtx := ctx
		if p.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.timeout)
			defer cancel()
		}
		return p.next.Embed(callCtx, text)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, apperrors.NewEmbeddingError(apperrors.CodeEmbeddingFailed,
				"embedding provider temporarily unavailable", err)
		}
		return nil, err
	}
	return result.([]float32), nil
}

// Name returns the wrapped provider's name.
func (p *BreakerProvider) Name() string {
	return p.next.Name()
}

// State reports the breaker state.
func (p *BreakerProvider) State() gobreaker.State {
	return p.cb.State()
}
