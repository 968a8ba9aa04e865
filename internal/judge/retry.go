package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

var (
	errMaxAttemptsInvalid     = errors.New("maxAttempts must be greater than 0")
	errInitialIntervalInvalid = errors.New("initialInterval must be greater than 0")
	errMaxIntervalInvalid     = errors.New("maxInterval must be >= initialInterval")
	errMultiplierInvalid      = errors.New("multiplier must be >= 1.0")
)

// RetryConfig controls the retry middleware.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialInterval is the backoff before the first retry.
	InitialInterval time.Duration

	// MaxInterval caps the exponential backoff.
	MaxInterval time.Duration

	// Multiplier grows the backoff between attempts.
	Multiplier float64

	// UseJitter applies full jitter to each computed backoff.
	UseJitter bool
}

// DefaultRetryConfig returns three attempts with 250ms initial backoff,
// doubling up to 2s, with full jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2.0,
		UseJitter:       true,
	}
}

// retryMiddleware retries failed judge calls with exponential backoff.
// Context cancellation stops retrying immediately; every other failure is
// treated as transient since the caller degrades to heuristics regardless.
type retryMiddleware struct {
	config RetryConfig
	logger *slog.Logger
}

// NewRetryMiddleware creates retry middleware with the given configuration.
func NewRetryMiddleware(cfg RetryConfig, logger *slog.Logger) (Middleware, error) {
	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("%w, got %d", errMaxAttemptsInvalid, cfg.MaxAttempts)
	}
	if cfg.InitialInterval <= 0 {
		return nil, fmt.Errorf("%w, got %v", errInitialIntervalInvalid, cfg.InitialInterval)
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		return nil, fmt.Errorf("%w, MaxInterval: %v, InitialInterval: %v",
			errMaxIntervalInvalid, cfg.MaxInterval, cfg.InitialInterval)
	}
	if cfg.Multiplier < 1.0 {
		return nil, fmt.Errorf("%w, got %f", errMultiplierInvalid, cfg.Multiplier)
	}
	if logger == nil {
		logger = slog.Default()
	}

	rm := &retryMiddleware{config: cfg, logger: logger.With("component", "judge-retry")}
	return rm.middleware, nil
}

func (r *retryMiddleware) middleware(next Handler) Handler {
	return HandlerFunc(func(ctx context.Context, req *Request) (*Verdict, error) {
		var lastErr error
		for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
			if attempt > 1 {
				backoff := r.calculateBackoff(attempt)
				r.logger.Debug("retrying judge call",
					"attempt", attempt,
					"backoff", backoff,
					"error", lastErr)
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return nil, fmt.Errorf("%w: %w", ErrJudgeUnavailable, ctx.Err())
				}
			}

			verdict, err := next.Handle(ctx, req)
			if err == nil {
				return verdict, nil
			}
			lastErr = err

			if ctx.Err() != nil {
				return nil, lastErr
			}
		}
		return nil, lastErr
	})
}

// calculateBackoff computes the delay before the given attempt using
// exponential growth capped at MaxInterval, with optional full jitter.
func (r *retryMiddleware) calculateBackoff(attempt int) time.Duration {
	backoff := r.config.InitialInterval
	for i := 2; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * r.config.Multiplier)
		if backoff > r.config.MaxInterval {
			backoff = r.config.MaxInterval
			break
		}
	}
	if backoff > r.config.MaxInterval {
		backoff = r.config.MaxInterval
	}

	if r.config.UseJitter && backoff > 0 {
		// Full jitter: uniform in [0, backoff].
		jitterMs := rand.Int63n(backoff.Milliseconds() + 1)
		backoff = time.Duration(jitterMs) * time.Millisecond
	}
	return backoff
}
