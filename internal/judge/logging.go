package judge

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// NewLoggingMiddleware wraps judge calls with structured lifecycle logging:
// a debug line on start and an info/warn line on completion with latency.
// Payload text is never logged, only sizes.
func NewLoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "judge")

	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (*Verdict, error) {
			requestID := uuid.New().String()
			logger.DebugContext(ctx, "judge request started",
				"request_id", requestID,
				"sent_bytes", len(req.ContextSent),
				"received_bytes", len(req.ContextReceived))

			start := time.Now()
			verdict, err := next.Handle(ctx, req)
			latency := time.Since(start)

			if err != nil {
				logger.WarnContext(ctx, "judge request failed",
					"request_id", requestID,
					"latency_ms", latency.Milliseconds(),
					"error", err)
				return nil, err
			}

			logger.InfoContext(ctx, "judge request completed",
				"request_id", requestID,
				"latency_ms", latency.Milliseconds(),
				"has_fidelity", verdict.Fidelity != nil,
				"has_drift", verdict.Drift != nil)
			return verdict, nil
		})
	}
}
