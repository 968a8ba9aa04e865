// Package judge provides the client for the optional remote judge
// collaborator: an external model that scores a handoff and whose verdict
// supplements the engine's heuristic metrics.
//
// The client is built as a middleware pipeline around a core HTTP handler:
// retry with exponential backoff and jitter, structured logging, and a
// bounded per-request timeout. Judge unavailability is a degraded-mode
// condition, never a fatal one: every failure surfaces as
// ErrJudgeUnavailable so callers can fall back to heuristic scores.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrJudgeUnavailable indicates the judge collaborator could not produce a
// usable verdict: network failure, timeout, non-2xx status, or a malformed
// response body.
var ErrJudgeUnavailable = errors.New("judge unavailable")

// errEndpointRequired indicates the client was configured without an endpoint.
var errEndpointRequired = errors.New("judge endpoint is required")

// maxResponseBytes bounds how much of a judge response body is read.
const maxResponseBytes = 1 << 20 // 1 MiB

// Request is the payload sent to the judge collaborator.
type Request struct {
	ContextSent     string `json:"context_sent"`
	ContextReceived string `json:"context_received"`
	TaskDescription string `json:"task_description,omitempty"`
}

// Verdict is the judge's response. Scores are pointers because the judge
// may return any subset; absent scores leave the heuristic values in place.
type Verdict struct {
	Fidelity  *float64 `json:"fidelity,omitempty"`
	Drift     *float64 `json:"drift,omitempty"`
	Rationale string   `json:"rationale,omitempty"`
}

// Client obtains a verdict for one handoff from the judge collaborator.
// Implementations must return an error wrapping ErrJudgeUnavailable for any
// recoverable failure.
type Client interface {
	Judge(ctx context.Context, req Request) (*Verdict, error)
}

// Config holds judge client configuration.
type Config struct {
	// Endpoint is the URL of the judge scoring endpoint. Required.
	Endpoint string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Timeout bounds each judge call. This is the only temporal control
	// the engine needs; there is no separate cancellation token.
	Timeout time.Duration

	// Retry configures the retry middleware.
	Retry RetryConfig

	// Logger receives structured request lifecycle logs.
	// Defaults to slog.Default().
	Logger *slog.Logger

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// DefaultConfig returns judge client defaults: a 30 second call timeout and
// three attempts with jittered exponential backoff.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
		Retry:   DefaultRetryConfig(),
	}
}

// client is the production Client backed by the middleware pipeline.
type client struct {
	handler Handler
}

// NewClient builds a judge client from config, assembling the middleware
// pipeline: logging outermost, then retry, then the core HTTP handler.
func NewClient(cfg Config) (Client, error) {
	if cfg.Endpoint == "" {
		return nil, errEndpointRequired
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	retryMW, err := NewRetryMiddleware(cfg.Retry, cfg.Logger)
	if err != nil {
		return nil, err
	}

	core := &httpHandler{
		client:   httpClient,
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		timeout:  cfg.Timeout,
	}

	return &client{
		handler: Chain(core, NewLoggingMiddleware(cfg.Logger), retryMW),
	}, nil
}

// Judge implements Client.
func (c *client) Judge(ctx context.Context, req Request) (*Verdict, error) {
	return c.handler.Handle(ctx, &req)
}

// httpHandler is the core handler that performs the HTTP exchange.
type httpHandler struct {
	client   *http.Client
	endpoint string
	apiKey   string
	timeout  time.Duration
}

// Handle implements Handler by POSTing the request as JSON and decoding the
// verdict. All failure modes map onto ErrJudgeUnavailable.
func (h *httpHandler) Handle(ctx context.Context, req *Request) (*Verdict, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", ErrJudgeUnavailable, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrJudgeUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrJudgeUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrJudgeUnavailable, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrJudgeUnavailable, err)
	}

	var verdict Verdict
	if err := json.Unmarshal(raw, &verdict); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %w", ErrJudgeUnavailable, err)
	}
	return &verdict, nil
}
