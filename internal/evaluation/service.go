// Package evaluation orchestrates context-handoff scoring. It combines the
// pure metric functions, key-unit extraction, and an optional remote judge
// verdict into complete HandoffEvaluation records, and rolls recorded
// handoffs up into pipeline- and format-level summaries.
//
// Ownership: this layer exclusively owns the lifecycle of evaluations. The
// injected Store is a passive collaborator that never computes scores; the
// judge collaborator only supplements the heuristic metrics and its
// unavailability degrades, never fails, an evaluation.
//
// Lifecycle per handoff: Recorded -> Scored -> optionally Rolled-up. No
// transition is reversed; a correction produces a new record with a new
// identifier.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/contextscope/ctxeval/internal/domain"
	"github.com/contextscope/ctxeval/internal/extraction"
	"github.com/contextscope/ctxeval/internal/judge"
	"github.com/contextscope/ctxeval/internal/metrics"
)

// JudgeBlendWeight is the weight given to a judge-provided score when
// blending it with the corresponding heuristic score. Tunable constant;
// 0.5 gives judge and heuristic equal say.
const JudgeBlendWeight = 0.5

// ErrNilStore indicates the evaluator was constructed without a store.
var ErrNilStore = errors.New("storage collaborator is required")

// Store is the document-store collaborator. The engine treats it as an
// append-only log keyed by handoff_id/pipeline_id and never issues queries
// beyond these four operations.
type Store interface {
	// InsertHandoff appends a handoff evaluation and returns its ID.
	InsertHandoff(ctx context.Context, doc *domain.HandoffEvaluation) (string, error)

	// InsertPipeline records (or refreshes) a pipeline rollup and returns
	// its pipeline ID. Rollups are derived views, so refreshing one is not
	// a mutation of history.
	InsertPipeline(ctx context.Context, doc *domain.PipelineEvaluation) (string, error)

	// GetHandoffs returns the handoff evaluations of a pipeline in the
	// order they were recorded.
	GetHandoffs(ctx context.Context, pipelineID string) ([]domain.HandoffEvaluation, error)

	// GetRecentPipelines returns up to n pipeline rollups, most recent first.
	GetRecentPipelines(ctx context.Context, n int) ([]domain.PipelineEvaluation, error)
}

// HandoffInput carries everything the evaluator needs to score one
// agent-to-agent transfer.
type HandoffInput struct {
	AgentFrom  string               `json:"agent_from"`
	AgentTo    string               `json:"agent_to"`
	PipelineID string               `json:"pipeline_id,omitempty"`
	Format     domain.ContextFormat `json:"format,omitempty"`

	ContextSent     string `json:"context_sent"`
	ContextReceived string `json:"context_received"`

	// Vectors optionally carries precomputed embeddings. When both sent
	// and received are present, fidelity uses the embedding path.
	Vectors *domain.VectorBundle `json:"vectors,omitempty"`

	// TokensSent/TokensReceived override the whitespace token estimate
	// when positive; otherwise counts are derived from the payloads.
	TokensSent     int `json:"tokens_sent,omitempty"`
	TokensReceived int `json:"tokens_received,omitempty"`

	// BaselineScore/ContextualScore feed response utility when both are
	// present; utility is 0 otherwise.
	BaselineScore   *float64            `json:"baseline_score,omitempty"`
	ContextualScore *float64            `json:"contextual_score,omitempty"`
	UtilityMode     metrics.UtilityMode `json:"utility_mode,omitempty"`

	// TaskDescription gives the judge collaborator task context.
	TaskDescription string `json:"task_description,omitempty"`
}

// Evaluator is the orchestration service. Safe for concurrent use: the
// metric and extraction layers are stateless and the store is responsible
// for its own synchronization.
type Evaluator struct {
	store  Store
	judge  judge.Client
	logger *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithJudge attaches a judge collaborator whose verdicts are blended into
// the heuristic scores when available and in range.
func WithJudge(client judge.Client) Option {
	return func(e *Evaluator) { e.judge = client }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

// NewEvaluator creates an evaluator bound to the given store.
func NewEvaluator(store Store, opts ...Option) (*Evaluator, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	e := &Evaluator{store: store}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "evaluator")
	return e, nil
}

// EvaluateHandoff computes the five scores and the key-unit diff for one
// handoff, folds in a judge verdict when one is obtainable, and returns a
// complete validated HandoffEvaluation. The record is not persisted; use
// InsertHandoffEvaluation or EvaluateAndStore for that.
//
// Callers always receive either a complete, internally consistent record
// or an explicit error wrapping domain.ErrSchemaViolation. Judge failure
// and malformed structured payloads are degraded modes, never errors.
func (e *Evaluator) EvaluateHandoff(ctx context.Context, in HandoffInput) (*domain.HandoffEvaluation, error) {
	if err := in.Vectors.Validate(); err != nil {
		return nil, err
	}

	fidelity := metrics.Fidelity(in.ContextSent, in.ContextReceived, in.Vectors)
	drift := metrics.RelevanceDrift(in.ContextSent, in.ContextReceived, fidelity)

	tokensSent := in.TokensSent
	if tokensSent <= 0 {
		tokensSent = metrics.TokenCount(in.ContextSent)
	}
	tokensReceived := in.TokensReceived
	if tokensReceived <= 0 {
		tokensReceived = metrics.TokenCount(in.ContextReceived)
	}
	compression := metrics.CompressionEfficiency(tokensSent, tokensReceived)

	temporal := metrics.TemporalCoherence(in.ContextSent, in.ContextReceived)

	utility := 0.0
	if in.BaselineScore != nil && in.ContextualScore != nil {
		utility = metrics.ResponseUtility(*in.BaselineScore, *in.ContextualScore, in.UtilityMode)
	}

	sentUnits, sentStructured := extraction.Extract(in.ContextSent)
	if in.Format == domain.FormatStructured && !sentStructured {
		e.logger.WarnContext(ctx, "structured payload failed to parse, degraded to freeform extraction",
			"agent_from", in.AgentFrom,
			"agent_to", in.AgentTo,
			"pipeline_id", in.PipelineID)
	}
	recvUnits := extraction.Units(in.ContextReceived)
	preservation := extraction.CheckPreservation(sentUnits, recvUnits)

	heuristicOnly := true
	rationale := ""
	if e.judge != nil {
		verdict, err := e.judge.Judge(ctx, judge.Request{
			ContextSent:     in.ContextSent,
			ContextReceived: in.ContextReceived,
			TaskDescription: in.TaskDescription,
		})
		switch {
		case err != nil:
			e.logger.WarnContext(ctx, "judge unavailable, using heuristic scores",
				"pipeline_id", in.PipelineID,
				"error", err)
		case verdict != nil:
			if v, ok := usableJudgeScore(verdict.Fidelity); ok {
				fidelity = JudgeBlendWeight*v + (1-JudgeBlendWeight)*fidelity
				heuristicOnly = false
			}
			if v, ok := usableJudgeScore(verdict.Drift); ok {
				drift = JudgeBlendWeight*v + (1-JudgeBlendWeight)*drift
				heuristicOnly = false
			}
			if !heuristicOnly {
				rationale = verdict.Rationale
			}
		}
	}

	scores, err := domain.NewEvalScores(fidelity, drift, compression, temporal, utility)
	if err != nil {
		return nil, err
	}

	eval, err := domain.NewHandoffEvaluation(
		in.AgentFrom, in.AgentTo, in.PipelineID, in.Format,
		in.ContextSent, in.ContextReceived,
		scores, in.Vectors,
		preservation.Preserved, preservation.Lost,
	)
	if err != nil {
		return nil, err
	}
	eval.HeuristicOnly = heuristicOnly
	eval.JudgeRationale = rationale

	e.logger.InfoContext(ctx, "handoff evaluated",
		"handoff_id", eval.HandoffID,
		"pipeline_id", eval.PipelineID,
		"fidelity", scores.Fidelity,
		"drift", scores.Drift,
		"preserved", len(eval.KeyInfoPreserved),
		"lost", len(eval.KeyInfoLost),
		"heuristic_only", heuristicOnly)

	return eval, nil
}

// InsertHandoffEvaluation persists a complete evaluation via the store and
// returns its handoff ID. The record is re-validated at the boundary so a
// mutated or hand-built record is rejected rather than partially stored.
func (e *Evaluator) InsertHandoffEvaluation(ctx context.Context, eval *domain.HandoffEvaluation) (string, error) {
	if err := eval.Validate(); err != nil {
		return "", err
	}
	id, err := e.store.InsertHandoff(ctx, eval)
	if err != nil {
		return "", fmt.Errorf("insert handoff %s: %w", eval.HandoffID, err)
	}
	return id, nil
}

// EvaluateAndStore scores a handoff and persists the result in one call.
func (e *Evaluator) EvaluateAndStore(ctx context.Context, in HandoffInput) (*domain.HandoffEvaluation, error) {
	eval, err := e.EvaluateHandoff(ctx, in)
	if err != nil {
		return nil, err
	}
	if _, err := e.InsertHandoffEvaluation(ctx, eval); err != nil {
		return nil, err
	}
	return eval, nil
}

// FinalizePipeline recomputes a pipeline rollup from its stored handoffs
// and persists the refreshed summary. A pipeline with no recorded handoffs
// yields the neutral rollup and is not persisted: "not yet run" is an
// expected state, not an error.
func (e *Evaluator) FinalizePipeline(ctx context.Context, pipelineID string) (*domain.PipelineEvaluation, error) {
	handoffs, err := e.store.GetHandoffs(ctx, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("fetch handoffs for %s: %w", pipelineID, err)
	}

	rollup := RollupPipeline(pipelineID, handoffs)
	if len(handoffs) == 0 {
		e.logger.InfoContext(ctx, "pipeline has no handoffs, returning neutral rollup",
			"pipeline_id", pipelineID)
		return rollup, nil
	}

	if _, err := e.store.InsertPipeline(ctx, rollup); err != nil {
		return nil, fmt.Errorf("persist rollup for %s: %w", pipelineID, err)
	}

	e.logger.InfoContext(ctx, "pipeline rolled up",
		"pipeline_id", pipelineID,
		"handoffs", len(handoffs),
		"avg_fidelity", rollup.AvgFidelity,
		"end_to_end_fidelity", rollup.EndToEndFidelity)
	return rollup, nil
}

// RecentPipelines returns up to n stored rollups, most recent first.
func (e *Evaluator) RecentPipelines(ctx context.Context, n int) ([]domain.PipelineEvaluation, error) {
	return e.store.GetRecentPipelines(ctx, n)
}

// usableJudgeScore reports whether an optional judge score is present,
// finite, and within [0,1]. Out-of-range or non-finite scores are discarded
// rather than clamped: a judge that returns 7.5 or NaN is malfunctioning,
// not generous.
func usableJudgeScore(v *float64) (float64, bool) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 || *v > 1 {
		return 0, false
	}
	return *v, true
}
