package evaluation

import (
	"context"
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/contextscope/ctxeval/internal/domain"
	"github.com/contextscope/ctxeval/pkg/activity"
)

// Activities exposes the evaluator's operations as Temporal activities.
// Schema violations are non-retryable (the input is wrong and will stay
// wrong); store failures are retryable (the document store may recover).
type Activities struct {
	activity.BaseActivities
	evaluator *Evaluator
	events    *EventEmitter
}

// NewActivities creates evaluation activities around an evaluator.
func NewActivities(base activity.BaseActivities, evaluator *Evaluator) *Activities {
	return &Activities{
		BaseActivities: base,
		evaluator:      evaluator,
		events:         NewEventEmitter(base),
	}
}

// RollupPipelineInput identifies the pipeline to roll up.
type RollupPipelineInput struct {
	PipelineID string `json:"pipeline_id"`
}

// EvaluateHandoff scores one handoff, persists the evaluation, and emits a
// HandoffEvaluated event. Judge unavailability never fails this activity;
// the evaluator degrades to heuristic scores internally.
func (a *Activities) EvaluateHandoff(
	ctx context.Context,
	input HandoffInput,
) (*domain.HandoffEvaluation, error) {
	wfCtx := a.GetWorkflowContext(ctx)
	activity.SafeLog(ctx, "Starting EvaluateHandoff activity",
		"workflow_id", wfCtx.WorkflowID,
		"activity_id", wfCtx.ActivityID,
		"agent_from", input.AgentFrom,
		"agent_to", input.AgentTo,
		"pipeline_id", input.PipelineID)

	eval, err := a.evaluator.EvaluateHandoff(ctx, input)
	if err != nil {
		return nil, nonRetryable("EvaluateHandoff", err, "handoff rejected")
	}

	if _, err := a.evaluator.InsertHandoffEvaluation(ctx, eval); err != nil {
		if errors.Is(err, domain.ErrSchemaViolation) {
			return nil, nonRetryable("EvaluateHandoff", err, "invalid evaluation record")
		}
		return nil, retryable("EvaluateHandoff", err, "store unavailable")
	}

	a.events.EmitHandoffEvaluated(ctx, eval, wfCtx)

	activity.SafeLog(ctx, "EvaluateHandoff completed",
		"handoff_id", eval.HandoffID,
		"fidelity", eval.Scores.Fidelity,
		"heuristic_only", eval.HeuristicOnly)
	return eval, nil
}

// RollupPipeline recomputes and persists the rollup for a pipeline and
// emits a PipelineRolledUp event. A pipeline with zero handoffs succeeds
// with the neutral rollup.
func (a *Activities) RollupPipeline(
	ctx context.Context,
	input RollupPipelineInput,
) (*domain.PipelineEvaluation, error) {
	if input.PipelineID == "" {
		return nil, nonRetryable("RollupPipeline",
			domain.ErrMissingIdentifier, "pipeline_id is required")
	}

	wfCtx := a.GetWorkflowContext(ctx)
	activity.SafeLog(ctx, "Starting RollupPipeline activity",
		"workflow_id", wfCtx.WorkflowID,
		"pipeline_id", input.PipelineID)

	rollup, err := a.evaluator.FinalizePipeline(ctx, input.PipelineID)
	if err != nil {
		return nil, retryable("RollupPipeline", err, "rollup failed")
	}

	a.events.EmitPipelineRolledUp(ctx, rollup, wfCtx)

	activity.SafeLog(ctx, "RollupPipeline completed",
		"pipeline_id", rollup.PipelineID,
		"handoffs", len(rollup.HandoffIDs),
		"end_to_end_fidelity", rollup.EndToEndFidelity)
	return rollup, nil
}

// retryable wraps transient failures as Temporal application errors.
func retryable(tag string, cause error, msg string) error {
	return temporal.NewApplicationError(msg, tag, cause)
}

// nonRetryable wraps permanent failures so Temporal does not retry them.
func nonRetryable(tag string, cause error, msg string) error {
	return temporal.NewNonRetryableApplicationError(msg, tag, cause)
}
