// Package workflow orchestrates pipeline evaluation using Temporal
// workflows, with deterministic control flow: each handoff of a run is
// evaluated in chain order, then the pipeline rollup is recomputed.
package workflow

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/contextscope/ctxeval/internal/domain"
	"github.com/contextscope/ctxeval/internal/evaluation"
)

// PipelineRequest describes one end-to-end run to evaluate: the ordered
// handoffs of a pipeline, all sharing one declared context format.
type PipelineRequest struct {
	PipelineID string                    `json:"pipeline_id"`
	Handoffs   []evaluation.HandoffInput `json:"handoffs"`
}

// evaluateActivityTimeout bounds a single handoff evaluation, including
// judge retries.
const evaluateActivityTimeout = 2 * time.Minute

// PipelineEvaluationWorkflow evaluates every handoff of a pipeline run in
// order and finishes with the pipeline rollup. Handoffs are evaluated
// sequentially because the chain order is part of the record; the metric
// work itself is cheap.
func PipelineEvaluationWorkflow(
	ctx workflow.Context,
	req PipelineRequest,
) (*domain.PipelineEvaluation, error) {
	const currentVersion = 1
	_ = workflow.GetVersion(ctx, "pipeline-evaluation.v", workflow.DefaultVersion, currentVersion)

	if req.PipelineID == "" {
		return nil, temporal.NewNonRetryableApplicationError(
			"pipeline_id is required", "Validation", domain.ErrMissingIdentifier)
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: evaluateActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var activities *evaluation.Activities
	for i := range req.Handoffs {
		input := req.Handoffs[i]
		input.PipelineID = req.PipelineID

		var eval domain.HandoffEvaluation
		if err := workflow.ExecuteActivity(ctx, activities.EvaluateHandoff, input).Get(ctx, &eval); err != nil {
			return nil, fmt.Errorf("evaluate handoff %d/%d: %w", i+1, len(req.Handoffs), err)
		}
	}

	var rollup domain.PipelineEvaluation
	err := workflow.ExecuteActivity(ctx, activities.RollupPipeline,
		evaluation.RollupPipelineInput{PipelineID: req.PipelineID}).Get(ctx, &rollup)
	if err != nil {
		return nil, fmt.Errorf("rollup pipeline %s: %w", req.PipelineID, err)
	}
	return &rollup, nil
}
