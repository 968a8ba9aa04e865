// Package worker exposes helpers to register workflows/activities with a Temporal worker.
package worker

import (
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/contextscope/ctxeval/internal/evaluation"
	"github.com/contextscope/ctxeval/internal/workflow"
	"github.com/contextscope/ctxeval/pkg/activity"
	"github.com/contextscope/ctxeval/pkg/events"
)

// RegisterAll registers the pipeline evaluation workflow and its activities
// with the Temporal worker. Registration is not thread-safe and should only
// be called once during worker startup.
//
// The evaluator owns the store and optional judge client; the worker only
// wires them into activity instances with shared base infrastructure for
// event emission and logging.
func RegisterAll(w sdkworker.Worker, evaluator *evaluation.Evaluator, sink events.EventSink) {
	if sink == nil {
		sink = events.NewNoOpEventSink()
	}
	base := activity.NewBaseActivities(sink)

	evaluationActivities := evaluation.NewActivities(base, evaluator)

	w.RegisterWorkflow(workflow.PipelineEvaluationWorkflow)

	w.RegisterActivity(evaluationActivities.EvaluateHandoff)
	w.RegisterActivity(evaluationActivities.RollupPipeline)
}
