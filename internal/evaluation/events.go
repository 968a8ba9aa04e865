package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/contextscope/ctxeval/internal/domain"
	"github.com/contextscope/ctxeval/pkg/activity"
	"github.com/contextscope/ctxeval/pkg/events"
)

// Event types emitted by the evaluation activities.
const (
	EventHandoffEvaluated = "evaluation.handoff_evaluated"
	EventPipelineRolledUp = "evaluation.pipeline_rolled_up"

	eventSource  = "evaluation-activity"
	eventVersion = "1.0.0"
)

// HandoffEvaluatedPayload is the payload of an EventHandoffEvaluated event.
// Context payloads are deliberately excluded; the store holds them.
type HandoffEvaluatedPayload struct {
	HandoffID     string               `json:"handoff_id"`
	PipelineID    string               `json:"pipeline_id,omitempty"`
	AgentFrom     string               `json:"agent_from"`
	AgentTo       string               `json:"agent_to"`
	Format        domain.ContextFormat `json:"format,omitempty"`
	Scores        domain.EvalScores    `json:"scores"`
	UnitsLost     int                  `json:"units_lost"`
	HeuristicOnly bool                 `json:"heuristic_only"`
}

// PipelineRolledUpPayload is the payload of an EventPipelineRolledUp event.
type PipelineRolledUpPayload struct {
	PipelineID       string  `json:"pipeline_id"`
	HandoffCount     int     `json:"handoff_count"`
	AvgFidelity      float64 `json:"avg_fidelity"`
	EndToEndFidelity float64 `json:"end_to_end_fidelity"`
}

// EventEmitter bridges evaluation results to the event infrastructure.
// All emission is best-effort: failures are logged and never affect the
// evaluation itself.
type EventEmitter struct{ base activity.BaseActivities }

// NewEventEmitter creates an EventEmitter over the base activity
// infrastructure.
func NewEventEmitter(base activity.BaseActivities) *EventEmitter {
	return &EventEmitter{base: base}
}

// EmitHandoffEvaluated emits the per-handoff observability event.
func (e *EventEmitter) EmitHandoffEvaluated(
	ctx context.Context,
	eval *domain.HandoffEvaluation,
	wfCtx activity.WorkflowContext,
) {
	payload := HandoffEvaluatedPayload{
		HandoffID:     eval.HandoffID,
		PipelineID:    eval.PipelineID,
		AgentFrom:     eval.AgentFrom,
		AgentTo:       eval.AgentTo,
		Format:        eval.Format,
		Scores:        eval.Scores,
		UnitsLost:     len(eval.KeyInfoLost),
		HeuristicOnly: eval.HeuristicOnly,
	}
	e.emit(ctx, EventHandoffEvaluated, payload,
		fmt.Sprintf("handoff-%s", eval.HandoffID), wfCtx, "HandoffEvaluated")
}

// EmitPipelineRolledUp emits the pipeline rollup observability event.
func (e *EventEmitter) EmitPipelineRolledUp(
	ctx context.Context,
	rollup *domain.PipelineEvaluation,
	wfCtx activity.WorkflowContext,
) {
	payload := PipelineRolledUpPayload{
		PipelineID:       rollup.PipelineID,
		HandoffCount:     len(rollup.HandoffIDs),
		AvgFidelity:      rollup.AvgFidelity,
		EndToEndFidelity: rollup.EndToEndFidelity,
	}
	e.emit(ctx, EventPipelineRolledUp, payload,
		fmt.Sprintf("rollup-%s-%d", rollup.PipelineID, len(rollup.HandoffIDs)),
		wfCtx, "PipelineRolledUp")
}

func (e *EventEmitter) emit(
	ctx context.Context,
	eventType string,
	payload any,
	idemSuffix string,
	wfCtx activity.WorkflowContext,
	description string,
) {
	raw, err := json.Marshal(payload)
	if err != nil {
		activity.SafeLogError(ctx, "Failed to marshal event payload",
			"event_type", eventType,
			"error", err)
		return
	}

	e.base.EmitEventSafe(ctx, events.Envelope{
		ID:             uuid.New().String(),
		Type:           eventType,
		Source:         eventSource,
		Version:        eventVersion,
		Timestamp:      time.Now().UTC(),
		IdempotencyKey: fmt.Sprintf("%s-%s", wfCtx.WorkflowID, idemSuffix),
		WorkflowID:     wfCtx.WorkflowID,
		RunID:          wfCtx.RunID,
		Payload:        raw,
	}, description)
}
