package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ContextFormat tags the representation an agent used for its context
// payload. The rollup layer compares transmission quality across formats.
type ContextFormat string

const (
	// FormatStructured marks machine-parseable payloads (JSON and the like).
	FormatStructured ContextFormat = "structured"

	// FormatFreeform marks prose or markdown payloads.
	FormatFreeform ContextFormat = "freeform"
)

// HandoffEvaluation is the evaluation record for a single agent-to-agent
// context transfer. It is created once per handoff, immediately after both
// context payloads are available, and is immutable once scored: a rescore
// produces a new record with a new HandoffID, preserving audit history.
type HandoffEvaluation struct {
	// HandoffID uniquely identifies this transfer.
	HandoffID string `json:"handoff_id" validate:"required"`

	// AgentFrom names the upstream (sending) agent.
	AgentFrom string `json:"agent_from" validate:"required"`

	// AgentTo names the downstream (receiving) agent.
	AgentTo string `json:"agent_to" validate:"required"`

	// PipelineID groups handoffs belonging to one end-to-end run.
	// Optional: standalone handoffs carry no pipeline.
	PipelineID string `json:"pipeline_id,omitempty"`

	// Format is the declared representation of the context payloads.
	Format ContextFormat `json:"format,omitempty"`

	// ContextSent is the raw payload the upstream agent produced.
	// Structured payloads are stored as serialized text.
	ContextSent string `json:"context_sent"`

	// ContextReceived is the payload the downstream agent perceived.
	ContextReceived string `json:"context_received"`

	// Scores holds the five computed evaluation scores.
	Scores EvalScores `json:"scores"`

	// Vectors optionally carries the embedding vectors used for scoring.
	Vectors *VectorBundle `json:"vectors,omitempty"`

	// KeyInfoPreserved lists the sent key units found in the received
	// context after normalization.
	KeyInfoPreserved []string `json:"key_info_preserved"`

	// KeyInfoLost lists the sent key units missing from the received context.
	KeyInfoLost []string `json:"key_info_lost"`

	// HeuristicOnly is true when no judge verdict contributed to the
	// scores, either because no judge was configured or because the judge
	// call failed and the engine fell back to heuristics.
	HeuristicOnly bool `json:"heuristic_only"`

	// JudgeRationale carries the judge's explanation when one was obtained.
	JudgeRationale string `json:"judge_rationale,omitempty"`

	// Timestamp records when the evaluation was produced (UTC).
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

// NewHandoffEvaluation creates a validated handoff evaluation with a
// generated UUID and the current time.
//
// Do not call inside workflow code: uuid.New and time.Now are
// nondeterministic. Use MakeHandoffEvaluation there instead.
func NewHandoffEvaluation(
	agentFrom, agentTo, pipelineID string,
	format ContextFormat,
	contextSent, contextReceived string,
	scores EvalScores,
	vectors *VectorBundle,
	preserved, lost []string,
) (*HandoffEvaluation, error) {
	return MakeHandoffEvaluation(
		uuid.New().String(), time.Now().UTC(),
		agentFrom, agentTo, pipelineID, format,
		contextSent, contextReceived, scores, vectors, preserved, lost,
	)
}

// MakeHandoffEvaluation creates a validated handoff evaluation from
// caller-supplied deterministic inputs (explicit ID and timestamp).
func MakeHandoffEvaluation(
	handoffID string, at time.Time,
	agentFrom, agentTo, pipelineID string,
	format ContextFormat,
	contextSent, contextReceived string,
	scores EvalScores,
	vectors *VectorBundle,
	preserved, lost []string,
) (*HandoffEvaluation, error) {
	if handoffID == "" {
		return nil, fmt.Errorf("%w: %w: handoff_id", ErrSchemaViolation, ErrMissingIdentifier)
	}

	h := &HandoffEvaluation{
		HandoffID:        handoffID,
		AgentFrom:        agentFrom,
		AgentTo:          agentTo,
		PipelineID:       pipelineID,
		Format:           format,
		ContextSent:      contextSent,
		ContextReceived:  contextReceived,
		Scores:           scores,
		Vectors:          vectors,
		KeyInfoPreserved: ensureSlice(preserved),
		KeyInfoLost:      ensureSlice(lost),
		HeuristicOnly:    true,
		Timestamp:        at,
	}

	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// Validate checks all structural invariants of the record: required
// identifiers, score ranges, and vector shape.
func (h *HandoffEvaluation) Validate() error {
	if err := validate.Struct(h); err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaViolation, err)
	}
	if err := h.Scores.Validate(); err != nil {
		return err
	}
	return h.Vectors.Validate()
}

// ensureSlice normalizes nil to an empty slice so key-unit lists round-trip
// through JSON as [] rather than null.
func ensureSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
