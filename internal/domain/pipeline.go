package domain

import "fmt"

// PipelineScore holds the aggregate fields of a pipeline rollup. Embedded
// in PipelineEvaluation for flat JSON serialization.
type PipelineScore struct {
	// AvgFidelity is the arithmetic mean fidelity across the handoff chain.
	AvgFidelity float64 `json:"avg_fidelity" validate:"min=0,max=1"`

	// AvgDrift is the arithmetic mean drift across the handoff chain.
	AvgDrift float64 `json:"avg_drift" validate:"min=0,max=1"`

	// TotalCompression compounds per-handoff compression across hops:
	// 1 - product of (1 - compression_i).
	TotalCompression float64 `json:"total_compression" validate:"min=0,max=1"`

	// EndToEndFidelity compounds per-handoff fidelity across hops as the
	// product of constituent fidelities, so a single weak link dominates
	// the end-to-end score.
	EndToEndFidelity float64 `json:"end_to_end_fidelity" validate:"min=0,max=1"`
}

// PipelineEvaluation is the derived, recomputable rollup of one pipeline
// run. It is refreshed whenever a new handoff for the pipeline is recorded
// and is never independently mutated.
type PipelineEvaluation struct {
	// PipelineID identifies the end-to-end run this rollup summarizes.
	PipelineID string `json:"pipeline_id" validate:"required"`

	// Format is the context format shared by the constituent handoffs.
	Format ContextFormat `json:"format,omitempty"`

	// HandoffIDs lists the constituent handoff evaluations in chain order.
	HandoffIDs []string `json:"handoff_ids"`

	PipelineScore
}

// Validate checks identifiers and aggregate score ranges.
func (p *PipelineEvaluation) Validate() error {
	if p.PipelineID == "" {
		return fmt.Errorf("%w: %w: pipeline_id", ErrSchemaViolation, ErrMissingIdentifier)
	}
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaViolation, err)
	}
	return nil
}
