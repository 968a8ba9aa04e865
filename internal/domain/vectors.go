package domain

import "fmt"

// VectorBundle carries precomputed embedding vectors for the stages of one
// handoff. Any subset of the three vectors may be present, but all present
// vectors must share a single dimension. A dimension mismatch is a
// validation failure, never a silent truncation.
type VectorBundle struct {
	// Sent is the embedding of the context that was sent.
	Sent []float64 `json:"sent,omitempty"`

	// Received is the embedding of the context the downstream agent
	// actually perceived.
	Received []float64 `json:"received,omitempty"`

	// Output is the embedding of the downstream agent's output, when the
	// caller measured one.
	Output []float64 `json:"output,omitempty"`
}

// HasPair reports whether both the sent and received vectors are present,
// which is what the embedding fidelity path requires.
func (b *VectorBundle) HasPair() bool {
	return b != nil && len(b.Sent) > 0 && len(b.Received) > 0
}

// Dimension returns the shared dimension of the present vectors, or 0 when
// the bundle is nil or holds no vectors.
func (b *VectorBundle) Dimension() int {
	if b == nil {
		return 0
	}
	for _, v := range [][]float64{b.Sent, b.Received, b.Output} {
		if len(v) > 0 {
			return len(v)
		}
	}
	return 0
}

// Validate checks the bundle's structural invariants: no present vector may
// be empty-but-declared, and all present vectors must share one dimension.
// A nil bundle is valid (vectors are optional).
func (b *VectorBundle) Validate() error {
	if b == nil {
		return nil
	}
	dim := 0
	for _, stage := range []struct {
		name string
		vec  []float64
	}{
		{"sent", b.Sent},
		{"received", b.Received},
		{"output", b.Output},
	} {
		if stage.vec == nil {
			continue
		}
		if len(stage.vec) == 0 {
			return fmt.Errorf("%w: %s: %w", ErrSchemaViolation, stage.name, ErrEmptyVector)
		}
		if dim == 0 {
			dim = len(stage.vec)
			continue
		}
		if len(stage.vec) != dim {
			return fmt.Errorf("%w: %s: %w (%d vs %d)",
				ErrSchemaViolation, stage.name, ErrVectorDimensionMismatch, len(stage.vec), dim)
		}
	}
	return nil
}
