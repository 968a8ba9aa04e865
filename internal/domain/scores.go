// Package domain provides the core types for context-handoff evaluation.
// It defines score and vector records with constructor-time validation,
// handoff and pipeline evaluation documents, and the sentinel errors that
// distinguish fatal schema violations from recoverable degraded modes.
//
// Validation philosophy:
//   - Fail fast at the boundary: records are validated when constructed,
//     not deep inside a metric function.
//   - Floating-point noise near the [0,1] boundary is clamped; anything
//     further out is a programming-error signal and is rejected.
//   - Records are immutable once scored. A correction produces a new
//     record with a new identifier.
package domain

import (
	"fmt"
	"math"
)

// ScoreEpsilon is the clamping tolerance for score validation. Values within
// this distance of the [0,1] boundary are treated as floating-point noise and
// clamped; values further out are rejected.
const ScoreEpsilon = 1e-6

// EvalScores holds the five normalized scores computed for a single handoff.
// Every score lies in [0.0, 1.0] inclusive after construction.
type EvalScores struct {
	// Fidelity measures how much of the sent context's meaning is
	// recoverable in the received context (1.0 = perfect preservation).
	Fidelity float64 `json:"fidelity" validate:"min=0,max=1"`

	// Drift measures semantic deviation introduced at the handoff
	// (0.0 = no deviation).
	Drift float64 `json:"drift" validate:"min=0,max=1"`

	// CompressionEfficiency is the fractional token reduction achieved by
	// the handoff (0.0 = no reduction or expansion).
	CompressionEfficiency float64 `json:"compression_efficiency" validate:"min=0,max=1"`

	// TemporalCoherence is the fraction of time-referencing tokens
	// preserved across the handoff (vacuously 1.0 when none were sent).
	TemporalCoherence float64 `json:"temporal_coherence" validate:"min=0,max=1"`

	// ResponseUtility is the measured task-performance gain attributable
	// to context sharing (0.0 = context did not help).
	ResponseUtility float64 `json:"response_utility" validate:"min=0,max=1"`
}

// NewEvalScores constructs an EvalScores record, clamping near-boundary
// floating noise and rejecting scores that are NaN, infinite, or more than
// ScoreEpsilon outside [0,1].
func NewEvalScores(fidelity, drift, compression, temporal, utility float64) (EvalScores, error) {
	var (
		s   EvalScores
		err error
	)
	if s.Fidelity, err = checkScore("fidelity", fidelity); err != nil {
		return EvalScores{}, err
	}
	if s.Drift, err = checkScore("drift", drift); err != nil {
		return EvalScores{}, err
	}
	if s.CompressionEfficiency, err = checkScore("compression_efficiency", compression); err != nil {
		return EvalScores{}, err
	}
	if s.TemporalCoherence, err = checkScore("temporal_coherence", temporal); err != nil {
		return EvalScores{}, err
	}
	if s.ResponseUtility, err = checkScore("response_utility", utility); err != nil {
		return EvalScores{}, err
	}
	return s, nil
}

// Validate checks that every score lies in [0,1]. Records produced by
// NewEvalScores always pass; this guards records decoded from storage.
func (s *EvalScores) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaViolation, err)
	}
	for name, v := range map[string]float64{
		"fidelity":               s.Fidelity,
		"drift":                  s.Drift,
		"compression_efficiency": s.CompressionEfficiency,
		"temporal_coherence":     s.TemporalCoherence,
		"response_utility":       s.ResponseUtility,
	} {
		if _, err := checkScore(name, v); err != nil {
			return err
		}
	}
	return nil
}

// checkScore validates a single score against the clamping policy.
// Returns the clamped value, or an error wrapping ErrSchemaViolation when
// the value indicates a computation bug.
func checkScore(name string, v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s: %w (got %v)", ErrSchemaViolation, name, ErrScoreNotFinite, v)
	}
	if v < -ScoreEpsilon || v > 1+ScoreEpsilon {
		return 0, fmt.Errorf("%w: %s: %w (got %v)", ErrSchemaViolation, name, ErrScoreOutOfRange, v)
	}
	return clamp01(v), nil
}
