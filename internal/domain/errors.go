package domain

import "errors"

// ErrSchemaViolation is the root of the fatal validation error family.
// A record that fails schema validation is rejected outright, never
// partially stored.
var ErrSchemaViolation = errors.New("schema violation")

// ErrScoreNotFinite indicates a score was NaN or infinite. This signals a
// computation bug upstream, not a data-quality issue.
var ErrScoreNotFinite = errors.New("score is not a finite number")

// ErrScoreOutOfRange indicates a score fell outside [0,1] by more than the
// clamping tolerance before clamping.
var ErrScoreOutOfRange = errors.New("score outside [0,1] beyond clamping tolerance")

// ErrEmptyVector indicates an embedding vector was declared present but
// contains no elements.
var ErrEmptyVector = errors.New("embedding vector must not be empty")

// ErrVectorDimensionMismatch indicates the vectors of a bundle do not share
// a single dimension.
var ErrVectorDimensionMismatch = errors.New("vector dimensions do not match")

// ErrMissingIdentifier indicates a required handoff or pipeline identifier
// was absent.
var ErrMissingIdentifier = errors.New("missing required identifier")
