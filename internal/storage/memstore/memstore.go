// Package memstore provides an in-memory evaluation store for development
// and testing. Documents are copied on write and on read so callers cannot
// mutate stored history.
package memstore

import (
	"context"
	"sync"

	"github.com/contextscope/ctxeval/internal/domain"
)

// Store is a thread-safe in-memory implementation of evaluation.Store.
// Handoffs are kept in insertion order per pipeline; pipeline rollups keep
// the order of their latest refresh.
type Store struct {
	mu sync.RWMutex

	handoffs map[string][]domain.HandoffEvaluation

	pipelines     map[string]domain.PipelineEvaluation
	pipelineOrder []string // pipeline IDs, most recently refreshed last
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		handoffs:  make(map[string][]domain.HandoffEvaluation),
		pipelines: make(map[string]domain.PipelineEvaluation),
	}
}

// InsertHandoff appends a handoff evaluation and returns its ID.
func (s *Store) InsertHandoff(_ context.Context, doc *domain.HandoffEvaluation) (string, error) {
	if doc == nil {
		return "", domain.ErrSchemaViolation
	}
	if err := doc.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := doc.PipelineID
	s.handoffs[key] = append(s.handoffs[key], copyHandoff(*doc))
	return doc.HandoffID, nil
}

// InsertPipeline records or refreshes a pipeline rollup.
func (s *Store) InsertPipeline(_ context.Context, doc *domain.PipelineEvaluation) (string, error) {
	if doc == nil {
		return "", domain.ErrSchemaViolation
	}
	if err := doc.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.pipelines[doc.PipelineID]; seen {
		s.pipelineOrder = removeID(s.pipelineOrder, doc.PipelineID)
	}
	s.pipelineOrder = append(s.pipelineOrder, doc.PipelineID)
	s.pipelines[doc.PipelineID] = copyPipeline(*doc)
	return doc.PipelineID, nil
}

// GetHandoffs returns the handoff evaluations of a pipeline in insertion
// order. Unknown pipelines yield an empty slice, not an error.
func (s *Store) GetHandoffs(_ context.Context, pipelineID string) ([]domain.HandoffEvaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.handoffs[pipelineID]
	out := make([]domain.HandoffEvaluation, 0, len(stored))
	for _, h := range stored {
		out = append(out, copyHandoff(h))
	}
	return out, nil
}

// GetRecentPipelines returns up to n pipeline rollups, most recently
// refreshed first. n <= 0 returns all rollups.
func (s *Store) GetRecentPipelines(_ context.Context, n int) ([]domain.PipelineEvaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PipelineEvaluation, 0, len(s.pipelineOrder))
	for i := len(s.pipelineOrder) - 1; i >= 0; i-- {
		if n > 0 && len(out) >= n {
			break
		}
		out = append(out, copyPipeline(s.pipelines[s.pipelineOrder[i]]))
	}
	return out, nil
}

func copyHandoff(h domain.HandoffEvaluation) domain.HandoffEvaluation {
	h.KeyInfoPreserved = copyStrings(h.KeyInfoPreserved)
	h.KeyInfoLost = copyStrings(h.KeyInfoLost)
	if h.Vectors != nil {
		v := *h.Vectors
		v.Sent = append([]float64(nil), h.Vectors.Sent...)
		v.Received = append([]float64(nil), h.Vectors.Received...)
		v.Output = append([]float64(nil), h.Vectors.Output...)
		h.Vectors = &v
	}
	return h
}

func copyPipeline(p domain.PipelineEvaluation) domain.PipelineEvaluation {
	p.HandoffIDs = copyStrings(p.HandoffIDs)
	return p
}

// copyStrings clones a slice, keeping nil and empty distinct so stored
// documents round-trip through JSON the same way they came in.
func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
