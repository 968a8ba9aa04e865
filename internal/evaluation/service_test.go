package evaluation //nolint:testpackage // Exercises unexported blend logic

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextscope/ctxeval/internal/domain"
	"github.com/contextscope/ctxeval/internal/judge"
	"github.com/contextscope/ctxeval/internal/metrics"
)

// fakeStore is a minimal in-memory Store for service tests.
type fakeStore struct {
	handoffs  map[string][]domain.HandoffEvaluation
	pipelines []domain.PipelineEvaluation

	insertHandoffErr  error
	insertPipelineErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{handoffs: make(map[string][]domain.HandoffEvaluation)}
}

func (s *fakeStore) InsertHandoff(_ context.Context, doc *domain.HandoffEvaluation) (string, error) {
	if s.insertHandoffErr != nil {
		return "", s.insertHandoffErr
	}
	s.handoffs[doc.PipelineID] = append(s.handoffs[doc.PipelineID], *doc)
	return doc.HandoffID, nil
}

func (s *fakeStore) InsertPipeline(_ context.Context, doc *domain.PipelineEvaluation) (string, error) {
	if s.insertPipelineErr != nil {
		return "", s.insertPipelineErr
	}
	s.pipelines = append(s.pipelines, *doc)
	return doc.PipelineID, nil
}

func (s *fakeStore) GetHandoffs(_ context.Context, pipelineID string) ([]domain.HandoffEvaluation, error) {
	return s.handoffs[pipelineID], nil
}

func (s *fakeStore) GetRecentPipelines(_ context.Context, n int) ([]domain.PipelineEvaluation, error) {
	out := append([]domain.PipelineEvaluation(nil), s.pipelines...)
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// fakeJudge returns a canned verdict or error.
type fakeJudge struct {
	verdict *judge.Verdict
	err     error
	calls   int
}

func (j *fakeJudge) Judge(context.Context, judge.Request) (*judge.Verdict, error) {
	j.calls++
	return j.verdict, j.err
}

func ptr(v float64) *float64 { return &v }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEvaluator(t *testing.T, store Store, opts ...Option) *Evaluator {
	t.Helper()
	opts = append(opts, WithLogger(testLogger()))
	e, err := NewEvaluator(store, opts...)
	require.NoError(t, err)
	return e
}

func TestNewEvaluator(t *testing.T) {
	t.Run("nil store rejected", func(t *testing.T) {
		_, err := NewEvaluator(nil)
		assert.ErrorIs(t, err, ErrNilStore)
	})

	t.Run("works without judge", func(t *testing.T) {
		e := newTestEvaluator(t, newFakeStore())
		assert.NotNil(t, e)
	})
}

func TestEvaluateHandoff_HeuristicOnly(t *testing.T) {
	e := newTestEvaluator(t, newFakeStore())
	ctx := context.Background()

	t.Run("perfect transfer", func(t *testing.T) {
		payload := `{"title":"Arrival","year":2016}`
		eval, err := e.EvaluateHandoff(ctx, HandoffInput{
			AgentFrom:       "profiler",
			AgentTo:         "analyzer",
			PipelineID:      "pipe-1",
			Format:          domain.FormatStructured,
			ContextSent:     payload,
			ContextReceived: payload,
		})
		require.NoError(t, err)
		assert.Equal(t, 1.0, eval.Scores.Fidelity)
		assert.Equal(t, 0.0, eval.Scores.Drift)
		assert.Equal(t, 0.0, eval.Scores.CompressionEfficiency)
		assert.Equal(t, 1.0, eval.Scores.TemporalCoherence)
		assert.True(t, eval.HeuristicOnly)
		assert.Empty(t, eval.KeyInfoLost)
		assert.ElementsMatch(t, []string{"title=arrival", "year=2016"}, eval.KeyInfoPreserved)
	})

	t.Run("lossy transfer records lost units", func(t *testing.T) {
		eval, err := e.EvaluateHandoff(ctx, HandoffInput{
			AgentFrom:       "analyzer",
			AgentTo:         "recommender",
			ContextSent:     `{"title":"Arrival","year":2016,"rating":7.9}`,
			ContextReceived: "The movie Arrival",
		})
		require.NoError(t, err)
		assert.Less(t, eval.Scores.Fidelity, 1.0)
		assert.NotEmpty(t, eval.KeyInfoLost)
	})

	t.Run("vector bundle dimension mismatch is fatal", func(t *testing.T) {
		_, err := e.EvaluateHandoff(ctx, HandoffInput{
			AgentFrom:       "a",
			AgentTo:         "b",
			ContextSent:     "x",
			ContextReceived: "x",
			Vectors: &domain.VectorBundle{
				Sent:     []float64{1, 0},
				Received: []float64{1},
			},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrVectorDimensionMismatch)
	})

	t.Run("embeddings take precedence over text", func(t *testing.T) {
		eval, err := e.EvaluateHandoff(ctx, HandoffInput{
			AgentFrom:       "a",
			AgentTo:         "b",
			ContextSent:     "same text",
			ContextReceived: "same text",
			Vectors: &domain.VectorBundle{
				Sent:     []float64{1, 0},
				Received: []float64{0, 1},
			},
		})
		require.NoError(t, err)
		assert.InDelta(t, 0.5, eval.Scores.Fidelity, 1e-9)
	})

	t.Run("token overrides drive compression", func(t *testing.T) {
		eval, err := e.EvaluateHandoff(ctx, HandoffInput{
			AgentFrom:       "a",
			AgentTo:         "b",
			ContextSent:     "one two",
			ContextReceived: "one two",
			TokensSent:      200,
			TokensReceived:  50,
		})
		require.NoError(t, err)
		assert.InDelta(t, 0.75, eval.Scores.CompressionEfficiency, 1e-9)
	})

	t.Run("utility needs both scores", func(t *testing.T) {
		eval, err := e.EvaluateHandoff(ctx, HandoffInput{
			AgentFrom:       "a",
			AgentTo:         "b",
			ContextSent:     "x",
			ContextReceived: "x",
			BaselineScore:   ptr(0.4),
		})
		require.NoError(t, err)
		assert.Equal(t, 0.0, eval.Scores.ResponseUtility)

		eval, err = e.EvaluateHandoff(ctx, HandoffInput{
			AgentFrom:       "a",
			AgentTo:         "b",
			ContextSent:     "x",
			ContextReceived: "x",
			BaselineScore:   ptr(0.4),
			ContextualScore: ptr(0.5),
			UtilityMode:     metrics.UtilityRelative,
		})
		require.NoError(t, err)
		assert.InDelta(t, 0.25, eval.Scores.ResponseUtility, 1e-9)
	})
}

func TestEvaluateHandoff_JudgeBlending(t *testing.T) {
	ctx := context.Background()
	input := HandoffInput{
		AgentFrom:       "a",
		AgentTo:         "b",
		PipelineID:      "pipe-1",
		ContextSent:     "identical payload",
		ContextReceived: "identical payload",
	}

	t.Run("verdict blends into heuristic scores", func(t *testing.T) {
		j := &fakeJudge{verdict: &judge.Verdict{
			Fidelity:  ptr(0.6),
			Drift:     ptr(0.4),
			Rationale: "some loss of nuance",
		}}
		e := newTestEvaluator(t, newFakeStore(), WithJudge(j))

		eval, err := e.EvaluateHandoff(ctx, input)
		require.NoError(t, err)
		// Heuristic fidelity 1.0 and drift 0.0 blend half-and-half.
		assert.InDelta(t, 0.8, eval.Scores.Fidelity, 1e-9)
		assert.InDelta(t, 0.2, eval.Scores.Drift, 1e-9)
		assert.False(t, eval.HeuristicOnly)
		assert.Equal(t, "some loss of nuance", eval.JudgeRationale)
		assert.Equal(t, 1, j.calls)
	})

	t.Run("judge failure degrades to heuristics", func(t *testing.T) {
		j := &fakeJudge{err: judge.ErrJudgeUnavailable}
		e := newTestEvaluator(t, newFakeStore(), WithJudge(j))

		eval, err := e.EvaluateHandoff(ctx, input)
		require.NoError(t, err, "judge unavailability must not fail the evaluation")
		assert.Equal(t, 1.0, eval.Scores.Fidelity)
		assert.True(t, eval.HeuristicOnly)
		assert.Empty(t, eval.JudgeRationale)
	})

	t.Run("out-of-range verdict scores are discarded", func(t *testing.T) {
		j := &fakeJudge{verdict: &judge.Verdict{Fidelity: ptr(7.5), Drift: ptr(-0.2)}}
		e := newTestEvaluator(t, newFakeStore(), WithJudge(j))

		eval, err := e.EvaluateHandoff(ctx, input)
		require.NoError(t, err)
		assert.Equal(t, 1.0, eval.Scores.Fidelity)
		assert.True(t, eval.HeuristicOnly)
	})

	t.Run("non-finite verdict scores are discarded", func(t *testing.T) {
		j := &fakeJudge{verdict: &judge.Verdict{
			Fidelity: ptr(math.NaN()),
			Drift:    ptr(math.Inf(1)),
		}}
		e := newTestEvaluator(t, newFakeStore(), WithJudge(j))

		eval, err := e.EvaluateHandoff(ctx, input)
		require.NoError(t, err, "a malfunctioning judge must degrade, not fail")
		assert.Equal(t, 1.0, eval.Scores.Fidelity)
		assert.Equal(t, 0.0, eval.Scores.Drift)
		assert.True(t, eval.HeuristicOnly)
	})

	t.Run("partial verdict blends only present scores", func(t *testing.T) {
		j := &fakeJudge{verdict: &judge.Verdict{Fidelity: ptr(0.5)}}
		e := newTestEvaluator(t, newFakeStore(), WithJudge(j))

		eval, err := e.EvaluateHandoff(ctx, input)
		require.NoError(t, err)
		assert.InDelta(t, 0.75, eval.Scores.Fidelity, 1e-9)
		assert.Equal(t, 0.0, eval.Scores.Drift, "absent drift keeps heuristic value")
		assert.False(t, eval.HeuristicOnly)
	})
}

func TestEvaluateAndStore(t *testing.T) {
	ctx := context.Background()

	t.Run("persists the evaluated record", func(t *testing.T) {
		store := newFakeStore()
		e := newTestEvaluator(t, store)

		eval, err := e.EvaluateAndStore(ctx, HandoffInput{
			AgentFrom:       "a",
			AgentTo:         "b",
			PipelineID:      "pipe-1",
			ContextSent:     "payload",
			ContextReceived: "payload",
		})
		require.NoError(t, err)
		require.Len(t, store.handoffs["pipe-1"], 1)
		assert.Equal(t, eval.HandoffID, store.handoffs["pipe-1"][0].HandoffID)
	})

	t.Run("store failure surfaces", func(t *testing.T) {
		store := newFakeStore()
		store.insertHandoffErr = errors.New("disk full")
		e := newTestEvaluator(t, store)

		_, err := e.EvaluateAndStore(ctx, HandoffInput{
			AgentFrom: "a", AgentTo: "b", ContextSent: "x", ContextReceived: "x",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
	})
}

func TestInsertHandoffEvaluation_Revalidates(t *testing.T) {
	store := newFakeStore()
	e := newTestEvaluator(t, store)
	ctx := context.Background()

	eval, err := e.EvaluateHandoff(ctx, HandoffInput{
		AgentFrom: "a", AgentTo: "b", ContextSent: "x", ContextReceived: "x",
	})
	require.NoError(t, err)

	// Corrupt the record after construction; the boundary must reject it.
	eval.Scores.Fidelity = 4.2
	_, err = e.InsertHandoffEvaluation(ctx, eval)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSchemaViolation)
	assert.Empty(t, store.handoffs[""])
}

func TestFinalizePipeline(t *testing.T) {
	ctx := context.Background()

	t.Run("empty pipeline yields neutral rollup without persisting", func(t *testing.T) {
		store := newFakeStore()
		e := newTestEvaluator(t, store)

		rollup, err := e.FinalizePipeline(ctx, "never-ran")
		require.NoError(t, err)
		assert.Equal(t, "never-ran", rollup.PipelineID)
		assert.Equal(t, 0.0, rollup.AvgFidelity)
		assert.Empty(t, store.pipelines, "neutral rollup is not persisted")
	})

	t.Run("rollup is recomputed and persisted", func(t *testing.T) {
		store := newFakeStore()
		e := newTestEvaluator(t, store)

		payload := `{"fact":"alpha"}`
		for i := 0; i < 3; i++ {
			_, err := e.EvaluateAndStore(ctx, HandoffInput{
				AgentFrom:       "a",
				AgentTo:         "b",
				PipelineID:      "pipe-1",
				Format:          domain.FormatStructured,
				ContextSent:     payload,
				ContextReceived: payload,
			})
			require.NoError(t, err)
		}

		rollup, err := e.FinalizePipeline(ctx, "pipe-1")
		require.NoError(t, err)
		assert.Equal(t, 1.0, rollup.AvgFidelity)
		assert.Equal(t, 1.0, rollup.EndToEndFidelity)
		assert.Len(t, rollup.HandoffIDs, 3)
		require.Len(t, store.pipelines, 1)
		assert.Equal(t, "pipe-1", store.pipelines[0].PipelineID)
	})
}
