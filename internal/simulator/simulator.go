// Package simulator crafts matched agent pipelines over a small sample
// catalog and runs them through the evaluator.
//
// Two pipelines carry the same underlying facts through the same agent
// chain, differing only in handoff encoding: one passes structured JSON,
// the other freeform prose that drops quantitative detail the way ad-hoc
// summaries tend to. Comparing their rollups shows how much fidelity the
// encoding alone costs.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/contextscope/ctxeval/internal/domain"
	"github.com/contextscope/ctxeval/internal/evaluation"
)

// movie is one entry of the built-in sample catalog.
type movie struct {
	ID       string
	Title    string
	Year     int
	Genres   []string
	Director string
	Rating   float64
}

// profile is the simulated end user the pipelines recommend for.
type profile struct {
	ID         string
	Name       string
	Genres     []string
	Decades    []string
	RuntimeMin int
}

// agentChain is the fixed four-agent pipeline: each pair is one handoff.
var agentChain = [][2]string{
	{"user-profiler", "content-analyzer"},
	{"content-analyzer", "recommender"},
	{"recommender", "explainer"},
}

// catalog returns the sample user and movies. The i-th run rotates the
// slice so batch runs produce varied contexts.
func catalog(run int) (profile, []movie) {
	user := profile{
		ID:         fmt.Sprintf("user-%03d", run%20),
		Name:       "Sci-Fi Fan",
		Genres:     []string{"Sci-Fi", "Drama"},
		Decades:    []string{"2010s", "2020s"},
		RuntimeMin: 130,
	}

	all := []movie{
		{ID: "m-001", Title: "Arrival", Year: 2016, Genres: []string{"Sci-Fi", "Drama"}, Director: "Denis Villeneuve", Rating: 7.9},
		{ID: "m-002", Title: "Interstellar", Year: 2014, Genres: []string{"Sci-Fi", "Adventure"}, Director: "Christopher Nolan", Rating: 8.7},
		{ID: "m-003", Title: "Ex Machina", Year: 2014, Genres: []string{"Sci-Fi", "Thriller"}, Director: "Alex Garland", Rating: 7.7},
		{ID: "m-004", Title: "Annihilation", Year: 2018, Genres: []string{"Sci-Fi", "Horror"}, Director: "Alex Garland", Rating: 6.8},
		{ID: "m-005", Title: "Dune", Year: 2021, Genres: []string{"Sci-Fi", "Adventure"}, Director: "Denis Villeneuve", Rating: 8.0},
	}
	start := run % len(all)
	rotated := append(all[start:], all[:start]...)
	return user, rotated[:3]
}

// handoff is one sent/received context pair ready for evaluation.
type handoff struct {
	sent     string
	received string
}

// structuredHandoffs builds the JSON pipeline: each agent emits a JSON
// document that the next agent receives verbatim.
func structuredHandoffs(user profile, movies []movie) []handoff {
	profilerOut := mustJSON(map[string]any{
		"user_id": user.ID,
		"profile": map[string]any{
			"name":                   user.Name,
			"top_genres":             []map[string]any{{"genre": user.Genres[0], "affinity": 0.9}, {"genre": user.Genres[1], "affinity": 0.7}},
			"decade_preference":      user.Decades,
			"avg_runtime_preference": user.RuntimeMin,
			"language_preference":    []string{"English"},
		},
	})

	candidates := make([]map[string]any, 0, len(movies))
	for _, m := range movies {
		candidates = append(candidates, map[string]any{
			"movie_id":         m.ID,
			"title":            m.Title,
			"year":             m.Year,
			"genres":           m.Genres,
			"director":         m.Director,
			"imdb_rating":      m.Rating,
			"similarity_score": 0.85,
		})
	}
	analyzerOut := mustJSON(map[string]any{
		"primary_interests": user.Genres,
		"candidate_movies":  candidates,
	})

	recs := make([]map[string]any, 0, 2)
	for rank, m := range movies[:2] {
		recs = append(recs, map[string]any{
			"rank":             rank + 1,
			"movie_id":         m.ID,
			"title":            m.Title,
			"confidence_score": 0.85 - 0.02*float64(rank+1),
		})
	}
	recommenderOut := mustJSON(map[string]any{"recommendations": recs})

	return []handoff{
		{sent: profilerOut, received: profilerOut},
		{sent: analyzerOut, received: analyzerOut},
		{sent: recommenderOut, received: recommenderOut},
	}
}

// freeformHandoffs builds the prose pipeline over the same facts. Each
// agent restates the context in plain text; IDs, ratings, and scores are
// the kind of detail such summaries drop, which is the degradation the
// evaluator is meant to surface.
func freeformHandoffs(user profile, movies []movie) []handoff {
	profilerOut := fmt.Sprintf(
		"User: %s\nLikes %s. Prefers %s, roughly %d minute runtimes, English.",
		user.Name, strings.Join(user.Genres, " and "),
		strings.Join(user.Decades, "-"), user.RuntimeMin)

	lines := []string{profilerOut, "", "Candidates:"}
	for _, m := range movies {
		lines = append(lines, fmt.Sprintf("- %s (%d), directed by %s", m.Title, m.Year, m.Director))
	}
	analyzerOut := strings.Join(lines, "\n")

	// The recommender boils everything down to two titles.
	recommenderOut := fmt.Sprintf("Top picks:\n1. %s\n2. %s", movies[0].Title, movies[1].Title)

	return []handoff{
		{sent: profilerOut, received: profilerOut},
		{sent: analyzerOut, received: analyzerOut},
		// Received is the reduced summary, not the full analysis.
		{sent: analyzerOut, received: recommenderOut},
	}
}

func mustJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("encode simulated context: %v", err))
	}
	return string(raw)
}

// RunResult pairs the two rollups of a single comparison run.
type RunResult struct {
	Structured *domain.PipelineEvaluation
	Freeform   *domain.PipelineEvaluation
}

// Runner drives matched structured/freeform pipelines through an
// evaluator.
type Runner struct {
	evaluator *evaluation.Evaluator
	logger    *slog.Logger
}

// NewRunner creates a simulation runner. A nil logger falls back to
// slog.Default().
func NewRunner(evaluator *evaluation.Evaluator, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{evaluator: evaluator, logger: logger.With("component", "simulator")}
}

// Run executes one matched pair of pipelines and returns both rollups.
// The run index selects the catalog slice so batches vary their contexts.
func (r *Runner) Run(ctx context.Context, run int) (*RunResult, error) {
	user, movies := catalog(run)

	structured, err := r.runPipeline(ctx,
		fmt.Sprintf("json-%s", uuid.NewString()[:8]),
		domain.FormatStructured, structuredHandoffs(user, movies))
	if err != nil {
		return nil, fmt.Errorf("structured pipeline: %w", err)
	}

	freeform, err := r.runPipeline(ctx,
		fmt.Sprintf("md-%s", uuid.NewString()[:8]),
		domain.FormatFreeform, freeformHandoffs(user, movies))
	if err != nil {
		return nil, fmt.Errorf("freeform pipeline: %w", err)
	}

	return &RunResult{Structured: structured, Freeform: freeform}, nil
}

// RunBatch executes n matched pairs and returns their results in order.
func (r *Runner) RunBatch(ctx context.Context, n int) ([]RunResult, error) {
	out := make([]RunResult, 0, n)
	for i := 0; i < n; i++ {
		res, err := r.Run(ctx, i)
		if err != nil {
			return out, fmt.Errorf("run %d/%d: %w", i+1, n, err)
		}
		out = append(out, *res)
	}
	return out, nil
}

func (r *Runner) runPipeline(
	ctx context.Context,
	pipelineID string,
	format domain.ContextFormat,
	handoffs []handoff,
) (*domain.PipelineEvaluation, error) {
	r.logger.Info("running pipeline",
		"pipeline_id", pipelineID,
		"format", string(format),
		"handoffs", len(handoffs))

	for i, h := range handoffs {
		pair := agentChain[i%len(agentChain)]
		_, err := r.evaluator.EvaluateAndStore(ctx, evaluation.HandoffInput{
			AgentFrom:       pair[0],
			AgentTo:         pair[1],
			PipelineID:      pipelineID,
			Format:          format,
			ContextSent:     h.sent,
			ContextReceived: h.received,
			TaskDescription: "movie recommendation handoff",
		})
		if err != nil {
			return nil, fmt.Errorf("handoff %d (%s -> %s): %w", i+1, pair[0], pair[1], err)
		}
	}

	rollup, err := r.evaluator.FinalizePipeline(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	r.logger.Info("pipeline rollup",
		"pipeline_id", pipelineID,
		"avg_fidelity", rollup.AvgFidelity,
		"end_to_end_fidelity", rollup.EndToEndFidelity,
		"total_compression", rollup.TotalCompression)
	return rollup, nil
}
