package evaluation

import (
	"github.com/contextscope/ctxeval/internal/domain"
)

// RollupPipeline aggregates the ordered handoff chain of one pipeline into
// a PipelineEvaluation.
//
// Arithmetic means capture the typical hop (avg_fidelity, avg_drift), while
// the end-to-end fields compound multiplicatively across hops, because
// information loss compounds: end_to_end_fidelity is the product of the
// constituent fidelities, and total_compression is 1 - the product of
// (1 - compression_i). An empty chain yields the neutral rollup.
func RollupPipeline(pipelineID string, handoffs []domain.HandoffEvaluation) *domain.PipelineEvaluation {
	rollup := &domain.PipelineEvaluation{
		PipelineID: pipelineID,
		HandoffIDs: []string{},
	}
	if len(handoffs) == 0 {
		return rollup
	}

	var (
		fidelitySum, driftSum float64
		fidelityProduct       = 1.0
		retainedProduct       = 1.0
	)
	format := handoffs[0].Format
	for _, h := range handoffs {
		rollup.HandoffIDs = append(rollup.HandoffIDs, h.HandoffID)
		fidelitySum += h.Scores.Fidelity
		driftSum += h.Scores.Drift
		fidelityProduct *= h.Scores.Fidelity
		retainedProduct *= 1.0 - h.Scores.CompressionEfficiency
		if h.Format != format {
			format = "" // mixed-format chain carries no single tag
		}
	}

	n := float64(len(handoffs))
	rollup.Format = format
	rollup.AvgFidelity = fidelitySum / n
	rollup.AvgDrift = driftSum / n
	rollup.EndToEndFidelity = fidelityProduct
	rollup.TotalCompression = 1.0 - retainedProduct
	return rollup
}

// RollupByFormat groups handoffs by their declared context format and
// returns the arithmetic mean of every score field per group. Used to
// compare structured against freeform transmission quality.
func RollupByFormat(handoffs []domain.HandoffEvaluation) map[domain.ContextFormat]domain.EvalScores {
	sums := make(map[domain.ContextFormat]*domain.EvalScores)
	counts := make(map[domain.ContextFormat]int)

	for _, h := range handoffs {
		agg, ok := sums[h.Format]
		if !ok {
			agg = &domain.EvalScores{}
			sums[h.Format] = agg
		}
		agg.Fidelity += h.Scores.Fidelity
		agg.Drift += h.Scores.Drift
		agg.CompressionEfficiency += h.Scores.CompressionEfficiency
		agg.TemporalCoherence += h.Scores.TemporalCoherence
		agg.ResponseUtility += h.Scores.ResponseUtility
		counts[h.Format]++
	}

	result := make(map[domain.ContextFormat]domain.EvalScores, len(sums))
	for format, agg := range sums {
		n := float64(counts[format])
		result[format] = domain.EvalScores{
			Fidelity:              agg.Fidelity / n,
			Drift:                 agg.Drift / n,
			CompressionEfficiency: agg.CompressionEfficiency / n,
			TemporalCoherence:     agg.TemporalCoherence / n,
			ResponseUtility:       agg.ResponseUtility / n,
		}
	}
	return result
}
