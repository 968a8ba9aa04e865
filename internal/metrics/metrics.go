// Package metrics implements the pure scoring functions for context-handoff
// evaluation: fidelity, relevance drift, compression efficiency, temporal
// coherence, and response utility.
//
// Every function is deterministic and total: missing optional inputs degrade
// to a fallback strategy (term-frequency similarity when embeddings are
// absent) instead of failing, and all results are clamped to [0,1]. The
// functions hold no state and are safe for concurrent use.
package metrics

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/contextscope/ctxeval/internal/domain"
)

const (
	// DriftBlendWeight is the weight alpha given to the fidelity term when
	// blending it with top-term divergence in RelevanceDrift. The original
	// system documents no principled derivation; 0.5 is a tunable default.
	DriftBlendWeight = 0.5

	// DriftTopK is the size of the most-frequent-term window used for the
	// divergence term of RelevanceDrift. Tunable default.
	DriftTopK = 10

	// normEpsilon guards against division by a near-zero vector norm.
	normEpsilon = 1e-12
)

var (
	tokenRe = regexp.MustCompile(`[a-z0-9]+`)
	yearRe  = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	isoRe   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
)

// Fidelity computes context transmission fidelity in [0,1].
//
// When the bundle carries both sent and received embeddings, the score is
// their cosine similarity rescaled from [-1,1] to [0,1] via (cos+1)/2.
// Otherwise it falls back to cosine similarity of lowercase term-frequency
// vectors over the union vocabulary. Identical inputs yield exactly 1.0
// under both paths.
func Fidelity(sent, received string, vectors *domain.VectorBundle) float64 {
	if vectors.HasPair() {
		if equalVectors(vectors.Sent, vectors.Received) {
			return 1.0
		}
		cos := cosine(vectors.Sent, vectors.Received)
		return clamp01((cos + 1.0) / 2.0)
	}

	if sent == received {
		return 1.0
	}
	return clamp01(termFreqCosine(tokenize(sent), tokenize(received)))
}

// RelevanceDrift computes semantic drift in [0,1] (higher = more drift).
// It blends the fidelity complement with the divergence of the top
// DriftTopK most frequent terms of each side:
//
//	drift = alpha*(1-fidelity) + (1-alpha)*|symdiff| / |union|
//
// When neither side has any terms the fidelity complement carries full
// weight.
func RelevanceDrift(sent, received string, fidelity float64) float64 {
	base := 1.0 - clamp01(fidelity)

	sentTop := topTerms(tokenize(sent), DriftTopK)
	recvTop := topTerms(tokenize(received), DriftTopK)
	if len(sentTop) == 0 && len(recvTop) == 0 {
		return clamp01(base)
	}

	divergence := setDivergence(sentTop, recvTop)
	return clamp01(DriftBlendWeight*base + (1.0-DriftBlendWeight)*divergence)
}

// CompressionEfficiency computes the fractional token reduction achieved by
// a handoff: max(0, 1 - received/sent). Defined as 0 when no tokens were
// sent, since there was no information to compress. Expansion scores 0.
func CompressionEfficiency(tokensSent, tokensReceived int) float64 {
	if tokensSent <= 0 {
		return 0
	}
	if tokensReceived < 0 {
		tokensReceived = 0
	}
	return clamp01(1.0 - float64(tokensReceived)/float64(tokensSent))
}

// TokenCount estimates the token count of a text using whitespace splitting.
// Deliberately not a model-specific tokenizer, so scores are reproducible
// offline.
func TokenCount(text string) int {
	return len(strings.Fields(text))
}

// TemporalCoherence scores preservation of time-referencing tokens
// (4-digit years and ISO dates) across a handoff: the fraction of the sent
// text's temporal tokens that survive into the received text. Vacuously 1.0
// when the sent text has no temporal tokens.
func TemporalCoherence(sent, received string) float64 {
	sentMarks := temporalTokens(sent)
	if len(sentMarks) == 0 {
		return 1.0
	}
	recvMarks := temporalTokens(received)

	preserved := 0
	for mark := range sentMarks {
		if _, ok := recvMarks[mark]; ok {
			preserved++
		}
	}
	return clamp01(float64(preserved) / float64(len(sentMarks)))
}

// UtilityMode selects how ResponseUtility compares the contextual score
// against the baseline.
type UtilityMode string

const (
	// UtilityRelative scores the gain relative to the baseline:
	// (contextual - baseline) / baseline.
	UtilityRelative UtilityMode = "relative"

	// UtilityAbsolute scores the raw gain: contextual - baseline.
	UtilityAbsolute UtilityMode = "absolute"
)

// ResponseUtility computes the task-performance gain attributable to context
// sharing, clamped to [0,1]. Negative utility clamps to 0, signaling that
// context did not help. Relative mode degrades to the absolute delta when
// the baseline is effectively zero, where the ratio is undefined.
func ResponseUtility(baseline, contextual float64, mode UtilityMode) float64 {
	delta := contextual - baseline
	if mode == UtilityAbsolute {
		return clamp01(delta)
	}
	if baseline <= normEpsilon {
		return clamp01(delta)
	}
	return clamp01(delta / baseline)
}

// cosine computes cosine similarity of two equal-length vectors, returning
// 0 when either norm is near zero.
func cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	na = math.Sqrt(na)
	nb = math.Sqrt(nb)
	if na < normEpsilon || nb < normEpsilon {
		return 0
	}
	return dot / (na * nb)
}

func equalVectors(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// tokenize splits text into lowercase alphanumeric terms.
func tokenize(text string) []string {
	return tokenRe.FindAllString(strings.ToLower(text), -1)
}

// termFreqCosine computes cosine similarity of term-count vectors over the
// union vocabulary of both token lists.
func termFreqCosine(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	aCounts := termCounts(a)
	bCounts := termCounts(b)

	var dot, na, nb float64
	for term, ca := range aCounts {
		na += float64(ca) * float64(ca)
		if cb, ok := bCounts[term]; ok {
			dot += float64(ca) * float64(cb)
		}
	}
	for _, cb := range bCounts {
		nb += float64(cb) * float64(cb)
	}
	na = math.Sqrt(na)
	nb = math.Sqrt(nb)
	if na < normEpsilon || nb < normEpsilon {
		return 0
	}
	return dot / (na * nb)
}

func termCounts(tokens []string) map[string]int {
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	return counts
}

// topTerms returns the k most frequent terms as a set. Ties break
// lexicographically so the window is deterministic.
func topTerms(tokens []string, k int) map[string]struct{} {
	counts := termCounts(tokens)
	terms := make([]string, 0, len(counts))
	for t := range counts {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > k {
		terms = terms[:k]
	}
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	return set
}

// setDivergence computes |symmetric difference| / |union| of two term sets.
func setDivergence(a, b map[string]struct{}) float64 {
	union := len(b)
	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(union-intersection) / float64(union)
}

// temporalTokens extracts the set of year and ISO-date tokens from a text.
func temporalTokens(text string) map[string]struct{} {
	marks := make(map[string]struct{})
	for _, m := range isoRe.FindAllString(text, -1) {
		marks[m] = struct{}{}
	}
	for _, m := range yearRe.FindAllString(text, -1) {
		marks[m] = struct{}{}
	}
	return marks
}

// clamp01 ensures a value is within the range [0, 1].
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
