package metrics //nolint:testpackage // Exercises unexported helpers directly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextscope/ctxeval/internal/domain"
)

func TestFidelity_TextPath(t *testing.T) {
	t.Run("identical text scores exactly one", func(t *testing.T) {
		text := "User likes Sci-Fi and Drama, prefers 2010s releases."
		assert.Equal(t, 1.0, Fidelity(text, text, nil))
	})

	t.Run("disjoint text scores zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Fidelity("alpha beta gamma", "delta epsilon zeta", nil))
	})

	t.Run("partial overlap scores between", func(t *testing.T) {
		got := Fidelity("alpha beta gamma", "alpha beta omega", nil)
		assert.Greater(t, got, 0.0)
		assert.Less(t, got, 1.0)
	})

	t.Run("empty received scores zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Fidelity("some content", "", nil))
	})

	t.Run("both empty scores one", func(t *testing.T) {
		assert.Equal(t, 1.0, Fidelity("", "", nil))
	})

	t.Run("symmetric", func(t *testing.T) {
		a := "the quick brown fox"
		b := "the slow brown turtle"
		assert.InDelta(t, Fidelity(a, b, nil), Fidelity(b, a, nil), 1e-12)
	})

	t.Run("case insensitive", func(t *testing.T) {
		assert.Equal(t, 1.0, Fidelity("Alpha Beta", "alpha beta", nil))
	})
}

func TestFidelity_VectorPath(t *testing.T) {
	t.Run("identical vectors score exactly one", func(t *testing.T) {
		v := &domain.VectorBundle{
			Sent:     []float64{0.1, 0.2, 0.3},
			Received: []float64{0.1, 0.2, 0.3},
		}
		assert.Equal(t, 1.0, Fidelity("ignored", "also ignored", v))
	})

	t.Run("orthogonal vectors score one half", func(t *testing.T) {
		v := &domain.VectorBundle{
			Sent:     []float64{1, 0},
			Received: []float64{0, 1},
		}
		assert.InDelta(t, 0.5, Fidelity("", "", v), 1e-12)
	})

	t.Run("opposite vectors score zero", func(t *testing.T) {
		v := &domain.VectorBundle{
			Sent:     []float64{1, 0},
			Received: []float64{-1, 0},
		}
		assert.InDelta(t, 0.0, Fidelity("", "", v), 1e-12)
	})

	t.Run("vector path wins over identical text", func(t *testing.T) {
		v := &domain.VectorBundle{
			Sent:     []float64{1, 0},
			Received: []float64{0, 1},
		}
		text := "same on both sides"
		assert.InDelta(t, 0.5, Fidelity(text, text, v), 1e-12)
	})

	t.Run("incomplete pair falls back to text", func(t *testing.T) {
		v := &domain.VectorBundle{Sent: []float64{1, 0}}
		text := "same on both sides"
		assert.Equal(t, 1.0, Fidelity(text, text, v))
	})
}

func TestRelevanceDrift(t *testing.T) {
	t.Run("identical text drifts zero", func(t *testing.T) {
		text := "alpha beta gamma delta"
		fidelity := Fidelity(text, text, nil)
		assert.Equal(t, 0.0, RelevanceDrift(text, text, fidelity))
	})

	t.Run("disjoint text drifts one", func(t *testing.T) {
		sent := "alpha beta gamma"
		received := "delta epsilon zeta"
		fidelity := Fidelity(sent, received, nil)
		assert.InDelta(t, 1.0, RelevanceDrift(sent, received, fidelity), 1e-12)
	})

	t.Run("both empty uses fidelity complement only", func(t *testing.T) {
		assert.InDelta(t, 0.25, RelevanceDrift("", "", 0.75), 1e-12)
	})

	t.Run("result in range for partial overlap", func(t *testing.T) {
		sent := "user likes science fiction movies from 2014"
		received := "user likes drama movies"
		fidelity := Fidelity(sent, received, nil)
		drift := RelevanceDrift(sent, received, fidelity)
		assert.GreaterOrEqual(t, drift, 0.0)
		assert.LessOrEqual(t, drift, 1.0)
	})
}

func TestCompressionEfficiency(t *testing.T) {
	tests := []struct {
		name           string
		sent, received int
		want           float64
	}{
		{"halved", 100, 50, 0.5},
		{"no reduction", 100, 100, 0.0},
		{"expansion floors at zero", 100, 150, 0.0},
		{"nothing sent", 0, 10, 0.0},
		{"negative sent", -5, 10, 0.0},
		{"negative received treated as zero", 100, -1, 1.0},
		{"fully dropped", 80, 0, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CompressionEfficiency(tt.sent, tt.received), 1e-12)
		})
	}
}

func TestTokenCount(t *testing.T) {
	assert.Equal(t, 0, TokenCount(""))
	assert.Equal(t, 0, TokenCount("   \n\t"))
	assert.Equal(t, 4, TokenCount("one two  three\nfour"))
}

func TestTemporalCoherence(t *testing.T) {
	t.Run("no temporal tokens is vacuously coherent", func(t *testing.T) {
		assert.Equal(t, 1.0, TemporalCoherence("no dates here", "none here either"))
	})

	t.Run("all years preserved", func(t *testing.T) {
		assert.Equal(t, 1.0, TemporalCoherence("films from 2014 and 2016", "2014 2016 films"))
	})

	t.Run("half the years preserved", func(t *testing.T) {
		assert.InDelta(t, 0.5, TemporalCoherence("released 2014 and 2021", "released 2014"), 1e-12)
	})

	t.Run("iso dates counted", func(t *testing.T) {
		assert.Equal(t, 1.0, TemporalCoherence("due 2024-05-01", "deadline 2024-05-01"))
	})

	t.Run("all temporal tokens lost", func(t *testing.T) {
		assert.Equal(t, 0.0, TemporalCoherence("from 2014", "no dates at all"))
	})
}

func TestResponseUtility(t *testing.T) {
	t.Run("relative gain", func(t *testing.T) {
		assert.InDelta(t, 0.25, ResponseUtility(0.4, 0.5, UtilityRelative), 1e-12)
	})

	t.Run("relative gain clamps at one", func(t *testing.T) {
		assert.Equal(t, 1.0, ResponseUtility(0.1, 0.5, UtilityRelative))
	})

	t.Run("negative gain clamps to zero", func(t *testing.T) {
		assert.Equal(t, 0.0, ResponseUtility(0.8, 0.5, UtilityRelative))
		assert.Equal(t, 0.0, ResponseUtility(0.8, 0.5, UtilityAbsolute))
	})

	t.Run("zero baseline degrades to absolute delta", func(t *testing.T) {
		assert.InDelta(t, 0.6, ResponseUtility(0, 0.6, UtilityRelative), 1e-12)
	})

	t.Run("absolute mode", func(t *testing.T) {
		assert.InDelta(t, 0.2, ResponseUtility(0.3, 0.5, UtilityAbsolute), 1e-12)
	})
}

func TestTopTerms_DeterministicTies(t *testing.T) {
	tokens := []string{"b", "a", "d", "c", "e", "f"}
	got := topTerms(tokens, 3)
	require.Len(t, got, 3)
	for _, want := range []string{"a", "b", "c"} {
		assert.Contains(t, got, want, "ties break lexicographically")
	}
}

func TestSetDivergence(t *testing.T) {
	set := func(terms ...string) map[string]struct{} {
		s := make(map[string]struct{}, len(terms))
		for _, t := range terms {
			s[t] = struct{}{}
		}
		return s
	}

	assert.Equal(t, 0.0, setDivergence(set(), set()))
	assert.Equal(t, 0.0, setDivergence(set("a", "b"), set("a", "b")))
	assert.Equal(t, 1.0, setDivergence(set("a"), set("b")))
	assert.InDelta(t, 2.0/3.0, setDivergence(set("a", "b"), set("a", "c")), 1e-12)
}
