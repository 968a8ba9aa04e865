package extraction //nolint:testpackage // Exercises unexported helpers directly

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_StructuredPath(t *testing.T) {
	t.Run("flattens nested objects with dotted paths", func(t *testing.T) {
		units, structured := Extract(`{"user":{"name":"Ada","age":36}}`)
		assert.True(t, structured)
		assert.Equal(t, []string{"user.age=36", "user.name=Ada"}, units)
	})

	t.Run("indexes array elements", func(t *testing.T) {
		units, structured := Extract(`{"genres":["Sci-Fi","Drama"]}`)
		assert.True(t, structured)
		assert.Equal(t, []string{"genres[0]=Sci-Fi", "genres[1]=Drama"}, units)
	})

	t.Run("key order in source does not affect units", func(t *testing.T) {
		a, _ := Extract(`{"b":2,"a":1}`)
		b, _ := Extract(`{"a":1,"b":2}`)
		assert.Equal(t, a, b)
	})

	t.Run("null leaves are skipped", func(t *testing.T) {
		units, structured := Extract(`{"rating":null,"title":"Dune"}`)
		assert.True(t, structured)
		assert.Equal(t, []string{"title=Dune"}, units)
	})

	t.Run("array breadth is capped", func(t *testing.T) {
		elems := make([]string, 50)
		for i := range elems {
			elems[i] = fmt.Sprintf("%d", i)
		}
		payload := `{"xs":[` + strings.Join(elems, ",") + `]}`
		units, structured := Extract(payload)
		assert.True(t, structured)
		assert.Len(t, units, maxListBreadth)
	})

	t.Run("leafless documents are still structured", func(t *testing.T) {
		for _, payload := range []string{`{}`, `[]`, `{"a":[]}`, `{"a":null}`} {
			units, structured := Extract(payload)
			assert.True(t, structured, "payload %q", payload)
			assert.Empty(t, units, "payload %q", payload)
		}
	})

	t.Run("bare scalar is not structured", func(t *testing.T) {
		units, structured := Extract(`42`)
		assert.False(t, structured)
		assert.Equal(t, []string{"42"}, units)
	})
}

func TestExtract_FreeformPath(t *testing.T) {
	t.Run("malformed JSON degrades to freeform", func(t *testing.T) {
		units, structured := Extract(`{"title": "Dune", "year": 2021`)
		assert.False(t, structured)
		assert.Contains(t, units, "2021")
	})

	t.Run("extracts dates numbers and proper phrases", func(t *testing.T) {
		text := "Denis Villeneuve released Dune in 2021, rated 8.0, due 2024-05-01."
		units, structured := Extract(text)
		assert.False(t, structured)
		assert.Contains(t, units, "2024-05-01")
		assert.Contains(t, units, "2021")
		assert.Contains(t, units, "8.0")
		assert.Contains(t, units, "Denis Villeneuve")
	})

	t.Run("duplicates collapse by normalized form", func(t *testing.T) {
		units, _ := Extract("2021 and again 2021")
		count := 0
		for _, u := range units {
			if u == "2021" {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})

	t.Run("empty text yields no units", func(t *testing.T) {
		units, structured := Extract("")
		assert.False(t, structured)
		assert.Empty(t, units)
	})
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "denis villeneuve", Normalize("  Denis Villeneuve "))
	assert.Equal(t, "", Normalize("   "))
}

func TestCheckPreservation(t *testing.T) {
	t.Run("partial preservation", func(t *testing.T) {
		p := CheckPreservation([]string{"a", "b", "c"}, []string{"a", "b"})
		assert.Equal(t, []string{"a", "b"}, p.Preserved)
		assert.Equal(t, []string{"c"}, p.Lost)
		assert.InDelta(t, 2.0/3.0, p.Ratio, 1e-9)
	})

	t.Run("nothing sent is vacuously preserved", func(t *testing.T) {
		p := CheckPreservation(nil, []string{"a"})
		assert.Empty(t, p.Preserved)
		assert.Empty(t, p.Lost)
		assert.Equal(t, 1.0, p.Ratio)
	})

	t.Run("everything lost", func(t *testing.T) {
		p := CheckPreservation([]string{"x", "y"}, nil)
		assert.Empty(t, p.Preserved)
		assert.Equal(t, []string{"x", "y"}, p.Lost)
		assert.Equal(t, 0.0, p.Ratio)
	})

	t.Run("matching is case insensitive", func(t *testing.T) {
		p := CheckPreservation([]string{"Denis Villeneuve"}, []string{"denis villeneuve"})
		assert.Equal(t, []string{"denis villeneuve"}, p.Preserved)
		assert.Equal(t, 1.0, p.Ratio)
	})

	t.Run("duplicate sent units count once", func(t *testing.T) {
		p := CheckPreservation([]string{"a", "A", "b"}, []string{"a"})
		assert.Equal(t, []string{"a"}, p.Preserved)
		assert.Equal(t, []string{"b"}, p.Lost)
		assert.InDelta(t, 0.5, p.Ratio, 1e-12)
	})

	t.Run("blank units are ignored", func(t *testing.T) {
		p := CheckPreservation([]string{" ", "a"}, []string{"a"})
		assert.Equal(t, []string{"a"}, p.Preserved)
		assert.Equal(t, 1.0, p.Ratio)
	})
}

func TestUnits(t *testing.T) {
	units := Units(`{"title":"Arrival","year":2016}`)
	require.Len(t, units, 2)
	assert.Equal(t, []string{"title=Arrival", "year=2016"}, units)
}
