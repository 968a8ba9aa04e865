// Package extraction provides deterministic key-unit extraction from
// context payloads and preservation comparison between the sent and
// received sides of a handoff.
//
// A unit is an atomic fact. For structured (JSON-parseable) payloads every
// leaf key/value pair becomes a unit, flattened with dotted paths. For
// freeform text, units are a fixed set of pattern matches: numbers,
// capitalized multi-word phrases, and date-like tokens. Malformed
// structured input degrades to the freeform path; extraction never fails
// the overall evaluation.
package extraction

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// maxListBreadth caps how many elements of a JSON array are flattened,
// keeping unit counts bounded for pathological payloads.
const maxListBreadth = 20

var (
	numberRe = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
	isoRe    = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	// properRe matches capitalized multi-word phrases, a cheap proper-noun
	// heuristic for freeform text.
	properRe = regexp.MustCompile(`\b[A-Z][A-Za-z0-9]*(?:\s+[A-Z][A-Za-z0-9]*)+\b`)
)

// Units extracts the ordered, deduplicated key units of a context payload.
func Units(context string) []string {
	units, _ := Extract(context)
	return units
}

// Extract extracts key units and reports whether the structured path was
// taken. Callers that declared a structured format can use the flag to log
// the degradation to freeform extraction. A payload that parses as a JSON
// object or array is structured even when it holds no leaves; only parse
// failures and bare scalars fall back to freeform.
func Extract(context string) ([]string, bool) {
	trimmed := strings.TrimSpace(context)
	if trimmed != "" {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			switch parsed.(type) {
			case map[string]any, []any:
				return dedupe(flattenLeaves(parsed, "")), true
			}
		}
	}
	return dedupe(freeformUnits(context)), false
}

// Normalize maps a unit to its comparison form: lowercase and trimmed.
// Unit equality is exact string match after this normalization.
func Normalize(unit string) string {
	return strings.ToLower(strings.TrimSpace(unit))
}

// Preservation is the result of comparing sent units against received units.
type Preservation struct {
	// Preserved holds the sent units found on the received side.
	Preserved []string

	// Lost holds the sent units missing from the received side.
	Lost []string

	// Ratio is |preserved| / |sent units|, 1.0 when nothing was sent.
	Ratio float64
}

// CheckPreservation partitions the sent units into preserved and lost by
// exact normalized match against the received units. Both inputs are
// deduplicated after normalization; the ratio is computed over the
// deduplicated sent set and is vacuously 1.0 when it is empty.
func CheckPreservation(sentUnits, receivedUnits []string) Preservation {
	received := make(map[string]struct{}, len(receivedUnits))
	for _, u := range receivedUnits {
		received[Normalize(u)] = struct{}{}
	}

	seen := make(map[string]struct{}, len(sentUnits))
	preserved := []string{}
	lost := []string{}
	for _, u := range sentUnits {
		norm := Normalize(u)
		if norm == "" {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		if _, ok := received[norm]; ok {
			preserved = append(preserved, norm)
		} else {
			lost = append(lost, norm)
		}
	}

	total := len(preserved) + len(lost)
	ratio := 1.0
	if total > 0 {
		ratio = float64(len(preserved)) / float64(total)
	}
	return Preservation{Preserved: preserved, Lost: lost, Ratio: ratio}
}

// flattenLeaves walks a decoded JSON value and emits one "path=value" unit
// per leaf. Object keys are joined with dots; array elements are indexed.
func flattenLeaves(value any, prefix string) []string {
	switch v := value.(type) {
	case map[string]any:
		// Sort keys so unit order is deterministic across runs.
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var units []string
		for _, k := range keys {
			path := k
			if prefix != "" {
				path = prefix + "." + k
			}
			units = append(units, flattenLeaves(v[k], path)...)
		}
		return units
	case []any:
		var units []string
		for i, elem := range v {
			if i >= maxListBreadth {
				break
			}
			units = append(units, flattenLeaves(elem, fmt.Sprintf("%s[%d]", prefix, i))...)
		}
		return units
	case nil:
		return nil
	default:
		return []string{fmt.Sprintf("%s=%v", prefix, v)}
	}
}

// freeformUnits extracts pattern-based units from prose: dates first so
// they are not shadowed by their number parts, then numbers and
// capitalized phrases.
func freeformUnits(text string) []string {
	var units []string
	units = append(units, isoRe.FindAllString(text, -1)...)
	units = append(units, numberRe.FindAllString(text, -1)...)
	units = append(units, properRe.FindAllString(text, -1)...)
	return units
}

// dedupe removes duplicates by normalized form, preserving first-seen order.
func dedupe(units []string) []string {
	seen := make(map[string]struct{}, len(units))
	out := []string{}
	for _, u := range units {
		norm := Normalize(u)
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, u)
	}
	return out
}
