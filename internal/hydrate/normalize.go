package hydrate

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

const (
	unknown      = "Unknown"
	defaultPrice = "$"
	maxPriceTier = 5
)

// NormalizeList flattens a list-like field into trimmed, de-duplicated
// strings. It accepts a JSON array (possibly nested), a JSON-encoded array
// inside a string, or a comma-separated string. Malformed JSON falls back
// to comma splitting.
func NormalizeList(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return []string{}
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return dedupe(splitString(string(raw)))
	}
	return dedupe(flatten(v))
}

func flatten(v any) []string {
	switch t := v.(type) {
	case string:
		return splitString(t)
	case []any:
		var out []string
		for _, e := range t {
			out = append(out, flatten(e)...)
		}
		return out
	case float64:
		return []string{strconv.FormatFloat(t, 'f', -1, 64)}
	case bool:
		return []string{strconv.FormatBool(t)}
	default:
		return nil
	}
}

// splitString handles a string that is either JSON or comma-separated.
func splitString(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, `"`) {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return flatten(v)
		}
		s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	}

	var out []string
	for _, part := range strings.Split(s, ",") {
		out = append(out, strings.Trim(strings.TrimSpace(part), `"'`))
	}
	return out
}

// dedupe trims entries, drops empties and removes case-folded repeats
// ("Café" and "CAFÉ"), keeping the first spelling. The result is never nil.
func dedupe(in []string) []string {
	fold := cases.Fold()
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := fold.String(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

// PriceLevel renders a price field as a "$" tier. Numeric tiers (2 or "2")
// become "$$"; dollar strings pass through; other text is kept as written.
// Missing values default to "$".
func PriceLevel(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return defaultPrice
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return priceFromString(string(raw))
	}
	switch t := v.(type) {
	case float64:
		return tier(t)
	case string:
		return priceFromString(t)
	default:
		return defaultPrice
	}
}

func priceFromString(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultPrice
	}
	if strings.Trim(s, "$") == "" {
		return s
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return tier(n)
	}
	return s
}

func tier(n float64) string {
	k := int(n + 0.5)
	k = max(1, min(maxPriceTier, k))
	return strings.Repeat("$", k)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
