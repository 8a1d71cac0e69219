package scorer

import (
	"encoding/json"
	"regexp"
	"strings"
)

// arrayLine matches the span of a line that looks like a JSON array.
var arrayLine = regexp.MustCompile(`\[.*\]`)

// ExtractJSONArray finds the last line of raw output that contains a JSON
// array and decodes it as a list of ids. Earlier lines are diagnostic noise.
// The matched span runs from the first '[' to the last ']' on that line.
func ExtractJSONArray(raw string) ([]int64, error) {
	ids, _, err := extract(raw)
	return ids, err
}

// extract is ExtractJSONArray that also returns the lines it skipped.
func extract(raw string) ([]int64, []string, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	for i := len(lines) - 1; i >= 0; i-- {
		match := arrayLine.FindString(lines[i])
		if match == "" {
			continue
		}

		var ids []int64
		if err := json.Unmarshal([]byte(match), &ids); err != nil {
			return nil, nonEmpty(lines[:i]), &Error{
				Kind:   KindMalformedOutput,
				Detail: "parse " + quoteTrunc(match) + ": " + err.Error(),
				Err:    err,
			}
		}
		if ids == nil {
			ids = []int64{}
		}
		return ids, nonEmpty(append(lines[:i:i], lines[i+1:]...)), nil
	}

	return nil, nonEmpty(lines), &Error{
		Kind:   KindMalformedOutput,
		Detail: "no JSON array line in scorer output",
	}
}

func nonEmpty(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

func quoteTrunc(s string) string {
	const max = 200
	if len(s) > max {
		s = s[:max] + "..."
	}
	return `"` + s + `"`
}
