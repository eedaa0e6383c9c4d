// Package facts distills durable facts from finished conversations and
// stores them in the background.
package facts

import (
	"strings"

	"github.com/raphaelgruber/wspiernik/internal/models"
	"github.com/tidwall/gjson"
)

// Parse extracts fact candidates from raw generator output. The output may
// wrap JSON in prose or code fences, so every balanced JSON array or object
// is tried on its own. Invalid candidates and elements are skipped.
func Parse(raw string) []models.ExtractedFact {
	var out []models.ExtractedFact
	for _, candidate := range jsonCandidates(raw) {
		res := gjson.Parse(candidate)
		if res.IsObject() {
			if wrapped := res.Get("facts"); wrapped.IsArray() {
				res = wrapped
			}
		}
		if res.IsArray() {
			res.ForEach(func(_, el gjson.Result) bool {
				if f, ok := decodeFact(el); ok {
					out = append(out, f)
				}
				return true
			})
			continue
		}
		if f, ok := decodeFact(res); ok {
			out = append(out, f)
		}
	}
	return out
}

// Scan limits for jsonCandidates. Generator output is short, so anything
// past these bounds is noise and is ignored rather than scanned.
const (
	maxScanInput = 64 << 10
	maxScanWork  = 1 << 20
)

// jsonCandidates returns the outermost balanced, valid JSON arrays and
// objects found in s, in order. A span that does not parse is skipped one
// byte at a time so valid values nested inside it are still found. At most
// maxScanInput bytes of s are considered and bracket matching stops once
// maxScanWork bytes have been scanned in total.
func jsonCandidates(s string) []string {
	if len(s) > maxScanInput {
		s = s[:maxScanInput]
	}
	var out []string
	budget := maxScanWork
	for i := 0; i < len(s) && budget > 0; i++ {
		if s[i] != '[' && s[i] != '{' {
			continue
		}
		end, scanned := matchBracket(s, i, budget)
		budget -= scanned
		if end < 0 {
			continue
		}
		if span := s[i : end+1]; gjson.Valid(span) {
			out = append(out, span)
			i = end
		}
	}
	return out
}

// matchBracket returns the index of the bracket closing s[start], honoring
// JSON string literals, or -1. It looks at no more than limit bytes and
// also reports how many it did look at.
func matchBracket(s string, start, limit int) (int, int) {
	var stack []byte
	inString, escaped := false, false
	stop := len(s)
	if start+limit < stop {
		stop = start + limit
	}
	for i := start; i < stop; i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			stack = append(stack, ']')
		case '{':
			stack = append(stack, '}')
		case ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1, i - start + 1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, i - start + 1
			}
		}
	}
	return -1, stop - start
}

func decodeFact(r gjson.Result) (models.ExtractedFact, bool) {
	if !r.IsObject() {
		return models.ExtractedFact{}, false
	}
	f := models.ExtractedFact{
		Tags:     decodeTags(r.Get("tags")),
		Value:    strings.TrimSpace(r.Get("value").String()),
		Severity: decodeSeverity(r.Get("severity")),
	}
	return f, f.Valid()
}

// decodeTags accepts a JSON list as well as the strings "[a, b]" and "a, b".
func decodeTags(r gjson.Result) []string {
	var raw []string
	switch {
	case r.IsArray():
		for _, el := range r.Array() {
			raw = append(raw, el.String())
		}
	case r.Type == gjson.String:
		s := strings.TrimSpace(r.String())
		s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
		raw = strings.Split(s, ",")
	}

	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.Trim(strings.TrimSpace(t), `"'`)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// decodeSeverity returns an integer in 1..10, or nil.
func decodeSeverity(r gjson.Result) *int {
	if r.Type != gjson.Number {
		return nil
	}
	v := int(r.Int())
	if float64(v) != r.Float() || v < 1 || v > 10 {
		return nil
	}
	return &v
}

// ParseSupportSummary reads {"stress_level": n, "needs": [...]} from raw
// generator output. Missing or invalid fields are left unset.
func ParseSupportSummary(raw string) (stress *int, needs []string) {
	for _, candidate := range jsonCandidates(raw) {
		res := gjson.Parse(candidate)
		if !res.IsObject() {
			continue
		}
		level, list := res.Get("stress_level"), res.Get("needs")
		if !level.Exists() && !list.Exists() {
			continue
		}
		stress = decodeSeverity(level)
		if list.IsArray() || list.Type == gjson.String {
			needs = decodeTags(list)
		}
		return stress, needs
	}
	return nil, nil
}
