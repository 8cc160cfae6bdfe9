package helpers

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ExtractJSON recovers the first JSON value embedded in free text, typically an
// LLM response wrapped in prose or code fences. The scan starts at the earliest
// '{' or '[' and tracks nesting of that bracket type only, skipping anything
// inside string literals. A top-level array is returned as a map keyed by its
// stringified indices. The result is nil when no complete value can be parsed.
func ExtractJSON(text string) any {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return nil
	}
	open := text[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}

	end := -1
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				end = i
			}
		}
		if end >= 0 {
			break
		}
	}
	if end < 0 {
		return nil
	}

	var v any
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return nil
	}
	if arr, ok := v.([]any); ok {
		return indexKeyed(arr)
	}
	return v
}

// ExtractJSONObject is ExtractJSON narrowed to the keyed-map shape callers
// usually want.
func ExtractJSONObject(text string) (map[string]any, bool) {
	m, ok := ExtractJSON(text).(map[string]any)
	return m, ok
}

// ExtractJSONString returns the extracted value re-encoded as compact JSON, or
// an empty string when nothing could be extracted.
func ExtractJSONString(text string) string {
	v := ExtractJSON(text)
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func indexKeyed(arr []any) map[string]any {
	out := make(map[string]any, len(arr))
	for i, item := range arr {
		out[strconv.Itoa(i)] = item
	}
	return out
}
