// Package jsonfix recovers JSON objects from malformed LLM output.
// Models wrap JSON in code fences, prepend prose, or truncate mid-value;
// the routines here try progressively more aggressive repairs and never
// panic on arbitrary input.
package jsonfix

import (
	"encoding/json"
	"strings"
)

// Unmarshal parses raw into v, applying the recovery chain when the input is
// not valid JSON:
//
//  1. parse as-is
//  2. strip code-fence wrappers and parse
//  3. truncate to the longest balanced-brace prefix and parse
//  4. take the substring between the first '{' and the last '}' and parse
//
// It returns the last parse error when every attempt fails.
func Unmarshal(raw string, v any) error {
	candidate := strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(candidate), v); err == nil {
		return nil
	}

	candidate = StripCodeFences(candidate)
	err := json.Unmarshal([]byte(candidate), v)
	if err == nil {
		return nil
	}

	if prefix, ok := BalancedPrefix(candidate); ok {
		if perr := json.Unmarshal([]byte(prefix), v); perr == nil {
			return nil
		}
	}

	if inner, ok := BracesSubstring(candidate); ok {
		if serr := json.Unmarshal([]byte(inner), v); serr == nil {
			return nil
		}
	}

	return err
}

// StripCodeFences removes a leading ```json (or bare ```) fence and the
// matching trailing fence. Input without fences is returned unchanged apart
// from whitespace trimming.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// The fence may carry a language tag on the same line.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// BalancedPrefix scans the input character by character, tracking brace depth
// and string-escape state, and returns the prefix ending at the last position
// where brace depth returned to zero. This recovers an object from output
// truncated inside a trailing string value. The second return is false when
// no balanced prefix exists.
func BalancedPrefix(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	end := -1

	for i := start; i < len(s); i++ {
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i
			}
		}
	}

	if end < 0 {
		return "", false
	}
	return s[start : end+1], true
}

// BracesSubstring returns the substring between the first '{' and the last
// '}' inclusive, or false when the input contains no such pair.
func BracesSubstring(s string) (string, bool) {
	first := strings.IndexByte(s, '{')
	last := strings.LastIndexByte(s, '}')
	if first < 0 || last <= first {
		return "", false
	}
	return s[first : last+1], true
}
