package jsonx

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

/*
Package jsonx extracts machine-readable JSON out of model output.

Rules:
- Providers may wrap the answer in prose or ```json fences; Extract returns
  the first balanced top-level JSON object or array found in the text.
- Strict parse first; on failure, a single lenient pass strips trailing
  commas and retries. Nothing beyond trailing commas is repaired.
- String literals are respected while scanning for balance; braces inside
  quoted strings do not count.
*/

var ErrNoJSON = errors.New("jsonx: no JSON object found")

var reFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// Extract returns the first well-formed JSON object or array embedded in s.
func Extract(s string) (json.RawMessage, error) {
	if m := reFence.FindStringSubmatch(s); m != nil {
		if raw, err := extractBalanced(m[1]); err == nil {
			return raw, nil
		}
	}
	return extractBalanced(s)
}

func extractBalanced(s string) (json.RawMessage, error) {
	start := strings.IndexAny(s, "{[")
	for start >= 0 && start < len(s) {
		if end := balancedEnd(s, start); end > start {
			candidate := s[start : end+1]
			if raw, ok := parseLenient(candidate); ok {
				return raw, nil
			}
		}
		next := strings.IndexAny(s[start+1:], "{[")
		if next < 0 {
			break
		}
		start += 1 + next
	}
	return nil, ErrNoJSON
}

// balancedEnd scans from the opener at i and returns the index of the
// matching closer, or -1 when the text never balances.
func balancedEnd(s string, i int) int {
	depth := 0
	inStr := false
	escaped := false
	for j := i; j < len(s); j++ {
		c := s[j]
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

func parseLenient(s string) (json.RawMessage, bool) {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s), true
	}
	repaired := stripTrailingCommas(s)
	if json.Valid([]byte(repaired)) {
		return json.RawMessage(repaired), true
	}
	return nil, false
}

// stripTrailingCommas removes commas that directly precede a closing
// bracket, skipping over string literals.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inStr := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		if c == '"' {
			inStr = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue // drop the comma
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
