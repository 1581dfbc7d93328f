package core

import (
	"errors"
	"strings"
)

// ExtractJSONArray finds and returns the first JSON array in s. Model
// responses often wrap the payload in prose or Markdown code fences, so the
// raw text is unwrapped first, then scanned for a balanced [...] segment
// while ignoring brackets inside strings.
func ExtractJSONArray(s string) (string, error) {
	s = strings.TrimSpace(strings.TrimPrefix(s, "\uFEFF"))

	if inner, ok := stripFirstCodeFence(s); ok {
		s = strings.TrimSpace(inner)
	}

	for i := 0; i < len(s); i++ {
		if s[i] == '[' {
			if out, ok := extractBalancedArrayFrom(s, i); ok {
				return out, nil
			}
		}
	}
	return "", errors.New("no balanced JSON array found")
}

// stripFirstCodeFence removes the first fenced code block if s starts with
// ``` or ~~~, tolerating an optional language tag (e.g. ```json).
func stripFirstCodeFence(s string) (inner string, ok bool) {
	trim := strings.TrimLeft(s, "\n\r\t ")
	fence := ""
	switch {
	case strings.HasPrefix(trim, "```"):
		fence = "```"
	case strings.HasPrefix(trim, "~~~"):
		fence = "~~~"
	default:
		return "", false
	}
	rest := trim[len(fence):]
	idx := strings.IndexByte(rest, '\n')
	if idx == -1 {
		return "", false
	}
	rest = rest[idx+1:]
	if end := strings.Index(rest, fence); end != -1 {
		return rest[:end], true
	}
	// Unclosed fence: take the remainder.
	return rest, true
}

// extractBalancedArrayFrom returns the balanced [...] starting at index i.
func extractBalancedArrayFrom(s string, i int) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for j := i; j < len(s); j++ {
		ch := s[j]
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
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[i : j+1], true
			}
		}
	}
	return "", false
}
