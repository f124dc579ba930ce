// Package jsonrepair normalizes raw model output into parseable JSON.
//
// Model responses routinely arrive wrapped in markdown fences, with trailing
// commas, stray control characters, or surrounding prose. Each cleaning step
// is idempotent: applying the pipeline twice to already-clean JSON yields the
// same string.
package jsonrepair

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// Clean runs the full repair pipeline over raw model output.
func Clean(raw string) string {
	s := stripFences(raw)
	s = strings.TrimSpace(s)
	s = trailingComma.ReplaceAllString(s, "$1")
	s = stripControlChars(s)
	s = escapeStrayBackslashes(s)
	if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
		if span, ok := balancedSpan(s); ok {
			s = span
		}
	}
	return s
}

// Unmarshal cleans raw and decodes the result into v.
func Unmarshal(raw string, v any) error {
	cleaned := Clean(raw)
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("decode model response: %w", err)
	}
	return nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	t = t[3:]
	// Drop the language tag line ("json", "JSON", ...).
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		first := strings.TrimSpace(t[:nl])
		if first == "" || isLanguageTag(first) {
			t = t[nl+1:]
		}
	}
	t = strings.TrimSpace(t)
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

func isLanguageTag(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return len(s) <= 10
}

// stripControlChars removes characters below 0x20 other than tab, newline,
// and carriage return. Anything printable, including non-ASCII text, stays.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\t' && r != '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// escapeStrayBackslashes doubles backslashes that do not start a valid JSON
// escape sequence.
func escapeStrayBackslashes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 < len(s) {
			switch s[i+1] {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				b.WriteByte(c)
				b.WriteByte(s[i+1])
				i++
				continue
			}
		}
		b.WriteString(`\\`)
	}
	return b.String()
}

// balancedSpan finds the first balanced {...} or [...] span in s, tracking
// string literals so braces inside quoted text do not confuse the count.
func balancedSpan(s string) (string, bool) {
	start := -1
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
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
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
