// Package jsonutil pulls JSON documents out of model replies, which may wrap
// them in markdown fences or surround them with prose.
package jsonutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when a reply contains no JSON object or array.
var ErrNoJSON = errors.New("no JSON content found")

// previewLen bounds the reply excerpt quoted in parse errors.
const previewLen = 200

// StripMarkdownFences returns the body of a ```-fenced block, or the trimmed
// text when it is not fenced.
func StripMarkdownFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	_, body, found := strings.Cut(text, "\n")
	if !found {
		return text
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// ExtractJSON returns the first balanced JSON object or array in text.
// Brackets inside string literals are ignored.
func ExtractJSON(text string) (string, error) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", ErrNoJSON
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON starting at offset %d", start)
}

// ParseJSON strips fences from raw, extracts the JSON document and decodes
// it into T.
func ParseJSON[T any](raw string) (T, error) {
	var out T
	doc, err := ExtractJSON(StripMarkdownFences(raw))
	if err != nil {
		return out, fmt.Errorf("%w (raw length: %d)", err, len(raw))
	}
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		preview := doc
		if len(preview) > previewLen {
			preview = preview[:previewLen] + "..."
		}
		return out, fmt.Errorf("invalid JSON: %w (text: %s)", err, preview)
	}
	return out, nil
}
