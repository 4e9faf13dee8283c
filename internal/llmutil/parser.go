// internal/llmutil/parser.go
package llmutil

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// fencedObjectRegex extracts a JSON object wrapped in a markdown code
	// block, with or without a "json" language tag.
	fencedObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*?})\\s*\x60\x60\x60")

	// balancedObjectRegex finds the first {...} span in free text, tolerating
	// one level of nested braces.
	balancedObjectRegex = regexp.MustCompile(`\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)
)

// ExtractJSONObject pulls a raw JSON object out of a model reply. Attempts,
// in order: (1) the first fenced code block; (2) the trimmed reply itself;
// (3) a balanced-brace scan of the surrounding text. Returns "" when no
// parseable object is found. The extraction is total: no input raises.
func ExtractJSONObject(response string) string {
	response = strings.TrimSpace(response)
	if response == "" {
		return ""
	}

	// 1. Markdown fence (most common case).
	if matches := fencedObjectRegex.FindStringSubmatch(response); len(matches) > 1 {
		if json.Valid([]byte(matches[1])) {
			return matches[1]
		}
	}

	// 2. Bare object.
	if json.Valid([]byte(response)) && strings.HasPrefix(response, "{") {
		return response
	}

	// 3. Object embedded in conversational text.
	if match := balancedObjectRegex.FindString(response); match != "" {
		if json.Valid([]byte(match)) {
			return match
		}
	}

	return ""
}

// ParseJSONResponse parses a model reply into a target Go type using the
// three-stage extraction. Returns an error when no stage yields a JSON
// object, or when the object does not unmarshal into T.
func ParseJSONResponse[T any](response string) (*T, error) {
	raw := ExtractJSONObject(response)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object found in response (truncated): %s", truncateString(response, 300))
	}

	var result T
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON response: %w. Extracted JSON (truncated): %s", err, truncateString(raw, 500))
	}
	return &result, nil
}

// CleanCodeOutput removes a surrounding markdown fence (```x ... ```) from a
// reply that should be a bare script.
func CleanCodeOutput(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = regexp.MustCompile("^\x60\x60\x60[a-zA-Z]*\\n?").ReplaceAllString(content, "")
	content = regexp.MustCompile("\\n?\x60\x60\x60\\s*$").ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}

// truncateString truncates a string to a maximum length for error messages.
func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}
