// Package toolargs decodes the JSON arguments models attach to tool calls.
//
// Most backends send a bare JSON object, but some models wrap the object in
// a markdown fence or surround it with prose. Decode accepts all of these.
package toolargs

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// Decode extracts the argument object from raw and unmarshals it into T.
// Blank input decodes as an empty object.
func Decode[T any](raw string) (T, error) {
	var result T
	object, err := Extract(raw)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(object), &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal arguments: %w", err)
	}
	return result, nil
}

// Extract returns the JSON object held in raw.
//
// Limitations:
// - Only objects are recognized, not arrays
// - Embedded objects are found by first '{' and last '}'
func Extract(raw string) (string, error) {
	trimmed := stripFence(raw)
	if trimmed == "" {
		return "{}", nil
	}
	if gjson.Valid(trimmed) && gjson.Parse(trimmed).IsObject() {
		return trimmed, nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start != -1 && end > start {
		candidate := trimmed[start : end+1]
		if gjson.Valid(candidate) {
			return candidate, nil
		}
	}

	preview := raw
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("no JSON object in arguments: %q", preview)
}

// stripFence removes a surrounding ```json or ``` block.
func stripFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(trimmed, "```json"); ok {
		trimmed = strings.TrimSpace(rest)
	} else if rest, ok := strings.CutPrefix(trimmed, "```"); ok {
		trimmed = strings.TrimSpace(rest)
	}
	if rest, ok := strings.CutSuffix(trimmed, "```"); ok {
		trimmed = strings.TrimSpace(rest)
	}
	return trimmed
}
