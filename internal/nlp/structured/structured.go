// Package structured provides shared helpers for parsing structured-output
// replies from an LM transport: schema validation first, then a lenient
// field-by-field fallback for replies that don't parse strictly (markdown
// fences, trailing prose, minor shape drift) but are otherwise usable.
package structured

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// StripCodeFence removes a leading/trailing markdown code fence (```json ... ```
// or ``` ... ```) from an LM reply, a common wrapping models add even when
// told to respond with JSON only.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ValidateAgainstSchema decodes raw as JSON and validates it against schema.
// A returned error is diagnostic, not fatal: callers should log it and fall
// back to a lenient gjson-based extraction rather than aborting, since the LM
// transport's structured-output contract is permissive by design.
func ValidateAgainstSchema(raw string, schema *jsonschema.Schema) error {
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("resolve schema: %w", err)
	}

	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return resolved.Validate(data)
}

// Truncate shortens s to at most n bytes for inclusion in error messages.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
