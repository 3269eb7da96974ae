// Package ner extracts named entities from free text using a two-level
// cascade: a cheap rule-based tagger first, a structured LM call when the
// rule layer is not confident the text has been fully covered.
package ner

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/tidwall/gjson"

	"github.com/knowlode/knowlode/internal/cascade"
	"github.com/knowlode/knowlode/internal/nlp/structured"
	"github.com/knowlode/knowlode/pkg/llm"
)

// Entity is a single named entity found in text. Type is a free-form label;
// callers that persist entities into the graph store should map Type onto
// the closed label enumeration there.
type Entity struct {
	Text string
	Type string
}

// Detector extracts entities from text.
type Detector interface {
	Extract(ctx context.Context, text string) ([]Entity, error)
}

// CascadeDetector implements Detector as a rule-then-LM cascade.
type CascadeDetector struct {
	engine *cascade.Engine
	llm    llm.Provider
}

// New constructs a CascadeDetector. provider may be nil, in which case the
// detector never escalates past the rule level.
func New(provider llm.Provider, opts ...cascade.Option) *CascadeDetector {
	d := &CascadeDetector{llm: provider}

	rule := &ruleLevel{}
	levels := []cascade.Level{rule}
	if provider != nil {
		levels = append(levels, &lmLevel{provider: provider})
	}
	d.engine = cascade.New(levels, opts...)
	return d
}

// Extract runs the cascade and returns the deduplicated entity set.
func (d *CascadeDetector) Extract(ctx context.Context, text string) ([]Entity, error) {
	result, err := d.engine.Infer(ctx, text, nil)
	if err != nil {
		return nil, fmt.Errorf("ner: %w", err)
	}
	entities, _ := result.Value.([]Entity)
	return entities, nil
}

// dedupKey produces the (lowercase text, type) key entities are merged on.
func dedupKey(e Entity) string {
	return strings.ToLower(e.Text) + "\x00" + e.Type
}

func dedupe(entities []Entity) []Entity {
	seen := make(map[string]struct{}, len(entities))
	out := make([]Entity, 0, len(entities))
	for _, e := range entities {
		key := dedupKey(e)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}

// ruleLevel is a lightweight capitalization/pattern tagger standing in for a
// tokenizer+POS tagger: it has no external dependency and runs in
// microseconds, exactly the role the rule layer plays in the cascade.
type ruleLevel struct{}

func (r *ruleLevel) Tag() string { return "rule" }

var (
	properNounRun = regexp.MustCompile(`\b([A-Z][a-zA-Z'-]*(?:\s+[A-Z][a-zA-Z'-]*)*)\b`)
	dateLike      = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
)

func (r *ruleLevel) Infer(ctx context.Context, input string, levelContext map[string]any) (cascade.Result, error) {
	entities := ruleExtract(input)

	confidence := 0.3
	switch {
	case len(entities) >= 3:
		confidence = 0.9
	case len(entities) == 2:
		confidence = 0.75
	case len(entities) == 1:
		confidence = 0.6
	}

	return cascade.Result{
		Value:      entities,
		Confidence: confidence,
		Metadata:   map[string]any{"method": "rule", "count": len(entities)},
	}, nil
}

// ruleExtract finds capitalized-word runs (candidate proper nouns) and
// ISO-8601 dates. It is intentionally simple; it exists to resolve the easy
// majority of spans cheaply, leaving the rest to the LM level.
func ruleExtract(text string) []Entity {
	var entities []Entity

	for _, m := range properNounRun.FindAllString(text, -1) {
		if isSentenceStart(text, m) {
			continue
		}
		entities = append(entities, Entity{Text: m, Type: "person_or_place"})
	}
	for _, m := range dateLike.FindAllString(text, -1) {
		entities = append(entities, Entity{Text: m, Type: "date"})
	}
	return dedupe(entities)
}

// isSentenceStart reports whether match m occurs at the very beginning of
// text (common false-positive source: the first word of a sentence is
// capitalized regardless of whether it's a proper noun).
func isSentenceStart(text, m string) bool {
	trimmed := strings.TrimLeftFunc(text, unicode.IsSpace)
	return strings.HasPrefix(trimmed, m)
}

// lmLevel asks the model for a structured entity list and merges it with a
// fresh rule pass, matching the spec's "outputs merged by the same dedup"
// behavior for the escalated case.
type lmLevel struct {
	provider llm.Provider
}

func (l *lmLevel) Tag() string { return "lm" }

const nerPrompt = `Extract named entities from the user's text. Respond with a JSON array of objects, each with "text" and "type" fields (type is a short lowercase label such as person, location, organization, date, topic). Respond with JSON only, no prose.

Text: %s`

func (l *lmLevel) Infer(ctx context.Context, input string, levelContext map[string]any) (cascade.Result, error) {
	resp, err := l.provider.Generate(ctx, []llm.Message{
		{Role: "user", Content: fmt.Sprintf(nerPrompt, input)},
	}, llm.Options{Temperature: 0.1, MaxTokens: 300})
	if err != nil {
		return cascade.Result{}, fmt.Errorf("lm entity extraction: %w", err)
	}

	lmEntities, err := parseEntityArray(resp.Content)
	if err != nil {
		return cascade.Result{}, fmt.Errorf("parse lm entities: %w", err)
	}

	merged := dedupe(append(ruleExtract(input), lmEntities...))
	return cascade.Result{
		Value:      merged,
		Confidence: 0.9,
		Metadata:   map[string]any{"method": "lm", "lm_count": len(lmEntities)},
	}, nil
}

var entityArraySchema = &jsonschema.Schema{
	Type: "array",
	Items: &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"text": {Type: "string"},
			"type": {Type: "string"},
		},
		Required: []string{"text", "type"},
	},
}

// parseEntityArray validates the reply against entityArraySchema, then always
// extracts fields leniently via gjson regardless of the validation outcome:
// a validation failure is logged, not fatal, since the LM transport's
// structured-output contract tolerates markdown fences and shape drift.
func parseEntityArray(raw string) ([]Entity, error) {
	clean := structured.StripCodeFence(raw)

	if err := structured.ValidateAgainstSchema(clean, entityArraySchema); err != nil {
		slog.Debug("ner: lm reply failed schema validation, using lenient parse", "error", err)
	}

	result := gjson.Parse(clean)
	if !result.IsArray() {
		return nil, fmt.Errorf("expected a JSON array, got: %s", structured.Truncate(clean, 120))
	}

	var entities []Entity
	for _, item := range result.Array() {
		text := item.Get("text").String()
		typ := item.Get("type").String()
		if text == "" {
			continue
		}
		entities = append(entities, Entity{Text: text, Type: strings.ToLower(typ)})
	}
	return entities, nil
}
