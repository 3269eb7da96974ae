// Package intent classifies a user query into a closed intent enumeration
// via a two-level cascade: per-intent keyword/regex matching first, a
// structured LM call when nothing matches. On top of the chosen intent it
// fills intent-specific slots.
package intent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/tidwall/gjson"

	"github.com/knowlode/knowlode/internal/cascade"
	"github.com/knowlode/knowlode/internal/nlp/ner"
	"github.com/knowlode/knowlode/internal/nlp/structured"
	"github.com/knowlode/knowlode/pkg/llm"
)

// Intent is the closed intent enumeration.
type Intent string

const (
	Search   Intent = "search"
	Chat     Intent = "chat"
	Memorize Intent = "memorize"
	Recall   Intent = "recall"
	Analyze  Intent = "analyze"
	Unknown  Intent = "unknown"
)

func parseIntent(s string) Intent {
	switch Intent(s) {
	case Search, Chat, Memorize, Recall, Analyze:
		return Intent(s)
	default:
		return Unknown
	}
}

// Result is the outcome of intent recognition: the chosen intent, the
// cascade's confidence, any entities the caller's NER detector found, and
// intent-specific slots filled from the raw text.
type Result struct {
	Intent     Intent
	Confidence float64
	Entities   map[string][]string
	Slots      map[string]string
}

// Recognizer classifies text into an Intent and fills slots.
type Recognizer struct {
	engine *cascade.Engine
	ner    ner.Detector
}

// New constructs a Recognizer. provider may be nil, in which case the
// recognizer never escalates past the rule level. nerDetector may be nil, in
// which case Result.Entities is always empty.
func New(provider llm.Provider, nerDetector ner.Detector, opts ...cascade.Option) *Recognizer {
	levels := []cascade.Level{&ruleLevel{}}
	if provider != nil {
		levels = append(levels, &lmLevel{provider: provider})
	}
	return &Recognizer{engine: cascade.New(levels, opts...), ner: nerDetector}
}

// Recognize classifies text and fills slots.
func (r *Recognizer) Recognize(ctx context.Context, text string, levelContext map[string]any) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{Intent: Unknown, Entities: map[string][]string{}, Slots: map[string]string{}}, nil
	}

	infResult, err := r.engine.Infer(ctx, text, levelContext)
	if err != nil {
		return Result{}, fmt.Errorf("intent: %w", err)
	}
	recognizedIntent, _ := infResult.Value.(Intent)

	entities := map[string][]string{}
	if r.ner != nil {
		found, err := r.ner.Extract(ctx, text)
		if err != nil {
			slog.Debug("intent: entity extraction failed, continuing without entities", "error", err)
		}
		for _, e := range found {
			key := strings.ToLower(e.Type)
			entities[key] = append(entities[key], e.Text)
		}
	}

	return Result{
		Intent:     recognizedIntent,
		Confidence: infResult.Confidence,
		Entities:   entities,
		Slots:      extractSlots(text, recognizedIntent, entities),
	}, nil
}

var timePatterns = []struct {
	key     string
	pattern *regexp.Regexp
}{
	{"today", regexp.MustCompile(`(?i)today`)},
	{"yesterday", regexp.MustCompile(`(?i)yesterday`)},
	{"last_week", regexp.MustCompile(`(?i)last week`)},
	{"last_month", regexp.MustCompile(`(?i)last month`)},
}

func extractSlots(text string, recognizedIntent Intent, entities map[string][]string) map[string]string {
	slots := map[string]string{}

	switch recognizedIntent {
	case Search:
		slots["query"] = text
		if topics, ok := entities["topic"]; ok && len(topics) > 0 {
			slots["topic"] = topics[0]
		}
	case Recall:
		for _, tp := range timePatterns {
			if tp.pattern.MatchString(text) {
				slots["time_range"] = tp.key
				break
			}
		}
	case Memorize:
		slots["content"] = text
	case Analyze:
		lower := strings.ToLower(text)
		switch {
		case strings.Contains(lower, "summary") || strings.Contains(lower, "summarize"):
			slots["analyze_type"] = "summary"
		case strings.Contains(lower, "statistics") || strings.Contains(lower, "stats"):
			slots["analyze_type"] = "statistics"
		}
	}
	return slots
}

// intentKeywords is the rule layer's per-intent keyword dictionary. First
// intent whose keyword list matches (substring, case-insensitive) wins.
var intentKeywords = []struct {
	intent   Intent
	keywords []string
}{
	{Search, []string{"search", "find", "query", "lookup", "what is", "where is"}},
	{Memorize, []string{"remember this", "save this", "store this", "note this down", "memorize"}},
	{Recall, []string{"recall", "do you remember", "what happened", "previously", "before"}},
	{Analyze, []string{"analyze", "summary", "summarize", "report", "statistics"}},
}

type ruleLevel struct{}

func (r *ruleLevel) Tag() string { return "rule" }

func (r *ruleLevel) Infer(ctx context.Context, input string, levelContext map[string]any) (cascade.Result, error) {
	lower := strings.ToLower(input)

	for _, entry := range intentKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return cascade.Result{
					Value:      entry.intent,
					Confidence: 0.7,
					Metadata:   map[string]any{"method": "rule", "keyword": kw},
				}, nil
			}
		}
	}

	return cascade.Result{
		Value:      Unknown,
		Confidence: 0.0,
		Metadata:   map[string]any{"method": "rule"},
	}, nil
}

type lmLevel struct {
	provider llm.Provider
}

func (l *lmLevel) Tag() string { return "lm" }

const intentPrompt = `Classify the user's intent into exactly one of: search, chat, memorize, recall, analyze, unknown.

- search: searching for or looking up knowledge/information
- chat: small talk, greetings, casual conversation
- memorize: storing or recording information
- recall: recalling or reviewing past information
- analyze: analysis, summarization, statistics
- unknown: cannot be determined

User input: %s

Respond with JSON only: {"intent": "<type>", "confidence": <0-1>, "reason": "<short reason>"}`

var intentReplySchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"intent":     {Type: "string"},
		"confidence": {Type: "number"},
		"reason":     {Type: "string"},
	},
	Required: []string{"intent"},
}

func (l *lmLevel) Infer(ctx context.Context, input string, levelContext map[string]any) (cascade.Result, error) {
	resp, err := l.provider.Generate(ctx, []llm.Message{
		{Role: "user", Content: fmt.Sprintf(intentPrompt, input)},
	}, llm.Options{Temperature: 0.1, MaxTokens: 100})
	if err != nil {
		return cascade.Result{}, fmt.Errorf("lm intent recognition: %w", err)
	}

	clean := structured.StripCodeFence(resp.Content)
	if err := structured.ValidateAgainstSchema(clean, intentReplySchema); err != nil {
		slog.Debug("intent: lm reply failed schema validation, using lenient parse", "error", err)
	}

	parsed := gjson.Parse(clean)
	if !parsed.Exists() || !parsed.IsObject() {
		return cascade.Result{}, fmt.Errorf("intent: lm reply is not a JSON object: %s", structured.Truncate(clean, 120))
	}

	recognizedIntent := parseIntent(parsed.Get("intent").String())
	confidence := parsed.Get("confidence").Num
	if !parsed.Get("confidence").Exists() {
		confidence = 0.5
	}
	confidence = clamp01(confidence)

	return cascade.Result{
		Value:      recognizedIntent,
		Confidence: confidence,
		Metadata: map[string]any{
			"method": "lm",
			"reason": parsed.Get("reason").String(),
		},
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
