package memstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/tidwall/gjson"

	"github.com/knowlode/knowlode/internal/nlp/structured"
	"github.com/knowlode/knowlode/internal/store/catalog"
	"github.com/knowlode/knowlode/pkg/llm"
)

// casualChatLengthCeiling is the message length below which a casual-chat
// keyword match is trusted without further heuristics.
const casualChatLengthCeiling = 20

// RetentionClassifier decides how long an incoming message's memory should
// live, in order: an explicit hint, keyword rules, a length heuristic, and
// (for long messages with no keyword match) an LM call.
type RetentionClassifier struct {
	llm llm.Provider
}

// NewRetentionClassifier constructs a classifier. provider may be nil, in
// which case long unmatched messages fall back to temporary rather than
// escalating to an LM call.
func NewRetentionClassifier(provider llm.Provider) *RetentionClassifier {
	return &RetentionClassifier{llm: provider}
}

// permanentKeywords mark content worth learning from long-term: notes,
// decisions, plans, reflections.
var permanentKeywords = []string{
	"remember this", "important", "note to self", "summary", "summarize",
	"lesson learned", "decided", "decision", "plan", "project", "meeting notes",
	"reflection", "in hindsight", "design doc", "retrospective",
}

// casualKeywords mark small talk not worth persisting, when the message is
// also short (see casualChatLengthCeiling).
var casualKeywords = []string{
	"hi", "hello", "hey", "bye", "goodbye", "thanks", "thank you", "ok", "okay",
	"got it", "good morning", "good night", "how are you", "test",
}

// temporaryKeywords mark short-lived information: reminders, to-dos.
var temporaryKeywords = []string{
	"today", "tomorrow", "todo", "to-do", "remind me", "reminder",
	"later", "in a bit", "right now",
}

// Classify returns the retention tier for message. hint, if non-empty, is
// returned unchanged (the caller — e.g. a user-supplied retention_type —
// takes precedence over any inference).
func (c *RetentionClassifier) Classify(ctx context.Context, message string, hint catalog.RetentionType) (catalog.RetentionType, error) {
	if hint != "" {
		return hint, nil
	}

	trimmed := strings.TrimSpace(message)
	lower := strings.ToLower(trimmed)

	if containsAny(lower, permanentKeywords) {
		return catalog.RetentionPermanent, nil
	}
	if containsAny(lower, casualKeywords) && len(trimmed) < casualChatLengthCeiling {
		return catalog.RetentionCasualChat, nil
	}
	if containsAny(lower, temporaryKeywords) {
		return catalog.RetentionTemporary, nil
	}

	switch {
	case len(trimmed) < 10:
		return catalog.RetentionCasualChat, nil
	case len(trimmed) < 50:
		return catalog.RetentionTemporary, nil
	}

	if c.llm != nil && c.llm.IsConfigured() {
		if retentionType, err := c.classifyWithLLM(ctx, trimmed); err == nil {
			return retentionType, nil
		} else {
			slog.Debug("memstore: lm retention classification failed, defaulting to temporary", "error", err)
		}
	}
	return catalog.RetentionTemporary, nil
}

// ShouldStore reports whether a message classified as retentionType is
// worth persisting at all — casual_chat items may be discarded before
// ever reaching Store.
func ShouldStore(retentionType catalog.RetentionType) bool {
	return retentionType != catalog.RetentionCasualChat
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

const retentionPrompt = `Classify how long this message's memory should be retained:

- permanent: important content worth long-term learning (notes, decisions, project discussions)
- temporary: short-lived information, safe to clear after a week (reminders, to-dos, fleeting thoughts)
- casual_chat: small talk not worth storing (greetings, acknowledgements, test messages)

Message: %s

Respond with JSON only: {"retention_type": "<permanent|temporary|casual_chat>"}`

var retentionReplySchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"retention_type": {Type: "string"},
	},
	Required: []string{"retention_type"},
}

func (c *RetentionClassifier) classifyWithLLM(ctx context.Context, message string) (catalog.RetentionType, error) {
	resp, err := c.llm.Generate(ctx, []llm.Message{
		{Role: "user", Content: fmt.Sprintf(retentionPrompt, message)},
	}, llm.Options{Temperature: 0.3, MaxTokens: 20})
	if err != nil {
		return "", fmt.Errorf("memstore: lm retention classification: %w", err)
	}

	clean := structured.StripCodeFence(resp.Content)
	if err := structured.ValidateAgainstSchema(clean, retentionReplySchema); err != nil {
		slog.Debug("memstore: lm retention reply failed schema validation, using lenient parse", "error", err)
	}

	parsed := gjson.Parse(clean)
	raw := strings.ToLower(parsed.Get("retention_type").String())
	switch {
	case strings.Contains(raw, "permanent"):
		return catalog.RetentionPermanent, nil
	case strings.Contains(raw, "casual"):
		return catalog.RetentionCasualChat, nil
	case strings.Contains(raw, "temporary"):
		return catalog.RetentionTemporary, nil
	default:
		return "", fmt.Errorf("memstore: lm retention reply unparseable: %s", structured.Truncate(clean, 120))
	}
}
