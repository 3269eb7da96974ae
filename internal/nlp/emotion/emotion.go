// Package emotion classifies the emotional tone of a text via a two-level
// cascade: a keyword-lexicon rule layer first, a structured LM call when the
// rule layer's confidence is too low.
package emotion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/tidwall/gjson"

	"github.com/knowlode/knowlode/internal/cascade"
	"github.com/knowlode/knowlode/internal/nlp/structured"
	"github.com/knowlode/knowlode/pkg/llm"
)

// Result is a normalized emotion classification.
type Result struct {
	// Type is a free-form emotion label (e.g. "positive", "negative",
	// "neutral", or a finer-grained label such as "frustrated" from the LM level).
	Type string

	// Intensity is in [0,1].
	Intensity float64

	// Confidence is the cascade's confidence in Type/Intensity, in [0,1].
	Confidence float64
}

// Detector classifies the emotion of a text.
type Detector interface {
	Detect(ctx context.Context, text string) (Result, error)
}

// CascadeDetector implements Detector as a rule-then-LM cascade.
type CascadeDetector struct {
	engine *cascade.Engine
}

// New constructs a CascadeDetector using the default lexicon. provider may be
// nil, in which case the detector never escalates past the rule level.
func New(provider llm.Provider, opts ...cascade.Option) *CascadeDetector {
	levels := []cascade.Level{&ruleLevel{positive: defaultPositiveWords, negative: defaultNegativeWords}}
	if provider != nil {
		levels = append(levels, &lmLevel{provider: provider})
	}
	return &CascadeDetector{engine: cascade.New(levels, opts...)}
}

// NewWithLexicon constructs a CascadeDetector using a caller-supplied
// positive/negative word set instead of the default lexicon.
func NewWithLexicon(provider llm.Provider, positive, negative map[string]struct{}, opts ...cascade.Option) *CascadeDetector {
	levels := []cascade.Level{&ruleLevel{positive: positive, negative: negative}}
	if provider != nil {
		levels = append(levels, &lmLevel{provider: provider})
	}
	return &CascadeDetector{engine: cascade.New(levels, opts...)}
}

// Detect runs the cascade and returns the winning emotion Result.
func (d *CascadeDetector) Detect(ctx context.Context, text string) (Result, error) {
	if text == "" {
		return Result{Type: "neutral", Intensity: 0.5, Confidence: 0.5}, nil
	}

	infResult, err := d.engine.Infer(ctx, text, nil)
	if err != nil {
		return Result{}, fmt.Errorf("emotion: %w", err)
	}
	result, _ := infResult.Value.(Result)
	result.Confidence = infResult.Confidence
	return result, nil
}

var defaultPositiveWords = wordSet(
	"happy", "joy", "love", "like", "good", "great", "awesome",
	"excellent", "wonderful", "fantastic", "perfect", "amazing",
	"excited", "glad", "pleased", "delighted", "satisfied",
)

var defaultNegativeWords = wordSet(
	"sad", "unhappy", "bad", "terrible", "awful", "horrible",
	"disappointed", "frustrated", "angry", "hate", "dislike",
	"worried", "anxious", "afraid", "scared", "upset", "depressed",
)

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// ruleLevel counts lexicon matches and derives type/intensity/confidence per
// the schedule in the cascade's NLP detector spec.
type ruleLevel struct {
	positive map[string]struct{}
	negative map[string]struct{}
}

func (r *ruleLevel) Tag() string { return "rule" }

func (r *ruleLevel) Infer(ctx context.Context, input string, levelContext map[string]any) (cascade.Result, error) {
	lower := strings.ToLower(input)

	positiveCount := countMatches(lower, r.positive)
	negativeCount := countMatches(lower, r.negative)
	totalCount := positiveCount + negativeCount

	var emotionType string
	var dominant int
	switch {
	case positiveCount > negativeCount:
		emotionType, dominant = "positive", positiveCount
	case negativeCount > positiveCount:
		emotionType, dominant = "negative", negativeCount
	default:
		emotionType, dominant = "neutral", 0
	}

	intensity := intensityFor(dominant)
	confidence := confidenceFor(totalCount)

	textLen := len(input)
	if textLen < 20 && totalCount > 0 {
		confidence = min1(confidence + 0.1)
	}
	if emotionType == "neutral" && textLen > 50 {
		confidence = 0.5
	}

	return cascade.Result{
		Value:      Result{Type: emotionType, Intensity: intensity},
		Confidence: confidence,
		Metadata: map[string]any{
			"method":         "rule",
			"positive_count": positiveCount,
			"negative_count": negativeCount,
			"text_length":    textLen,
		},
	}, nil
}

func countMatches(lower string, words map[string]struct{}) int {
	count := 0
	for w := range words {
		if strings.Contains(lower, w) {
			count++
		}
	}
	return count
}

func intensityFor(dominant int) float64 {
	switch {
	case dominant == 0:
		return 0.5
	case dominant == 1:
		return 0.6
	case dominant == 2:
		return 0.75
	default:
		return min1(0.6 + float64(dominant)*0.1)
	}
}

func confidenceFor(total int) float64 {
	switch {
	case total == 0:
		return 0.4
	case total == 1:
		return 0.6
	case total == 2:
		return 0.75
	default:
		return min1(0.6 + float64(total)*0.1)
	}
}

func min1(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}

// lmLevel asks the model for a structured emotion classification.
type lmLevel struct {
	provider llm.Provider
}

func (l *lmLevel) Tag() string { return "lm" }

const emotionPrompt = `Analyze the emotional tone of the following text and respond with JSON only, no prose:

{"type": "<positive|negative|neutral|happy|sad|angry|anxious|frustrated|excited|calm>", "intensity": <0.0-1.0>, "reason": "<short reason>"}

Text: %s`

var emotionReplySchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"type":      {Type: "string"},
		"intensity": {Type: "number"},
		"reason":    {Type: "string"},
	},
	Required: []string{"type", "intensity"},
}

func (l *lmLevel) Infer(ctx context.Context, input string, levelContext map[string]any) (cascade.Result, error) {
	resp, err := l.provider.Generate(ctx, []llm.Message{
		{Role: "user", Content: fmt.Sprintf(emotionPrompt, input)},
	}, llm.Options{Temperature: 0.3, MaxTokens: 200})
	if err != nil {
		return cascade.Result{}, fmt.Errorf("lm emotion detection: %w", err)
	}

	clean := structured.StripCodeFence(resp.Content)
	if err := structured.ValidateAgainstSchema(clean, emotionReplySchema); err != nil {
		slog.Debug("emotion: lm reply failed schema validation, using lenient parse", "error", err)
	}

	parsed := gjson.Parse(clean)
	if !parsed.Exists() || !parsed.IsObject() {
		return cascade.Result{}, fmt.Errorf("emotion: lm reply is not a JSON object: %s", structured.Truncate(clean, 120))
	}

	emotionType := parsed.Get("type").String()
	if emotionType == "" {
		emotionType = "neutral"
	}
	intensity := parsed.Get("intensity").Num
	intensity = clamp01(intensity)

	confidence := 0.7
	if intensity > 0.3 {
		confidence = 0.9
	}

	return cascade.Result{
		Value:      Result{Type: emotionType, Intensity: intensity},
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
