package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/knowlode/knowlode/internal/nlp/structured"
	"github.com/knowlode/knowlode/pkg/llm"
)

// rerankLengthThreshold is the candidate-set size above which SemanticRerankStage
// attempts an LM permutation rerank (when a provider is configured) rather
// than the heuristic score alone.
const rerankLengthThreshold = 8

// SemanticRerankStage reranks the top-N candidates. With no LM provider (or
// below rerankLengthThreshold) it applies a heuristic combining token
// overlap with the query against a length prior. With a provider and a
// large-enough candidate set, it asks the model for a permutation and falls
// back to the heuristic on any parse failure or incomplete response.
type SemanticRerankStage struct {
	llm llm.Provider
}

// NewSemanticRerankStage constructs a SemanticRerankStage. provider may be
// nil, in which case the stage always uses the heuristic.
func NewSemanticRerankStage(provider llm.Provider) *SemanticRerankStage {
	return &SemanticRerankStage{llm: provider}
}

func (s *SemanticRerankStage) Name() string { return "semantic_rerank" }

func (s *SemanticRerankStage) Run(ctx context.Context, query string, k int, rctx *Context, candidates []Result) ([]Result, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	heuristic := append([]Result(nil), candidates...)
	applyHeuristicRerank(heuristic, query)

	if s.llm != nil && s.llm.IsConfigured() && len(candidates) > rerankLengthThreshold {
		if reranked, ok := s.tryLLMRerank(ctx, query, candidates); ok {
			if len(reranked) > k {
				reranked = reranked[:k]
			}
			return reranked, nil
		}
	}

	if len(heuristic) > k {
		heuristic = heuristic[:k]
	}
	return heuristic, nil
}

// applyHeuristicRerank blends each candidate's existing score with a lexical
// co-signal: token overlap with the query, discounted by a length prior
// (very short or very long content is penalized slightly).
func applyHeuristicRerank(results []Result, query string) {
	queryTokens := tokenSet(query)
	for i := range results {
		overlap := jaccard(queryTokens, tokenSet(results[i].Content))
		lengthPrior := lengthPriorFor(len(results[i].Content))
		results[i].Score = 0.6*results[i].Score + 0.3*overlap + 0.1*lengthPrior
	}
	normalizeScores(results)
	sortByScoreThenID(results)
}

func lengthPriorFor(chars int) float64 {
	switch {
	case chars == 0:
		return 0
	case chars < 40:
		return 0.5
	case chars < 2000:
		return 1.0
	default:
		return 0.7
	}
}

func tokenSet(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[f] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

const rerankPrompt = `Rank the following candidates by relevance to the query, most relevant first. Respond with a JSON array of the candidate indices only, e.g. [2,0,1]. Respond with JSON only, no prose.

Query: %s

Candidates:
%s`

// tryLLMRerank asks the model for a permutation of candidate indices. It
// returns ok=false on any transport, parse, or incompleteness failure so the
// caller falls back to the heuristic.
func (s *SemanticRerankStage) tryLLMRerank(ctx context.Context, query string, candidates []Result) ([]Result, bool) {
	var listing strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&listing, "[%d] %s\n", i, structured.Truncate(c.Content, 200))
	}

	resp, err := s.llm.Generate(ctx, []llm.Message{
		{Role: "user", Content: fmt.Sprintf(rerankPrompt, query, listing.String())},
	}, llm.Options{Temperature: 0.0, MaxTokens: 200})
	if err != nil {
		slog.Debug("semantic rerank: lm call failed, using heuristic", "error", err)
		return nil, false
	}

	order, ok := parsePermutation(resp.Content, len(candidates))
	if !ok {
		slog.Debug("semantic rerank: lm reply not a valid permutation, using heuristic")
		return nil, false
	}

	out := make([]Result, len(order))
	for rank, idx := range order {
		r := candidates[idx]
		r.Score = 1.0 - float64(rank)/float64(len(order))
		out[rank] = r
	}
	return out, true
}

// parsePermutation validates that raw decodes to a JSON array containing
// exactly the integers [0, n) each exactly once.
func parsePermutation(raw string, n int) ([]int, bool) {
	clean := structured.StripCodeFence(raw)
	result := gjson.Parse(clean)
	if !result.IsArray() {
		return nil, false
	}

	items := result.Array()
	if len(items) != n {
		return nil, false
	}

	seen := make([]bool, n)
	order := make([]int, 0, n)
	for _, item := range items {
		idx := int(item.Int())
		if idx < 0 || idx >= n || seen[idx] {
			return nil, false
		}
		seen[idx] = true
		order = append(order, idx)
	}
	return order, true
}
