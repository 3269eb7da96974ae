package retrieval

import (
	"context"
	"math"
)

// defaultMMRLambda balances relevance against diversity in MMR selection.
const defaultMMRLambda = 0.7

// DiversityFilterStage greedily selects candidates maximizing
// λ·relevance − (1−λ)·max_sim(selected), using embedding cosine similarity
// when available and falling back to token-set Jaccard otherwise.
type DiversityFilterStage struct {
	lambda float64
}

// NewDiversityFilterStage constructs a DiversityFilterStage. lambda <= 0
// selects the spec default of 0.7.
func NewDiversityFilterStage(lambda float64) *DiversityFilterStage {
	if lambda <= 0 {
		lambda = defaultMMRLambda
	}
	return &DiversityFilterStage{lambda: lambda}
}

func (s *DiversityFilterStage) Name() string { return "diversity_filter" }

func (s *DiversityFilterStage) Run(ctx context.Context, query string, k int, rctx *Context, candidates []Result) ([]Result, error) {
	if len(candidates) <= k {
		out := append([]Result(nil), candidates...)
		sortByScoreThenID(out)
		return out, nil
	}

	remaining := append([]Result(nil), candidates...)
	selected := make([]Result, 0, k)

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		bestScore := -1.0
		for i, candidate := range remaining {
			maxSim := 0.0
			for _, sel := range selected {
				if sim := similarity(candidate, sel); sim > maxSim {
					maxSim = sim
				}
			}
			mmr := s.lambda*candidate.Score - (1-s.lambda)*maxSim
			if mmr > bestScore {
				bestScore = mmr
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	normalizeScores(selected)
	return selected, nil
}

// similarity prefers embedding cosine similarity when both candidates carry
// an embedding, falling back to token-set Jaccard over content otherwise.
func similarity(a, b Result) float64 {
	if len(a.Embedding) > 0 && len(a.Embedding) == len(b.Embedding) {
		return cosineSimilarity(a.Embedding, b.Embedding)
	}
	return jaccard(tokenSet(a.Content), tokenSet(b.Content))
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
