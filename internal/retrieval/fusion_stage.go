package retrieval

import "strconv"

// FusionStage merges candidate lists from multiple upstream sources using
// Reciprocal Rank Fusion: a candidate at rank r in list i (1-indexed,
// rank within that list's own score-descending order) with list weight w_i
// contributes w_i / (kRRF + r) to its accumulated score.
//
// FusionStage does not implement Stage directly — a pipeline step built
// from upstream stages' outputs. Pipeline wires it via Fuse, called
// once the upstream stages (e.g. vector + graph) have both completed.
type FusionStage struct {
	// KRRF is the RRF rank-damping constant. Default 60.
	KRRF float64
}

// NewFusionStage constructs a FusionStage with the default k_rrf = 60.
func NewFusionStage() *FusionStage {
	return &FusionStage{KRRF: 60}
}

func (s *FusionStage) Name() string { return "fusion" }

// weighted pairs a candidate list with its list weight for fusion.
type weighted struct {
	results []Result
	weight  float64
}

// Fuse merges lists (each already sorted score-descending) into a single
// RRF-ranked candidate set tagged source=hybrid. Metadata on each output
// candidate records the per-source rank and score that contributed to it.
func (s *FusionStage) Fuse(lists ...weighted) []Result {
	kRRF := s.KRRF
	if kRRF <= 0 {
		kRRF = 60
	}

	type accum struct {
		result    Result
		score     float64
		perSource map[string]map[string]any
	}
	merged := map[string]*accum{}

	for listIdx, l := range lists {
		for rank, r := range l.results {
			a, ok := merged[r.DocID]
			if !ok {
				a = &accum{result: r, perSource: map[string]map[string]any{}}
				merged[r.DocID] = a
			}
			contribution := l.weight / (kRRF + float64(rank+1))
			a.score += contribution
			a.perSource[sourceKey(r.Source, listIdx)] = map[string]any{
				"rank":  rank + 1,
				"score": r.Score,
			}
			if r.Content != "" {
				a.result.Content = r.Content
			}
			a.result.MatchedEntities = mergeEntities(a.result.MatchedEntities, r.MatchedEntities)
			if r.HopDistance > 0 && (a.result.HopDistance == 0 || r.HopDistance < a.result.HopDistance) {
				a.result.HopDistance = r.HopDistance
			}
		}
	}

	out := make([]Result, 0, len(merged))
	for _, a := range merged {
		result := a.result
		result.Score = a.score
		result.Source = SourceHybrid
		result.Metadata = map[string]any{"per_source": a.perSource}
		out = append(out, result)
	}

	normalizeScores(out)
	sortByScoreThenID(out)
	return out
}

func sourceKey(source Source, listIdx int) string {
	if source != "" {
		return string(source)
	}
	return strconv.Itoa(listIdx)
}

func mergeEntities(a, b []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(a)+len(b))
	for _, e := range append(append([]string{}, a...), b...) {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
