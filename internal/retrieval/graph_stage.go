package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/knowlode/knowlode/internal/nlp/ner"
	"github.com/knowlode/knowlode/internal/store/graphstore"
	"github.com/knowlode/knowlode/pkg/embedding"
)

// docResolver maps a graph node back to the document it represents, when
// the node is itself a Document-labeled node (graph nodes that are not
// documents — Person, Event, etc. — are traversal hops, not candidates).
type docResolver func(node graphstore.Node) (docID, content string, ok bool)

// GraphRetrievalStage extracts entities from the query, looks them up in
// the graph, and enumerates one- or two-hop neighbors that resolve to
// documents, tagging results source=graph. Candidates are scored by a
// combination of structural proximity (hop distance, shared matched
// entities) and content relevance: cosine similarity against an embedding
// when embedder is configured, falling back to token-set Jaccard
// overlap otherwise — the two-path scoring the teacher's GraphRAGQuerier
// offers as QueryWithEmbedding/QueryWithContext, adapted onto a
// structurally-scoped candidate set instead of a single SQL query.
type GraphRetrievalStage struct {
	store    graphstore.GraphStore
	entities ner.Detector
	resolve  docResolver
	maxHops  int
	embedder embedding.Provider

	fallbackOnce sync.Once
}

// NewGraphRetrievalStage constructs a GraphRetrievalStage. resolve decides
// which graph nodes are themselves retrievable documents; maxHops bounds
// traversal depth (the spec allows one or two hops). embedder may be nil,
// in which case every query uses the full-text fallback path.
func NewGraphRetrievalStage(store graphstore.GraphStore, entities ner.Detector, resolve docResolver, maxHops int, embedder embedding.Provider) *GraphRetrievalStage {
	if maxHops <= 0 {
		maxHops = 2
	}
	return &GraphRetrievalStage{store: store, entities: entities, resolve: resolve, maxHops: maxHops, embedder: embedder}
}

// logFallbackOnce records, the first time it happens, that this stage is
// scoring by full-text overlap rather than embedding similarity — either
// because no embedder was wired in, or because an embedding call failed.
func (s *GraphRetrievalStage) logFallbackOnce(reason string) {
	s.fallbackOnce.Do(func() {
		slog.Info("graph stage: using full-text relevance fallback", "reason", reason)
	})
}

// relevance scores content against query, preferring embedding cosine
// similarity when queryEmbedding is available and the content embeds
// cleanly, falling back to token-set Jaccard overlap otherwise.
func (s *GraphRetrievalStage) relevance(ctx context.Context, queryEmbedding []float32, query, content string) float64 {
	if queryEmbedding != nil {
		embedded, err := s.embedder.Embed(ctx, content)
		if err == nil {
			return cosineSimilarity(queryEmbedding, embedded.Vector)
		}
		s.logFallbackOnce(fmt.Sprintf("embed candidate content: %v", err))
	}
	return jaccard(tokenSet(query), tokenSet(content))
}

func (s *GraphRetrievalStage) Name() string { return "graph" }

// graphHit accumulates the minimal hop distance and the set of query
// entities that reached a node, across every root entity walked.
type graphHit struct {
	hops   int
	shared map[string]struct{}
	node   graphstore.Node
}

func (s *GraphRetrievalStage) Run(ctx context.Context, query string, k int, rctx *Context, candidates []Result) ([]Result, error) {
	extracted, err := s.entities.Extract(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("graph stage: extract entities: %w", err)
	}
	if len(extracted) == 0 {
		return []Result{}, nil
	}

	entityNames := make([]string, 0, len(extracted))
	for _, e := range extracted {
		entityNames = append(entityNames, strings.ToLower(e.Text))
	}
	if rctx != nil {
		rctx.QueryEntities = entityNames
	}

	weight := 1.0
	if rctx != nil {
		weight = rctx.WeightOrDefault(s.Name(), 1.0)
	}

	var queryEmbedding []float32
	if s.embedder != nil {
		embedded, err := s.embedder.Embed(ctx, query)
		if err != nil {
			s.logFallbackOnce(fmt.Sprintf("embed query: %v", err))
		} else {
			queryEmbedding = embedded.Vector
		}
	} else {
		s.logFallbackOnce("no embedder configured")
	}

	maxShared := len(entityNames)
	seen := map[string]*graphHit{}

	snapshots := map[string]graphstore.Snapshot{}
	for _, name := range entityNames {
		roots, err := s.store.FindNodes(ctx, "", map[string]any{"name": name})
		if err != nil {
			continue
		}
		for _, root := range roots {
			s.walk(ctx, root, name, 0, seen)
			if _, ok := snapshots[root.ID]; ok {
				continue
			}
			if snap, err := s.store.Snapshot(ctx, root.ID); err == nil {
				snapshots[root.ID] = snap
			}
		}
	}
	if rctx != nil && len(snapshots) > 0 {
		if rctx.ExtraMetadata == nil {
			rctx.ExtraMetadata = map[string]any{}
		}
		rctx.ExtraMetadata["graph_snapshots"] = snapshots
	}

	out := make([]Result, 0, len(seen))
	for _, hit := range seen {
		docID, content, ok := s.resolve(hit.node)
		if !ok {
			continue
		}
		relevance := s.relevance(ctx, queryEmbedding, query, content)
		score := (1.0 / float64(1+hit.hops)) * (float64(len(hit.shared)) / float64(maxOf(maxShared, 1))) * weight * (0.5 + 0.5*relevance)
		out = append(out, Result{
			DocID:           docID,
			Content:         content,
			Score:           score,
			Source:          SourceGraph,
			MatchedEntities: sortedKeys(hit.shared),
			HopDistance:     hit.hops,
			Metadata:        map[string]any{"weight": weight},
		})
	}

	normalizeScores(out)
	sortByScoreThenID(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (s *GraphRetrievalStage) walk(ctx context.Context, node graphstore.Node, matchedEntity string, hop int, seen map[string]*graphHit) {
	if hop > s.maxHops {
		return
	}
	hit, ok := seen[node.ID]
	if !ok {
		hit = &graphHit{hops: hop, shared: map[string]struct{}{}, node: node}
		seen[node.ID] = hit
	}
	if hop < hit.hops {
		hit.hops = hop
	}
	hit.shared[matchedEntity] = struct{}{}

	if hop >= s.maxHops {
		return
	}
	neighbors, err := s.store.Neighbors(ctx, node.ID, graphstore.NeighborOptions{Direction: graphstore.Both})
	if err != nil {
		return
	}
	for _, n := range neighbors {
		s.walk(ctx, n, matchedEntity, hop+1, seen)
	}
}

func maxOf(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
