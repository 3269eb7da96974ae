package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/knowlode/knowlode/internal/store/graphstore"
	"github.com/knowlode/knowlode/internal/store/vectorstore"
)

func TestPipeline_BasicPreset(t *testing.T) {
	index := vectorstore.New(2)
	ctx := context.Background()
	_ = index.Add(ctx, "doc-a", []float32{1, 0})
	_ = index.Add(ctx, "doc-b", []float32{0, 1})

	vector := NewVectorRetrievalStage(index, &fakeEmbedder{vector: []float32{1, 0}}, func(_ context.Context, id string) (string, error) {
		return "content of " + id, nil
	})
	rerank := NewSemanticRerankStage(nil)
	pipeline := PresetBasic(vector, rerank)

	out, err := pipeline.Execute(ctx, "query", 1, &Context{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out))
	}
	if out[0].DocID != "doc-a" {
		t.Errorf("expected doc-a as the closer match, got %s", out[0].DocID)
	}
}

func TestPipeline_AdvancedPresetFansOutAndFuses(t *testing.T) {
	index := vectorstore.New(2)
	ctx := context.Background()
	_ = index.Add(ctx, "doc-a", []float32{1, 0})

	graph := graphstore.NewMemStore()
	_ = graph.AddNode(ctx, graphstore.DomainLife, graphstore.Node{
		ID: "person-ava", Label: graphstore.LabelPerson, Properties: map[string]any{"name": "ava"},
	})
	_ = graph.AddNode(ctx, graphstore.DomainLife, graphstore.Node{
		ID: "doc-b", Label: graphstore.LabelDocument, Properties: map[string]any{"name": "ava's notes"},
	})
	_ = graph.AddEdge(ctx, graphstore.DomainLife, graphstore.Edge{
		SourceID: "person-ava", TargetID: "doc-b", Relation: graphstore.RelLinkedTo, Weight: 1,
	})

	vector := NewVectorRetrievalStage(index, &fakeEmbedder{vector: []float32{1, 0}}, nil)
	graphStage := NewGraphRetrievalStage(graph, &fakeEntityDetector{names: []string{"ava"}}, docResolverFor(graph), 2, nil)
	rerank := NewSemanticRerankStage(nil)

	pipeline := PresetAdvanced(vector, graphStage, rerank)
	out, err := pipeline.Execute(ctx, "ava's notes", 5, &Context{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	seen := map[string]bool{}
	for _, r := range out {
		seen[r.DocID] = true
	}
	if !seen["doc-a"] || !seen["doc-b"] {
		t.Errorf("expected both vector and graph candidates fused into output, got %+v", out)
	}
}

func TestPipeline_FirstStageFailureReturnsEmpty(t *testing.T) {
	index := vectorstore.New(2)
	vector := NewVectorRetrievalStage(index, &fakeEmbedder{dim: 2, failNext: true}, nil)
	pipeline := PresetVectorOnly(vector)

	out, err := pipeline.Execute(context.Background(), "q", 5, &Context{})
	if err != nil {
		t.Fatalf("expected no error on first-stage failure, got %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected empty result set on first-stage failure, got %d", len(out))
	}
}

func TestPipeline_LaterStageFailureDegradesGracefully(t *testing.T) {
	index := vectorstore.New(2)
	ctx := context.Background()
	_ = index.Add(ctx, "doc-a", []float32{1, 0})

	vector := NewVectorRetrievalStage(index, &fakeEmbedder{vector: []float32{1, 0}}, nil)
	failingRerank := &failingStage{name: "semantic_rerank"}

	pipeline := NewPipeline("degraded").AddStage(vector).AddStage(failingRerank)
	out, err := pipeline.Execute(ctx, "q", 5, &Context{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(out) != 1 || out[0].DocID != "doc-a" {
		t.Errorf("expected vector candidates preserved after a later stage fails, got %+v", out)
	}
}

func TestPipeline_MetadataFilterDropsOutOfRangeDocs(t *testing.T) {
	index := vectorstore.New(2)
	ctx := context.Background()
	_ = index.Add(ctx, "doc-a", []float32{1, 0})
	_ = index.Add(ctx, "doc-b", []float32{1, 0})

	vector := NewVectorRetrievalStage(index, &fakeEmbedder{vector: []float32{1, 0}}, nil)
	pipeline := NewPipeline("filtered").AddStage(vector).WithMetadataLookup(func(_ context.Context, id string) (DocMeta, bool) {
		if id == "doc-a" {
			return DocMeta{DocType: "knowledge", Timestamp: time.Now()}, true
		}
		return DocMeta{DocType: "conversation", Timestamp: time.Now()}, true
	})

	out, err := pipeline.Execute(ctx, "q", 5, &Context{Filters: Filter{DocType: "knowledge"}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(out) != 1 || out[0].DocID != "doc-a" {
		t.Errorf("expected only doc-a to survive the doc_type filter, got %+v", out)
	}
}

func TestRouter_AdaptiveSelectsAdvancedWhenEntitiesAndGraphPathExist(t *testing.T) {
	advanced := NewPipeline("advanced")
	semantic := NewPipeline("semantic")
	router := NewRouter(advanced, semantic, nil, nil, &fakeEntityDetector{names: []string{"ava"}}, true)

	pipeline, err := router.resolve(context.Background(), "q", StrategyAdaptive)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if pipeline != advanced {
		t.Errorf("expected adaptive strategy to pick advanced pipeline")
	}
}

func TestRouter_AdaptiveSelectsSemanticWithoutEntities(t *testing.T) {
	advanced := NewPipeline("advanced")
	semantic := NewPipeline("semantic")
	router := NewRouter(advanced, semantic, nil, nil, &fakeEntityDetector{names: nil}, true)

	pipeline, err := router.resolve(context.Background(), "q", StrategyAdaptive)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if pipeline != semantic {
		t.Errorf("expected adaptive strategy to pick semantic pipeline without entities")
	}
}

// failingStage always fails, used to exercise Pipeline's degrade-don't-abort
// behavior for non-first stages.
type failingStage struct{ name string }

func (f *failingStage) Name() string { return f.name }
func (f *failingStage) Run(_ context.Context, _ string, _ int, _ *Context, _ []Result) ([]Result, error) {
	return nil, errBoom
}
