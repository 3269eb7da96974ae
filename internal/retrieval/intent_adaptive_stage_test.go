package retrieval

import (
	"context"
	"testing"
)

func TestIntentAdaptiveStage_EntityDenseFavorsGraph(t *testing.T) {
	stage := NewIntentAdaptiveStage(&fakeEntityDetector{names: []string{"ava", "marco"}}, true)
	rctx := &Context{}

	_, err := stage.Run(context.Background(), "what did ava and marco do", 5, rctx, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rctx.WeightOrDefault("graph", 0) != 0.7 {
		t.Errorf("expected graph weight 0.7, got %v", rctx.WeightOrDefault("graph", 0))
	}
	if rctx.WeightOrDefault("vector", 0) != 0.3 {
		t.Errorf("expected vector weight 0.3, got %v", rctx.WeightOrDefault("vector", 0))
	}
	if len(rctx.QueryEntities) != 2 {
		t.Errorf("expected 2 query entities recorded, got %v", rctx.QueryEntities)
	}
}

func TestIntentAdaptiveStage_SparseFavorsVector(t *testing.T) {
	stage := NewIntentAdaptiveStage(&fakeEntityDetector{names: nil}, true)
	rctx := &Context{}

	_, err := stage.Run(context.Background(), "general question", 5, rctx, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rctx.WeightOrDefault("vector", 0) != 0.7 {
		t.Errorf("expected vector weight 0.7, got %v", rctx.WeightOrDefault("vector", 0))
	}
}

func TestIntentAdaptiveStage_NoGraphPathFavorsVectorEvenWithEntities(t *testing.T) {
	stage := NewIntentAdaptiveStage(&fakeEntityDetector{names: []string{"ava", "marco"}}, false)
	rctx := &Context{}

	_, err := stage.Run(context.Background(), "what did ava and marco do", 5, rctx, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rctx.WeightOrDefault("vector", 0) != 0.7 {
		t.Errorf("expected vector favored when no graph path exists, got %v", rctx.WeightOrDefault("vector", 0))
	}
}

func TestIntentAdaptiveStage_DetectorFailureIsNonFatal(t *testing.T) {
	stage := NewIntentAdaptiveStage(&fakeEntityDetector{err: errBoom}, true)
	candidates := []Result{{DocID: "doc-a", Score: 1}}

	out, err := stage.Run(context.Background(), "q", 5, &Context{}, candidates)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out) != 1 || out[0].DocID != "doc-a" {
		t.Errorf("expected candidates passed through unchanged on detector failure, got %+v", out)
	}
}
