package retrieval

import (
	"context"
	"testing"
)

func TestDiversityFilterStage_PrunesNearDuplicates(t *testing.T) {
	stage := NewDiversityFilterStage(0.7)
	candidates := []Result{
		{DocID: "doc-a", Score: 1.0, Embedding: []float32{1, 0, 0}},
		{DocID: "doc-b", Score: 0.95, Embedding: []float32{1, 0, 0}}, // near-identical to doc-a
		{DocID: "doc-c", Score: 0.6, Embedding: []float32{0, 1, 0}},  // orthogonal, diverse
	}

	out, err := stage.Run(context.Background(), "q", 2, &Context{}, candidates)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 selected, got %d", len(out))
	}
	if out[0].DocID != "doc-a" {
		t.Errorf("expected doc-a selected first (highest relevance), got %s", out[0].DocID)
	}
	if out[1].DocID != "doc-c" {
		t.Errorf("expected doc-c selected over near-duplicate doc-b for diversity, got %s", out[1].DocID)
	}
}

func TestDiversityFilterStage_FewerThanKReturnsAllSorted(t *testing.T) {
	stage := NewDiversityFilterStage(0.7)
	candidates := []Result{
		{DocID: "doc-b", Score: 0.2},
		{DocID: "doc-a", Score: 0.8},
	}
	out, err := stage.Run(context.Background(), "q", 5, &Context{}, candidates)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out) != 2 || out[0].DocID != "doc-a" {
		t.Errorf("expected both candidates sorted by score, got %+v", out)
	}
}

func TestDiversityFilterStage_DefaultsLambda(t *testing.T) {
	stage := NewDiversityFilterStage(0)
	if stage.lambda != defaultMMRLambda {
		t.Errorf("expected default lambda %v, got %v", defaultMMRLambda, stage.lambda)
	}
}

func TestCosineSimilarity(t *testing.T) {
	if sim := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); sim != 1.0 {
		t.Errorf("expected identical vectors to have similarity 1.0, got %v", sim)
	}
	if sim := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); sim != 0.0 {
		t.Errorf("expected orthogonal vectors to have similarity 0.0, got %v", sim)
	}
}
