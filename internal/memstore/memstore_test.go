package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/knowlode/knowlode/internal/store"
	"github.com/knowlode/knowlode/internal/store/catalog"
	"github.com/knowlode/knowlode/internal/store/vectorstore"
	"github.com/knowlode/knowlode/pkg/embedding"
)

// fakeEmbedder returns a fixed vector for every call unless failNext is set.
type fakeEmbedder struct {
	dim      int
	vector   []float32
	failNext bool
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) (embedding.Result, error) {
	if f.failNext {
		f.failNext = false
		return embedding.Result{}, errors.New("fake embedder: forced failure")
	}
	return embedding.Result{Vector: f.vector, Dimension: len(f.vector)}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]embedding.Result, error) {
	out := make([]embedding.Result, len(texts))
	for i := range texts {
		r, err := f.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dim }
func (f *fakeEmbedder) ModelID() string { return "fake" }

func newTestStore(now time.Time) *Store {
	vectors := vectorstore.New(2)
	cat := catalog.NewMemCatalog()
	embedder := &fakeEmbedder{dim: 2, vector: []float32{1, 0}}
	return New(vectors, cat, embedder, WithClock(func() time.Time { return now }))
}

func TestStore_StoreAndGet(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := newTestStore(now)

	id, stored, err := s.Store(context.Background(), StoreRequest{
		Content: "hiking trip plan", Importance: 0.8, Category: "outdoors", Tags: []string{"hiking", "weekend"},
	})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty id")
	}
	if !stored {
		t.Error("expected stored=true for a permanent-retention memory")
	}

	item, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item.Content != "hiking trip plan" {
		t.Errorf("expected content round-trip, got %q", item.Content)
	}
	if item.Category != "outdoors" {
		t.Errorf("expected category round-trip, got %q", item.Category)
	}
	if len(item.Tags) != 2 {
		t.Errorf("expected 2 tags, got %v", item.Tags)
	}
}

func TestStore_StoreRejectsInvalidImportance(t *testing.T) {
	s := newTestStore(time.Now())
	_, _, err := s.Store(context.Background(), StoreRequest{Content: "x", Importance: 1.5})
	if !errors.Is(err, store.ErrValidationFailed) {
		t.Errorf("expected ErrValidationFailed, got %v", err)
	}
}

func TestStore_StoreRejectsEmptyContent(t *testing.T) {
	s := newTestStore(time.Now())
	_, _, err := s.Store(context.Background(), StoreRequest{Content: "   ", Importance: 0.5})
	if !errors.Is(err, store.ErrValidationFailed) {
		t.Errorf("expected ErrValidationFailed, got %v", err)
	}
}

func TestStore_CasualChatSkipsVectorPersistence(t *testing.T) {
	s := newTestStore(time.Now())
	ctx := context.Background()

	id, stored, err := s.Store(ctx, StoreRequest{
		Content: "ok", Importance: 0.1, RetentionType: catalog.RetentionCasualChat,
	})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if stored {
		t.Error("expected stored=false for a casual_chat memory")
	}

	row, err := s.catalog.Get(ctx, id)
	if err != nil {
		t.Fatalf("catalog row should still exist transiently: %v", err)
	}
	if row.StoredInVector {
		t.Error("expected StoredInVector=false for a casual_chat memory")
	}

	hits, err := s.vectors.Search(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, h := range hits {
		if h.ID == id {
			t.Error("casual_chat memory must not be reachable via the vector index")
		}
	}
}

func TestStore_VectorFailureDegradesButCatalogRowPersists(t *testing.T) {
	vectors := vectorstore.New(2)
	cat := catalog.NewMemCatalog()
	embedder := &fakeEmbedder{dim: 2, vector: []float32{1, 0}}
	s := New(vectors, cat, embedder)

	// Wrong-dimension vector forces vectors.Add to fail without touching the
	// embedder contract: swap in a bad vector after construction isn't
	// possible, so instead seed a dimension mismatch by using a 3-dim store.
	badVectors := vectorstore.New(3)
	s2 := New(badVectors, cat, embedder)

	id, _, err := s2.Store(context.Background(), StoreRequest{Content: "note", Importance: 0.5})
	if err != nil {
		t.Fatalf("expected Store to succeed despite vector failure, got %v", err)
	}

	row, err := cat.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get catalog row: %v", err)
	}
	if row.StoredInVector {
		t.Error("expected StoredInVector=false after vector insert failure")
	}

	_ = s // silence unused in case of future refactor
}

type failingCatalog struct {
	catalog.Catalog
}

func (f *failingCatalog) Put(_ context.Context, _ catalog.Row) error {
	return errors.New("fake catalog: forced failure")
}

func TestStore_CatalogFailureRollsBackVectorInsert(t *testing.T) {
	vectors := vectorstore.New(2)
	cat := &failingCatalog{Catalog: catalog.NewMemCatalog()}
	embedder := &fakeEmbedder{dim: 2, vector: []float32{1, 0}}
	s := New(vectors, cat, embedder)

	_, _, err := s.Store(context.Background(), StoreRequest{Content: "note", Importance: 0.5})
	if err == nil {
		t.Fatal("expected catalog failure to propagate")
	}

	// The vector insert must have been rolled back.
	if _, searchErr := vectors.Search(context.Background(), []float32{1, 0}, 10); searchErr != nil {
		t.Fatalf("search: %v", searchErr)
	} else {
		hits, _ := vectors.Search(context.Background(), []float32{1, 0}, 10)
		if len(hits) != 0 {
			t.Errorf("expected vector insert rolled back, found %d hits", len(hits))
		}
	}
}

func TestStore_RetrieveAppliesDecayAndImportance(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	vectors := vectorstore.New(2)
	cat := catalog.NewMemCatalog()
	embedder := &fakeEmbedder{dim: 2, vector: []float32{1, 0}}
	s := New(vectors, cat, embedder, WithClock(func() time.Time { return now }))

	ctx := context.Background()
	old := New(vectors, cat, embedder, WithClock(func() time.Time { return now.Add(-10 * 24 * time.Hour) }))
	if _, _, err := old.Store(ctx, StoreRequest{Content: "old memory", Importance: 0.9}); err != nil {
		t.Fatalf("seed old: %v", err)
	}
	if _, _, err := s.Store(ctx, StoreRequest{Content: "fresh memory", Importance: 0.9}); err != nil {
		t.Fatalf("seed fresh: %v", err)
	}

	results := s.Retrieve(ctx, "memory", 10, true, 0, RetrieveFilters{})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Content != "fresh memory" {
		t.Errorf("expected fresh memory ranked first due to decay, got %q", results[0].Content)
	}
}

func TestStore_RetrieveEmptyQueryReturnsNil(t *testing.T) {
	s := newTestStore(time.Now())
	if out := s.Retrieve(context.Background(), "  ", 5, true, 0, RetrieveFilters{}); out != nil {
		t.Errorf("expected nil for empty query, got %v", out)
	}
}

func TestStore_RetrieveFiltersByCategoryAndTags(t *testing.T) {
	now := time.Now()
	s := newTestStore(now)
	ctx := context.Background()

	if _, _, err := s.Store(ctx, StoreRequest{Content: "work note", Importance: 0.5, Category: "work", Tags: []string{"urgent"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := s.Store(ctx, StoreRequest{Content: "life note", Importance: 0.5, Category: "life", Tags: []string{"family"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	results := s.Retrieve(ctx, "note", 10, false, 0, RetrieveFilters{Category: "work"})
	if len(results) != 1 || results[0].Category != "work" {
		t.Errorf("expected only work-category result, got %+v", results)
	}

	results = s.Retrieve(ctx, "note", 10, false, 0, RetrieveFilters{Tags: []string{"family"}})
	if len(results) != 1 || results[0].Content != "life note" {
		t.Errorf("expected only family-tagged result, got %+v", results)
	}
}

func TestStore_UpdateImportanceValidatesRange(t *testing.T) {
	s := newTestStore(time.Now())
	ctx := context.Background()
	id, _, _ := s.Store(ctx, StoreRequest{Content: "x", Importance: 0.2})

	if err := s.UpdateImportance(ctx, id, 2.0); !errors.Is(err, store.ErrValidationFailed) {
		t.Errorf("expected ErrValidationFailed, got %v", err)
	}
	if err := s.UpdateImportance(ctx, id, 0.9); err != nil {
		t.Fatalf("UpdateImportance: %v", err)
	}
	item, _ := s.Get(ctx, id)
	if item.Importance != 0.9 {
		t.Errorf("expected importance updated to 0.9, got %v", item.Importance)
	}
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	s := newTestStore(time.Now())
	ctx := context.Background()
	id, _, _ := s.Store(ctx, StoreRequest{Content: "x", Importance: 0.2})

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("second delete should be idempotent, got %v", err)
	}
}

func TestStore_Sweep(t *testing.T) {
	now := time.Now()
	vectors := vectorstore.New(2)
	cat := catalog.NewMemCatalog()
	embedder := &fakeEmbedder{dim: 2, vector: []float32{1, 0}}

	old := New(vectors, cat, embedder, WithClock(func() time.Time { return now.Add(-8 * 24 * time.Hour) }))
	id, _, err := old.Store(context.Background(), StoreRequest{Content: "stale", Importance: 0.2, RetentionType: catalog.RetentionTemporary})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	fresh := New(vectors, cat, embedder, WithClock(func() time.Time { return now }))
	swept, err := fresh.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept row, got %d", swept)
	}
	if _, err := cat.Get(context.Background(), id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected swept row deleted, got err=%v", err)
	}
}
