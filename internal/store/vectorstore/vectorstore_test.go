package vectorstore

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/knowlode/knowlode/internal/store"
)

func TestStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	s := New(2)

	if err := s.Add(ctx, "a", Vector{0, 0}); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := s.Add(ctx, "b", Vector{1, 0}); err != nil {
		t.Fatalf("add b: %v", err)
	}
	if err := s.Add(ctx, "c", Vector{5, 5}); err != nil {
		t.Fatalf("add c: %v", err)
	}

	results, err := s.Search(ctx, Vector{0, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].ID != "a" {
		t.Fatalf("results[0].ID = %q, want a (exact match)", results[0].ID)
	}
	if results[0].Score != 1.0 {
		t.Fatalf("results[0].Score = %v, want 1.0 for zero distance", results[0].Score)
	}
	if results[1].ID != "b" {
		t.Fatalf("results[1].ID = %q, want b", results[1].ID)
	}
}

func TestStore_SearchEmptyStoreReturnsEmptySlice(t *testing.T) {
	s := New(3)
	results, err := s.Search(context.Background(), Vector{1, 2, 3}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Fatalf("results = %#v, want empty non-nil slice", results)
	}
}

func TestStore_AddDimensionMismatch(t *testing.T) {
	s := New(3)
	err := s.Add(context.Background(), "a", Vector{1, 2})
	if !errors.Is(err, store.ErrValidationFailed) {
		t.Fatalf("err = %v, want ErrValidationFailed", err)
	}
}

func TestStore_SearchDimensionMismatch(t *testing.T) {
	s := New(3)
	_, err := s.Search(context.Background(), Vector{1, 2}, 5)
	if !errors.Is(err, store.ErrValidationFailed) {
		t.Fatalf("err = %v, want ErrValidationFailed", err)
	}
}

func TestStore_AddOverwritesExisting(t *testing.T) {
	ctx := context.Background()
	s := New(2)
	_ = s.Add(ctx, "a", Vector{0, 0})
	_ = s.Add(ctx, "a", Vector{10, 10})

	live, total := s.Count()
	if live != 1 {
		t.Fatalf("live = %d, want 1 after overwrite", live)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2 (old slot tombstoned, new slot appended)", total)
	}

	results, err := s.Search(ctx, Vector{10, 10}, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "a" {
		t.Fatalf("results = %#v, want single hit for overwritten vector", results)
	}
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := New(2)
	_ = s.Add(ctx, "a", Vector{0, 0})
	_ = s.Add(ctx, "b", Vector{1, 1})

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	live, total := s.Count()
	if live != 1 || total != 2 {
		t.Fatalf("live=%d total=%d, want live=1 total=2 (tombstoned slot still occupies a handle)", live, total)
	}

	results, err := s.Search(ctx, Vector{0, 0}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, r := range results {
		if r.ID == "a" {
			t.Fatalf("deleted id %q still returned by search", r.ID)
		}
	}
}

func TestStore_DeleteUnknownID(t *testing.T) {
	s := New(2)
	err := s.Delete(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_GetIsUnsupported(t *testing.T) {
	s := New(2)
	_ = s.Add(context.Background(), "a", Vector{0, 0})
	_, err := s.Get(context.Background(), "a")
	if !errors.Is(err, store.ErrUnsupportedOperation) {
		t.Fatalf("err = %v, want ErrUnsupportedOperation", err)
	}
}

func TestStore_TombstoneRatioAndRebuild(t *testing.T) {
	ctx := context.Background()
	s := New(1)
	for i := 0; i < 100; i++ {
		id := string(rune('a' + i%26))
		_ = s.Add(ctx, id+string(rune(i)), Vector{float32(i)})
	}
	live, total := s.Count()
	if live != 100 || total != 100 {
		t.Fatalf("live=%d total=%d, want 100/100 before delete", live, total)
	}

	for i := 0; i < 40; i++ {
		id := string(rune('a'+i%26)) + string(rune(i))
		if err := s.Delete(ctx, id); err != nil {
			t.Fatalf("delete %s: %v", id, err)
		}
	}

	live, total = s.Count()
	if live != 60 || total != 100 {
		t.Fatalf("live=%d total=%d, want 60/100 after deleting 40", live, total)
	}
	if ratio := s.TombstoneRatio(); ratio < 0.39 || ratio > 0.41 {
		t.Fatalf("tombstone ratio = %v, want ~0.4", ratio)
	}

	if err := s.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	live, total = s.Count()
	if live != 60 || total != 60 {
		t.Fatalf("live=%d total=%d, want 60/60 after rebuild", live, total)
	}
	if ratio := s.TombstoneRatio(); ratio != 0 {
		t.Fatalf("tombstone ratio after rebuild = %v, want 0", ratio)
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(2)
	_ = s.Add(ctx, "a", Vector{0, 0})
	_ = s.Add(ctx, "b", Vector{1, 1})
	_ = s.Delete(ctx, "a")

	var buf bytes.Buffer
	if err := s.Save(&buf); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := New(0)
	if err := loaded.Load(&buf); err != nil {
		t.Fatalf("load: %v", err)
	}

	live, total := loaded.Count()
	if live != 1 || total != 2 {
		t.Fatalf("live=%d total=%d, want 1/2 after round trip", live, total)
	}

	results, err := loaded.Search(ctx, Vector{1, 1}, 1)
	if err != nil {
		t.Fatalf("search after load: %v", err)
	}
	if len(results) != 1 || results[0].ID != "b" {
		t.Fatalf("results = %#v, want single hit b", results)
	}
}

func TestStore_LoadCorruptBlobFailsAtomically(t *testing.T) {
	loaded := New(2)
	_ = loaded.Add(context.Background(), "a", Vector{0, 0})

	err := loaded.Load(bytes.NewReader([]byte("not a gob blob")))
	if err == nil {
		t.Fatal("load: want error for corrupt blob")
	}

	live, total := loaded.Count()
	if live != 1 || total != 1 {
		t.Fatalf("live=%d total=%d, want state unchanged after failed load", live, total)
	}
}

func TestStore_BytesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(1)
	_ = s.Add(ctx, "a", Vector{3.14})

	data, err := s.Bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}

	loaded := New(0)
	if err := loaded.LoadBytes(data); err != nil {
		t.Fatalf("load bytes: %v", err)
	}
	live, _ := loaded.Count()
	if live != 1 {
		t.Fatalf("live = %d, want 1", live)
	}
}
