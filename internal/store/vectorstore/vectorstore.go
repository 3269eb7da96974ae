// Package vectorstore implements the in-process dense vector index: an
// IVF-style approximate index keyed by internal integer handles, with
// bidirectional external-id maps and tombstone-based deletion.
//
// There is no real clustering step (no IVF training data structure) — the
// "lazy training on first insert" and "rebuild" vocabulary is kept because
// that is the operation's contract, not because a coarse quantizer exists
// underneath. Distances are computed by brute-force scan, which is exact
// (equivalent to a single IVF list) and adequate for the corpus sizes this
// store targets.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/knowlode/knowlode/internal/store"
)

// RebuildRatio is the tombstone/total ratio at which [Store.TombstoneRatio]
// callers should invoke [Store.Rebuild] to compact the index.
const RebuildRatio = 0.3

// Vector is a dense embedding.
type Vector = []float32

// Result is one k-NN search hit.
type Result struct {
	ID    string
	Score float64
}

// Store is an in-process vector index. The zero value is not usable; build
// one with [New]. All methods are safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	dimension int
	trained   bool

	vectors    [][]float32
	tombstoned []bool
	idToHandle map[string]int
	handleToID map[int]string
	liveCount  int
}

// New constructs an empty Store for vectors of the given dimension.
func New(dimension int) *Store {
	return &Store{
		dimension:  dimension,
		idToHandle: make(map[string]int),
		handleToID: make(map[int]string),
	}
}

// Add inserts or replaces the vector for id. The index trains lazily: the
// first Add marks the store trained: subsequent Adds just append.
func (s *Store) Add(ctx context.Context, id string, vector Vector) error {
	if len(vector) != s.dimension {
		return fmt.Errorf("vectorstore: add %s: %w: dimension %d, want %d", id, store.ErrValidationFailed, len(vector), s.dimension)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.idToHandle[id]; exists {
		s.deleteLocked(id)
	}

	handle := len(s.vectors)
	cp := make([]float32, len(vector))
	copy(cp, vector)
	s.vectors = append(s.vectors, cp)
	s.tombstoned = append(s.tombstoned, false)
	s.idToHandle[id] = handle
	s.handleToID[handle] = id
	s.liveCount++
	s.trained = true

	return nil
}

// Search returns the k nearest live vectors to query by L2 distance,
// translated to external ids and converted to a similarity score
// 1/(1+distance). Tombstoned handles are skipped. Ties are broken by id
// ascending. Returns an empty slice (never an error) when the store holds
// no live vectors.
func (s *Store) Search(ctx context.Context, query Vector, k int) ([]Result, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf("vectorstore: search: %w: dimension %d, want %d", store.ErrValidationFailed, len(query), s.dimension)
	}
	if k <= 0 {
		return []Result{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		id       string
		distance float64
	}
	candidates := make([]scored, 0, s.liveCount)
	for handle, vec := range s.vectors {
		if s.tombstoned[handle] {
			continue
		}
		id, ok := s.handleToID[handle]
		if !ok {
			continue
		}
		candidates = append(candidates, scored{id: id, distance: l2Distance(query, vec)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].id < candidates[j].id
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	results := make([]Result, k)
	for i := 0; i < k; i++ {
		results[i] = Result{ID: candidates[i].id, Score: 1.0 / (1.0 + candidates[i].distance)}
	}
	return results, nil
}

// Delete removes id's external-id mapping, tombstoning its slot. The
// underlying vector slot stays allocated (and counts toward Total) until a
// Rebuild compacts the index. Returns [store.ErrNotFound] if id is unknown.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.idToHandle[id]; !exists {
		return fmt.Errorf("vectorstore: delete %s: %w", id, store.ErrNotFound)
	}
	s.deleteLocked(id)
	return nil
}

func (s *Store) deleteLocked(id string) {
	handle := s.idToHandle[id]
	s.tombstoned[handle] = true
	delete(s.idToHandle, id)
	delete(s.handleToID, handle)
	s.liveCount--
}

// Get is structurally unsupported: the index has no inverse embedding
// reconstruction. It always returns [store.ErrUnsupportedOperation].
func (s *Store) Get(ctx context.Context, id string) (Vector, error) {
	return nil, fmt.Errorf("vectorstore: get %s: %w", id, store.ErrUnsupportedOperation)
}

// Count returns the number of live (non-tombstoned) vectors and the total
// number of occupied slots, live or tombstoned.
func (s *Store) Count() (live, total int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveCount, len(s.vectors)
}

// TombstoneRatio returns the fraction of occupied slots that are
// tombstoned. Returns 0 for an empty store. Callers should invoke [Store.Rebuild]
// once this crosses [RebuildRatio].
func (s *Store) TombstoneRatio() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tombstoneRatioLocked()
}

func (s *Store) tombstoneRatioLocked() float64 {
	total := len(s.vectors)
	if total == 0 {
		return 0
	}
	return float64(total-s.liveCount) / float64(total)
}

// Rebuild compacts the index in place, discarding tombstoned slots and
// reassigning dense internal handles to the remaining live vectors. After
// Rebuild, Total equals Live and TombstoneRatio is 0.
func (s *Store) Rebuild(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ratio := s.tombstoneRatioLocked()
	newVectors := make([][]float32, 0, s.liveCount)
	newTombstoned := make([]bool, 0, s.liveCount)
	newIDToHandle := make(map[string]int, s.liveCount)
	newHandleToID := make(map[int]string, s.liveCount)

	for handle, vec := range s.vectors {
		if s.tombstoned[handle] {
			continue
		}
		id := s.handleToID[handle]
		newHandle := len(newVectors)
		newVectors = append(newVectors, vec)
		newTombstoned = append(newTombstoned, false)
		newIDToHandle[id] = newHandle
		newHandleToID[newHandle] = id
	}

	s.vectors = newVectors
	s.tombstoned = newTombstoned
	s.idToHandle = newIDToHandle
	s.handleToID = newHandleToID

	slog.Info("vectorstore: rebuilt", "live", len(newVectors), "reclaimed_ratio", ratio)
	return nil
}

// WarnIfTombstoneHeavy logs a single warning if the store's tombstone ratio
// has crossed [RebuildRatio]. It never triggers a Rebuild itself — that
// decision belongs to the caller that owns the maintenance schedule.
func (s *Store) WarnIfTombstoneHeavy() {
	ratio := s.TombstoneRatio()
	if ratio > RebuildRatio {
		live, total := s.Count()
		slog.Warn("vectorstore: tombstone ratio exceeds rebuild threshold", "ratio", ratio, "live", live, "total", total)
	}
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// persistedState is the combined on-disk representation: the raw vectors,
// the tombstone bitmap, and both id maps serialized together so that
// loading either succeeds completely or fails completely.
type persistedState struct {
	Dimension  int
	Trained    bool
	Vectors    [][]float32
	Tombstoned []bool
	IDToHandle map[string]int
	HandleToID map[int]string
}

// Save serializes the index and both id maps as a single gob-encoded blob.
func (s *Store) Save(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := persistedState{
		Dimension:  s.dimension,
		Trained:    s.trained,
		Vectors:    s.vectors,
		Tombstoned: s.tombstoned,
		IDToHandle: s.idToHandle,
		HandleToID: s.handleToID,
	}
	if err := gob.NewEncoder(w).Encode(state); err != nil {
		return fmt.Errorf("vectorstore: save: %w", err)
	}
	return nil
}

// Load replaces the Store's contents by decoding a blob written by Save.
// Decoding is a single gob.Decode call, so the index and both id maps are
// restored together: a truncated or corrupt blob fails before any field is
// applied.
func (s *Store) Load(r io.Reader) error {
	var state persistedState
	if err := gob.NewDecoder(r).Decode(&state); err != nil {
		return fmt.Errorf("vectorstore: load: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.dimension = state.Dimension
	s.trained = state.Trained
	s.vectors = state.Vectors
	s.tombstoned = state.Tombstoned
	s.idToHandle = state.IDToHandle
	s.handleToID = state.HandleToID
	s.liveCount = 0
	for _, t := range s.tombstoned {
		if !t {
			s.liveCount++
		}
	}
	return nil
}

// Bytes is a convenience wrapper around Save for callers that want an
// in-memory blob (e.g. to hand to a catalog row) rather than a file.
func (s *Store) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Save(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadBytes is the inverse of Bytes.
func (s *Store) LoadBytes(data []byte) error {
	return s.Load(bytes.NewReader(data))
}
