// Package memstore is the memory store, keyed by strictly increasing
// timestamp-derived ids (not by content): it coordinates
// the vector index and the metadata catalog behind store/retrieve/get/
// update_importance/delete, applying time-decayed recall scoring and a
// retention-classified expiry policy on top.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/knowlode/knowlode/internal/store"
	"github.com/knowlode/knowlode/internal/store/catalog"
	"github.com/knowlode/knowlode/internal/store/vectorstore"
	"github.com/knowlode/knowlode/pkg/embedding"
)

// defaultDecayFactor is the per-day recall-score decay applied when a
// retrieval asks for time_decay: a memory loses 1% of its vector score per
// day elapsed since it was stored.
const defaultDecayFactor = 0.99

// RetentionConfig names the sweep windows for each retention tier. Permanent
// is carried for symmetry with the other two tiers but is never consulted —
// a permanent row has no TTL.
type RetentionConfig struct {
	Permanent time.Duration
	Temporary time.Duration
	Casual    time.Duration
}

// DefaultRetentionConfig matches the spec's 7-day/1-day sweep windows.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		Temporary: catalog.TemporaryTTL,
		Casual:    catalog.CasualChatTTL,
	}
}

// MemoryItem is a single stored memory, as returned by Retrieve/Get.
type MemoryItem struct {
	ID          string
	Content     string
	Timestamp   time.Time
	Importance  float64
	Emotion     string
	Category    string
	Tags        []string
	Metadata    map[string]any
	AccessCount int
	Score       float64
}

// StoreRequest is the input to Store. RetentionType defaults to
// [catalog.RetentionPermanent] if left zero — a caller storing through this
// low-level entrypoint directly is assumed to want the memory kept; callers
// ingesting raw conversation turns should run them through a
// RetentionClassifier first and set RetentionType explicitly.
type StoreRequest struct {
	Content       string
	Importance    float64
	Emotion       string
	Category      string
	Tags          []string
	Entities      []string
	Metadata      map[string]any
	DocType       catalog.DocType
	Source        string
	RetentionType catalog.RetentionType
}

// RetrieveFilters narrows Retrieve results by the category/tags carried in
// a row's metadata — distinct from [catalog.Filter], which filters on
// catalog-native fields (doc_type, status, timestamp bounds).
type RetrieveFilters struct {
	Category string
	Tags     []string
}

// Store coordinates the vector index and metadata catalog. The zero value is
// not usable; build one with [New].
type Store struct {
	vectors  *vectorstore.Store
	catalog  catalog.Catalog
	embedder embedding.Provider

	decayFactor float64
	retention   RetentionConfig
	clock       func() time.Time

	idMu   sync.Mutex
	lastID int64
}

// Option configures a Store constructed by [New].
type Option func(*Store)

// WithDecayFactor overrides the default 0.99-per-day recall decay.
func WithDecayFactor(factor float64) Option {
	return func(s *Store) { s.decayFactor = factor }
}

// WithRetentionConfig overrides the default TTL windows.
func WithRetentionConfig(cfg RetentionConfig) Option {
	return func(s *Store) { s.retention = cfg }
}

// WithClock overrides time.Now, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// New constructs a Store.
func New(vectors *vectorstore.Store, cat catalog.Catalog, embedder embedding.Provider, opts ...Option) *Store {
	s := &Store{
		vectors:     vectors,
		catalog:     cat,
		embedder:    embedder,
		decayFactor: defaultDecayFactor,
		retention:   DefaultRetentionConfig(),
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store embeds and persists a new memory, returning its id and whether it
// was actually persisted to the vector index. A casual_chat-classified
// request ([ShouldStore] returns false) skips embedding and the vector
// insert entirely — stored=false — but still writes a transient catalog
// row (StoredInVector=false), so the 1-day casual_chat sweep window still
// has a row to expire; nothing is exposed to retrieval since Retrieve only
// ever finds rows via a vector-index hit. On a vector-store write failure
// the catalog row is still written with StoredInVector=false (degraded but
// present, stored=false); on a catalog write failure, any vector insert
// already made is rolled back.
func (s *Store) Store(ctx context.Context, req StoreRequest) (id string, stored bool, err error) {
	if strings.TrimSpace(req.Content) == "" {
		return "", false, fmt.Errorf("memstore: store: %w: empty content", store.ErrValidationFailed)
	}
	if !catalog.ValidateImportance(req.Importance) {
		return "", false, fmt.Errorf("memstore: store: %w: importance out of range", store.ErrValidationFailed)
	}

	retentionType := req.RetentionType
	if retentionType == "" {
		retentionType = catalog.RetentionPermanent
	}

	now := s.clock()
	s.idMu.Lock()
	seq := now.UnixNano()
	if seq <= s.lastID {
		seq = s.lastID + 1
	}
	s.lastID = seq
	s.idMu.Unlock()
	id = fmt.Sprintf("mem_%d", seq)

	storedInVector := false
	if ShouldStore(retentionType) {
		embedded, embedErr := s.embedder.Embed(ctx, req.Content)
		if embedErr != nil {
			return "", false, fmt.Errorf("memstore: store %s: embed: %w", id, embedErr)
		}
		if err := s.vectors.Add(ctx, id, embedded.Vector); err != nil {
			slog.Warn("memstore: vector insert failed, persisting catalog row without vector presence", "id", id, "error", err)
		} else {
			storedInVector = true
		}
	} else {
		slog.Debug("memstore: casual_chat classification, skipping vector persistence", "id", id)
	}

	docType := req.DocType
	if docType == "" {
		docType = catalog.DocKnowledge
	}

	metadata := map[string]any{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	if req.Emotion != "" {
		metadata["emotion"] = req.Emotion
	}
	if req.Category != "" {
		metadata["category"] = req.Category
	}
	if len(req.Tags) > 0 {
		metadata["tags"] = req.Tags
	}

	row := catalog.Row{
		ID:             id,
		Content:        req.Content,
		DocType:        docType,
		Source:         req.Source,
		Timestamp:      now,
		Entities:       req.Entities,
		Importance:     req.Importance,
		RetentionType:  retentionType,
		Metadata:       metadata,
		StoredInVector: storedInVector,
		StoredInGraph:  false,
		Status:         catalog.StatusActive,
	}

	if err := s.catalog.Put(ctx, row); err != nil {
		if storedInVector {
			if delErr := s.vectors.Delete(ctx, id); delErr != nil && !errors.Is(delErr, store.ErrNotFound) {
				slog.Warn("memstore: rollback vector insert failed", "id", id, "error", delErr)
			}
		}
		return "", false, fmt.Errorf("memstore: store %s: catalog put: %w", id, err)
	}

	return id, storedInVector, nil
}

// Retrieve embeds query, searches the vector index for 2*topK candidates,
// bulk-fetches their catalog rows, applies filters/importance threshold,
// scores, and returns the top topK. Any backend failure degrades to an
// empty result rather than propagating an error — retrieval is
// best-effort by contract.
func (s *Store) Retrieve(ctx context.Context, query string, topK int, timeDecay bool, importanceThreshold float64, filters RetrieveFilters) []MemoryItem {
	if strings.TrimSpace(query) == "" {
		return nil
	}

	embedded, err := s.embedder.Embed(ctx, query)
	if err != nil {
		slog.Warn("memstore: retrieve: embed query failed", "error", err)
		return nil
	}

	hits, err := s.vectors.Search(ctx, embedded.Vector, topK*2)
	if err != nil {
		slog.Warn("memstore: retrieve: vector search failed", "error", err)
		return nil
	}
	if len(hits) == 0 {
		return nil
	}

	ids := make([]string, len(hits))
	scoreByID := make(map[string]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scoreByID[h.ID] = h.Score
	}

	rows, err := s.catalog.GetMany(ctx, ids)
	if err != nil {
		slog.Warn("memstore: retrieve: catalog lookup failed", "error", err)
		return nil
	}

	now := s.clock()
	candidates := make([]MemoryItem, 0, len(rows))
	for _, row := range rows {
		if row.Status != catalog.StatusActive {
			continue
		}
		if row.Importance < importanceThreshold {
			continue
		}
		if !matchesRetrieveFilters(row, filters) {
			continue
		}

		decay := 1.0
		if timeDecay {
			days := now.Sub(row.Timestamp) / (24 * time.Hour)
			decay = math.Pow(s.decayFactor, float64(days))
		}
		score := scoreByID[row.ID] * decay * (0.5 + 0.5*row.Importance)

		candidates = append(candidates, rowToItem(row, score))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	for _, item := range candidates {
		if err := s.catalog.RecordAccess(ctx, item.ID, now); err != nil {
			slog.Debug("memstore: record access failed, continuing", "id", item.ID, "error", err)
		}
	}

	return candidates
}

func matchesRetrieveFilters(row catalog.Row, filters RetrieveFilters) bool {
	if filters.Category != "" {
		category, _ := row.Metadata["category"].(string)
		if category != filters.Category {
			return false
		}
	}
	if len(filters.Tags) > 0 {
		rowTags := tagSet(row.Metadata["tags"])
		matched := false
		for _, want := range filters.Tags {
			if _, ok := rowTags[want]; ok {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func tagSet(raw any) map[string]struct{} {
	out := map[string]struct{}{}
	switch v := raw.(type) {
	case []string:
		for _, t := range v {
			out[t] = struct{}{}
		}
	case []any:
		for _, t := range v {
			if s, ok := t.(string); ok {
				out[s] = struct{}{}
			}
		}
	}
	return out
}

func rowToItem(row catalog.Row, score float64) MemoryItem {
	emotion, _ := row.Metadata["emotion"].(string)
	category, _ := row.Metadata["category"].(string)
	tags := tagSet(row.Metadata["tags"])
	tagList := make([]string, 0, len(tags))
	for t := range tags {
		tagList = append(tagList, t)
	}
	sort.Strings(tagList)

	return MemoryItem{
		ID:          row.ID,
		Content:     row.Content,
		Timestamp:   row.Timestamp,
		Importance:  row.Importance,
		Emotion:     emotion,
		Category:    category,
		Tags:        tagList,
		Metadata:    row.Metadata,
		AccessCount: row.AccessCount,
		Score:       score,
	}
}

// Get fetches a single memory by id and records an access against it.
// Returns store.ErrNotFound (via errors.Is) if id is absent.
func (s *Store) Get(ctx context.Context, id string) (MemoryItem, error) {
	row, err := s.catalog.Get(ctx, id)
	if err != nil {
		return MemoryItem{}, fmt.Errorf("memstore: get %s: %w", id, err)
	}

	if err := s.catalog.RecordAccess(ctx, id, s.clock()); err != nil {
		slog.Debug("memstore: record access failed, continuing", "id", id, "error", err)
	}
	return rowToItem(row, 0), nil
}

// UpdateImportance validates importance and updates the catalog row.
func (s *Store) UpdateImportance(ctx context.Context, id string, importance float64) error {
	if !catalog.ValidateImportance(importance) {
		return fmt.Errorf("memstore: update importance %s: %w", id, store.ErrValidationFailed)
	}
	return s.catalog.UpdateImportance(ctx, id, importance)
}

// Delete removes id from both the vector index and the catalog. Idempotent:
// deleting an id that is already gone from either store is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.vectors.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("memstore: delete %s: vector: %w", id, err)
	}
	if err := s.catalog.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("memstore: delete %s: catalog: %w", id, err)
	}
	return nil
}

// TTLFor returns the sweep window for retentionType and whether the tier
// expires at all (false for permanent).
func (s *Store) TTLFor(retentionType catalog.RetentionType) (time.Duration, bool) {
	switch retentionType {
	case catalog.RetentionTemporary:
		return s.retention.Temporary, true
	case catalog.RetentionCasualChat:
		return s.retention.Casual, true
	default:
		return 0, false
	}
}

// Sweep deletes every row past its retention TTL, as of now. It is the
// external sweeper job the spec's lifecycle state machine names
// ("expired" rows are removed by a sweeper, not by Retrieve/Get).
func (s *Store) Sweep(ctx context.Context) (int, error) {
	ids, err := s.catalog.ExpiredBefore(ctx, s.clock())
	if err != nil {
		return 0, fmt.Errorf("memstore: sweep: %w", err)
	}
	swept := 0
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			slog.Warn("memstore: sweep: delete failed", "id", id, "error", err)
			continue
		}
		swept++
	}
	return swept, nil
}
