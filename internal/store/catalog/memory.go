package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/knowlode/knowlode/internal/store"
)

var _ Catalog = (*MemCatalog)(nil)

// MemCatalog is a thread-safe, in-memory [Catalog]. Suitable for tests and
// single-process deployments without Postgres.
type MemCatalog struct {
	mu   sync.RWMutex
	rows map[string]Row
}

// NewMemCatalog returns an initialised MemCatalog.
func NewMemCatalog() *MemCatalog {
	return &MemCatalog{rows: make(map[string]Row)}
}

func (c *MemCatalog) Put(ctx context.Context, row Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if row.Status == "" {
		row.Status = StatusActive
	}
	if row.Metadata == nil {
		row.Metadata = map[string]any{}
	}
	c.rows[row.ID] = row
	return nil
}

func (c *MemCatalog) Get(ctx context.Context, id string) (Row, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rows[id]
	if !ok {
		return Row{}, fmt.Errorf("catalog: get %s: %w", id, store.ErrNotFound)
	}
	return r, nil
}

func (c *MemCatalog) GetMany(ctx context.Context, ids []string) ([]Row, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Row, 0, len(ids))
	for _, id := range ids {
		if r, ok := c.rows[id]; ok {
			result = append(result, r)
		}
	}
	return result, nil
}

func (c *MemCatalog) Query(ctx context.Context, filter Filter) ([]Row, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []Row
	for _, r := range c.rows {
		if !matchesFilter(r, filter) {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	if result == nil {
		result = []Row{}
	}
	return result, nil
}

func matchesFilter(r Row, f Filter) bool {
	if f.DocType != "" && r.DocType != f.DocType {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if !f.After.IsZero() && r.Timestamp.Before(f.After) {
		return false
	}
	if !f.Before.IsZero() && r.Timestamp.After(f.Before) {
		return false
	}
	return true
}

func (c *MemCatalog) UpdateStorageFlags(ctx context.Context, id string, storedInVector, storedInGraph bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rows[id]
	if !ok {
		return fmt.Errorf("catalog: update storage flags %s: %w", id, store.ErrNotFound)
	}
	r.StoredInVector = storedInVector
	r.StoredInGraph = storedInGraph
	c.rows[id] = r
	return nil
}

func (c *MemCatalog) UpdateImportance(ctx context.Context, id string, importance float64) error {
	if !ValidateImportance(importance) {
		return fmt.Errorf("catalog: update importance %s: %w: importance %v outside [0,1]", id, store.ErrValidationFailed, importance)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rows[id]
	if !ok {
		return fmt.Errorf("catalog: update importance %s: %w", id, store.ErrNotFound)
	}
	r.Importance = importance
	c.rows[id] = r
	return nil
}

func (c *MemCatalog) RecordAccess(ctx context.Context, id string, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rows[id]
	if !ok {
		return nil
	}
	r.AccessCount++
	r.LastAccess = now
	c.rows[id] = r
	return nil
}

func (c *MemCatalog) SoftDelete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rows[id]
	if !ok {
		return nil
	}
	r.Status = StatusDeleted
	c.rows[id] = r
	return nil
}

func (c *MemCatalog) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rows, id)
	return nil
}

func (c *MemCatalog) ExpiredBefore(ctx context.Context, now time.Time) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var ids []string
	for id, r := range c.rows {
		if r.Status == StatusDeleted {
			continue
		}
		switch r.RetentionType {
		case RetentionTemporary:
			if now.Sub(r.Timestamp) >= TemporaryTTL {
				ids = append(ids, id)
			}
		case RetentionCasualChat:
			if now.Sub(r.Timestamp) >= CasualChatTTL {
				ids = append(ids, id)
			}
		}
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (c *MemCatalog) Count(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, r := range c.rows {
		if r.Status != StatusDeleted {
			n++
		}
	}
	return n, nil
}
