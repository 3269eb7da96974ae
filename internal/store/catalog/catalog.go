// Package catalog implements the metadata catalog: a row store keyed by
// document ID, indexed on doc type, status, timestamp, and storage-layer
// presence flags. It is the authoritative source for "does this document
// exist" — vector and graph stores hold only a derived projection.
package catalog

import (
	"context"
	"time"
)

// DocType is the closed document-type enumeration.
type DocType string

const (
	DocKnowledge    DocType = "knowledge"
	DocConversation DocType = "conversation"
	DocWorkLog      DocType = "work_log"
	DocLifeRecord   DocType = "life_record"
)

// RetentionType is the closed retention-policy enumeration.
type RetentionType string

const (
	RetentionPermanent  RetentionType = "permanent"
	RetentionTemporary  RetentionType = "temporary"
	RetentionCasualChat RetentionType = "casual_chat"
)

// Status is the soft-delete lifecycle state of a catalog row.
type Status string

const (
	StatusActive  Status = "active"
	StatusDeleted Status = "deleted"
)

// Row is a metadata catalog entry. It mirrors the fields of a document plus
// storage-presence flags and soft-delete status.
type Row struct {
	ID            string
	Content       string
	DocType       DocType
	Source        string
	Timestamp     time.Time
	Entities      []string
	Importance    float64
	RetentionType RetentionType
	Metadata      map[string]any

	AccessCount int
	LastAccess  time.Time

	StoredInVector bool
	StoredInGraph  bool
	Status         Status
}

// Filter narrows [Catalog.List] and [Catalog.Query] results. Zero-valued
// fields impose no constraint.
type Filter struct {
	DocType DocType
	Status  Status
	After   time.Time
	Before  time.Time
}

// Catalog is the uniform contract both backends (memory, Postgres)
// implement. All methods are safe for concurrent use.
type Catalog interface {
	// Put creates or completely replaces a row.
	Put(ctx context.Context, row Row) error

	// Get retrieves a row by ID, regardless of status. Returns
	// [store.ErrNotFound] if absent.
	Get(ctx context.Context, id string) (Row, error)

	// GetMany bulk-fetches rows by ID. Missing IDs are silently omitted
	// from the result — callers distinguish "not found" from the result
	// length, not an error.
	GetMany(ctx context.Context, ids []string) ([]Row, error)

	// Query returns rows matching filter, most recent first.
	Query(ctx context.Context, filter Filter) ([]Row, error)

	// UpdateStorageFlags sets StoredInVector/StoredInGraph for id. Returns
	// [store.ErrNotFound] if absent.
	UpdateStorageFlags(ctx context.Context, id string, storedInVector, storedInGraph bool) error

	// UpdateImportance sets Importance for id. Returns
	// [store.ErrValidationFailed] if importance is outside [0,1] and
	// [store.ErrNotFound] if id is absent.
	UpdateImportance(ctx context.Context, id string, importance float64) error

	// RecordAccess increments AccessCount and sets LastAccess to now for id.
	// Best-effort: a missing id is not an error.
	RecordAccess(ctx context.Context, id string, now time.Time) error

	// SoftDelete marks a row deleted without removing it. Idempotent.
	SoftDelete(ctx context.Context, id string) error

	// Delete removes a row permanently. Idempotent.
	Delete(ctx context.Context, id string) error

	// ExpiredBefore returns IDs of rows whose RetentionType is temporary or
	// casual_chat and whose Timestamp is older than cutoff for that
	// retention tier — the TTL sweep's candidate list.
	ExpiredBefore(ctx context.Context, now time.Time) ([]string, error)

	// Count returns the number of non-deleted rows.
	Count(ctx context.Context) (int, error)
}

// TemporaryTTL and CasualChatTTL are the sweep windows named in the
// retention lifecycle: temporary documents are swept after 7 days,
// casual_chat documents after 1 day. Permanent documents are never swept.
const (
	TemporaryTTL  = 7 * 24 * time.Hour
	CasualChatTTL = 24 * time.Hour
)

// ValidateImportance reports whether importance lies in the closed [0,1]
// range the store/retrieve contract requires.
func ValidateImportance(importance float64) bool {
	return importance >= 0 && importance <= 1
}
