package catalog_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/knowlode/knowlode/internal/store/catalog"
)

const testEmbeddingDim = 4

// testDSN returns the test database DSN from the environment, or skips the
// test if KNOWLODE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("KNOWLODE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("KNOWLODE_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestCatalog creates a fresh [catalog.PostgresCatalog] with a clean schema.
func newTestCatalog(t *testing.T) *catalog.PostgresCatalog {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS documents CASCADE`); err != nil {
		t.Fatalf("drop schema: %v", err)
	}
	if err := catalog.MigratePostgres(ctx, pool, testEmbeddingDim); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return catalog.NewPostgresCatalog(pool)
}

func TestPostgresCatalog_PutAndGet(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	row := catalog.Row{
		ID:            "d1",
		Content:       "quarterly planning notes",
		DocType:       catalog.DocWorkLog,
		Timestamp:     time.Now().Truncate(time.Microsecond),
		Importance:    0.8,
		RetentionType: catalog.RetentionPermanent,
		Metadata:      map[string]any{"project": "alpha"},
		Entities:      []string{"e1", "e2"},
	}
	if err := c.Put(ctx, row); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := c.Get(ctx, "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != row.Content || got.Importance != 0.8 || got.Metadata["project"] != "alpha" {
		t.Fatalf("got = %#v", got)
	}
	if len(got.Entities) != 2 {
		t.Fatalf("entities = %#v, want 2", got.Entities)
	}
}

func TestPostgresCatalog_QueryByDocType(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	_ = c.Put(ctx, catalog.Row{ID: "k1", DocType: catalog.DocKnowledge, Timestamp: time.Now()})
	_ = c.Put(ctx, catalog.Row{ID: "c1", DocType: catalog.DocConversation, Timestamp: time.Now()})

	rows, err := c.Query(ctx, catalog.Filter{DocType: catalog.DocKnowledge})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "k1" {
		t.Fatalf("rows = %#v, want single hit k1", rows)
	}
}

func TestPostgresCatalog_StorageFlagsAndImportance(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	_ = c.Put(ctx, catalog.Row{ID: "d1", Timestamp: time.Now(), Importance: 0.5})

	if err := c.UpdateStorageFlags(ctx, "d1", true, true); err != nil {
		t.Fatalf("update storage flags: %v", err)
	}
	if err := c.UpdateImportance(ctx, "d1", 0.9); err != nil {
		t.Fatalf("update importance: %v", err)
	}

	got, _ := c.Get(ctx, "d1")
	if !got.StoredInVector || !got.StoredInGraph || got.Importance != 0.9 {
		t.Fatalf("got = %#v", got)
	}
}

func TestPostgresCatalog_SoftDeleteAndDelete(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	_ = c.Put(ctx, catalog.Row{ID: "d1", Timestamp: time.Now()})

	if err := c.SoftDelete(ctx, "d1"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	n, _ := c.Count(ctx)
	if n != 0 {
		t.Fatalf("count after soft delete = %d, want 0", n)
	}

	if err := c.Delete(ctx, "d1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestPostgresCatalog_ExpiredBefore(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	now := time.Now()

	_ = c.Put(ctx, catalog.Row{ID: "temp-old", Timestamp: now.Add(-8 * 24 * time.Hour), RetentionType: catalog.RetentionTemporary})
	_ = c.Put(ctx, catalog.Row{ID: "temp-fresh", Timestamp: now.Add(-2 * 24 * time.Hour), RetentionType: catalog.RetentionTemporary})

	expired, err := c.ExpiredBefore(ctx, now)
	if err != nil {
		t.Fatalf("expired before: %v", err)
	}
	if len(expired) != 1 || expired[0] != "temp-old" {
		t.Fatalf("expired = %#v, want [temp-old]", expired)
	}
}
