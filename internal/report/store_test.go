package report

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
)

// setupTestStore connects to the Postgres instance named by TEST_DATABASE_URL
// and runs migrations. Tests are skipped when no database is available.
func setupTestStore(t *testing.T) (*Store, context.Context) {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("skipping: TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		t.Skipf("skipping: Postgres not available: %v", err)
	}

	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	// Start from a clean table for each test.
	if _, err := db.ExecContext(ctx, "TRUNCATE reports"); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	t.Cleanup(func() {
		db.ExecContext(ctx, "TRUNCATE reports")
		db.Close()
	})

	return NewStore(db), ctx
}

func TestAppend_DuplicatePairsMakeSeparateRecords(t *testing.T) {
	store, ctx := setupTestStore(t)

	rec := &Record{ReporterID: "u-1", ReportedID: "u-2", SessionID: "s-1"}
	if err := store.Append(ctx, rec); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := store.Append(ctx, rec); err != nil {
		t.Fatalf("second append: %v", err)
	}

	count, err := store.CountRecent(ctx, "u-2", time.Hour)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2 independent records", count)
	}
}

func TestAppend_RejectsEmptyIDs(t *testing.T) {
	store := NewStore(nil)

	err := store.Append(context.Background(), &Record{ReporterID: "", ReportedID: "u-2"})
	if err == nil {
		t.Fatal("expected error for missing reporter id")
	}
}

func TestCountRecent_WindowExcludesOldRecords(t *testing.T) {
	store, ctx := setupTestStore(t)

	old := &Record{
		ReporterID: "u-1",
		ReportedID: "u-2",
		SessionID:  "s-1",
		CreatedAt:  time.Now().UTC().Add(-48 * time.Hour),
	}
	if err := store.Append(ctx, old); err != nil {
		t.Fatalf("append: %v", err)
	}

	count, err := store.CountRecent(ctx, "u-2", 24*time.Hour)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0 inside 24h window", count)
	}
}

func TestRecent_NewestFirst(t *testing.T) {
	store, ctx := setupTestStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i, reporter := range []string{"u-1", "u-3", "u-5"} {
		rec := &Record{
			ReporterID: reporter,
			ReportedID: "u-2",
			SessionID:  "s-1",
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("append %s: %v", reporter, err)
		}
	}

	recs, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if recs[0].ReporterID != "u-5" {
		t.Errorf("newest record reporter = %s, want u-5", recs[0].ReporterID)
	}
}
