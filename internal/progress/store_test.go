package progress_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"aveline/internal/progress"
)

func openStore(t *testing.T) *progress.Store {
	t.Helper()
	store, err := progress.Open(filepath.Join(t.TempDir(), "nested", "progress.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := openStore(t)
	rec, err := store.Get(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
}

func TestSaveUpserts(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	first := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	if err := store.Save(ctx, progress.Record{
		BookKey:   "book-1",
		Href:      "ch1.xhtml",
		CFI:       "epubcfi(/6/2!/4/2)",
		ChapterID: "np-1",
		UpdatedAt: first,
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, progress.Record{
		BookKey:   "book-1",
		Href:      "ch2.xhtml",
		UpdatedAt: first.Add(time.Hour),
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, err := store.Get(ctx, "book-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec == nil || rec.Href != "ch2.xhtml" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.CFI != "" || rec.ChapterID != "" {
		t.Fatalf("stale fields kept: %+v", rec)
	}
	if !rec.UpdatedAt.Equal(first.Add(time.Hour)) {
		t.Fatalf("updatedAt = %v", rec.UpdatedAt)
	}
	n, err := store.Count(ctx)
	if err != nil || n != 1 {
		t.Fatalf("count = %d, err = %v", n, err)
	}
}

func TestSaveValidates(t *testing.T) {
	store := openStore(t)
	if err := store.Save(context.Background(), progress.Record{Href: "a"}); err == nil {
		t.Fatal("expected error for missing key")
	}
	if err := store.Save(context.Background(), progress.Record{BookKey: "a"}); err == nil {
		t.Fatal("expected error for missing href")
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.db")
	store, err := progress.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(context.Background(), progress.Record{BookKey: "k", Href: "x.xhtml"}); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	reopened, err := progress.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	rec, err := reopened.Get(context.Background(), "k")
	if err != nil || rec == nil || rec.Href != "x.xhtml" {
		t.Fatalf("record lost after reopen: %+v %v", rec, err)
	}
}
