package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"aveline/internal/logging"
)

func TestListCreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "library")
	store := NewStore(dir, logging.NewNop())

	listing, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if listing.Count != 0 || len(listing.Books) != 0 || listing.TotalPages != 0 {
		t.Fatalf("expected empty listing, got %+v", listing)
	}
	if listing.Books == nil {
		t.Fatal("books must encode as an empty list")
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected library directory to be created: %v", err)
	}
}

func TestListSortsAndSkipsMalformedSidecars(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, logging.NewNop())

	for _, b := range []Book{
		{UniqueKey: "k2", Title: "zebra tales", FilePath: filepath.Join(dir, "z.epub")},
		{UniqueKey: "k1", Title: "Émile", FilePath: filepath.Join(dir, "e.epub")},
		{UniqueKey: "k3", Title: "Alpha", FilePath: filepath.Join(dir, "b.epub")},
		{UniqueKey: "k4", Title: "Alpha", FilePath: filepath.Join(dir, "a.epub")},
	} {
		if err := store.Write(b); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.epub.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "z.epub"), []byte("epub bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.json"), 0o755); err != nil {
		t.Fatal(err)
	}

	listing, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if listing.Count != 4 || len(listing.Books) != 4 {
		t.Fatalf("expected 4 books, got %d", listing.Count)
	}
	var keys []string
	for _, b := range listing.Books {
		keys = append(keys, b.UniqueKey)
	}
	want := []string{"k4", "k3", "k1", "k2"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("order = %v, want %v", keys, want)
		}
	}
}

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, nil)
	book := Book{
		UniqueKey:          "abc",
		Title:              "Dracula",
		Author:             "Bram Stoker",
		FallbackCoverColor: FallbackColor("abc"),
		FilePath:           filepath.Join(dir, "dracula.epub"),
		AddedAt:            time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := store.Write(book); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(SidecarPath(book.FilePath))
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	if data[0] != '{' || data[1] != '\n' {
		t.Fatalf("expected indented json, got %q", data[:10])
	}

	got, err := store.Read(SidecarPath(book.FilePath))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !got.AddedAt.Equal(book.AddedAt) {
		t.Fatalf("addedAt = %v, want %v", got.AddedAt, book.AddedAt)
	}
	got.AddedAt = book.AddedAt
	if got != book {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, book)
	}
}

func TestWriteRequiresFilePath(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	if err := store.Write(Book{UniqueKey: "x"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, nil)
	if err := store.Write(Book{UniqueKey: "key-1", Title: "One", FilePath: filepath.Join(dir, "one.epub")}); err != nil {
		t.Fatal(err)
	}

	book, err := store.Find(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if book.Title != "One" {
		t.Fatalf("unexpected book %+v", book)
	}
	if _, err := store.Find(context.Background(), "missing"); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("expected ErrBookNotFound, got %v", err)
	}
	if _, err := store.Find(context.Background(), " "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestFallbackColorDeterministic(t *testing.T) {
	a := FallbackColor("same-key")
	if a != FallbackColor("same-key") {
		t.Fatal("colour must be stable for a key")
	}
	if len(a) != 7 || a[0] != '#' {
		t.Fatalf("unexpected colour %q", a)
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := map[string]string{
		"/books/moby_dick-1851.epub": "Moby Dick 1851",
		"the.great.gatsby.EPUB":      "The Great Gatsby",
		"___.epub":                   "___.epub",
	}
	for in, want := range tests {
		if got := deriveTitle(in); got != want {
			t.Errorf("deriveTitle(%q) = %q, want %q", in, got, want)
		}
	}
}
