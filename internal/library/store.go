package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"aveline/internal/logging"
)

// SidecarExt is appended to a book's file name to form its metadata path.
const SidecarExt = ".json"

// Store reads and writes sidecar files in the library directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore returns a store rooted at dir. The directory is created lazily.
func NewStore(dir string, logger *slog.Logger) *Store {
	return &Store{
		dir:    dir,
		logger: logging.NewComponentLogger(logger, "library"),
	}
}

// Dir returns the library directory.
func (s *Store) Dir() string {
	return s.dir
}

// SidecarPath returns the metadata path for a book stored at bookPath.
func SidecarPath(bookPath string) string {
	return bookPath + SidecarExt
}

// List reads every sidecar in the library directory. A missing directory is
// created and reported as an empty library. Sidecars that fail to parse are
// skipped with a warning.
func (s *Store) List(ctx context.Context) (Listing, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return Listing{}, fmt.Errorf("create library directory: %w", err)
		}
		return Listing{Books: []Book{}}, nil
	}
	if err != nil {
		return Listing{}, fmt.Errorf("read library directory: %w", err)
	}

	books := make([]Book, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return Listing{}, err
		}
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), SidecarExt) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		book, err := s.Read(path)
		if err != nil {
			logging.WarnWithContext(s.logger, "skipping unreadable sidecar", "sidecar_invalid",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "re-import the book or remove the sidecar"),
				logging.String(logging.FieldImpact, "book is missing from the library listing"),
			)
			continue
		}
		books = append(books, book)
	}

	sortBooks(books)
	return Listing{Books: books, Count: len(books)}, nil
}

// sortBooks orders by title using root-locale collation, breaking ties by path.
func sortBooks(books []Book) {
	c := collate.New(language.Und, collate.IgnoreCase)
	sort.SliceStable(books, func(i, j int) bool {
		if cmp := c.CompareString(books[i].Title, books[j].Title); cmp != 0 {
			return cmp < 0
		}
		return books[i].FilePath < books[j].FilePath
	})
}

// Read parses one sidecar file.
func (s *Store) Read(path string) (Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Book{}, err
	}
	var book Book
	if err := json.Unmarshal(data, &book); err != nil {
		return Book{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return book, nil
}

// Write stores book as indented JSON next to its EPUB, replacing any earlier
// sidecar for the same file name.
func (s *Store) Write(book Book) error {
	if book.FilePath == "" {
		return fmt.Errorf("write sidecar: %w: book has no file path", ErrInvalidInput)
	}
	data, err := json.MarshalIndent(book, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}
	if err := os.WriteFile(SidecarPath(book.FilePath), data, 0o644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	return nil
}

// Find returns the book with the given unique key.
func (s *Store) Find(ctx context.Context, key string) (Book, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Book{}, fmt.Errorf("%w: book key is required", ErrInvalidInput)
	}
	listing, err := s.List(ctx)
	if err != nil {
		return Book{}, err
	}
	for _, book := range listing.Books {
		if book.UniqueKey == key {
			return book, nil
		}
	}
	return Book{}, fmt.Errorf("%w: %s", ErrBookNotFound, key)
}
