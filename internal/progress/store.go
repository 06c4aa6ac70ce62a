// Package progress remembers where the reader left off in each book.
//
// Records are keyed by the library unique key and hold the last location
// the reading client reported, plus the table of contents chapter that
// location falls in. The database is auxiliary: the library listing never
// reads it and removing it only forgets reading positions.
package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Record is the last reported reading location for one book.
type Record struct {
	BookKey      string    `json:"bookKey"`
	Href         string    `json:"href"`
	CFI          string    `json:"cfi,omitempty"`
	ChapterID    string    `json:"chapterId,omitempty"`
	ChapterLabel string    `json:"chapterLabel,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Store persists records in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the progress database at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure database directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save inserts or replaces the record for rec.BookKey. A zero UpdatedAt is
// set to the current time.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.BookKey) == "" {
		return errors.New("progress: book key is required")
	}
	if strings.TrimSpace(rec.Href) == "" {
		return errors.New("progress: href is required")
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reading_progress (book_key, href, cfi, chapter_id, chapter_label, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(book_key) DO UPDATE SET
            href = excluded.href,
            cfi = excluded.cfi,
            chapter_id = excluded.chapter_id,
            chapter_label = excluded.chapter_label,
            updated_at = excluded.updated_at`,
		rec.BookKey,
		rec.Href,
		nullableString(rec.CFI),
		nullableString(rec.ChapterID),
		nullableString(rec.ChapterLabel),
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// Get returns the record for key, or nil when none was saved.
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT book_key, href, cfi, chapter_id, chapter_label, updated_at
         FROM reading_progress WHERE book_key = ?`, key)

	var (
		rec          Record
		cfi          sql.NullString
		chapterID    sql.NullString
		chapterLabel sql.NullString
		updatedAt    string
	)
	err := row.Scan(&rec.BookKey, &rec.Href, &cfi, &chapterID, &chapterLabel, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	rec.CFI = cfi.String
	rec.ChapterID = chapterID.String
	rec.ChapterLabel = chapterLabel.String
	if ts, parseErr := time.Parse(time.RFC3339Nano, updatedAt); parseErr == nil {
		rec.UpdatedAt = ts
	}
	return &rec, nil
}

// Count returns the number of books with a saved position.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM reading_progress").Scan(&n); err != nil {
		return 0, fmt.Errorf("count progress: %w", err)
	}
	return n, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
