package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"aveline/internal/epub"
	"aveline/internal/fileutil"
	"aveline/internal/logging"
)

// Result is the structured outcome of one import, returned to clients as-is.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Book    *Book  `json:"metadata,omitempty"`
	Source  string `json:"source,omitempty"`
}

// CoverSource finds a cover for an EPUB archive.
type CoverSource interface {
	Extract(ctx context.Context, archivePath string) epub.Cover
}

// Importer copies EPUB files into the library and records their metadata.
type Importer struct {
	store  *Store
	covers CoverSource
	logger *slog.Logger
	now    func() time.Time
	newKey func() string
}

// NewImporter wires an importer to the store and cover source.
func NewImporter(store *Store, covers CoverSource, logger *slog.Logger) *Importer {
	return &Importer{
		store:  store,
		covers: covers,
		logger: logging.NewComponentLogger(logger, "importer"),
		now:    time.Now,
		newKey: uuid.NewString,
	}
}

// Validate checks sourcePath without touching the filesystem beyond a stat.
func Validate(sourcePath string) error {
	if strings.TrimSpace(sourcePath) == "" {
		return fmt.Errorf("%w: source path is required", ErrInvalidInput)
	}
	if !strings.EqualFold(filepath.Ext(sourcePath), ".epub") {
		return fmt.Errorf("%w: %s is not an .epub file", ErrInvalidInput, filepath.Base(sourcePath))
	}
	info, err := os.Stat(sourcePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s does not exist", ErrInvalidInput, sourcePath)
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInvalidInput, sourcePath)
	}
	return nil
}

// Import adds the EPUB at sourcePath to the library. The returned Result is
// always populated; err wraps ErrInvalidInput or ErrImportFailed on failure.
func (im *Importer) Import(ctx context.Context, sourcePath string) (Result, error) {
	if err := Validate(sourcePath); err != nil {
		return Result{Success: false, Message: invalidMessage(err), Source: sourcePath}, err
	}

	book, err := im.importFile(ctx, sourcePath)
	if err != nil {
		logging.WarnWithContext(im.logger, "book import failed", "import_failed",
			logging.String(logging.FieldBookPath, sourcePath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the file is a valid EPUB archive"),
			logging.String(logging.FieldImpact, "book was not added to the library"),
		)
		return Result{Success: false, Message: failureMessage(err), Source: sourcePath}, fmt.Errorf("%w: %w", ErrImportFailed, err)
	}

	im.logger.Info("book imported",
		logging.String(logging.FieldBookKey, book.UniqueKey),
		logging.String(logging.FieldBookPath, book.FilePath),
		logging.String("title", book.Title),
		logging.Bool("cover", book.HasCover()),
		logging.String(logging.FieldEventType, "book_imported"),
	)
	return Result{
		Success: true,
		Message: "Book added at " + book.FilePath,
		Book:    &book,
		Source:  sourcePath,
	}, nil
}

func (im *Importer) importFile(ctx context.Context, sourcePath string) (Book, error) {
	if err := os.MkdirAll(im.store.Dir(), 0o755); err != nil {
		return Book{}, fmt.Errorf("create library directory: %w", err)
	}
	dest, err := filepath.Abs(filepath.Join(im.store.Dir(), filepath.Base(sourcePath)))
	if err != nil {
		return Book{}, err
	}
	if err := fileutil.CopyFile(sourcePath, dest); err != nil {
		return Book{}, fmt.Errorf("copy into library: %w", err)
	}

	meta, err := epub.ReadMetadata(dest)
	if err != nil {
		return Book{}, err
	}

	book := Book{
		UniqueKey: im.newKey(),
		Title:     meta.Title,
		Author:    meta.Creator,
		FilePath:  dest,
		AddedAt:   im.now().UTC().Truncate(time.Second),
	}
	if book.Title == "" {
		book.Title = deriveTitle(dest)
	}
	if book.Author == "" {
		book.Author = UnknownAuthor
	}
	if len(meta.Subjects) > 0 {
		book.Genre = meta.Subjects[0]
	}
	book.FallbackCoverColor = FallbackColor(book.UniqueKey)
	if im.covers != nil {
		if uri, ok := im.covers.Extract(ctx, dest).DataURI(); ok {
			book.Cover = uri
		}
	}

	if err := im.store.Write(book); err != nil {
		return Book{}, err
	}
	return book, nil
}

// ImportMany imports each path concurrently and returns one result per path in
// input order. Paths are not serialized against each other.
func (im *Importer) ImportMany(ctx context.Context, paths []string) []Result {
	results := make([]Result, len(paths))
	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = im.Import(ctx, path)
		}()
	}
	wg.Wait()
	return results
}

func invalidMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": ")
	if msg == "" {
		return ErrInvalidInput.Error()
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

func failureMessage(err error) string {
	return fmt.Sprintf("There was an issue processing this file: %v. Please try again with another file.", err)
}
