package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"aveline/internal/config"
	"aveline/internal/epub"
	"aveline/internal/fileserver"
	"aveline/internal/library"
	"aveline/internal/logging"
	"aveline/internal/picker"
	"aveline/internal/preflight"
	"aveline/internal/progress"
)

// Deps are the resources a daemon coordinates.
type Deps struct {
	Store    *library.Store
	Importer *library.Importer
	Files    *fileserver.Server
	Progress *progress.Store
	Picker   picker.Picker
}

// Daemon serves library requests and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *library.Store
	importer *library.Importer
	files    *fileserver.Server
	progress *progress.Store
	picker   picker.Picker
	logPath  string

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt time.Time

	mu      sync.Mutex
	current *OpenBook

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// OpenBook describes the book currently exposed by the file server.
type OpenBook struct {
	URL     string `json:"url"`
	Path    string `json:"path"`
	BookKey string `json:"bookKey,omitempty"`
	Title   string `json:"title,omitempty"`
	// Message is set when the running server was kept for another
	// directory and URL may not reach this book.
	Message string `json:"message,omitempty"`
}

// FileServerStatus reports the file server state.
type FileServerStatus struct {
	Running bool      `json:"running"`
	Addr    string    `json:"addr,omitempty"`
	Root    string    `json:"root,omitempty"`
	Book    *OpenBook `json:"book,omitempty"`
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool               `json:"running"`
	PID            int                `json:"pid"`
	StartedAt      time.Time          `json:"startedAt"`
	LibraryDir     string             `json:"libraryDir"`
	BookCount      int                `json:"bookCount"`
	InProgress     int                `json:"inProgress"`
	ProgressDBPath string             `json:"progressDbPath"`
	LockFilePath   string             `json:"lockFilePath"`
	LogPath        string             `json:"logPath"`
	FileServer     FileServerStatus   `json:"fileServer"`
	Checks         []preflight.Result `json:"checks"`
}

// New constructs a daemon around the provided resources.
func New(cfg *config.Config, logger *slog.Logger, deps Deps) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Importer == nil || deps.Files == nil || deps.Progress == nil {
		return nil, errors.New("daemon requires config, library store, importer, file server, and progress store")
	}
	if deps.Picker == nil {
		deps.Picker = picker.NewDirPicker(cfg.Paths.ImportDir)
	}
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    deps.Store,
		importer: deps.Importer,
		files:    deps.Files,
		progress: deps.Progress,
		picker:   deps.Picker,
		logPath:  filepath.Join(cfg.Paths.LogDir, "aveline.log"),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
		shutdown: make(chan struct{}),
	}, nil
}

// Start acquires the daemon lock and runs preflight checks. Failed checks are
// logged; they do not prevent startup.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another aveline daemon instance is already running")
	}

	if d.cfg.Paths.TempDir != "" {
		if err := os.MkdirAll(d.cfg.Paths.TempDir, 0o755); err != nil {
			_ = d.lock.Unlock()
			return fmt.Errorf("create temp directory: %w", err)
		}
	}
	if _, err := d.store.List(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("prepare library: %w", err)
	}

	for _, check := range preflight.Failed(preflight.RunAll(d.cfg, false)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
			logging.String(logging.FieldErrorHint, "fix the path or port in the config file"),
			logging.String(logging.FieldImpact, "related requests may fail"),
		)
	}

	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("aveline daemon started",
		logging.String("lock", d.lockPath),
		logging.String("library", d.store.Dir()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop closes any open book and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if err := d.files.Stop(); err != nil && !errors.Is(err, fileserver.ErrNotRunning) {
		d.logger.Warn("file server shutdown failed", logging.Error(err))
	}
	d.mu.Lock()
	d.current = nil
	d.mu.Unlock()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("aveline daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.progress != nil {
		return d.progress.Close()
	}
	return nil
}

// RequestShutdown asks the hosting process to exit. It is safe to call more
// than once.
func (d *Daemon) RequestShutdown() {
	d.shutdownOnce.Do(func() { close(d.shutdown) })
}

// ShutdownRequested is closed once RequestShutdown has been called.
func (d *Daemon) ShutdownRequested() <-chan struct{} {
	return d.shutdown
}

// SetLogPath records the active log file reported by Status.
func (d *Daemon) SetLogPath(path string) {
	if strings.TrimSpace(path) != "" {
		d.logPath = path
	}
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// AddBook imports one EPUB into the library.
func (d *Daemon) AddBook(ctx context.Context, sourcePath string) (library.Result, error) {
	return d.importer.Import(ctx, absPath(sourcePath))
}

// AddBooks imports several EPUBs concurrently; results follow input order.
func (d *Daemon) AddBooks(ctx context.Context, paths []string) []library.Result {
	resolved := make([]string, len(paths))
	for i, p := range paths {
		resolved[i] = absPath(p)
	}
	return d.importer.ImportMany(ctx, resolved)
}

// ListLibrary reads every sidecar in the library.
func (d *Daemon) ListLibrary(ctx context.Context) (library.Listing, error) {
	return d.store.List(ctx)
}

// PickFiles returns candidate EPUB paths from the import directory.
func (d *Daemon) PickFiles(ctx context.Context) ([]string, error) {
	return d.picker.Pick(ctx)
}

// OpenBook serves a book to the reading client. target is either a file
// path or a library unique key; paths are recognised by a separator or an
// extension.
func (d *Daemon) OpenBook(ctx context.Context, target string) (OpenBook, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return OpenBook{}, fmt.Errorf("%w: path or book key is required", fileserver.ErrInvalidBook)
	}

	var (
		book library.Book
		path string
	)
	if looksLikePath(target) {
		path = absPath(target)
		if err := fileserver.ValidateBook(path); err != nil {
			return OpenBook{}, err
		}
		book = d.bookForPath(ctx, path)
	} else {
		found, err := d.store.Find(ctx, target)
		if err != nil {
			return OpenBook{}, err
		}
		book = found
		path = found.FilePath
	}

	url, err := d.files.Start(path)
	if err != nil {
		return OpenBook{}, err
	}
	opened := OpenBook{URL: url, Path: path, BookKey: book.UniqueKey, Title: book.Title}
	if root := d.files.Root(); root != filepath.Dir(path) {
		opened.Message = fmt.Sprintf("File server is already serving %s; close the open book before opening %s", root, filepath.Base(path))
		return opened, nil
	}

	d.mu.Lock()
	d.current = &opened
	d.mu.Unlock()

	d.logger.Info("book opened",
		logging.String(logging.FieldBookPath, path),
		logging.String(logging.FieldBookKey, book.UniqueKey),
		logging.String("url", url),
		logging.String(logging.FieldEventType, "book_opened"),
	)
	return opened, nil
}

// CloseBook stops the file server. It returns fileserver.ErrNotRunning when
// no book is open.
func (d *Daemon) CloseBook(context.Context) error {
	d.mu.Lock()
	d.current = nil
	d.mu.Unlock()
	return d.files.Stop()
}

// BookTOC returns the table of contents of a library book.
func (d *Daemon) BookTOC(ctx context.Context, key string) ([]epub.TOCNode, error) {
	book, err := d.store.Find(ctx, key)
	if err != nil {
		return nil, err
	}
	return epub.ReadTOC(book.FilePath)
}

// ReportLocation stores the reader's current location for a book and maps
// it to a TOC chapter when possible.
func (d *Daemon) ReportLocation(ctx context.Context, key, href, cfi string) (progress.Record, error) {
	book, err := d.store.Find(ctx, key)
	if err != nil {
		return progress.Record{}, err
	}
	href = strings.TrimSpace(href)
	if href == "" {
		return progress.Record{}, fmt.Errorf("%w: href is required", library.ErrInvalidInput)
	}

	rec := progress.Record{
		BookKey:   book.UniqueKey,
		Href:      href,
		CFI:       strings.TrimSpace(cfi),
		UpdatedAt: time.Now().UTC(),
	}
	toc, err := epub.ReadTOC(book.FilePath)
	if err != nil {
		d.logger.Debug("toc unavailable for location report",
			logging.String(logging.FieldBookKey, book.UniqueKey),
			logging.Error(err),
		)
	} else if chapter := epub.FindChapter(toc, href); chapter != nil {
		rec.ChapterID = chapter.ID
		rec.ChapterLabel = chapter.Label
	}

	if err := d.progress.Save(ctx, rec); err != nil {
		return progress.Record{}, err
	}
	return rec, nil
}

// Progress returns the saved location for a book, nil when none exists.
func (d *Daemon) Progress(ctx context.Context, key string) (*progress.Record, error) {
	if _, err := d.store.Find(ctx, key); err != nil {
		return nil, err
	}
	return d.progress.Get(ctx, key)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		StartedAt:      d.startedAt,
		LibraryDir:     d.store.Dir(),
		ProgressDBPath: d.progress.Path(),
		LockFilePath:   d.lockPath,
		LogPath:        d.logPath,
		FileServer: FileServerStatus{
			Running: d.files.Running(),
			Addr:    d.files.Addr(),
			Root:    d.files.Root(),
		},
	}
	d.mu.Lock()
	if d.current != nil && status.FileServer.Running {
		current := *d.current
		status.FileServer.Book = &current
	}
	d.mu.Unlock()

	if listing, err := d.store.List(ctx); err == nil {
		status.BookCount = listing.Count
	}
	if n, err := d.progress.Count(ctx); err == nil {
		status.InProgress = n
	}
	status.Checks = preflight.RunAll(d.cfg, status.FileServer.Running)
	return status
}

// bookForPath finds the library record stored at path, if any.
func (d *Daemon) bookForPath(ctx context.Context, path string) library.Book {
	listing, err := d.store.List(ctx)
	if err != nil {
		return library.Book{}
	}
	for _, b := range listing.Books {
		if b.FilePath == path {
			return b
		}
	}
	return library.Book{}
}

func looksLikePath(target string) bool {
	return strings.ContainsRune(target, filepath.Separator) || filepath.Ext(target) != ""
}

func absPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		return ""
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}
