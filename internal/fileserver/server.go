// Package fileserver exposes the directory of the currently opened book over
// loopback HTTP so the reading client can fetch the archive.
//
// At most one instance runs per Server. Starting while an instance is up
// keeps that instance and its root directory; callers stop it first to serve
// a different directory.
package fileserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"aveline/internal/logging"
)

var (
	// ErrNotRunning is returned by Stop when no instance is up.
	ErrNotRunning = errors.New("file server is not running")
	// ErrInvalidBook rejects paths that are not readable .epub files.
	ErrInvalidBook = errors.New("not an epub file")
	// ErrListen reports that the bind address could not be claimed.
	ErrListen = errors.New("file server could not listen")
)

// Server owns the single file server instance.
type Server struct {
	bind   string
	grace  time.Duration
	logger *slog.Logger

	mu   sync.Mutex
	inst *instance
}

type instance struct {
	root     string
	listener net.Listener
	server   *http.Server
	done     chan struct{}
}

// New returns a stopped server that will bind to bind when started.
func New(bind string, grace time.Duration, logger *slog.Logger) *Server {
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &Server{
		bind:   bind,
		grace:  grace,
		logger: logging.NewComponentLogger(logger, "fileserver"),
	}
}

// ValidateBook checks bookPath before any side effect.
func ValidateBook(bookPath string) error {
	if strings.TrimSpace(bookPath) == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidBook)
	}
	if !strings.EqualFold(filepath.Ext(bookPath), ".epub") {
		return fmt.Errorf("%w: %s", ErrInvalidBook, filepath.Base(bookPath))
	}
	info, err := os.Stat(bookPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBook, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInvalidBook, bookPath)
	}
	return nil
}

// Start serves the directory containing bookPath and returns the URL of the
// book. When an instance is already running it is reused as is.
func (s *Server) Start(bookPath string) (string, error) {
	if err := ValidateBook(bookPath); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(bookPath)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inst != nil {
		if s.inst.root != filepath.Dir(abs) {
			logging.WarnWithContext(s.logger, "file server already running for another directory", "fileserver_reused",
				logging.String("root", s.inst.root),
				logging.String(logging.FieldBookPath, abs),
				logging.String(logging.FieldErrorHint, "close the open book before opening one from another directory"),
				logging.String(logging.FieldImpact, "the requested book may not be reachable at the returned URL"),
			)
		}
		return bookURL(s.inst.listener.Addr().String(), abs), nil
	}

	root := filepath.Dir(abs)
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrListen, err)
	}
	inst := &instance{
		root:     root,
		listener: listener,
		done:     make(chan struct{}),
		server: &http.Server{
			Handler:           s.handler(root),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
	go func() {
		defer close(inst.done)
		if err := inst.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "file server stopped unexpectedly", "fileserver_failed", logging.Error(err))
		}
	}()
	s.inst = inst

	s.logger.Info("file server listening",
		logging.String("address", listener.Addr().String()),
		logging.String("root", root),
		logging.String(logging.FieldEventType, "fileserver_started"),
	)
	return bookURL(listener.Addr().String(), abs), nil
}

// Stop shuts the running instance down. It returns ErrNotRunning when there
// is nothing to stop.
func (s *Server) Stop() error {
	s.mu.Lock()
	inst := s.inst
	s.inst = nil
	s.mu.Unlock()

	if inst == nil {
		return ErrNotRunning
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.grace)
	defer cancel()
	err := inst.server.Shutdown(ctx)
	<-inst.done
	s.logger.Info("file server stopped",
		logging.String("root", inst.root),
		logging.String(logging.FieldEventType, "fileserver_stopped"),
	)
	if err != nil {
		return fmt.Errorf("file server shutdown: %w", err)
	}
	return nil
}

// Running reports whether an instance is up.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inst != nil
}

// Addr returns the listening address, empty when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inst == nil {
		return ""
	}
	return s.inst.listener.Addr().String()
}

// Root returns the served directory, empty when stopped.
func (s *Server) Root() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inst == nil {
		return ""
	}
	return s.inst.root
}

func bookURL(addr, bookPath string) string {
	return "http://" + addr + "/" + url.PathEscape(filepath.Base(bookPath))
}

func (s *Server) handler(root string) http.Handler {
	r := mux.NewRouter()
	r.Methods(http.MethodGet, http.MethodHead).Path("/{file:.*}").Handler(staticHandler(root))
	r.NotFoundHandler = http.HandlerFunc(http.NotFound)

	var h http.Handler = r
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodHead, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Range", "Content-Type"}),
	)(h)
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(h)
	return handlers.CustomLoggingHandler(io.Discard, h, func(_ io.Writer, p handlers.LogFormatterParams) {
		s.logger.Debug("file request",
			logging.String("method", p.Request.Method),
			logging.String("path", p.URL.Path),
			logging.Int("status", p.StatusCode),
			logging.Int("bytes", p.Size),
		)
	})
}

// staticHandler serves regular files under root. Directories and anything
// outside root answer 404.
func staticHandler(root string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean("/" + mux.Vars(r)["file"])
		full := filepath.Join(root, filepath.FromSlash(name))
		if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
			http.NotFound(w, r)
			return
		}
		f, err := os.Open(full)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		if strings.EqualFold(filepath.Ext(full), ".epub") {
			w.Header().Set("Content-Type", "application/epub+zip")
		}
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	})
}
