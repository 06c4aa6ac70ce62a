package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"aveline/internal/daemon"
	"aveline/internal/fileserver"
	"aveline/internal/library"
	"aveline/internal/logging"
	"aveline/internal/logs"
)

// ServiceName is the JSON-RPC receiver name; methods are "Aveline.<Method>".
const ServiceName = "Aveline"

// Server exposes the daemon via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: ctx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file. Connections still open
// are served until their clients hang up.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun aveline stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

// request derives a per-call context and logger tagged with a request id.
func (s *service) request(method string) (context.Context, *slog.Logger) {
	ctx := logging.WithRequestID(s.ctx, uuid.NewString())
	logger := logging.WithContext(ctx, s.logger).With(logging.String("method", method))
	logger.Debug("ipc request")
	return ctx, logger
}

// outcome converts a handler error to a client-facing message. Expected
// domain errors are passed through; anything else is logged and reported as
// a generic failure. Handlers never turn these into RPC errors.
func outcome(logger *slog.Logger, err error) string {
	switch {
	case errors.Is(err, library.ErrInvalidInput),
		errors.Is(err, library.ErrBookNotFound),
		errors.Is(err, fileserver.ErrInvalidBook),
		errors.Is(err, fileserver.ErrNotRunning),
		errors.Is(err, fileserver.ErrListen):
		return err.Error()
	default:
		logging.WarnWithContext(logger, "request failed", "ipc_request_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the daemon log for the failing path"),
			logging.String(logging.FieldImpact, "request returned a failure outcome"),
		)
		return fmt.Sprintf("There was an issue completing this request: %v", err)
	}
}

func (s *service) AddBook(req AddBookRequest, resp *AddBookResponse) error {
	ctx, logger := s.request("AddBook")
	result, err := s.daemon.AddBook(ctx, req.Path)
	if err != nil {
		logger.Debug("add book rejected", logging.Error(err))
	}
	resp.ImportResult = result
	return nil
}

func (s *service) AddBooks(req AddBooksRequest, resp *AddBooksResponse) error {
	ctx, logger := s.request("AddBooks")
	resp.Results = s.daemon.AddBooks(ctx, req.Paths)
	for _, r := range resp.Results {
		if r.Success {
			resp.Added++
		}
	}
	logger.Info("books imported",
		logging.Int("requested", len(req.Paths)),
		logging.Int("added", resp.Added),
		logging.String(logging.FieldEventType, "books_imported"))
	return nil
}

func (s *service) ListLibrary(_ ListLibraryRequest, resp *ListLibraryResponse) error {
	ctx, logger := s.request("ListLibrary")
	listing, err := s.daemon.ListLibrary(ctx)
	if err != nil {
		resp.Books = []Book{}
		resp.Message = outcome(logger, err)
		return nil
	}
	resp.Books = listing.Books
	resp.Count = listing.Count
	resp.TotalPages = listing.TotalPages
	return nil
}

func (s *service) PickFiles(_ PickFilesRequest, resp *PickFilesResponse) error {
	ctx, logger := s.request("PickFiles")
	paths, err := s.daemon.PickFiles(ctx)
	if err != nil {
		resp.Paths = []string{}
		resp.Message = outcome(logger, err)
		return nil
	}
	if paths == nil {
		paths = []string{}
	}
	resp.Paths = paths
	return nil
}

func (s *service) OpenBook(req OpenBookRequest, resp *OpenBookResponse) error {
	ctx, logger := s.request("OpenBook")
	opened, err := s.daemon.OpenBook(ctx, req.Target)
	if err != nil {
		resp.Message = outcome(logger, err)
		return nil
	}
	resp.Success = true
	resp.Message = opened.Message
	resp.URL = opened.URL
	resp.Path = opened.Path
	resp.BookKey = opened.BookKey
	resp.Title = opened.Title
	return nil
}

func (s *service) CloseBook(_ CloseBookRequest, resp *CloseBookResponse) error {
	ctx, logger := s.request("CloseBook")
	err := s.daemon.CloseBook(ctx)
	switch {
	case err == nil:
		resp.Success = true
		resp.Message = "Server stopped"
		logger.Info("book closed", logging.String(logging.FieldEventType, "book_closed"))
	case errors.Is(err, fileserver.ErrNotRunning):
		resp.NotRunning = true
		resp.Message = "Server not running"
	default:
		resp.Message = outcome(logger, err)
	}
	return nil
}

func (s *service) BookTOC(req BookTOCRequest, resp *BookTOCResponse) error {
	ctx, logger := s.request("BookTOC")
	items, err := s.daemon.BookTOC(logging.WithBookKey(ctx, req.Key), req.Key)
	if err != nil {
		resp.Message = outcome(logger, err)
		resp.Items = []TOCNode{}
		return nil
	}
	resp.Success = true
	resp.Items = items
	return nil
}

func (s *service) ReportLocation(req ReportLocationRequest, resp *ReportLocationResponse) error {
	ctx, logger := s.request("ReportLocation")
	rec, err := s.daemon.ReportLocation(logging.WithBookKey(ctx, req.Key), req.Key, req.Href, req.CFI)
	if err != nil {
		resp.Message = outcome(logger, err)
		return nil
	}
	resp.Success = true
	resp.Record = &rec
	return nil
}

func (s *service) Progress(req ProgressRequest, resp *ProgressResponse) error {
	ctx, logger := s.request("Progress")
	rec, err := s.daemon.Progress(logging.WithBookKey(ctx, req.Key), req.Key)
	if err != nil {
		resp.Message = outcome(logger, err)
		return nil
	}
	resp.Success = true
	resp.Record = rec
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	ctx, _ := s.request("Status")
	*resp = s.daemon.Status(ctx)
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	_, logger := s.request("Stop")
	s.daemon.Stop()
	s.daemon.RequestShutdown()
	resp.Stopped = true
	logger.Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	ctx := s.ctx
	if req.Follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
		Match:  req.Match,
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}
