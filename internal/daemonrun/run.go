package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"aveline/internal/config"
	"aveline/internal/daemon"
	"aveline/internal/epub"
	"aveline/internal/fileserver"
	"aveline/internal/ipc"
	"aveline/internal/library"
	"aveline/internal/logging"
	"aveline/internal/picker"
	"aveline/internal/progress"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// SocketPath overrides the IPC socket location from the config.
	SocketPath string
}

// Run starts the aveline daemon and blocks until a signal arrives or a client
// requests shutdown.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("aveline-%s.log", runID))

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	progressStore, err := progress.Open(cfg.ProgressDBPath())
	if err != nil {
		logger.Error("open progress store", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, logger, buildDeps(cfg, logger, progressStore))
	if err != nil {
		_ = progressStore.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()
	d.SetLogPath(logPath)

	// The lock must be held before touching the shared pointer, PID file or
	// socket, which belong to whichever instance is already running.
	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update aveline.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Paths.LogDir, "aveline-*.log", cfg.Logging.RetentionDays, logPath)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = cfg.SocketPath()
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()

	ipcServer.Serve()
	logger.Info("aveline daemon ready",
		logging.String("socket", socketPath),
		logging.String("log_path", logPath),
		logging.String(logging.FieldEventType, "daemon_ready"),
	)

	select {
	case <-signalCtx.Done():
	case <-d.ShutdownRequested():
	}
	logger.Info("aveline daemon shutting down")
	return nil
}

func buildDeps(cfg *config.Config, logger *slog.Logger, progressStore *progress.Store) daemon.Deps {
	store := library.NewStore(cfg.LibraryDir(), logger)
	covers := epub.NewCoverExtractor(cfg.Paths.TempDir,
		epub.WithMaxWidth(cfg.Library.CoverMaxWidth, cfg.Library.CoverQuality),
		epub.WithLogger(logger),
	)
	grace := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
	return daemon.Deps{
		Store:    store,
		Importer: library.NewImporter(store, covers, logger),
		Files:    fileserver.New(cfg.Server.Bind, grace, logger),
		Progress: progressStore,
		Picker:   picker.NewDirPicker(cfg.Paths.ImportDir),
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "aveline.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
