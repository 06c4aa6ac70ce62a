package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aveline/internal/config"
	"aveline/internal/daemon"
	"aveline/internal/epub"
	"aveline/internal/fileserver"
	"aveline/internal/ipc"
	"aveline/internal/library"
	"aveline/internal/logging"
	"aveline/internal/picker"
	"aveline/internal/progress"
	"aveline/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	socketPath string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	logger := logging.NewNop()
	store := library.NewStore(cfg.LibraryDir(), logger)
	prog, err := progress.Open(cfg.ProgressDBPath())
	if err != nil {
		t.Fatalf("progress.Open: %v", err)
	}
	d, err := daemon.New(cfg, logger, daemon.Deps{
		Store:    store,
		Importer: library.NewImporter(store, epub.NewCoverExtractor(cfg.Paths.TempDir), logger),
		Files:    fileserver.New(cfg.Server.Bind, 0, logger),
		Progress: prog,
		Picker:   picker.NewDirPicker(cfg.Paths.ImportDir),
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon start: %v", err)
	}

	sockDir, err := os.MkdirTemp("", "aveline-cli")
	if err != nil {
		t.Fatal(err)
	}
	socketPath := filepath.Join(sockDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = d.Close()
		_ = os.RemoveAll(sockDir)
	})

	return &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		socketPath: socketPath,
		configPath: configPath,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\nlog_dir = %q\nimport_dir = %q\ntemp_dir = %q\n\n[server]\nbind = %q\n",
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.Paths.ImportDir,
		cfg.Paths.TempDir,
		cfg.Server.Bind,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}
