package ipc_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
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
	"aveline/internal/testsupport"
)

type harness struct {
	cfg    *config.Config
	daemon *daemon.Daemon
	client *ipc.Client
}

func startHarness(t *testing.T, opts ...testsupport.ConfigOption) harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
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
	t.Cleanup(func() { _ = d.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon start: %v", err)
	}

	// Unix socket paths are length limited; keep this one short.
	sockDir, err := os.MkdirTemp("", "aveline-ipc")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(sockDir) })
	socket := filepath.Join(sockDir, "aveline.sock")

	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return harness{cfg: cfg, daemon: d, client: client}
}

func TestIPCLibraryRoundTrip(t *testing.T) {
	h := startHarness(t)
	client := h.client

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.BookCount != 0 {
		t.Fatalf("unexpected initial status %+v", status)
	}

	src := testsupport.WriteEPUB(t, filepath.Join(h.cfg.Paths.ImportDir, "dune.epub"), testsupport.EPUB{
		Title:   "Dune",
		Creator: "Frank Herbert",
		NCX:     true,
	})

	picked, err := client.PickFiles()
	if err != nil {
		t.Fatalf("PickFiles failed: %v", err)
	}
	if len(picked.Paths) != 1 || picked.Paths[0] != src {
		t.Fatalf("unexpected picked paths %v", picked.Paths)
	}

	added, err := client.AddBook(src)
	if err != nil {
		t.Fatalf("AddBook failed: %v", err)
	}
	if !added.Success || added.Book == nil {
		t.Fatalf("expected successful import, got %+v", added.ImportResult)
	}
	if added.Message != "Book added at "+added.Book.FilePath {
		t.Fatalf("unexpected message %q", added.Message)
	}

	listing, err := client.ListLibrary()
	if err != nil {
		t.Fatalf("ListLibrary failed: %v", err)
	}
	if listing.Count != 1 || listing.TotalPages != 1 || listing.Books[0].Title != "Dune" {
		t.Fatalf("unexpected listing %+v", listing)
	}
	key := listing.Books[0].UniqueKey

	opened, err := client.OpenBook(key)
	if err != nil {
		t.Fatalf("OpenBook failed: %v", err)
	}
	if !opened.Success || !strings.HasSuffix(opened.URL, "/dune.epub") {
		t.Fatalf("unexpected open response %+v", opened)
	}
	resp, err := http.Get(opened.URL)
	if err != nil {
		t.Fatalf("fetch served book: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(body) == 0 {
		t.Fatalf("unexpected served response %d (%d bytes)", resp.StatusCode, len(body))
	}

	toc, err := client.BookTOC(key)
	if err != nil {
		t.Fatalf("BookTOC failed: %v", err)
	}
	if !toc.Success || len(toc.Items) != 2 || toc.Items[0].Label != "Chapter 1" {
		t.Fatalf("unexpected toc %+v", toc)
	}

	loc, err := client.ReportLocation(ipc.ReportLocationRequest{Key: key, Href: "ch1.xhtml#s1", CFI: "epubcfi(/6/4!/4/2)"})
	if err != nil {
		t.Fatalf("ReportLocation failed: %v", err)
	}
	if !loc.Success || loc.Record == nil || loc.Record.ChapterLabel != "Section 1.1" {
		t.Fatalf("unexpected location response %+v", loc)
	}
	saved, err := client.Progress(key)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if saved.Record == nil || saved.Record.CFI != "epubcfi(/6/4!/4/2)" {
		t.Fatalf("unexpected progress %+v", saved)
	}

	closed, err := client.CloseBook()
	if err != nil {
		t.Fatalf("CloseBook failed: %v", err)
	}
	if !closed.Success || closed.Message != "Server stopped" {
		t.Fatalf("unexpected close response %+v", closed)
	}
	again, err := client.CloseBook()
	if err != nil {
		t.Fatalf("second CloseBook failed: %v", err)
	}
	if again.Success || !again.NotRunning || again.Message != "Server not running" {
		t.Fatalf("expected benign not-running close, got %+v", again)
	}
}

func TestIPCReportsRejectedInput(t *testing.T) {
	h := startHarness(t)
	client := h.client

	added, err := client.AddBook(filepath.Join(h.cfg.Paths.ImportDir, "notes.txt"))
	if err != nil {
		t.Fatalf("AddBook transport error: %v", err)
	}
	if added.Success || added.Message == "" {
		t.Fatalf("expected rejected import, got %+v", added.ImportResult)
	}

	opened, err := client.OpenBook("/nowhere/missing.epub")
	if err != nil {
		t.Fatalf("OpenBook transport error: %v", err)
	}
	if opened.Success || opened.Message == "" {
		t.Fatalf("expected rejected open, got %+v", opened)
	}

	toc, err := client.BookTOC("no-such-key")
	if err != nil {
		t.Fatalf("BookTOC transport error: %v", err)
	}
	if toc.Success || toc.Items == nil {
		t.Fatalf("expected not-found toc with empty items, got %+v", toc)
	}
}

func TestIPCAddBooksKeepsOrder(t *testing.T) {
	h := startHarness(t)
	first := testsupport.WriteEPUB(t, filepath.Join(h.cfg.Paths.ImportDir, "a.epub"), testsupport.EPUB{Title: "Alpha"})
	second := filepath.Join(h.cfg.Paths.ImportDir, "missing.epub")
	third := testsupport.WriteEPUB(t, filepath.Join(h.cfg.Paths.ImportDir, "c.epub"), testsupport.EPUB{Title: "Gamma"})

	resp, err := h.client.AddBooks([]string{first, second, third})
	if err != nil {
		t.Fatalf("AddBooks failed: %v", err)
	}
	if len(resp.Results) != 3 || resp.Added != 2 {
		t.Fatalf("unexpected results %+v", resp)
	}
	if !resp.Results[0].Success || resp.Results[1].Success || !resp.Results[2].Success {
		t.Fatalf("unexpected per-path outcomes %+v", resp.Results)
	}
	if resp.Results[0].Book.Title != "Alpha" || resp.Results[2].Book.Title != "Gamma" {
		t.Fatalf("results out of order %+v", resp.Results)
	}
}

func TestIPCStopRequestsShutdown(t *testing.T) {
	h := startHarness(t)

	resp, err := h.client.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !resp.Stopped {
		t.Fatalf("expected Stop to report stopped, got %#v", resp)
	}
	select {
	case <-h.daemon.ShutdownRequested():
	case <-time.After(2 * time.Second):
		t.Fatal("expected shutdown to be requested")
	}
	if h.daemon.Status(context.Background()).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestIPCLogTail(t *testing.T) {
	h := startHarness(t)
	logPath := filepath.Join(h.cfg.Paths.LogDir, "aveline-test.log")
	testsupport.WriteFile(t, logPath, []byte("first\nsecond book\nthird\n"))
	h.daemon.SetLogPath(logPath)

	resp, err := h.client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("LogTail failed: %v", err)
	}
	if len(resp.Lines) != 2 || resp.Lines[0] != "second book" || resp.Lines[1] != "third" {
		t.Fatalf("unexpected log tail %#v", resp.Lines)
	}

	filtered, err := h.client.LogTail(ipc.LogTailRequest{Offset: 0, Match: "book"})
	if err != nil {
		t.Fatalf("LogTail with match failed: %v", err)
	}
	if len(filtered.Lines) != 1 {
		t.Fatalf("unexpected filtered lines %#v", filtered.Lines)
	}

	idle, err := h.client.LogTail(ipc.LogTailRequest{Offset: resp.Offset, Follow: true, WaitMillis: 100})
	if err != nil {
		t.Fatalf("LogTail follow failed: %v", err)
	}
	if len(idle.Lines) != 0 || idle.Offset != resp.Offset {
		t.Fatalf("expected no new lines at same offset, got %+v", idle)
	}
}

func TestIPCOpenBookReportsBusyPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	h := startHarness(t, testsupport.WithServerBind(busy.Addr().String()))
	book := testsupport.WriteEPUB(t, filepath.Join(h.cfg.Paths.ImportDir, "busy.epub"), testsupport.EPUB{Title: "Busy"})

	resp, err := h.client.OpenBook(book)
	if err != nil {
		t.Fatalf("OpenBook should report the failure as an outcome, got RPC error %v", err)
	}
	if resp.Success || !strings.Contains(resp.Message, "could not listen") {
		t.Fatalf("unexpected open response %+v", resp)
	}

	status, err := h.client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status.FileServer.Running {
		t.Fatal("file server should not be running after a failed listen")
	}
}

func TestIPCReportsLibraryReadFailures(t *testing.T) {
	h := startHarness(t)
	libDir := h.cfg.LibraryDir()
	if err := os.RemoveAll(libDir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(libDir, []byte("not a directory"), 0o644); err != nil {
		t.Fatal(err)
	}

	listing, err := h.client.ListLibrary()
	if err != nil {
		t.Fatalf("ListLibrary should report the failure as an outcome, got RPC error %v", err)
	}
	if listing.Message == "" || len(listing.Books) != 0 {
		t.Fatalf("unexpected listing %+v", listing)
	}

	toc, err := h.client.BookTOC("some-key")
	if err != nil {
		t.Fatalf("BookTOC should report the failure as an outcome, got RPC error %v", err)
	}
	if toc.Success || toc.Message == "" || toc.Items == nil {
		t.Fatalf("unexpected toc response %+v", toc)
	}
}
