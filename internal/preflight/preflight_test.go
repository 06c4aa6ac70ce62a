package preflight

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"aveline/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckPortAvailable(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()

	if res := CheckPortAvailable("port", busy.Addr().String()); res.Passed {
		t.Fatalf("expected failure for bound port, got %s", res.Detail)
	}
	if res := CheckPortAvailable("port", "127.0.0.1:0"); !res.Passed {
		t.Fatalf("expected ephemeral port to be available: %s", res.Detail)
	}
}

func TestRunAll(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	for _, dir := range []string{cfg.LibraryDir(), cfg.Paths.LogDir, cfg.Paths.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	results := RunAll(cfg, false)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Import directory" {
		t.Fatalf("expected only the import directory to fail, got %+v", failed)
	}

	if got := len(RunAll(cfg, true)); got != 4 {
		t.Fatalf("expected port check to be skipped, got %d results", got)
	}
	if RunAll(nil, false) != nil {
		t.Fatal("nil config should yield no results")
	}
}
