package preflight

import (
	"aveline/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes the preflight checks for the given config. The port check
// is skipped when skipPort is set, which the daemon does while its own file
// server may already hold the port.
func RunAll(cfg *config.Config, skipPort bool) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Library directory", cfg.LibraryDir()),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Temp directory", cfg.Paths.TempDir),
	}

	// The import directory is optional; a missing one only empties the picker.
	if cfg.Paths.ImportDir != "" {
		results = append(results, CheckDirectoryAccess("Import directory", cfg.Paths.ImportDir))
	}

	if !skipPort {
		results = append(results, CheckPortAvailable("File server port", cfg.Server.Bind))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
