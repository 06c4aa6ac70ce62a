package testsupport

import (
	"path/filepath"
	"testing"

	"aveline/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The file server binds an ephemeral loopback port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ImportDir = filepath.Join(base, "import")
	cfgVal.Paths.TempDir = filepath.Join(base, "tmp")
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Server.ShutdownTimeoutSeconds = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithServerBind overrides the file server bind address.
func WithServerBind(bind string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.Bind = bind
	}
}

// WithCoverMaxWidth enables cover down-scaling.
func WithCoverMaxWidth(width int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Library.CoverMaxWidth = width
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
