package testsupport

import (
	"path/filepath"
	"testing"

	"larder/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The store defaults to a file-backed SQLite database so concurrent claim
// tests exercise real write locking.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Store.Driver = config.DriverSQLite
	cfgVal.Store.SQLitePath = filepath.Join(base, "data", "match_queue.db")
	cfgVal.Worker.ResolverID = "test-resolver"

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

// WithMySQLDSN points the test config at a MySQL server.
func WithMySQLDSN(dsn string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Driver = config.DriverMySQL
		b.cfg.Store.MySQLDSN = dsn
	}
}

// WithFallbackClaims permits the non-exclusive claim path.
func WithFallbackClaims() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Claim.AllowFallback = true
	}
}

// WithCatalog writes a catalog file under the temp directory and points the
// worker config at it.
func WithCatalog(contents string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "catalog.toml")
		WriteFile(b.t, path, contents)
		b.cfg.Worker.CatalogPath = path
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
