package queue

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"larder/internal/config"
)

const tableName = "ingredient_match_queue"

// Store manages match queue persistence backed by SQLite or MySQL.
type Store struct {
	db       *sql.DB
	dialect  dialect
	location string
	now      func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces the wall clock used for lease and lifecycle timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

const (
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func (s *Store) retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !s.dialect.retryable(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := s.retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// withTx runs fn inside a write transaction, retrying the whole transaction
// when the backend reports lock contention. On SQLite the connection opens
// transactions with BEGIN IMMEDIATE, so the write lock is held from the first
// statement.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	ctx = ensureContext(ctx)
	return s.retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// Open initializes or connects to the queue database selected by cfg.Store.
func Open(cfg *config.Config, opts ...Option) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("open queue store: %w: nil config", ErrValidation)
	}

	var (
		store *Store
		err   error
	)
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		store, err = openSQLite(cfg)
	case config.DriverMySQL:
		store, err = openMySQL(cfg.Store.MySQLDSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	store.now = time.Now
	for _, opt := range opts {
		opt(store)
	}

	ctx := context.Background()
	if err := store.applyMigrations(ctx); err != nil {
		_ = store.db.Close()
		return nil, err
	}
	if err := store.verifySchema(ctx); err != nil {
		_ = store.db.Close()
		return nil, err
	}
	return store, nil
}

func openSQLite(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.Store.SQLitePath
	params := url.Values{}
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Set("_txlock", "immediate")

	db, err := sql.Open("sqlite", dbPath+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &Store{db: db, dialect: sqliteDialect, location: dbPath}, nil
}

func openMySQL(dsn string) (*Store, error) {
	mcfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	// RowsAffected must count matched rows so not-found checks work when an
	// UPDATE rewrites identical values.
	mcfg.ClientFoundRows = true

	connector, err := mysql.NewConnector(mcfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxIdleConns(4)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql db: %w", err)
	}

	redacted := mcfg.Clone()
	if redacted.Passwd != "" {
		redacted.Passwd = "xxxxx"
	}
	return &Store{db: db, dialect: mysqlDialect, location: redacted.FormatDSN()}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Driver returns the active SQL dialect name.
func (s *Store) Driver() string {
	return s.dialect.name
}

// Location returns the database path or the redacted DSN.
func (s *Store) Location() string {
	return s.location
}

func (s *Store) clock() time.Time {
	return s.now().UTC()
}
