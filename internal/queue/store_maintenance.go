package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Stats returns a count of rows grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM ingredient_match_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	ctx = ensureContext(ctx)
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusProcessing:
			health.Processing += count
		case StatusResolved:
			health.Resolved += count
		case StatusFailed:
			health.Failed += count
		}
	}

	now := formatTime(s.clock())
	var oldest sql.NullString
	row := s.db.QueryRowContext(ctx,
		`SELECT
		   COALESCE(SUM(CASE WHEN status = ? AND processing_lease_expires_at < ? THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN status = ? AND needs_ingredient_review = 0 AND needs_unit_review = 1 AND resolved_ingredient_id IS NOT NULL THEN 1 ELSE 0 END), 0),
		   COALESCE(MAX(attempt_count), 0),
		   MIN(CASE WHEN status = ? THEN processing_started_at END)
		 FROM ingredient_match_queue`,
		string(StatusProcessing), now, string(StatusPending), string(StatusProcessing),
	)
	if err := row.Scan(&health.Expired, &health.PendingUnit, &health.MaxAttempts, &oldest); err != nil {
		return HealthSummary{}, fmt.Errorf("queue lease health: %w", err)
	}
	health.OldestLeased = timePtr(oldest)
	return health, nil
}

// CheckHealth returns diagnostic information about the queue database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{
		Driver:   s.dialect.name,
		Location: s.location,
	}

	if s.dialect.name == sqliteDialect.name {
		if s.location == "" {
			return health, errors.New("queue database path is unknown")
		}
		info, err := os.Stat(s.location)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				health.DatabaseExists = false
				return health, nil
			}
			return health, fmt.Errorf("stat queue database: %w", err)
		}
		if info.IsDir() {
			return health, fmt.Errorf("queue database path %q is a directory", s.location)
		}
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("queue database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 5*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping queue database: %w", err)
	}
	health.DatabaseReadable = true

	if version, err := s.SchemaVersion(connCtx); err == nil {
		health.SchemaVersion = version
	}

	columns, err := s.tableColumns(connCtx)
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	health.TableExists = len(columns) > 0
	health.ColumnsPresent = columns
	health.MissingColumns = missingColumns(columns)

	if health.TableExists {
		row := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM ingredient_match_queue")
		if err := row.Scan(&health.TotalRows); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count queue rows: %w", err)
		}
	}

	if s.dialect.name != sqliteDialect.name {
		// MySQL has no cheap whole-database integrity check; a readable table is enough.
		health.IntegrityCheck = health.TableExists
		return health, nil
	}

	row := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}
