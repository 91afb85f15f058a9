package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/deusflow/hotpush/internal/history"
)

// PostgresStore keeps the push history in PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenPostgres connects with connectionString and creates the schema.
func OpenPostgres(ctx context.Context, connectionString string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	ps := &PostgresStore{
		db:     db,
		logger: logger.With("component", "storage", "driver", "postgres"),
	}
	if err := ps.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ps.logger.Info("PostgreSQL history connected")
	return ps, nil
}

func (ps *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS pushed_items (
		hash VARCHAR(32) PRIMARY KEY,
		title TEXT NOT NULL,
		source_id VARCHAR(100) NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		push_time TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_pushed_items_source ON pushed_items(source_id);

	CREATE TABLE IF NOT EXISTS history_meta (
		key VARCHAR(64) PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := ps.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Location reports the driver, never the DSN, which may carry credentials.
func (ps *PostgresStore) Location() string { return "postgres" }

func (ps *PostgresStore) Close() error {
	if ps.db != nil {
		return ps.db.Close()
	}
	return nil
}

func (ps *PostgresStore) Pushed(ctx context.Context, hashes []string) (map[string]bool, error) {
	out := make(map[string]bool, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	rows, err := ps.db.QueryContext(ctx, `SELECT hash FROM pushed_items WHERE hash = ANY($1)`, pq.Array(hashes))
	if err != nil {
		return nil, fmt.Errorf("failed to query pushed hashes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan hash: %w", err)
		}
		out[h] = true
	}
	return out, rows.Err()
}

func (ps *PostgresStore) Put(ctx context.Context, entries []history.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO pushed_items (hash, title, source_id, url, push_time)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (hash) DO UPDATE SET
			title = EXCLUDED.title,
			source_id = EXCLUDED.source_id,
			url = EXCLUDED.url,
			push_time = EXCLUDED.push_time
	`
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, query, e.Hash, e.Title, e.SourceID, e.URL, e.PushTime); err != nil {
			return fmt.Errorf("failed to mark as pushed: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (ps *PostgresStore) Entries(ctx context.Context) ([]history.Entry, error) {
	return queryEntries(ctx, ps.db, `SELECT hash, title, source_id, url, push_time FROM pushed_items ORDER BY hash`)
}

func (ps *PostgresStore) Prune(ctx context.Context, keep func(history.Entry) bool, at time.Time) (int, error) {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	entries, err := queryEntries(ctx, tx, `SELECT hash, title, source_id, url, push_time FROM pushed_items FOR UPDATE`)
	if err != nil {
		return 0, err
	}

	var doomed []string
	for _, e := range entries {
		if !keep(e) {
			doomed = append(doomed, e.Hash)
		}
	}
	if len(doomed) > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pushed_items WHERE hash = ANY($1)`, pq.Array(doomed)); err != nil {
			return 0, fmt.Errorf("failed to cleanup: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO history_meta (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, lastCleanupKey, history.FormatPushTime(at))
	if err != nil {
		return 0, fmt.Errorf("failed to record cleanup time: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	if len(doomed) > 0 {
		ps.logger.Info("cleaned up old records from database", "removed", len(doomed))
	}
	return len(doomed), nil
}

func (ps *PostgresStore) LastCleanup(ctx context.Context) (string, error) {
	var v string
	err := ps.db.QueryRowContext(ctx, `SELECT value FROM history_meta WHERE key = $1`, lastCleanupKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query last cleanup: %w", err)
	}
	return v, nil
}
