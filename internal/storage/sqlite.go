package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/deusflow/hotpush/internal/history"
)

// lookupChunk bounds the number of placeholders per IN query.
const lookupChunk = 500

const lastCleanupKey = "last_cleanup"

// SQLiteStore keeps the push history in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		path:   path,
		logger: logger.With("component", "storage", "driver", "sqlite"),
	}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS pushed_items (
		hash      TEXT PRIMARY KEY,
		title     TEXT NOT NULL,
		source_id TEXT NOT NULL,
		url       TEXT NOT NULL DEFAULT '',
		push_time TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_pushed_items_source ON pushed_items(source_id);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Location() string { return s.path }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Pushed(ctx context.Context, hashes []string) (map[string]bool, error) {
	out := make(map[string]bool, len(hashes))
	for start := 0; start < len(hashes); start += lookupChunk {
		end := min(start+lookupChunk, len(hashes))
		query, args, err := sq.Select("hash").
			From("pushed_items").
			Where(sq.Eq{"hash": hashes[start:end]}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("build lookup: %w", err)
		}
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query pushed hashes: %w", err)
		}
		for rows.Next() {
			var h string
			if err := rows.Scan(&h); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan hash: %w", err)
			}
			out[h] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate hashes: %w", err)
		}
	}
	return out, nil
}

func (s *SQLiteStore) Put(ctx context.Context, entries []history.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pushed_items (hash, title, source_id, url, push_time)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			title = excluded.title,
			source_id = excluded.source_id,
			url = excluded.url,
			push_time = excluded.push_time
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Hash, e.Title, e.SourceID, e.URL, e.PushTime); err != nil {
			return fmt.Errorf("upsert %s: %w", e.Hash, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Entries(ctx context.Context) ([]history.Entry, error) {
	return queryEntries(ctx, s.db, `SELECT hash, title, source_id, url, push_time FROM pushed_items ORDER BY hash`)
}

func (s *SQLiteStore) Prune(ctx context.Context, keep func(history.Entry) bool, at time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	entries, err := queryEntries(ctx, tx, `SELECT hash, title, source_id, url, push_time FROM pushed_items`)
	if err != nil {
		return 0, err
	}

	var doomed []string
	for _, e := range entries {
		if !keep(e) {
			doomed = append(doomed, e.Hash)
		}
	}
	for start := 0; start < len(doomed); start += lookupChunk {
		end := min(start+lookupChunk, len(doomed))
		del := sq.Delete("pushed_items").Where(sq.Eq{"hash": doomed[start:end]})
		if _, err := del.RunWith(tx).ExecContext(ctx); err != nil {
			return 0, fmt.Errorf("delete expired: %w", err)
		}
	}

	upsert := sq.Insert("meta").
		Columns("key", "value").
		Values(lastCleanupKey, history.FormatPushTime(at)).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value")
	if _, err := upsert.RunWith(tx).ExecContext(ctx); err != nil {
		return 0, fmt.Errorf("record cleanup time: %w", err)
	}
	removed := len(doomed)

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("pruned history", "removed", removed)
	return removed, nil
}

func (s *SQLiteStore) LastCleanup(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, lastCleanupKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query last cleanup: %w", err)
	}
	return v, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryEntries(ctx context.Context, q queryer, query string, args ...any) ([]history.Entry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []history.Entry
	for rows.Next() {
		var e history.Entry
		if err := rows.Scan(&e.Hash, &e.Title, &e.SourceID, &e.URL, &e.PushTime); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}
