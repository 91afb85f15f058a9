package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio"

	"github.com/deusflow/hotpush/internal/history"
)

// ErrCorrupt is returned by reads when the history file cannot be decoded.
var ErrCorrupt = errors.New("history file is corrupt")

const lockRetryDelay = 50 * time.Millisecond

// document is the on-disk layout of the history file.
type document struct {
	PushedItems map[string]history.Entry `json:"pushed_items"`
	LastCleanup *string                  `json:"last_cleanup"`
}

func emptyDocument() *document {
	return &document{PushedItems: make(map[string]history.Entry)}
}

// FileStore keeps the push history in a single JSON file. Writers take an
// exclusive lock on a sibling .lock file and replace the document through an
// atomic rename, so several processes can share one file.
type FileStore struct {
	path   string
	lock   *flock.Flock
	mu     sync.Mutex
	logger *slog.Logger
}

// OpenFile opens the history file at path, creating it (and its directory)
// when missing.
func OpenFile(ctx context.Context, path string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	fs := &FileStore{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger.With("component", "storage", "driver", "file"),
	}

	err := fs.exclusive(ctx, func() error {
		if _, err := os.Stat(path); err == nil {
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		fs.logger.Info("creating empty history file", "path", path)
		return fs.write(emptyDocument())
	})
	if err != nil {
		return nil, fmt.Errorf("initializing history file: %w", err)
	}
	return fs, nil
}

// Location returns the file path.
func (fs *FileStore) Location() string { return fs.path }

// Close releases the lock file handle.
func (fs *FileStore) Close() error {
	return fs.lock.Close()
}

func (fs *FileStore) Pushed(ctx context.Context, hashes []string) (map[string]bool, error) {
	doc, err := fs.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		if _, ok := doc.PushedItems[h]; ok {
			out[h] = true
		}
	}
	return out, nil
}

func (fs *FileStore) Entries(ctx context.Context) ([]history.Entry, error) {
	doc, err := fs.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]history.Entry, 0, len(doc.PushedItems))
	for _, e := range doc.PushedItems {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Hash < entries[j].Hash })
	return entries, nil
}

func (fs *FileStore) LastCleanup(ctx context.Context) (string, error) {
	doc, err := fs.snapshot(ctx)
	if err != nil {
		return "", err
	}
	if doc.LastCleanup == nil {
		return "", nil
	}
	return *doc.LastCleanup, nil
}

func (fs *FileStore) Put(ctx context.Context, entries []history.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return fs.update(ctx, func(doc *document) error {
		for _, e := range entries {
			doc.PushedItems[e.Hash] = e
		}
		return nil
	})
}

func (fs *FileStore) Prune(ctx context.Context, keep func(history.Entry) bool, at time.Time) (int, error) {
	removed := 0
	err := fs.update(ctx, func(doc *document) error {
		for hash, e := range doc.PushedItems {
			if !keep(e) {
				delete(doc.PushedItems, hash)
				removed++
			}
		}
		stamp := history.FormatPushTime(at)
		doc.LastCleanup = &stamp
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// snapshot reads the document under a shared lock.
func (fs *FileStore) snapshot(ctx context.Context) (*document, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ok, err := fs.lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("locking history file: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("locking history file: %w", ctx.Err())
	}
	defer fs.unlock()

	return fs.read()
}

// update runs a read-modify-write cycle under an exclusive lock. A corrupt
// file is moved aside and replaced by an empty document before fn runs.
func (fs *FileStore) update(ctx context.Context, fn func(*document) error) error {
	return fs.exclusive(ctx, func() error {
		doc, err := fs.read()
		if errors.Is(err, ErrCorrupt) {
			aside := fs.path + ".corrupt"
			fs.logger.Warn("history file corrupt, moving aside", "path", fs.path, "moved_to", aside, "error", err)
			if rerr := os.Rename(fs.path, aside); rerr != nil {
				return fmt.Errorf("moving corrupt history aside: %w", rerr)
			}
			doc, err = emptyDocument(), nil
		}
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
		return fs.write(doc)
	})
}

func (fs *FileStore) exclusive(ctx context.Context, fn func() error) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ok, err := fs.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("locking history file: %w", err)
	}
	if !ok {
		return fmt.Errorf("locking history file: %w", ctx.Err())
	}
	defer fs.unlock()

	return fn()
}

func (fs *FileStore) unlock() {
	if err := fs.lock.Unlock(); err != nil {
		fs.logger.Warn("failed to release history lock", "error", err)
	}
}

func (fs *FileStore) read() (*document, error) {
	data, err := os.ReadFile(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return emptyDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history file: %w", err)
	}
	if len(data) == 0 {
		return emptyDocument(), nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if doc.PushedItems == nil {
		doc.PushedItems = make(map[string]history.Entry)
	}
	for hash, e := range doc.PushedItems {
		if e.Hash == "" {
			e.Hash = hash
			doc.PushedItems[hash] = e
		}
	}
	return &doc, nil
}

func (fs *FileStore) write(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	if err := renameio.WriteFile(fs.path, data, 0o644); err != nil {
		return fmt.Errorf("writing history file: %w", err)
	}
	return nil
}
