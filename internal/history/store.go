// Package history is the durable ledger of items already delivered to the
// end user. It answers one question: has this exact (source, title, url)
// been pushed before?
package history

import (
	"context"
	"time"
)

// Entry is one delivered item as persisted.
type Entry struct {
	Hash     string `json:"hash"`
	Title    string `json:"title"`
	SourceID string `json:"source_id"`
	URL      string `json:"url"`
	PushTime string `json:"push_time"`
}

// Store is the persistence contract. Every mutating call must be atomic on
// its own so that concurrent processes cannot lose each other's updates.
type Store interface {
	// Pushed reports which of hashes are present.
	Pushed(ctx context.Context, hashes []string) (map[string]bool, error)
	// Put inserts or overwrites entries by hash.
	Put(ctx context.Context, entries []Entry) error
	// Entries returns every stored entry.
	Entries(ctx context.Context) ([]Entry, error)
	// Prune deletes the entries keep rejects and records at as the last
	// cleanup time. It returns the number of deleted entries.
	Prune(ctx context.Context, keep func(Entry) bool, at time.Time) (int, error)
	// LastCleanup returns the recorded cleanup time, or "" if none.
	LastCleanup(ctx context.Context) (string, error)
	// Location describes where the history lives.
	Location() string
	Close() error
}
