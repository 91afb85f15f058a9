package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/deusflow/hotpush/internal/content"
	"github.com/deusflow/hotpush/internal/fingerprint"
)

// History answers push-history questions on top of a Store. Read failures
// are logged and treated as an empty history so a broken ledger causes a
// re-send rather than a crash.
type History struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a History.
type Option func(*History)

// WithClock replaces time.Now, mainly for retention tests.
func WithClock(now func() time.Time) Option {
	return func(h *History) { h.now = now }
}

// New wraps store.
func New(store Store, logger *slog.Logger, opts ...Option) *History {
	if logger == nil {
		logger = slog.Default()
	}
	h := &History{
		store:  store,
		logger: logger.With("component", "history"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Statistics summarizes the ledger.
type Statistics struct {
	TotalPushed        int            `json:"total_pushed"`
	SourceDistribution map[string]int `json:"source_distribution"`
	DateDistribution   map[string]int `json:"date_distribution"`
	LastCleanup        *string        `json:"last_cleanup"` // nil until the first cleanup
	Location           string         `json:"location"`
}

// HasBeenPushed reports whether the exact triple is in the ledger.
func (h *History) HasBeenPushed(ctx context.Context, title, source, url string) bool {
	hash := fingerprint.HistoryHash(title, source, url)
	pushed, err := h.store.Pushed(ctx, []string{hash})
	if err != nil {
		h.logger.Warn("history lookup failed, treating as not pushed", "error", err)
		return false
	}
	return pushed[hash]
}

// MarkAsPushed records one delivered item. A zero at means now.
func (h *History) MarkAsPushed(ctx context.Context, title, source, url string, at time.Time) error {
	entry := h.entry(title, source, url, h.stamp(at))
	if err := h.store.Put(ctx, []Entry{entry}); err != nil {
		return fmt.Errorf("marking %q as pushed: %w", title, err)
	}
	return nil
}

// GetNewItems returns the items of batch that were never pushed, in order.
func (h *History) GetNewItems(ctx context.Context, batch content.Batch) content.Batch {
	if len(batch) == 0 {
		return nil
	}

	hashes := make([]string, len(batch))
	for i, it := range batch {
		hashes[i] = fingerprint.HistoryHash(it.Title, it.Source, it.URL)
	}

	pushed, err := h.store.Pushed(ctx, hashes)
	if err != nil {
		h.logger.Warn("history unreadable, treating whole batch as new", "error", err, "items", len(batch))
		pushed = nil
	}

	var fresh content.Batch
	for i, it := range batch {
		if !pushed[hashes[i]] {
			fresh = append(fresh, it)
		}
	}
	h.logger.Info("incremental diff computed", "input", len(batch), "new", len(fresh))
	return fresh
}

// MarkItemsAsPushed commits a delivered batch with one shared timestamp.
func (h *History) MarkItemsAsPushed(ctx context.Context, batch content.Batch, at time.Time) error {
	if len(batch) == 0 {
		return nil
	}
	stamp := h.stamp(at)
	entries := make([]Entry, 0, len(batch))
	for _, it := range batch {
		entries = append(entries, h.entry(it.Title, it.Source, it.URL, stamp))
	}
	if err := h.store.Put(ctx, entries); err != nil {
		return fmt.Errorf("committing %d pushed items: %w", len(entries), err)
	}
	h.logger.Info("pushed items committed", "items", len(entries), "push_time", stamp)
	return nil
}

// CleanupOldRecords drops entries pushed strictly more than daysToKeep days
// ago. Entries whose timestamp cannot be parsed are kept.
func (h *History) CleanupOldRecords(ctx context.Context, daysToKeep int) (int, error) {
	now := h.now()
	cutoff := now.Add(-time.Duration(daysToKeep) * 24 * time.Hour)

	keep := func(e Entry) bool {
		t, err := ParsePushTime(e.PushTime)
		if err != nil {
			return true
		}
		return !t.Before(cutoff)
	}

	removed, err := h.store.Prune(ctx, keep, now)
	if err != nil {
		return 0, fmt.Errorf("cleaning up history: %w", err)
	}
	h.logger.Info("history cleanup finished", "removed", removed, "days_to_keep", daysToKeep)
	return removed, nil
}

// Statistics reports totals per source and per push date. An unreadable
// store reports as empty.
func (h *History) Statistics(ctx context.Context) Statistics {
	stats := Statistics{
		SourceDistribution: make(map[string]int),
		DateDistribution:   make(map[string]int),
		Location:           h.store.Location(),
	}

	entries, err := h.store.Entries(ctx)
	if err != nil {
		h.logger.Warn("history unreadable, reporting empty statistics", "error", err)
		entries = nil
	}
	stats.TotalPushed = len(entries)
	for _, e := range entries {
		stats.SourceDistribution[e.SourceID]++
		if t, err := ParsePushTime(e.PushTime); err == nil {
			stats.DateDistribution[t.Format("2006-01-02")]++
		}
	}

	last, err := h.store.LastCleanup(ctx)
	if err != nil {
		h.logger.Warn("last cleanup unreadable", "error", err)
	}
	if last != "" {
		stats.LastCleanup = &last
	}
	return stats
}

func (h *History) stamp(at time.Time) string {
	if at.IsZero() {
		at = h.now()
	}
	return FormatPushTime(at)
}

func (h *History) entry(title, source, url, stamp string) Entry {
	return Entry{
		Hash:     fingerprint.HistoryHash(title, source, url),
		Title:    title,
		SourceID: source,
		URL:      url,
		PushTime: stamp,
	}
}
