package history

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deusflow/hotpush/internal/content"
)

type memStore struct {
	mu          sync.Mutex
	items       map[string]Entry
	lastCleanup string
	puts        int
}

func newMemStore() *memStore {
	return &memStore{items: make(map[string]Entry)}
}

func (m *memStore) Pushed(_ context.Context, hashes []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool)
	for _, h := range hashes {
		if _, ok := m.items[h]; ok {
			out[h] = true
		}
	}
	return out, nil
}

func (m *memStore) Put(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	for _, e := range entries {
		m.items[e.Hash] = e
	}
	return nil
}

func (m *memStore) Entries(context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.items))
	for _, e := range m.items {
		out = append(out, e)
	}
	return out, nil
}

func (m *memStore) Prune(_ context.Context, keep func(Entry) bool, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for h, e := range m.items {
		if !keep(e) {
			delete(m.items, h)
			removed++
		}
	}
	m.lastCleanup = FormatPushTime(at)
	return removed, nil
}

func (m *memStore) LastCleanup(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCleanup, nil
}

func (m *memStore) Location() string { return "memory" }
func (m *memStore) Close() error     { return nil }

type brokenStore struct{ memStore }

var errBroken = errors.New("disk on fire")

func (*brokenStore) Pushed(context.Context, []string) (map[string]bool, error) { return nil, errBroken }
func (*brokenStore) Entries(context.Context) ([]Entry, error)                  { return nil, errBroken }
func (*brokenStore) Put(context.Context, []Entry) error                        { return errBroken }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestMarkAsPushed_RoundTrip(t *testing.T) {
	ctx := context.Background()
	h := New(newMemStore(), quietLogger())

	if h.HasBeenPushed(ctx, "新闻A", "weibo", "u1") {
		t.Fatal("empty history should report nothing pushed")
	}
	if err := h.MarkAsPushed(ctx, "新闻A", "weibo", "u1", time.Time{}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if !h.HasBeenPushed(ctx, "新闻A", "weibo", "u1") {
		t.Error("marked item should be reported as pushed")
	}
	for _, other := range [][3]string{
		{"新闻A", "weibo", "u2"},
		{"新闻A", "zhihu", "u1"},
		{"新闻B", "weibo", "u1"},
	} {
		if h.HasBeenPushed(ctx, other[0], other[1], other[2]) {
			t.Errorf("%v was never pushed", other)
		}
	}
}

func TestMarkAsPushed_OverwritesTimestamp(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	h := New(store, quietLogger())

	first := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	second := first.Add(48 * time.Hour)
	if err := h.MarkAsPushed(ctx, "t", "s", "u", first); err != nil {
		t.Fatal(err)
	}
	if err := h.MarkAsPushed(ctx, "t", "s", "u", second); err != nil {
		t.Fatal(err)
	}

	entries, _ := store.Entries(ctx)
	if len(entries) != 1 {
		t.Fatalf("re-marking must not duplicate entries, got %d", len(entries))
	}
	if entries[0].PushTime != FormatPushTime(second) {
		t.Errorf("push time = %s, want %s", entries[0].PushTime, FormatPushTime(second))
	}
}

func TestGetNewItems_IncrementalConvergence(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	h := New(store, quietLogger())

	batch := content.Batch{
		{Title: "新闻A", Source: "weibo", URL: "https://weibo.com/1"},
		{Title: "新闻B", Source: "weibo", URL: "https://weibo.com/2"},
		{Title: "新闻C", Source: "zhihu", URL: "https://zhihu.com/1"},
	}

	fresh := h.GetNewItems(ctx, batch)
	if len(fresh) != 3 {
		t.Fatalf("first run should return everything, got %d", len(fresh))
	}
	if err := h.MarkItemsAsPushed(ctx, fresh, time.Time{}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if store.puts != 1 {
		t.Errorf("batch commit should be a single store call, got %d", store.puts)
	}
	if again := h.GetNewItems(ctx, batch); len(again) != 0 {
		t.Errorf("second run should be empty, got %+v", again)
	}
}

func TestGetNewItems_DropsExhaustedSources(t *testing.T) {
	ctx := context.Background()
	h := New(newMemStore(), quietLogger())
	if err := h.MarkAsPushed(ctx, "新闻C", "zhihu", "https://zhihu.com/1", time.Time{}); err != nil {
		t.Fatal(err)
	}

	fresh := h.GetNewItems(ctx, content.Batch{
		{Title: "新闻C", Source: "zhihu", URL: "https://zhihu.com/1"},
		{Title: "新闻E", Source: "bilibili", URL: "https://bilibili.com/1"},
	})
	if sources := fresh.Sources(); len(sources) != 1 || sources[0] != "bilibili" {
		t.Errorf("only bilibili should remain, got %v", sources)
	}
}

func TestMarkItemsAsPushed_SharedTimestamp(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	h := New(store, quietLogger(), WithClock(fixedClock(now)))

	err := h.MarkItemsAsPushed(ctx, content.Batch{
		{Title: "a", Source: "x"},
		{Title: "b", Source: "y"},
	}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	entries, _ := store.Entries(ctx)
	for _, e := range entries {
		if e.PushTime != FormatPushTime(now) {
			t.Errorf("entry %q has push time %s, want %s", e.Title, e.PushTime, FormatPushTime(now))
		}
	}
}

func TestCleanupOldRecords_RetentionBoundary(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	h := New(store, quietLogger(), WithClock(fixedClock(now)))

	exact := now.Add(-30 * 24 * time.Hour)
	older := exact.Add(-time.Second)
	_ = store.Put(ctx, []Entry{
		{Hash: "exact", SourceID: "s", PushTime: FormatPushTime(exact)},
		{Hash: "older", SourceID: "s", PushTime: FormatPushTime(older)},
		{Hash: "fresh", SourceID: "s", PushTime: FormatPushTime(now)},
		{Hash: "garbled", SourceID: "s", PushTime: "yesterday-ish"},
		{Hash: "missing", SourceID: "s"},
	})

	removed, err := h.CleanupOldRecords(ctx, 30)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	left, _ := store.Pushed(ctx, []string{"exact", "older", "fresh", "garbled", "missing"})
	for _, want := range []string{"exact", "fresh", "garbled", "missing"} {
		if !left[want] {
			t.Errorf("%s should be retained", want)
		}
	}
	if left["older"] {
		t.Error("entry older than the window should be dropped")
	}

	if last, _ := store.LastCleanup(ctx); last != FormatPushTime(now) {
		t.Errorf("last cleanup = %q", last)
	}
}

func TestCleanupOldRecords_NaiveTimestamps(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.Local)
	h := New(store, quietLogger(), WithClock(fixedClock(now)))

	_ = store.Put(ctx, []Entry{
		{Hash: "old", PushTime: "2025-01-01T10:00:00.123456"},
		{Hash: "new", PushTime: "2025-06-29 10:00:00"},
	})
	if _, err := h.CleanupOldRecords(ctx, 7); err != nil {
		t.Fatal(err)
	}
	left, _ := store.Pushed(ctx, []string{"old", "new"})
	if left["old"] || !left["new"] {
		t.Errorf("unexpected retention result: %v", left)
	}
}

func TestStatistics(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	h := New(store, quietLogger())

	day1 := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC)
	_ = h.MarkAsPushed(ctx, "a", "weibo", "u1", day1)
	_ = h.MarkAsPushed(ctx, "b", "weibo", "u2", day2)
	_ = h.MarkAsPushed(ctx, "c", "zhihu", "u3", day2)
	_ = store.Put(ctx, []Entry{{Hash: "bad", SourceID: "zhihu", PushTime: "not a date"}})

	s := h.Statistics(ctx)
	if s.TotalPushed != 4 {
		t.Errorf("total = %d, want 4", s.TotalPushed)
	}
	if s.SourceDistribution["weibo"] != 2 || s.SourceDistribution["zhihu"] != 2 {
		t.Errorf("unexpected source distribution: %v", s.SourceDistribution)
	}
	if s.DateDistribution["2025-05-01"] != 1 || s.DateDistribution["2025-05-02"] != 2 || len(s.DateDistribution) != 2 {
		t.Errorf("unexpected date distribution: %v", s.DateDistribution)
	}
	if s.Location != "memory" || s.LastCleanup != nil {
		t.Errorf("unexpected metadata: %+v", s)
	}
}

func TestStatistics_LastCleanupJSON(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	h := New(store, quietLogger())

	raw, err := json.Marshal(h.Statistics(ctx))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"last_cleanup":null`) {
		t.Errorf("never-cleaned history should report null: %s", raw)
	}

	if _, err := h.CleanupOldRecords(ctx, 7); err != nil {
		t.Fatal(err)
	}
	s := h.Statistics(ctx)
	if s.LastCleanup == nil || *s.LastCleanup == "" {
		t.Fatalf("last cleanup not reported: %+v", s)
	}
	raw, _ = json.Marshal(s)
	if !strings.Contains(string(raw), `"last_cleanup":"`+*s.LastCleanup+`"`) {
		t.Errorf("unexpected JSON: %s", raw)
	}
}

func TestFailOpen_OnUnreadableStore(t *testing.T) {
	ctx := context.Background()
	h := New(&brokenStore{}, quietLogger())
	batch := content.Batch{{Title: "a", Source: "x"}, {Title: "b", Source: "y"}}

	if h.HasBeenPushed(ctx, "a", "x", "") {
		t.Error("broken store must read as empty")
	}
	if got := h.GetNewItems(ctx, batch); len(got) != 2 {
		t.Errorf("broken store should yield the whole batch, got %d", len(got))
	}
	if s := h.Statistics(ctx); s.TotalPushed != 0 {
		t.Errorf("broken store should report empty stats: %+v", s)
	}
	if err := h.MarkItemsAsPushed(ctx, batch, time.Time{}); !errors.Is(err, errBroken) {
		t.Errorf("write failures must surface, got %v", err)
	}
}

func TestParsePushTime(t *testing.T) {
	for _, in := range []string{
		"2025-01-02T03:04:05Z",
		"2025-01-02T03:04:05.123456789+08:00",
		"2025-01-02T03:04:05.123456",
		"2025-01-02T03:04:05",
		"2025-01-02 03:04:05",
	} {
		if _, err := ParsePushTime(in); err != nil {
			t.Errorf("ParsePushTime(%q): %v", in, err)
		}
	}
	for _, in := range []string{"", "   ", "02/01/2025", "tomorrow"} {
		if _, err := ParsePushTime(in); err == nil {
			t.Errorf("ParsePushTime(%q) should fail", in)
		}
	}
}
