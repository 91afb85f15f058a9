package metrics

import (
	"sync"
	"time"

	"github.com/deusflow/hotpush/internal/dedup"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	CyclesRun          int64
	ItemsCollected     int64
	SourceFailures     int64
	DuplicatesFiltered int64
	AlreadyPushed      int64
	ItemsPushed        int64
	PushFailures       int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool

	lastDedup *dedup.Stats
	budget    BudgetReporter
}

// BudgetReporter exposes model request usage.
type BudgetReporter interface {
	GetStats() map[string]interface{}
}

func New() *Metrics {
	return &Metrics{IsHealthy: true}
}

// TrackBudget adds the model request budget to GetStats.
func (m *Metrics) TrackBudget(b BudgetReporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budget = b
}

func (m *Metrics) AddCollected(n int, failedSources int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsCollected += int64(n)
	m.SourceFailures += int64(failedSources)
}

// RecordDedup stores the detector snapshot of the latest cycle.
func (m *Metrics) RecordDedup(stats dedup.Stats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesFiltered += int64(stats.TotalDuplicates)
	m.lastDedup = &stats
}

func (m *Metrics) AddAlreadyPushed(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AlreadyPushed += int64(n)
}

func (m *Metrics) AddPushed(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsPushed += int64(n)
}

func (m *Metrics) IncrementPushFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PushFailures++
}

func (m *Metrics) RecordProcessingTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.CyclesRun++
	m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.CyclesRun)
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

// LastDedup returns the latest detector snapshot, if any cycle ran.
func (m *Metrics) LastDedup() (dedup.Stats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastDedup == nil {
		return dedup.Stats{}, false
	}
	return *m.lastDedup, true
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := map[string]interface{}{
		"cycles_run":                 m.CyclesRun,
		"items_collected":            m.ItemsCollected,
		"source_failures":            m.SourceFailures,
		"duplicates_filtered":        m.DuplicatesFiltered,
		"already_pushed":             m.AlreadyPushed,
		"items_pushed":               m.ItemsPushed,
		"push_failures":              m.PushFailures,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_run_time":              m.LastRunTime.Format(time.RFC3339),
		"last_error_time":            m.LastErrorTime.Format(time.RFC3339),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
	if m.lastDedup != nil {
		stats["last_duplicate_rate"] = m.lastDedup.DuplicateRate()
	}
	if m.budget != nil {
		stats["ai_budget"] = m.budget.GetStats()
	}
	return stats
}
