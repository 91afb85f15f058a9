package ratelimit

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBudgetExhausted is returned by Use once the daily budget is spent.
var ErrBudgetExhausted = errors.New("request budget exhausted")

// Budget caps the number of paid model requests per day and tracks how many
// were avoided through caching.
type Budget struct {
	mu          sync.Mutex
	used        int
	max         int
	cacheHits   int
	cacheMisses int
	resetTime   time.Time
	now         func() time.Time
	logger      *slog.Logger
}

// NewBudget allows max requests per 24h window. max <= 0 means unlimited.
func NewBudget(max int, logger *slog.Logger) *Budget {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Budget{
		max:    max,
		now:    time.Now,
		logger: logger.With("component", "ratelimit"),
	}
	b.resetTime = b.now().Add(24 * time.Hour)
	return b
}

// Use consumes one request.
func (b *Budget) Use() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkReset()
	if b.max > 0 && b.used >= b.max {
		b.logger.Warn("request budget reached", "used", b.used, "limit", b.max)
		return ErrBudgetExhausted
	}

	b.used++
	b.cacheMisses++
	b.logger.Debug("request budget used", "used", b.used, "limit", b.max)
	return nil
}

// RecordCacheHit counts a request answered from cache.
func (b *Budget) RecordCacheHit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cacheHits++
}

// GetStats returns current usage for the monitoring endpoint.
func (b *Budget) GetStats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	hitRate := 0.0
	if total := b.cacheHits + b.cacheMisses; total > 0 {
		hitRate = float64(b.cacheHits) / float64(total) * 100
	}
	return map[string]interface{}{
		"used":           b.used,
		"limit":          b.max,
		"cache_hits":     b.cacheHits,
		"cache_misses":   b.cacheMisses,
		"cache_hit_rate": hitRate,
		"reset_time":     b.resetTime.Format(time.RFC3339),
	}
}

func (b *Budget) checkReset() {
	if b.now().After(b.resetTime) {
		b.logger.Info("resetting request budget", "used", b.used, "cache_hits", b.cacheHits)
		b.used = 0
		b.cacheHits = 0
		b.cacheMisses = 0
		b.resetTime = b.now().Add(24 * time.Hour)
	}
}
