// Package pipeline runs one poll cycle: collect from every source, drop
// duplicates inside the poll, drop what was already pushed, notify, and only
// then record the delivery in the push history.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/deusflow/hotpush/internal/content"
	"github.com/deusflow/hotpush/internal/dedup"
	"github.com/deusflow/hotpush/internal/history"
	"github.com/deusflow/hotpush/internal/metrics"
)

const fetchTimeout = 30 * time.Second

// Source is one trending platform.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]content.Item, error)
}

// Categorizer groups a digest into topics.
type Categorizer interface {
	Categorize(ctx context.Context, items content.Batch) ([]content.Topic, error)
}

// Translator rewrites titles for display. It must not modify its input.
type Translator interface {
	Translate(ctx context.Context, items content.Batch) content.Batch
}

// Notifier delivers a digest. A nil error means the push is confirmed.
type Notifier interface {
	Notify(ctx context.Context, d Delivery) error
}

// Delivery is what the push layer receives.
type Delivery struct {
	Items  content.Batch
	Topics []content.Topic
	Stats  *dedup.Stats
}

// Config wires a Runner.
type Config struct {
	Sources     []Source
	History     *history.History
	Notifier    Notifier
	Categorizer Categorizer      // optional
	Translator  Translator       // optional
	Metrics     *metrics.Metrics // optional

	Dedup         dedup.Options
	Concurrency   int
	RatePerSecond float64
	DryRun        bool

	Logger *slog.Logger
}

// Report summarizes one cycle.
type Report struct {
	Collected     int
	FailedSources []string
	Unique        int
	New           int
	Committed     bool
	Dedup         dedup.Stats
	Duration      time.Duration
}

type Runner struct {
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
}

func New(cfg Config) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &Runner{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  cfg.Logger.With("component", "pipeline"),
	}
}

// Collect polls every source concurrently. Failed sources are logged and
// skipped. Items keep source configuration order, then fetch order.
func (r *Runner) Collect(ctx context.Context) (content.Batch, []string) {
	results := make([][]content.Item, len(r.cfg.Sources))
	errs := make([]error, len(r.cfg.Sources))

	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i, src := range r.cfg.Sources {
		i, src := i, src
		g.Go(func() error {
			if err := r.limiter.Wait(ctx); err != nil {
				errs[i] = err
				return nil
			}
			fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
			defer cancel()
			results[i], errs[i] = src.Fetch(fetchCtx)
			return nil
		})
	}
	_ = g.Wait()

	var batch content.Batch
	var failed []string
	for i, src := range r.cfg.Sources {
		if errs[i] != nil {
			r.logger.Warn("source failed, skipping", "source", src.Name(), "error", errs[i])
			failed = append(failed, src.Name())
			continue
		}
		r.logger.Debug("source fetched", "source", src.Name(), "items", len(results[i]))
		batch = append(batch, results[i]...)
	}
	return batch, failed
}

// Deliver pushes the part of batch that was never delivered and commits it to
// history once the notifier confirms. A failed push commits nothing. It
// returns the items that were pushed, with their original titles; the
// notifier may see translated ones.
func (r *Runner) Deliver(ctx context.Context, batch content.Batch, stats *dedup.Stats) (content.Batch, error) {
	fresh := r.cfg.History.GetNewItems(ctx, batch)
	if m := r.cfg.Metrics; m != nil {
		m.AddAlreadyPushed(len(batch) - len(fresh))
	}
	if len(fresh) == 0 {
		r.logger.Info("nothing new to push", "input", len(batch))
		return nil, nil
	}

	display := fresh
	if r.cfg.Translator != nil {
		display = r.cfg.Translator.Translate(ctx, fresh)
	}
	topics := r.categorize(ctx, display)

	if err := r.cfg.Notifier.Notify(ctx, Delivery{Items: display, Topics: topics, Stats: stats}); err != nil {
		if m := r.cfg.Metrics; m != nil {
			m.IncrementPushFailures()
		}
		return fresh, fmt.Errorf("push failed, history left untouched: %w", err)
	}

	if r.cfg.DryRun {
		r.logger.Info("dry run, not recording pushed items", "items", len(fresh))
		return fresh, nil
	}
	if err := r.cfg.History.MarkItemsAsPushed(ctx, fresh, time.Time{}); err != nil {
		return fresh, fmt.Errorf("recording pushed items: %w", err)
	}
	if m := r.cfg.Metrics; m != nil {
		m.AddPushed(len(fresh))
	}
	return fresh, nil
}

// RunCycle performs one full poll cycle.
func (r *Runner) RunCycle(ctx context.Context) (Report, error) {
	start := time.Now()
	var rep Report

	batch, failed := r.Collect(ctx)
	rep.Collected = len(batch)
	rep.FailedSources = failed
	r.logger.Info("collected items", "items", len(batch), "sources", len(r.cfg.Sources), "failed", len(failed))

	detector := dedup.New(r.cfg.Dedup, r.cfg.Logger)
	unique := detector.Filter(batch)
	rep.Unique = len(unique)
	rep.Dedup = detector.Stats()
	r.logger.Info("duplicate detection finished", "unique", len(unique), "duplicates", rep.Dedup.TotalDuplicates)

	if m := r.cfg.Metrics; m != nil {
		m.AddCollected(len(batch), len(failed))
		m.RecordDedup(rep.Dedup)
	}

	pushed, err := r.Deliver(ctx, unique, &rep.Dedup)
	rep.New = len(pushed)
	rep.Committed = err == nil && len(pushed) > 0 && !r.cfg.DryRun
	rep.Duration = time.Since(start)

	if m := r.cfg.Metrics; m != nil {
		m.RecordProcessingTime(rep.Duration)
		if err != nil {
			m.SetError(err.Error())
		} else {
			m.SetLastRun()
		}
	}
	return rep, err
}

func (r *Runner) categorize(ctx context.Context, items content.Batch) []content.Topic {
	if r.cfg.Categorizer == nil {
		return content.TopicsBySource(items)
	}
	topics, err := r.cfg.Categorizer.Categorize(ctx, items)
	if err != nil {
		r.logger.Warn("categorization failed, grouping by platform", "error", err)
		return content.TopicsBySource(items)
	}
	return topics
}
