// Package app wires configuration, storage, sources and delivery together.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/deusflow/hotpush/internal/categorize"
	"github.com/deusflow/hotpush/internal/config"
	"github.com/deusflow/hotpush/internal/dedup"
	"github.com/deusflow/hotpush/internal/gemini"
	"github.com/deusflow/hotpush/internal/history"
	"github.com/deusflow/hotpush/internal/metrics"
	"github.com/deusflow/hotpush/internal/openai"
	"github.com/deusflow/hotpush/internal/pipeline"
	"github.com/deusflow/hotpush/internal/ratelimit"
	"github.com/deusflow/hotpush/internal/retry"
	"github.com/deusflow/hotpush/internal/rss"
	"github.com/deusflow/hotpush/internal/scraper"
	"github.com/deusflow/hotpush/internal/telegram"
	"github.com/deusflow/hotpush/internal/translate"
)

// App holds the long-lived pieces shared by every command.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Store   history.Store
	History *history.History
	Metrics *metrics.Metrics

	// Out receives the digest when no Telegram credentials are set.
	Out io.Writer

	// Model clients live as long as the App so the daily request budget
	// and the caches hold across cycles.
	aiOnce      sync.Once
	budget      *ratelimit.Budget
	categorizer *categorize.Categorizer
	translator  *translate.Translator

	closers []func()
}

// New opens the configured history store.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("opening %s history: %w", cfg.HistoryDriver, err)
	}
	logger.Info("history store opened", "driver", cfg.HistoryDriver, "location", store.Location())

	return &App{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		History: history.New(store, logger),
		Metrics: metrics.New(),
		Out:     os.Stdout,
	}, nil
}

// Close releases the store and anything the runner opened.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if err := a.Store.Close(); err != nil {
		a.Logger.Warn("closing history store", "error", err)
	}
}

// DedupOptions maps configuration onto detector options.
func (a *App) DedupOptions() dedup.Options {
	return dedup.Options{
		SimilarityEnabled:   a.Config.SimilarityEnabled,
		SimilarityThreshold: a.Config.SimilarityThreshold,
		SimilarityMaxBatch:  a.Config.SimilarityMaxBatch,
	}
}

// Runner builds a pipeline runner from the sources file and the configured
// categorizer, translator and notifier.
func (a *App) Runner(ctx context.Context, dryRun bool) (*pipeline.Runner, error) {
	defs, err := config.LoadSources(a.Config.SourcesConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading sources: %w", err)
	}
	client := &http.Client{Timeout: a.Config.RequestTimeout}
	sources, err := BuildSources(defs, client, a.Logger)
	if err != nil {
		return nil, err
	}

	cfg := pipeline.Config{
		Sources:       sources,
		History:       a.History,
		Notifier:      a.notifier(),
		Metrics:       a.Metrics,
		Dedup:         a.DedupOptions(),
		Concurrency:   a.Config.FetchConcurrency,
		RatePerSecond: a.Config.FetchRatePerSecond,
		DryRun:        dryRun,
		Logger:        a.Logger,
	}

	a.aiOnce.Do(func() { a.initAI(ctx) })
	if a.categorizer != nil {
		cfg.Categorizer = a.categorizer
	}
	if a.translator != nil {
		cfg.Translator = a.translator
	}
	return pipeline.New(cfg), nil
}

// initAI builds the shared request budget, categorizer and translator.
func (a *App) initAI(ctx context.Context) {
	gen := a.generator(ctx)
	a.budget = ratelimit.NewBudget(a.Config.MaxAIRequests, a.Logger)
	if gen != nil {
		a.categorizer = categorize.New(gen, a.budget, a.Logger)
		a.closers = append(a.closers, a.categorizer.Close)
		a.Metrics.TrackBudget(a.budget)
	}

	if len(a.Config.TranslateSources) > 0 {
		var tgen translate.Generator
		if gen != nil {
			tgen = gen
		}
		a.translator = translate.New(translate.Options{
			Sources:  a.Config.TranslateSources,
			Language: a.Config.TranslateLanguage,
		}, tgen, a.budget, a.Logger)
		a.closers = append(a.closers, a.translator.Close)
	}
}

// generator picks Gemini first, then an OpenAI compatible endpoint. It
// returns nil when neither is configured or reachable.
func (a *App) generator(ctx context.Context) categorize.Generator {
	if a.Config.GeminiAPIKey != "" {
		client, err := gemini.NewClient(ctx, a.Config.GeminiAPIKey, a.Config.GeminiModel)
		if err == nil {
			a.closers = append(a.closers, client.Close)
			return client
		}
		a.Logger.Warn("Gemini unavailable", "error", err)
	}
	if a.Config.OpenAIAPIKey != "" {
		return openai.NewClient(a.Config.OpenAIAPIKey, a.Config.OpenAIModel, a.Config.OpenAIBaseURL)
	}
	a.Logger.Info("no categorization model configured, grouping by platform")
	return nil
}

// Run cleans up expired history and performs one poll cycle.
func (a *App) Run(ctx context.Context, dryRun bool) (pipeline.Report, error) {
	if a.Config.RetentionDays > 0 && !dryRun {
		if _, err := a.History.CleanupOldRecords(ctx, a.Config.RetentionDays); err != nil {
			a.Logger.Warn("history cleanup failed", "error", err)
		}
	}

	runner, err := a.Runner(ctx, dryRun)
	if err != nil {
		a.Metrics.SetError(err.Error())
		return pipeline.Report{}, err
	}
	rep, err := runner.RunCycle(ctx)
	a.Logger.Info("cycle finished",
		"collected", rep.Collected,
		"unique", rep.Unique,
		"new", rep.New,
		"committed", rep.Committed,
		"failed_sources", len(rep.FailedSources),
		"duration", rep.Duration)
	return rep, err
}

func (a *App) notifier() pipeline.Notifier {
	if !a.Config.TelegramEnabled() {
		a.Logger.Info("Telegram not configured, printing digest")
		return pipeline.WriterNotifier{W: a.Out}
	}
	rc := retry.Config{MaxAttempts: a.Config.RetryAttempts, Delay: a.Config.RetryDelay, Backoff: true}
	return telegram.New(a.Config.TelegramToken, a.Config.TelegramChatID, rc, a.Logger)
}

// BuildSources turns source definitions into fetchers.
func BuildSources(defs []config.Source, client *http.Client, logger *slog.Logger) ([]pipeline.Source, error) {
	sources := make([]pipeline.Source, 0, len(defs))
	for _, d := range defs {
		switch d.Type {
		case config.SourceRSS:
			sources = append(sources, rss.New(d.ID, d.URL, d.Limit, client, logger))
		case config.SourceHTML:
			sources = append(sources, scraper.New(d.ID, d.URL, scraper.Options{
				ItemSelector:  d.ItemSelector,
				TitleSelector: d.TitleSelector,
				Limit:         d.Limit,
			}, client, logger))
		default:
			return nil, fmt.Errorf("source %q: unsupported type %q", d.ID, d.Type)
		}
	}
	return sources, nil
}
