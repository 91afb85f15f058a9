package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/deusflow/hotpush/internal/config"
	"github.com/deusflow/hotpush/internal/dedup"
	"github.com/deusflow/hotpush/internal/fingerprint"
)

var (
	flagDryRun       bool
	flagEvery        time.Duration
	flagDetails      bool
	flagNoSimilarity bool
	flagThreshold    float64
	flagCommit       bool
	flagDays         int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a poll cycle: collect, dedup, diff, notify, commit",
	Long: `Collect every configured source, drop duplicates inside the poll, drop what
was already pushed, deliver the rest and record it in the push history.

With --every the cycle repeats until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.Config.EnableMonitoring {
			srv := startMonitoringServer(a.Config.MonitoringPort, a.Metrics, a.History, slog.Default())
			defer shutdownMonitoringServer(srv)
		}

		cycle := func(ctx context.Context) error {
			_, err := a.Run(ctx, flagDryRun)
			return err
		}
		if flagEvery <= 0 {
			return cycle(ctx)
		}
		runEvery(ctx, flagEvery, cycle)
		return nil
	},
}

// runEvery runs cycle now and then at every interval until ctx is done.
// A failed cycle is logged and the next one runs on schedule.
func runEvery(ctx context.Context, every time.Duration, cycle func(context.Context) error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if err := cycle(ctx); err != nil {
			slog.Error("cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

var dedupCmd = &cobra.Command{
	Use:   "dedup <batch.json|->",
	Short: "Remove duplicates inside a batch",
	Long: `Run the duplicate detector over a batch document and print the unique
items as JSON. The summary goes to stderr.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		batch, err := readBatch(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}

		opts := dedup.Options{
			SimilarityEnabled:   cfg.SimilarityEnabled && !flagNoSimilarity,
			SimilarityThreshold: cfg.SimilarityThreshold,
			SimilarityMaxBatch:  cfg.SimilarityMaxBatch,
		}
		if cmd.Flags().Changed("threshold") {
			if flagThreshold <= 0 || flagThreshold > 1 {
				return fmt.Errorf("--threshold must be in (0, 1], got %v", flagThreshold)
			}
			opts.SimilarityThreshold = flagThreshold
		}

		d := dedup.New(opts, slog.Default())
		unique := d.Filter(batch)
		if err := writeJSON(cmd.OutOrStdout(), unique); err != nil {
			return err
		}

		fmt.Fprintln(cmd.ErrOrStderr(), d.Summary())
		if flagDetails {
			fmt.Fprintln(cmd.ErrOrStderr(), d.Details())
		}
		return nil
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff <batch.json|->",
	Short: "Print the part of a batch that was never pushed",
	Long: `Compare a batch with the push history and print the items not delivered yet.

--commit records the printed items as pushed. Use it only once delivery is confirmed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		batch, err := readBatch(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		fresh := a.History.GetNewItems(ctx, batch)
		if err := writeJSON(cmd.OutOrStdout(), fresh); err != nil {
			return err
		}

		if flagCommit && len(fresh) > 0 {
			if err := a.History.MarkItemsAsPushed(ctx, fresh, time.Time{}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Committed %d item(s).\n", len(fresh))
		}
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Drop push history older than the retention period",
	Long: `Delete history entries pushed more than the retention period ago.

Uses HISTORY_RETENTION_DAYS (default: 30) unless overridden with --days.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		days := a.Config.RetentionDays
		if cmd.Flags().Changed("days") {
			if flagDays < 0 {
				return errors.New("--days must not be negative")
			}
			days = flagDays
		}

		removed, err := a.History.CleanupOldRecords(ctx, days)
		if err != nil {
			return err
		}
		if removed == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to clean up.")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d record(s) older than %d day(s).\n", removed, days)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show push history statistics as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		return writeJSON(cmd.OutOrStdout(), a.History.Statistics(ctx))
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the configured history store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Driver: %s\n", a.Config.HistoryDriver)
		fmt.Fprintf(out, "Location: %s\n", a.Store.Location())

		entries, err := a.Store.Entries(ctx)
		if err != nil {
			return fmt.Errorf("reading history: %w", err)
		}
		fmt.Fprintf(out, "Entries: %d\n", len(entries))
		if len(entries) > 0 {
			e := entries[0]
			fmt.Fprintf(out, "Sample: %s [%s] %s (%s)\n", e.Hash, e.SourceID, e.Title, e.PushTime)
		}

		last, err := a.Store.LastCleanup(ctx)
		if err != nil {
			return fmt.Errorf("reading last cleanup: %w", err)
		}
		if last == "" {
			last = "never"
		}
		fmt.Fprintf(out, "Last cleanup: %s\n", last)

		key := fingerprint.HistoryHash("hotpush check", "hotpush", "")
		pushed, err := a.Store.Pushed(ctx, []string{key})
		if err != nil {
			return fmt.Errorf("lookup: %w", err)
		}
		fmt.Fprintf(out, "Lookup: ok (key %s pushed=%t)\n", key, pushed[key])
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "deliver without recording anything in the history")
	runCmd.Flags().DurationVar(&flagEvery, "every", 0, "repeat the cycle at this interval (e.g. 10m)")

	dedupCmd.Flags().BoolVar(&flagDetails, "details", false, "also print every duplicate pair")
	dedupCmd.Flags().BoolVar(&flagNoSimilarity, "no-similarity", false, "disable the similarity tier")
	dedupCmd.Flags().Float64Var(&flagThreshold, "threshold", dedup.DefaultSimilarityThreshold, "similarity threshold in (0, 1]")

	diffCmd.Flags().BoolVar(&flagCommit, "commit", false, "mark the printed items as pushed")

	cleanupCmd.Flags().IntVar(&flagDays, "days", 30, "override the retention period in days")
}
