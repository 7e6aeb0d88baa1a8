package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape postings for every outdated search and store them",
	Run: func(cmd *cobra.Command, _ []string) {
		scrapeOnce(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
}

func scrapeOnce(ctx context.Context) {
	logger := newLogger()

	env, err := setup(ctx, logger, cycles{scrape: true})
	if err != nil {
		logger.Fatal("preparing the scrape", zap.Error(err))
	}
	defer env.Close()

	summary, err := env.runner.ScrapeCycle(ctx)
	if err != nil {
		logger.Error("scrape cycle failed", zap.Error(err))
		return
	}

	var inserted, merged, skipped int
	for _, report := range summary.Reports {
		inserted += report.Inserted
		merged += report.Merged
		skipped += len(report.Skips)
	}

	logger.Info("scrape finished",
		zap.String("cycle_id", summary.CycleID),
		zap.Int("searches", summary.Searches),
		zap.Int("inserted", inserted),
		zap.Int("merged", merged),
		zap.Int("skipped", skipped),
	)
}
