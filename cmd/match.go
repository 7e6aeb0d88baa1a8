package cmd

import (
	"context"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Rate every (posting, resume) pair that has no rating yet",
	Run: func(cmd *cobra.Command, _ []string) {
		autoApprove, _ := cmd.Flags().GetBool("auto-approve")
		match(cmd.Context(), autoApprove)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before rating")
}

func match(ctx context.Context, autoApprove bool) {
	logger := newLogger()

	env, err := setup(ctx, logger, cycles{match: true})
	if err != nil {
		logger.Fatal("preparing the match", zap.Error(err))
	}
	defer env.Close()

	if !autoApprove {
		pairs, err := env.store.MissingRatings(ctx)
		if err != nil {
			logger.Error("listing missing ratings", zap.Error(err))
			return
		}

		if len(pairs) == 0 {
			logger.Info("exiting", zap.String("reason", "no missing ratings"))
			return
		}

		prompt := promptui.Select{
			Label: fmt.Sprintf("Rate %d pairs? Each pair is one model call", len(pairs)),
			Items: []string{PromptYes, PromptNo},
		}

		_, action, err := prompt.Run()
		if err != nil {
			logger.Error("exiting", zap.Error(err))
			return
		}
		if action != PromptYes {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
	}

	summary, err := env.runner.MatchCycle(ctx)
	if err != nil {
		logger.Error("match cycle failed", zap.Error(err))
		return
	}

	logger.Info("match finished",
		zap.String("cycle_id", summary.CycleID),
		zap.Int("found", summary.Report.Found),
		zap.Int("rated", summary.Report.Rated),
		zap.Int("skipped", len(summary.Report.Skips)),
	)
}
