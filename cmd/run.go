package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one scrape cycle followed by one match cycle",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		logger := newLogger()

		env, err := setup(ctx, logger, cycles{scrape: true, match: true})
		if err != nil {
			logger.Fatal("preparing the run", zap.Error(err))
		}
		defer env.Close()

		logger.Info("starting the jobrater", zap.String("version", version))

		if err := env.runner.Run(ctx); err != nil {
			logger.Error("run finished with errors", zap.Error(err))
			return
		}
		logger.Info("run finished")
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
