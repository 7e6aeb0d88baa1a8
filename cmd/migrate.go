package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables if they do not exist",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		logger := newLogger()

		env, err := setup(ctx, logger, cycles{})
		if err != nil {
			logger.Fatal("connecting to the database", zap.Error(err))
		}
		defer env.Close()

		if err := env.store.Migrate(ctx); err != nil {
			logger.Fatal("migrating", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
