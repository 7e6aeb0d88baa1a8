package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/jobrater/internal/scheduler"
)

const shutdownTimeout = 2 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scrape and match cycles periodically until interrupted",
	Run: func(cmd *cobra.Command, _ []string) {
		serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(parent context.Context) {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger()

	env, err := setup(ctx, logger, cycles{scrape: true, match: true})
	if err != nil {
		logger.Fatal("preparing the scheduler", zap.Error(err))
	}
	defer env.Close()

	every := time.Hour
	if env.config.Schedule != nil && env.config.Schedule.Every > 0 {
		every = env.config.Schedule.Every
	}

	s, err := scheduler.New(every, env.runner.Run, logger.Named("scheduler"))
	if err != nil {
		logger.Fatal("creating the scheduler", zap.Error(err))
	}

	if err := s.Start(ctx); err != nil {
		logger.Fatal("starting the scheduler", zap.Error(err))
	}
	logger.Info("serving", zap.String("version", version), zap.Duration("every", every))

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler did not stop in time", zap.Error(err))
	}
}
