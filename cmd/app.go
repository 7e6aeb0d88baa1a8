package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/jobrater/internal/ai/gemini"
	"github.com/spigell/jobrater/internal/ingest"
	"github.com/spigell/jobrater/internal/lock"
	"github.com/spigell/jobrater/internal/logger"
	"github.com/spigell/jobrater/internal/matching"
	"github.com/spigell/jobrater/internal/ratelimit"
	"github.com/spigell/jobrater/internal/runner"
	"github.com/spigell/jobrater/internal/scrape"
	"github.com/spigell/jobrater/internal/secrets"
	"github.com/spigell/jobrater/internal/store/postgres"
)

// environment holds what a command needs once configuration is resolved.
type environment struct {
	config  *Config
	logger  *zap.Logger
	store   *postgres.Store
	runner  *runner.Runner
	closers []func()
}

func (e *environment) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	_ = e.logger.Sync()
}

type cycles struct {
	scrape bool
	match  bool
}

func newLogger() *zap.Logger {
	l, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	return l
}

// setup connects the store and builds the runner with the requested cycles.
// The returned environment must be closed.
func setup(ctx context.Context, log *zap.Logger, want cycles) (*environment, error) {
	config, err := getConfig()
	if err != nil {
		return nil, fmt.Errorf("getting a config: %w", err)
	}

	env := &environment{config: config, logger: log}

	env.store, err = openStore(ctx, config, log)
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, env.store.Close)

	if !want.scrape && !want.match {
		return env, nil
	}

	locker, closeLocker, err := newLocker(ctx, config.Redis, log)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.closers = append(env.closers, closeLocker)

	var scraper runner.Scraper
	if want.scrape {
		if scraper, err = newScraper(config.Scraper, env.store, log); err != nil {
			env.Close()
			return nil, fmt.Errorf("building scraper: %w", err)
		}
	}

	var matcher runner.Matcher
	if want.match {
		if matcher, err = newMatcher(ctx, config.AI, env.store, log); err != nil {
			env.Close()
			return nil, fmt.Errorf("building matcher: %w", err)
		}
	}

	refreshAfter := runner.DefaultRefreshAfter
	if config.Schedule != nil {
		refreshAfter = config.Schedule.RefreshAfter
	}

	env.runner, err = runner.New(env.store, scraper, matcher, runner.Options{
		RefreshAfter: refreshAfter,
		Locker:       locker,
		Logger:       log,
	})
	if err != nil {
		env.Close()
		return nil, err
	}

	return env, nil
}

func openStore(ctx context.Context, config *Config, log *zap.Logger) (*postgres.Store, error) {
	if config.Database == nil || strings.TrimSpace(config.Database.URL) == "" {
		return nil, errors.New("database url is not configured (set database.url or DATABASE_URL)")
	}

	pool, err := postgres.NewPool(ctx, config.Database.URL)
	if err != nil {
		return nil, err
	}

	return postgres.New(pool, log.Named("store"))
}

func newLocker(ctx context.Context, config *RedisConfig, log *zap.Logger) (lock.Locker, func(), error) {
	if config == nil || strings.TrimSpace(config.URL) == "" {
		log.Debug("redis is not configured, cycles are not locked across processes")
		return lock.Noop{}, func() {}, nil
	}

	rdb, err := lock.NewRedisClient(ctx, config.URL)
	if err != nil {
		return nil, nil, err
	}

	locker, err := lock.NewRedis(rdb, config.LockTTL, log.Named("lock"))
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}

	return locker, func() { _ = rdb.Close() }, nil
}

func newScraper(config *ScraperConfig, s ingest.Store, log *zap.Logger) (runner.Scraper, error) {
	if config == nil || strings.TrimSpace(config.URL) == "" {
		return nil, errors.New("scraper url is not configured (set scraper.url or JOBSPY_URL)")
	}

	var apiKey string
	if config.APIKey != "" || config.APIKeyFile != "" {
		var err error
		apiKey, err = secrets.Load(secrets.Source{
			Name:  "jobspy api key",
			Value: config.APIKey,
			File:  config.APIKeyFile,
		})
		if err != nil {
			return nil, err
		}
	}

	client, err := scrape.NewJobSpyClient(config.URL, apiKey, config.Timeout, log.Named("jobspy"))
	if err != nil {
		return nil, err
	}

	return ingest.NewPipeline(client, s, log.Named("ingest"))
}

func newMatcher(ctx context.Context, config *AIConfig, s matching.Store, log *zap.Logger) (runner.Matcher, error) {
	if config == nil || config.Gemini == nil {
		return nil, errors.New("gemini configuration is required")
	}

	provider := strings.TrimSpace(strings.ToLower(config.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", config.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: config.Gemini.APIKey,
		File:  config.Gemini.APIKeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file, GEMINI_API_KEY_FILE or GEMINI_API_KEY)", err)
	}

	generator, err := gemini.NewGenerator(ctx, apiKey, config.Gemini.Model)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(config.MinInterval, log.Named("ratelimit"))

	classifier, err := gemini.NewClassifier(generator, limiter, gemini.Settings{
		TokenLimit:   config.MaxOutputTokens,
		Temperature:  config.Temperature,
		MaxLogLength: config.MaxLogLength,
	}, log.Named("gemini"))
	if err != nil {
		return nil, err
	}

	return matching.NewPipeline(s, classifier, log.Named("matching"))
}
