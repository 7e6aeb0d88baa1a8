// Package runner drives the scrape and match cycles.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/jobrater/internal/ingest"
	"github.com/spigell/jobrater/internal/lock"
	"github.com/spigell/jobrater/internal/logger"
	"github.com/spigell/jobrater/internal/matching"
	"github.com/spigell/jobrater/internal/model"
)

const (
	CycleScrape = "scrape"
	CycleMatch  = "match"

	// DefaultRefreshAfter is how long a search rests before it is scraped again.
	DefaultRefreshAfter = 3 * time.Hour
)

// ErrNotConfigured is returned by a cycle whose pipeline was not provided.
var ErrNotConfigured = errors.New("cycle is not configured")

type SearchStore interface {
	OutdatedSearches(ctx context.Context, cutoff time.Time) ([]model.Search, error)
	StampLastSearch(ctx context.Context, id int64, at time.Time) error
}

type Scraper interface {
	ScrapeAndStore(ctx context.Context, search model.Search) *ingest.Report
}

type Matcher interface {
	ProcessMissingRatings(ctx context.Context) *matching.Report
}

type Options struct {
	RefreshAfter time.Duration
	Locker       lock.Locker
	Logger       *zap.Logger
}

type Runner struct {
	searches     SearchStore
	scraper      Scraper
	matcher      Matcher
	locker       lock.Locker
	refreshAfter time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// ScrapeSummary is the outcome of one scrape cycle.
type ScrapeSummary struct {
	CycleID       string
	Searches      int
	Reports       []*ingest.Report
	StampFailures int
}

type MatchSummary struct {
	CycleID string
	Report  *matching.Report
}

// New builds a runner. scraper or matcher may be nil for a process that only
// runs the other cycle.
func New(searches SearchStore, scraper Scraper, matcher Matcher, opts Options) (*Runner, error) {
	if searches == nil {
		return nil, errors.New("search store is required")
	}
	if opts.RefreshAfter <= 0 {
		opts.RefreshAfter = DefaultRefreshAfter
	}
	if opts.Locker == nil {
		opts.Locker = lock.Noop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Runner{
		searches:     searches,
		scraper:      scraper,
		matcher:      matcher,
		locker:       opts.Locker,
		refreshAfter: opts.RefreshAfter,
		now:          time.Now,
		logger:       opts.Logger,
	}, nil
}

// ScrapeCycle scrapes every search whose last run is older than the refresh
// window and stamps it afterwards. Per-search failures are only reported.
func (r *Runner) ScrapeCycle(ctx context.Context) (*ScrapeSummary, error) {
	if r.scraper == nil {
		return nil, fmt.Errorf("%s: %w", CycleScrape, ErrNotConfigured)
	}
	summary := &ScrapeSummary{CycleID: uuid.NewString()}
	log := r.logger.With(logger.CycleFields(CycleScrape, summary.CycleID)...)

	err := r.locked(ctx, CycleScrape, log, func() error {
		searches, err := r.searches.OutdatedSearches(ctx, r.now().Add(-r.refreshAfter))
		if err != nil {
			return fmt.Errorf("list outdated searches: %w", err)
		}

		summary.Searches = len(searches)
		if len(searches) == 0 {
			log.Info("no outdated searches")
			return nil
		}
		log.Info("scraping outdated searches", zap.Int("searches", len(searches)))

		for _, search := range searches {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			summary.Reports = append(summary.Reports, r.scraper.ScrapeAndStore(ctx, search))
			if ctx.Err() != nil {
				// An interrupted search is retried next cycle.
				return ctx.Err()
			}

			if err := r.searches.StampLastSearch(ctx, search.ID, r.now()); err != nil {
				summary.StampFailures++
				log.Error("updating last search failed", zap.Int64(logger.FieldSearchID, search.ID), zap.Error(err))
			}
		}
		return nil
	})
	return summary, err
}

func (r *Runner) MatchCycle(ctx context.Context) (*MatchSummary, error) {
	if r.matcher == nil {
		return nil, fmt.Errorf("%s: %w", CycleMatch, ErrNotConfigured)
	}
	summary := &MatchSummary{CycleID: uuid.NewString()}
	log := r.logger.With(logger.CycleFields(CycleMatch, summary.CycleID)...)

	err := r.locked(ctx, CycleMatch, log, func() error {
		summary.Report = r.matcher.ProcessMissingRatings(ctx)
		return summary.Report.FindErr
	})
	return summary, err
}

// Run is one full pass: scrape, then match. A failed scrape cycle does not
// prevent matching what is already stored.
func (r *Runner) Run(ctx context.Context) error {
	_, scrapeErr := r.ScrapeCycle(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	_, matchErr := r.MatchCycle(ctx)
	return errors.Join(scrapeErr, matchErr)
}

func (r *Runner) locked(ctx context.Context, name string, log *zap.Logger, fn func() error) error {
	release, err := r.locker.Acquire(ctx, name)
	if errors.Is(err, lock.ErrHeld) {
		log.Info("cycle already running elsewhere, skipping")
		return err
	}
	if err != nil {
		log.Error("acquiring cycle lock failed", zap.Error(err))
		return err
	}

	start := r.now()
	log.Info("cycle started")

	defer func() {
		// Release even when ctx is already cancelled.
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("releasing cycle lock failed", zap.Error(err))
		}
	}()

	if err := fn(); err != nil {
		log.Error("cycle failed", zap.Error(err), zap.Duration("elapsed", r.now().Sub(start)))
		return err
	}

	log.Info("cycle finished", zap.Duration("elapsed", r.now().Sub(start)))
	return nil
}
