package ingest

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spigell/jobrater/internal/delimited"
	"github.com/spigell/jobrater/internal/logger"
	"github.com/spigell/jobrater/internal/model"
	"github.com/spigell/jobrater/internal/scrape"
	"github.com/spigell/jobrater/internal/utils"
)

const linkedinSite = "linkedin"

// Stages reported in Skip.
const (
	StageScrape    = "scrape"
	StageNormalize = "normalize"
	StageDedup     = "dedup"
	StageLink      = "link"
)

// Skip describes an item the pipeline gave up on.
type Skip struct {
	Stage  string
	Source string
	Term   string
	JobURL string
	Reason string
}

// Report summarises one ScrapeAndStore call.
type Report struct {
	SearchID      int64
	Queries       int
	FailedQueries int
	Scraped       int
	Dropped       int
	Inserted      int
	Merged        int
	Unchanged     int
	Linked        int
	Skips         []Skip
}

// Pipeline scrapes a search and stores what it finds.
type Pipeline struct {
	provider scrape.Provider
	dedup    *Deduplicator
	links    *Registrar
	logger   *zap.Logger
}

func NewPipeline(provider scrape.Provider, s Store, logger *zap.Logger) (*Pipeline, error) {
	if provider == nil {
		return nil, errors.New("scrape provider is required")
	}
	if s == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		provider: provider,
		dedup:    NewDeduplicator(s, logger),
		links:    NewRegistrar(s, logger),
		logger:   logger,
	}, nil
}

// ScrapeAndStore queries the provider for every source and term of the search and
// reconciles the results. A search that never ran uses the wider freshness window.
// Failures are recorded in the report and never stop the remaining work.
func (p *Pipeline) ScrapeAndStore(ctx context.Context, search model.Search) *Report {
	return p.scrapeAndStore(ctx, search, search.IsNew())
}

func (p *Pipeline) scrapeAndStore(ctx context.Context, search model.Search, fresh bool) *Report {
	report := &Report{SearchID: search.ID}

	sources := delimited.Parse(search.JobSource)
	terms := delimited.Parse(search.SearchTerm)

	for _, source := range sources {
		for _, term := range terms {
			if ctx.Err() != nil {
				p.logger.Warn("scrape interrupted", zap.Int64(logger.FieldSearchID, search.ID), zap.Error(ctx.Err()))
				return report
			}

			p.runQuery(ctx, report, search, source, term, fresh)
		}
	}

	p.logger.Info("search scraped",
		zap.Int64(logger.FieldSearchID, search.ID),
		zap.Int("queries", report.Queries),
		zap.Int("failed_queries", report.FailedQueries),
		zap.Int("scraped", report.Scraped),
		zap.Int("inserted", report.Inserted),
		zap.Int("merged", report.Merged),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("linked", report.Linked),
		zap.Int("skipped", len(report.Skips)),
	)

	return report
}

func (p *Pipeline) runQuery(ctx context.Context, report *Report, search model.Search, source, term string, fresh bool) {
	log := p.logger.With(logger.SearchFields(search.ID, source, term)...)

	report.Queries++
	records, err := p.provider.Scrape(ctx, scrape.Query{
		Site:                     source,
		SearchTerm:               term,
		Location:                 utils.Deref(search.Location),
		ResultsWanted:            utils.Deref(search.ResultsWanted),
		HoursOld:                 scrape.HoursOld(fresh),
		Country:                  utils.Deref(search.Country),
		LinkedInFetchDescription: source == linkedinSite,
	})
	if err != nil {
		report.FailedQueries++
		report.Skips = append(report.Skips, Skip{Stage: StageScrape, Source: source, Term: term, Reason: err.Error()})
		log.Error("scraping failed", zap.Error(err))
		return
	}

	log.Info("got postings", zap.Int("count", len(records)))
	report.Scraped += len(records)

	for _, posting := range NormalizeAll(records) {
		if ctx.Err() != nil {
			return
		}

		posting.MatchedWords = &term
		p.storePosting(ctx, report, search, posting, log, func(stage, reason string) {
			report.Skips = append(report.Skips, Skip{
				Stage:  stage,
				Source: source,
				Term:   term,
				JobURL: posting.URL(),
				Reason: reason,
			})
		})
	}
}

// storePosting reconciles one posting and links it to the search.
func (p *Pipeline) storePosting(ctx context.Context, report *Report, search model.Search, posting *model.Posting, log *zap.Logger, skip func(stage, reason string)) {
	action, err := p.dedup.Reconcile(ctx, posting)
	switch {
	case errors.Is(err, ErrMissingURL):
		report.Dropped++
		log.Debug("dropping posting without job_url", zap.Stringp("site_id", posting.SiteID))
		skip(StageNormalize, err.Error())
		return
	case errors.Is(err, ErrMerge):
		// The posting exists, so the link is still recorded.
		log.Error("updating matched words failed", zap.String(logger.FieldJobURL, posting.URL()), zap.Error(err))
		skip(StageDedup, err.Error())
	case err != nil:
		log.Error("storing posting failed", zap.String(logger.FieldJobURL, posting.URL()), zap.Error(err))
		skip(StageDedup, err.Error())
		return
	}

	switch action {
	case ActionInserted:
		report.Inserted++
	case ActionMerged:
		report.Merged++
	case ActionUnchanged:
		report.Unchanged++
	}

	created, err := p.links.Register(ctx, model.SearchLink{SearchID: search.ID, JobID: posting.ID})
	if err != nil {
		log.Error("storing search link failed", zap.Int64(logger.FieldJobID, posting.ID), zap.Error(err))
		skip(StageLink, err.Error())
		return
	}

	if created {
		report.Linked++
	}
}
