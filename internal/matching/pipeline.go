package matching

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/jobrater/internal/ai"
	"github.com/spigell/jobrater/internal/logger"
	"github.com/spigell/jobrater/internal/model"
)

// Outcome is the result of processing one pair.
type Outcome string

const (
	OutcomeRated   Outcome = "rated"
	OutcomeSkipped Outcome = "skipped"
)

// Stages reported in Skip.
const (
	StageLoad     = "load"
	StageClassify = "classify"
	StageCommit   = "commit"
)

type Skip struct {
	JobID    int64
	ResumeID int64
	Stage    string
	Reason   string
}

// Report summarises one ProcessMissingRatings call. FindErr is set when the
// pair list itself could not be read.
type Report struct {
	Found              int
	Rated              int
	Enriched           int
	EnrichmentFailures int
	Skips              []Skip
	FindErr            error
}

// Pipeline rates every pair that still lacks a rating, one pair at a time.
type Pipeline struct {
	finder     *Finder
	loader     Loader
	classifier ai.Classifier
	committer  *Committer
	logger     *zap.Logger
}

func NewPipeline(s Store, classifier ai.Classifier, log *zap.Logger) (*Pipeline, error) {
	if s == nil {
		return nil, errors.New("store is required")
	}
	if classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	finder, err := NewFinder(s, log)
	if err != nil {
		return nil, err
	}
	committer, err := NewCommitter(s, log)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		finder:     finder,
		loader:     s,
		classifier: classifier,
		committer:  committer,
		logger:     log,
	}, nil
}

// ProcessMissingRatings never returns an error: a pair that fails at any step is
// recorded as a skip and the next pair is processed.
func (p *Pipeline) ProcessMissingRatings(ctx context.Context) *Report {
	report := &Report{}

	pairs, err := p.finder.Find(ctx)
	if err != nil {
		report.FindErr = err
		p.logger.Error("listing missing ratings failed", zap.Error(err))
		return report
	}
	report.Found = len(pairs)
	p.logger.Info("processing missing ratings", zap.Int("pairs", len(pairs)))

	for _, pair := range pairs {
		if ctx.Err() != nil {
			p.logger.Warn("matching interrupted", zap.Error(ctx.Err()))
			break
		}

		outcome, skip, commit := p.processPair(ctx, pair)
		if commit.EnrichmentErr != nil {
			report.EnrichmentFailures++
		}
		if commit.Enriched {
			report.Enriched++
		}

		switch outcome {
		case OutcomeRated:
			report.Rated++
		case OutcomeSkipped:
			report.Skips = append(report.Skips, skip)
		}
	}

	p.logger.Info("missing ratings processed",
		zap.Int("found", report.Found),
		zap.Int("rated", report.Rated),
		zap.Int("enriched", report.Enriched),
		zap.Int("skipped", len(report.Skips)),
	)

	return report
}

func (p *Pipeline) processPair(ctx context.Context, pair model.MissingPair) (Outcome, Skip, Commit) {
	log := p.logger.With(logger.PairFields(pair.JobID, pair.ResumeID)...)
	skip := func(stage string, err error) (Outcome, Skip, Commit) {
		log.Error("skipping pair", zap.String("stage", stage), zap.Error(err))
		return OutcomeSkipped, Skip{JobID: pair.JobID, ResumeID: pair.ResumeID, Stage: stage, Reason: err.Error()}, Commit{}
	}

	posting, err := p.loader.Posting(ctx, pair.JobID)
	if err != nil {
		return skip(StageLoad, fmt.Errorf("load posting: %w", err))
	}
	resume, err := p.loader.Resume(ctx, pair.ResumeID)
	if err != nil {
		return skip(StageLoad, fmt.Errorf("load resume: %w", err))
	}

	result, err := p.classifier.Classify(ctx, ai.Candidate{
		JobID:    pair.JobID,
		ResumeID: pair.ResumeID,
		Posting:  posting,
		Resume:   resume,
	})
	if err != nil {
		return skip(StageClassify, err)
	}

	commit, err := p.committer.Commit(ctx, pair, result)
	if err != nil {
		outcome, s, _ := skip(StageCommit, err)
		return outcome, s, commit
	}

	return OutcomeRated, Skip{}, commit
}
