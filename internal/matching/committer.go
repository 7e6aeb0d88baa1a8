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

// Commit is what the Committer managed to write for one pair.
type Commit struct {
	RatingID int64
	Enriched bool
	// EnrichmentErr is set when the enrichment write failed. It never blocks
	// the rating insert.
	EnrichmentErr error
}

// Committer writes the classifier output for a pair: the enrichment onto the
// existing posting, then the rating row.
type Committer struct {
	writer RatingWriter
	logger *zap.Logger
}

func NewCommitter(writer RatingWriter, logger *zap.Logger) (*Committer, error) {
	if writer == nil {
		return nil, errors.New("rating writer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Committer{writer: writer, logger: logger}, nil
}

// Commit returns an error only when the rating could not be inserted. When the
// writer is a Transactor both writes share a transaction, so a failed rating
// insert also discards the enrichment.
func (c *Committer) Commit(ctx context.Context, pair model.MissingPair, result *ai.Classification) (Commit, error) {
	if result == nil {
		return Commit{}, errors.New("classification is required")
	}

	rating := result.Rating
	rating.JobID = pair.JobID
	rating.ResumeID = pair.ResumeID

	log := c.logger.With(logger.PairFields(pair.JobID, pair.ResumeID)...)

	var (
		commit Commit
		err    error
	)
	if tx, ok := c.writer.(Transactor); ok {
		err = tx.InTx(ctx, func(w RatingWriter) error {
			var err error
			commit, err = c.commit(ctx, w, pair.JobID, result.Enrichment, &rating, log)
			return err
		})
		if err != nil {
			// Nothing was kept, including the enrichment.
			commit = Commit{EnrichmentErr: commit.EnrichmentErr}
		}
	} else {
		commit, err = c.commit(ctx, c.writer, pair.JobID, result.Enrichment, &rating, log)
	}
	if err != nil {
		return commit, err
	}

	if commit.Enriched {
		log.Info("posting enriched")
	}
	log.Info("rating stored", zap.Int64("rating_id", commit.RatingID), zap.Float64("rating", rating.Score))
	return commit, nil
}

func (c *Committer) commit(ctx context.Context, w RatingWriter, jobID int64, enrichment model.Enrichment, rating *model.Rating, log *zap.Logger) (Commit, error) {
	var commit Commit

	if !enrichment.Empty() {
		if err := w.UpdateEnrichment(ctx, jobID, enrichment); err != nil {
			commit.EnrichmentErr = err
			log.Error("updating posting enrichment failed", zap.Error(err))
		} else {
			commit.Enriched = true
		}
	}

	id, err := w.InsertRating(ctx, rating)
	if err != nil {
		return commit, fmt.Errorf("insert rating: %w", err)
	}

	commit.RatingID = id
	return commit, nil
}
