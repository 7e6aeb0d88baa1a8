package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spigell/jobrater/internal/matching"
	"github.com/spigell/jobrater/internal/model"
	"github.com/spigell/jobrater/internal/store"
)

// DISTINCT: a posting surfaced by two searches of the same user is one pair.
const missingRatingsQuery = `
SELECT DISTINCT j.id, r.id
FROM job AS j
JOIN search_job AS sj ON sj.job_id = j.id
JOIN search AS s ON s.id = sj.search_id
JOIN resume AS r ON r.user_id = s.user_id
LEFT JOIN rating AS rt ON rt.job_id = j.id AND rt.resume_id = r.id
WHERE r.is_active
  AND rt.id IS NULL
ORDER BY j.id, r.id`

func (s *Store) MissingRatings(ctx context.Context) ([]model.MissingPair, error) {
	rows, err := s.db.Query(ctx, missingRatingsQuery)
	if err != nil {
		return nil, fmt.Errorf("query missing ratings: %w", err)
	}

	pairs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.MissingPair, error) {
		var pair model.MissingPair
		err := row.Scan(&pair.JobID, &pair.ResumeID)
		return pair, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan missing ratings: %w", err)
	}
	if pairs == nil {
		pairs = []model.MissingPair{}
	}
	return pairs, nil
}

func (s *Store) UpdateEnrichment(ctx context.Context, jobID int64, e model.Enrichment) error {
	return updateEnrichment(ctx, s.db, jobID, e)
}

func (s *Store) InsertRating(ctx context.Context, r *model.Rating) (int64, error) {
	return insertRating(ctx, s.db, r)
}

// InTx runs fn in one transaction. The enrichment write runs in a savepoint so
// its failure leaves the rating insert usable.
func (s *Store) InTx(ctx context.Context, fn func(w matching.RatingWriter) error) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&txWriter{tx: tx, logger: s.logger})
	})
	if err != nil {
		return fmt.Errorf("rating transaction: %w", err)
	}
	return nil
}

type txWriter struct {
	tx     pgx.Tx
	logger *zap.Logger
}

func (w *txWriter) UpdateEnrichment(ctx context.Context, jobID int64, e model.Enrichment) error {
	return pgx.BeginFunc(ctx, w.tx, func(sp pgx.Tx) error {
		return updateEnrichment(ctx, sp, jobID, e)
	})
}

func (w *txWriter) InsertRating(ctx context.Context, r *model.Rating) (int64, error) {
	return insertRating(ctx, w.tx, r)
}

// updateEnrichment fills only the columns that are still NULL.
func updateEnrichment(ctx context.Context, q querier, jobID int64, e model.Enrichment) error {
	return returningID(q.QueryRow(ctx,
		`UPDATE job SET
		     "interval" = COALESCE("interval", $2),
		     min_amount = COALESCE(min_amount, $3),
		     max_amount = COALESCE(max_amount, $4),
		     currency   = COALESCE(currency, $5),
		     is_remote  = COALESCE(is_remote, $6)
		 WHERE id = $1
		 RETURNING id`,
		jobID, e.Interval, e.MinAmount, e.MaxAmount, e.Currency, e.IsRemote), "update enrichment")
}

func insertRating(ctx context.Context, q querier, r *model.Rating) (int64, error) {
	var display []byte
	if len(r.Display) > 0 {
		var err error
		display, err = json.Marshal(r.Display)
		if err != nil {
			return 0, fmt.Errorf("marshal display data: %w", err)
		}
	}

	var id int64
	err := q.QueryRow(ctx,
		`INSERT INTO rating (job_id, resume_id, rating, justification, display_data,
		                     model, token_limit, system_prompt, user_prompt, temperature)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (job_id, resume_id) DO NOTHING
		 RETURNING id`,
		r.JobID, r.ResumeID, r.Score, r.Justification, display,
		r.Model, r.TokenLimit, r.SystemPrompt, r.UserPrompt, r.Temperature,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, store.ErrDuplicateRating
	}
	if err != nil {
		return 0, fmt.Errorf("insert rating: %w", err)
	}
	return id, nil
}
