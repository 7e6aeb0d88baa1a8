package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spigell/jobrater/internal/model"
	"github.com/spigell/jobrater/internal/store"
)

// OutdatedSearches returns searches never run or last run at or before cutoff.
func (s *Store) OutdatedSearches(ctx context.Context, cutoff time.Time) ([]model.Search, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, job_source, search_term, location, results_wanted, country, last_search
		 FROM search
		 WHERE last_search IS NULL OR last_search <= $1
		 ORDER BY id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list outdated searches: %w", err)
	}
	defer rows.Close()

	searches := make([]model.Search, 0)
	for rows.Next() {
		var search model.Search
		if err := rows.Scan(&search.ID, &search.UserID, &search.JobSource, &search.SearchTerm,
			&search.Location, &search.ResultsWanted, &search.Country, &search.LastSearch); err != nil {
			return nil, fmt.Errorf("scan search: %w", err)
		}
		searches = append(searches, search)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list outdated searches: %w", err)
	}
	return searches, nil
}

func (s *Store) StampLastSearch(ctx context.Context, id int64, at time.Time) error {
	return returningID(s.db.QueryRow(ctx,
		`UPDATE search SET last_search = $2 WHERE id = $1 RETURNING id`, id, at), "stamp last search")
}

func (s *Store) LinkExists(ctx context.Context, link model.SearchLink) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM search_job WHERE search_id = $1 AND job_id = $2)`,
		link.SearchID, link.JobID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check search link: %w", err)
	}
	return exists, nil
}

// InsertLink returns store.ErrNoRow when the link already existed.
func (s *Store) InsertLink(ctx context.Context, link model.SearchLink) error {
	var searchID int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO search_job (search_id, job_id) VALUES ($1, $2)
		 ON CONFLICT (search_id, job_id) DO NOTHING
		 RETURNING search_id`, link.SearchID, link.JobID).Scan(&searchID)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNoRow
	}
	if err != nil {
		return fmt.Errorf("insert search link: %w", err)
	}
	return nil
}

func (s *Store) Resume(ctx context.Context, id int64) (*model.Resume, error) {
	var r model.Resume
	err := s.db.QueryRow(ctx,
		`SELECT id, user_id, content, is_active FROM resume WHERE id = $1`, id,
	).Scan(&r.ID, &r.UserID, &r.Content, &r.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get resume: %w", err)
	}
	return &r, nil
}
