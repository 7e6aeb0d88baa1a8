package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spigell/jobrater/internal/model"
	"github.com/spigell/jobrater/internal/store"
)

const postingColumns = `id, site, job_url, job_url_direct, title, company, location, job_type,
	to_char(date_posted, 'YYYY-MM-DD'), "interval", min_amount, max_amount, currency, is_remote,
	job_function, emails, description, company_url, logo_photo_url, site_id, matched_words, job_level`

func scanPosting(row pgx.Row) (*model.Posting, error) {
	var p model.Posting
	err := row.Scan(&p.ID, &p.Site, &p.JobURL, &p.JobURLDirect, &p.Title, &p.Company, &p.Location, &p.JobType,
		&p.DatePosted, &p.Interval, &p.MinAmount, &p.MaxAmount, &p.Currency, &p.IsRemote,
		&p.JobFunction, &p.Emails, &p.Description, &p.CompanyURL, &p.LogoPhotoURL, &p.SiteID, &p.MatchedWords, &p.JobLevel)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) PostingByURL(ctx context.Context, url string) (*model.Posting, error) {
	p, err := scanPosting(s.db.QueryRow(ctx, `SELECT `+postingColumns+` FROM job WHERE job_url = $1`, url))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get posting by url: %w", err)
	}
	return p, nil
}

func (s *Store) Posting(ctx context.Context, id int64) (*model.Posting, error) {
	p, err := scanPosting(s.db.QueryRow(ctx, `SELECT `+postingColumns+` FROM job WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get posting: %w", err)
	}
	return p, nil
}

func (s *Store) InsertPosting(ctx context.Context, p *model.Posting) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO job (site, job_url, job_url_direct, title, company, location, job_type,
		                  date_posted, "interval", min_amount, max_amount, currency, is_remote,
		                  job_function, emails, description, company_url, logo_photo_url, site_id,
		                  matched_words, job_level)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::date, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		 RETURNING id`,
		p.Site, p.JobURL, p.JobURLDirect, p.Title, p.Company, p.Location, p.JobType,
		p.DatePosted, p.Interval, p.MinAmount, p.MaxAmount, p.Currency, p.IsRemote,
		p.JobFunction, p.Emails, p.Description, p.CompanyURL, p.LogoPhotoURL, p.SiteID,
		p.MatchedWords, p.JobLevel,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, store.ErrNoRow
	}
	if err != nil {
		return 0, fmt.Errorf("insert posting: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateMatchedWords(ctx context.Context, id int64, matchedWords string) error {
	return returningID(s.db.QueryRow(ctx,
		`UPDATE job SET matched_words = $2 WHERE id = $1 RETURNING id`, id, matchedWords), "update matched words")
}

// returningID checks that a write returned its row.
func returningID(row pgx.Row, op string) error {
	var id int64
	err := row.Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNoRow
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
