package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/jobrater/internal/delimited"
	"github.com/spigell/jobrater/internal/logger"
	"github.com/spigell/jobrater/internal/model"
	"github.com/spigell/jobrater/internal/store"
	"github.com/spigell/jobrater/internal/utils"
)

// Action tells what Reconcile did with a posting.
type Action string

const (
	ActionInserted  Action = "inserted"
	ActionMerged    Action = "merged"
	ActionUnchanged Action = "unchanged"
)

var (
	// ErrMissingURL is returned for postings without the natural key.
	ErrMissingURL = errors.New("posting has no job_url")
	// ErrMerge is returned when the posting exists but its matched words could not be updated.
	ErrMerge = errors.New("merge matched words")
)

// Deduplicator reconciles postings against the store by job_url.
type Deduplicator struct {
	store  PostingStore
	logger *zap.Logger
}

func NewDeduplicator(s PostingStore, logger *zap.Logger) *Deduplicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduplicator{store: s, logger: logger}
}

// Reconcile inserts p when its URL is unknown, otherwise adopts the stored
// identity and merges matched words. The stored posting keeps every other field.
// p.ID is set whenever an identity is known, including on ErrMerge.
func (d *Deduplicator) Reconcile(ctx context.Context, p *model.Posting) (Action, error) {
	url := p.URL()
	if url == "" {
		return "", ErrMissingURL
	}

	existing, err := d.store.PostingByURL(ctx, url)
	switch {
	case err == nil:
		return d.merge(ctx, p, existing)
	case errors.Is(err, store.ErrNotFound):
		return d.insert(ctx, p)
	default:
		return "", fmt.Errorf("lookup posting: %w", err)
	}
}

func (d *Deduplicator) merge(ctx context.Context, p, existing *model.Posting) (Action, error) {
	p.ID = existing.ID

	// Stored rows may repeat a term, so compare against the de-duplicated set.
	current := delimited.Union(delimited.Parse(utils.Deref(existing.MatchedWords)), nil)
	merged := delimited.Union(current, delimited.Parse(utils.Deref(p.MatchedWords)))

	if len(merged) == len(current) {
		p.MatchedWords = existing.MatchedWords
		d.logger.Debug("posting already exists, skipping insert",
			zap.Int64(logger.FieldJobID, p.ID),
			zap.String(logger.FieldJobURL, p.URL()),
		)
		return ActionUnchanged, nil
	}

	joined := delimited.Join(merged)
	if err := d.store.UpdateMatchedWords(ctx, p.ID, joined); err != nil {
		p.MatchedWords = existing.MatchedWords
		return ActionUnchanged, fmt.Errorf("%w: %w", ErrMerge, err)
	}
	p.MatchedWords = &joined

	d.logger.Info("posting matched words updated",
		zap.Int64(logger.FieldJobID, p.ID),
		zap.String(logger.FieldJobURL, p.URL()),
		zap.Strings("before", current),
		zap.Strings("after", merged),
	)

	return ActionMerged, nil
}

func (d *Deduplicator) insert(ctx context.Context, p *model.Posting) (Action, error) {
	id, err := d.store.InsertPosting(ctx, p)
	if err != nil {
		return "", fmt.Errorf("insert posting: %w", err)
	}
	if id == 0 {
		return "", fmt.Errorf("insert posting: %w", store.ErrNoRow)
	}

	p.ID = id
	d.logger.Info("stored posting", zap.Int64(logger.FieldJobID, id), zap.String(logger.FieldJobURL, p.URL()))

	return ActionInserted, nil
}
