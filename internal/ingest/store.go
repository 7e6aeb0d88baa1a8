package ingest

import (
	"context"

	"github.com/spigell/jobrater/internal/model"
)

// PostingStore is the part of the store used by the Deduplicator.
type PostingStore interface {
	// PostingByURL returns store.ErrNotFound when no posting has the URL.
	PostingByURL(ctx context.Context, url string) (*model.Posting, error)
	// InsertPosting returns the identity assigned by the store.
	InsertPosting(ctx context.Context, p *model.Posting) (int64, error)
	UpdateMatchedWords(ctx context.Context, id int64, matchedWords string) error
}

// LinkStore is the part of the store used by the Registrar.
type LinkStore interface {
	LinkExists(ctx context.Context, link model.SearchLink) (bool, error)
	InsertLink(ctx context.Context, link model.SearchLink) error
}

// Store is everything the ingestion pipeline needs from the store.
type Store interface {
	PostingStore
	LinkStore
}
