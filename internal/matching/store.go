package matching

import (
	"context"

	"github.com/spigell/jobrater/internal/model"
)

// PairSource is the Finder store surface. MissingRatings returns an empty slice when every
// reachable pair is rated.
type PairSource interface {
	MissingRatings(ctx context.Context) ([]model.MissingPair, error)
}

// Loader fetches the texts of a pair. Both return store.ErrNotFound for an
// unknown identity.
type Loader interface {
	Posting(ctx context.Context, id int64) (*model.Posting, error)
	Resume(ctx context.Context, id int64) (*model.Resume, error)
}

// RatingWriter is the write surface of the Committer. UpdateEnrichment returns
// store.ErrNoRow when no posting was updated; InsertRating returns the new row
// identity or store.ErrDuplicateRating.
type RatingWriter interface {
	UpdateEnrichment(ctx context.Context, jobID int64, e model.Enrichment) error
	InsertRating(ctx context.Context, r *model.Rating) (int64, error)
}

// Transactor is implemented by stores that can run both commit writes in one
// transaction. fn's error rolls the transaction back.
type Transactor interface {
	InTx(ctx context.Context, fn func(w RatingWriter) error) error
}

// Store is everything the matching pipeline needs from the store.
type Store interface {
	PairSource
	Loader
	RatingWriter
}
