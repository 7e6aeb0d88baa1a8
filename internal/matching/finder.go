package matching

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/jobrater/internal/model"
)

// Finder lists the (posting, resume) pairs that still need a rating. It never
// caches: ratings written by other runs must be visible on the next call.
type Finder struct {
	source PairSource
	logger *zap.Logger
}

func NewFinder(source PairSource, logger *zap.Logger) (*Finder, error) {
	if source == nil {
		return nil, errors.New("pair source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finder{source: source, logger: logger}, nil
}

func (f *Finder) Find(ctx context.Context) ([]model.MissingPair, error) {
	pairs, err := f.source.MissingRatings(ctx)
	if err != nil {
		return nil, fmt.Errorf("find missing ratings: %w", err)
	}
	if pairs == nil {
		pairs = []model.MissingPair{}
	}

	f.logger.Debug("missing ratings found", zap.Int("count", len(pairs)))
	return pairs, nil
}
