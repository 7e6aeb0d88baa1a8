package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/jobrater/internal/logger"
	"github.com/spigell/jobrater/internal/model"
)

// Registrar records which search surfaced which posting, at most once per pair.
type Registrar struct {
	store  LinkStore
	logger *zap.Logger
}

func NewRegistrar(s LinkStore, logger *zap.Logger) *Registrar {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registrar{store: s, logger: logger}
}

// Register inserts the link unless it exists. created is false for an existing link.
func (r *Registrar) Register(ctx context.Context, link model.SearchLink) (bool, error) {
	exists, err := r.store.LinkExists(ctx, link)
	if err != nil {
		return false, fmt.Errorf("check search link: %w", err)
	}

	if exists {
		r.logger.Debug("search link already exists, skipping insert",
			zap.Int64(logger.FieldSearchID, link.SearchID),
			zap.Int64(logger.FieldJobID, link.JobID),
		)
		return false, nil
	}

	if err := r.store.InsertLink(ctx, link); err != nil {
		return false, fmt.Errorf("insert search link: %w", err)
	}

	r.logger.Info("stored search link",
		zap.Int64(logger.FieldSearchID, link.SearchID),
		zap.Int64(logger.FieldJobID, link.JobID),
	)

	return true, nil
}
