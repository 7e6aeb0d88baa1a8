// Package scrape is the boundary to the external job search provider.
package scrape

import (
	"context"
	"time"
)

const (
	// HoursOldNew is the freshness window for a search that never ran.
	HoursOldNew = 24
	// HoursOldRefresh is the freshness window for a search that ran before.
	HoursOldRefresh = 4
)

// Record is one raw posting as returned by the provider. The key set is a
// provider-defined superset of what the ingestion pipeline consumes.
type Record map[string]any

// Query describes one provider call: a single source and a single term.
type Query struct {
	Site          string
	SearchTerm    string
	Location      string
	ResultsWanted int
	HoursOld      int
	// Country is only honoured by indeed.
	Country string
	// LinkedInFetchDescription asks linkedin for full descriptions, which costs extra requests.
	LinkedInFetchDescription bool
}

// HoursOld returns the freshness window for a search.
func HoursOld(fresh bool) int {
	if fresh {
		return HoursOldNew
	}
	return HoursOldRefresh
}

// Provider returns raw postings for a query.
type Provider interface {
	Scrape(ctx context.Context, q Query) ([]Record, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, q Query) ([]Record, error)

func (f ProviderFunc) Scrape(ctx context.Context, q Query) ([]Record, error) {
	return f(ctx, q)
}

const defaultTimeout = 2 * time.Minute
