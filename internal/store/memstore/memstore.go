// Package memstore is an in-memory test double with the same behaviour as
// the Postgres store. Pipeline tests run against it.
package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/spigell/jobrater/internal/model"
	"github.com/spigell/jobrater/internal/store"
)

// Operation names accepted by FailOn and Calls.
const (
	OpPostingByURL       = "posting_by_url"
	OpInsertPosting      = "insert_posting"
	OpUpdateMatchedWords = "update_matched_words"
	OpLinkExists         = "link_exists"
	OpInsertLink         = "insert_link"
	OpMissingRatings     = "missing_ratings"
	OpPosting            = "posting"
	OpResume             = "resume"
	OpUpdateEnrichment   = "update_enrichment"
	OpInsertRating       = "insert_rating"
	OpOutdatedSearches   = "outdated_searches"
	OpStampLastSearch    = "stamp_last_search"
)

type Store struct {
	mu sync.Mutex

	nextID   int64
	postings map[int64]*model.Posting
	byURL    map[string]int64
	searches map[int64]*model.Search
	links    map[model.SearchLink]struct{}
	resumes  map[int64]*model.Resume
	ratings  map[model.MissingPair]*model.Rating

	failures map[string]error
	calls    map[string]int
}

func New() *Store {
	return &Store{
		postings: make(map[int64]*model.Posting),
		byURL:    make(map[string]int64),
		searches: make(map[int64]*model.Search),
		links:    make(map[model.SearchLink]struct{}),
		resumes:  make(map[int64]*model.Resume),
		ratings:  make(map[model.MissingPair]*model.Rating),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// FailOn makes every later call of op return err. A nil err clears the failure.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Calls returns how many times op was called, failed calls included.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Store) enter(op string) error {
	s.calls[op]++
	return s.failures[op]
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// AddSearch stores a search, assigning an ID when it has none.
func (s *Store) AddSearch(search model.Search) model.Search {
	s.mu.Lock()
	defer s.mu.Unlock()
	if search.ID == 0 {
		search.ID = s.id()
	}
	s.searches[search.ID] = &search
	return search
}

// AddResume stores a resume, assigning an ID when it has none.
func (s *Store) AddResume(resume model.Resume) model.Resume {
	s.mu.Lock()
	defer s.mu.Unlock()
	if resume.ID == 0 {
		resume.ID = s.id()
	}
	s.resumes[resume.ID] = &resume
	return resume
}

// AddPosting stores a posting as first seen, assigning an ID when it has none.
func (s *Store) AddPosting(p model.Posting) model.Posting {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.id()
	}
	s.postings[p.ID] = &p
	if url := p.URL(); url != "" {
		s.byURL[url] = p.ID
	}
	return p
}

func (s *Store) AddLink(link model.SearchLink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[link] = struct{}{}
}

// AddRating stores a rating without going through InsertRating.
func (s *Store) AddRating(r model.Rating) model.Rating {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.id()
	}
	s.ratings[model.MissingPair{JobID: r.JobID, ResumeID: r.ResumeID}] = &r
	return r
}

// Postings returns copies of all postings ordered by ID.
func (s *Store) Postings() []model.Posting {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]model.Posting, 0, len(s.postings))
	for _, p := range s.postings {
		result = append(result, *p)
	}
	slices.SortFunc(result, func(a, b model.Posting) int { return int(a.ID - b.ID) })
	return result
}

func (s *Store) Links() []model.SearchLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]model.SearchLink, 0, len(s.links))
	for link := range s.links {
		result = append(result, link)
	}
	return result
}

func (s *Store) Ratings() []model.Rating {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]model.Rating, 0, len(s.ratings))
	for _, r := range s.ratings {
		result = append(result, *r)
	}
	slices.SortFunc(result, func(a, b model.Rating) int { return int(a.ID - b.ID) })
	return result
}

func (s *Store) Search(id int64) (model.Search, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	search, ok := s.searches[id]
	if !ok {
		return model.Search{}, false
	}
	return *search, true
}

func (s *Store) PostingByURL(_ context.Context, url string) (*model.Posting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpPostingByURL); err != nil {
		return nil, err
	}

	id, ok := s.byURL[url]
	if !ok {
		return nil, store.ErrNotFound
	}
	p := *s.postings[id]
	return &p, nil
}

func (s *Store) InsertPosting(_ context.Context, p *model.Posting) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpInsertPosting); err != nil {
		return 0, err
	}

	url := p.URL()
	if _, exists := s.byURL[url]; exists || url == "" {
		return 0, store.ErrNoRow
	}

	stored := *p
	stored.ID = s.id()
	s.postings[stored.ID] = &stored
	s.byURL[url] = stored.ID
	return stored.ID, nil
}

func (s *Store) UpdateMatchedWords(_ context.Context, id int64, matchedWords string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpUpdateMatchedWords); err != nil {
		return err
	}

	p, ok := s.postings[id]
	if !ok {
		return store.ErrNoRow
	}
	p.MatchedWords = &matchedWords
	return nil
}

func (s *Store) LinkExists(_ context.Context, link model.SearchLink) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpLinkExists); err != nil {
		return false, err
	}

	_, ok := s.links[link]
	return ok, nil
}

func (s *Store) InsertLink(_ context.Context, link model.SearchLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpInsertLink); err != nil {
		return err
	}

	if _, ok := s.links[link]; ok {
		return store.ErrNoRow
	}
	s.links[link] = struct{}{}
	return nil
}

// MissingRatings mirrors the anti-join of the Postgres store.
func (s *Store) MissingRatings(_ context.Context) ([]model.MissingPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpMissingRatings); err != nil {
		return nil, err
	}

	seen := make(map[model.MissingPair]struct{})
	pairs := make([]model.MissingPair, 0)
	for link := range s.links {
		search, ok := s.searches[link.SearchID]
		if !ok {
			continue
		}
		if _, ok := s.postings[link.JobID]; !ok {
			continue
		}

		for _, resume := range s.resumes {
			if !resume.IsActive || resume.UserID != search.UserID {
				continue
			}

			pair := model.MissingPair{JobID: link.JobID, ResumeID: resume.ID}
			if _, rated := s.ratings[pair]; rated {
				continue
			}
			if _, dup := seen[pair]; dup {
				continue
			}
			seen[pair] = struct{}{}
			pairs = append(pairs, pair)
		}
	}

	slices.SortFunc(pairs, func(a, b model.MissingPair) int {
		if a.JobID != b.JobID {
			return int(a.JobID - b.JobID)
		}
		return int(a.ResumeID - b.ResumeID)
	})

	return pairs, nil
}

func (s *Store) Posting(_ context.Context, id int64) (*model.Posting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpPosting); err != nil {
		return nil, err
	}

	p, ok := s.postings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *Store) Resume(_ context.Context, id int64) (*model.Resume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpResume); err != nil {
		return nil, err
	}

	r, ok := s.resumes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *r
	return &copied, nil
}

// UpdateEnrichment only fills fields that are still empty.
func (s *Store) UpdateEnrichment(_ context.Context, jobID int64, e model.Enrichment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpUpdateEnrichment); err != nil {
		return err
	}

	p, ok := s.postings[jobID]
	if !ok {
		return store.ErrNoRow
	}

	if p.Interval == nil {
		p.Interval = e.Interval
	}
	if p.MinAmount == nil {
		p.MinAmount = e.MinAmount
	}
	if p.MaxAmount == nil {
		p.MaxAmount = e.MaxAmount
	}
	if p.Currency == nil {
		p.Currency = e.Currency
	}
	if p.IsRemote == nil {
		p.IsRemote = e.IsRemote
	}
	return nil
}

func (s *Store) InsertRating(_ context.Context, r *model.Rating) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpInsertRating); err != nil {
		return 0, err
	}

	pair := model.MissingPair{JobID: r.JobID, ResumeID: r.ResumeID}
	if _, exists := s.ratings[pair]; exists {
		return 0, store.ErrDuplicateRating
	}

	stored := *r
	stored.ID = s.id()
	s.ratings[pair] = &stored
	return stored.ID, nil
}

// OutdatedSearches returns searches never run or last run at or before the cutoff.
func (s *Store) OutdatedSearches(_ context.Context, cutoff time.Time) ([]model.Search, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpOutdatedSearches); err != nil {
		return nil, err
	}

	result := make([]model.Search, 0)
	for _, search := range s.searches {
		if search.LastSearch == nil || !search.LastSearch.After(cutoff) {
			result = append(result, *search)
		}
	}
	slices.SortFunc(result, func(a, b model.Search) int { return int(a.ID - b.ID) })
	return result, nil
}

func (s *Store) StampLastSearch(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpStampLastSearch); err != nil {
		return err
	}

	search, ok := s.searches[id]
	if !ok {
		return store.ErrNoRow
	}
	search.LastSearch = &at
	return nil
}
