// Package model defines the records shared by the ingestion and matching pipelines.
package model

import "time"

// Posting is a single job listing, identified in the store by ID and
// deduplicated by JobURL. Nil pointers are stored as NULL.
type Posting struct {
	ID           int64    `json:"id,omitempty"`
	Site         *string  `json:"site"`
	JobURL       *string  `json:"job_url"`
	JobURLDirect *string  `json:"job_url_direct"`
	Title        *string  `json:"title"`
	Company      *string  `json:"company"`
	Location     *string  `json:"location"`
	JobType      *string  `json:"job_type"`
	DatePosted   *string  `json:"date_posted"`
	Interval     *string  `json:"interval"`
	MinAmount    *float64 `json:"min_amount"`
	MaxAmount    *float64 `json:"max_amount"`
	Currency     *string  `json:"currency"`
	IsRemote     *bool    `json:"is_remote"`
	JobFunction  *string  `json:"job_function"`
	Emails       *string  `json:"emails"`
	Description  *string  `json:"description"`
	CompanyURL   *string  `json:"company_url"`
	LogoPhotoURL *string  `json:"logo_photo_url"`
	SiteID       *string  `json:"site_id"`
	MatchedWords *string  `json:"matched_words"`
	JobLevel     *string  `json:"job_level"`
}

// URL returns the natural key or an empty string when it is missing.
func (p *Posting) URL() string {
	if p == nil || p.JobURL == nil {
		return ""
	}
	return *p.JobURL
}

// Search is a user-owned recurring query. JobSource and SearchTerm are delimited lists.
type Search struct {
	ID            int64      `json:"id"`
	UserID        string     `json:"user_id"`
	JobSource     string     `json:"job_source"`
	SearchTerm    string     `json:"search_term"`
	Location      *string    `json:"location"`
	ResultsWanted *int       `json:"results_wanted"`
	Country       *string    `json:"country"`
	LastSearch    *time.Time `json:"last_search"`
}

// IsNew reports whether the search has never been run.
func (s Search) IsNew() bool {
	return s.LastSearch == nil
}

// SearchLink records that a search surfaced a posting.
type SearchLink struct {
	SearchID int64 `json:"search_id"`
	JobID    int64 `json:"job_id"`
}

type Resume struct {
	ID       int64  `json:"id"`
	UserID   string `json:"user_id"`
	Content  string `json:"content"`
	IsActive bool   `json:"is_active"`
}

// Enrichment holds the posting fields inferred by the classifier.
type Enrichment struct {
	Interval  *string  `json:"interval"`
	MinAmount *float64 `json:"min_amount"`
	MaxAmount *float64 `json:"max_amount"`
	Currency  *string  `json:"currency"`
	IsRemote  *bool    `json:"is_remote"`
}

// Empty reports whether there is nothing to write.
func (e Enrichment) Empty() bool {
	return e.Interval == nil && e.MinAmount == nil && e.MaxAmount == nil && e.Currency == nil && e.IsRemote == nil
}

// Highlight is a free-form item displayed next to a rating.
type Highlight struct {
	Label   string `json:"label" mapstructure:"label"`
	Content string `json:"content" mapstructure:"content"`
}

// Rating is the classifier verdict for one (posting, resume) pair together with
// the call provenance.
type Rating struct {
	ID            int64       `json:"id,omitempty"`
	JobID         int64       `json:"job_id"`
	ResumeID      int64       `json:"resume_id"`
	Score         float64     `json:"rating"`
	Justification string      `json:"justification"`
	Display       []Highlight `json:"display_data"`
	Model         string      `json:"model"`
	TokenLimit    int         `json:"token_limit"`
	SystemPrompt  string      `json:"system_prompt"`
	UserPrompt    string      `json:"user_prompt"`
	Temperature   float64     `json:"temperature"`
}

// MissingPair is a (posting, resume) combination reachable through a user's
// searches that has no rating yet.
type MissingPair struct {
	JobID    int64 `json:"job_id"`
	ResumeID int64 `json:"resume_id"`
}
