// Package ingest turns raw scraped postings into stored, deduplicated postings
// linked to the searches that surfaced them.
package ingest

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/spigell/jobrater/internal/model"
	"github.com/spigell/jobrater/internal/scrape"
)

const (
	dateLayout = "2006-01-02"
	// providerIDKey is the provider's own identifier, kept as SiteID.
	providerIDKey = "id"
)

var dateInputLayouts = []string{
	dateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Normalize maps a raw record to a canonical posting. Only the expected keys are
// read; a value of the wrong type, a missing value or an unparsable date become nil.
// The record is not modified.
func Normalize(raw scrape.Record) *model.Posting {
	return &model.Posting{
		Site:         text(raw, "site"),
		JobURL:       text(raw, "job_url"),
		JobURLDirect: text(raw, "job_url_direct"),
		Title:        text(raw, "title"),
		Company:      text(raw, "company"),
		Location:     text(raw, "location"),
		JobType:      text(raw, "job_type"),
		DatePosted:   date(raw, "date_posted"),
		Interval:     text(raw, "interval"),
		MinAmount:    number(raw, "min_amount"),
		MaxAmount:    number(raw, "max_amount"),
		Currency:     text(raw, "currency"),
		IsRemote:     boolean(raw, "is_remote"),
		JobFunction:  text(raw, "job_function"),
		Emails:       text(raw, "emails"),
		Description:  text(raw, "description"),
		CompanyURL:   text(raw, "company_url"),
		LogoPhotoURL: text(raw, "logo_photo_url"),
		SiteID:       identifier(raw, providerIDKey),
		MatchedWords: text(raw, "matched_words"),
		JobLevel:     text(raw, "job_level"),
	}
}

// NormalizeAll normalizes a batch, preserving order.
func NormalizeAll(raw []scrape.Record) []*model.Posting {
	postings := make([]*model.Posting, 0, len(raw))
	for _, r := range raw {
		postings = append(postings, Normalize(r))
	}
	return postings
}

func text(raw scrape.Record, key string) *string {
	v, ok := raw[key].(string)
	if !ok {
		return nil
	}
	return &v
}

func boolean(raw scrape.Record, key string) *bool {
	v, ok := raw[key].(bool)
	if !ok {
		return nil
	}
	return &v
}

func number(raw scrape.Record, key string) *float64 {
	var f float64
	switch v := raw[key].(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func date(raw scrape.Record, key string) *string {
	var t time.Time
	switch v := raw[key].(type) {
	case time.Time:
		t = v
	case *time.Time:
		if v == nil {
			return nil
		}
		t = *v
	case string:
		parsed, ok := parseDate(v)
		if !ok {
			return nil
		}
		t = parsed
	default:
		return nil
	}

	if t.IsZero() {
		return nil
	}

	formatted := t.Format(dateLayout)
	return &formatted
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateInputLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// identifier accepts numeric provider ids as well, since they are opaque.
func identifier(raw scrape.Record, key string) *string {
	switch v := raw[key].(type) {
	case string:
		return &v
	case json.Number:
		s := v.String()
		return &s
	default:
		return nil
	}
}
