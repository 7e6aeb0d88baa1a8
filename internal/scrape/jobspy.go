package scrape

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	searchPath      = "/api/v1/search_jobs"
	contentType     = "application/json"
	contentEncoding = "gzip"
	userAgent       = "spigell/jobrater"
)

// JobSpyClient talks to a JobSpy-compatible HTTP service.
type JobSpyClient struct {
	BaseURL    string
	APIKey     string
	UserAgent  string
	HTTPClient *http.Client

	logger *zap.Logger
}

type searchRequest struct {
	SiteName                 []string `json:"site_name"`
	SearchTerm               string   `json:"search_term"`
	Location                 string   `json:"location,omitempty"`
	ResultsWanted            int      `json:"results_wanted,omitempty"`
	HoursOld                 int      `json:"hours_old,omitempty"`
	CountryIndeed            string   `json:"country_indeed,omitempty"`
	LinkedInFetchDescription bool     `json:"linkedin_fetch_description"`
}

type searchResponse struct {
	Count int      `json:"count"`
	Jobs  []Record `json:"jobs"`
}

// NewJobSpyClient returns a client for the service at baseURL. A zero timeout uses the default.
func NewJobSpyClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) (*JobSpyClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("jobspy base url is required")
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &JobSpyClient{
		BaseURL:    baseURL,
		APIKey:     strings.TrimSpace(apiKey),
		UserAgent:  userAgent,
		HTTPClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Scrape runs one search against the service and returns the raw postings.
func (c *JobSpyClient) Scrape(ctx context.Context, q Query) ([]Record, error) {
	if strings.TrimSpace(q.Site) == "" {
		return nil, errors.New("site is required")
	}

	body, err := json.Marshal(searchRequest{
		SiteName:                 []string{q.Site},
		SearchTerm:               q.SearchTerm,
		Location:                 q.Location,
		ResultsWanted:            q.ResultsWanted,
		HoursOld:                 q.HoursOld,
		CountryIndeed:            q.Country,
		LinkedInFetchDescription: q.LinkedInFetchDescription,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+searchPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	c.logger.Debug("make request",
		zap.String("url", req.URL.String()),
		zap.String("site", q.Site),
		zap.String("search_term", q.SearchTerm),
		zap.Int("hours_old", q.HoursOld),
	)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(reader, 512))
		return nil, fmt.Errorf("bad status: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	decoder := json.NewDecoder(reader)
	// Numbers stay json.Number so the normalizer decides how to coerce them.
	decoder.UseNumber()

	var response searchResponse
	if err := decoder.Decode(&response); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	c.logger.Debug("got response from jobspy", zap.Int("count", response.Count), zap.Int("jobs", len(response.Jobs)))

	return response.Jobs, nil
}

func (c *JobSpyClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentType)
	req.Header.Set("Accept-Encoding", contentEncoding)
	req.Header.Set("User-Agent", c.UserAgent)
	if c.APIKey != "" {
		req.Header.Set("x-api-key", c.APIKey)
	}
}
