// Package trending pulls the daily GitHub trending snapshot into the catalogue.
//
// The pipeline is:
//
//	Client.Fetch   → raw JSON array from the feed (all-or-nothing)
//	ParseItem      → one validated Item per element (bad elements are counted, not fatal)
//	Job.Run        → reconcile each Item against the tools table
//	Scheduler      → optional ticker that calls Job.Run in the server process
package trending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/alternatives/internal/apperror"
)

const (
	// DefaultTimeout bounds one feed download.
	DefaultTimeout = 30 * time.Second

	feedSource = "trending feed"

	// maxFeedBytes caps the body we are willing to buffer. The daily feed
	// is a few hundred kilobytes.
	maxFeedBytes = 16 << 20

	githubPrefix = "https://github.com/"
)

// Item is one validated feed element.
type Item struct {
	Author             string  `json:"author"`
	Name               string  `json:"name"`
	URL                string  `json:"url"`
	Description        *string `json:"description"`
	Language           *string `json:"language"`
	Stars              int     `json:"stars"`
	Forks              int     `json:"forks"`
	CurrentPeriodStars int     `json:"currentPeriodStars"`
}

// Client downloads the feed.
type Client struct {
	url  string
	http *http.Client
}

// NewClient returns a client for feedURL. timeout <= 0 means DefaultTimeout.
func NewClient(feedURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		url:  feedURL,
		http: &http.Client{Timeout: timeout},
	}
}

// Fetch returns the feed's elements undecoded. Any failure here (transport,
// non-2xx status, a body that is not a JSON array) is an upstream error and
// fails the whole run.
func (c *Client) Fetch(ctx context.Context) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, apperror.Upstream(feedSource, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperror.Upstream(feedSource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperror.Upstream(feedSource, fmt.Errorf("unexpected status %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, apperror.Upstream(feedSource, fmt.Errorf("reading body: %w", err))
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, apperror.Upstream(feedSource, fmt.Errorf("payload is not a JSON array: %w", err))
	}
	return items, nil
}

// ParseItem decodes and validates one element.
func ParseItem(raw json.RawMessage) (*Item, error) {
	// Integers arrive as JSON numbers; decode into float64 first so a value
	// like 12.5 is rejected instead of silently truncated.
	var wire struct {
		Author             *string  `json:"author"`
		Name               *string  `json:"name"`
		URL                *string  `json:"url"`
		Description        *string  `json:"description"`
		Language           *string  `json:"language"`
		Stars              *float64 `json:"stars"`
		Forks              *float64 `json:"forks"`
		CurrentPeriodStars *float64 `json:"currentPeriodStars"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decoding item: %w", err)
	}

	if wire.Author == nil || strings.TrimSpace(*wire.Author) == "" {
		return nil, errors.New("author is required")
	}
	if wire.Name == nil || strings.TrimSpace(*wire.Name) == "" {
		return nil, errors.New("name is required")
	}
	if wire.URL == nil || !strings.HasPrefix(*wire.URL, githubPrefix) || len(*wire.URL) == len(githubPrefix) {
		return nil, errors.New("url must be a GitHub repository URL")
	}

	stars, err := count("stars", wire.Stars)
	if err != nil {
		return nil, err
	}
	forks, err := count("forks", wire.Forks)
	if err != nil {
		return nil, err
	}
	period, err := count("currentPeriodStars", wire.CurrentPeriodStars)
	if err != nil {
		return nil, err
	}

	return &Item{
		Author:             strings.TrimSpace(*wire.Author),
		Name:               strings.TrimSpace(*wire.Name),
		URL:                *wire.URL,
		Description:        wire.Description,
		Language:           wire.Language,
		Stars:              stars,
		Forks:              forks,
		CurrentPeriodStars: period,
	}, nil
}

func count(field string, v *float64) (int, error) {
	if v == nil {
		return 0, fmt.Errorf("%s is required", field)
	}
	if *v < 0 || *v != float64(int(*v)) {
		return 0, fmt.Errorf("%s must be a non-negative integer", field)
	}
	return int(*v), nil
}
