// Package github is a small client for the pieces of the GitHub REST API the
// fetch jobs and proxy endpoints rely on.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/webcompat/ochazuke/internal/constants"
)

// ErrIncompleteResults is returned when the GitHub search API reports that the
// result set is incomplete and the count cannot be trusted.
var ErrIncompleteResults = errors.New("incomplete search results")

// MilestoneCounts holds the issue counters of a GitHub milestone.
type MilestoneCounts struct {
	Title  string `json:"title"`
	Open   int    `json:"open_issues"`
	Closed int    `json:"closed_issues"`
}

// Client performs authenticated-by-nothing, rate limited GitHub API requests.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type options struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Options represents an optional function to override Client default values.
type Options func(*options)

// WithBaseURL overrides the GitHub API root, for tests.
func WithBaseURL(u string) Options {
	return func(o *options) { o.baseURL = u }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) Options {
	return func(o *options) { o.httpClient = c }
}

// New creates a GitHub API client.
//
// The default limiter stays well under the unauthenticated API quota of 60
// requests per hour.
func New(args ...Options) *Client {
	opts := options{
		baseURL:    constants.GitHubAPIRoot,
		httpClient: &http.Client{Timeout: 4 * time.Minute},
		limiter:    rate.NewLimiter(rate.Every(90*time.Second), 3),
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Client{
		baseURL:    opts.baseURL,
		httpClient: opts.httpClient,
		limiter:    opts.limiter,
	}
}

// Milestone fetches the issue counters of the numbered milestone on the
// tracked repository.
func (c *Client) Milestone(ctx context.Context, number int) (MilestoneCounts, error) {
	u := fmt.Sprintf("%s/repos/%s/milestones/%d", c.baseURL, constants.IssuesRepo, number)

	body, err := c.Fetch(ctx, u)
	if err != nil {
		return MilestoneCounts{}, err
	}

	var counts MilestoneCounts
	if err := json.Unmarshal(body, &counts); err != nil {
		return MilestoneCounts{}, fmt.Errorf("failed to decode milestone %d: %v", number, err)
	}
	return counts, nil
}

// SearchIssueCount returns the number of issues reported on the tracked
// repository on the given day (YYYY-MM-DD), open or closed.
func (c *Client) SearchIssueCount(ctx context.Context, day string) (int, error) {
	q := url.Values{}
	q.Set("q", fmt.Sprintf("repo:%s created:%s", constants.IssuesRepo, day))
	u := fmt.Sprintf("%s/search/issues?%s", c.baseURL, q.Encode())

	body, err := c.Fetch(ctx, u)
	if err != nil {
		return 0, err
	}

	var result struct {
		TotalCount        int  `json:"total_count"`
		IncompleteResults bool `json:"incomplete_results"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("failed to decode search results: %v", err)
	}
	if result.IncompleteResults {
		return 0, fmt.Errorf("search for %s: %w", day, ErrIncompleteResults)
	}
	return result.TotalCount, nil
}

// TriageIssues fetches the raw JSON list of issues currently sitting in the
// triage milestone, oldest first.
func (c *Client) TriageIssues(ctx context.Context) ([]byte, error) {
	u := fmt.Sprintf("%s/repos/%s/issues?sort=created&per_page=100&direction=asc&milestone=%d",
		c.baseURL, constants.IssuesRepo, constants.TriageMilestone)
	return c.Fetch(ctx, u)
}

// Fetch performs a rate limited GET against the given URL and returns the
// response body. Non-2xx responses are errors.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter interrupted: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %v", err)
	}
	req.Header.Set("User-Agent", constants.UserAgent)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("request to %s returned %s", url, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %v", err)
	}
	return body, nil
}
