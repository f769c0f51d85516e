// Package search wraps the arXiv query API behind a gateway with timeout,
// retry, and result-normalization policy. Failures surface as a closed
// domain.SearchError kind set so callers branch on known cases instead of
// transport-specific error types.
package search

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/scholarpost/paperbot/internal/domain"
)

const (
	// DefaultBaseURL is the default arXiv API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"

	// DefaultRateLimit is the default rate limit (arXiv asks for at most 3
	// requests per second).
	DefaultRateLimit = 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// SourceName is the human-readable name for this provider.
	SourceName = "arXiv"

	// maxFeedBytes limits how much of a response body is parsed.
	maxFeedBytes = 10 << 20
)

// ProgressStage identifies an adapter checkpoint during a search.
type ProgressStage string

// Progress checkpoints, reported in order.
const (
	StageConnecting ProgressStage = "connecting"
	StageRequesting ProgressStage = "requesting"
	StageReceiving  ProgressStage = "receiving"
	StageProcessing ProgressStage = "processing"
)

// ProgressFunc receives checkpoint notifications during a search. It runs
// on the search goroutine and must be fast; UI throttling is the caller's
// concern. A nil ProgressFunc disables reporting, and reporting can never
// alter the search outcome.
type ProgressFunc func(stage ProgressStage)

// Params are the inputs to one search call.
type Params struct {
	// Query is the raw keyword query (required).
	Query string

	// MaxResults is how many results to request (required, > 0).
	MaxResults int

	// Progress optionally receives checkpoint notifications.
	Progress ProgressFunc
}

// Result holds a normalized provider response.
type Result struct {
	// Papers are the returned papers, possibly empty on a genuine no-match.
	Papers []*domain.Paper

	// TotalResults is the provider's total match count for the query.
	TotalResults int

	// Duration is the wall time of the call including parsing.
	Duration time.Duration
}

// Searcher is the gateway interface the orchestrator consumes.
type Searcher interface {
	Search(ctx context.Context, params Params) (*Result, error)
	ProbeSize(ctx context.Context, url string) (int64, error)
}

// Config holds configuration for the arXiv client.
type Config struct {
	// BaseURL is the arXiv API base URL.
	BaseURL string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxRetries is the retry budget for transient failures.
	MaxRetries int

	// RetryDelay is the base backoff delay.
	RetryDelay time.Duration
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
}

// Client implements Searcher against the arXiv Atom API.
type Client struct {
	config     Config
	httpClient *HTTPClient
}

// Compile-time interface verification.
var _ Searcher = (*Client)(nil)

// New creates a new arXiv client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := NewHTTPClient(HTTPClientConfig{
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.BurstSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a client with a custom HTTP client, for tests
// against mock servers.
func NewWithHTTPClient(cfg Config, httpClient *HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

// Search queries arXiv for papers matching params. An empty Papers slice
// with a nil error is a genuine "no matches"; provider breakage always
// surfaces as a *domain.SearchError.
func (c *Client) Search(ctx context.Context, params Params) (*Result, error) {
	startTime := time.Now()
	report(params.Progress, StageConnecting)

	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, domain.NewSearchError(domain.SearchErrUnknown, SourceName, 0,
			fmt.Errorf("building search URL: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, domain.NewSearchError(domain.SearchErrUnknown, SourceName, 0,
			fmt.Errorf("creating request: %w", err))
	}

	report(params.Progress, StageRequesting)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewSearchError(domain.SearchErrUpstreamHTTP, SourceName, resp.StatusCode,
			fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(body))))
	}

	report(params.Progress, StageReceiving)
	var f feed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, maxFeedBytes)).Decode(&f); err != nil {
		return nil, domain.NewSearchError(domain.SearchErrEmptyOrMalformed, SourceName, 0,
			fmt.Errorf("decoding response: %w", err))
	}

	// An empty page for a query the provider claims has matches is provider
	// breakage, not an empty success.
	if len(f.Entries) == 0 && f.TotalResults > 0 {
		return nil, domain.NewSearchError(domain.SearchErrEmptyOrMalformed, SourceName, 0,
			fmt.Errorf("empty page for %d claimed results", f.TotalResults))
	}

	report(params.Progress, StageProcessing)
	papers := make([]*domain.Paper, 0, len(f.Entries))
	for i := range f.Entries {
		if paper := entryToPaper(&f.Entries[i]); paper != nil {
			papers = append(papers, paper)
		}
	}

	return &Result{
		Papers:       papers,
		TotalResults: f.TotalResults,
		Duration:     time.Since(startTime),
	}, nil
}

// buildSearchURL constructs the arXiv search API URL.
func (c *Client) buildSearchURL(params Params) (string, error) {
	if strings.TrimSpace(params.Query) == "" {
		return "", errors.New("query is required")
	}
	if params.MaxResults <= 0 {
		return "", fmt.Errorf("max results must be positive, got %d", params.MaxResults)
	}

	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/query"

	query := url.Values{}
	query.Set("search_query", "all:"+params.Query)
	query.Set("max_results", strconv.Itoa(params.MaxResults))
	query.Set("sortBy", "relevance")
	query.Set("sortOrder", "descending")

	baseURL.RawQuery = query.Encode()
	return baseURL.String(), nil
}

// entryToPaper converts an arXiv Atom entry to a domain Paper.
func entryToPaper(e *entry) *domain.Paper {
	if e == nil || strings.TrimSpace(e.ID) == "" {
		return nil
	}

	var pubDate time.Time
	if e.Published != "" {
		if t, err := time.Parse(time.RFC3339, e.Published); err == nil {
			pubDate = t
		}
	}

	authors := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	categories := make([]string, 0, len(e.Categories))
	for _, cat := range e.Categories {
		if cat.Term != "" {
			categories = append(categories, cat.Term)
		}
	}

	canonical := strings.TrimSpace(e.ID)

	pdfURL := ""
	for _, link := range e.Links {
		if link.Title == "pdf" || link.Type == "application/pdf" {
			pdfURL = link.Href
			break
		}
	}
	if pdfURL == "" {
		pdfURL = PDFLink(canonical)
	}

	return &domain.Paper{
		Title:         domain.NormalizeWhitespace(e.Title),
		CanonicalLink: canonical,
		PDFURL:        pdfURL,
		Authors:       authors,
		PublishedDate: pubDate,
		Categories:    categories,
		Abstract:      domain.TruncateAbstract(domain.NormalizeWhitespace(e.Summary)),
	}
}

// PDFLink converts an arXiv abstract URL to its document URL.
// "http://arxiv.org/abs/2301.12345v1" -> "http://arxiv.org/pdf/2301.12345v1".
func PDFLink(canonicalLink string) string {
	return strings.Replace(canonicalLink, "/abs/", "/pdf/", 1)
}

// classifyTransportError maps a transport failure onto the closed
// SearchError kind set.
func classifyTransportError(err error) *domain.SearchError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewSearchError(domain.SearchErrTimeout, SourceName, 0, err)
	case errors.Is(err, context.Canceled):
		return domain.NewSearchError(domain.SearchErrTimeout, SourceName, 0, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewSearchError(domain.SearchErrTimeout, SourceName, 0, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return domain.NewSearchError(domain.SearchErrConnectionFailed, SourceName, 0, err)
	}
	if strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset") ||
		strings.Contains(err.Error(), "no such host") {
		return domain.NewSearchError(domain.SearchErrConnectionFailed, SourceName, 0, err)
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return domain.NewSearchError(domain.SearchErrUpstreamHTTP, SourceName, statusErr.StatusCode, err)
	}

	return domain.NewSearchError(domain.SearchErrUnknown, SourceName, 0, err)
}

func report(fn ProgressFunc, stage ProgressStage) {
	if fn != nil {
		fn(stage)
	}
}
