package discogs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/franz/vinyl-shelf/internal/util"
	"golang.org/x/time/rate"
)

const (
	// BaseURL is the Discogs API base URL
	BaseURL = "https://api.discogs.com"

	// DefaultUserAgent identifies this application to Discogs.
	// Discogs rejects requests without a descriptive user agent.
	DefaultUserAgent = "VinylShelf/1.0 (+https://github.com/franz/vinyl-shelf)"

	// RateLimitRemainingHeader carries the remaining request quota for the current window
	RateLimitRemainingHeader = "X-Discogs-Ratelimit-Remaining"

	// CourtesyPause is slept after a response that leaves at most one request in the window
	CourtesyPause = 2 * time.Second

	// MaxPerPage is the largest page size the collection endpoint accepts
	MaxPerPage = 100

	maxErrorBody = 200
)

// APIError is a non-2xx response from the API
type APIError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("Discogs API error %d on %s", e.StatusCode, e.Path)
	}
	return fmt.Sprintf("Discogs API error %d on %s: %s", e.StatusCode, e.Path, e.Body)
}

// Temporary reports whether the status is worth retrying (429 or 5xx)
func (e *APIError) Temporary() bool {
	return shouldRetry(e.StatusCode)
}

// Client handles Discogs API requests with retry and rate-limit courtesy
type Client struct {
	httpClient    *http.Client
	baseURL       string
	token         string
	userAgent     string
	retry         *util.RetryConfig
	limiter       *rate.Limiter
	courtesyPause time.Duration
	sleep         util.SleepFunc
	now           func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL points the client at another API root (tests, proxies).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if userAgent = strings.TrimSpace(userAgent); userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithRetryConfig overrides the retry budget and backoff.
func WithRetryConfig(cfg *util.RetryConfig) Option {
	return func(c *Client) {
		if cfg != nil {
			c.retry = cfg
		}
	}
}

// WithRateLimit paces requests to at most perMinute per minute. Zero disables pacing.
func WithRateLimit(perMinute int) Option {
	return func(c *Client) {
		if perMinute <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
}

// WithCourtesyPause overrides the pause taken when the quota is nearly spent.
func WithCourtesyPause(d time.Duration) Option {
	return func(c *Client) {
		c.courtesyPause = d
	}
}

// WithSleep replaces every wait the client performs (retry backoff and courtesy pause).
func WithSleep(sleep util.SleepFunc) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// New creates a Discogs client authenticated with a personal access token
func New(token string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, util.ErrNoToken
	}
	c := &Client{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		baseURL:       BaseURL,
		token:         token,
		userAgent:     DefaultUserAgent,
		retry:         util.DefaultRetryConfig(),
		courtesyPause: CourtesyPause,
		sleep:         util.SleepContext,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get performs an authenticated GET and decodes the JSON body into out.
// Transient failures are retried; decoding errors are returned as-is.
func (c *Client) Get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	retryCfg := *c.retry
	retryCfg.Sleep = c.sleep

	body, err := util.RetryWithBackoff(ctx, &retryCfg, func() ([]byte, error) {
		return c.do(ctx, path, endpoint)
	}, "GET "+path)
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// do issues one attempt. Retryable outcomes come back wrapped in util.TransientError.
func (c *Client) do(ctx context.Context, path, endpoint string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Discogs token="+c.token)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	util.DebugLog("Discogs API: GET %s", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, util.Transient(fmt.Errorf("failed to execute request: %w", err), 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, util.Transient(fmt.Errorf("failed to read response: %w", err), 0)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       truncateBody(body),
		}
		if shouldRetry(resp.StatusCode) {
			return nil, util.Transient(apiErr, parseRetryAfter(resp.Header.Get("Retry-After"), c.now()))
		}
		return nil, apiErr
	}

	c.politePause(ctx, resp.Header)
	return body, nil
}

// politePause sleeps briefly when the remaining quota drops to one request or less
func (c *Client) politePause(ctx context.Context, header http.Header) {
	raw := strings.TrimSpace(header.Get(RateLimitRemainingHeader))
	if raw == "" {
		return
	}
	remaining, err := strconv.Atoi(raw)
	if err != nil || remaining > 1 {
		return
	}
	util.DebugLog("Discogs API: %d request(s) left in window, pausing %v", remaining, c.courtesyPause)
	_ = c.sleep(ctx, c.courtesyPause)
}

// Identity returns the user that owns the token
func (c *Client) Identity(ctx context.Context) (*Identity, error) {
	var ident Identity
	if err := c.Get(ctx, "/oauth/identity", nil, &ident); err != nil {
		return nil, err
	}
	return &ident, nil
}

// PageOptions controls collection pagination
type PageOptions struct {
	PerPage   int    // 1-100, clamped
	MaxPages  int    // 0 = no cap
	Sort      string // defaults to "artist"
	SortOrder string // defaults to "asc"
}

func collectionPath(username string) string {
	return fmt.Sprintf("/users/%s/collection/folders/0/releases", url.PathEscape(username))
}

// ClampPerPage bounds a page size to 1..MaxPerPage
func ClampPerPage(perPage int) int {
	if perPage < 1 {
		return 1
	}
	if perPage > MaxPerPage {
		return MaxPerPage
	}
	return perPage
}

// CollectionSize returns the number of items in the user's collection using a one-item page
func (c *Client) CollectionSize(ctx context.Context, username string) (int, error) {
	if username == "" {
		return 0, errors.New("username cannot be empty")
	}
	params := url.Values{}
	params.Set("page", "1")
	params.Set("per_page", "1")

	var page CollectionPage
	if err := c.Get(ctx, collectionPath(username), params, &page); err != nil {
		return 0, err
	}
	return page.Pagination.Items, nil
}

// Collection streams the items of the user's "All" folder in upstream order.
// The total page count is read from the first response; iteration stops when
// it is exhausted or the MaxPages cap is reached. An error ends the sequence.
func (c *Client) Collection(ctx context.Context, username string, opts PageOptions) iter.Seq2[CollectionItem, error] {
	return func(yield func(CollectionItem, error) bool) {
		if username == "" {
			yield(CollectionItem{}, errors.New("username cannot be empty"))
			return
		}

		sortField := opts.Sort
		if sortField == "" {
			sortField = "artist"
		}
		sortOrder := opts.SortOrder
		if sortOrder == "" {
			sortOrder = "asc"
		}
		path := collectionPath(username)
		totalPages := 0

		for page := 1; ; page++ {
			if opts.MaxPages > 0 && page > opts.MaxPages {
				return
			}
			if totalPages > 0 && page > totalPages {
				return
			}

			params := url.Values{}
			params.Set("page", strconv.Itoa(page))
			params.Set("per_page", strconv.Itoa(ClampPerPage(opts.PerPage)))
			params.Set("sort", sortField)
			params.Set("sort_order", sortOrder)

			var resp CollectionPage
			if err := c.Get(ctx, path, params, &resp); err != nil {
				yield(CollectionItem{}, fmt.Errorf("collection page %d: %w", page, err))
				return
			}
			if totalPages == 0 {
				totalPages = max(resp.Pagination.Pages, 1)
				util.DebugLog("Discogs API: collection has %d items over %d pages", resp.Pagination.Items, totalPages)
			}

			for _, item := range resp.Releases {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// MarketplaceStats returns the lowest listed price and listing count for a release.
// Blocked or unlisted releases report a nil price with zero listings; the currency
// is the one the API actually used, which may differ from the one requested.
func (c *Client) MarketplaceStats(ctx context.Context, releaseID int, currency string) (*Price, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	params := url.Values{}
	if currency != "" {
		params.Set("curr_abbr", currency)
	}

	var stats MarketplaceStats
	if err := c.Get(ctx, fmt.Sprintf("/marketplace/stats/%d", releaseID), params, &stats); err != nil {
		return nil, err
	}
	return stats.toPrice(currency), nil
}

func (s *MarketplaceStats) toPrice(requested string) *Price {
	zero := 0
	if s.BlockedFromSale || !s.NumForSale.Valid || s.NumForSale.Value == 0 {
		return &Price{NumForSale: &zero, Currency: requested}
	}

	count := s.NumForSale.Value
	price := &Price{NumForSale: &count, Currency: requested}
	if s.LowestPrice != nil {
		if s.LowestPrice.Currency != "" {
			if s.LowestPrice.Currency != requested {
				util.DebugLog("Discogs API: requested %s but marketplace returned %s", requested, s.LowestPrice.Currency)
			}
			price.Currency = s.LowestPrice.Currency
		}
		if s.LowestPrice.Value != nil {
			v := *s.LowestPrice.Value
			price.LowestPrice = &v
		}
	}
	return price
}

func shouldRetry(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status < 600)
}

// parseRetryAfter reads a Retry-After value in seconds or as an HTTP date
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := when.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func truncateBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return text
}
