package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/leve-labs/trailmatch/internal/domain"
)

// Client fetches raw trail records over HTTP. The endpoint may return
// a plain JSON list or a paginated {items, nextPageToken} object; both
// shapes are flattened into one record list.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	retries         int
	backoffBase     time.Duration
	maxPages        int
	filterPublished bool
	log             *zap.Logger
}

// ClientOptions configures a catalog Client.
type ClientOptions struct {
	BaseURL         string
	ConnectTimeout  time.Duration
	RequestTimeout  time.Duration
	Retries         int
	BackoffBase     time.Duration
	MaxPages        int
	FilterPublished bool
	Logger          *zap.Logger
}

// NewClient creates a catalog client with granular timeouts.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 3 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 400 * time.Millisecond
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 10
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: opts.ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout: opts.ConnectTimeout,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   opts.RequestTimeout,
		},
		baseURL:         opts.BaseURL,
		retries:         opts.Retries,
		backoffBase:     opts.BackoffBase,
		maxPages:        opts.MaxPages,
		filterPublished: opts.FilterPublished,
		log:             opts.Logger,
	}, nil
}

type page struct {
	Items         []map[string]any `json:"items"`
	NextPageToken string           `json:"nextPageToken"`
}

// Fetch retrieves every catalog page and returns the flattened record
// list. Transport errors and retryable status codes (408, 429, 5xx)
// are retried with exponential backoff honoring the context.
func (c *Client) Fetch(ctx context.Context) ([]map[string]any, error) {
	var records []map[string]any
	pageToken := ""

	for pageNum := 0; pageNum < c.maxPages; pageNum++ {
		body, err := c.get(ctx, pageToken)
		if err != nil {
			return nil, err
		}

		items, nextToken, err := decodePage(body)
		if err != nil {
			return nil, fmt.Errorf("%w: decode page: %v", domain.ErrCatalogUnavailable, err)
		}
		records = append(records, items...)

		if nextToken == "" {
			return records, nil
		}
		pageToken = nextToken
	}

	c.log.Warn("catalog pagination stopped at page limit",
		zap.Int("max_pages", c.maxPages),
		zap.Int("records", len(records)))
	return records, nil
}

func (c *Client) get(ctx context.Context, pageToken string) ([]byte, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	q := u.Query()
	if c.filterPublished {
		q.Set("status", "Published")
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			backoff := c.backoffBase * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, ctx.Err())
			case <-time.After(backoff):
			}
			c.log.Debug("retrying catalog fetch",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff))
		}

		body, retryable, err := c.doRequest(ctx, u.String())
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	return nil, fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, lastErr)
}

func (c *Client) doRequest(ctx context.Context, rawURL string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusRequestTimeout ||
			resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read body: %w", err)
	}
	return body, false, nil
}

// decodePage accepts either a bare JSON array of records or the
// paginated object form.
func decodePage(body []byte) ([]map[string]any, string, error) {
	var list []map[string]any
	if err := json.Unmarshal(body, &list); err == nil {
		return list, "", nil
	}

	var p page
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, "", err
	}
	return p.Items, p.NextPageToken, nil
}
