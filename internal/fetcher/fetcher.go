// Package fetcher implements the engine's HTTP fetch capability with
// conditional-request support. SSRF/redirect validation is the caller's
// responsibility; the sync engine assumes it is handed a pre-validated
// fetch target.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"feedsync/internal/domain"
)

// Config holds fetch client configuration.
type Config struct {
	Timeout     time.Duration
	UserAgent   string
	MaxBodySize int64
}

// Client fetches feed documents over HTTP.
type Client struct {
	httpClient  *http.Client
	userAgent   string
	maxBodySize int64
	logger      *slog.Logger
}

// Request is a conditional fetch: stored validators become request-side
// cache headers.
type Request struct {
	URL          string
	ETag         *string
	LastModified *string
}

// Result is the response the sync orchestrator operates on. Body is fully
// read before Result is returned; no connection state leaks upward.
type Result struct {
	StatusCode   int
	NotModified  bool
	ETag         string
	LastModified string
	Body         []byte
}

func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent:   cfg.UserAgent,
		maxBodySize: cfg.MaxBodySize,
		logger:      logger,
	}
}

// Fetch executes one conditional GET. Transport errors and timeouts are
// returned as *domain.FetchError; non-success statuses are returned in the
// Result for the caller to classify.
func (c *Client) Fetch(ctx context.Context, req Request) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml, application/json, text/xml;q=0.9, */*;q=0.8")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if req.ETag != nil && *req.ETag != "" {
		httpReq.Header.Set("If-None-Match", *req.ETag)
	}
	if req.LastModified != nil && *req.LastModified != "" {
		httpReq.Header.Set("If-Modified-Since", *req.LastModified)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.FetchError{URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	result := &Result{
		StatusCode:   resp.StatusCode,
		NotModified:  resp.StatusCode == http.StatusNotModified,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}

	if result.NotModified {
		return result, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, &domain.FetchError{URL: req.URL, Err: fmt.Errorf("read body: %w", err)}
	}
	result.Body = body

	c.logger.Debug("fetched feed",
		"url", req.URL,
		"status", resp.StatusCode,
		"bytes", len(body),
	)

	return result, nil
}
