package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	errs "albumgrab/pkg/errors"
	"albumgrab/pkg/logger"
	"albumgrab/pkg/ratelimit"
)

// Client is the one HTTP client shared by every request in a run. It owns
// the connection pool, the default header set and the request timeout.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	limiter    ratelimit.Limiter
	logger     logger.Logger
}

// NewClient creates a new HTTP client with the given timeout
func NewClient(timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		headers: map[string]string{
			"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
				"(KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36",
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
		},
		logger: log,
	}
}

// SetHeader sets a default header applied to every request
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetLimiter installs a request rate limiter. A nil limiter disables limiting.
func (c *Client) SetLimiter(limiter ratelimit.Limiter) {
	c.limiter = limiter
}

// get performs a GET request with the shared headers plus any extras
func (c *Client) get(ctx context.Context, url string, extra map[string]string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &errs.Error{
			Type:    errs.TypeUnknown,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	for key, value := range extra {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.DebugWithFields("HTTP request failed", map[string]interface{}{
			"url":      url,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, &errs.Error{
			Type:    errs.TypeTransport,
			Message: fmt.Sprintf("request failed: %v", err),
		}
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"url":      url,
		"status":   resp.StatusCode,
		"duration": duration,
	})

	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return resp, nil
}

// checkStatus converts a non-2xx response into a typed transport error
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &errs.Error{
		Type:    errs.TypeTransport,
		Message: fmt.Sprintf("unexpected status %s", resp.Status),
		Code:    resp.StatusCode,
	}
}

// Document fetches a page and parses it into a goquery document
func (c *Client) Document(ctx context.Context, url string) (*goquery.Document, error) {
	resp, err := c.get(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &errs.Error{
			Type:    errs.TypeParse,
			Message: fmt.Sprintf("failed to parse HTML from %s: %v", url, err),
		}
	}

	return doc, nil
}

// Stream fetches a resource and returns its body for streaming consumption.
// The caller must close the returned reader on every path. An optional
// referer header is applied on top of the shared header set.
func (c *Client) Stream(ctx context.Context, url, referer string) (io.ReadCloser, error) {
	var extra map[string]string
	if referer != "" {
		extra = map[string]string{"Referer": referer}
	}

	resp, err := c.get(ctx, url, extra)
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}
