package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	errs "pixiedl/pkg/errors"
	"pixiedl/pkg/logger"
)

// DefaultTimeout bounds one request including reading the body
const DefaultTimeout = 120 * time.Second

// Response is a fully buffered successful response
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client fetches photo assets over a pooled transport
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	timeout    time.Duration
	logger     logger.Logger
}

// NewTransport returns a transport sized for many parallel downloads against
// a handful of CDN hosts.
func NewTransport() *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 100
	transport.MaxIdleConnsPerHost = 32
	transport.IdleConnTimeout = 90 * time.Second
	return transport
}

// NewClient creates a fetch client with its own pooled transport
func NewClient(timeout time.Duration, log logger.Logger) *Client {
	return NewClientWithHTTP(&http.Client{Transport: NewTransport()}, timeout, log)
}

// NewClientWithHTTP creates a fetch client over an existing http.Client.
// The per-request timeout is applied through the request context.
func NewClientWithHTTP(hc *http.Client, timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		httpClient: hc,
		headers: map[string]string{
			"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			"Accept":          "image/avif,image/webp,image/apng,image/*,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
		},
		timeout: timeout,
		logger:  log,
	}
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// Get fetches url and buffers the whole body. Any status other than 200 is
// returned as a typed error: permanent for 403 and 404, status otherwise.
// Transport failures are network or timeout errors.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.New(errs.ErrorTypePermanent, "failed to create request", err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	defer resp.Body.Close()

	logger.LogRequest(c.logger, req.Method, url, resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection goes back to the pool
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, errs.FromStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.classify(ctx, fmt.Errorf("failed to read body: %w", err))
	}

	return &Response{
		URL:         url,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// classify maps a transport error to the error taxonomy. Cancellation of the
// caller's context is returned untyped so retry logic stops.
func (c *Client) classify(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return errs.New(errs.ErrorTypeTimeout, fmt.Sprintf("request exceeded %s", c.timeout), err)
	}
	return errs.New(errs.ErrorTypeNetwork, "request failed", err)
}
