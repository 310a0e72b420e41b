// Package fetch is the HTTP transport used by the SessionNet client. It
// retries failed requests with exponential backoff and keeps a minimum
// interval between requests so the portal is not hammered.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
)

// Doer sends a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Observer is told about every request attempt.
type Observer interface {
	ObserveRequest(method string, err error, elapsed time.Duration)
}

// Options configures a Client.
type Options struct {
	Timeout            time.Duration
	UserAgent          string
	MinRequestInterval time.Duration
	MaxRetries         int
	RetryBackoff       float64
	// InitialRetryDelay is the wait before the first retry. Each further
	// retry waits RetryBackoff times longer than the previous one.
	InitialRetryDelay time.Duration
	Observer          Observer
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Timeout:            30 * time.Second,
		UserAgent:          "ratsinfo/0.1 (+https://github.com/TobiSchelling/ratsinfo)",
		MinRequestInterval: time.Second,
		MaxRetries:         3,
		RetryBackoff:       2.0,
		InitialRetryDelay:  time.Second,
	}
}

// Response is a fully read HTTP response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Text returns the body as UTF-8, converting from the charset announced
// in the Content-Type header or the document itself.
func (r *Response) Text() string {
	if utf8.Valid(r.Body) {
		return string(r.Body)
	}
	reader, err := charset.NewReader(bytes.NewReader(r.Body), r.Header.Get("Content-Type"))
	if err != nil {
		return string(r.Body)
	}
	out, err := io.ReadAll(reader)
	if err != nil {
		return string(r.Body)
	}
	return string(out)
}

// Client is a rate-limited, retrying HTTP client. It is meant for
// sequential use; the rate limiter state is guarded so that concurrent
// callers are serialized rather than racing.
type Client struct {
	doer Doer
	opts Options

	mu          sync.Mutex
	lastRequest time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Client backed by a net/http client with opts.Timeout.
func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return NewWithDoer(&http.Client{
		Timeout: opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, opts)
}

// NewWithDoer creates a Client that sends requests through d.
func NewWithDoer(d Doer, opts Options) *Client {
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Client{
		doer:  d,
		opts:  opts,
		now:   time.Now,
		sleep: sleepContext,
	}
}

// Get fetches rawURL with params merged into its query string, retrying
// transport failures and HTTP error statuses.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) (*Response, error) {
	target, err := withParams(rawURL, params)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodGet, target, 1+c.opts.MaxRetries)
}

// Head issues a single HEAD request. It is used for change detection, so
// a failure is left to the caller, who can fall back to a GET.
func (c *Client) Head(ctx context.Context, rawURL string) (*Response, error) {
	return c.do(ctx, http.MethodHead, rawURL, 1)
}

func (c *Client) do(ctx context.Context, method, target string, attempts int) (*Response, error) {
	delay := c.opts.InitialRetryDelay
	var lastErr error
	made := 0
	for made < attempts {
		made++
		resp, err := c.attempt(ctx, method, target)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil || made == attempts {
			break
		}
		log.Printf("%s %s failed (attempt %d/%d): %v; retrying in %s", method, target, made, attempts, err, delay)
		if err := c.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
		delay = time.Duration(float64(delay) * c.opts.RetryBackoff)
	}
	return nil, &Error{URL: target, Attempts: made, Err: lastErr}
}

func (c *Client) attempt(ctx context.Context, method, target string) (resp *Response, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.waitForSlot(ctx); err != nil {
		return nil, err
	}
	start := c.now()
	defer func() {
		c.lastRequest = c.now()
		if c.opts.Observer != nil {
			c.opts.Observer.ObserveRequest(method, err, c.lastRequest.Sub(start))
		}
	}()

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	httpResp, err := c.doer.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		io.Copy(io.Discard, httpResp.Body)
		return nil, &StatusError{Code: httpResp.StatusCode}
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	final := target
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		final = httpResp.Request.URL.String()
	}
	return &Response{
		URL:        final,
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

// waitForSlot blocks until MinRequestInterval has passed since the
// previous request completed. The first request is never delayed.
func (c *Client) waitForSlot(ctx context.Context) error {
	if c.lastRequest.IsZero() || c.opts.MinRequestInterval <= 0 {
		return nil
	}
	elapsed := c.now().Sub(c.lastRequest)
	if elapsed >= c.opts.MinRequestInterval {
		return nil
	}
	return c.sleep(ctx, c.opts.MinRequestInterval-elapsed)
}

func withParams(rawURL string, params url.Values) (string, error) {
	if len(params) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", rawURL, err)
	}
	q := u.Query()
	for k, vs := range params {
		q.Del(k)
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
