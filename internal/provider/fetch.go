package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/DmitryBurnaev/tg-housing/pkg/logx"
)

// maxDocumentBytes caps how much of a provider page we are willing to read.
const maxDocumentBytes = 10 << 20

// ClientOptions configures the shared fetch client.
type ClientOptions struct {
	Timeout            time.Duration // per-attempt request timeout
	RetryMax           int           // total attempts, including the first
	RetryBase          time.Duration // first backoff; doubles per attempt
	RetryMaxDelay      time.Duration
	RatePerHost        int // requests per second per remote host
	UserAgent          string
	InsecureSkipVerify bool // some municipal sites run broken TLS chains
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.RetryMax <= 0 {
		o.RetryMax = 3
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 500 * time.Millisecond
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = 10 * time.Second
	}
	if o.RatePerHost <= 0 {
		o.RatePerHost = 2
	}
	if o.UserAgent == "" {
		o.UserAgent = "tg-housing/1.0"
	}
	return o
}

// Client fetches provider pages with per-host rate limiting and a bounded
// retry budget. Transient failures (network timeouts, 5xx, 429) are retried
// with exponential backoff and jitter; 4xx and malformed URLs are not.
// All retries happen here so providers see one terminal outcome.
type Client struct {
	http *http.Client
	opts ClientOptions
	log  logx.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewClient(opts ClientOptions, log logx.Logger) *Client {
	opts = opts.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	transport := http.DefaultTransport
	if opts.InsecureSkipVerify {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		transport = t
	}
	return &Client{
		http:     &http.Client{Timeout: opts.Timeout, Transport: transport},
		opts:     opts,
		log:      log,
		limiters: map[string]*rate.Limiter{},
	}
}

func (c *Client) limiter(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(c.opts.RatePerHost), c.opts.RatePerHost)
		c.limiters[host] = lim
	}
	return lim
}

// Get fetches one URL. The returned error, if any, is a *FetchError.
func (c *Client) Get(ctx context.Context, rawURL string) (RawDocument, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		if err == nil {
			err = fmt.Errorf("incomplete url %q", rawURL)
		}
		return RawDocument{}, &FetchError{URL: rawURL, Transient: false, Err: err}
	}

	var lastErr *FetchError
	for attempt := 0; attempt < c.opts.RetryMax; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(c.opts.RetryBase, c.opts.RetryMaxDelay, attempt-1)
			c.log.Debug("retrying fetch",
				logx.String("url", rawURL),
				logx.Int("attempt", attempt+1),
				logx.Duration("backoff", delay),
			)
			select {
			case <-ctx.Done():
				return RawDocument{}, lastErr
			case <-time.After(delay):
			}
		}

		if err := c.limiter(u.Host).Wait(ctx); err != nil {
			if lastErr != nil {
				return RawDocument{}, lastErr
			}
			return RawDocument{}, &FetchError{URL: rawURL, Transient: true, Err: err}
		}

		doc, ferr := c.attempt(ctx, rawURL)
		if ferr == nil {
			return doc, nil
		}
		lastErr = ferr
		if !ferr.Transient || ctx.Err() != nil {
			return RawDocument{}, ferr
		}
	}
	return RawDocument{}, lastErr
}

func (c *Client) attempt(ctx context.Context, rawURL string) (RawDocument, *FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return RawDocument{}, &FetchError{URL: rawURL, Transient: false, Err: err}
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return RawDocument{}, &FetchError{URL: rawURL, Transient: transientNetErr(err), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return RawDocument{}, &FetchError{
			URL:       rawURL,
			Status:    resp.StatusCode,
			Transient: transientStatus(resp.StatusCode),
			Err:       fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return RawDocument{}, &FetchError{URL: rawURL, Transient: true, Err: err}
	}

	return RawDocument{
		URL:       rawURL,
		Status:    resp.StatusCode,
		Body:      body,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// backoffDelay is exponential with ±25% jitter, capped at maxDelay.
func backoffDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	d := base << attempt
	if d > maxDelay || d <= 0 {
		d = maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d)/2+1)) - d/4
	d += jitter
	if d < 0 {
		d = 0
	}
	return d
}
