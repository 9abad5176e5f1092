// Package httpclient is the outbound HTTP client used by notifiers. It logs
// every attempt with a redacted URL and retries transient failures with
// exponential backoff, honoring Retry-After.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	randv2 "math/rand/v2"
	stdhttp "net/http"
	"net/url"
	"strconv"
	"time"

	"log-inspection/pkg/retry"
)

// ErrReplayBodyTooLarge indicates a request body exceeds the replay limit.
var ErrReplayBodyTooLarge = errors.New("http: body too large for replay")

// Client wraps http.Client with logging and retries. It satisfies the
// Do(*http.Request) interface expected by SDK clients; the request context
// bounds all attempts.
type Client struct {
	hc            *stdhttp.Client
	log           *slog.Logger
	retries       int
	baseBackoff   time.Duration
	maxBackoff    time.Duration
	headers       map[string]string
	urlRedactor   func(*url.URL) string
	retryNonIdem  bool
	maxReplayBody int64
}

// Option configures Client.
type Option func(*Client)

// WithTimeout sets the per-attempt timeout.
func WithTimeout(t time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = t }
}

// WithLogger sets logger used by client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRetries enables n retries starting at backoff.
func WithRetries(n int, backoff time.Duration) Option {
	return func(c *Client) {
		c.retries = n
		if backoff > 0 {
			c.baseBackoff = backoff
		}
	}
}

// WithMaxBackoff limits exponential backoff growth and Retry-After waits.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) { c.maxBackoff = d }
}

// WithHeaders adds default headers to each request.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) {
		if c.headers == nil {
			c.headers = make(map[string]string, len(h))
		}
		for k, v := range h {
			c.headers[k] = v
		}
	}
}

// WithURLRedactor sets URL redactor for logs.
func WithURLRedactor(f func(*url.URL) string) Option {
	return func(c *Client) { c.urlRedactor = f }
}

// WithTransport sets custom transport.
func WithTransport(rt stdhttp.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.hc.Transport = rt
		}
	}
}

// WithRetryNonIdempotent allows retries of POST and PATCH.
func WithRetryNonIdempotent(v bool) Option {
	return func(c *Client) { c.retryNonIdem = v }
}

// WithMaxReplayBodySize limits the buffered body kept for retries (0 disables limit).
func WithMaxReplayBodySize(n int64) Option {
	return func(c *Client) { c.maxReplayBody = n }
}

// New creates configured Client.
func New(opts ...Option) *Client {
	tr := stdhttp.DefaultTransport.(*stdhttp.Transport).Clone()
	tr.MaxIdleConnsPerHost = 10
	tr.IdleConnTimeout = 90 * time.Second
	tr.TLSHandshakeTimeout = 10 * time.Second
	tr.ResponseHeaderTimeout = 10 * time.Second

	c := &Client{
		hc: &stdhttp.Client{
			Timeout:   15 * time.Second,
			Transport: tr,
		},
		log:           slog.Default(),
		baseBackoff:   200 * time.Millisecond,
		maxBackoff:    10 * time.Second,
		maxReplayBody: 1 << 20,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Do sends req with retries. Only idempotent methods are retried unless
// WithRetryNonIdempotent is set or the request carries an Idempotency-Key.
func (c *Client) Do(req *stdhttp.Request) (*stdhttp.Response, error) {
	ctx := req.Context()
	if err := c.bufferBody(req); err != nil {
		return nil, err
	}

	retries := c.retries
	if !c.retryable(req) {
		retries = 0
	}
	u := c.redactURL(req.URL)

	var lastErr error
	for attempt := 1; attempt <= retries+1; attempt++ {
		r := req.Clone(ctx)
		for k, v := range c.headers {
			if r.Header.Get(k) == "" {
				r.Header.Set(k, v)
			}
		}
		if r.GetBody != nil {
			rc, err := r.GetBody()
			if err != nil {
				return nil, err
			}
			r.Body = rc
		}

		st := time.Now()
		resp, err := c.hc.Do(r)
		dur := time.Since(st)

		delay, again := retryInfo(resp, err)
		if !again || attempt > retries || ctx.Err() != nil {
			if err != nil {
				c.log.Warn("http request error", "method", r.Method, "url", u, "attempt", attempt, "error", err)
				return nil, redactError(err, u)
			}
			if again {
				// attempts exhausted, body already closed
				return nil, fmt.Errorf("%s %s: unexpected status %d", r.Method, u, resp.StatusCode)
			}
			c.log.Debug("http request", "method", r.Method, "url", u, "status", resp.StatusCode, "dur", dur, "attempt", attempt)
			return resp, nil
		}

		wait := c.backoff(attempt, delay)
		if err != nil {
			lastErr = redactError(err, u)
			c.log.Warn("http request error, retrying", "method", r.Method, "url", u, "attempt", attempt, "wait", wait, "error", err)
		} else {
			lastErr = fmt.Errorf("%s %s: unexpected status %d", r.Method, u, resp.StatusCode)
			c.log.Warn("http request status, retrying", "method", r.Method, "url", u, "attempt", attempt, "wait", wait, "status", resp.StatusCode)
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (c *Client) retryable(req *stdhttp.Request) bool {
	switch req.Method {
	case stdhttp.MethodGet, stdhttp.MethodHead, stdhttp.MethodOptions, stdhttp.MethodPut, stdhttp.MethodDelete:
		return true
	}
	return c.retryNonIdem || req.Header.Get("Idempotency-Key") != ""
}

// bufferBody makes the body replayable across attempts.
func (c *Client) bufferBody(req *stdhttp.Request) error {
	if req.Body == nil || req.GetBody != nil {
		return nil
	}
	defer req.Body.Close()

	var src io.Reader = req.Body
	if c.maxReplayBody > 0 {
		src = io.LimitReader(req.Body, c.maxReplayBody+1)
	}
	body, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	if c.maxReplayBody > 0 && int64(len(body)) > c.maxReplayBody {
		return ErrReplayBodyTooLarge
	}
	req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
	req.Body, _ = req.GetBody()
	return nil
}

// backoff returns the wait before the next attempt.
func (c *Client) backoff(attempt int, retryAfter time.Duration) time.Duration {
	wait := retryAfter
	if wait <= 0 {
		wait = c.baseBackoff * time.Duration(1<<uint(attempt-1))
		if wait > 0 {
			wait += time.Duration(randv2.Int64N(int64(wait)))
		}
	}
	if c.maxBackoff > 0 && wait > c.maxBackoff {
		wait = c.maxBackoff
	}
	return wait
}

func (c *Client) redactURL(u *url.URL) string {
	if c.urlRedactor != nil {
		return c.urlRedactor(u)
	}
	return u.Redacted()
}

// redactError drops the raw URL that *url.Error carries.
func redactError(err error, redacted string) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return &url.Error{Op: ue.Op, URL: redacted, Err: ue.Err}
	}
	return err
}

// retryAfter parses Retry-After header value.
func retryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := stdhttp.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func drainAndClose(b io.ReadCloser) {
	if b == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, b, 512<<10)
	_ = b.Close()
}

// retryInfo reports whether the outcome is transient and the server's
// requested delay. Retried responses are drained and closed here.
func retryInfo(resp *stdhttp.Response, err error) (time.Duration, bool) {
	if err != nil {
		return 0, retry.DefaultRetryable(err) && !errors.Is(err, context.DeadlineExceeded)
	}
	switch {
	case resp.StatusCode == stdhttp.StatusRequestTimeout, resp.StatusCode == stdhttp.StatusTooEarly:
		drainAndClose(resp.Body)
		return 0, true
	case resp.StatusCode == stdhttp.StatusTooManyRequests, resp.StatusCode >= 500:
		delay := retryAfter(resp.Header.Get("Retry-After"))
		drainAndClose(resp.Body)
		return delay, true
	default:
		return 0, false
	}
}
