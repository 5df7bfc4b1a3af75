// Package github is a small GitHub REST v3 client with token pools and rate header reporting
package github

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	perr "progcap/internal/platform/errors"
	"progcap/internal/platform/logger"
)

const (
	baseURLDefault   = "https://api.github.com"
	defaultTimeout   = 10 * time.Second
	defaultUA        = "progcap"
	defaultMaxRetry  = 3
	defaultRetryBase = 500 * time.Millisecond
)

// RateSample is what one response says about the quota of the token that made it
type RateSample struct {
	Remaining  int
	Limit      int
	Reset      time.Time
	RetryAfter time.Duration
}

// RateObserver receives rate headers from every response
type RateObserver interface {
	ObserveRate(ctx context.Context, scope string, s RateSample)
}

// Pacer gates outbound calls; Wait blocks until a call may be issued
type Pacer interface {
	Wait(ctx context.Context, scope string) error
}

// Options configures the Client
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration

	// Scope names the credential pool (realtime, bulk) in rate reports
	Scope string

	// Comma separated tokens; empty means tokenless which has a very low quota
	TokensCSV string

	MaxRetries int
	RetryBase  time.Duration

	Observer RateObserver
	Pacer    Pacer
}

// Client is a GitHub REST client with round robin tokens and retry on transient responses
type Client struct {
	http   *http.Client
	opts   Options
	tokens []string
	cur    atomic.Int32
	log    logger.Logger
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
}

// NewClient creates a Client with defaults applied
func NewClient(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = baseURLDefault
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetry
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	var toks []string
	for t := range strings.SplitSeq(o.TokensCSV, ",") {
		if t = strings.TrimSpace(t); t != "" {
			toks = append(toks, t)
		}
	}
	return &Client{
		http:   &http.Client{Timeout: o.Timeout},
		opts:   o,
		tokens: toks,
		log:    logger.Named("github").With().Str("scope", o.Scope).Logger(),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Scope returns the credential pool name
func (c *Client) Scope() string { return c.opts.Scope }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// nextToken returns the next token in a round robin rotation
func (c *Client) nextToken() string {
	n := int(c.cur.Add(1))
	if len(c.tokens) == 0 {
		return ""
	}
	return c.tokens[n%len(c.tokens)]
}

// Do issues a paced request with auth, etag, retries and rate limit handling
// etagIn is optional and adds If-None-Match for conditional requests
func (c *Client) Do(ctx context.Context, method, path, etagIn string) (*http.Response, error) {
	if c.opts.Pacer != nil {
		if err := c.opts.Pacer.Wait(ctx, c.opts.Scope); err != nil {
			return nil, err
		}
	}
	return c.do(ctx, method, path, etagIn, "")
}

// do runs the retry loop; an empty token means rotate through the pool
func (c *Client) do(ctx context.Context, method, path, etagIn, token string) (*http.Response, error) {
	url := c.opts.BaseURL + path
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "github new request failed")
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)
		req.Header.Set("Accept", "application/vnd.github+json")
		if etagIn != "" {
			req.Header.Set("If-None-Match", etagIn)
		}
		tok := token
		if tok == "" {
			tok = c.nextToken()
		}
		if tok != "" {
			req.Header.Set("Authorization", "token "+tok)
		}

		start := c.now()
		resp, err := c.http.Do(req)
		lat := c.now().Sub(start)

		if err != nil {
			if ctx.Err() != nil || !c.shouldRetry(attempts) {
				return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "github do failed")
			}
			back := c.backoff(attempts)
			c.log.Warn().Err(err).Dur("retry_in", back).Int("attempt", attempts).Msg("github transport error retrying")
			if err := c.sleep(ctx, back); err != nil {
				return nil, err
			}
			attempts++
			continue
		}

		sample := parseRateHeaders(resp.Header)
		if c.opts.Observer != nil && (sample.Limit > 0 || sample.RetryAfter > 0) {
			c.opts.Observer.ObserveRate(ctx, c.opts.Scope, sample)
		}
		c.log.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Int("attempt", attempts).
			Dur("latency", lat).
			Int("rate_remaining", sample.Remaining).
			Time("rate_reset", sample.Reset).
			Dur("retry_after", sample.RetryAfter).
			Msg("github http response")

		switch {
		case resp.StatusCode == http.StatusNotModified,
			resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil

		case isRateLimitedResponse(resp.StatusCode, sample):
			wait := computeWait(sample, c.now())
			if wait <= 0 {
				wait = c.backoff(attempts)
			}
			_ = drainAndClose(resp.Body)
			if !c.shouldRetry(attempts) {
				return nil, &GHStatusError{
					Status: resp.StatusCode,
					Err:    perr.Newf(perr.ErrorCodeTooManyRequests, "github rate limit exceeded"),
				}
			}
			c.log.Warn().Dur("sleep", wait).Msg("github rate limited backing off")
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			attempts++
			continue

		case resp.StatusCode == http.StatusBadGateway,
			resp.StatusCode == http.StatusServiceUnavailable,
			resp.StatusCode == http.StatusGatewayTimeout:
			_ = drainAndClose(resp.Body)
			if !c.shouldRetry(attempts) {
				return nil, &GHStatusError{
					Status: resp.StatusCode,
					Err:    perr.Newf(perr.ErrorCodeUnavailable, "github transient server error %d", resp.StatusCode),
				}
			}
			back := c.backoff(attempts)
			c.log.Warn().Dur("retry_in", back).Int("attempt", attempts).Msg("github transient error retrying")
			if err := c.sleep(ctx, back); err != nil {
				return nil, err
			}
			attempts++
			continue

		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			_ = resp.Body.Close()
			return nil, &GHStatusError{
				Status: resp.StatusCode,
				Body:   string(body),
				Err:    perr.Newf(statusCode(resp.StatusCode), "github unexpected status %d", resp.StatusCode),
			}
		}
	}
}

// isRateLimitedResponse separates quota 403s from permission 403s
func isRateLimitedResponse(status int, s RateSample) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	return status == http.StatusForbidden && (s.RetryAfter > 0 || (s.Limit > 0 && s.Remaining <= 0))
}

func statusCode(status int) perr.ErrorCode {
	switch {
	case status == http.StatusNotFound:
		return perr.ErrorCodeNotFound
	case status == http.StatusUnauthorized:
		return perr.ErrorCodeUnauthorized
	case status == http.StatusForbidden:
		return perr.ErrorCodeForbidden
	case status >= 500:
		return perr.ErrorCodeUnavailable
	}
	return perr.ErrorCodeUnknown
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.opts.RetryBase << uint(attempt)
	if d <= 0 || d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

func (c *Client) shouldRetry(attempt int) bool {
	return attempt < c.opts.MaxRetries
}
