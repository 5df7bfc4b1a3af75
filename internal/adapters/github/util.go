package github

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"
)

// GHStatusError wraps non-2xx HTTP responses from GitHub
type GHStatusError struct {
	Status int
	Body   string
	Err    error
}

// Error interface
func (e *GHStatusError) Error() string { return e.Err.Error() }

// Unwrap interface
func (e *GHStatusError) Unwrap() error { return e.Err }

// HTTPStatus interface
func (e *GHStatusError) HTTPStatus() int { return e.Status }

func parseRateHeaders(h http.Header) RateSample {
	var s RateSample
	s.Remaining = atoi(h.Get("X-RateLimit-Remaining"))
	s.Limit = atoi(h.Get("X-RateLimit-Limit"))
	if sec := atoi(h.Get("X-RateLimit-Reset")); sec > 0 {
		s.Reset = time.Unix(int64(sec), 0).UTC()
	}
	if ra := atoi(h.Get("Retry-After")); ra > 0 {
		s.RetryAfter = time.Duration(ra) * time.Second
	}
	return s
}

// computeWait decides how long to wait based on headers
func computeWait(s RateSample, now time.Time) time.Duration {
	if s.RetryAfter > 0 {
		return s.RetryAfter
	}
	if s.Remaining <= 0 && !s.Reset.IsZero() && s.Reset.After(now) {
		return s.Reset.Sub(now)
	}
	return 0
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	i, _ := strconv.Atoi(s)
	return i
}

func drainAndClose(rc io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 512))
	return rc.Close()
}

// IsRateLimited reports whether err is a GHStatusError with 429 or 403 status
func IsRateLimited(err error) bool {
	var gse *GHStatusError
	if errors.As(err, &gse) {
		return gse.Status == http.StatusTooManyRequests || gse.Status == http.StatusForbidden
	}
	return false
}

// IsNotFound reports whether GitHub answered 404
func IsNotFound(err error) bool {
	var gse *GHStatusError
	return errors.As(err, &gse) && gse.Status == http.StatusNotFound
}

// IsTransient reports whether err is a GHStatusError with a 5xx status
func IsTransient(err error) bool {
	var gse *GHStatusError
	if errors.As(err, &gse) {
		return gse.Status >= 500 && gse.Status <= 599
	}
	return false
}
