// Package classify maps raw capture failures onto a fixed set of categories
package classify

import (
	"context"
	stderrs "errors"
	"net"
	"net/http"
	"strings"

	perr "progcap/internal/platform/errors"
)

// Category is a failure bucket; values are stable for dashboards
type Category string

const (
	Timeout     Category = "timeout"
	Validation  Category = "validation"
	ExternalAPI Category = "external_api"
	RateLimit   Category = "rate_limit"
	Unknown     Category = "unknown"
)

// Categories lists every category in a stable order
var Categories = []Category{Timeout, Validation, ExternalAPI, RateLimit, Unknown}

// Parse returns the category named s, or Unknown
func Parse(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range Categories {
		if c == k {
			return c
		}
	}
	return Unknown
}

// Failure is the raw shape of a failure as reported by a backend or seen locally
type Failure struct {
	HTTPStatus int    `json:"http_status,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

// FromError builds a Failure from a Go error
func FromError(err error) Failure {
	if err == nil {
		return Failure{}
	}
	return Failure{Err: err, Message: err.Error()}
}

// Text is the human readable reason stored on the job
func (f Failure) Text() string {
	if m := strings.TrimSpace(f.Message); m != "" {
		return m
	}
	if f.Err != nil {
		return f.Err.Error()
	}
	return "unknown failure"
}

type statusCoder interface{ HTTPStatus() int }

// Classify is deterministic: the same failure shape always gives the same category
func Classify(f Failure) Category {
	status := f.HTTPStatus
	var sc statusCoder
	if status == 0 && f.Err != nil && stderrs.As(f.Err, &sc) {
		status = sc.HTTPStatus()
	}
	code, hasCode := perr.ErrorCode(0), false
	if f.Err != nil {
		if _, ok := perr.As(f.Err); ok {
			code, hasCode = perr.CodeOf(f.Err), true
		}
	}
	kind := strings.ToLower(strings.TrimSpace(f.Kind))
	msg := strings.ToLower(f.Text())
	is := func(c perr.ErrorCode) bool { return hasCode && code == c }

	switch {
	case isTimeout(f.Err), is(perr.ErrorCodeTimeout),
		status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout,
		kind == string(Timeout),
		strings.Contains(msg, "timed out"), strings.Contains(msg, "timeout"):
		return Timeout

	case status == http.StatusTooManyRequests, is(perr.ErrorCodeTooManyRequests),
		kind == string(RateLimit),
		strings.Contains(msg, "rate limit"):
		return RateLimit

	case status == http.StatusBadRequest, status == http.StatusNotFound,
		status == http.StatusConflict, status == http.StatusGone,
		status == http.StatusUnprocessableEntity,
		is(perr.ErrorCodeValidation), is(perr.ErrorCodeInvalidArgument),
		is(perr.ErrorCodeJSON), is(perr.ErrorCodeNotFound),
		kind == string(Validation):
		return Validation

	case status >= 500 && status <= 599, is(perr.ErrorCodeUnavailable),
		kind == string(ExternalAPI), kind == "dispatch":
		return ExternalAPI
	}
	return Unknown
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if stderrs.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return stderrs.As(err, &ne) && ne.Timeout()
}

// Transient categories are retried by re-submission
func Transient(c Category) bool {
	return c == Timeout || c == ExternalAPI || c == RateLimit
}

// ManualIntervention categories need an operator once dead-lettered
func ManualIntervention(c Category) bool {
	return c == Validation || c == Unknown
}
