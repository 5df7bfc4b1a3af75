// Package dispatch hands capture jobs to the realtime and bulk execution backends over HTTP
package dispatch

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"progcap/internal/core/route"
	"progcap/internal/core/window"
	perr "progcap/internal/platform/errors"
	"progcap/internal/platform/logger"
)

// Request is the body posted to a backend
type Request struct {
	JobID    string        `json:"job_id"`
	JobType  string        `json:"job_type"`
	RepoID   int64         `json:"repo_id"`
	RepoName string        `json:"repo_name"`
	Window   window.Window `json:"window"`
	Attempt  int           `json:"attempt"`
	Backend  route.Backend `json:"backend"`
}

// Ack is what a backend answers when it accepts a job
type Ack struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message,omitempty"`
}

// StatusError is a non-2xx answer from a backend
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return "dispatch rejected with status " + http.StatusText(e.Status) + ": " + e.Body
}

// HTTPStatus interface
func (e *StatusError) HTTPStatus() int { return e.Status }

// Options configures the HTTP dispatcher
type Options struct {
	RealtimeURL string
	BulkURL     string
	Token       string
	Timeout     time.Duration
}

// HTTP posts dispatch requests with resty
type HTTP struct {
	client *resty.Client
	urls   map[route.Backend]string
	log    logger.Logger
}

// New builds an HTTP dispatcher; a backend without a URL fails every dispatch
func New(o Options) *HTTP {
	c := resty.New()
	c.SetHeader("Content-Type", "application/json")
	c.SetHeader("User-Agent", "progcap-dispatch")
	if o.Token != "" {
		c.SetAuthToken(o.Token)
	}
	if o.Timeout > 0 {
		c.SetTimeout(o.Timeout)
	}
	return &HTTP{
		client: c,
		urls: map[route.Backend]string{
			route.Realtime: strings.TrimSpace(o.RealtimeURL),
			route.Bulk:     strings.TrimSpace(o.BulkURL),
		},
		log: *logger.Named("dispatch"),
	}
}

// Dispatch posts req to the backend and waits for its acknowledgement
func (h *HTTP) Dispatch(ctx context.Context, req Request) error {
	url := h.urls[req.Backend]
	if url == "" {
		return perr.Unavailablef("no dispatch url configured for backend %q", req.Backend)
	}

	var ack Ack
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&ack).
		Post(url)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "dispatch to %s failed", req.Backend)
	}
	if resp.IsError() {
		return &StatusError{Status: resp.StatusCode(), Body: clip(resp.String(), maxErrorBody)}
	}
	if !ack.Accepted {
		return perr.Unavailablef("backend %s did not accept job %s: %s", req.Backend, req.JobID, ack.Message)
	}

	h.log.Debug().
		Str("job_id", req.JobID).
		Str("backend", string(req.Backend)).
		Dur("latency", resp.Time()).
		Msg("dispatch acknowledged")
	return nil
}

// maxErrorBody caps the backend error text kept on a job.
const maxErrorBody = 512

// clip cuts s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
