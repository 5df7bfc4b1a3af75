package http

import (
	stdhttp "net/http"
	"strconv"
	"strings"
	"time"

	perr "progcap/internal/platform/errors"

	"github.com/go-chi/chi/v5"
)

// Param returns a trimmed route parameter, empty when absent
func Param(r *stdhttp.Request, name string) string {
	return strings.TrimSpace(chi.URLParam(r, name))
}

// MustParam returns a route parameter or a validation error naming it
func MustParam(r *stdhttp.Request, name string) (string, error) {
	v := Param(r, name)
	if v == "" {
		return "", perr.WithField(perr.Newf(perr.ErrorCodeValidation, "missing path parameter %s", name), name)
	}
	return v, nil
}

// QueryInt reads an int query value with a default; malformed values are an error
func QueryInt(r *stdhttp.Request, name string, def int) (int, error) {
	s := strings.TrimSpace(r.URL.Query().Get(name))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, perr.WithField(perr.InvalidArgf("%s must be an integer", name), name)
	}
	return n, nil
}

// QueryBool reads a bool query value with a default
func QueryBool(r *stdhttp.Request, name string, def bool) (bool, error) {
	s := strings.TrimSpace(r.URL.Query().Get(name))
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, perr.WithField(perr.InvalidArgf("%s must be a boolean", name), name)
	}
	return b, nil
}

// QueryDuration reads a Go duration query value (e.g. 24h) with a default
func QueryDuration(r *stdhttp.Request, name string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(r.URL.Query().Get(name))
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, perr.WithField(perr.InvalidArgf("%s must be a duration like 24h", name), name)
	}
	return d, nil
}
