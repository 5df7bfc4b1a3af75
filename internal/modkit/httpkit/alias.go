// Package httpkit provides handler and routing helpers that alias the platform http package
// use these from modules so they do not import internal/platform/net/http directly
package httpkit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	perr "progcap/internal/platform/errors"
	phttp "progcap/internal/platform/net/http"
)

type (
	// Envelope is the transport envelope type
	Envelope = phttp.Envelope

	// Page is the pagination metadata type
	Page = phttp.Page

	// Response is the HTTP response type
	Response = phttp.Response

	// Handler is the platform handler type
	Handler = phttp.Handler

	// Router is a re-export of the platform router seam
	Router = phttp.Router
)

// OK returns a 200 response
func OK(data any) Response { return phttp.OK(data) }

// Created returns a 201 response
func Created(data any) Response { return phttp.Created(data) }

// NoContent returns a 204 response
func NoContent() Response { return phttp.NoContent() }

// Data is an alias for OK
func Data(v any) Response { return phttp.Data(v) }

// Error returns a response that maps an error to status and envelope
func Error(err error) Response { return phttp.Error(err) }

// List returns a 200 response with items and pagination
func List(items any, total, page, size int, cursor string) Response {
	return phttp.List(items, total, page, size, cursor)
}

// Param returns a route parameter
func Param(r *http.Request, name string) string { return phttp.Param(r, name) }

// MustParam returns a route parameter or a validation error
func MustParam(r *http.Request, name string) (string, error) { return phttp.MustParam(r, name) }

// JSON wraps a JSON handler with the appropriate content type
func JSON[T any](fn func(*http.Request, T) (any, error)) Handler {
	return Handle(func(r *http.Request) Response {
		var in T
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&in); err != nil {
			return phttp.Error(err)
		}
		out, err := fn(r, in)
		if err != nil {
			return phttp.Error(err)
		}
		if resp, ok := out.(phttp.Response); ok {
			return resp
		}
		return phttp.OK(out)
	})
}

// Call adapts a handler that takes no JSON body
func Call(fn func(*http.Request) (any, error)) Handler {
	return phttp.Handle(func(r *http.Request) phttp.Response {
		out, err := fn(r)
		if err != nil {
			return phttp.Error(err)
		}
		if resp, ok := out.(phttp.Response); ok {
			return resp
		}
		return phttp.OK(out)
	})
}

// Handle lets you directly adapt a Response-returning function if you prefer
func Handle(fn func(*http.Request) Response) Handler {
	return phttp.Handle(fn)
}

// QueryInt reads an int query value with a default
func QueryInt(r *http.Request, name string, def int) (int, error) { return phttp.QueryInt(r, name, def) }

// QueryBool reads a bool query value with a default
func QueryBool(r *http.Request, name string, def bool) (bool, error) {
	return phttp.QueryBool(r, name, def)
}

// QueryDuration reads a duration query value with a default
func QueryDuration(r *http.Request, name string, def time.Duration) (time.Duration, error) {
	return phttp.QueryDuration(r, name, def)
}

// UUIDParam parses a route parameter as a uuid
func UUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	s, err := phttp.MustParam(r, name)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, perr.WithField(perr.InvalidArgf("%s must be a uuid", name), name)
	}
	return id, nil
}

// Int64Param parses a positive integer route parameter
func Int64Param(r *http.Request, name string) (int64, error) {
	s, err := phttp.MustParam(r, name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, perr.WithField(perr.InvalidArgf("%s must be a positive integer", name), name)
	}
	return n, nil
}
