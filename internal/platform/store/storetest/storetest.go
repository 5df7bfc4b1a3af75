// Package storetest provides store seams for unit tests of services backed by in-memory repos
package storetest

import (
	"context"
	"errors"
	"sync/atomic"

	"progcap/internal/platform/store"
)

// ErrNoSQL is returned when code under test reaches for raw SQL on a Tx
var ErrNoSQL = errors.New("storetest: raw sql not supported")

// Tx is a TxRunner whose transactions just call fn; repos bound to it must ignore the Queryer
// Fail makes the next transactions return the given error without running fn
type Tx struct {
	Fail  error
	calls atomic.Int64
}

// Calls reports how many transactions ran
func (t *Tx) Calls() int64 { return t.calls.Load() }

func (t *Tx) Exec(context.Context, string, ...any) (store.CommandTag, error) { return nil, ErrNoSQL }

func (t *Tx) Query(context.Context, string, ...any) (store.Rows, error) { return nil, ErrNoSQL }

func (t *Tx) QueryRow(context.Context, string, ...any) store.Row { return errRow{} }

func (t *Tx) Tx(_ context.Context, fn func(q store.RowQuerier) error) error {
	t.calls.Add(1)
	if t.Fail != nil {
		return t.Fail
	}
	return fn(t)
}

type errRow struct{}

func (errRow) Scan(...any) error { return ErrNoSQL }
