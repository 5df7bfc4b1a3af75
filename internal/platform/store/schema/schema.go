// Package schema embeds the postgres schema and applies it
package schema

import (
	"context"
	_ "embed"

	perr "progcap/internal/platform/errors"
	"progcap/internal/platform/store"
)

//go:embed schema.sql
var ddl string

// SQL returns the embedded schema text
func SQL() string { return ddl }

// Apply runs the schema in one transaction
// statements are idempotent so Apply is safe on every boot
func Apply(ctx context.Context, tx store.TxRunner) error {
	err := tx.Tx(ctx, func(q store.RowQuerier) error {
		_, err := q.Exec(ctx, ddl)
		return err
	})
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "apply schema")
	}
	return nil
}
