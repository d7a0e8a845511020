// Package repokit holds the seams the postgres repos are written against
package repokit

import (
	"turnstile/internal/platform/store"
)

type (
	// Queryer is the read and write surface a repo binds to
	Queryer = store.RowQuerier

	// TxRunner is a Queryer that can also open a transaction
	TxRunner = store.TxRunner

	// Rows are the result set of a query
	Rows = store.Rows

	// Row is a single row result from a query
	Row = store.Row

	// CommandTag is the result of a command that modifies data
	CommandTag = store.CommandTag
)

// RequireQueryer panics on a nil q so a miswired repo fails at construction
func RequireQueryer(q Queryer) Queryer {
	if q == nil {
		panic("repokit: nil Queryer")
	}
	return q
}
