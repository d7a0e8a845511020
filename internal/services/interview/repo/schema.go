package repo

import (
	"context"
	_ "embed"

	"turnstile/internal/modkit/repokit"
	perr "turnstile/internal/platform/errors"
)

//go:embed schema/postgres.sql
var schemaSQL string

// Migrate applies the interview DDL; it is idempotent
func Migrate(ctx context.Context, q repokit.Queryer) error {
	if _, err := q.Exec(ctx, schemaSQL); err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "apply interview schema")
	}
	return nil
}
