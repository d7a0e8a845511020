package repo

import (
	"context"
	"embed"
	"io/fs"
	"sort"

	"turnstile/internal/modkit/repokit"
	perr "turnstile/internal/platform/errors"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// LoadSchema returns the Postgres DDL files in apply order
func LoadSchema() ([]string, error) {
	names, err := fs.Glob(schemaFS, "schema/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, n := range names {
		b, err := schemaFS.ReadFile(n)
		if err != nil {
			return nil, err
		}
		out = append(out, string(b))
	}
	return out, nil
}

// Migrate applies the embedded schema; every statement is idempotent
func Migrate(ctx context.Context, q repokit.Queryer) error {
	stmts, err := LoadSchema()
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnknown, "load schema")
	}
	for _, s := range stmts {
		if _, err := q.Exec(ctx, s); err != nil {
			return perr.Wrap(err, perr.ErrorCodeDB, "apply schema")
		}
	}
	return nil
}
