package errors

import (
	"context"
	stderrs "errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// sqlstate classes the stores care about
var pgCodes = map[string]ErrorCode{
	"23505": ErrorCodeDuplicateKey,
	"23503": ErrorCodeInvalidArgument,
	"23502": ErrorCodeValidation,
	"23514": ErrorCodeValidation,
	"22001": ErrorCodeInvalidArgument,
	"22P02": ErrorCodeInvalidArgument,
	"40001": ErrorCodeDB,
	"40P01": ErrorCodeDB,
	"55P03": ErrorCodeDB,
	"25006": ErrorCodeUnavailable,
	"57P03": ErrorCodeUnavailable,
}

// contention that clears on its own; a claim or save can simply run again
var pgTransient = map[string]bool{"40001": true, "40P01": true, "55P03": true}

func pgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if err == nil || !stderrs.As(err, &pgErr) {
		return nil, false
	}
	return pgErr, true
}

// DBErrorCode maps a Postgres error to an ErrorCode
// ok is false when err carries no *pgconn.PgError
func DBErrorCode(err error) (ErrorCode, bool) {
	pgErr, ok := pgError(err)
	if !ok {
		return ErrorCodeUnknown, false
	}
	if c, known := pgCodes[pgErr.Code]; known {
		return c, true
	}
	return ErrorCodeDB, true
}

// FromPostgres wraps a driver error under its mapped code
// a column name reported by Postgres becomes the field
func FromPostgres(err error, msg string) error {
	if err == nil {
		return nil
	}
	code, ok := DBErrorCode(err)
	if !ok {
		code = ErrorCodeDB
	}
	out := Wrap(err, code, msg)
	if pgErr, ok := pgError(err); ok && strings.TrimSpace(pgErr.ColumnName) != "" {
		out = WithField(out, pgErr.ColumnName)
	}
	return out
}

// IsRetryable reports transient database contention
// caller cancellation never counts
func IsRetryable(err error) bool {
	if err == nil || stderrs.Is(err, context.Canceled) || stderrs.Is(err, context.DeadlineExceeded) {
		return false
	}
	if pgErr, ok := pgError(err); ok {
		return pgTransient[pgErr.Code]
	}
	s := strings.ToLower(Root(err).Error())
	for _, frag := range []string{
		"commit unexpectedly resulted in rollback",
		"deadlock detected",
		"could not serialize access",
		"canceling statement due to lock timeout",
	} {
		if strings.Contains(s, frag) {
			return true
		}
	}
	return false
}
