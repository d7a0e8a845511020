package domain

import perr "turnstile/internal/platform/errors"

// Sentinels shared by both store backends
var (
	ErrNotFound      = perr.New(perr.ErrorCodeNotFound, "conversation not found")
	ErrExists        = perr.New(perr.ErrorCodeDuplicateKey, "conversation already started")
	ErrVersion       = perr.New(perr.ErrorCodeConflict, "conversation state changed concurrently")
	ErrNotActive     = perr.New(perr.ErrorCodeConflict, "conversation is not active")
	ErrCandidateSwap = perr.New(perr.ErrorCodeForbidden, "candidate does not own this conversation")
)
