// Package net carries request identity through contexts and shapes the JSON envelope
package net

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type ctxKey uint8

const (
	keyScope ctxKey = iota + 1
	keyUserID
)

// WithRequest stores reqID under chi's request id key and scope under ours;
// empty values are skipped
func WithRequest(ctx context.Context, reqID, scope string) context.Context {
	if reqID != "" {
		ctx = context.WithValue(ctx, chimw.RequestIDKey, reqID)
	}
	return withString(ctx, keyScope, scope)
}

// WithUser stores the authenticated user id
func WithUser(ctx context.Context, userID string) context.Context {
	return withString(ctx, keyUserID, userID)
}

// RequestID is chi's request id, or "" outside a request
func RequestID(ctx context.Context) string { return chimw.GetReqID(ctx) }

// Scope is the auth scope, or ""
func Scope(ctx context.Context) string { return stringAt(ctx, keyScope) }

// UserID is the authenticated user, or ""
func UserID(ctx context.Context) string { return stringAt(ctx, keyUserID) }

func withString(ctx context.Context, k ctxKey, v string) context.Context {
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, k, v)
}

func stringAt(ctx context.Context, k ctxKey) string {
	v, _ := ctx.Value(k).(string)
	return v
}
