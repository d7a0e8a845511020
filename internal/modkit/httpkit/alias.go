// Package httpkit is the routing and handler surface modules build their endpoints on
// modules import it instead of internal/platform/net/http
package httpkit

import (
	"net/http"

	phttp "turnstile/internal/platform/net/http"
	"turnstile/internal/platform/net/http/bind"
)

type (
	// Envelope is the transport envelope type
	Envelope = phttp.Envelope

	// Response lets a handler pick its status code
	Response = phttp.Response

	// Handler is the platform handler type
	Handler = phttp.Handler

	// Router is the platform router seam
	Router = phttp.Router
)

// Created returns a 201 response
func Created(data any) Response { return phttp.Created(data) }

// NoContent returns a 204 response
func NoContent() Response { return phttp.NoContent() }

// JSON binds a JSON body into T before calling fn
// a Response returned by fn is written as is; anything else is a 200
func JSON[T any](fn func(*http.Request, T) (any, error)) Handler {
	return phttp.Handle(func(r *http.Request) Response {
		in, err := bind.ParseJSON[T](r)
		if err != nil {
			return phttp.Error(err)
		}
		return respond(fn(r, in))
	})
}

// Call adapts a handler that reads no body
func Call(fn func(*http.Request) (any, error)) Handler {
	return phttp.Handle(func(r *http.Request) Response { return respond(fn(r)) })
}

func respond(out any, err error) Response {
	if err != nil {
		return phttp.Error(err)
	}
	if resp, ok := out.(Response); ok {
		return resp
	}
	return phttp.OK(out)
}

// WriteError writes err as the error envelope from a raw handler
func WriteError(w http.ResponseWriter, r *http.Request, err error) { phttp.WriteError(w, r, err) }

// Param returns a named path parameter
func Param(r *http.Request, name string) string { return phttp.Param(r, name) }

// Validate runs struct validation for inputs bound from query or path
func Validate(v any) error { return bind.Validate(v) }
