// Package http writes the JSON envelope and adapts chi to the platform router
package http

import (
	"encoding/json"
	stdhttp "net/http"

	"turnstile/internal/platform/logger"
	pnet "turnstile/internal/platform/net"
)

// Envelope is the response body for every endpoint
type Envelope = pnet.Wire

// JSON writes v as application/json with the given status
func JSON(w stdhttp.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Get().Debug().Err(err).Msg("encode response")
	}
}

// WriteError writes err as an error envelope for handlers that own the ResponseWriter
func WriteError(w stdhttp.ResponseWriter, r *stdhttp.Request, err error) {
	status, body := pnet.Error(err, pnet.RequestID(r.Context()))
	JSON(w, status, body)
}

// Response is what return style handlers hand back
type Response struct {
	Status int
	Body   any
	Header stdhttp.Header
}

// Handle adapts a Response returning handler to net/http
func Handle(h func(r *stdhttp.Request) Response) stdhttp.HandlerFunc {
	return func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		h(r).write(w, r)
	}
}

func (resp Response) write(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	if err, ok := resp.Body.(error); ok && err != nil {
		WriteError(w, r, err)
		return
	}
	status := resp.Status
	if status == 0 {
		status = stdhttp.StatusOK
	}
	if status == stdhttp.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	JSON(w, status, pnet.Reply(status, resp.Body, pnet.RequestID(r.Context())))
}

// OK returns a 200 response
func OK(data any) Response { return Response{Status: stdhttp.StatusOK, Body: data} }

// Created returns a 201 response
func Created(data any) Response { return Response{Status: stdhttp.StatusCreated, Body: data} }

// NoContent returns a 204 response
func NoContent() Response { return Response{Status: stdhttp.StatusNoContent} }

// Error returns a response whose status comes from err
func Error(err error) Response { return Response{Body: err} }
