package net

import (
	"net/http"

	perr "turnstile/internal/platform/errors"
)

// Wire is the body every JSON endpoint answers with
type Wire struct {
	StatusCode int            `json:"status_code"`
	Status     string         `json:"status"`
	Code       perr.ErrorCode `json:"code,omitempty"`
	Error      string         `json:"error,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	Data       any            `json:"data,omitempty"`
}

// Reply builds a success envelope for status
func Reply(status int, data any, reqID string) Wire {
	return Wire{
		StatusCode: status,
		Status:     http.StatusText(status),
		RequestID:  reqID,
		Data:       data,
	}
}

// Error maps err onto a status and an error envelope; a nil err is a 200
func Error(err error, reqID string) (int, Wire) {
	if err == nil {
		return http.StatusOK, Reply(http.StatusOK, nil, reqID)
	}
	status := perr.HTTPStatus(err)
	w := perr.WireFrom(err)
	return status, Wire{
		StatusCode: status,
		Status:     http.StatusText(status),
		Code:       w.Code,
		Error:      w.Message,
		RequestID:  reqID,
	}
}
