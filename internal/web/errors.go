package web

// errors.go turns errors into JSON responses.
//
// The technical error is logged with the request ID; the client receives the
// mapped user message and its code. A refused batch also echoes the first
// offending row and its line so the organizer can find it in the file.

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/jury/internal/core"
	"github.com/JonMunkholm/jury/internal/logging"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error    string   `json:"error"`
	Message  string   `json:"message"`
	Action   string   `json:"action,omitempty"`
	Code     string   `json:"code"`
	Row      []string `json:"row,omitempty"`
	Line     int      `json:"line,omitempty"`
	Detail   string   `json:"detail,omitempty"`
	Rejected []string `json:"rejected,omitempty"`
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrMalformedInput),
		errors.Is(err, core.ErrFieldCount),
		errors.Is(err, core.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrAllocatorUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the mapped response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	// The tokenizer reports a truncated body as malformed CSV.
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		msg = core.MapError(tooLarge)
	}

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", msg.Code,
		"error", err.Error(),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request rejected", attrs...)
	}

	resp := ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
	var batchErr *core.BatchRejectedError
	if errors.As(err, &batchErr) {
		resp.Error = batchErr.Error()
		resp.Rejected = batchErr.Rejected
		if len(batchErr.Rows) > 0 {
			resp.Row = batchErr.Rows[0].Row
			resp.Line = batchErr.Rows[0].Line
			resp.Detail = batchErr.Rows[0].Error()
		}
	}
	writeJSON(w, r, status, resp)
}

// writeError writes an error that did not come from the service.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, r, status, ErrorResponse{Error: message, Message: message, Code: code})
}
