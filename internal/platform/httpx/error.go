// Package httpx writes the JSON error envelope shared by every endpoint.
// The envelope carries the stable machine code alongside the transport
// status so clients can distinguish business conditions from faults.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/skyward-labs/ndc-gateway/internal/platform/requestctx"
)

const (
	maxCodeLen    = 80
	maxMessageLen = 512
	maxTraceLen   = 64
)

// Error is the wire shape of an API failure. Request and trace identifiers
// are filled in from the request context at write time.
type Error struct {
	Code      string `json:"error"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// NewError builds an envelope for the given machine code and status. A zero
// status falls back to 500 so a missing mapping never produces a 200.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clip(code, maxCodeLen),
		Message: clip(message, maxMessageLen),
		Status:  status,
	}
}

// WriteError serialises the envelope, stamping the request and trace
// identifiers carried in ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	if err.Status == 0 {
		err.Status = http.StatusInternalServerError
	}
	if err.RequestID == "" {
		err.RequestID = clip(middleware.GetReqID(ctx), maxCodeLen)
	}
	if err.TraceID == "" {
		err.TraceID = clip(requestctx.TraceID(ctx), maxTraceLen)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)
	_ = json.NewEncoder(w).Encode(err)
}

// clip collapses newlines and bounds the value so upstream messages cannot
// smuggle log or header breaks into the envelope.
func clip(value string, limit int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
