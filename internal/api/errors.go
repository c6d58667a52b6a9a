// Package api provides HTTP API handlers including standardized error handling.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/helixbridge/genconsent/internal/fault"
	"github.com/helixbridge/genconsent/internal/middleware"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodePrecondition indicates the operation's state precondition does not hold.
	ErrCodePrecondition = "precondition_failed"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeLedgerUnavailable indicates the ledger is unreachable for an
	// operation that has no degraded fallback.
	ErrCodeLedgerUnavailable = "ledger_unavailable"

	// ErrCodeLedgerRejected indicates the ledger refused the transaction.
	ErrCodeLedgerRejected = "ledger_rejected"

	// ErrCodeConflict indicates a conflict with a concurrent operation.
	ErrCodeConflict = "conflict"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"

	// ErrCodeForbidden indicates the request is forbidden.
	ErrCodeForbidden = "forbidden"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
//
// The error_code is logged by the logging middleware for 4xx and 5xx
// responses when SetErrorCode was called on the context first.
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.UpdateResponseContext(w, ctx)

	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}

	data, err := json.Marshal(errResp)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// WriteFault maps a domain fault to its HTTP status and error code and
// writes the standard error response. Non-fault errors map to 500.
func WriteFault(w http.ResponseWriter, r *http.Request, err error) {
	code, status := classify(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		// Internal details stay in the logs.
		message = "internal error"
		slog.ErrorContext(r.Context(), "request failed", "error", err)
	}

	ctx := middleware.SetErrorCode(r.Context(), code)
	WriteError(w, ctx, status, code, message)
}

func classify(err error) (string, int) {
	switch fault.KindOf(err) {
	case fault.KindValidation:
		return ErrCodeValidation, http.StatusBadRequest
	case fault.KindPrecondition:
		return ErrCodePrecondition, http.StatusConflict
	case fault.KindNotFound:
		return ErrCodeNotFound, http.StatusNotFound
	case fault.KindLedgerUnavailable:
		return ErrCodeLedgerUnavailable, http.StatusServiceUnavailable
	case fault.KindLedgerRejected:
		return ErrCodeLedgerRejected, http.StatusUnprocessableEntity
	case fault.KindConflict:
		return ErrCodeConflict, http.StatusConflict
	default:
		return ErrCodeInternal, http.StatusInternalServerError
	}
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
