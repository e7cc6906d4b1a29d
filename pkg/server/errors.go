package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stellarlinkco/chatrelay/pkg/message"
)

// Machine-readable error codes returned in pre-stream JSON bodies.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeInvalidMessage     = "invalid_message"
	CodeAuthRequired       = "auth_required"
	CodeAuthInvalid        = "auth_invalid"
	CodeRateLimited        = "rate_limited"
	CodeModelNotFound      = "model_not_found"
	CodeProviderError      = "provider_error"
	CodeTimeout            = "timeout"
	CodeServiceUnavailable = "service_unavailable"
	CodeInternalError      = "internal_error"
)

// maxDetailBytes bounds the detail string so upstream bodies never flood a
// client error response.
const maxDetailBytes = 500

// apiError is the structured body for every non-SSE error response.
type apiError struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{Detail: truncateDetail(detail), Code: code})
}

func truncateDetail(detail string) string {
	if len(detail) <= maxDetailBytes {
		return detail
	}
	cut := maxDetailBytes
	for cut > 0 && !isRuneStart(detail[cut]) {
		cut--
	}
	return detail[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// statusCoder is satisfied by upstream API errors.
type statusCoder interface{ HTTPStatusCode() int }

// classify maps an error onto an HTTP status and code for pre-stream
// surfaces. Post-stream surfaces ignore the status and use the detail only.
func classify(err error) (int, string) {
	var invalid *message.InvalidMessageError
	if errors.As(err, &invalid) {
		return http.StatusUnprocessableEntity, CodeInvalidMessage
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, CodeTimeout
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		switch status := sc.HTTPStatusCode(); {
		case status == http.StatusTooManyRequests:
			return http.StatusServiceUnavailable, CodeRateLimited
		case status == http.StatusNotFound:
			return http.StatusBadGateway, CodeModelNotFound
		case status >= 500:
			return http.StatusServiceUnavailable, CodeServiceUnavailable
		case status >= 400:
			return http.StatusBadGateway, CodeProviderError
		}
	}
	return http.StatusInternalServerError, CodeInternalError
}
