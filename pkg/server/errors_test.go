package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stellarlinkco/chatrelay/pkg/message"
	"github.com/stellarlinkco/chatrelay/pkg/model/openai"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "invalid message",
			err:        &message.InvalidMessageError{Reason: "bad part"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   CodeInvalidMessage,
		},
		{
			name:       "wrapped invalid message",
			err:        fmt.Errorf("convert: %w", &message.InvalidMessageError{Reason: "bad part"}),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   CodeInvalidMessage,
		},
		{
			name:       "deadline",
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   CodeTimeout,
		},
		{
			name:       "rate limited",
			err:        openai.APIError{StatusCode: 429},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   CodeRateLimited,
		},
		{
			name:       "model not found",
			err:        openai.APIError{StatusCode: 404},
			wantStatus: http.StatusBadGateway,
			wantCode:   CodeModelNotFound,
		},
		{
			name:       "upstream server error",
			err:        openai.APIError{StatusCode: 502},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   CodeServiceUnavailable,
		},
		{
			name:       "upstream client error",
			err:        openai.APIError{StatusCode: 400},
			wantStatus: http.StatusBadGateway,
			wantCode:   CodeProviderError,
		},
		{
			name:       "unclassified",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeInternalError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := classify(tt.err)
			if status != tt.wantStatus || code != tt.wantCode {
				t.Fatalf("classify(%v) = %d/%s want %d/%s", tt.err, status, code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

func TestTruncateDetail(t *testing.T) {
	short := "small detail"
	if got := truncateDetail(short); got != short {
		t.Fatalf("short detail changed: %q", got)
	}

	long := strings.Repeat("x", maxDetailBytes+100)
	if got := truncateDetail(long); len(got) != maxDetailBytes {
		t.Fatalf("truncated length = %d", len(got))
	}

	// A multibyte rune straddling the boundary must not be split.
	multi := strings.Repeat("x", maxDetailBytes-1) + "é" + strings.Repeat("y", 50)
	got := truncateDetail(multi)
	if len(got) > maxDetailBytes {
		t.Fatalf("truncated length = %d", len(got))
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncation split a rune: %q", got[len(got)-4:])
	}
}
