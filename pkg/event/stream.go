package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultStreamTimeout bounds one response stream wall-clock.
	DefaultStreamTimeout = 300 * time.Second

	headerRequestID = "X-Request-ID"
)

// ErrTimeout reports that the wall-clock deadline expired; the in-band
// error frame has already been written when it is returned.
var ErrTimeout = errors.New("event: stream timeout")

// Writer frames events onto one HTTP response as SSE. It owns the response
// writer and the stream deadline. One Writer serves exactly one request.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	timeout time.Duration
	started bool
}

// WriterOption customizes a Writer.
type WriterOption func(*Writer)

// WithTimeout overrides the wall-clock stream deadline. Zero or negative
// disables it.
func WithTimeout(d time.Duration) WriterOption {
	return func(sw *Writer) { sw.timeout = d }
}

// NewWriter wraps a response writer for SSE delivery. The response must
// support flushing; buffered delivery defeats the protocol.
func NewWriter(w http.ResponseWriter, opts ...WriterOption) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("event: response does not support streaming")
	}
	sw := &Writer{w: w, flusher: flusher, timeout: DefaultStreamTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(sw)
		}
	}
	return sw, nil
}

// Open commits the SSE response headers. After Open the HTTP status is on
// the wire and every later failure must be an in-band event.
func (sw *Writer) Open(requestID string) {
	if sw.started {
		return
	}
	headers := sw.w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	if requestID != "" {
		headers.Set(headerRequestID, requestID)
	}
	sw.w.WriteHeader(http.StatusOK)
	sw.flusher.Flush()
	sw.started = true
}

// Stream writes events until a terminal event, deadline expiry, or client
// disconnect. The deadline arms when the first event is about to be
// written. The producer must close the channel after its terminal event and
// must select on ctx so a returning Stream never strands it.
//
// Every exit path honors the terminal guarantee: a closed channel without a
// terminal event synthesizes an error frame, deadline expiry synthesizes
// the timeout frame, and disconnect writes nothing further.
func (sw *Writer) Stream(ctx context.Context, events <-chan Event) error {
	var timer *time.Timer
	var deadline <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			sw.writeFrame(Error{Message: "stream timeout"})
			return ErrTimeout
		case evt, ok := <-events:
			if !ok {
				sw.writeFrame(Error{Message: "stream ended without terminator"})
				return nil
			}
			if evt == nil {
				continue
			}
			if timer == nil && sw.timeout > 0 {
				timer = time.NewTimer(sw.timeout)
				deadline = timer.C
			}
			// The deadline wins a tie with a ready event.
			select {
			case <-deadline:
				sw.writeFrame(Error{Message: "stream timeout"})
				return ErrTimeout
			default:
			}
			if err := sw.writeFrame(evt); err != nil {
				return err
			}
			if evt.Terminal() {
				return nil
			}
		}
	}
}

// WriteEvent frames one event outside a Stream loop. Open must have been
// called first.
func (sw *Writer) WriteEvent(evt Event) error {
	return sw.writeFrame(evt)
}

func (sw *Writer) writeFrame(evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("event: marshal frame: %w", err)
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", body); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

// Encode renders one event as its SSE frame bytes. Exposed for tests and
// for callers that assemble frames outside a live response.
func Encode(evt Event) ([]byte, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("event: marshal frame: %w", err)
	}
	frame := make([]byte, 0, len(body)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, body...)
	frame = append(frame, "\n\n"...)
	return frame, nil
}

// WriteTo streams pre-encoded frames to a plain writer. Used by the
// non-HTTP replay paths in tests.
func WriteTo(w io.Writer, events []Event) error {
	for _, evt := range events {
		frame, err := Encode(evt)
		if err != nil {
			return err
		}
		if _, err := w.Write(frame); err != nil {
			return err
		}
	}
	return nil
}
