package event

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestWriter(t *testing.T, opts ...WriterOption) (*Writer, *httptest.ResponseRecorder) {
	t.Helper()
	rec := httptest.NewRecorder()
	sw, err := NewWriter(rec, opts...)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	return sw, rec
}

func collectFrames(body string) []string {
	var frames []string
	for _, chunk := range strings.Split(body, "\n\n") {
		if strings.TrimSpace(chunk) != "" {
			frames = append(frames, chunk)
		}
	}
	return frames
}

func TestOpenSetsHeaders(t *testing.T) {
	sw, rec := newTestWriter(t)
	sw.Open("req-42")

	headers := rec.Header()
	if got := headers.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}
	if got := headers.Get("Cache-Control"); got != "no-cache" {
		t.Fatalf("cache control = %q", got)
	}
	if got := headers.Get("Connection"); got != "keep-alive" {
		t.Fatalf("connection = %q", got)
	}
	if got := headers.Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("request id = %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStreamDeliversUntilTerminal(t *testing.T) {
	sw, rec := newTestWriter(t)
	sw.Open("")

	events := make(chan Event, 4)
	events <- TextDelta{TextDelta: "Hel"}
	events <- TextDelta{TextDelta: "lo"}
	events <- Finish{}
	close(events)

	if err := sw.Stream(context.Background(), events); err != nil {
		t.Fatalf("stream: %v", err)
	}
	frames := collectFrames(rec.Body.String())
	want := []string{
		`data: {"type":"text-delta","textDelta":"Hel"}`,
		`data: {"type":"text-delta","textDelta":"lo"}`,
		`data: {"type":"finish"}`,
	}
	if len(frames) != len(want) {
		t.Fatalf("frames = %v", frames)
	}
	for i, frame := range frames {
		if frame != want[i] {
			t.Fatalf("frame[%d] = %q want %q", i, frame, want[i])
		}
	}
}

func TestStreamStopsAtTerminalEvent(t *testing.T) {
	sw, rec := newTestWriter(t)
	sw.Open("")

	events := make(chan Event, 3)
	events <- Error{Message: "upstream exploded"}
	events <- TextDelta{TextDelta: "never delivered"}
	close(events)

	if err := sw.Stream(context.Background(), events); err != nil {
		t.Fatalf("stream: %v", err)
	}
	body := rec.Body.String()
	if strings.Contains(body, "never delivered") {
		t.Fatalf("events after terminal leaked: %q", body)
	}
	if !strings.Contains(body, `"error":"upstream exploded"`) {
		t.Fatalf("terminal error missing: %q", body)
	}
}

func TestStreamSynthesizesMissingTerminator(t *testing.T) {
	sw, rec := newTestWriter(t)
	sw.Open("")

	events := make(chan Event, 1)
	events <- TextDelta{TextDelta: "partial"}
	close(events)

	if err := sw.Stream(context.Background(), events); err != nil {
		t.Fatalf("stream: %v", err)
	}
	frames := collectFrames(rec.Body.String())
	last := frames[len(frames)-1]
	if last != `data: {"type":"error","error":"stream ended without terminator"}` {
		t.Fatalf("last frame = %q", last)
	}
}

func TestStreamTimeoutWritesErrorFrame(t *testing.T) {
	sw, rec := newTestWriter(t, WithTimeout(30*time.Millisecond))
	sw.Open("")

	events := make(chan Event)
	go func() {
		events <- TextDelta{TextDelta: "tick"}
		// Stall past the deadline without closing.
		time.Sleep(200 * time.Millisecond)
		close(events)
	}()

	err := sw.Stream(context.Background(), events)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v want ErrTimeout", err)
	}
	frames := collectFrames(rec.Body.String())
	last := frames[len(frames)-1]
	if last != `data: {"type":"error","error":"stream timeout"}` {
		t.Fatalf("last frame = %q", last)
	}
}

func TestStreamDisconnectWritesNothingFurther(t *testing.T) {
	sw, rec := newTestWriter(t)
	sw.Open("")

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan Event, 1)
	events <- TextDelta{TextDelta: "before"}

	done := make(chan error, 1)
	go func() { done <- sw.Stream(ctx, events) }()

	// Let the first event drain, then simulate the client going away.
	deadline := time.After(time.Second)
	for rec.Body.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("first event never written")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v want context.Canceled", err)
	}
	body := rec.Body.String()
	if strings.Contains(body, "finish") || strings.Contains(body, "stream timeout") {
		t.Fatalf("terminal frame written after disconnect: %q", body)
	}
}

func TestNewWriterRequiresFlusher(t *testing.T) {
	if _, err := NewWriter(plainWriter{}); err == nil {
		t.Fatal("expected error for non-flushing writer")
	}
}

type plainWriter struct{}

func (plainWriter) Header() http.Header       { return http.Header{} }
func (plainWriter) Write([]byte) (int, error) { return 0, nil }
func (plainWriter) WriteHeader(int)           {}

func TestWriteTo(t *testing.T) {
	var sb strings.Builder
	err := WriteTo(&sb, []Event{TextDelta{TextDelta: "a"}, Finish{}})
	if err != nil {
		t.Fatalf("write to: %v", err)
	}
	want := "data: {\"type\":\"text-delta\",\"textDelta\":\"a\"}\n\ndata: {\"type\":\"finish\"}\n\n"
	if sb.String() != want {
		t.Fatalf("body = %q", sb.String())
	}
}
