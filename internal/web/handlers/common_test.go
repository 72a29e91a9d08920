package handlers

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/companion/internal/encounter"
)

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("Alice\r\nINFO forged"); got != "AliceINFO forged" {
		t.Errorf("unexpected sanitized value: %q", got)
	}
}

func TestRespondError(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondError(recorder, http.StatusTeapot, "short and stout")

	assertStatusCode(t, recorder, http.StatusTeapot)
	assertContentType(t, recorder, "application/json")
	assertJSONError(t, recorder, "short and stout")
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		allowEmpty bool
		wantOK     bool
		wantError  string
	}{
		{name: "valid", body: `{"name":"Alice","scheduled_time":"2026-03-01T10:00:00Z"}`, wantOK: true},
		{name: "malformed", body: `{"name":`, wantError: errInvalidRequestBody},
		{name: "unknown field", body: `{"name":"Alice","scheduled_time":"2026-03-01T10:00:00Z","color":"red"}`, wantError: errInvalidRequestBody},
		{name: "empty body", body: "", wantError: errInvalidRequestBody},
		{name: "missing name", body: `{"scheduled_time":"2026-03-01T10:00:00Z"}`, wantError: "name is a required field"},
		{name: "missing time", body: `{"name":"Alice"}`, wantError: "scheduled_time is a required field"},
		{name: "bad status", body: `{"name":"Alice","scheduled_time":"2026-03-01T10:00:00Z","status":"done"}`, wantError: "status must be one of [pending completed skipped]"},
		{name: "too long", body: `{"name":"` + strings.Repeat("a", 201) + `","scheduled_time":"2026-03-01T10:00:00Z"}`, wantError: "name must be at most 200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", strings.NewReader(tt.body))
			recorder := httptest.NewRecorder()

			var dst taskRequest
			ok := decodeJSON(recorder, req, &dst, tt.allowEmpty)

			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v (body: %s)", tt.wantOK, ok, recorder.Body.String())
			}
			if !ok {
				assertStatusCode(t, recorder, http.StatusBadRequest)
				assertJSONError(t, recorder, tt.wantError)
			}
		})
	}
}

func TestDecodeJSON_AllowEmpty(t *testing.T) {
	req := httptest.NewRequest("POST", "/", http.NoBody)
	recorder := httptest.NewRecorder()

	var dst startRemindersRequest
	if !decodeJSON(recorder, req, &dst, true) {
		t.Fatalf("expected empty body to be accepted, got %s", recorder.Body.String())
	}
	if dst.LeadMinutes != 0 || dst.Enabled != nil {
		t.Errorf("expected zero value, got %+v", dst)
	}
}

func TestDecodeJSON_MinMessage(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"lead_minutes":-2}`))
	recorder := httptest.NewRecorder()

	var dst startRemindersRequest
	if decodeJSON(recorder, req, &dst, true) {
		t.Fatal("expected validation failure")
	}
	assertJSONError(t, recorder, "lead_minutes must be at least 1")
}

func TestEventBroadcaster(t *testing.T) {
	b := NewEventBroadcaster()
	ch := b.AddListener()

	b.PublishDetection(encounter.DetectionResult{IsKnown: true, Name: "Alice"})

	event := <-ch
	if event.Type != "detection" {
		t.Errorf("expected detection event, got %s", event.Type)
	}
	result, ok := event.Data.(encounter.DetectionResult)
	if !ok || result.Name != "Alice" {
		t.Errorf("unexpected event data: %#v", event.Data)
	}

	b.RemoveListener(ch)
	if _, open := <-ch; open {
		t.Error("expected channel to be closed after RemoveListener")
	}
	if b.ListenerCount() != 0 {
		t.Errorf("expected no listeners, got %d", b.ListenerCount())
	}

	// Sending without listeners must not block.
	b.SendEvent(Event{Type: "state"})
}

func TestEventBroadcaster_FullBufferDoesNotBlock(t *testing.T) {
	b := NewEventBroadcaster()
	ch := b.AddListener()
	defer b.RemoveListener(ch)

	done := make(chan struct{})
	go func() {
		for range cap(ch) + 10 {
			b.SendEvent(Event{Type: "detection"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SendEvent blocked on a full listener")
	}
	if len(ch) != cap(ch) {
		t.Errorf("expected a full buffer, got %d of %d", len(ch), cap(ch))
	}
}

func TestSendSSEEvent(t *testing.T) {
	recorder := httptest.NewRecorder()

	sendSSEEvent(recorder, recorder, "detection", map[string]string{"name": "Alice"})

	want := "event: detection\ndata: {\"name\":\"Alice\"}\n\n"
	if recorder.Body.String() != want {
		t.Errorf("unexpected SSE frame: %q", recorder.Body.String())
	}
	if !recorder.Flushed {
		t.Error("expected the event to be flushed")
	}
}

// readSSEEvent reads lines until one complete event has been received.
func readSSEEvent(t *testing.T, reader *bufio.Reader) (string, string) {
	t.Helper()
	var eventType, data string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("failed to read SSE stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && eventType != "":
			return eventType, data
		}
	}
}

func withTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
