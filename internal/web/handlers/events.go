package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/kozaktomas/companion/internal/constants"
	"github.com/kozaktomas/companion/internal/encounter"
)

// Event is one message pushed to detection event subscribers.
type Event struct {
	Type    string `json:"type"` // detection, error, state
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster fans detection events out to SSE listeners.
type EventBroadcaster struct {
	mu        sync.RWMutex
	listeners []chan Event
}

// NewEventBroadcaster creates a broadcaster without listeners.
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{}
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// ListenerCount returns the number of connected listeners.
func (b *EventBroadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// PublishDetection is registered as an encounter.Machine detection listener.
func (b *EventBroadcaster) PublishDetection(result encounter.DetectionResult) {
	b.SendEvent(Event{Type: "detection", Data: result})
}

// PublishError is registered as an encounter.Machine error listener.
func (b *EventBroadcaster) PublishError(err error) {
	b.SendEvent(Event{Type: "error", Message: err.Error()})
}

// setupSSEConnection sets the event-stream headers. On failure it writes an
// error response and returns false.
func setupSSEConnection(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return flusher, true
}

// sendSSEEvent writes one server-sent event and flushes it.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}
