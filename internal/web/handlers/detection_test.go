package handlers

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/kozaktomas/companion/internal/camera"
	"github.com/kozaktomas/companion/internal/database"
	"github.com/kozaktomas/companion/internal/detection"
	"github.com/kozaktomas/companion/internal/encounter"
)

type fakeLoop struct {
	mu          sync.Mutex
	active      bool
	activateErr error
	activations int
}

func (f *fakeLoop) Activate(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activations++
	if f.activateErr != nil {
		return f.activateErr
	}
	f.active = true
	return nil
}

func (f *fakeLoop) Deactivate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = false
}

func (f *fakeLoop) Status() detection.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return detection.Status{Active: f.active, State: encounter.Scanning.String()}
}

type fakeSaver struct {
	state      encounter.State
	pending    *encounter.PendingCapture
	requestErr error
	confirmErr error
	cancelErr  error
	confirmed  []string
}

func (f *fakeSaver) State() encounter.State { return f.state }

func (f *fakeSaver) Pending() *encounter.PendingCapture { return f.pending }

func (f *fakeSaver) RequestSave() error {
	if f.requestErr != nil {
		return f.requestErr
	}
	f.state = encounter.SaveCandidate
	return nil
}

func (f *fakeSaver) ConfirmSave(ctx context.Context, name, relationship string) (*database.KnownPerson, error) {
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	f.confirmed = append(f.confirmed, name+"/"+relationship)
	f.state = encounter.Scanning
	f.pending = nil
	return &database.KnownPerson{ID: "p-new", OwnerID: testOwner, Name: name, Relationship: relationship, Embedding: []float32{1, 2}}, nil
}

func (f *fakeSaver) CancelSave() error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.state = encounter.Scanning
	f.pending = nil
	return nil
}

func newDetectionHandler() (*fakeLoop, *fakeSaver, *EventBroadcaster, *DetectionHandler) {
	loop := &fakeLoop{}
	saver := &fakeSaver{}
	events := NewEventBroadcaster()
	return loop, saver, events, NewDetectionHandler(loop, saver, events, nil)
}

func TestDetectionHandler_StartStop(t *testing.T) {
	loop, _, events, handler := newDetectionHandler()
	ch := events.AddListener()
	defer events.RemoveListener(ch)

	recorder := httptest.NewRecorder()
	handler.Start(recorder, httptest.NewRequest("POST", "/api/v1/detection/start", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp detectionStatusResponse
	parseJSONResponse(t, recorder, &resp)
	if !resp.Active {
		t.Error("expected active loop after start")
	}
	if event := <-ch; event.Type != "state" {
		t.Errorf("expected state event, got %s", event.Type)
	}

	recorder = httptest.NewRecorder()
	handler.Stop(recorder, httptest.NewRequest("POST", "/api/v1/detection/stop", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	parseJSONResponse(t, recorder, &resp)
	if resp.Active {
		t.Error("expected inactive loop after stop")
	}
	if loop.activations != 1 {
		t.Errorf("expected 1 activation, got %d", loop.activations)
	}
}

func TestDetectionHandler_StartErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "camera", err: fmt.Errorf("activating detection: %w", camera.ErrCameraUnavailable), wantStatus: http.StatusServiceUnavailable},
		{name: "model", err: camera.ErrModelUnavailable, wantStatus: http.StatusServiceUnavailable},
		{name: "stopped while starting", err: detection.ErrActivationCanceled, wantStatus: http.StatusConflict},
		{name: "other", err: errMock, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loop, _, _, handler := newDetectionHandler()
			loop.activateErr = tt.err

			recorder := httptest.NewRecorder()
			handler.Start(recorder, httptest.NewRequest("POST", "/api/v1/detection/start", nil))

			assertStatusCode(t, recorder, tt.wantStatus)
		})
	}
}

func TestDetectionHandler_Status(t *testing.T) {
	_, saver, _, handler := newDetectionHandler()
	saver.pending = &encounter.PendingCapture{Embedding: []float32{1}}

	recorder := httptest.NewRecorder()
	handler.Status(recorder, httptest.NewRequest("GET", "/api/v1/detection", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp map[string]any
	parseJSONResponse(t, recorder, &resp)
	if resp["has_pending"] != true {
		t.Errorf("expected has_pending=true, got %v", resp["has_pending"])
	}
	if resp["state"] != "scanning" {
		t.Errorf("expected scanning state, got %v", resp["state"])
	}
}

func TestDetectionHandler_RequestSave(t *testing.T) {
	_, saver, _, handler := newDetectionHandler()

	recorder := httptest.NewRecorder()
	handler.RequestSave(recorder, httptest.NewRequest("POST", "/api/v1/detection/save/request", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp map[string]string
	parseJSONResponse(t, recorder, &resp)
	if resp["state"] != "save_candidate" {
		t.Errorf("expected save_candidate, got %s", resp["state"])
	}

	saver.requestErr = encounter.ErrNoPendingCapture
	recorder = httptest.NewRecorder()
	handler.RequestSave(recorder, httptest.NewRequest("POST", "/api/v1/detection/save/request", nil))

	assertStatusCode(t, recorder, http.StatusConflict)
	assertJSONError(t, recorder, encounter.ErrNoPendingCapture.Error())
}

func TestDetectionHandler_ConfirmSave_Success(t *testing.T) {
	_, saver, _, handler := newDetectionHandler()

	req := jsonRequest(t, "POST", "/api/v1/detection/save", map[string]string{"name": "Alice", "relationship": "daughter"})
	recorder := httptest.NewRecorder()
	handler.ConfirmSave(recorder, req)

	assertStatusCode(t, recorder, http.StatusCreated)
	var resp personResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.ID != "p-new" || resp.Name != "Alice" || !resp.HasEmbedding {
		t.Errorf("unexpected person: %+v", resp)
	}
	if len(saver.confirmed) != 1 || saver.confirmed[0] != "Alice/daughter" {
		t.Errorf("unexpected confirm calls: %v", saver.confirmed)
	}
}

func TestDetectionHandler_ConfirmSave_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]string
		err        error
		wantStatus int
		wantError  string
	}{
		{name: "missing name", body: map[string]string{"relationship": "friend"}, wantStatus: http.StatusBadRequest, wantError: "name is a required field"},
		{name: "blank name", body: map[string]string{"name": "  "}, err: encounter.ErrNameRequired, wantStatus: http.StatusBadRequest, wantError: "name is required"},
		{name: "nothing pending", body: map[string]string{"name": "Bob"}, err: encounter.ErrNoPendingCapture, wantStatus: http.StatusConflict, wantError: encounter.ErrNoPendingCapture.Error()},
		{name: "in progress", body: map[string]string{"name": "Bob"}, err: encounter.ErrSaveInProgress, wantStatus: http.StatusConflict, wantError: encounter.ErrSaveInProgress.Error()},
		{name: "storage", body: map[string]string{"name": "Bob"}, err: fmt.Errorf("saving person: %w", errMock), wantStatus: http.StatusInternalServerError, wantError: "failed to save person"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, saver, _, handler := newDetectionHandler()
			saver.confirmErr = tt.err

			recorder := httptest.NewRecorder()
			handler.ConfirmSave(recorder, jsonRequest(t, "POST", "/api/v1/detection/save", tt.body))

			assertStatusCode(t, recorder, tt.wantStatus)
			assertJSONError(t, recorder, tt.wantError)
		})
	}
}

func TestDetectionHandler_CancelSave(t *testing.T) {
	_, saver, _, handler := newDetectionHandler()
	saver.state = encounter.SaveCandidate
	saver.pending = &encounter.PendingCapture{}

	recorder := httptest.NewRecorder()
	handler.CancelSave(recorder, httptest.NewRequest("DELETE", "/api/v1/detection/save", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	if saver.pending != nil {
		t.Error("expected pending capture to be dropped")
	}

	saver.cancelErr = encounter.ErrSaveInProgress
	recorder = httptest.NewRecorder()
	handler.CancelSave(recorder, httptest.NewRequest("DELETE", "/api/v1/detection/save", nil))
	assertStatusCode(t, recorder, http.StatusConflict)
}

func TestDetectionHandler_Events(t *testing.T) {
	_, _, events, handler := newDetectionHandler()
	srv := httptest.NewServer(http.HandlerFunc(handler.Events))
	defer srv.Close()

	req, err := http.NewRequestWithContext(withTimeout(t), http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %s", ct)
	}

	reader := bufio.NewReader(resp.Body)
	eventType, data := readSSEEvent(t, reader)
	if eventType != "status" || !strings.Contains(data, `"active":false`) {
		t.Errorf("unexpected initial event %s: %s", eventType, data)
	}

	events.PublishDetection(encounter.DetectionResult{IsKnown: true, Name: "Alice", Confidence: 91})

	eventType, data = readSSEEvent(t, reader)
	if eventType != "detection" {
		t.Errorf("expected detection event, got %s", eventType)
	}
	if !strings.Contains(data, `"name":"Alice"`) || !strings.Contains(data, `"confidence":91`) {
		t.Errorf("unexpected detection payload: %s", data)
	}
}
