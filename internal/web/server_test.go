package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/companion/internal/config"
	"github.com/kozaktomas/companion/internal/database"
	"github.com/kozaktomas/companion/internal/database/mock"
	"github.com/kozaktomas/companion/internal/detection"
	"github.com/kozaktomas/companion/internal/encounter"
	"github.com/kozaktomas/companion/internal/reminder"
	"github.com/kozaktomas/companion/internal/speech"
	"github.com/kozaktomas/companion/internal/web/handlers"
)

func newTestServer(t *testing.T) (*Server, *mock.Stores, *reminder.Scheduler) {
	t.Helper()
	stores := mock.Register()
	t.Cleanup(database.ResetForTesting)

	cfg := &config.Config{
		PatientID: "patient-1",
		Web:       config.WebConfig{Host: "127.0.0.1", Port: 0, AllowedOrigins: []string{"https://family.example"}},
		Reminders: config.ReminderConfig{LeadMinutes: 5, PollInterval: time.Hour},
	}

	notifier := speech.NewNotifier(context.Background(), speech.NewLogSynthesizer(nil, 0), speech.Options{
		OwnerID:  cfg.PatientID,
		Settings: stores.Settings,
	})
	t.Cleanup(notifier.Close)

	machine := encounter.NewMachine(encounter.Config{
		OwnerID:    cfg.PatientID,
		People:     stores.People,
		Encounters: stores.Encounters,
		Speaker:    notifier,
	})
	loop := detection.NewLoop(detection.Config{Handler: machine, Speaker: notifier})
	t.Cleanup(loop.Close)

	scheduler := reminder.NewScheduler(notifier, nil)
	t.Cleanup(scheduler.Stop)
	feed := reminder.NewTaskFeed(stores.Tasks, cfg.PatientID, scheduler, time.Hour, nil)

	events := handlers.NewEventBroadcaster()
	machine.OnDetection(events.PublishDetection)
	machine.OnError(events.PublishError)

	srv := NewServer(cfg, Dependencies{
		Detection: loop,
		Encounter: machine,
		Events:    events,
		Audio:     notifier,
		Reminders: scheduler,
		TaskFeed:  feed,
		Version:   "test",
	}, nil)
	return srv, stores, scheduler
}

func serve(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	srv.Router().ServeHTTP(recorder, req)
	return recorder
}

func TestServer_Routes(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{method: "GET", path: "/api/v1/health", wantStatus: http.StatusOK},
		{method: "GET", path: "/api/v1/detection", wantStatus: http.StatusOK},
		{method: "POST", path: "/api/v1/detection/save/request", wantStatus: http.StatusConflict},
		{method: "POST", path: "/api/v1/detection/save", body: `{"name":"Alice"}`, wantStatus: http.StatusConflict},
		{method: "DELETE", path: "/api/v1/detection/save", wantStatus: http.StatusOK},
		{method: "GET", path: "/api/v1/audio", wantStatus: http.StatusOK},
		{method: "GET", path: "/api/v1/reminders", wantStatus: http.StatusOK},
		{method: "GET", path: "/api/v1/people", wantStatus: http.StatusOK},
		{method: "POST", path: "/api/v1/people/enroll", wantStatus: http.StatusServiceUnavailable},
		{method: "GET", path: "/api/v1/people/nope", wantStatus: http.StatusNotFound},
		{method: "GET", path: "/api/v1/tasks", wantStatus: http.StatusOK},
		{method: "GET", path: "/api/v1/encounters", wantStatus: http.StatusOK},
		{method: "GET", path: "/metrics", wantStatus: http.StatusOK},
		{method: "GET", path: "/api/v1/unknown", wantStatus: http.StatusNotFound},
		{method: "PATCH", path: "/api/v1/tasks", wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			recorder := serve(srv, tt.method, tt.path, tt.body)
			if recorder.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d\nBody: %s", tt.wantStatus, recorder.Code, recorder.Body.String())
			}
		})
	}
}

func TestServer_AudioToggleIsPersisted(t *testing.T) {
	srv, stores, _ := newTestServer(t)

	recorder := serve(srv, "PUT", "/api/v1/audio", `{"enabled":false}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	value, ok, err := stores.Settings.GetSetting(context.Background(), "patient-1", database.SettingAudioEnabled)
	if err != nil || !ok || value != "false" {
		t.Errorf("expected persisted false, got %q (present=%v, err=%v)", value, ok, err)
	}
}

func TestServer_TaskChangesReachScheduler(t *testing.T) {
	srv, _, scheduler := newTestServer(t)

	recorder := serve(srv, "POST", "/api/v1/reminders/start", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	due := time.Now().Add(2 * time.Minute).UTC().Format(time.RFC3339)
	recorder = serve(srv, "POST", "/api/v1/tasks", `{"name":"tea","scheduled_time":"`+due+`"}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var task struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &task); err != nil {
		t.Fatalf("failed to parse task: %v", err)
	}

	recorder = serve(srv, "POST", "/api/v1/reminders/remind/"+task.ID, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if !scheduler.Running() {
		t.Error("expected scheduler to keep running")
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest("OPTIONS", "/api/v1/tasks", nil)
	req.Header.Set("Origin", "https://family.example")
	recorder := httptest.NewRecorder()
	srv.Router().ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Errorf("expected 200 for preflight, got %d", recorder.Code)
	}
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "https://family.example" {
		t.Errorf("unexpected allow origin %q", got)
	}
}
