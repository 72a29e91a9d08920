package handlers

import (
	"context"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/companion/internal/database"
	"github.com/kozaktomas/companion/internal/reminder"
)

// ReminderController is the part of the reminder scheduler exposed over HTTP.
type ReminderController interface {
	Start(tasks []database.Task, opts reminder.Options)
	Stop()
	Running() bool
	RemindNow(task database.Task) bool
	Reset()
	Memo() []string
}

// TaskRefresher reloads the scheduler's task list from storage.
type TaskRefresher interface {
	Refresh(ctx context.Context) ([]database.Task, error)
}

// RemindersHandler handles reminder scheduler endpoints
type RemindersHandler struct {
	scheduler ReminderController
	feed      TaskRefresher
	defaults  reminder.Options
	logger    *zap.Logger
}

// NewRemindersHandler creates a new reminders handler. defaults are used by
// Start for fields the request leaves out.
func NewRemindersHandler(scheduler ReminderController, feed TaskRefresher, defaults reminder.Options, logger *zap.Logger) *RemindersHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemindersHandler{scheduler: scheduler, feed: feed, defaults: defaults, logger: logger}
}

type remindersStatusResponse struct {
	Running  bool     `json:"running"`
	Reminded []string `json:"reminded"`
}

func (h *RemindersHandler) status() remindersStatusResponse {
	memo := h.scheduler.Memo()
	sort.Strings(memo)
	return remindersStatusResponse{Running: h.scheduler.Running(), Reminded: memo}
}

// Status reports whether reminders run and which tasks were already announced.
func (h *RemindersHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.status())
}

type startRemindersRequest struct {
	LeadMinutes int   `json:"lead_minutes" validate:"omitempty,min=1,max=120"`
	Enabled     *bool `json:"enabled"`
}

// Start loads the current tasks and starts the scheduler. The body is optional.
func (h *RemindersHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRemindersRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	tasks, err := h.feed.Refresh(r.Context())
	if err != nil {
		h.logger.Error("failed to load tasks for reminders", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load tasks")
		return
	}

	opts := h.defaults
	if req.LeadMinutes > 0 {
		opts.LeadMinutes = req.LeadMinutes
	}
	if req.Enabled != nil {
		opts.Enabled = *req.Enabled
	}
	h.scheduler.Start(tasks, opts)
	respondJSON(w, http.StatusOK, h.status())
}

// Stop halts the scheduler. Already reminded tasks stay reminded.
func (h *RemindersHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Stop()
	respondJSON(w, http.StatusOK, h.status())
}

// RemindNow speaks the reminder of one task immediately.
func (h *RemindersHandler) RemindNow(w http.ResponseWriter, r *http.Request) {
	tw := getTaskWriter(r, w)
	if tw == nil {
		return
	}
	id := chi.URLParam(r, "id")
	task, err := tw.GetTask(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get task")
		return
	}
	if task == nil {
		respondError(w, http.StatusNotFound, "task not found")
		return
	}

	spoken := h.scheduler.RemindNow(*task)
	respondJSON(w, http.StatusOK, map[string]bool{"spoken": spoken})
}

// Reset forgets which tasks were reminded so they can be announced again.
func (h *RemindersHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Reset()
	respondJSON(w, http.StatusOK, h.status())
}
