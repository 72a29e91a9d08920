package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/companion/internal/database"
)

// TasksHandler handles scheduled task endpoints
type TasksHandler struct {
	ownerID  string
	onChange func(ctx context.Context) // refreshes the reminder task list
	logger   *zap.Logger
}

// NewTasksHandler creates a new tasks handler. onChange, if set, runs after
// every successful mutation.
func NewTasksHandler(ownerID string, onChange func(ctx context.Context), logger *zap.Logger) *TasksHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TasksHandler{ownerID: ownerID, onChange: onChange, logger: logger}
}

type taskResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	ScheduledTime string  `json:"scheduled_time"`
	Location      string  `json:"location"`
	Status        string  `json:"status"`
	CompletedAt   *string `json:"completed_at,omitempty"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

func toTaskResponse(t *database.Task) taskResponse {
	resp := taskResponse{
		ID:            t.ID,
		Name:          t.Name,
		Description:   t.Description,
		ScheduledTime: formatTime(t.ScheduledTime),
		Location:      t.Location,
		Status:        string(t.Status),
		CreatedAt:     formatTime(t.CreatedAt),
		UpdatedAt:     formatTime(t.UpdatedAt),
	}
	if t.CompletedAt != nil {
		s := formatTime(*t.CompletedAt)
		resp.CompletedAt = &s
	}
	return resp
}

type taskRequest struct {
	Name          string    `json:"name" validate:"required,max=200"`
	Description   string    `json:"description" validate:"max=2000"`
	ScheduledTime time.Time `json:"scheduled_time" validate:"required"`
	Location      string    `json:"location" validate:"max=200"`
	Status        string    `json:"status" validate:"omitempty,oneof=pending completed skipped"`
}

func (h *TasksHandler) changed(ctx context.Context) {
	if h.onChange != nil {
		h.onChange(ctx)
	}
}

func (h *TasksHandler) getOwnedTask(w http.ResponseWriter, r *http.Request, tw database.TaskWriter) *database.Task {
	task, err := tw.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get task")
		return nil
	}
	if task == nil || task.OwnerID != h.ownerID {
		respondError(w, http.StatusNotFound, "task not found")
		return nil
	}
	return task
}

// List returns all tasks ordered by scheduled time.
func (h *TasksHandler) List(w http.ResponseWriter, r *http.Request) {
	tw := getTaskWriter(r, w)
	if tw == nil {
		return
	}
	tasks, err := tw.ListTasks(r.Context(), h.ownerID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	result := make([]taskResponse, len(tasks))
	for i := range tasks {
		result[i] = toTaskResponse(&tasks[i])
	}
	respondJSON(w, http.StatusOK, result)
}

// Create schedules a new task.
func (h *TasksHandler) Create(w http.ResponseWriter, r *http.Request) {
	tw := getTaskWriter(r, w)
	if tw == nil {
		return
	}
	var req taskRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is a required field")
		return
	}
	status, _ := database.ParseTaskStatus(req.Status)

	task := &database.Task{
		OwnerID:       h.ownerID,
		Name:          name,
		Description:   strings.TrimSpace(req.Description),
		ScheduledTime: req.ScheduledTime,
		Location:      strings.TrimSpace(req.Location),
		Status:        status,
	}
	if err := tw.CreateTask(r.Context(), task); err != nil {
		h.logger.Error("failed to create task", zap.String("name", sanitizeForLog(name)), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create task")
		return
	}
	h.changed(r.Context())
	respondJSON(w, http.StatusCreated, toTaskResponse(task))
}

// Get returns one task.
func (h *TasksHandler) Get(w http.ResponseWriter, r *http.Request) {
	tw := getTaskWriter(r, w)
	if tw == nil {
		return
	}
	task := h.getOwnedTask(w, r, tw)
	if task == nil {
		return
	}
	respondJSON(w, http.StatusOK, toTaskResponse(task))
}

// Update replaces a task. An omitted status keeps the current one.
func (h *TasksHandler) Update(w http.ResponseWriter, r *http.Request) {
	tw := getTaskWriter(r, w)
	if tw == nil {
		return
	}
	var req taskRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is a required field")
		return
	}
	task := h.getOwnedTask(w, r, tw)
	if task == nil {
		return
	}

	task.Name = name
	task.Description = strings.TrimSpace(req.Description)
	task.ScheduledTime = req.ScheduledTime
	task.Location = strings.TrimSpace(req.Location)
	if req.Status != "" {
		task.Status = database.TaskStatus(req.Status)
	}
	if err := tw.UpdateTask(r.Context(), task); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update task")
		return
	}
	h.changed(r.Context())
	respondJSON(w, http.StatusOK, toTaskResponse(task))
}

// Delete removes a task.
func (h *TasksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tw := getTaskWriter(r, w)
	if tw == nil {
		return
	}
	task := h.getOwnedTask(w, r, tw)
	if task == nil {
		return
	}
	if err := tw.DeleteTask(r.Context(), task.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}
	h.changed(r.Context())
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
