package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kozaktomas/companion/internal/database"
	"github.com/kozaktomas/companion/internal/detection"
	"github.com/kozaktomas/companion/internal/encounter"
)

// DetectionController starts and stops the detection loop.
type DetectionController interface {
	Activate(ctx context.Context) error
	Deactivate()
	Status() detection.Status
}

// SaveController drives the save-new-person flow of the encounter machine.
type SaveController interface {
	State() encounter.State
	Pending() *encounter.PendingCapture
	RequestSave() error
	ConfirmSave(ctx context.Context, name, relationship string) (*database.KnownPerson, error)
	CancelSave() error
}

// DetectionHandler handles detection loop and save flow endpoints
type DetectionHandler struct {
	loop    DetectionController
	machine SaveController
	events  *EventBroadcaster
	logger  *zap.Logger
}

// NewDetectionHandler creates a new detection handler
func NewDetectionHandler(loop DetectionController, machine SaveController, events *EventBroadcaster, logger *zap.Logger) *DetectionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetectionHandler{loop: loop, machine: machine, events: events, logger: logger}
}

type detectionStatusResponse struct {
	detection.Status
	HasPending bool `json:"has_pending"`
}

func (h *DetectionHandler) status() detectionStatusResponse {
	return detectionStatusResponse{
		Status:     h.loop.Status(),
		HasPending: h.machine.Pending() != nil,
	}
}

// Start activates the detection loop. Camera, model or speech failures end
// the session before it starts and are reported as 503. A stop request that
// lands while the detector loads is reported as 409.
func (h *DetectionHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.loop.Activate(r.Context()); err != nil {
		if errors.Is(err, detection.ErrActivationCanceled) {
			respondError(w, http.StatusConflict, "detection was stopped while starting")
			return
		}
		h.logger.Error("detection activation failed", zap.Error(err))
		if detection.IsSessionFatal(err) {
			respondError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to start detection")
		return
	}
	st := h.status()
	h.events.SendEvent(Event{Type: "state", Data: st})
	respondJSON(w, http.StatusOK, st)
}

// Stop deactivates the detection loop.
func (h *DetectionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.loop.Deactivate()
	st := h.status()
	h.events.SendEvent(Event{Type: "state", Data: st})
	respondJSON(w, http.StatusOK, st)
}

// Status returns the loop and encounter state.
func (h *DetectionHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.status())
}

// Events streams detection results as server-sent events until the client disconnects.
func (h *DetectionHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := setupSSEConnection(w)
	if !ok {
		return
	}

	eventCh := h.events.AddListener()
	defer h.events.RemoveListener(eventCh)

	sendSSEEvent(w, flusher, "status", h.status())

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
		}
	}
}

// RequestSave holds the current unknown face as a save candidate.
func (h *DetectionHandler) RequestSave(w http.ResponseWriter, r *http.Request) {
	if err := h.machine.RequestSave(); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"state": h.machine.State().String()})
}

type confirmSaveRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	Relationship string `json:"relationship" validate:"max=100"`
}

// ConfirmSave stores the held face as a new known person.
func (h *DetectionHandler) ConfirmSave(w http.ResponseWriter, r *http.Request) {
	var req confirmSaveRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	person, err := h.machine.ConfirmSave(r.Context(), req.Name, req.Relationship)
	switch {
	case errors.Is(err, encounter.ErrNameRequired):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, encounter.ErrNoPendingCapture), errors.Is(err, encounter.ErrSaveInProgress):
		respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.logger.Error("confirm save failed", zap.String("name", sanitizeForLog(req.Name)), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to save person")
		return
	}

	respondJSON(w, http.StatusCreated, toPersonResponse(person))
}

// CancelSave drops the held face.
func (h *DetectionHandler) CancelSave(w http.ResponseWriter, r *http.Request) {
	if err := h.machine.CancelSave(); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"state": h.machine.State().String()})
}
