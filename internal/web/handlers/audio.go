package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// AudioController is the part of the speech notifier exposed over HTTP.
type AudioController interface {
	Enabled() bool
	IsSpeaking() bool
	SetEnabled(ctx context.Context, enabled bool) error
}

// AudioHandler handles the audio toggle
type AudioHandler struct {
	audio  AudioController
	logger *zap.Logger
}

// NewAudioHandler creates a new audio handler
func NewAudioHandler(audio AudioController, logger *zap.Logger) *AudioHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AudioHandler{audio: audio, logger: logger}
}

type audioResponse struct {
	Enabled  bool `json:"enabled"`
	Speaking bool `json:"speaking"`
}

// Get returns whether voice output is enabled.
func (h *AudioHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, audioResponse{
		Enabled:  h.audio.Enabled(),
		Speaking: h.audio.IsSpeaking(),
	})
}

type audioRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// Put enables or disables voice output. Disabling silences the current utterance.
// The new value applies even when it cannot be persisted.
func (h *AudioHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req audioRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	if err := h.audio.SetEnabled(r.Context(), *req.Enabled); err != nil {
		h.logger.Warn("audio preference not persisted", zap.Bool("enabled", *req.Enabled), zap.Error(err))
	}
	respondJSON(w, http.StatusOK, audioResponse{
		Enabled:  h.audio.Enabled(),
		Speaking: h.audio.IsSpeaking(),
	})
}
