package handlers

import (
	"net/http"
	"strconv"

	"github.com/kozaktomas/companion/internal/constants"
	"github.com/kozaktomas/companion/internal/database"
)

// EncountersHandler serves the encounter log
type EncountersHandler struct {
	ownerID string
}

// NewEncountersHandler creates a new encounters handler
func NewEncountersHandler(ownerID string) *EncountersHandler {
	return &EncountersHandler{ownerID: ownerID}
}

type encounterResponse struct {
	ID            string `json:"id"`
	EncounteredAt string `json:"encountered_at"`
	Action        string `json:"action"`
	SavedAsKnown  bool   `json:"saved_as_known"`
	PersonID      string `json:"person_id,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

func toEncounterResponse(e *database.Encounter) encounterResponse {
	return encounterResponse{
		ID:            e.ID,
		EncounteredAt: formatTime(e.EncounteredAt),
		Action:        string(e.Action),
		SavedAsKnown:  e.SavedAsKnown,
		PersonID:      e.PersonID,
		Notes:         e.Notes,
	}
}

// List returns the newest encounters first. ?limit defaults to 50, capped at 500.
func (h *EncountersHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := constants.DefaultEncounterLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, constants.MaxEncounterLimit)
	}

	ew := getEncounterWriter(r, w)
	if ew == nil {
		return
	}
	encounters, err := ew.ListEncounters(r.Context(), h.ownerID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list encounters")
		return
	}

	result := make([]encounterResponse, len(encounters))
	for i := range encounters {
		result[i] = toEncounterResponse(&encounters[i])
	}
	respondJSON(w, http.StatusOK, result)
}
