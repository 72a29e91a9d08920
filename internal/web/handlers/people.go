package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/companion/internal/camera"
	"github.com/kozaktomas/companion/internal/constants"
	"github.com/kozaktomas/companion/internal/database"
	"github.com/kozaktomas/companion/internal/facematch"
)

// PeopleHandler handles the known-people registry
type PeopleHandler struct {
	ownerID  string
	detector camera.FaceDetector // optional, needed for enrollment from a photo
	logger   *zap.Logger
}

// NewPeopleHandler creates a new people handler
func NewPeopleHandler(ownerID string, detector camera.FaceDetector, logger *zap.Logger) *PeopleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeopleHandler{ownerID: ownerID, detector: detector, logger: logger}
}

type personResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	HasEmbedding bool   `json:"has_embedding"`
	PhotoRef     string `json:"photo_ref,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

func toPersonResponse(p *database.KnownPerson) personResponse {
	return personResponse{
		ID:           p.ID,
		Name:         p.Name,
		Relationship: p.Relationship,
		HasEmbedding: p.HasEmbedding(),
		PhotoRef:     p.PhotoRef,
		CreatedAt:    formatTime(p.CreatedAt),
		UpdatedAt:    formatTime(p.UpdatedAt),
	}
}

// getOwnedPerson loads a person by the {id} URL param. Responds 404 for
// missing people and people of another owner.
func (h *PeopleHandler) getOwnedPerson(w http.ResponseWriter, r *http.Request, pw database.PersonWriter) *database.KnownPerson {
	person, err := pw.GetPerson(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get person")
		return nil
	}
	if person == nil || person.OwnerID != h.ownerID {
		respondError(w, http.StatusNotFound, "person not found")
		return nil
	}
	return person
}

// List returns all known people in enrollment order.
func (h *PeopleHandler) List(w http.ResponseWriter, r *http.Request) {
	pw := getPersonWriter(r, w)
	if pw == nil {
		return
	}
	people, err := pw.ListPeople(r.Context(), h.ownerID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list people")
		return
	}

	result := make([]personResponse, len(people))
	for i := range people {
		result[i] = toPersonResponse(&people[i])
	}
	respondJSON(w, http.StatusOK, result)
}

type personRequest struct {
	Name         string    `json:"name" validate:"required,max=100"`
	Relationship string    `json:"relationship" validate:"max=100"`
	Embedding    []float32 `json:"embedding" validate:"omitempty,min=1"`
	PhotoRef     string    `json:"photo_ref"`
}

func (req *personRequest) normalize() (string, bool) {
	req.Name = strings.TrimSpace(req.Name)
	req.Relationship = strings.TrimSpace(req.Relationship)
	if req.Name == "" {
		return "name is a required field", false
	}
	if req.Embedding != nil {
		if err := facematch.ValidateEmbedding(req.Embedding); err != nil {
			return err.Error(), false
		}
	}
	return "", true
}

// Create adds a person, optionally with a precomputed face embedding.
func (h *PeopleHandler) Create(w http.ResponseWriter, r *http.Request) {
	pw := getPersonWriter(r, w)
	if pw == nil {
		return
	}
	var req personRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if msg, ok := req.normalize(); !ok {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	person := &database.KnownPerson{
		OwnerID:      h.ownerID,
		Name:         req.Name,
		Relationship: req.Relationship,
		Embedding:    req.Embedding,
		PhotoRef:     req.PhotoRef,
	}
	if err := pw.CreatePerson(r.Context(), person); err != nil {
		h.logger.Error("failed to create person", zap.String("name", sanitizeForLog(req.Name)), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create person")
		return
	}
	respondJSON(w, http.StatusCreated, toPersonResponse(person))
}

// Enroll adds a person from an uploaded photo. The most confident face in
// the photo becomes the person's embedding.
func (h *PeopleHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	if h.detector == nil {
		respondError(w, http.StatusServiceUnavailable, "face detector not available")
		return
	}
	pw := getPersonWriter(r, w)
	if pw == nil {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is a required field")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	image, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	faces, err := h.detector.Detect(r.Context(), image)
	if err != nil {
		h.logger.Error("face detection failed during enrollment", zap.Error(err))
		respondError(w, http.StatusBadGateway, "face detection failed")
		return
	}
	face, ok := camera.BestFace(faces)
	if !ok {
		respondError(w, http.StatusUnprocessableEntity, "no face found in photo")
		return
	}

	person := &database.KnownPerson{
		OwnerID:      h.ownerID,
		Name:         name,
		Relationship: strings.TrimSpace(r.FormValue("relationship")),
		Embedding:    face.Embedding,
		PhotoRef:     camera.DataURL(image),
	}
	if err := pw.CreatePerson(r.Context(), person); err != nil {
		h.logger.Error("failed to enroll person", zap.String("name", sanitizeForLog(name)), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create person")
		return
	}
	respondJSON(w, http.StatusCreated, toPersonResponse(person))
}

// Get returns one person.
func (h *PeopleHandler) Get(w http.ResponseWriter, r *http.Request) {
	pw := getPersonWriter(r, w)
	if pw == nil {
		return
	}
	person := h.getOwnedPerson(w, r, pw)
	if person == nil {
		return
	}
	respondJSON(w, http.StatusOK, toPersonResponse(person))
}

// Update replaces name and relationship. Embedding and photo are replaced
// only when given.
func (h *PeopleHandler) Update(w http.ResponseWriter, r *http.Request) {
	pw := getPersonWriter(r, w)
	if pw == nil {
		return
	}
	var req personRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if msg, ok := req.normalize(); !ok {
		respondError(w, http.StatusBadRequest, msg)
		return
	}
	person := h.getOwnedPerson(w, r, pw)
	if person == nil {
		return
	}

	person.Name = req.Name
	person.Relationship = req.Relationship
	if req.Embedding != nil {
		person.Embedding = req.Embedding
	}
	if req.PhotoRef != "" {
		person.PhotoRef = req.PhotoRef
	}
	if err := pw.UpdatePerson(r.Context(), person); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update person")
		return
	}
	respondJSON(w, http.StatusOK, toPersonResponse(person))
}

// Delete removes a person.
func (h *PeopleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	pw := getPersonWriter(r, w)
	if pw == nil {
		return
	}
	person := h.getOwnedPerson(w, r, pw)
	if person == nil {
		return
	}
	if err := pw.DeletePerson(r.Context(), person.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete person")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

type similarRequest struct {
	PersonID  string    `json:"person_id" validate:"required_without=Embedding"`
	Embedding []float32 `json:"embedding" validate:"omitempty,min=1"`
	Limit     int       `json:"limit" validate:"omitempty,min=1,max=50"`
}

type similarResult struct {
	Person     personResponse `json:"person"`
	Distance   float64        `json:"distance"`
	Confidence int            `json:"confidence"`
}

// Similar lists the known people nearest to a person or a raw embedding.
func (h *PeopleHandler) Similar(w http.ResponseWriter, r *http.Request) {
	pw := getPersonWriter(r, w)
	if pw == nil {
		return
	}
	var req similarRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	limit := req.Limit
	if limit == 0 {
		limit = constants.DefaultSimilarLimit
	}

	query := req.Embedding
	if req.PersonID != "" {
		person, err := pw.GetPerson(r.Context(), req.PersonID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to get person")
			return
		}
		if person == nil || person.OwnerID != h.ownerID {
			respondError(w, http.StatusNotFound, "person not found")
			return
		}
		if !person.HasEmbedding() {
			respondError(w, http.StatusBadRequest, "person has no face embedding")
			return
		}
		query = person.Embedding
	}

	people, err := pw.ListPeople(r.Context(), h.ownerID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list people")
		return
	}
	index := database.NewPersonIndex()
	index.Build(people)

	// One extra hit so the query person can be left out.
	hits, err := index.Search(query, limit+1)
	if err != nil && !errors.Is(err, database.ErrIndexEmpty) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	results := make([]similarResult, 0, limit)
	for i := range hits {
		if hits[i].Person.ID == req.PersonID || len(results) == limit {
			continue
		}
		results = append(results, similarResult{
			Person:     toPersonResponse(&hits[i].Person),
			Distance:   hits[i].Distance,
			Confidence: facematch.Confidence(hits[i].Distance),
		})
	}
	respondJSON(w, http.StatusOK, results)
}
