// Package encounter decides what to say about a detected face and holds the
// capture of an unknown person until the patient saves or dismisses it.
package encounter

import (
	"errors"
	"time"
)

var (
	// ErrNoPendingCapture is returned when there is no unknown face to save.
	ErrNoPendingCapture = errors.New("no unknown face to save")
	// ErrNameRequired is returned when a save is confirmed without a name.
	ErrNameRequired = errors.New("name is required")
	// ErrSaveInProgress is returned while a confirmed save is being persisted.
	ErrSaveInProgress = errors.New("a save is already in progress")
	// ErrPassSuperseded is returned by HandleFace when Reset or a newer pass
	// made its result stale. Nothing was announced.
	ErrPassSuperseded = errors.New("detection pass superseded")
)

// State of the encounter machine.
type State int

const (
	Scanning State = iota
	DetectedKnown
	DetectedUnknown
	SaveCandidate
)

func (s State) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case DetectedKnown:
		return "detected_known"
	case DetectedUnknown:
		return "detected_unknown"
	case SaveCandidate:
		return "save_candidate"
	default:
		return "unknown"
	}
}

// MarshalText lets State appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PendingCapture is the snapshot and embedding of the last unknown face.
type PendingCapture struct {
	Image      []byte
	Embedding  []float32
	CapturedAt time.Time
}

// DetectionResult is emitted to listeners once per pass with a face.
type DetectionResult struct {
	IsKnown    bool      `json:"is_known"`
	Name       string    `json:"name,omitempty"`
	PersonID   string    `json:"person_id,omitempty"`
	Confidence int       `json:"confidence"`
	Enrichment string    `json:"enrichment"`
	DetectedAt time.Time `json:"detected_at"`
}

// Phrases spoken by the machine.
const (
	knownPrefix      = "This is %s."
	unknownPrefix    = "You are meeting someone new."
	savePromptPhrase = "Would you like to save this person? Tap the Save This Person button."
	savedPhrase      = "I will remember %s from now on."
)
