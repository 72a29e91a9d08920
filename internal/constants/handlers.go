// Package constants provides shared constants used across the codebase.
package constants

// Handler constants
const (
	// DefaultEncounterLimit is the default number of encounters returned by the history endpoint
	DefaultEncounterLimit = 50

	// MaxEncounterLimit caps the encounter history page size
	MaxEncounterLimit = 500

	// MaxUploadSize is the maximum accepted size of an uploaded image
	MaxUploadSize = 10 << 20
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)
