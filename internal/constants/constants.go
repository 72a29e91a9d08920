// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Face matching constants
const (
	// MatchDistanceThreshold is the maximum Euclidean distance (exclusive) for a known-person match.
	// Lower values = stricter matching
	MatchDistanceThreshold = 0.6

	// DefaultSimilarLimit is the default number of neighbours returned by a similar-people search
	DefaultSimilarLimit = 5
)

// Detection loop constants
const (
	// DetectionInterval is the default cadence of detection passes
	DetectionInterval = 2 * time.Second

	// NoFaceThreshold is the number of consecutive empty passes before the "no face" prompt
	NoFaceThreshold = 3

	// SavePromptDelay is how long an unknown face stays unsaved before the save prompt is spoken
	SavePromptDelay = 3 * time.Second

	// MaxImageSize is the maximum dimension (width or height) for images sent to the enrichment service
	MaxImageSize = 800
)

// Enrichment constants
const (
	// EnrichmentTimeout is the default bounded wait for the description service
	EnrichmentTimeout = 8 * time.Second

	// EnrichmentFallback is spoken when the description service fails or returns nothing
	EnrichmentFallback = "is nearby"
)

// Speech constants
const (
	// SpeechCooldown is the window in which identical text is not repeated
	SpeechCooldown = 5 * time.Second
)

// Reminder constants
const (
	// ReminderPollInterval is how often the scheduler wakes up
	ReminderPollInterval = 30 * time.Second

	// ReminderMinCheckInterval rate limits reminder evaluation regardless of poll frequency
	ReminderMinCheckInterval = 60 * time.Second

	// ReminderLeadMinutes is the default number of minutes before a task when the upcoming reminder fires
	ReminderLeadMinutes = 5

	// ReminderOverdueMinutes is how long after the scheduled time a task is still announced as due
	ReminderOverdueMinutes = 5

	// TaskRefreshInterval is how often the serve command reloads the task list from storage
	TaskRefreshInterval = 30 * time.Second
)

// Model loading constants
const (
	// DetectorConnectAttempts is the number of probes per embedding server before trying the next one
	DetectorConnectAttempts = 2

	// DetectorRetryDelay is the pause between detector connection attempts
	DetectorRetryDelay = time.Second
)
