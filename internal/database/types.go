package database

import (
	"fmt"
	"time"
)

// KnownPerson is a person the patient should recognize.
type KnownPerson struct {
	ID           string
	OwnerID      string
	Name         string
	Relationship string
	Embedding    []float32 // nil when the person was added without a face
	PhotoRef     string    // data URL or path of the enrollment snapshot
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasEmbedding reports whether the person can take part in matching.
func (p *KnownPerson) HasEmbedding() bool {
	return len(p.Embedding) > 0
}

// TaskStatus is the lifecycle state of a scheduled task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
	TaskSkipped   TaskStatus = "skipped"
)

// ParseTaskStatus validates a status string. Empty input means pending.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch TaskStatus(s) {
	case "", TaskPending:
		return TaskPending, nil
	case TaskCompleted, TaskSkipped:
		return TaskStatus(s), nil
	default:
		return "", fmt.Errorf("invalid task status %q", s)
	}
}

// Task is a scheduled activity the patient gets reminded about.
type Task struct {
	ID            string
	OwnerID       string
	Name          string
	Description   string
	ScheduledTime time.Time
	Location      string
	Status        TaskStatus
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsPending reports whether the task still waits to be done.
func (t *Task) IsPending() bool {
	return t.Status == TaskPending
}

// EncounterAction describes what happened when a face was evaluated.
type EncounterAction string

const (
	EncounterDetected  EncounterAction = "detected"
	EncounterSaved     EncounterAction = "saved"
	EncounterDismissed EncounterAction = "dismissed"
)

// Encounter is one entry of the append-only encounter log.
type Encounter struct {
	ID            string
	OwnerID       string
	EncounteredAt time.Time
	Action        EncounterAction
	SavedAsKnown  bool
	PersonID      string // set when the encounter ended in a saved person
	Notes         string
}

// Setting keys used with SettingsStore.
const (
	SettingAudioEnabled = "audio_enabled"
)
