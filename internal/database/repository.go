package database

import (
	"context"
)

// PersonReader provides read-only access to the known-people registry
type PersonReader interface {
	// GetPerson retrieves a person by ID, returns nil if not found
	GetPerson(ctx context.Context, id string) (*KnownPerson, error)
	// ListPeople returns all people of an owner in enrollment order.
	// The order is significant: the matcher breaks distance ties by it.
	ListPeople(ctx context.Context, ownerID string) ([]KnownPerson, error)
	// FindPeopleByName returns people whose normalized name equals the normalized input
	// (lowercase, no diacritics, dashes to spaces).
	FindPeopleByName(ctx context.Context, ownerID, name string) ([]KnownPerson, error)
}

// PersonWriter provides write access to the known-people registry
type PersonWriter interface {
	PersonReader

	// CreatePerson stores a new person, assigning ID and timestamps when empty
	CreatePerson(ctx context.Context, person *KnownPerson) error
	// UpdatePerson replaces name, relationship, embedding and photo of an existing person
	UpdatePerson(ctx context.Context, person *KnownPerson) error
	// DeletePerson removes a person; deleting a missing person is not an error
	DeletePerson(ctx context.Context, id string) error
}

// TaskReader provides read-only access to scheduled tasks
type TaskReader interface {
	// GetTask retrieves a task by ID, returns nil if not found
	GetTask(ctx context.Context, id string) (*Task, error)
	// ListTasks returns all tasks of an owner ordered by scheduled time
	ListTasks(ctx context.Context, ownerID string) ([]Task, error)
}

// TaskWriter provides write access to scheduled tasks
type TaskWriter interface {
	TaskReader

	CreateTask(ctx context.Context, task *Task) error
	// UpdateTask replaces the mutable fields of a task. Moving a task out of
	// pending sets CompletedAt, moving it back clears it.
	UpdateTask(ctx context.Context, task *Task) error
	DeleteTask(ctx context.Context, id string) error
}

// EncounterReader provides read access to the encounter log
type EncounterReader interface {
	// ListEncounters returns the newest encounters first, at most limit entries
	ListEncounters(ctx context.Context, ownerID string, limit int) ([]Encounter, error)
}

// EncounterWriter appends to the encounter log
type EncounterWriter interface {
	EncounterReader

	LogEncounter(ctx context.Context, encounter *Encounter) error
}

// SettingsStore keeps small per-owner preferences that survive restarts
type SettingsStore interface {
	// GetSetting returns the stored value and whether it was present
	GetSetting(ctx context.Context, ownerID, key string) (string, bool, error)
	SetSetting(ctx context.Context, ownerID, key, value string) error
}
