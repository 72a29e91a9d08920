// Package mock provides in-memory implementations of database interfaces for testing
// and for running the companion without PostgreSQL (--memory).
package mock

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/companion/internal/database"
	"github.com/kozaktomas/companion/internal/facematch"
)

// MockPersonStore is a mock implementation of database.PersonWriter
type MockPersonStore struct {
	mu     sync.RWMutex
	people []database.KnownPerson // enrollment order

	// Error injection
	GetError    error
	ListError   error
	FindError   error
	CreateError error
	UpdateError error
	DeleteError error
}

// NewMockPersonStore creates a new mock person store
func NewMockPersonStore() *MockPersonStore {
	return &MockPersonStore{}
}

// AddPerson adds a person to the mock store as-is
func (m *MockPersonStore) AddPerson(p database.KnownPerson) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.people = append(m.people, p)
}

// GetPerson retrieves a person by ID
func (m *MockPersonStore) GetPerson(ctx context.Context, id string) (*database.KnownPerson, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.people {
		if m.people[i].ID == id {
			p := m.people[i]
			return &p, nil
		}
	}
	return nil, nil
}

// ListPeople returns people of an owner in enrollment order
func (m *MockPersonStore) ListPeople(ctx context.Context, ownerID string) ([]database.KnownPerson, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.KnownPerson
	for _, p := range m.people {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	return out, nil
}

// FindPeopleByName returns people whose normalized name matches
func (m *MockPersonStore) FindPeopleByName(ctx context.Context, ownerID, name string) ([]database.KnownPerson, error) {
	if m.FindError != nil {
		return nil, m.FindError
	}
	want := facematch.NormalizePersonName(name)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.KnownPerson
	for _, p := range m.people {
		if p.OwnerID == ownerID && facematch.NormalizePersonName(p.Name) == want {
			out = append(out, p)
		}
	}
	return out, nil
}

// CreatePerson stores a new person
func (m *MockPersonStore) CreatePerson(ctx context.Context, p *database.KnownPerson) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	now := time.Now()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	m.mu.Lock()
	defer m.mu.Unlock()
	m.people = append(m.people, *p)
	return nil
}

// UpdatePerson replaces a stored person
func (m *MockPersonStore) UpdatePerson(ctx context.Context, p *database.KnownPerson) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.people {
		if m.people[i].ID == p.ID {
			p.CreatedAt = m.people[i].CreatedAt
			p.UpdatedAt = time.Now()
			m.people[i] = *p
			return nil
		}
	}
	return nil
}

// DeletePerson removes a person
func (m *MockPersonStore) DeletePerson(ctx context.Context, id string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.people = slices.DeleteFunc(m.people, func(p database.KnownPerson) bool { return p.ID == id })
	return nil
}

// MockTaskStore is a mock implementation of database.TaskWriter
type MockTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*database.Task

	// Error injection
	GetError    error
	ListError   error
	CreateError error
	UpdateError error
	DeleteError error
}

// NewMockTaskStore creates a new mock task store
func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{
		tasks: make(map[string]*database.Task),
	}
}

// AddTask adds a task to the mock store as-is
func (m *MockTaskStore) AddTask(t database.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = &t
}

// GetTask retrieves a task by ID
func (m *MockTaskStore) GetTask(ctx context.Context, id string) (*database.Task, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

// ListTasks returns tasks of an owner ordered by scheduled time
func (m *MockTaskStore) ListTasks(ctx context.Context, ownerID string) ([]database.Task, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.Task
	for _, t := range m.tasks {
		if t.OwnerID == ownerID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledTime.Equal(out[j].ScheduledTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledTime.Before(out[j].ScheduledTime)
	})
	return out, nil
}

// CreateTask stores a new task
func (m *MockTaskStore) CreateTask(ctx context.Context, t *database.Task) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	now := time.Now()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = database.TaskPending
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

// UpdateTask replaces a stored task
func (m *MockTaskStore) UpdateTask(ctx context.Context, t *database.Task) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.tasks[t.ID]
	if !ok {
		return nil
	}
	now := time.Now()
	switch {
	case t.IsPending():
		t.CompletedAt = nil
	case existing.IsPending():
		t.CompletedAt = &now
	default:
		t.CompletedAt = existing.CompletedAt
	}
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = now
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

// DeleteTask removes a task
func (m *MockTaskStore) DeleteTask(ctx context.Context, id string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
	return nil
}

// MockEncounterLog is a mock implementation of database.EncounterWriter
type MockEncounterLog struct {
	mu         sync.RWMutex
	encounters []database.Encounter

	// Error injection
	LogError  error
	ListError error
}

// NewMockEncounterLog creates a new mock encounter log
func NewMockEncounterLog() *MockEncounterLog {
	return &MockEncounterLog{}
}

// LogEncounter appends an encounter
func (m *MockEncounterLog) LogEncounter(ctx context.Context, e *database.Encounter) error {
	if m.LogError != nil {
		return m.LogError
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.EncounteredAt.IsZero() {
		e.EncounteredAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.encounters = append(m.encounters, *e)
	return nil
}

// ListEncounters returns the newest encounters first
func (m *MockEncounterLog) ListEncounters(ctx context.Context, ownerID string, limit int) ([]database.Encounter, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.Encounter
	for i := len(m.encounters) - 1; i >= 0; i-- {
		if m.encounters[i].OwnerID != ownerID {
			continue
		}
		out = append(out, m.encounters[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of logged encounters
func (m *MockEncounterLog) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.encounters)
}

// MockSettingsStore is a mock implementation of database.SettingsStore
type MockSettingsStore struct {
	mu     sync.RWMutex
	values map[string]string

	// Error injection
	GetError error
	SetError error
}

// NewMockSettingsStore creates a new mock settings store
func NewMockSettingsStore() *MockSettingsStore {
	return &MockSettingsStore{
		values: make(map[string]string),
	}
}

// GetSetting returns a stored value
func (m *MockSettingsStore) GetSetting(ctx context.Context, ownerID, key string) (string, bool, error) {
	if m.GetError != nil {
		return "", false, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[ownerID+"/"+key]
	return v, ok, nil
}

// SetSetting stores a value
func (m *MockSettingsStore) SetSetting(ctx context.Context, ownerID, key, value string) error {
	if m.SetError != nil {
		return m.SetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[ownerID+"/"+key] = value
	return nil
}

// Stores groups the in-memory repositories registered by Register.
type Stores struct {
	People     *MockPersonStore
	Tasks      *MockTaskStore
	Encounters *MockEncounterLog
	Settings   *MockSettingsStore
}

// Register installs fresh in-memory repositories as the "memory" backend
// and returns them so callers can seed data or inject errors.
func Register() *Stores {
	s := &Stores{
		People:     NewMockPersonStore(),
		Tasks:      NewMockTaskStore(),
		Encounters: NewMockEncounterLog(),
		Settings:   NewMockSettingsStore(),
	}

	database.RegisterBackend("memory",
		func() database.PersonWriter { return s.People },
		func() database.TaskWriter { return s.Tasks },
		func() database.EncounterWriter { return s.Encounters },
	)
	database.RegisterSettingsStore(func() database.SettingsStore { return s.Settings })
	return s
}
