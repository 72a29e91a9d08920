package database

import (
	"context"
	"errors"
	"sync"
)

var errNotInitialized = errors.New("storage backend not initialized: DATABASE_URL is required (or run with --memory)")

var (
	providerMu        sync.RWMutex
	personWriter      func() PersonWriter
	taskWriter        func() TaskWriter
	encounterWriter   func() EncounterWriter
	settingsStore     func() SettingsStore
	backendName       string
	backendRegistered bool
)

// RegisterBackend registers repository constructors of a storage backend.
// This is called by the backend packages to avoid import cycles.
func RegisterBackend(
	name string,
	people func() PersonWriter,
	tasks func() TaskWriter,
	encounters func() EncounterWriter,
) {
	providerMu.Lock()
	defer providerMu.Unlock()
	backendName = name
	personWriter = people
	taskWriter = tasks
	encounterWriter = encounters
	backendRegistered = true
}

// RegisterSettingsStore registers the settings store constructor.
// Separate from RegisterBackend so settings can live in a different backend (Redis).
func RegisterSettingsStore(store func() SettingsStore) {
	providerMu.Lock()
	defer providerMu.Unlock()
	settingsStore = store
}

// IsInitialized returns whether a storage backend has been registered.
func IsInitialized() bool {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return backendRegistered
}

// BackendName returns the name of the registered backend ("postgres", "memory").
func BackendName() string {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return backendName
}

// GetPersonWriter returns the registered known-people repository
func GetPersonWriter(ctx context.Context) (PersonWriter, error) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	if !backendRegistered || personWriter == nil {
		return nil, errNotInitialized
	}
	return personWriter(), nil
}

// GetTaskWriter returns the registered task repository
func GetTaskWriter(ctx context.Context) (TaskWriter, error) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	if !backendRegistered || taskWriter == nil {
		return nil, errNotInitialized
	}
	return taskWriter(), nil
}

// GetEncounterWriter returns the registered encounter log
func GetEncounterWriter(ctx context.Context) (EncounterWriter, error) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	if !backendRegistered || encounterWriter == nil {
		return nil, errNotInitialized
	}
	return encounterWriter(), nil
}

// GetSettingsStore returns the registered settings store
func GetSettingsStore(ctx context.Context) (SettingsStore, error) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	if settingsStore == nil {
		return nil, errNotInitialized
	}
	return settingsStore(), nil
}

// ResetForTesting clears all registrations. Only for use in tests.
func ResetForTesting() {
	providerMu.Lock()
	defer providerMu.Unlock()
	personWriter = nil
	taskWriter = nil
	encounterWriter = nil
	settingsStore = nil
	backendName = ""
	backendRegistered = false
}
