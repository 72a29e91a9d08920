package encounter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/companion/internal/camera"
	"github.com/kozaktomas/companion/internal/constants"
	"github.com/kozaktomas/companion/internal/database"
	"github.com/kozaktomas/companion/internal/enrichment"
	"github.com/kozaktomas/companion/internal/facematch"
	"github.com/kozaktomas/companion/internal/metrics"
)

// Speaker is the part of the notifier the machine uses.
type Speaker interface {
	Speak(text string) bool
}

// Config wires a Machine to its collaborators.
type Config struct {
	OwnerID         string
	People          database.PersonWriter
	Encounters      database.EncounterWriter
	Enricher        enrichment.Describer
	Speaker         Speaker
	Logger          *zap.Logger
	SavePromptDelay time.Duration
}

// Machine is safe for concurrent use; the detection loop guarantees at most
// one HandleFace call at a time.
type Machine struct {
	ownerID         string
	people          database.PersonWriter
	encounters      database.EncounterWriter
	enricher        enrichment.Describer
	speaker         Speaker
	logger          *zap.Logger
	savePromptDelay time.Duration
	now             func() time.Time

	mu          sync.Mutex
	state       State
	pending     *PendingCapture
	saving      bool
	pass        uint64
	streak      uint64 // bumped when a capture is taken while none is held
	prompted    uint64 // last streak the save prompt was scheduled for
	promptTimer *time.Timer
	onDetection []func(DetectionResult)
	onError     []func(error)

	bg sync.WaitGroup // encounter log writes
}

func NewMachine(cfg Config) *Machine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.SavePromptDelay <= 0 {
		cfg.SavePromptDelay = constants.SavePromptDelay
	}
	return &Machine{
		ownerID:         cfg.OwnerID,
		people:          cfg.People,
		encounters:      cfg.Encounters,
		enricher:        cfg.Enricher,
		speaker:         cfg.Speaker,
		logger:          cfg.Logger,
		savePromptDelay: cfg.SavePromptDelay,
		now:             time.Now,
	}
}

// OnDetection registers a listener called once per pass with a face.
func (m *Machine) OnDetection(fn func(DetectionResult)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDetection = append(m.onDetection, fn)
}

// OnError registers a listener for errors that don't fail the caller,
// such as a failed encounter log write.
func (m *Machine) OnError(fn func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError = append(m.onError, fn)
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Pending returns a copy of the held capture, or nil.
func (m *Machine) Pending() *PendingCapture {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return nil
	}
	p := *m.pending
	return &p
}

// held reports whether the pending capture must survive new passes.
func (m *Machine) held() bool {
	return m.state == SaveCandidate || m.saving
}

// beginPass starts a new evaluation and invalidates callbacks of older ones.
// The save prompt timer belongs to the unknown streak and is left alone.
func (m *Machine) beginPass() uint64 {
	m.pass++
	return m.pass
}

// ClearDetection is called for passes without a face. The detection ends but
// an unknown capture stays pending until it is saved, dismissed or replaced
// by the next detection.
func (m *Machine) ClearDetection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beginPass()
	if !m.held() {
		m.state = Scanning
	}
}

// HandleFace evaluates the first face of a pass: match against the registry,
// describe, announce and notify listeners. Nothing is announced once ctx is
// canceled or Reset ran during the pass.
func (m *Machine) HandleFace(ctx context.Context, frame camera.Frame, face camera.Face) (*DetectionResult, error) {
	m.mu.Lock()
	pass := m.beginPass()
	m.mu.Unlock()

	registry, err := m.people.ListPeople(ctx, m.ownerID)
	if err != nil {
		err = fmt.Errorf("loading known people: %w", err)
		m.reportError(err)
		return nil, err
	}

	match := facematch.Match(face.Embedding, registry, m.logger)
	detectedAt := m.now()

	m.mu.Lock()
	if pass != m.pass {
		m.mu.Unlock()
		return nil, ErrPassSuperseded
	}
	if !m.held() {
		if match.IsKnown {
			m.state = DetectedKnown
			m.pending = nil
			m.stopPromptLocked()
		} else {
			m.state = DetectedUnknown
			if m.pending == nil {
				m.streak++
			}
			m.pending = &PendingCapture{
				Image:      frame.Data,
				Embedding:  face.Embedding,
				CapturedAt: detectedAt,
			}
		}
	}
	m.mu.Unlock()

	subject := enrichment.Subject{Known: match.IsKnown, Name: match.Name}
	description := m.enricher.Describe(ctx, frame.Data, subject)

	result := DetectionResult{
		IsKnown:    match.IsKnown,
		Name:       match.Name,
		PersonID:   match.PersonID,
		Confidence: match.Confidence,
		Enrichment: description,
		DetectedAt: detectedAt,
	}

	m.mu.Lock()
	if err := ctx.Err(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if pass != m.pass {
		m.mu.Unlock()
		return nil, ErrPassSuperseded
	}
	listeners := m.onDetection
	if !match.IsKnown && !m.held() && m.pending != nil && m.prompted != m.streak {
		streak := m.streak
		m.prompted = streak
		m.promptTimer = time.AfterFunc(m.savePromptDelay, func() { m.savePrompt(streak) })
	}
	m.mu.Unlock()

	if match.IsKnown {
		m.speaker.Speak(announcement(fmt.Sprintf(knownPrefix, match.Name), description))
	} else {
		m.speaker.Speak(announcement(unknownPrefix, description))
		m.logEncounter(&database.Encounter{
			OwnerID:       m.ownerID,
			EncounteredAt: detectedAt,
			Action:        database.EncounterDetected,
		})
	}

	for _, fn := range listeners {
		fn(result)
	}
	return &result, nil
}

// savePrompt asks once per unknown streak, if the capture is still pending
// and nobody started saving it.
func (m *Machine) savePrompt(streak uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Speak returns once playback starts; calling it under the lock keeps
	// Reset from interleaving.
	if streak == m.streak && m.pending != nil && !m.held() {
		m.speaker.Speak(savePromptPhrase)
	}
}

func (m *Machine) stopPromptLocked() {
	if m.promptTimer != nil {
		m.promptTimer.Stop()
		m.promptTimer = nil
	}
}

// RequestSave moves the pending unknown capture to SaveCandidate, holding it.
// It works after the face left the frame as long as the capture is pending.
func (m *Machine) RequestSave() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.state == SaveCandidate:
		return nil
	case m.pending == nil:
		return ErrNoPendingCapture
	}
	m.state = SaveCandidate
	m.stopPromptLocked()
	return nil
}

// ConfirmSave persists the held capture as a new known person. On failure the
// machine stays in SaveCandidate with the same capture so the save can be retried.
func (m *Machine) ConfirmSave(ctx context.Context, name, relationship string) (*database.KnownPerson, error) {
	name = strings.TrimSpace(name)
	relationship = strings.TrimSpace(relationship)
	if name == "" {
		return nil, ErrNameRequired
	}

	m.mu.Lock()
	if m.saving {
		m.mu.Unlock()
		return nil, ErrSaveInProgress
	}
	if m.pending == nil {
		m.mu.Unlock()
		return nil, ErrNoPendingCapture
	}
	m.state = SaveCandidate
	m.saving = true
	m.stopPromptLocked()
	capture := *m.pending
	m.mu.Unlock()

	person := &database.KnownPerson{
		OwnerID:      m.ownerID,
		Name:         name,
		Relationship: relationship,
		Embedding:    capture.Embedding,
		PhotoRef:     camera.DataURL(capture.Image),
	}
	err := m.people.CreatePerson(ctx, person)

	m.mu.Lock()
	m.saving = false
	if err == nil {
		m.pending = nil
		m.state = Scanning
	}
	m.mu.Unlock()

	if err != nil {
		metrics.PeopleSavedTotal.WithLabelValues("error").Inc()
		m.logger.Error("failed to save person", zap.String("name", name), zap.Error(err))
		return nil, fmt.Errorf("saving person: %w", err)
	}

	metrics.PeopleSavedTotal.WithLabelValues("ok").Inc()
	m.logger.Info("saved new person", zap.String("id", person.ID), zap.String("name", name))
	m.speaker.Speak(fmt.Sprintf(savedPhrase, name))
	m.logEncounter(&database.Encounter{
		OwnerID:       m.ownerID,
		EncounteredAt: m.now(),
		Action:        database.EncounterSaved,
		SavedAsKnown:  true,
		PersonID:      person.ID,
	})
	return person, nil
}

// CancelSave drops the capture and returns to Scanning.
func (m *Machine) CancelSave() error {
	m.mu.Lock()
	if m.saving {
		m.mu.Unlock()
		return ErrSaveInProgress
	}
	hadCapture := m.pending != nil
	m.pending = nil
	m.state = Scanning
	m.stopPromptLocked()
	m.mu.Unlock()

	if hadCapture {
		m.logEncounter(&database.Encounter{
			OwnerID:       m.ownerID,
			EncounteredAt: m.now(),
			Action:        database.EncounterDismissed,
		})
	}
	return nil
}

// Reset returns to Scanning, clears the capture and silences any callback of
// a pass still in flight.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beginPass()
	m.state = Scanning
	m.pending = nil
	m.stopPromptLocked()
}

// Wait blocks until background encounter log writes have finished.
func (m *Machine) Wait() {
	m.bg.Wait()
}

// logEncounter writes to the encounter log without blocking the caller.
func (m *Machine) logEncounter(e *database.Encounter) {
	if m.encounters == nil {
		return
	}
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.encounters.LogEncounter(ctx, e); err != nil {
			metrics.EncounterLogErrorsTotal.Inc()
			m.logger.Error("failed to log encounter", zap.String("action", string(e.Action)), zap.Error(err))
			m.reportError(fmt.Errorf("logging encounter: %w", err))
		}
	}()
}

func (m *Machine) reportError(err error) {
	m.mu.Lock()
	listeners := m.onError
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(err)
	}
}

// announcement joins the lead sentence and the description into one utterance.
func announcement(lead, description string) string {
	description = strings.TrimSpace(description)
	if description == "" {
		return lead
	}
	return lead + " " + description
}
