package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/companion/internal/database"
)

// EncounterRepository provides the PostgreSQL-backed encounter log.
type EncounterRepository struct {
	pool *Pool
}

// NewEncounterRepository creates a new PostgreSQL encounter repository.
func NewEncounterRepository(pool *Pool) *EncounterRepository {
	return &EncounterRepository{pool: pool}
}

// LogEncounter appends an encounter.
func (r *EncounterRepository) LogEncounter(ctx context.Context, e *database.Encounter) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.EncounteredAt.IsZero() {
		e.EncounteredAt = time.Now()
	}

	personID := sql.NullString{String: e.PersonID, Valid: e.PersonID != ""}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO encounters (id, owner_id, encountered_at, action, saved_as_known, person_id, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.OwnerID, e.EncounteredAt, string(e.Action), e.SavedAsKnown, personID, e.Notes)
	if err != nil {
		return fmt.Errorf("log encounter: %w", err)
	}
	return nil
}

// ListEncounters returns the newest encounters first.
func (r *EncounterRepository) ListEncounters(ctx context.Context, ownerID string, limit int) ([]database.Encounter, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, encountered_at, action, saved_as_known, person_id, notes
		FROM encounters
		WHERE owner_id = $1
		ORDER BY encountered_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list encounters: %w", err)
	}
	defer rows.Close()

	var encounters []database.Encounter
	for rows.Next() {
		var e database.Encounter
		var action string
		var personID sql.NullString
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.EncounteredAt, &action, &e.SavedAsKnown, &personID, &e.Notes); err != nil {
			return nil, fmt.Errorf("scan encounter: %w", err)
		}
		e.Action = database.EncounterAction(action)
		e.PersonID = personID.String
		encounters = append(encounters, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate encounters: %w", err)
	}
	return encounters, nil
}
