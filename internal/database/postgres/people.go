package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/companion/internal/database"
	"github.com/kozaktomas/companion/internal/facematch"
	"github.com/pgvector/pgvector-go"
)

// PersonRepository provides PostgreSQL-backed known-people storage.
type PersonRepository struct {
	pool *Pool
}

// NewPersonRepository creates a new PostgreSQL person repository.
func NewPersonRepository(pool *Pool) *PersonRepository {
	return &PersonRepository{pool: pool}
}

const personColumns = `id, owner_id, name, relationship, embedding, photo_ref, created_at, updated_at`

// GetPerson retrieves a person by ID, returns nil if not found.
func (r *PersonRepository) GetPerson(ctx context.Context, id string) (*database.KnownPerson, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	row := r.pool.QueryRow(ctx, `SELECT `+personColumns+` FROM known_people WHERE id = $1`, id)
	p, err := scanPerson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

// ListPeople returns all people of an owner in enrollment order.
func (r *PersonRepository) ListPeople(ctx context.Context, ownerID string) ([]database.KnownPerson, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+personColumns+`
		FROM known_people
		WHERE owner_id = $1
		ORDER BY seq
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	defer rows.Close()

	return scanPeople(rows)
}

// FindPeopleByName matches names normalized the same way as facematch.NormalizePersonName.
func (r *PersonRepository) FindPeopleByName(ctx context.Context, ownerID, name string) ([]database.KnownPerson, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+personColumns+`
		FROM known_people
		WHERE owner_id = $1 AND LOWER(REPLACE(unaccent(name), '-', ' ')) = $2
		ORDER BY seq
	`, ownerID, facematch.NormalizePersonName(name))
	if err != nil {
		return nil, fmt.Errorf("find people by name: %w", err)
	}
	defer rows.Close()

	return scanPeople(rows)
}

// CreatePerson stores a new person.
func (r *PersonRepository) CreatePerson(ctx context.Context, p *database.KnownPerson) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.pool.Exec(ctx, `
		INSERT INTO known_people (id, owner_id, name, relationship, embedding, photo_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.OwnerID, p.Name, p.Relationship, embeddingArg(p.Embedding), p.PhotoRef, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create person: %w", err)
	}
	return nil
}

// UpdatePerson replaces the mutable fields of a person.
func (r *PersonRepository) UpdatePerson(ctx context.Context, p *database.KnownPerson) error {
	p.UpdatedAt = time.Now()

	_, err := r.pool.Exec(ctx, `
		UPDATE known_people
		SET name = $2, relationship = $3, embedding = $4, photo_ref = $5, updated_at = $6
		WHERE id = $1
	`, p.ID, p.Name, p.Relationship, embeddingArg(p.Embedding), p.PhotoRef, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	return nil
}

// DeletePerson removes a person.
func (r *PersonRepository) DeletePerson(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	if _, err := r.pool.Exec(ctx, "DELETE FROM known_people WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	return nil
}

// embeddingArg maps an absent embedding to SQL NULL.
func embeddingArg(emb []float32) any {
	if len(emb) == 0 {
		return nil
	}
	return pgvector.NewVector(emb)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(row rowScanner) (*database.KnownPerson, error) {
	var p database.KnownPerson
	var vec *pgvector.Vector
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Relationship, &vec, &p.PhotoRef, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap and check sql.ErrNoRows
	}
	if vec != nil {
		p.Embedding = vec.Slice()
	}
	return &p, nil
}

func scanPeople(rows *sql.Rows) ([]database.KnownPerson, error) {
	var people []database.KnownPerson
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		people = append(people, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate people: %w", err)
	}
	return people, nil
}
