package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/companion/internal/database"
)

// TaskRepository provides PostgreSQL-backed task storage.
type TaskRepository struct {
	pool *Pool
}

// NewTaskRepository creates a new PostgreSQL task repository.
func NewTaskRepository(pool *Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

const taskColumns = `id, owner_id, name, description, scheduled_time, location, status, completed_at, created_at, updated_at`

// GetTask retrieves a task by ID, returns nil if not found.
func (r *TaskRepository) GetTask(ctx context.Context, id string) (*database.Task, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	t, err := scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns all tasks of an owner ordered by scheduled time.
func (r *TaskRepository) ListTasks(ctx context.Context, ownerID string) ([]database.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE owner_id = $1
		ORDER BY scheduled_time, id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []database.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// CreateTask stores a new task.
func (r *TaskRepository) CreateTask(ctx context.Context, t *database.Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = database.TaskPending
	}
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := r.pool.Exec(ctx, `
		INSERT INTO tasks (id, owner_id, name, description, scheduled_time, location, status, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, t.ID, t.OwnerID, t.Name, t.Description, t.ScheduledTime, t.Location, string(t.Status), t.CompletedAt, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// UpdateTask replaces the mutable fields of a task and maintains completed_at.
func (r *TaskRepository) UpdateTask(ctx context.Context, t *database.Task) error {
	t.UpdatedAt = time.Now()

	row := r.pool.QueryRow(ctx, `
		UPDATE tasks
		SET name = $2, description = $3, scheduled_time = $4, location = $5, status = $6,
		    completed_at = CASE
		        WHEN $6 = 'pending' THEN NULL
		        WHEN status = 'pending' THEN $7
		        ELSE completed_at
		    END,
		    updated_at = $7
		WHERE id = $1
		RETURNING completed_at
	`, t.ID, t.Name, t.Description, t.ScheduledTime, t.Location, string(t.Status), t.UpdatedAt)

	var completedAt sql.NullTime
	err := row.Scan(&completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	t.CompletedAt = nil
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return nil
}

// DeleteTask removes a task.
func (r *TaskRepository) DeleteTask(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	if _, err := r.pool.Exec(ctx, "DELETE FROM tasks WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func scanTask(row rowScanner) (*database.Task, error) {
	var t database.Task
	var status string
	var completedAt sql.NullTime
	err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &t.Description, &t.ScheduledTime, &t.Location,
		&status, &completedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap and check sql.ErrNoRows
	}
	t.Status = database.TaskStatus(status)
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}
