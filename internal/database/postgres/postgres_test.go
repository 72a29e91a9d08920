//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kozaktomas/companion/internal/config"
	"github.com/kozaktomas/companion/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg, nil)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	// Run migrations
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func TestPersonRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewPersonRepository(pool)

	t.Run("CreateAndGet", func(t *testing.T) {
		p := &database.KnownPerson{
			OwnerID:      "patient-1",
			Name:         "Jiří Novák",
			Relationship: "son",
			Embedding:    []float32{0.1, 0.2, 0.3},
			PhotoRef:     "data:image/jpeg;base64,AAAA",
		}
		if err := repo.CreatePerson(ctx, p); err != nil {
			t.Fatalf("Failed to create person: %v", err)
		}

		got, err := repo.GetPerson(ctx, p.ID)
		if err != nil {
			t.Fatalf("Failed to get person: %v", err)
		}
		if got == nil {
			t.Fatal("Expected person, got nil")
		}
		if got.Name != "Jiří Novák" || got.Relationship != "son" {
			t.Errorf("Unexpected person: %+v", got)
		}
		if len(got.Embedding) != 3 {
			t.Errorf("Expected 3-dim embedding, got %d", len(got.Embedding))
		}
	})

	t.Run("NullEmbedding", func(t *testing.T) {
		p := &database.KnownPerson{OwnerID: "patient-1", Name: "No Face"}
		if err := repo.CreatePerson(ctx, p); err != nil {
			t.Fatalf("Failed to create person: %v", err)
		}
		got, err := repo.GetPerson(ctx, p.ID)
		if err != nil {
			t.Fatalf("Failed to get person: %v", err)
		}
		if got.HasEmbedding() {
			t.Error("Expected absent embedding")
		}
	})

	t.Run("ListInEnrollmentOrder", func(t *testing.T) {
		people, err := repo.ListPeople(ctx, "patient-1")
		if err != nil {
			t.Fatalf("Failed to list people: %v", err)
		}
		if len(people) != 2 || people[0].Name != "Jiří Novák" || people[1].Name != "No Face" {
			t.Errorf("Unexpected order: %+v", people)
		}
	})

	t.Run("FindByNormalizedName", func(t *testing.T) {
		people, err := repo.FindPeopleByName(ctx, "patient-1", "jiri-novak")
		if err != nil {
			t.Fatalf("Failed to find people: %v", err)
		}
		if len(people) != 1 {
			t.Errorf("Expected 1 person, got %d", len(people))
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		got, err := repo.GetPerson(ctx, "not-a-uuid")
		if err != nil || got != nil {
			t.Errorf("Expected nil, nil for missing person, got %+v, %v", got, err)
		}
	})
}

func TestTaskRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewTaskRepository(pool)

	task := &database.Task{
		OwnerID:       "patient-1",
		Name:          "Take medicine",
		ScheduledTime: time.Now().Add(time.Hour).Truncate(time.Second),
		Location:      "kitchen",
	}
	if err := repo.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	task.Status = database.TaskCompleted
	if err := repo.UpdateTask(ctx, task); err != nil {
		t.Fatalf("Failed to update task: %v", err)
	}
	if task.CompletedAt == nil {
		t.Error("Expected completed_at to be set")
	}

	task.Status = database.TaskPending
	if err := repo.UpdateTask(ctx, task); err != nil {
		t.Fatalf("Failed to update task: %v", err)
	}
	if task.CompletedAt != nil {
		t.Error("Expected completed_at to be cleared")
	}

	tasks, err := repo.ListTasks(ctx, "patient-1")
	if err != nil {
		t.Fatalf("Failed to list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Location != "kitchen" {
		t.Errorf("Unexpected tasks: %+v", tasks)
	}

	if err := repo.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("Failed to delete task: %v", err)
	}
	got, err := repo.GetTask(ctx, task.ID)
	if err != nil || got != nil {
		t.Errorf("Expected task to be deleted, got %+v, %v", got, err)
	}
}

func TestEncounterAndSettingsRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	encounters := NewEncounterRepository(pool)

	for i := range 3 {
		e := &database.Encounter{
			OwnerID:       "patient-1",
			Action:        database.EncounterDetected,
			EncounteredAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := encounters.LogEncounter(ctx, e); err != nil {
			t.Fatalf("Failed to log encounter: %v", err)
		}
	}

	list, err := encounters.ListEncounters(ctx, "patient-1", 2)
	if err != nil {
		t.Fatalf("Failed to list encounters: %v", err)
	}
	if len(list) != 2 || !list[0].EncounteredAt.After(list[1].EncounteredAt) {
		t.Errorf("Expected 2 encounters newest first, got %+v", list)
	}

	settings := NewSettingsRepository(pool)
	if err := settings.SetSetting(ctx, "patient-1", database.SettingAudioEnabled, "false"); err != nil {
		t.Fatalf("Failed to set setting: %v", err)
	}
	if err := settings.SetSetting(ctx, "patient-1", database.SettingAudioEnabled, "true"); err != nil {
		t.Fatalf("Failed to overwrite setting: %v", err)
	}
	v, ok, err := settings.GetSetting(ctx, "patient-1", database.SettingAudioEnabled)
	if err != nil || !ok || v != "true" {
		t.Errorf("Expected stored 'true', got %q (%v, %v)", v, ok, err)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	if err := pool.Migrate(ctx); err != nil {
		t.Fatalf("Second migration run failed: %v", err)
	}
	versions, err := pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatalf("Failed to list migrations: %v", err)
	}
	if len(versions) != 1 || versions[0] != "001_init.sql" {
		t.Errorf("Unexpected migrations: %v", versions)
	}
}
