package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/companion/internal/camera"
	"github.com/kozaktomas/companion/internal/config"
	"github.com/kozaktomas/companion/internal/database"
)

const testOwner = "patient-1"

type stubDetector struct {
	faces []camera.Face
	err   error
}

func (d *stubDetector) Detect(ctx context.Context, image []byte) ([]camera.Face, error) {
	return d.faces, d.err
}

func memoryStores(t *testing.T) *stores {
	t.Helper()
	cfg := &config.Config{PatientID: testOwner}
	st, cleanup, err := initStorage(context.Background(), cfg, true, zap.NewNop())
	if err != nil {
		t.Fatalf("initStorage() error = %v", err)
	}
	t.Cleanup(func() {
		cleanup()
		database.ResetForTesting()
	})
	return st
}

func TestInitStorage_RequiresDatabaseURL(t *testing.T) {
	t.Cleanup(database.ResetForTesting)

	_, _, err := initStorage(context.Background(), &config.Config{}, false, zap.NewNop())
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("expected DATABASE_URL error, got %v", err)
	}
	if database.IsInitialized() {
		t.Error("expected no backend to be registered")
	}
}

func TestInitStorage_Memory(t *testing.T) {
	st := memoryStores(t)

	if database.BackendName() != "memory" {
		t.Errorf("expected memory backend, got %q", database.BackendName())
	}
	if st.people == nil || st.tasks == nil || st.encounters == nil || st.settings == nil {
		t.Errorf("expected all stores, got %+v", st)
	}
}

func TestParseTaskTime(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	now := time.Date(2026, 3, 1, 7, 0, 0, 0, loc)

	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{name: "rfc3339", input: "2026-03-02T09:30:00Z", want: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)},
		{name: "date and time", input: "2026-03-02 18:15", want: time.Date(2026, 3, 2, 18, 15, 0, 0, loc)},
		{name: "time only", input: " 09:30 ", want: time.Date(2026, 3, 1, 9, 30, 0, 0, loc)},
		{name: "garbage", input: "after lunch", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTaskTime(tt.input, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseTaskTime() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("parseTaskTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNameFromFile(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{path: "/photos/jana-novakova.jpg", want: "jana novakova"},
		{path: "Petr_Novak.PNG", want: "Petr Novak"},
		{path: "dir/ spaced -- name .jpeg", want: "spaced name"},
	}
	for _, tt := range tests {
		if got := nameFromFile(tt.path); got != tt.want {
			t.Errorf("nameFromFile(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestEnrollPerson(t *testing.T) {
	st := memoryStores(t)
	ctx := context.Background()

	detector := &stubDetector{faces: []camera.Face{
		{Embedding: []float32{0.1, 0.2}, Score: 0.6},
		{Embedding: []float32{0.3, 0.4}, Score: 0.9},
	}}
	person, err := enrollPerson(ctx, detector, st.people, testOwner, "Jana", "daughter", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46})
	if err != nil {
		t.Fatalf("enrollPerson() error = %v", err)
	}
	if person.ID == "" || person.Embedding[0] != 0.3 {
		t.Errorf("expected best face to be stored, got %+v", person)
	}
	if !strings.HasPrefix(person.PhotoRef, "data:image/jpeg;base64,") {
		t.Errorf("unexpected photo ref %q", person.PhotoRef)
	}

	if _, err := enrollPerson(ctx, &stubDetector{}, st.people, testOwner, "Nobody", "", []byte("x")); err == nil {
		t.Error("expected error without a face")
	}
	detectErr := errors.New("server down")
	if _, err := enrollPerson(ctx, &stubDetector{err: detectErr}, st.people, testOwner, "Nobody", "", []byte("x")); !errors.Is(err, detectErr) {
		t.Errorf("expected wrapped detector error, got %v", err)
	}
}

func TestResolvePerson(t *testing.T) {
	st := memoryStores(t)
	ctx := context.Background()

	for _, p := range []*database.KnownPerson{
		{OwnerID: testOwner, Name: "Jana"},
		{OwnerID: testOwner, Name: "Petr"},
		{OwnerID: testOwner, Name: "petr"},
		{OwnerID: "someone-else", Name: "Eva"},
	} {
		if err := st.people.CreatePerson(ctx, p); err != nil {
			t.Fatalf("CreatePerson() error = %v", err)
		}
	}
	jana, _ := st.people.FindPeopleByName(ctx, testOwner, "jana")
	eva, _ := st.people.FindPeopleByName(ctx, "someone-else", "eva")

	tests := []struct {
		name    string
		ref     string
		want    string
		wantErr string
	}{
		{name: "by id", ref: jana[0].ID, want: "Jana"},
		{name: "by name", ref: "JANA", want: "Jana"},
		{name: "ambiguous", ref: "petr", wantErr: "2 people"},
		{name: "missing", ref: "Karel", wantErr: "not found"},
		{name: "other owner", ref: eva[0].ID, wantErr: "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolvePerson(ctx, st.people, testOwner, tt.ref)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolvePerson() error = %v", err)
			}
			if got.Name != tt.want {
				t.Errorf("resolvePerson() = %q, want %q", got.Name, tt.want)
			}
		})
	}
}

func TestSimilarPeople(t *testing.T) {
	people := []database.KnownPerson{
		{ID: "a", Name: "Alice", Embedding: []float32{0, 0}},
		{ID: "b", Name: "Bob", Embedding: []float32{0.3, 0}},
		{ID: "c", Name: "Carol", Embedding: []float32{2, 0}},
		{ID: "d", Name: "Dave"},
	}

	results, err := similarPeople(&people[0], people, 1)
	if err != nil {
		t.Fatalf("similarPeople() error = %v", err)
	}
	if len(results) != 1 || results[0].Person.ID != "b" {
		t.Fatalf("expected Bob as nearest, got %+v", results)
	}
	if results[0].Confidence != 70 {
		t.Errorf("expected confidence 70, got %d", results[0].Confidence)
	}

	results, err = similarPeople(&people[0], people[:1], 5)
	if err != nil {
		t.Fatalf("similarPeople() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no neighbours, got %+v", results)
	}
}

func TestImportFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.JPG", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o700); err != nil {
		t.Fatal(err)
	}

	files, err := importFiles(dir)
	if err != nil {
		t.Fatalf("importFiles() error = %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "a.JPG" || filepath.Base(files[1]) != "b.png" {
		t.Errorf("unexpected files %v", files)
	}

	if _, err := importFiles(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestNewFrameSource(t *testing.T) {
	ctx := context.Background()

	t.Run("no camera", func(t *testing.T) {
		src, checks := newFrameSource(&config.Config{})
		if src != nil || len(checks) != 1 {
			t.Fatalf("expected a single failing check, got %v %d", src, len(checks))
		}
		if err := checks[0](ctx); !errors.Is(err, camera.ErrCameraUnavailable) {
			t.Errorf("expected ErrCameraUnavailable, got %v", err)
		}
	})

	t.Run("empty directory", func(t *testing.T) {
		_, checks := newFrameSource(&config.Config{Camera: config.CameraConfig{Dir: t.TempDir()}})
		if len(checks) != 1 {
			t.Fatalf("expected one check, got %d", len(checks))
		}
		if err := checks[0](ctx); !errors.Is(err, camera.ErrCameraUnavailable) {
			t.Errorf("expected ErrCameraUnavailable, got %v", err)
		}
	})

	t.Run("http camera", func(t *testing.T) {
		src, checks := newFrameSource(&config.Config{Camera: config.CameraConfig{URL: "http://cam.local/snapshot.jpg"}})
		if _, ok := src.(*camera.HTTPSource); !ok {
			t.Errorf("expected HTTPSource, got %T", src)
		}
		if len(checks) != 1 {
			t.Errorf("expected probe check, got %d", len(checks))
		}
	})
}

func TestResolveServeHostPort(t *testing.T) {
	newCmd := func() *cobra.Command {
		c := &cobra.Command{}
		c.Flags().Int("port", 8080, "")
		c.Flags().String("host", "0.0.0.0", "")
		return c
	}

	cfg := &config.Config{Web: config.WebConfig{Port: 9000, Host: "127.0.0.1"}}
	resolveServeHostPort(newCmd(), cfg)
	if cfg.Web.Port != 9000 || cfg.Web.Host != "127.0.0.1" {
		t.Errorf("expected environment values to stay, got %+v", cfg.Web)
	}

	c := newCmd()
	if err := c.Flags().Set("port", "7070"); err != nil {
		t.Fatal(err)
	}
	resolveServeHostPort(c, cfg)
	if cfg.Web.Port != 7070 || cfg.Web.Host != "127.0.0.1" {
		t.Errorf("expected flag to win for port only, got %+v", cfg.Web)
	}
}
