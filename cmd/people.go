package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/companion/internal/camera"
	"github.com/kozaktomas/companion/internal/config"
	"github.com/kozaktomas/companion/internal/constants"
	"github.com/kozaktomas/companion/internal/database"
	"github.com/kozaktomas/companion/internal/facematch"
)

var peopleCmd = &cobra.Command{
	Use:   "people",
	Short: "Manage the people the patient knows",
	Long:  `Commands for listing, enrolling and removing known people.`,
}

var peopleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known people",
	Args:  cobra.NoArgs,
	RunE:  runPeopleList,
}

var peopleAddCmd = &cobra.Command{
	Use:   "add <name> <image>",
	Short: "Enroll a person from a photo",
	Long: `Enroll a person from a photo.

The face with the highest detection score in the photo is used.

Examples:
  companion people add "Jana" jana.jpg --relationship daughter`,
	Args: cobra.ExactArgs(2),
	RunE: runPeopleAdd,
}

var peopleRemoveCmd = &cobra.Command{
	Use:   "remove <id-or-name>",
	Short: "Remove a known person",
	Args:  cobra.ExactArgs(1),
	RunE:  runPeopleRemove,
}

var peopleImportCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Enroll one person per photo in a directory",
	Long: `Enroll one person per photo in a directory.

The file name is the person's name: "jana-novakova.jpg" becomes "jana novakova".
People that already exist under the same name are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runPeopleImport,
}

var peopleSimilarCmd = &cobra.Command{
	Use:   "similar <id-or-name>",
	Short: "Show the known people whose faces look closest to a person",
	Args:  cobra.ExactArgs(1),
	RunE:  runPeopleSimilar,
}

func init() {
	rootCmd.AddCommand(peopleCmd)
	peopleCmd.AddCommand(peopleListCmd, peopleAddCmd, peopleRemoveCmd, peopleImportCmd, peopleSimilarCmd)

	peopleListCmd.Flags().Bool("json", false, "Output as JSON")
	peopleAddCmd.Flags().String("relationship", "", "How the person relates to the patient")
	peopleImportCmd.Flags().String("relationship", "", "Relationship stored for every imported person")
	peopleSimilarCmd.Flags().Int("limit", constants.DefaultSimilarLimit, "Number of people to show")
	peopleSimilarCmd.Flags().Bool("json", false, "Output as JSON")
}

// PersonOutput is the CLI view of a known person. The embedding is left out.
type PersonOutput struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Relationship string `json:"relationship,omitempty"`
	HasFace      bool   `json:"has_face"`
	CreatedAt    string `json:"created_at"`
}

// SimilarOutput is one neighbour of the similar command.
type SimilarOutput struct {
	Person     PersonOutput `json:"person"`
	Distance   float64      `json:"distance"`
	Confidence int          `json:"confidence"`
}

func toPersonOutput(p *database.KnownPerson) PersonOutput {
	return PersonOutput{
		ID:           p.ID,
		Name:         p.Name,
		Relationship: p.Relationship,
		HasFace:      p.HasEmbedding(),
		CreatedAt:    p.CreatedAt.UTC().Format("2006-01-02 15:04"),
	}
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

// openCLIStorage loads the config, a logger and the PostgreSQL backend.
func openCLIStorage(ctx context.Context) (*config.Config, *zap.Logger, *stores, func(), error) {
	cfg := config.Load()
	log, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	st, closeStorage, err := initStorage(ctx, cfg, false, log)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return cfg, log, st, func() {
		closeStorage()
		_ = log.Sync()
	}, nil
}

// resolvePerson finds a person of the owner by ID or, failing that, by name.
func resolvePerson(ctx context.Context, people database.PersonReader, ownerID, ref string) (*database.KnownPerson, error) {
	person, err := people.GetPerson(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("getting person: %w", err)
	}
	if person != nil && person.OwnerID == ownerID {
		return person, nil
	}

	matches, err := people.FindPeopleByName(ctx, ownerID, ref)
	if err != nil {
		return nil, fmt.Errorf("finding person: %w", err)
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("person %q not found", ref)
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("%d people are named %q, use the ID instead", len(matches), ref)
	}
}

// nameFromFile turns "jana-novakova.jpg" into "jana novakova".
func nameFromFile(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}

// enrollPerson detects the best face in image and stores a new person.
func enrollPerson(ctx context.Context, detector camera.FaceDetector, people database.PersonWriter, ownerID, name, relationship string, image []byte) (*database.KnownPerson, error) {
	faces, err := detector.Detect(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}
	face, ok := camera.BestFace(faces)
	if !ok {
		return nil, errors.New("no face found in photo")
	}

	person := &database.KnownPerson{
		OwnerID:      ownerID,
		Name:         name,
		Relationship: relationship,
		Embedding:    face.Embedding,
		PhotoRef:     camera.DataURL(image),
	}
	if err := people.CreatePerson(ctx, person); err != nil {
		return nil, fmt.Errorf("saving person: %w", err)
	}
	return person, nil
}

func connectEmbeddingServer(ctx context.Context, cfg *config.Config, log *zap.Logger) (*camera.EmbeddingDetector, error) {
	detector, err := camera.ConnectDetector(ctx, cfg.Embedding.URLs, camera.ConnectOptions{
		Attempts:   constants.DetectorConnectAttempts,
		RetryDelay: constants.DetectorRetryDelay,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("connecting to embedding server: %w", err)
	}
	return detector, nil
}

func runPeopleList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, _, st, done, err := openCLIStorage(ctx)
	if err != nil {
		return err
	}
	defer done()

	people, err := st.people.ListPeople(ctx, cfg.PatientID)
	if err != nil {
		return fmt.Errorf("listing people: %w", err)
	}

	out := make([]PersonOutput, 0, len(people))
	for i := range people {
		out = append(out, toPersonOutput(&people[i]))
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(out)
	}

	if len(out) == 0 {
		fmt.Println("No known people.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tRELATIONSHIP\tFACE\tADDED")
	fmt.Fprintln(w, "--\t----\t------------\t----\t-----")
	for _, p := range out {
		face := "no"
		if p.HasFace {
			face = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Relationship, face, p.CreatedAt)
	}
	return w.Flush()
}

func runPeopleAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name := strings.TrimSpace(args[0])
	if name == "" {
		return errors.New("name is required")
	}

	cfg, log, st, done, err := openCLIStorage(ctx)
	if err != nil {
		return err
	}
	defer done()

	image, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	detector, err := connectEmbeddingServer(ctx, cfg, log)
	if err != nil {
		return err
	}

	relationship := strings.TrimSpace(mustGetString(cmd, "relationship"))
	person, err := enrollPerson(ctx, detector, st.people, cfg.PatientID, name, relationship, image)
	if err != nil {
		return err
	}
	fmt.Printf("Added %s (%s)\n", person.Name, person.ID)
	return nil
}

func runPeopleRemove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, _, st, done, err := openCLIStorage(ctx)
	if err != nil {
		return err
	}
	defer done()

	person, err := resolvePerson(ctx, st.people, cfg.PatientID, args[0])
	if err != nil {
		return err
	}
	if err := st.people.DeletePerson(ctx, person.ID); err != nil {
		return fmt.Errorf("deleting person: %w", err)
	}
	fmt.Printf("Removed %s (%s)\n", person.Name, person.ID)
	return nil
}

// importFiles lists the enrollable images of dir in name order.
func importFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

func runPeopleImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, log, st, done, err := openCLIStorage(ctx)
	if err != nil {
		return err
	}
	defer done()

	files, err := importFiles(args[0])
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No images found.")
		return nil
	}

	detector, err := connectEmbeddingServer(ctx, cfg, log)
	if err != nil {
		return err
	}
	relationship := strings.TrimSpace(mustGetString(cmd, "relationship"))

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Importing people"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	var added, skipped int
	var failures []string
	for _, path := range files {
		name := nameFromFile(path)
		existing, err := st.people.FindPeopleByName(ctx, cfg.PatientID, name)
		switch {
		case err != nil:
			failures = append(failures, fmt.Sprintf("%s: %v", filepath.Base(path), err))
		case len(existing) > 0:
			skipped++
		default:
			if err := importOne(ctx, detector, st.people, cfg.PatientID, name, relationship, path); err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", filepath.Base(path), err))
			} else {
				added++
			}
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	fmt.Printf("\nAdded %d, skipped %d existing, failed %d\n", added, skipped, len(failures))
	for _, f := range failures {
		fmt.Printf("  %s\n", f)
	}
	return nil
}

func importOne(ctx context.Context, detector camera.FaceDetector, people database.PersonWriter, ownerID, name, relationship, path string) error {
	image, err := os.ReadFile(path) //nolint:gosec // path comes from the listed directory
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	_, err = enrollPerson(ctx, detector, people, ownerID, name, relationship, image)
	return err
}

func runPeopleSimilar(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	limit := mustGetInt(cmd, "limit")
	if limit <= 0 {
		return errors.New("--limit must be positive")
	}

	cfg, _, st, done, err := openCLIStorage(ctx)
	if err != nil {
		return err
	}
	defer done()

	person, err := resolvePerson(ctx, st.people, cfg.PatientID, args[0])
	if err != nil {
		return err
	}
	if !person.HasEmbedding() {
		return fmt.Errorf("%s has no face embedding", person.Name)
	}

	people, err := st.people.ListPeople(ctx, cfg.PatientID)
	if err != nil {
		return fmt.Errorf("listing people: %w", err)
	}
	results, err := similarPeople(person, people, limit)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(results)
	}
	if len(results) == 0 {
		fmt.Println("No other people with a face embedding.")
		return nil
	}
	fmt.Printf("People who look most like %s:\n\n", person.Name)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDISTANCE\tCONFIDENCE\tMATCHES")
	fmt.Fprintln(w, "----\t--------\t----------\t-------")
	for _, r := range results {
		wouldMatch := "no"
		if r.Distance < constants.MatchDistanceThreshold {
			wouldMatch = "yes"
		}
		fmt.Fprintf(w, "%s\t%.4f\t%d%%\t%s\n", r.Person.Name, r.Distance, r.Confidence, wouldMatch)
	}
	return w.Flush()
}

// similarPeople returns the nearest neighbours of person, leaving the person out.
func similarPeople(person *database.KnownPerson, people []database.KnownPerson, limit int) ([]SimilarOutput, error) {
	index := database.NewPersonIndex()
	index.Build(people)

	hits, err := index.Search(person.Embedding, limit+1)
	if err != nil && !errors.Is(err, database.ErrIndexEmpty) {
		return nil, fmt.Errorf("searching people: %w", err)
	}

	results := make([]SimilarOutput, 0, limit)
	for i := range hits {
		if hits[i].Person.ID == person.ID || len(results) == limit {
			continue
		}
		results = append(results, SimilarOutput{
			Person:     toPersonOutput(&hits[i].Person),
			Distance:   hits[i].Distance,
			Confidence: facematch.Confidence(hits[i].Distance),
		})
	}
	return results, nil
}
