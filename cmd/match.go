package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/companion/internal/facematch"
)

var matchCmd = &cobra.Command{
	Use:   "match <image>",
	Short: "Identify the faces in an image against the known people",
	Long: `Identify the faces in an image against the known people of the patient.

Every detected face is matched the same way the detection loop does it: the
closest known person below the distance threshold wins. Use it to check an
enrollment photo or to tune the camera position.

Examples:
  companion match visitor.jpg
  companion match visitor.jpg --json`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().Bool("json", false, "Output as JSON")
}

// FaceMatch is the outcome for one detected face.
type FaceMatch struct {
	Face   int              `json:"face"`
	Score  float64          `json:"score"`
	BBox   []float64        `json:"bbox"`
	Result facematch.Result `json:"result"`
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	jsonOutput := mustGetBool(cmd, "json")

	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	cfg, log, st, done, err := openCLIStorage(ctx)
	if err != nil {
		return err
	}
	defer done()

	registry, err := st.people.ListPeople(ctx, cfg.PatientID)
	if err != nil {
		return fmt.Errorf("loading known people: %w", err)
	}

	detector, err := connectEmbeddingServer(ctx, cfg, log)
	if err != nil {
		return err
	}
	faces, err := detector.Detect(ctx, image)
	if err != nil {
		return fmt.Errorf("detecting faces: %w", err)
	}

	matches := make([]FaceMatch, 0, len(faces))
	for i, face := range faces {
		matches = append(matches, FaceMatch{
			Face:   i,
			Score:  face.Score,
			BBox:   face.BBox,
			Result: facematch.Match(face.Embedding, registry, log),
		})
	}

	if jsonOutput {
		return outputJSON(matches)
	}

	if len(matches) == 0 {
		fmt.Println("No face detected.")
		return nil
	}

	fmt.Printf("Matched %d face(s) against %d known people\n\n", len(matches), len(registry))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FACE\tSCORE\tPERSON\tCONFIDENCE\tDISTANCE")
	fmt.Fprintln(w, "----\t-----\t------\t----------\t--------")
	for _, m := range matches {
		if !m.Result.IsKnown {
			fmt.Fprintf(w, "%d\t%.2f\t(unknown)\t-\t-\n", m.Face, m.Score)
			continue
		}
		fmt.Fprintf(w, "%d\t%.2f\t%s\t%d%%\t%.4f\n", m.Face, m.Score, m.Result.Name, m.Result.Confidence, m.Result.Distance)
	}
	return w.Flush()
}
