package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/constants"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/facematch"
)

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Find registered identities that share the same face",
	Long: `Scan the registry for pairs of identities whose face embeddings are closer
than the duplicate threshold. Registrations are checked for duplicates when
they happen, so pairs found here usually predate a threshold change or were
written by an older version.

This command:
1. Loads every identity and builds an in-memory HNSW index of the embeddings
2. Looks up the nearest neighbours of each identity
3. Reports pairs below the threshold, closest first

Examples:
  # Use DUPLICATE_THRESHOLD (or FACE_THRESHOLD)
  face-registry duplicates

  # Use a looser threshold
  face-registry duplicates --threshold 0.45

  # Output as JSON
  face-registry duplicates --json`,
	Args: cobra.NoArgs,
	RunE: runDuplicates,
}

func init() {
	rootCmd.AddCommand(duplicatesCmd)

	duplicatesCmd.Flags().Float64("threshold", 0, "Maximum cosine distance for a duplicate (0 = configured duplicate threshold)")
	duplicatesCmd.Flags().Int("neighbors", constants.DefaultDuplicateNeighbors, "Nearest neighbours inspected per identity")
	duplicatesCmd.Flags().Bool("json", false, "Output as JSON")
}

// duplicatesResult is the JSON output of the duplicates command.
type duplicatesResult struct {
	Threshold  float64         `json:"threshold"`
	Identities int             `json:"identities"`
	Skipped    []int64         `json:"skipped,omitempty"`
	Pairs      []duplicatePair `json:"pairs"`
}

type duplicatePair struct {
	A        int64   `json:"a"`
	AName    string  `json:"a_name"`
	B        int64   `json:"b"`
	BName    string  `json:"b_name"`
	Distance float64 `json:"distance"`
}

func runDuplicates(cmd *cobra.Command, args []string) error {
	threshold := mustGetFloat64(cmd, "threshold")
	neighbors := mustGetInt(cmd, "neighbors")
	jsonOutput := mustGetBool(cmd, "json")

	cfg := config.Load()
	if threshold <= 0 {
		threshold = cfg.Matching.EffectiveDuplicateThreshold()
	}
	if neighbors <= 0 {
		neighbors = constants.DefaultDuplicateNeighbors
	}

	ctx := context.Background()
	backend, err := openBackend(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer backend.Close()

	identities, err := backend.Identities.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list identities: %w", err)
	}

	index := database.NewIdentityIndex()
	skipped := index.Build(identities)
	if len(skipped) > 0 && !jsonOutput {
		fmt.Printf("Warning: %d identities have unusable embeddings and were skipped: %v\n", len(skipped), skipped)
	}

	var progress func()
	if !jsonOutput && len(identities) > 0 {
		bar := progressbar.NewOptions(len(identities),
			progressbar.OptionSetDescription("Comparing faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("identities"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
		defer bar.Finish()
		progress = func() { _ = bar.Add(1) }
	}

	pairs, err := facematch.FindDuplicatePairs(index, identities, threshold, neighbors, progress)
	if err != nil {
		return fmt.Errorf("failed to search for duplicates: %w", err)
	}

	result := duplicatesResult{
		Threshold:  threshold,
		Identities: len(identities),
		Skipped:    skipped,
		Pairs:      describePairs(pairs, identities),
	}

	if jsonOutput {
		return outputJSON(result)
	}

	fmt.Println()
	if len(result.Pairs) == 0 {
		fmt.Printf("No duplicates below %.2f among %d identities.\n", threshold, len(identities))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DISTANCE\tID\tNAME\tID\tNAME")
	fmt.Fprintln(w, "--------\t--\t----\t--\t----")

	for _, p := range result.Pairs {
		fmt.Fprintf(w, "%.4f\t%d\t%s\t%d\t%s\n", p.Distance, p.A, p.AName, p.B, p.BName)
	}

	w.Flush()

	fmt.Printf("\nTotal: %d pairs below %.2f\n", len(result.Pairs), threshold)

	return nil
}

func describePairs(pairs []database.DuplicatePair, identities []database.Identity) []duplicatePair {
	names := make(map[int64]string, len(identities))
	for i := range identities {
		names[identities[i].ID] = identities[i].Name + " " + identities[i].Surname
	}

	out := make([]duplicatePair, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, duplicatePair{
			A:        p.A,
			AName:    names[p.A],
			B:        p.B,
			BName:    names[p.B],
			Distance: p.Distance,
		})
	}
	return out
}
