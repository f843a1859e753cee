package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/registry"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "Inspect registered identities",
}

var identitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered identities",
	Long: `List registered identities in registration order.

Examples:
  # List everyone
  face-registry identities list

  # Search by name or email, ignoring case and diacritics
  face-registry identities list --search "jose perez"

  # Output as JSON
  face-registry identities list --json`,
	Args: cobra.NoArgs,
	RunE: runIdentitiesList,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)
	identitiesCmd.AddCommand(identitiesListCmd)

	identitiesListCmd.Flags().String("search", "", "Only show identities whose name or email contains this text")
	identitiesListCmd.Flags().Bool("json", false, "Output as JSON")
}

// identityRow is the CLI view of an identity, without the embedding.
type identityRow struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Surname   string    `json:"surname"`
	Email     string    `json:"email"`
	Image     string    `json:"image"`
	Dims      int       `json:"embedding_dims"`
	CreatedAt time.Time `json:"created_at"`
}

func runIdentitiesList(cmd *cobra.Command, args []string) error {
	search := mustGetString(cmd, "search")
	jsonOutput := mustGetBool(cmd, "json")

	cfg := config.Load()
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

	rows := filterIdentities(identities, search)

	if jsonOutput {
		return outputJSON(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No identities found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tIMAGE\tDIMS\tCREATED")
	fmt.Fprintln(w, "--\t----\t-----\t-----\t----\t-------")

	for i := range rows {
		fmt.Fprintf(w, "%d\t%s %s\t%s\t%s\t%d\t%s\n",
			rows[i].ID, rows[i].Name, rows[i].Surname, rows[i].Email, rows[i].Image,
			rows[i].Dims, rows[i].CreatedAt.Format(time.DateTime))
	}

	w.Flush()

	fmt.Printf("\nTotal: %d identities\n", len(rows))

	return nil
}

func filterIdentities(identities []database.Identity, search string) []identityRow {
	rows := make([]identityRow, 0, len(identities))
	for i := range identities {
		if search != "" && !registry.MatchesSearch(&identities[i], search) {
			continue
		}
		rows = append(rows, identityRow{
			ID:        identities[i].ID,
			Name:      identities[i].Name,
			Surname:   identities[i].Surname,
			Email:     identities[i].Email,
			Image:     identities[i].ImageRef,
			Dims:      len(identities[i].Embedding),
			CreatedAt: identities[i].CreatedAt,
		})
	}
	return rows
}
