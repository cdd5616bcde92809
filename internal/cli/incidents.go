package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mr1hm/go-relief-pipeline/internal/models"
	"github.com/mr1hm/go-relief-pipeline/internal/repository"
)

var (
	incidentsLimit int
	incidentsJSON  bool
)

// incidentsCmd represents the incidents command
var incidentsCmd = &cobra.Command{
	Use:   "incidents",
	Short: "List recent incidents",
	Long: `Incidents lists stored incidents, most recently triaged first.

Example:
  relief incidents
  relief incidents --limit 50 --json`,
	Args: cobra.NoArgs,
	RunE: runIncidents,
}

func init() {
	rootCmd.AddCommand(incidentsCmd)

	incidentsCmd.Flags().IntVar(&incidentsLimit, "limit", repository.DefaultListLimit, "maximum incidents to list")
	incidentsCmd.Flags().BoolVar(&incidentsJSON, "json", false, "print JSON instead of a table")
}

func runIncidents(cmd *cobra.Command, args []string) error {
	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	incidents, err := db.ListIncidents(cmd.Context(), incidentsLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if incidentsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if incidents == nil {
			incidents = []models.Incident{}
		}
		return enc.Encode(incidents)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSEVERITY\tUPDATED\tLOCATION\tALLOCATION\tTEXT")
	for _, inc := range incidents {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			inc.ID,
			orDash(string(inc.Severity)),
			inc.SortKey().Format(time.RFC3339),
			formatLocation(inc.Coordinates()),
			formatAllocation(inc.Allocation),
			inc.Text,
		)
	}
	return w.Flush()
}

func formatLocation(c *models.Coordinates) string {
	if c == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f,%.4f", c.Latitude, c.Longitude)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
