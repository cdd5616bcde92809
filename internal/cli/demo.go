package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mr1hm/go-relief-pipeline/internal/models"
)

const (
	demoReporter    = "demo_user"
	defaultDemoText = "There is a large fire and people trapped at Demo Street"
)

var (
	demoText   string
	demoPlace  string
	demoCoords []float64
)

// demoCmd represents the demo command
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run one report through the whole pipeline",
	Long: `Demo submits a single report, lets it travel through every stage and
prints the classification and the proposed allocation.

Example:
  relief demo
  relief demo --text "minor injury, need help" --at 20.55,72.58
  relief demo --text "smoke" --place "Main St" --offline`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().StringVar(&demoText, "text", defaultDemoText, "report text")
	demoCmd.Flags().StringVar(&demoPlace, "place", "", "place name to geocode instead of coordinates")
	demoCmd.Flags().Float64SliceVar(&demoCoords, "at", []float64{20.6, 72.6}, "report coordinates as lat,lon")
}

func runDemo(cmd *cobra.Command, args []string) error {
	r := models.Report{
		Reporter:  demoReporter,
		Text:      demoText,
		PlaceText: demoPlace,
	}
	if demoPlace == "" {
		if len(demoCoords) != 2 {
			return fmt.Errorf("--at takes exactly lat,lon")
		}
		r.Lat, r.Lon = &demoCoords[0], &demoCoords[1]
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	env, err := a.Pipeline.Submit(ctx, r)
	if err != nil {
		return fmt.Errorf("error submitting report: %w", err)
	}

	inc, err := a.Store.GetIncident(ctx, env.IncidentID())
	if err != nil {
		return fmt.Errorf("error loading incident: %w", err)
	}
	if inc == nil {
		return fmt.Errorf("incident %s was not stored", env.IncidentID())
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Demo: incident %s classified as %s\n", inc.ID, inc.Severity)
	if inc.Severity.NeedsResources() {
		fmt.Fprintf(out, "Demo: proposed allocation -> %s\n", formatAllocation(inc.Allocation))
	} else {
		fmt.Fprintln(out, "Demo: no allocation required for low severity")
	}
	return nil
}
