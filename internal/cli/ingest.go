package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mr1hm/go-relief-pipeline/internal/ingestion"
)

var (
	ingestWorkers int
	ingestTimeout time.Duration
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Feed a JSON-lines file of reports through the pipeline",
	Long: `Ingest reads one report object per line:

  {"reporter": "field_team", "text": "house collapsed", "place_text": "Main St"}
  {"text": "road closed", "lat": 20.7, "lon": 72.7}

Reports already ingested, from this file or an earlier run, are skipped.

Example:
  relief ingest reports.jsonl
  relief ingest reports.jsonl --workers 8 --timeout 5m`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().IntVar(&ingestWorkers, "workers", 0, "number of concurrent workers (default: WORKER_COUNT)")
	ingestCmd.Flags().DurationVar(&ingestTimeout, "timeout", 10*time.Minute, "total timeout for the batch")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), ingestTimeout)
	defer cancel()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	workerCfg := cfg.Worker
	if ingestWorkers > 0 {
		workerCfg.Count = ingestWorkers
	}

	mgr := ingestion.NewManager(workerCfg, a.Store, a.Pipeline)
	stats, err := mgr.IngestFile(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Lines:      %d\n", stats.Lines)
	fmt.Fprintf(out, "Submitted:  %d\n", stats.Submitted)
	fmt.Fprintf(out, "Duplicates: %d\n", stats.Duplicates)
	fmt.Fprintf(out, "Invalid:    %d\n", stats.Invalid)
	fmt.Fprintf(out, "Completed:  %d\n", stats.Completed)
	fmt.Fprintf(out, "Failed:     %d\n", stats.Failed)

	if stats.Failed > 0 {
		return fmt.Errorf("%d reports failed", stats.Failed)
	}
	return nil
}
