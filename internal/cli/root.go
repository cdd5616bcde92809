package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mr1hm/go-relief-pipeline/internal/app"
	"github.com/mr1hm/go-relief-pipeline/internal/config"
	"github.com/mr1hm/go-relief-pipeline/internal/logging"
	"github.com/mr1hm/go-relief-pipeline/internal/models"
)

var (
	dbPath   string
	logLevel string
	offline  bool

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "relief",
	Short: "Relief - incident intake, triage and resource allocation",
	Long: `Relief runs free-text disaster reports through intake, triage,
coordination and resource allocation, persisting every step.

Configuration is read from the environment (and a .env file when present);
flags override it.`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "relief v0.1.0")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default: DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default: LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "skip the network geocoder and use fallback coordinates")

	rootCmd.AddCommand(versionCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	c, err := config.Load()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if dbPath != "" {
		c.DB.Path = dbPath
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	logging.Setup(c.Logging.Level, c.Logging.Format)

	cfg = c
	return nil
}

func openApp() (*app.App, error) {
	return app.New(cfg, offline)
}

// formatAllocation renders an allocation with types in a stable order.
func formatAllocation(a models.Allocation) string {
	if len(a) == 0 {
		return "{}"
	}
	types := make([]string, 0, len(a))
	for t := range a {
		types = append(types, t)
	}
	sort.Strings(types)

	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, fmt.Sprintf("%s: %s", t, strings.Join(a[t], ", ")))
	}
	return "{" + strings.Join(parts, "; ") + "}"
}
