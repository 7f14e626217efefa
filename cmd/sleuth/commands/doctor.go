package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-sleuth/internal/config"
	"github.com/l3aro/go-sleuth/internal/healthcheck"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on configuration and the configured analysis",
	Long: `Shows which configuration file is in effect and runs the configured analysis
over a built-in sample program to check that it reaches a fixpoint.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		if configPath == "" {
			configPath = effectiveConfigPath()
		}

		result, err := healthcheck.Check(appConfig, analyses, "", configPath)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		displayDoctorResult(cmd.OutOrStdout(), result)

		if result.Analysis.Status != "ready" {
			return fmt.Errorf("health check failed: analysis %q is %s", result.Analysis.Name, result.Analysis.Status)
		}
		return nil
	},
}

// effectiveConfigPath returns the highest-priority config file that exists.
func effectiveConfigPath() string {
	for _, path := range []string{config.ProjectConfigFilePath(), config.GlobalConfigFilePath()} {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func displayDoctorResult(w io.Writer, result *healthcheck.HealthCheckResult) {
	if result.EffectivePath == "" {
		fmt.Fprintln(w, "Using config: defaults (run 'sleuth init' to create a config file)")
	} else {
		fmt.Fprintf(w, "Using config: %s (%s)\n", result.EffectivePath, result.EffectiveScope)
	}
	fmt.Fprintf(w, "Sort worklist: %t\n\n", result.Sorting)
	printAnalysisStatus(w, result.Analysis)
}

func printAnalysisStatus(w io.Writer, status healthcheck.AnalysisStatus) {
	fmt.Fprintln(w, "Analysis:")
	fmt.Fprintf(w, "  Name: %s\n", status.Name)
	if status.Nodes > 0 {
		fmt.Fprintf(w, "  Sample run: %d steps over %d nodes\n", status.Steps, status.Nodes)
	}
	fmt.Fprintf(w, "  Status: %s %s\n", formatStatusIcon(status.Status), status.Status)
	if status.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", status.Error)
	}
}

func formatStatusIcon(status string) string {
	switch status {
	case "ready":
		return "✓"
	case "incomplete":
		return "◐"
	case "error":
		return "✗"
	default:
		return "?"
	}
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}
