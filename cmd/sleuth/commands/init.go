package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-sleuth/internal/config"
	"github.com/l3aro/go-sleuth/internal/healthcheck"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize sleuth configuration interactively",
	Long: `Guides you through setting up sleuth configuration step by step.
Creates a config file with the default analysis, worklist ordering and output settings.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		accessible, _ := cmd.Flags().GetBool("accessible")
		return runInit(cmd.OutOrStdout(), accessible)
	},
}

func runInit(w io.Writer, accessible bool) error {
	cfg := config.DefaultConfig()

	// === SECTION 1: Analysis ===
	var analysisOptions []huh.Option[string]
	for _, name := range analyses.Names() {
		analysisOptions = append(analysisOptions, huh.NewOption(fmt.Sprintf("%s - %s", name, analyses.Describe(name)), name))
	}
	maxSteps := strconv.Itoa(cfg.MaxSteps)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Analysis").
				Description("Select the analysis run by default").
				Options(analysisOptions...).
				Value(&cfg.Analysis),
			huh.NewConfirm().
				Title("Worklist order").
				Description("Process the worklist in reverse post-order?").
				Affirmative("Yes, sort by RPO").
				Negative("No, insertion order").
				Value(&cfg.SortWorklist),
			huh.NewInput().
				Title("Step limit").
				Description("Abort a run after this many steps (0 for unbounded)").
				Placeholder(maxSteps).
				Validate(func(s string) error {
					if n, err := strconv.Atoi(s); err != nil || n < 0 {
						return fmt.Errorf("enter a non-negative number")
					}
					return nil
				}).
				Value(&maxSteps),
		),
		// === SECTION 2: Output ===
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Output encoding").
				Options(
					huh.NewOption("Text", "text"),
					huh.NewOption("JSON", "json"),
					huh.NewOption("MessagePack", "msgpack"),
				).
				Value(&cfg.Encoding),
			huh.NewSelect[string]().
				Title("Values to print").
				Options(
					huh.NewOption("IN and OUT", "both"),
					huh.NewOption("IN only", "in"),
					huh.NewOption("OUT only", "out"),
				).
				Value(&cfg.Direction),
			huh.NewConfirm().
				Title("Metrics").
				Description("Print session metrics after each run?").
				Value(&cfg.Metrics),
		),
	).WithAccessible(accessible)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	cfg.MaxSteps, _ = strconv.Atoi(maxSteps)

	// === SECTION 3: Config Location ===
	var saveLocationChoice string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Global (~/.sleuth/config.yaml)", "global"),
					huh.NewOption("Project (./.sleuth/config.yaml)", "project"),
				).
				Value(&saveLocationChoice),
		),
	).WithAccessible(accessible)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	configPath := config.ProjectConfigFilePath()
	if saveLocationChoice == "global" {
		configPath = config.GlobalConfigFilePath()
	}

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		).WithAccessible(accessible)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Fprintln(w, "Cancelled.")
			return nil
		}
	}

	// Validate config before saving
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	fmt.Fprintln(w, "\n=== Configuration Preview ===")
	fmt.Fprintf(w, "Config path: %s\n", configPath)
	printConfig(w, cfg)
	fmt.Fprintln(w, "================================")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Fprintf(w, "Configuration saved to: %s\n", configPath)

	// === SECTION 4: Health Check ===
	fmt.Fprintln(w, "\n=== Running Health Check ===")

	loadedCfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("loading saved config: %w", err)
	}

	result, err := healthcheck.Check(loadedCfg, analyses, configPath, configPath)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Fprintf(w, "\nConfig Scope: %s\n", result.SavedScope)
	if result.SavedScope == "global" {
		fmt.Fprintf(w, "Config Path: %s\n", configPath)
	} else {
		absPath, _ := filepath.Abs(configPath)
		fmt.Fprintf(w, "Config Path: %s\n", absPath)
	}
	printAnalysisStatus(w, result.Analysis)

	return nil
}

func printConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "Analysis: %s\n", cfg.Analysis)
	fmt.Fprintf(w, "Sort worklist: %t\n", cfg.SortWorklist)
	fmt.Fprintf(w, "Max steps: %d\n", cfg.MaxSteps)
	fmt.Fprintf(w, "Encoding: %s\n", cfg.Encoding)
	fmt.Fprintf(w, "Direction: %s\n", cfg.Direction)
	fmt.Fprintf(w, "Metrics: %t\n", cfg.Metrics)
}

func init() {
	initCmd.Flags().Bool("accessible", false, "Use plain prompts instead of the terminal UI")
	RootCmd.AddCommand(initCmd)
}
