// Package commands provides the CLI commands for the sleuth tool.
package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-sleuth/internal/config"
	"github.com/l3aro/go-sleuth/internal/log"
	"github.com/l3aro/go-sleuth/pkg/cfg"
	"github.com/l3aro/go-sleuth/pkg/lingo"
)

var (
	// appConfig is loaded before every command runs
	appConfig = config.DefaultConfig()
	// logger is configured from appConfig and the persistent flags
	logger log.Logger = log.Default()
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "sleuth",
	Short: "sleuth - Step through dataflow analyses on Lingo programs",
	Long: `sleuth builds control flow graphs for Lingo programs and drives dataflow
analyses over them one worklist step at a time.

Commands:
  cfg         Print the control flow graph of a program
  paths       List the execution paths of a program
  analyze     Run an analysis to its fixpoint and print every node
  step        Step through an analysis interactively
  analyses    List the available analyses
  init        Create a configuration file interactively
  doctor      Check the configuration and the configured analysis

Use "sleuth [command] --help" for more information about a command.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		loaded, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cmd.Flags().Changed("log-level") {
			loaded.LogLevel, _ = cmd.Flags().GetString("log-level")
		}
		if cmd.Flags().Changed("json-logs") {
			loaded.JSONLogs, _ = cmd.Flags().GetBool("json-logs")
		}
		if cmd.Flags().Changed("verbose") {
			loaded.Verbose, _ = cmd.Flags().GetBool("verbose")
		}
		if err := loaded.Validate(); err != nil {
			return err
		}

		appConfig = loaded
		logger, err = newLogger(loaded, cmd.ErrOrStderr())
		return err
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Config file path (default: project, then global)")
	RootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	RootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON")
	RootCmd.PersistentFlags().Bool("verbose", false, "Verbose logging (same as --log-level debug)")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func newLogger(c *config.Config, stderr io.Writer) (log.Logger, error) {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	if c.Verbose {
		level = log.DebugLevel
	}
	return log.New(log.LoggerConfig{
		Level:      level,
		JSONOutput: c.JSONLogs,
		Stderr:     stderr,
	}), nil
}

// loadGraph reads a program document and builds its CFG.
func loadGraph(path string) (*cfg.Graph, error) {
	prog, err := lingo.LoadFile(path)
	if err != nil {
		return nil, err
	}
	graph, err := cfg.BuildProgram(prog)
	if err != nil {
		return nil, fmt.Errorf("building control flow graph: %w", err)
	}
	logger.Debug("Built control flow graph", "path", path, "nodes", graph.Len(), "functions", len(graph.Functions()))
	return graph, nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
