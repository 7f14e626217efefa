package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-sleuth/pkg/cfg"
)

// pathsCmd represents the paths command
var pathsCmd = &cobra.Command{
	Use:   "paths <program>",
	Short: "List the execution paths of a program",
	Long: `Enumerates the paths through the CFG of a Lingo program, starting at the
program entry or at a function. A path ends at an exit node or at the first
node it would revisit, so loops appear once.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		graph, err := loadGraph(args[0])
		if err != nil {
			return err
		}

		root := graph.Root()
		if fn, _ := cmd.Flags().GetString("function"); fn != "" {
			var ok bool
			root, ok = graph.FunctionRoot(fn)
			if !ok {
				return fmt.Errorf("function %q not found in %s (have %s)", fn, args[0], strings.Join(graph.Functions(), ", "))
			}
		}
		limit, _ := cmd.Flags().GetInt("limit")

		var paths [][]string
		for p := range cfg.Paths(root) {
			labels := make([]string, len(p))
			for i, n := range p {
				labels[i] = n.Label
			}
			paths = append(paths, labels)
			if limit > 0 && len(paths) >= limit {
				break
			}
		}

		out := cmd.OutOrStdout()
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return printJSON(out, paths)
		}
		for i, p := range paths {
			fmt.Fprintf(out, "%d. %s\n", i+1, strings.Join(p, " -> "))
		}
		return nil
	},
}

func init() {
	pathsCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	pathsCmd.Flags().String("function", "", "Start at the entry of this function")
	pathsCmd.Flags().Int("limit", 0, "Stop after this many paths (0 for all)")
	RootCmd.AddCommand(pathsCmd)
}
