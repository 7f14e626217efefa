package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// analysesCmd represents the analyses command
var analysesCmd = &cobra.Command{
	Use:   "analyses",
	Short: "List the available analyses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			type entry struct {
				Name        string `json:"name"`
				Description string `json:"description"`
				Default     bool   `json:"default,omitempty"`
			}
			var entries []entry
			for _, name := range analyses.Names() {
				entries = append(entries, entry{name, analyses.Describe(name), name == appConfig.Analysis})
			}
			return printJSON(out, entries)
		}

		for _, name := range analyses.Names() {
			marker := " "
			if name == appConfig.Analysis {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %-10s %s\n", marker, name, analyses.Describe(name))
		}
		return nil
	},
}

func init() {
	analysesCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	RootCmd.AddCommand(analysesCmd)
}
