package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-sleuth/pkg/cfg"
)

type cfgNodeJSON struct {
	ID           int    `json:"id"`
	Label        string `json:"label"`
	Successors   []int  `json:"successors"`
	Predecessors []int  `json:"predecessors"`
	Terminal     bool   `json:"terminal,omitempty"`
}

type cfgEdgeJSON struct {
	Source      int  `json:"source"`
	Destination *int `json:"destination"`
}

type cfgJSON struct {
	Root      int            `json:"root"`
	Functions map[string]int `json:"functions,omitempty"`
	Nodes     []cfgNodeJSON  `json:"nodes"`
	Edges     []cfgEdgeJSON  `json:"edges"`
}

// cfgCmd represents the cfg command
var cfgCmd = &cobra.Command{
	Use:   "cfg <program>",
	Short: "Print the control flow graph of a program",
	Long: `Builds the Control Flow Graph (CFG) of a Lingo program document, including
the bodies of its functions. Calls are split into CALL and RET nodes.
Outputs a node and edge listing, JSON, or Graphviz DOT.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		graph, err := loadGraph(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		jsonOutput, _ := cmd.Flags().GetBool("json")
		dotOutput, _ := cmd.Flags().GetBool("dot")

		switch {
		case dotOutput:
			return cfg.WriteDot(out, graph.Edges())
		case jsonOutput:
			return printJSON(out, graphJSON(graph))
		default:
			printGraph(out, args[0], graph)
			return nil
		}
	},
}

func graphJSON(graph *cfg.Graph) cfgJSON {
	ids := func(src []cfg.NodeID) []int {
		out := make([]int, len(src))
		for i, id := range src {
			out[i] = int(id)
		}
		return out
	}

	res := cfgJSON{Root: int(graph.Root().ID)}
	for _, name := range graph.Functions() {
		if res.Functions == nil {
			res.Functions = make(map[string]int)
		}
		root, _ := graph.FunctionRoot(name)
		res.Functions[name] = int(root.ID)
	}
	for _, n := range graph.List() {
		res.Nodes = append(res.Nodes, cfgNodeJSON{
			ID:           int(n.ID),
			Label:        n.Label,
			Successors:   ids(n.SuccessorIDs()),
			Predecessors: ids(n.PredecessorIDs()),
			Terminal:     n.IsTerminal(),
		})
	}
	for _, e := range graph.Edges() {
		edge := cfgEdgeJSON{Source: int(e.Source.ID)}
		if e.Destination != nil {
			dst := int(e.Destination.ID)
			edge.Destination = &dst
		}
		res.Edges = append(res.Edges, edge)
	}
	return res
}

// printGraph prints the CFG in human-readable format.
func printGraph(w io.Writer, path string, graph *cfg.Graph) {
	fmt.Fprintf(w, "=== CFG for program: %s ===\n", path)
	fmt.Fprintf(w, "Entry: %s\n", graph.Root().Label)
	for _, name := range graph.Functions() {
		root, _ := graph.FunctionRoot(name)
		fmt.Fprintf(w, "Function %s: %s\n", name, root.Label)
	}

	fmt.Fprintf(w, "\nNodes (%d):\n", graph.Len())
	for _, n := range graph.List() {
		suffix := ""
		if n.IsTerminal() {
			suffix = "  [exit]"
		}
		fmt.Fprintf(w, "  %s%s\n", n.Label, suffix)
	}

	edges := graph.Edges()
	fmt.Fprintf(w, "\nEdges (%d):\n", len(edges))
	for _, e := range edges {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

func init() {
	cfgCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	cfgCmd.Flags().Bool("dot", false, "Output as Graphviz DOT")
	cfgCmd.MarkFlagsMutuallyExclusive("json", "dot")
	RootCmd.AddCommand(cfgCmd)
}
