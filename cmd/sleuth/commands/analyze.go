package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-sleuth/pkg/analyses/reaching"
	"github.com/l3aro/go-sleuth/pkg/analysis"
	"github.com/l3aro/go-sleuth/pkg/cfg"
	"github.com/l3aro/go-sleuth/pkg/metrics"
	"github.com/l3aro/go-sleuth/pkg/session"
	"github.com/l3aro/go-sleuth/pkg/signal"
)

// runOptions are the analysis settings after applying flags over the config
type runOptions struct {
	analysis  string
	sort      bool
	encoding  analysis.Encoding
	direction analysis.Direction
	maxSteps  int
	metrics   bool
}

func resolveRunOptions(cmd *cobra.Command) (runOptions, error) {
	opts := runOptions{
		analysis: appConfig.Analysis,
		sort:     appConfig.SortWorklist,
		maxSteps: appConfig.MaxSteps,
		metrics:  appConfig.Metrics,
	}
	rawEncoding, rawDirection := appConfig.Encoding, appConfig.Direction

	flags := cmd.Flags()
	if flags.Changed("analysis") {
		opts.analysis, _ = flags.GetString("analysis")
	}
	if flags.Changed("sort") {
		opts.sort, _ = flags.GetBool("sort")
	}
	if flags.Changed("max-steps") {
		opts.maxSteps, _ = flags.GetInt("max-steps")
	}
	if flags.Changed("metrics") {
		opts.metrics, _ = flags.GetBool("metrics")
	}
	if flags.Changed("encoding") {
		rawEncoding, _ = flags.GetString("encoding")
	}
	if flags.Changed("direction") {
		rawDirection, _ = flags.GetString("direction")
	}

	var err error
	if opts.encoding, err = analysis.ParseEncoding(rawEncoding); err != nil {
		return opts, err
	}
	if opts.direction, err = analysis.ParseDirection(rawDirection); err != nil {
		return opts, err
	}
	return opts, nil
}

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <program>",
	Short: "Run an analysis to its fixpoint and print every node",
	Long: `Builds the CFG of a Lingo program, runs the selected analysis until its
worklist is empty and prints the IN and OUT values of every node in id order.

Output encodings:
  text     Node label followed by IN and OUT lines
  json     One JSON object per node
  msgpack  A stream of MessagePack maps, one per node`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := resolveRunOptions(cmd)
		if err != nil {
			return err
		}
		graph, err := loadGraph(args[0])
		if err != nil {
			return err
		}
		a, err := analyses.New(opts.analysis)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		events := signal.NewEvents()

		var recorder *metrics.Recorder
		if opts.metrics {
			recorder = metrics.NewRecorder(prometheus.NewRegistry())
			defer recorder.Attach(events)()
		}

		if trace, _ := cmd.Flags().GetBool("trace"); trace {
			attachTrace(events, cmd.ErrOrStderr())
		}

		var failures []error
		events.OnClientException(func(err error) { failures = append(failures, err) })

		s := session.New(events, session.WithLogger(logger), session.WithSorting(opts.sort))
		defer s.Close()

		if err := s.Setup(graph, a); err != nil {
			return err
		}
		steps, err := s.Run(cmd.Context(), opts.maxSteps)
		if err != nil {
			return fmt.Errorf("after %d steps: %w", steps, err)
		}
		logger.Info("Fixpoint reached", "analysis", opts.analysis, "steps", steps, "nodes", graph.Len())

		if err := printNodeInfos(out, s, graph, opts); err != nil {
			return err
		}

		if chains, _ := cmd.Flags().GetBool("chains"); chains {
			r, ok := a.(*reaching.Analysis)
			if !ok {
				return fmt.Errorf("--chains requires the %s analysis", reaching.Name)
			}
			fmt.Fprintln(out, "\nDef-use chains:")
			for _, c := range r.Chains() {
				fmt.Fprintf(out, "  %s\n", c)
			}
		}

		if recorder != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "\n=== Metrics ===")
			if err := recorder.WriteSummary(cmd.ErrOrStderr()); err != nil {
				return err
			}
		}

		if len(failures) > 0 {
			return fmt.Errorf("analysis reported %d failure(s): %w", len(failures), errors.Join(failures...))
		}
		return nil
	},
}

// printNodeInfos queries every node in id order and writes it in the chosen encoding.
func printNodeInfos(w io.Writer, s *session.Session, graph *cfg.Graph, opts runOptions) error {
	for i, n := range graph.List() {
		info, err := s.QueryWith(n.Label, opts.direction, opts.encoding)
		if err != nil {
			return err
		}
		data, err := analysis.Encode(info, opts.encoding)
		if err != nil {
			return err
		}

		switch opts.encoding {
		case analysis.EncodingMsgpack:
			_, err = w.Write(data)
		case analysis.EncodingJSON:
			_, err = fmt.Fprintln(w, string(data))
		default:
			if i > 0 {
				fmt.Fprintln(w)
			}
			_, err = fmt.Fprintln(w, string(data))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// attachTrace prints every selected node and worklist update.
func attachTrace(events *signal.Events, w io.Writer) {
	step := 0
	events.OnNodeSelected(func(n *cfg.CommandNode) {
		step++
		fmt.Fprintf(w, "step %d: %s\n", step, n.Label)
	})
	events.OnWorklistUpdated(func(labels []string) {
		fmt.Fprintf(w, "  worklist: %q\n", labels)
	})
	events.OnAnalysisComplete(func() {
		fmt.Fprintln(w, "  fixpoint reached")
	})
}

func init() {
	analyzeCmd.Flags().StringP("analysis", "a", "", "Analysis to run (see 'sleuth analyses')")
	analyzeCmd.Flags().Bool("sort", false, "Order the worklist by reverse post-order")
	analyzeCmd.Flags().StringP("encoding", "e", "", "Output encoding (text, json, msgpack)")
	analyzeCmd.Flags().StringP("direction", "d", "", "Values to print (in, out, both)")
	analyzeCmd.Flags().Int("max-steps", 0, "Abort after this many steps (0 for unbounded)")
	analyzeCmd.Flags().Bool("metrics", false, "Print session metrics to stderr")
	analyzeCmd.Flags().Bool("trace", false, "Print every step and worklist update to stderr")
	analyzeCmd.Flags().Bool("chains", false, "Also print def-use chains (reaching analysis only)")
	RootCmd.AddCommand(analyzeCmd)
}
