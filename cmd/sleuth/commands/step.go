package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-sleuth/pkg/analysis"
	"github.com/l3aro/go-sleuth/pkg/cfg"
	"github.com/l3aro/go-sleuth/pkg/session"
	"github.com/l3aro/go-sleuth/pkg/signal"
)

const (
	choiceQuery = "query"
	choiceSort  = "sort"
	choiceQuit  = "quit"
	stepPrefix  = "step:"
	showPrefix  = "show:"
)

// stepCmd represents the step command
var stepCmd = &cobra.Command{
	Use:   "step <program>",
	Short: "Step through an analysis interactively",
	Long: `Builds the CFG of a Lingo program, seeds the selected analysis and lets you
pick which worklist item to process or show next, query any node, and switch worklist
sorting on and off until the analysis reaches its fixpoint.`,
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
		accessible, _ := cmd.Flags().GetBool("accessible")

		out := cmd.OutOrStdout()
		events := signal.NewEvents()
		watchSession(events, out, opts.encoding)

		s := session.New(events, session.WithLogger(logger), session.WithSorting(opts.sort))
		defer s.Close()
		if err := s.Setup(graph, a); err != nil {
			return err
		}

		for {
			var choice string
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewSelect[string]().
						Title(stepperTitle(s)).
						Description(fmt.Sprintf("Sorting: %s", onOff(s.Sorting()))).
						Options(stepperOptions(s)...).
						Value(&choice),
				),
			).WithAccessible(accessible)
			if err := form.Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				return fmt.Errorf("interactive prompt failed: %w", err)
			}

			if choice == choiceQuery {
				label, dir, err := promptQuery(s, accessible)
				if err != nil {
					return err
				}
				choice = queryChoice(label, dir)
			}

			done, err := applyChoice(events, s, choice, opts.encoding)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			if done {
				return nil
			}
		}
	},
}

func stepperTitle(s *session.Session) string {
	if s.State() == session.Complete {
		return "Fixpoint reached"
	}
	return fmt.Sprintf("Worklist (%d pending)", len(s.Labels()))
}

// stepperOptions offers every pending item followed by the session actions.
func stepperOptions(s *session.Session) []huh.Option[string] {
	var opts []huh.Option[string]
	for _, label := range s.Labels() {
		opts = append(opts,
			huh.NewOption("Process "+label, stepPrefix+label),
			huh.NewOption("Show "+label, showPrefix+label),
		)
	}
	opts = append(opts,
		huh.NewOption("Query a node", choiceQuery),
		huh.NewOption(fmt.Sprintf("Turn sorting %s", onOff(!s.Sorting())), choiceSort),
		huh.NewOption("Quit", choiceQuit),
	)
	return opts
}

func promptQuery(s *session.Session, accessible bool) (string, analysis.Direction, error) {
	var label string
	dir := string(analysis.DirectionBoth)

	var nodes []huh.Option[string]
	for _, n := range s.Graph().List() {
		nodes = append(nodes, huh.NewOption(n.Label, n.Label))
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Node").
				Options(nodes...).
				Value(&label),
			huh.NewSelect[string]().
				Title("Direction").
				Options(
					huh.NewOption("IN and OUT", string(analysis.DirectionBoth)),
					huh.NewOption("IN", string(analysis.DirectionIn)),
					huh.NewOption("OUT", string(analysis.DirectionOut)),
				).
				Value(&dir),
		),
	).WithAccessible(accessible)
	if err := form.Run(); err != nil {
		return "", "", fmt.Errorf("interactive prompt failed: %w", err)
	}
	return label, analysis.Direction(dir), nil
}

func queryChoice(label string, dir analysis.Direction) string {
	return choiceQuery + ":" + string(dir) + ":" + label
}

// applyChoice sends the chosen action over the session's channels and reports
// whether the stepper should exit.
func applyChoice(events *signal.Events, s *session.Session, choice string, enc analysis.Encoding) (bool, error) {
	switch {
	case choice == choiceQuit:
		return true, nil
	case choice == choiceSort:
		return false, events.FireSetSortingEnabled(!s.Sorting())
	case strings.HasPrefix(choice, stepPrefix):
		return false, events.FireStep(strings.TrimPrefix(choice, stepPrefix))
	case strings.HasPrefix(choice, showPrefix):
		return false, events.FireSelectItem(strings.TrimPrefix(choice, showPrefix))
	case strings.HasPrefix(choice, choiceQuery+":"):
		rest := strings.TrimPrefix(choice, choiceQuery+":")
		dir, label, ok := strings.Cut(rest, ":")
		if !ok {
			return false, fmt.Errorf("malformed query choice %q", choice)
		}
		return false, events.FireQueryNode(label, analysis.Direction(dir), enc)
	default:
		return false, fmt.Errorf("unknown choice %q", choice)
	}
}

// watchSession prints the session's outbound notifications. Binary
// encodings are shown as JSON.
func watchSession(events *signal.Events, w io.Writer, enc analysis.Encoding) {
	if enc == analysis.EncodingMsgpack {
		enc = analysis.EncodingJSON
	}
	events.OnNodeSelected(func(n *cfg.CommandNode) {
		fmt.Fprintf(w, "Selected %s\n", n.Label)
	})
	events.OnWorklistUpdated(func(labels []string) {
		fmt.Fprintf(w, "Worklist: [%s]\n", strings.Join(labels, ", "))
	})
	events.OnNodeInfoReady(func(info analysis.NodeInfo) {
		data, err := analysis.Encode(info, enc)
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			return
		}
		fmt.Fprintln(w, string(data))
	})
	events.OnClientException(func(err error) {
		fmt.Fprintf(w, "Analysis failed: %v\n", err)
	})
	events.OnAnalysisComplete(func() {
		fmt.Fprintln(w, "Fixpoint reached.")
	})
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func init() {
	stepCmd.Flags().StringP("analysis", "a", "", "Analysis to run (see 'sleuth analyses')")
	stepCmd.Flags().Bool("sort", false, "Start with the worklist ordered by reverse post-order")
	stepCmd.Flags().StringP("encoding", "e", "", "Encoding of query results (text or json)")
	stepCmd.Flags().Bool("accessible", false, "Use plain prompts instead of the terminal UI")
	RootCmd.AddCommand(stepCmd)
}
