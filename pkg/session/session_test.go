package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-sleuth/internal/log"
	"github.com/l3aro/go-sleuth/pkg/analysis"
	"github.com/l3aro/go-sleuth/pkg/cfg"
	"github.com/l3aro/go-sleuth/pkg/lattice"
	"github.com/l3aro/go-sleuth/pkg/lingo"
	"github.com/l3aro/go-sleuth/pkg/signal"
)

// scripted is an analysis whose operations are supplied by the test.
// Unset operations seed the entry, forward to successors once and answer TOP.
type scripted struct {
	prepare func(entry *cfg.CommandNode, nodes map[cfg.NodeID]*cfg.CommandNode) ([]analysis.WorklistInfo, error)
	process func(item analysis.WorklistInfo) ([]analysis.WorklistInfo, error)
	query   func(node *cfg.CommandNode) (analysis.NodeInfo, error)
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Prepare(entry *cfg.CommandNode, nodes map[cfg.NodeID]*cfg.CommandNode) ([]analysis.WorklistInfo, error) {
	if s.prepare != nil {
		return s.prepare(entry, nodes)
	}
	return []analysis.WorklistInfo{{Node: entry}}, nil
}

func (s *scripted) Process(item analysis.WorklistInfo) ([]analysis.WorklistInfo, error) {
	if s.process != nil {
		return s.process(item)
	}
	return successors(item.Node), nil
}

func (s *scripted) Query(node *cfg.CommandNode) (analysis.NodeInfo, error) {
	if s.query != nil {
		return s.query(node)
	}
	return analysis.TopInfo(node), nil
}

func successors(n *cfg.CommandNode) []analysis.WorklistInfo {
	var items []analysis.WorklistInfo
	for _, s := range n.Successors() {
		items = append(items, analysis.WorklistInfo{Node: s, Rank: int(s.ID)})
	}
	return items
}

func straightGraph(t *testing.T) *cfg.Graph {
	t.Helper()
	g, err := cfg.Build(lingo.Seq(
		lingo.NewAssignment(lingo.Var("a"), lingo.Num(1)),
		lingo.NewAssignment(lingo.Var("b"), lingo.Num(2)),
		lingo.NewAssignment(lingo.Var("c"), lingo.Num(3)),
	))
	require.NoError(t, err)
	return g
}

func newSession(t *testing.T, opts ...Option) (*Session, *signal.Events) {
	t.Helper()
	events := signal.NewEvents()
	s := New(events, append([]Option{WithLogger(log.Discard())}, opts...)...)
	t.Cleanup(s.Close)
	return s, events
}

func programPath(name string) string {
	return filepath.Join("..", "..", "testdata", "programs", name)
}

func TestSession_RunToFixpoint(t *testing.T) {
	s, events := newSession(t)

	var updates [][]string
	var selected []string
	completed := 0
	events.OnWorklistUpdated(func(labels []string) { updates = append(updates, labels) })
	events.OnNodeSelected(func(n *cfg.CommandNode) { selected = append(selected, n.Label) })
	events.OnAnalysisComplete(func() { completed++ })

	assert.Equal(t, Uninitialized, s.State())
	require.NoError(t, s.Setup(straightGraph(t), &scripted{}))
	assert.Equal(t, Analyzing, s.State())
	assert.Equal(t, []string{"0: a := 1"}, s.Labels())

	steps, err := s.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, steps)
	assert.Equal(t, Complete, s.State())
	assert.Equal(t, 1, completed)
	assert.Equal(t, []string{"0: a := 1", "1: b := 2", "2: c := 3"}, selected)
	assert.Equal(t, [][]string{
		{"0: a := 1"},
		{"1: b := 2"},
		{"2: c := 3"},
		{},
	}, updates)

	err = s.StepNext()
	assert.ErrorIs(t, err, ErrNotAnalyzing)
	assert.ErrorIs(t, s.Setup(straightGraph(t), &scripted{}), ErrAlreadySetup)
	assert.NotEmpty(t, s.ID())
}

func TestSession_WorklistDeduplicatesByNode(t *testing.T) {
	g := straightGraph(t)
	a := &scripted{
		prepare: func(entry *cfg.CommandNode, nodes map[cfg.NodeID]*cfg.CommandNode) ([]analysis.WorklistInfo, error) {
			n1, _ := g.Node(1)
			return []analysis.WorklistInfo{{Node: entry}, {Node: n1}, {Node: entry}, {Node: n1}}, nil
		},
		process: func(item analysis.WorklistInfo) ([]analysis.WorklistInfo, error) {
			n1, _ := g.Node(1)
			return []analysis.WorklistInfo{{Node: n1}, {Node: n1}}, nil
		},
	}
	s, _ := newSession(t)
	require.NoError(t, s.Setup(g, a))
	assert.Equal(t, []string{"0: a := 1", "1: b := 2"}, s.Labels())

	require.NoError(t, s.Step("0: a := 1"))
	assert.Equal(t, []string{"1: b := 2"}, s.Labels(), "pending node is not added twice")
}

func TestSession_SortingOrdersByRank(t *testing.T) {
	g := straightGraph(t)
	reversed := &scripted{
		prepare: func(entry *cfg.CommandNode, nodes map[cfg.NodeID]*cfg.CommandNode) ([]analysis.WorklistInfo, error) {
			var items []analysis.WorklistInfo
			for _, n := range g.List() {
				items = append(items, analysis.WorklistInfo{Node: n, Rank: -int(n.ID)})
			}
			return items, nil
		},
		process: func(analysis.WorklistInfo) ([]analysis.WorklistInfo, error) { return nil, nil },
	}

	s, events := newSession(t)
	require.NoError(t, s.Setup(g, reversed))
	assert.Equal(t, []string{"0: a := 1", "1: b := 2", "2: c := 3"}, s.Labels(), "insertion order by default")

	var published []string
	completed := false
	events.OnWorklistUpdated(func(labels []string) { published = labels })
	events.OnAnalysisComplete(func() { completed = true })

	require.NoError(t, events.FireSetSortingEnabled(true))
	assert.True(t, s.Sorting())
	assert.Equal(t, []string{"2: c := 3", "1: b := 2", "0: a := 1"}, published)
	assert.Equal(t, published, s.Labels())

	require.NoError(t, s.Step("2: c := 3"))
	require.NoError(t, s.Step("1: b := 2"))
	require.NoError(t, s.Step("0: a := 1"))
	assert.True(t, completed)

	completed = false
	require.NoError(t, s.SetSortingEnabled(false))
	assert.Empty(t, published)
	assert.False(t, completed, "toggling sorting never signals completion")
	assert.Equal(t, Complete, s.State())
}

func TestSession_CustomOrderKey(t *testing.T) {
	g := straightGraph(t)
	a := &scripted{
		prepare: func(entry *cfg.CommandNode, nodes map[cfg.NodeID]*cfg.CommandNode) ([]analysis.WorklistInfo, error) {
			var items []analysis.WorklistInfo
			for _, n := range g.List() {
				items = append(items, analysis.WorklistInfo{Node: n})
			}
			return items, nil
		},
	}
	s, _ := newSession(t, WithSorting(true), WithOrderKey(func(w analysis.WorklistInfo) int {
		return -int(w.Node.ID)
	}))
	require.NoError(t, s.Setup(g, a))
	assert.Equal(t, []string{"2: c := 3", "1: b := 2", "0: a := 1"}, s.Labels())
}

func TestSession_ClientFailuresAreIsolated(t *testing.T) {
	tests := []struct {
		name    string
		process func(item analysis.WorklistInfo) ([]analysis.WorklistInfo, error)
		panics  bool
	}{
		{
			name: "error",
			process: func(item analysis.WorklistInfo) ([]analysis.WorklistInfo, error) {
				if item.Node.ID == 0 {
					return nil, errors.New("cannot handle entry")
				}
				return successors(item.Node), nil
			},
		},
		{
			name: "panic",
			process: func(item analysis.WorklistInfo) ([]analysis.WorklistInfo, error) {
				if item.Node.ID == 0 {
					panic("boom")
				}
				return successors(item.Node), nil
			},
			panics: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := straightGraph(t)
			a := &scripted{
				prepare: func(entry *cfg.CommandNode, nodes map[cfg.NodeID]*cfg.CommandNode) ([]analysis.WorklistInfo, error) {
					n1, _ := g.Node(1)
					return []analysis.WorklistInfo{{Node: entry}, {Node: n1}}, nil
				},
				process: tt.process,
			}
			s, events := newSession(t)

			var failures []error
			events.OnClientException(func(err error) { failures = append(failures, err) })

			require.NoError(t, s.Setup(g, a))
			require.NoError(t, s.Step("0: a := 1"), "client failures are not returned to the stepper")

			require.Len(t, failures, 1)
			var cerr *analysis.ClientError
			require.ErrorAs(t, failures[0], &cerr)
			assert.Equal(t, analysis.OpProcess, cerr.Op)
			assert.Equal(t, "scripted", cerr.Analysis)
			assert.ErrorIs(t, failures[0], analysis.ErrClientAnalysis)
			if tt.panics {
				var perr *analysis.PanicError
				assert.ErrorAs(t, failures[0], &perr)
			}

			assert.Equal(t, Analyzing, s.State())
			assert.Equal(t, []string{"1: b := 2"}, s.Labels())

			_, err := s.Run(context.Background(), 10)
			require.NoError(t, err)
			assert.Equal(t, Complete, s.State())
		})
	}
}

func TestSession_FailedPrepareCompletes(t *testing.T) {
	a := &scripted{
		prepare: func(*cfg.CommandNode, map[cfg.NodeID]*cfg.CommandNode) ([]analysis.WorklistInfo, error) {
			return nil, errors.New("no seed")
		},
	}
	s, events := newSession(t)

	var failure error
	completed := false
	events.OnClientException(func(err error) { failure = err })
	events.OnAnalysisComplete(func() { completed = true })

	require.NoError(t, s.Setup(straightGraph(t), a))
	var cerr *analysis.ClientError
	require.ErrorAs(t, failure, &cerr)
	assert.Equal(t, analysis.OpPrepare, cerr.Op)
	assert.True(t, completed)
	assert.Equal(t, Complete, s.State())
}

func TestSession_StepLookupErrors(t *testing.T) {
	s, _ := newSession(t)

	err := s.Step("0: a := 1")
	assert.ErrorIs(t, err, ErrNotAnalyzing)

	_, err = s.Query("0")
	assert.ErrorIs(t, err, ErrLookup, "nothing to query before setup")

	require.NoError(t, s.Setup(straightGraph(t), &scripted{}))

	err = s.Step("nope")
	var lerr *LookupError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "nope", lerr.Ref)

	err = s.Step("2: c := 3")
	assert.ErrorIs(t, err, ErrLookup, "known node that is not pending")
	assert.Equal(t, []string{"0: a := 1"}, s.Labels(), "failed step leaves the worklist alone")

	require.NoError(t, s.Step("n0"), "node ids resolve too")
	assert.Equal(t, 1, s.Steps())
}

func TestSession_ChannelDrivenStep(t *testing.T) {
	s, events := newSession(t)
	require.NoError(t, s.Setup(straightGraph(t), &scripted{}))

	err := events.FireStep("missing")
	assert.ErrorIs(t, err, ErrLookup, "lookup failures travel back through Fire")

	require.NoError(t, events.FireStep("0: a := 1"))
	assert.Equal(t, []string{"1: b := 2"}, s.Labels())

	err = events.Step.Fire()
	assert.ErrorIs(t, err, signal.ErrProtocol)
}

func TestSession_SelectItemLeavesWorklist(t *testing.T) {
	s, events := newSession(t)
	require.NoError(t, s.Setup(straightGraph(t), &scripted{}))

	var selected []string
	events.OnNodeSelected(func(n *cfg.CommandNode) { selected = append(selected, n.Label) })

	require.NoError(t, events.FireSelectItem("0: a := 1"))
	require.NoError(t, s.SelectItem("n0"))
	assert.Equal(t, []string{"0: a := 1", "0: a := 1"}, selected)
	assert.Equal(t, []string{"0: a := 1"}, s.Labels())
	assert.Zero(t, s.Steps())
	assert.Equal(t, Analyzing, s.State())

	err := events.FireSelectItem("1: b := 2")
	assert.ErrorIs(t, err, ErrLookup, "only pending items can be selected")
	assert.Len(t, selected, 2)
}

func TestSession_QueryPublishesNodeInfo(t *testing.T) {
	a := &scripted{
		query: func(node *cfg.CommandNode) (analysis.NodeInfo, error) {
			if node.ID == 2 {
				return analysis.NodeInfo{}, errors.New("no info")
			}
			return analysis.NodeInfo{Node: node, In: 1}, nil
		},
	}
	s, events := newSession(t)
	require.NoError(t, s.Setup(straightGraph(t), a))

	var infos []analysis.NodeInfo
	var failures []error
	events.OnNodeInfoReady(func(info analysis.NodeInfo) { infos = append(infos, info) })
	events.OnClientException(func(err error) { failures = append(failures, err) })

	require.NoError(t, events.FireQueryNode("1: b := 2", analysis.DirectionOut, analysis.EncodingJSON))
	require.NoError(t, events.QueryNode.Fire("0", "in", "msgpack"))
	require.Len(t, infos, 2)

	assert.Equal(t, "1: b := 2", infos[0].Node.Label)
	assert.Equal(t, analysis.DirectionOut, infos[0].Direction)
	assert.Equal(t, analysis.EncodingJSON, infos[0].Encoding)
	assert.Equal(t, 1, infos[0].In)
	assert.Equal(t, lattice.Top, infos[0].Out, "missing values read as TOP")

	assert.Equal(t, analysis.DirectionIn, infos[1].Direction)
	assert.Equal(t, analysis.EncodingMsgpack, infos[1].Encoding)

	err := events.FireQueryNode("2", analysis.DirectionBoth, analysis.EncodingText)
	assert.ErrorIs(t, err, analysis.ErrClientAnalysis, "failed query is returned")
	require.Len(t, failures, 1, "and published")
	var cerr *analysis.ClientError
	require.ErrorAs(t, failures[0], &cerr)
	assert.Equal(t, analysis.OpQuery, cerr.Op)

	err = events.QueryNode.Fire("0", "sideways", "text")
	assert.ErrorContains(t, err, "unknown direction")
}

func TestSession_QueryResolvesLabelsAndIDs(t *testing.T) {
	s, _ := newSession(t)
	require.NoError(t, s.Setup(straightGraph(t), &scripted{}))

	info, err := s.Query("0: a := 1")
	require.NoError(t, err)
	assert.Equal(t, cfg.NodeID(0), info.Node.ID)
	assert.Equal(t, analysis.DirectionBoth, info.Direction)
	assert.Equal(t, analysis.EncodingText, info.Encoding)

	info, err = s.Query("n2")
	require.NoError(t, err)
	assert.Equal(t, "2: c := 3", info.Node.Label)

	_, err = s.Query("9: z := 0")
	assert.ErrorIs(t, err, ErrLookup)
}

func TestSession_SetupFile(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		s, _ := newSession(t)
		require.NoError(t, s.SetupFile(programPath("branch.yaml"), &scripted{}))
		assert.Equal(t, Analyzing, s.State())
		require.NotNil(t, s.Graph())
		assert.Equal(t, "0: if true", s.Graph().Root().Label)
	})

	t.Run("missing file", func(t *testing.T) {
		s, _ := newSession(t)
		err := s.SetupFile(programPath("absent.yaml"), &scripted{})
		assert.ErrorIs(t, err, analysis.ErrConfiguration)
		assert.Equal(t, Uninitialized, s.State())
	})

	t.Run("parse error", func(t *testing.T) {
		s, _ := newSession(t)
		err := s.SetupFile(programPath("invalid.yaml"), &scripted{})
		assert.ErrorIs(t, err, lingo.ErrParse)
		assert.Equal(t, Uninitialized, s.State())
	})

	t.Run("no analysis", func(t *testing.T) {
		s, _ := newSession(t)
		var a *scripted
		err := s.SetupFile(programPath("branch.yaml"), a)
		assert.ErrorIs(t, err, analysis.ErrConfiguration)
	})
}

func TestSession_RunHonorsLimits(t *testing.T) {
	looping := &scripted{
		process: func(item analysis.WorklistInfo) ([]analysis.WorklistInfo, error) {
			return []analysis.WorklistInfo{item}, nil
		},
	}

	s, _ := newSession(t)
	require.NoError(t, s.Setup(straightGraph(t), looping))
	steps, err := s.Run(context.Background(), 5)
	assert.ErrorIs(t, err, ErrStepLimit)
	assert.Equal(t, 5, steps)
	assert.Equal(t, Analyzing, s.State())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	steps, err = s.Run(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, steps)
}

func TestSession_CloseDetachesChannels(t *testing.T) {
	s, events := newSession(t)
	require.NoError(t, s.Setup(straightGraph(t), &scripted{}))
	s.Close()

	assert.Zero(t, events.Step.Len())
	require.NoError(t, events.FireStep("0: a := 1"))
	assert.Equal(t, []string{"0: a := 1"}, s.Labels())
}
