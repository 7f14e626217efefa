// Package session drives a client analysis to a fixpoint over a CFG.
//
// A Session seeds a worklist through the analysis's Prepare, then removes
// one item per Step, hands it to Process and merges the returned items back
// in, deduplicated by node. When the worklist drains the session is
// Complete. Failures inside the analysis are isolated per call: they are
// logged, published on the clientException channel and the session keeps
// accepting steps.
//
// A Session is not safe for concurrent use; start a new one per analysis.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/l3aro/go-sleuth/internal/log"
	"github.com/l3aro/go-sleuth/pkg/analysis"
	"github.com/l3aro/go-sleuth/pkg/cfg"
	"github.com/l3aro/go-sleuth/pkg/lattice"
	"github.com/l3aro/go-sleuth/pkg/lingo"
	"github.com/l3aro/go-sleuth/pkg/signal"
)

// State is the lifecycle phase of a session.
type State int

const (
	Uninitialized State = iota
	Analyzing
	Complete
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Analyzing:
		return "analyzing"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// OrderKey ranks worklist items when sorting is enabled. Lower runs first.
type OrderKey func(analysis.WorklistInfo) int

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l log.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithSorting enables ordering the worklist by the order key after every merge.
func WithSorting(enabled bool) Option {
	return func(s *Session) { s.sorting = enabled }
}

// WithOrderKey replaces the default key, WorklistInfo.Rank.
func WithOrderKey(key OrderKey) Option {
	return func(s *Session) {
		if key != nil {
			s.orderKey = key
		}
	}
}

type subscription struct {
	ch  *signal.Channel
	sub signal.Subscription
}

// Session owns one analysis run.
type Session struct {
	id     string
	events *signal.Events
	logger log.Logger

	state  State
	graph  *cfg.Graph
	client analysis.Analysis
	name   string

	worklist []analysis.WorklistInfo
	pending  map[*cfg.CommandNode]struct{}
	sorting  bool
	orderKey OrderKey
	steps    int

	subs []subscription
}

// New creates a session listening on the inbound channels of events.
// A nil events gets a fresh channel set.
func New(events *signal.Events, opts ...Option) *Session {
	if events == nil {
		events = signal.NewEvents()
	}
	s := &Session{
		id:       uuid.NewString(),
		events:   events,
		logger:   log.Default(),
		pending:  make(map[*cfg.CommandNode]struct{}),
		orderKey: func(w analysis.WorklistInfo) int { return w.Rank },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.id)

	s.subscribe(events.Step, s.onStep)
	s.subscribe(events.QueryNode, s.onQueryNode)
	s.subscribe(events.SetSortingEnabled, s.onSetSortingEnabled)
	s.subscribe(events.SelectItem, s.onSelectItem)
	return s
}

func (s *Session) subscribe(ch *signal.Channel, fn signal.Listener) {
	s.subs = append(s.subs, subscription{ch: ch, sub: ch.Register(fn)})
}

// Close detaches the session from its inbound channels.
func (s *Session) Close() {
	for _, sub := range s.subs {
		sub.ch.Unregister(sub.sub)
	}
	s.subs = nil
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// State returns the lifecycle phase.
func (s *Session) State() State { return s.state }

// Graph returns the analyzed graph, nil before Setup.
func (s *Session) Graph() *cfg.Graph { return s.graph }

// Events returns the session's channel set.
func (s *Session) Events() *signal.Events { return s.events }

// Sorting reports whether worklist sorting is enabled.
func (s *Session) Sorting() bool { return s.sorting }

// Steps returns the number of steps taken.
func (s *Session) Steps() int { return s.steps }

// Worklist returns a copy of the pending items in processing order.
func (s *Session) Worklist() []analysis.WorklistInfo {
	return append([]analysis.WorklistInfo(nil), s.worklist...)
}

// Labels returns the labels of the pending items in processing order.
func (s *Session) Labels() []string {
	labels := make([]string, len(s.worklist))
	for i, item := range s.worklist {
		labels[i] = item.Node.Label
	}
	return labels
}

// Setup attaches the graph and analysis and seeds the worklist.
// An empty seed completes the session immediately.
func (s *Session) Setup(graph *cfg.Graph, a analysis.Analysis) error {
	if s.state != Uninitialized {
		return ErrAlreadySetup
	}
	if err := analysis.Conform(a); err != nil {
		return err
	}
	if graph == nil || graph.Root() == nil {
		return &analysis.ConfigurationError{Reason: "no control-flow graph to analyze"}
	}

	s.graph = graph
	s.client = a
	s.name = analysis.Name(a)
	s.state = Analyzing
	s.logger.Info("Analysis started", "analysis", s.name, "nodes", graph.Len())

	var seed []analysis.WorklistInfo
	err := analysis.Guard(s.name, analysis.OpPrepare, func() error {
		items, err := a.Prepare(graph.Root(), graph.Nodes())
		seed = items
		return err
	})
	if err != nil {
		s.clientFailure(err)
		seed = nil
	}
	return s.merge(seed, true)
}

// SetupFile loads a program document, builds its CFG and calls Setup.
func (s *Session) SetupFile(path string, a analysis.Analysis) error {
	if s.state != Uninitialized {
		return ErrAlreadySetup
	}
	if err := analysis.Conform(a); err != nil {
		return err
	}

	prog, err := lingo.LoadFile(path)
	if err != nil {
		if errors.Is(err, lingo.ErrParse) {
			return fmt.Errorf("loading program: %w", err)
		}
		return &analysis.ConfigurationError{Name: path, Reason: "cannot open program", Err: err}
	}

	graph, err := cfg.BuildProgram(prog)
	if err != nil {
		return fmt.Errorf("building control-flow graph for %s: %w", path, err)
	}
	return s.Setup(graph, a)
}

// Step processes the pending item with the given label (or node id).
func (s *Session) Step(ref string) error {
	if s.state != Analyzing {
		return fmt.Errorf("step %q: %w (state %s)", ref, ErrNotAnalyzing, s.state)
	}

	idx, err := s.pendingIndex(ref)
	if err != nil {
		return err
	}
	item := s.worklist[idx]
	s.worklist = append(s.worklist[:idx:idx], s.worklist[idx+1:]...)
	delete(s.pending, item.Node)
	s.steps++

	s.logger.Debug("Processing worklist item", "node", item.Node.Label, "step", s.steps)
	var errs []error
	if err := s.events.NodeSelected.Fire(item.Node); err != nil {
		errs = append(errs, err)
	}

	var produced []analysis.WorklistInfo
	perr := analysis.Guard(s.name, analysis.OpProcess, func() error {
		items, err := s.client.Process(item)
		produced = items
		return err
	})
	if perr != nil {
		s.clientFailure(perr)
		produced = nil
	}

	if err := s.merge(produced, true); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SelectItem publishes nodeSelected for a pending item without processing it.
func (s *Session) SelectItem(ref string) error {
	idx, err := s.pendingIndex(ref)
	if err != nil {
		return err
	}
	return s.events.NodeSelected.Fire(s.worklist[idx].Node)
}

// StepNext processes the item at the head of the worklist.
func (s *Session) StepNext() error {
	if s.state != Analyzing || len(s.worklist) == 0 {
		return fmt.Errorf("step: %w (state %s)", ErrNotAnalyzing, s.state)
	}
	return s.Step(s.worklist[0].Node.Label)
}

// Run steps the head of the worklist until the session completes, ctx is
// done, or maxSteps (when positive) steps were taken. It returns the number
// of steps taken by this call.
func (s *Session) Run(ctx context.Context, maxSteps int) (int, error) {
	taken := 0
	for s.state == Analyzing {
		if err := ctx.Err(); err != nil {
			return taken, err
		}
		if maxSteps > 0 && taken >= maxSteps {
			return taken, ErrStepLimit
		}
		if err := s.StepNext(); err != nil {
			return taken, err
		}
		taken++
	}
	return taken, nil
}

// Query returns the analysis information for a label, a node id or the
// label of a worklist item, in any state.
func (s *Session) Query(ref string) (analysis.NodeInfo, error) {
	return s.QueryWith(ref, analysis.DirectionBoth, analysis.EncodingText)
}

// QueryWith is Query with an explicit direction and encoding recorded on the
// result. The result is also published on nodeInfoReady.
func (s *Session) QueryWith(ref string, dir analysis.Direction, enc analysis.Encoding) (analysis.NodeInfo, error) {
	node, err := s.resolve(ref)
	if err != nil {
		return analysis.NodeInfo{}, err
	}

	var info analysis.NodeInfo
	qerr := analysis.Guard(s.name, analysis.OpQuery, func() error {
		res, err := s.client.Query(node)
		info = res
		return err
	})
	if qerr != nil {
		s.clientFailure(qerr)
		return analysis.NodeInfo{}, qerr
	}

	info.Node = node
	info.Direction = dir
	info.Encoding = enc
	if info.In == nil {
		info.In = lattice.Top
	}
	if info.Out == nil {
		info.Out = lattice.Top
	}
	return info, s.events.NodeInfoReady.Fire(info)
}

// SetSortingEnabled switches the ordering mode and republishes the worklist.
// It never completes the session.
func (s *Session) SetSortingEnabled(enabled bool) error {
	s.sorting = enabled
	s.logger.Debug("Worklist sorting changed", "enabled", enabled)
	return s.merge(nil, false)
}

// merge inserts new items not already pending, sorts when enabled and
// publishes the worklist. fromAnalysis merges may complete the session.
func (s *Session) merge(items []analysis.WorklistInfo, fromAnalysis bool) error {
	added := 0
	for _, item := range items {
		if item.Node == nil {
			s.logger.Warn("Ignoring worklist item without node", "analysis", s.name)
			continue
		}
		if _, ok := s.pending[item.Node]; ok {
			continue
		}
		s.pending[item.Node] = struct{}{}
		s.worklist = append(s.worklist, item)
		added++
	}

	if s.sorting {
		sort.SliceStable(s.worklist, func(i, j int) bool {
			return s.orderKey(s.worklist[i]) < s.orderKey(s.worklist[j])
		})
	}

	var errs []error
	if err := s.events.WorklistUpdated.Fire(s.Labels()); err != nil {
		errs = append(errs, err)
	}

	if fromAnalysis && len(s.worklist) == 0 && s.state == Analyzing {
		s.state = Complete
		s.logger.Info("Analysis complete", "analysis", s.name, "steps", s.steps)
		if err := s.events.AnalysisComplete.Fire(); err != nil {
			errs = append(errs, err)
		}
	} else if added > 0 {
		s.logger.Debug("Worklist updated", "added", added, "pending", len(s.worklist))
	}
	return errors.Join(errs...)
}

func (s *Session) clientFailure(err error) {
	s.logger.Error("Client analysis failed", "error", err)
	if ferr := s.events.ClientException.Fire(err); ferr != nil {
		s.logger.Warn("clientException listener failed", "error", ferr)
	}
}

// resolve finds a node by label or id.
func (s *Session) resolve(ref string) (*cfg.CommandNode, error) {
	if s.graph == nil {
		return nil, &LookupError{Ref: ref, Reason: "no graph has been set up"}
	}
	if n, ok := s.graph.Find(ref); ok {
		return n, nil
	}
	return nil, &LookupError{Ref: ref, Reason: "no such node"}
}

func (s *Session) pendingIndex(ref string) (int, error) {
	node, err := s.resolve(ref)
	if err != nil {
		return -1, err
	}
	for i, item := range s.worklist {
		if item.Node == node {
			return i, nil
		}
	}
	return -1, &LookupError{Ref: ref, Reason: "node is not on the worklist"}
}
