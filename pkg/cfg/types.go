// Package cfg builds control-flow graphs over Lingo command graphs.
// Nodes live in an arena owned by a Graph; predecessor and successor links
// are arena indices, so loop back-edges are index cycles.
package cfg

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/l3aro/go-sleuth/pkg/lingo"
)

// NodeID is a node's index in its graph's arena.
type NodeID int

// String returns the DOT identifier of the node ("n3").
func (id NodeID) String() string { return "n" + strconv.Itoa(int(id)) }

// CommandNode is a CFG vertex wrapping exactly one command.
type CommandNode struct {
	ID      NodeID        `json:"id"`    // Arena index, stable for the graph's lifetime
	Label   string        `json:"label"` // Unique display label "<id>: <command>"
	Command lingo.Command `json:"-"`     // Wrapped command

	graph    *Graph
	preds    []NodeID
	succs    []NodeID
	terminal bool
}

func (n *CommandNode) String() string { return n.Label }

// Successors returns the nodes control may flow to, in declaration order.
func (n *CommandNode) Successors() []*CommandNode { return n.graph.resolve(n.succs) }

// Predecessors returns the nodes control may flow from, in edge creation order.
func (n *CommandNode) Predecessors() []*CommandNode { return n.graph.resolve(n.preds) }

// SuccessorIDs returns a copy of the successor index list.
func (n *CommandNode) SuccessorIDs() []NodeID { return append([]NodeID(nil), n.succs...) }

// PredecessorIDs returns a copy of the predecessor index list.
func (n *CommandNode) PredecessorIDs() []NodeID { return append([]NodeID(nil), n.preds...) }

// IsTerminal reports whether a (node, nil) edge was recorded for n.
func (n *CommandNode) IsTerminal() bool { return n.terminal }

// IsCall reports whether n is the CALL half of a function call.
func (n *CommandNode) IsCall() bool {
	a, ok := n.Command.(*lingo.Assignment)
	return ok && a.IsCall()
}

// IsReturn reports whether n is the RET half of a function call.
func (n *CommandNode) IsReturn() bool {
	a, ok := n.Command.(*lingo.Assignment)
	return ok && a.IsReturn()
}

// EdgePair is a control transfer. A nil Destination marks a terminal node.
type EdgePair struct {
	Source      *CommandNode `json:"source"`
	Destination *CommandNode `json:"destination,omitempty"`
}

func (e EdgePair) String() string {
	if e.Destination == nil {
		return fmt.Sprintf("(%s, none)", e.Source.Label)
	}
	return fmt.Sprintf("(%s, %s)", e.Source.Label, e.Destination.Label)
}

// Graph is the node arena plus the edge list and lookup indexes.
type Graph struct {
	nodes     []*CommandNode
	byLabel   map[string]*CommandNode
	edges     []EdgePair
	root      *CommandNode
	functions map[string]*CommandNode
}

func newGraph() *Graph {
	return &Graph{
		byLabel:   make(map[string]*CommandNode),
		functions: make(map[string]*CommandNode),
	}
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Root returns the node of the first command built into the graph.
func (g *Graph) Root() *CommandNode { return g.root }

// FunctionRoot returns the entry node of a function body built by BuildProgram.
func (g *Graph) FunctionRoot(name string) (*CommandNode, bool) {
	n, ok := g.functions[name]
	return n, ok
}

// Functions returns the names of the function bodies in the graph, sorted.
func (g *Graph) Functions() []string {
	names := make([]string, 0, len(g.functions))
	for name := range g.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) (*CommandNode, bool) {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil, false
	}
	return g.nodes[id], true
}

// Nodes returns the id map.
func (g *Graph) Nodes() map[NodeID]*CommandNode {
	out := make(map[NodeID]*CommandNode, len(g.nodes))
	for _, n := range g.nodes {
		out[n.ID] = n
	}
	return out
}

// List returns the nodes in id order.
func (g *Graph) List() []*CommandNode { return append([]*CommandNode(nil), g.nodes...) }

// Lookup returns the node with the given label.
func (g *Graph) Lookup(label string) (*CommandNode, bool) {
	n, ok := g.byLabel[label]
	return n, ok
}

// Find resolves a label, a numeric id ("3") or a DOT id ("n3").
func (g *Graph) Find(ref string) (*CommandNode, bool) {
	if n, ok := g.byLabel[ref]; ok {
		return n, true
	}
	raw := strings.TrimPrefix(strings.TrimSpace(ref), "n")
	id, err := strconv.Atoi(raw)
	if err != nil {
		return nil, false
	}
	return g.Node(NodeID(id))
}

// Edges returns the edge list in creation order, terminal pairs included.
func (g *Graph) Edges() []EdgePair { return append([]EdgePair(nil), g.edges...) }

func (g *Graph) resolve(ids []NodeID) []*CommandNode {
	out := make([]*CommandNode, len(ids))
	for i, id := range ids {
		out[i] = g.nodes[id]
	}
	return out
}

func (g *Graph) add(cmd lingo.Command) *CommandNode {
	id := NodeID(len(g.nodes))
	n := &CommandNode{
		ID:      id,
		Label:   fmt.Sprintf("%d: %s", id, cmd),
		Command: cmd,
		graph:   g,
	}
	g.nodes = append(g.nodes, n)
	g.byLabel[n.Label] = n
	return n
}

func (g *Graph) link(src, dst *CommandNode) {
	for _, s := range src.succs {
		if s == dst.ID {
			return
		}
	}
	src.succs = append(src.succs, dst.ID)
	dst.preds = append(dst.preds, src.ID)
	g.edges = append(g.edges, EdgePair{Source: src, Destination: dst})
}

func (g *Graph) terminate(n *CommandNode) {
	if n.terminal {
		return
	}
	n.terminal = true
	g.edges = append(g.edges, EdgePair{Source: n})
}
