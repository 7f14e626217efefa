// Package reaching computes reaching definitions over a Lingo CFG and
// derives def-use chains from them.
package reaching

import (
	"fmt"
	"sort"

	"github.com/l3aro/go-sleuth/pkg/analysis"
	"github.com/l3aro/go-sleuth/pkg/cfg"
	"github.com/l3aro/go-sleuth/pkg/lingo"
)

// Name is the registry name of the analysis.
const Name = "reaching"

// Set is a set of definition ids of the form "x@n3".
type Set map[string]struct{}

// DefID returns the id of the definition of variable at node.
func DefID(variable string, node *cfg.CommandNode) string {
	return fmt.Sprintf("%s@%s", variable, node.ID)
}

// Chain connects a definition to a use of the same variable.
type Chain struct {
	Variable string           `json:"variable"`
	Def      *cfg.CommandNode `json:"-"`
	Use      *cfg.CommandNode `json:"-"`
}

func (c Chain) String() string {
	return fmt.Sprintf("%s: %s -> %s", c.Variable, c.Def.Label, c.Use.Label)
}

// Analysis is the reaching definitions analysis. A node's IN is the union
// of its predecessors' OUT, and OUT = gen ∪ (IN − kill).
type Analysis struct {
	// gen maps a node to the definition id it generates, if any
	gen map[*cfg.CommandNode]string
	// kill maps a node to the variable it redefines
	kill map[*cfg.CommandNode]string
	// defs maps definition ids back to their node
	defs map[string]*cfg.CommandNode

	in    map[*cfg.CommandNode]Set
	out   map[*cfg.CommandNode]Set
	ranks map[cfg.NodeID]int
}

// New returns an empty reaching definitions analysis.
func New() *Analysis {
	return &Analysis{
		gen:   make(map[*cfg.CommandNode]string),
		kill:  make(map[*cfg.CommandNode]string),
		defs:  make(map[string]*cfg.CommandNode),
		in:    make(map[*cfg.CommandNode]Set),
		out:   make(map[*cfg.CommandNode]Set),
		ranks: make(map[cfg.NodeID]int),
	}
}

// Name returns the display name.
func (a *Analysis) Name() string { return Name }

// Prepare builds the gen and kill sets of every node and seeds them all.
func (a *Analysis) Prepare(entry *cfg.CommandNode, nodes map[cfg.NodeID]*cfg.CommandNode) ([]analysis.WorklistInfo, error) {
	a.ranks = cfg.RPORanks(entry)

	ids := make([]cfg.NodeID, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	items := make([]analysis.WorklistInfo, 0, len(ids))
	for _, id := range ids {
		node := nodes[id]
		if v := lingo.Defined(node.Command); v != "" {
			def := DefID(v, node)
			a.gen[node] = def
			a.kill[node] = v
			a.defs[def] = node
		}
		items = append(items, a.item(node))
	}
	return items, nil
}

// Process recomputes IN and OUT of the item's node and returns its
// successors when OUT changed.
func (a *Analysis) Process(item analysis.WorklistInfo) ([]analysis.WorklistInfo, error) {
	node := item.Node

	in := make(Set)
	for _, p := range node.Predecessors() {
		for def := range a.out[p] {
			in[def] = struct{}{}
		}
	}

	out := make(Set, len(in)+1)
	killed := a.kill[node]
	for def := range in {
		if killed == "" || a.variable(def) != killed {
			out[def] = struct{}{}
		}
	}
	if def, ok := a.gen[node]; ok {
		out[def] = struct{}{}
	}

	old, seen := a.out[node]
	a.in[node] = in
	a.out[node] = out
	if seen && setsEqual(old, out) {
		return nil, nil
	}

	succs := node.Successors()
	items := make([]analysis.WorklistInfo, len(succs))
	for i, s := range succs {
		items[i] = a.item(s)
	}
	return items, nil
}

// Query returns copies of the IN and OUT sets, TOP for unprocessed nodes.
func (a *Analysis) Query(node *cfg.CommandNode) (analysis.NodeInfo, error) {
	out, ok := a.out[node]
	if !ok {
		return analysis.TopInfo(node), nil
	}
	return analysis.NodeInfo{Node: node, In: copySet(a.in[node]), Out: copySet(out)}, nil
}

// Chains returns the def-use chains implied by the computed IN sets,
// ordered by use node, then definition node.
func (a *Analysis) Chains() []Chain {
	var chains []Chain
	for node, in := range a.in {
		for _, v := range lingo.Used(node.Command) {
			for def := range in {
				if a.variable(def) == v {
					chains = append(chains, Chain{Variable: v, Def: a.defs[def], Use: node})
				}
			}
		}
	}
	sort.Slice(chains, func(i, j int) bool {
		if chains[i].Use.ID != chains[j].Use.ID {
			return chains[i].Use.ID < chains[j].Use.ID
		}
		if chains[i].Def.ID != chains[j].Def.ID {
			return chains[i].Def.ID < chains[j].Def.ID
		}
		return chains[i].Variable < chains[j].Variable
	})
	return chains
}

// variable returns the variable half of a definition id.
func (a *Analysis) variable(def string) string {
	if node, ok := a.defs[def]; ok {
		return a.kill[node]
	}
	return ""
}

func (a *Analysis) item(node *cfg.CommandNode) analysis.WorklistInfo {
	rank, ok := a.ranks[node.ID]
	if !ok {
		rank = len(a.ranks) + int(node.ID)
	}
	return analysis.WorklistInfo{Node: node, Rank: rank}
}

func copySet(src Set) Set {
	dst := make(Set, len(src))
	for k := range src {
		dst[k] = struct{}{}
	}
	return dst
}

func setsEqual(a, b Set) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
