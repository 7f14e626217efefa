// Package counting implements an analysis that counts the statements that
// must execute before control leaves a node.
//
// For a diamond whose left branch holds two statements and right branch one,
// the join receives IN values 3 and 2 and gets OUT 4. A node whose OUT value
// changes after its first computation is widened to BOTTOM, which only
// happens prematurely when nodes are processed out of reverse post-order.
// Calls are not followed into their callee.
package counting

import (
	"github.com/l3aro/go-sleuth/pkg/analysis"
	"github.com/l3aro/go-sleuth/pkg/cfg"
	"github.com/l3aro/go-sleuth/pkg/lattice"
)

// Name is the registry name of the analysis.
const Name = "counting"

type counts struct {
	in, out lattice.Value
}

// Analysis is the statement counting analysis.
type Analysis struct {
	cache map[*cfg.CommandNode]counts
	ranks map[cfg.NodeID]int
}

// New returns an empty counting analysis.
func New() *Analysis {
	return &Analysis{
		cache: make(map[*cfg.CommandNode]counts),
		ranks: make(map[cfg.NodeID]int),
	}
}

// Name returns the display name.
func (a *Analysis) Name() string { return Name }

// Prepare seeds the worklist with the entry node only.
func (a *Analysis) Prepare(entry *cfg.CommandNode, _ map[cfg.NodeID]*cfg.CommandNode) ([]analysis.WorklistInfo, error) {
	a.ranks = cfg.RPORanks(entry)
	return []analysis.WorklistInfo{a.item(entry)}, nil
}

// Process recomputes IN and OUT of the item's node.
func (a *Analysis) Process(item analysis.WorklistInfo) ([]analysis.WorklistInfo, error) {
	node := item.Node
	in := a.incoming(node)

	var out lattice.Value = lattice.Bottom
	if n, ok := in.(int); ok {
		out = n + 1
	}

	changed := true
	if cached, ok := a.cache[node]; ok {
		changed = false
		if !lattice.Equal(cached.out, out) {
			out = lattice.Widen(cached.out, out)
			changed = true
		}
	}
	a.cache[node] = counts{in: in, out: out}

	if !changed {
		return nil, nil
	}
	succs := node.Successors()
	items := make([]analysis.WorklistInfo, len(succs))
	for i, s := range succs {
		items[i] = a.item(s)
	}
	return items, nil
}

// Query returns the cached counts, TOP for nodes never processed.
func (a *Analysis) Query(node *cfg.CommandNode) (analysis.NodeInfo, error) {
	c, ok := a.cache[node]
	if !ok {
		return analysis.TopInfo(node), nil
	}
	return analysis.NodeInfo{Node: node, In: c.in, Out: c.out}, nil
}

// incoming is the maximum OUT of the predecessors, ignoring TOP. A RET node
// takes the IN of its CALL.
func (a *Analysis) incoming(node *cfg.CommandNode) lattice.Value {
	preds := node.Predecessors()
	if node.IsReturn() && len(preds) > 0 {
		return a.lookup(preds[0]).in
	}

	values := make([]lattice.Value, 0, len(preds))
	for _, p := range preds {
		values = append(values, a.lookup(p).out)
	}
	in := lattice.Meet(values, maxCount)
	if lattice.IsTop(in) {
		return 0
	}
	return in
}

func (a *Analysis) lookup(node *cfg.CommandNode) counts {
	if c, ok := a.cache[node]; ok {
		return c
	}
	return counts{in: lattice.Top, out: lattice.Top}
}

func (a *Analysis) item(node *cfg.CommandNode) analysis.WorklistInfo {
	rank, ok := a.ranks[node.ID]
	if !ok {
		rank = len(a.ranks) + int(node.ID)
	}
	return analysis.WorklistInfo{Node: node, Rank: rank}
}

func maxCount(x, y lattice.Value) lattice.Value {
	if x.(int) >= y.(int) {
		return x
	}
	return y
}
