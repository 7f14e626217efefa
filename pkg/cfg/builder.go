package cfg

import (
	"github.com/l3aro/go-sleuth/pkg/lingo"
)

// Builder converts command graphs into one shared Graph.
//
// Commands are tracked by identity: a command reached twice (a loop
// back-edge, two branches joining) maps to the node created the first time.
// Function-call assignments are split into a CALL node and a synthesized
// RET node; the RET assignment is created once per call and reused by
// later builds, so the AST is never modified.
type Builder struct {
	graph   *Graph
	visited map[lingo.Command]*CommandNode
	returns map[*lingo.Assignment]*lingo.Assignment // call -> synthesized RET
	callers map[*lingo.Assignment]*lingo.Assignment // synthesized RET -> call
}

// NewBuilder creates a builder with an empty graph.
func NewBuilder() *Builder {
	return &Builder{
		graph:   newGraph(),
		visited: make(map[lingo.Command]*CommandNode),
		returns: make(map[*lingo.Assignment]*lingo.Assignment),
		callers: make(map[*lingo.Assignment]*lingo.Assignment),
	}
}

// Graph returns the graph built so far.
func (b *Builder) Graph() *Graph { return b.graph }

// Build adds the command graph starting at entry and returns entry's node.
// Building an entry that is already in the graph returns its existing node.
// A malformed command graph is rejected before any node is created.
func (b *Builder) Build(entry lingo.Command) (*CommandNode, error) {
	if entry == nil {
		return nil, malformed(nil, "nil entry command")
	}
	if n, ok := b.visited[entry]; ok {
		return n, nil
	}
	if err := validate(entry, make(map[lingo.Command]bool)); err != nil {
		return nil, err
	}

	root := b.node(entry)
	if b.graph.root == nil {
		b.graph.root = root
	}

	queue := []*CommandNode{root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		succs, terminal := b.successors(n.Command)
		for _, cmd := range succs {
			dst, created := b.nodeFor(cmd)
			if created {
				queue = append(queue, dst)
			}
			b.graph.link(n, dst)
		}
		if terminal {
			b.graph.terminate(n)
		}
	}
	return root, nil
}

// Build converts a single command graph.
func Build(entry lingo.Command) (*Graph, error) {
	b := NewBuilder()
	if _, err := b.Build(entry); err != nil {
		return nil, err
	}
	return b.Graph(), nil
}

// BuildProgram builds the main command chain as the graph root and then the
// body of every declared function, nested declarations included, all into
// one graph. Two declarations sharing a name are malformed.
func BuildProgram(prog *lingo.Program) (*Graph, error) {
	if prog == nil || prog.Command == nil {
		return nil, malformed(nil, "program has no commands")
	}

	b := NewBuilder()
	if _, err := b.Build(prog.Command); err != nil {
		return nil, err
	}

	decls := append([]*lingo.FunctionDeclaration(nil), prog.Functions...)
	declared := make(map[string]*lingo.FunctionDeclaration)
	scanned := 0
	for {
		// Declarations reached in the main chain or in a function body built
		// so far are queued after the top-level ones.
		nodes := b.graph.List()
		for _, n := range nodes[scanned:] {
			if d, ok := n.Command.(*lingo.FunctionDeclaration); ok {
				decls = append(decls, d)
			}
		}
		scanned = len(nodes)
		if len(decls) == 0 {
			break
		}

		d := decls[0]
		decls = decls[1:]
		if prev, ok := declared[d.Name]; ok {
			if prev != d {
				return nil, malformed(d, "function %q is declared more than once", d.Name)
			}
			continue
		}
		declared[d.Name] = d
		if d.Definition == nil || d.Definition.Body == nil {
			return nil, malformed(d, "function %q has no body", d.Name)
		}
		root, err := b.Build(d.Definition.Body)
		if err != nil {
			return nil, err
		}
		b.graph.functions[d.Name] = root
	}
	return b.Graph(), nil
}

func (b *Builder) node(cmd lingo.Command) *CommandNode {
	n, _ := b.nodeFor(cmd)
	return n
}

func (b *Builder) nodeFor(cmd lingo.Command) (*CommandNode, bool) {
	if n, ok := b.visited[cmd]; ok {
		return n, false
	}
	n := b.graph.add(cmd)
	b.visited[cmd] = n
	return n, true
}

// successors returns the commands control flows to from cmd and whether cmd
// can also leave the graph.
func (b *Builder) successors(cmd lingo.Command) ([]lingo.Command, bool) {
	if a, ok := cmd.(*lingo.Assignment); ok {
		if call, ok := b.callers[a]; ok {
			return single(continuation(call))
		}
		if a.IsCall() && !returnsFrom(a.Next(), a) {
			return []lingo.Command{b.returnFor(a)}, false
		}
	}

	switch c := cmd.(type) {
	case *lingo.If:
		return []lingo.Command{c.TrueBlock, c.FalseBlock}, false
	case *lingo.While:
		if exit := continuation(c); exit != nil {
			return []lingo.Command{c.Body, exit}, false
		}
		return []lingo.Command{c.Body}, true
	default:
		return single(continuation(cmd))
	}
}

func single(next lingo.Command) ([]lingo.Command, bool) {
	if next == nil {
		return nil, true
	}
	return []lingo.Command{next}, false
}

// continuation returns the command executed after cmd's own block ends.
func continuation(cmd lingo.Command) lingo.Command {
	if next := cmd.Next(); next != nil {
		return next
	}
	switch p := cmd.Parent().(type) {
	case *lingo.While:
		return p
	case *lingo.If:
		return continuation(p)
	default:
		return nil
	}
}

// returnFor returns the RET assignment for call, creating it on first use.
func (b *Builder) returnFor(call *lingo.Assignment) *lingo.Assignment {
	if ret, ok := b.returns[call]; ok {
		return ret
	}
	fc := call.Expression.(*lingo.FunctionCall)
	ret := lingo.NewAssignment(call.Variable, fc.ReturnExpression())
	ret.SetSpan(call.Span())
	ret.SetType(call.Type())
	b.returns[call] = ret
	b.callers[ret] = call
	return ret
}

// returnsFrom reports whether next is already the RET assignment of call.
func returnsFrom(next lingo.Command, call *lingo.Assignment) bool {
	a, ok := next.(*lingo.Assignment)
	if !ok {
		return false
	}
	ret, ok := a.Expression.(*lingo.FunctionReturn)
	if !ok || a.Variable == nil || call.Variable == nil || a.Variable.Name != call.Variable.Name {
		return false
	}
	return ret.Matches(call.Expression.(*lingo.FunctionCall))
}

// validate checks the structural links reachable from entry.
func validate(entry lingo.Command, seen map[lingo.Command]bool) error {
	for c := entry; c != nil; c = c.Next() {
		if seen[c] {
			return nil
		}
		seen[c] = true

		switch cmd := c.(type) {
		case *lingo.FunctionDeclaration:
			// Bodies are separate roots.
			continue
		case *lingo.Assignment:
			if cmd.Variable == nil || cmd.Expression == nil {
				return malformed(c, "assignment without variable or expression")
			}
			if fc, ok := cmd.Expression.(*lingo.FunctionCall); ok && fc.Function == nil {
				return malformed(c, "call without callee")
			}
		}

		for i, blk := range c.BlockCommands() {
			if blk == nil {
				return malformed(c, "block %d is not set", i)
			}
			if blk.Parent() != c {
				return malformed(c, "block %d entry %q is not parented to its command", i, blk.String())
			}
			if err := validate(blk, seen); err != nil {
				return err
			}
		}
	}
	return nil
}
