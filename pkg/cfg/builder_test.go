package cfg

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-sleuth/pkg/lingo"
)

func assign(name string, expr lingo.Expression) *lingo.Assignment {
	return lingo.NewAssignment(lingo.Var(name), expr)
}

func labels(nodes []*CommandNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Label
	}
	return out
}

func loadProgram(t *testing.T, name string) *lingo.Program {
	t.Helper()
	prog, err := lingo.LoadFile(filepath.Join("..", "..", "testdata", "programs", name))
	require.NoError(t, err)
	return prog
}

func TestBuild_StraightLine(t *testing.T) {
	a := assign("a", lingo.Num(1))
	b := assign("b", lingo.Num(2))
	entry := lingo.Seq(a, b)

	g, err := Build(entry)
	require.NoError(t, err)

	assert.Equal(t, 2, g.Len())
	root := g.Root()
	require.NotNil(t, root)
	assert.Equal(t, "0: a := 1", root.Label)

	edges := g.Edges()
	require.Len(t, edges, 2)
	assert.Equal(t, "(0: a := 1, 1: b := 2)", edges[0].String())
	assert.Equal(t, root, edges[0].Source)
	assert.Nil(t, edges[1].Destination, "terminal pair must be emitted")
	assert.Equal(t, "1: b := 2", edges[1].Source.Label)

	var paths [][]string
	for p := range Paths(root) {
		paths = append(paths, labels(p))
	}
	assert.Equal(t, [][]string{{"0: a := 1", "1: b := 2"}}, paths)
}

func TestBuild_BranchesJoin(t *testing.T) {
	prog := loadProgram(t, "branch.yaml")

	g, err := BuildProgram(prog)
	require.NoError(t, err)
	require.Equal(t, 4, g.Len())

	cond := g.Root()
	_, isIf := cond.Command.(*lingo.If)
	require.True(t, isIf)

	succs := cond.Successors()
	require.Len(t, succs, 2)
	assert.Equal(t, "1: c := 3", succs[0].Label, "true branch comes first")
	assert.Equal(t, "2: c := 4", succs[1].Label)

	d, ok := g.Lookup("3: d := c")
	require.True(t, ok)
	for _, branch := range succs {
		assert.Equal(t, []*CommandNode{d}, branch.Successors())
	}
	assert.Len(t, d.Predecessors(), 2)
	assert.True(t, d.IsTerminal())
	assert.False(t, cond.IsTerminal())
}

func TestBuild_CallReturnSplit(t *testing.T) {
	call := assign("b", lingo.Call("foo", "a"))
	body := lingo.NewReturn(lingo.Var("x"))
	foo := lingo.NewFunctionDeclaration("foo", &lingo.FunctionDefinition{
		Parameters: []*lingo.Variable{lingo.Var("x")},
		Body:       body,
	})
	prog := &lingo.Program{Functions: []*lingo.FunctionDeclaration{foo}, Command: call}

	g, err := BuildProgram(prog)
	require.NoError(t, err)

	callNode := g.Root()
	assert.True(t, callNode.IsCall())
	assert.Equal(t, "0: b := foo(a) [CALL]", callNode.Label)

	succs := callNode.Successors()
	require.Len(t, succs, 1)
	ret := succs[0]
	assert.True(t, ret.IsReturn())
	assert.Equal(t, "1: b := foo(a) [RET]", ret.Label)
	assert.Equal(t, []*CommandNode{callNode}, ret.Predecessors())
	assert.True(t, ret.IsTerminal())

	fooRoot, ok := g.FunctionRoot("foo")
	require.True(t, ok)
	assert.Equal(t, "2: return x", fooRoot.Label)
	assert.Equal(t, []string{"foo"}, g.Functions())

	assert.Nil(t, call.Next(), "the AST must not be modified")
}

func TestBuild_CallReturnIdempotent(t *testing.T) {
	cond := lingo.Bin(lingo.Var("i"), lingo.OpLess, lingo.Num(3))
	call := assign("r", lingo.Call("f", "i"))
	loop := lingo.NewWhile(cond, call)
	entry := lingo.Seq(assign("i", lingo.Num(0)), loop)

	b := NewBuilder()
	first, err := b.Build(entry)
	require.NoError(t, err)
	second, err := b.Build(entry)
	require.NoError(t, err)
	assert.Same(t, first, second)

	var rets []*CommandNode
	for _, n := range b.Graph().List() {
		if n.IsReturn() {
			rets = append(rets, n)
		}
	}
	require.Len(t, rets, 1)
	require.Len(t, rets[0].Predecessors(), 1)
	assert.True(t, rets[0].Predecessors()[0].IsCall())
	assert.Equal(t, []*CommandNode{b.Graph().Root().Successors()[0]}, rets[0].Successors(), "RET flows back to the loop")

	// A fresh builder over the same AST produces the same shape.
	g2, err := Build(entry)
	require.NoError(t, err)
	assert.Equal(t, b.Graph().Len(), g2.Len())
	assert.Equal(t, labels(b.Graph().List()), labels(g2.List()))
}

func TestBuild_ExistingReturnNotDuplicated(t *testing.T) {
	fc := lingo.Call("foo", "a")
	call := assign("b", fc)
	ret := assign("b", fc.ReturnExpression())
	entry := lingo.Seq(call, ret)

	g, err := Build(entry)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, []*CommandNode{g.Root()}, g.List()[1].Predecessors())
}

func TestBuild_LoopBackEdge(t *testing.T) {
	g, err := BuildProgram(loadProgram(t, "loop.yaml"))
	require.NoError(t, err)

	require.Equal(t, []string{
		"0: i := 0",
		"1: while i < 10",
		"2: i := i + 1",
		"3: x := i",
	}, labels(g.List()))

	var pairs []string
	for _, e := range g.Edges() {
		pairs = append(pairs, e.String())
	}
	assert.Equal(t, []string{
		"(0: i := 0, 1: while i < 10)",
		"(1: while i < 10, 2: i := i + 1)",
		"(1: while i < 10, 3: x := i)",
		"(2: i := i + 1, 1: while i < 10)",
		"(3: x := i, none)",
	}, pairs)

	var paths [][]string
	for p := range Paths(g.Root()) {
		paths = append(paths, labels(p))
	}
	assert.Equal(t, [][]string{
		{"0: i := 0", "1: while i < 10", "2: i := i + 1"},
		{"0: i := 0", "1: while i < 10", "3: x := i"},
	}, paths)
}

func TestBuild_TrailingLoopIsTerminal(t *testing.T) {
	loop := lingo.NewWhile(lingo.Bool(true), lingo.NewSkip())

	g, err := Build(loop)
	require.NoError(t, err)

	root := g.Root()
	assert.True(t, root.IsTerminal())
	assert.Len(t, root.Successors(), 1)

	var count int
	for range Paths(root) {
		count++
	}
	assert.Equal(t, 2, count)
}

func TestBuild_VisitsEachCommandOnce(t *testing.T) {
	inner := lingo.NewWhile(lingo.Var("k"), lingo.Seq(
		assign("k", lingo.Bin(lingo.Var("k"), lingo.OpMinus, lingo.Num(1))),
		lingo.NewSkip(),
	))
	branch := lingo.NewIf(lingo.Var("c"),
		lingo.Seq(inner, assign("y", lingo.Num(1))),
		lingo.NewSkip(),
	)
	outer := lingo.NewWhile(lingo.Var("c"), lingo.Seq(branch, lingo.NewInput(lingo.Var("c"))))
	entry := lingo.Seq(lingo.NewInput(lingo.Var("c")), outer, lingo.NewReturn(lingo.Var("y")))

	g, err := Build(entry)
	require.NoError(t, err)

	// input, outer while, if, inner while, k :=, skip, y :=, skip, input, return
	assert.Equal(t, 10, g.Len())

	seen := make(map[lingo.Command]bool)
	for _, n := range g.List() {
		assert.False(t, seen[n.Command], "command %q mapped twice", n.Command)
		seen[n.Command] = true
	}

	for p := range Paths(g.Root()) {
		ids := make(map[NodeID]bool)
		for _, n := range p {
			assert.False(t, ids[n.ID], "path revisits %s", n.Label)
			ids[n.ID] = true
		}
	}
}

func TestBuild_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		entry lingo.Command
	}{
		{
			name:  "nil entry",
			entry: nil,
		},
		{
			name:  "missing false branch",
			entry: lingo.NewIf(lingo.Bool(true), lingo.NewSkip(), nil),
		},
		{
			name:  "missing loop body",
			entry: lingo.NewWhile(lingo.Bool(true), nil),
		},
		{
			name: "branch not parented",
			entry: &lingo.If{
				Condition:  lingo.Bool(true),
				TrueBlock:  lingo.NewSkip(),
				FalseBlock: lingo.NewSkip(),
			},
		},
		{
			name:  "assignment without expression",
			entry: lingo.Seq(lingo.NewSkip(), lingo.NewAssignment(lingo.Var("a"), nil)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			root, err := b.Build(tt.entry)
			require.Error(t, err)
			assert.Nil(t, root)
			assert.True(t, errors.Is(err, ErrMalformedCommand))

			var me *MalformedError
			assert.True(t, errors.As(err, &me))
			assert.Zero(t, b.Graph().Len(), "no partial graph")
			assert.Empty(t, b.Graph().Edges())
		})
	}
}

func TestBuildProgram_FunctionWithoutBody(t *testing.T) {
	prog := &lingo.Program{
		Functions: []*lingo.FunctionDeclaration{lingo.NewFunctionDeclaration("f", nil)},
		Command:   lingo.NewSkip(),
	}
	_, err := BuildProgram(prog)
	assert.ErrorIs(t, err, ErrMalformedCommand)

	_, err = BuildProgram(&lingo.Program{})
	assert.ErrorIs(t, err, ErrMalformedCommand)
}

func TestBuildProgram_NestedFunctionBuilt(t *testing.T) {
	g, err := BuildProgram(loadProgram(t, "nested.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []string{"inner", "outer"}, g.Functions())
	root, ok := g.FunctionRoot("inner")
	require.True(t, ok)
	assert.Equal(t, "return y", root.Command.String())
	found, ok := g.Lookup(root.Label)
	require.True(t, ok)
	assert.Same(t, root, found)
}

func TestBuildProgram_DuplicateFunctionName(t *testing.T) {
	first := lingo.NewFunctionDeclaration("f", &lingo.FunctionDefinition{
		Body: lingo.NewReturn(lingo.Var("x")),
	})
	second := lingo.NewFunctionDeclaration("f", &lingo.FunctionDefinition{
		Body: lingo.NewReturn(lingo.Var("z")),
	})

	tests := []struct {
		name string
		prog *lingo.Program
	}{
		{"top level twice", &lingo.Program{
			Functions: []*lingo.FunctionDeclaration{first, second},
			Command:   lingo.NewSkip(),
		}},
		{"top level and in chain", &lingo.Program{
			Functions: []*lingo.FunctionDeclaration{first},
			Command:   second,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := BuildProgram(tt.prog)
			assert.ErrorIs(t, err, ErrMalformedCommand)
			assert.Contains(t, err.Error(), `function "f" is declared more than once`)
			assert.Nil(t, g)
		})
	}
}

func TestGraph_Find(t *testing.T) {
	g, err := BuildProgram(loadProgram(t, "straight.yaml"))
	require.NoError(t, err)

	tests := []struct {
		ref    string
		want   string
		wantOK bool
	}{
		{ref: "0: a := 1", want: "0: a := 1", wantOK: true},
		{ref: "1", want: "1: b := 2", wantOK: true},
		{ref: "n1", want: "1: b := 2", wantOK: true},
		{ref: "7", wantOK: false},
		{ref: "b := 2", wantOK: false},
	}
	for _, tt := range tests {
		n, ok := g.Find(tt.ref)
		assert.Equal(t, tt.wantOK, ok, tt.ref)
		if tt.wantOK {
			assert.Equal(t, tt.want, n.Label)
		}
	}
}

func TestReversePostOrder_Diamond(t *testing.T) {
	g, err := BuildProgram(loadProgram(t, "diamond.yaml"))
	require.NoError(t, err)

	order := ReversePostOrder(g.Root())
	assert.Equal(t, []string{
		"0: if c",
		"1: a := 1",
		"3: b := 2",
		"2: a := 3",
		"4: d := a",
	}, labels(order))

	ranks := RPORanks(g.Root())
	for _, e := range g.Edges() {
		if e.Destination == nil {
			continue
		}
		assert.Less(t, ranks[e.Source.ID], ranks[e.Destination.ID], "forward edge %s", e)
	}
}

func TestReversePostOrder_LoopBodyFirst(t *testing.T) {
	g, err := BuildProgram(loadProgram(t, "loop.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"0: i := 0",
		"1: while i < 10",
		"2: i := i + 1",
		"3: x := i",
	}, labels(ReversePostOrder(g.Root())))
	assert.Nil(t, ReversePostOrder(nil))
}

func TestWriteDot(t *testing.T) {
	g, err := Build(lingo.Seq(assign("s", lingo.Num(1)), lingo.NewSkip()))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteDot(&buf, g.Edges()))
	out := buf.String()

	assert.Contains(t, out, "digraph cfg {")
	assert.Contains(t, out, `n0 [label="0: s := 1", peripheries=1];`)
	assert.Contains(t, out, `n1 [label="1: skip", peripheries=2];`)
	assert.Contains(t, out, "n0 -> n1;")
}

func TestWriteDot_TerminalOnlyNode(t *testing.T) {
	g, err := Build(lingo.NewSkip())
	require.NoError(t, err)

	edges := g.Edges()
	require.Len(t, edges, 1)
	require.Nil(t, edges[0].Destination)

	var buf bytes.Buffer
	require.NoError(t, WriteDot(&buf, edges))
	assert.Contains(t, buf.String(), `n0 [label="0: skip"`)
	assert.NotContains(t, buf.String(), "->")
}
