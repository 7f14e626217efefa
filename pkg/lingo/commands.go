// Package lingo defines the AST of the Lingo teaching language.
// Commands are linked into chains (next/previous), nested blocks point back
// to the command that owns them (parent), and every command exposes the
// commands that begin its nested blocks.
package lingo

import (
	"fmt"
	"strings"
)

// Span locates a component in the program document.
type Span struct {
	StartLine   int `json:"start_line"`
	StartColumn int `json:"start_column"`
	EndLine     int `json:"end_line"`
	EndColumn   int `json:"end_column"`
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", s.StartLine, s.StartColumn, s.EndLine, s.EndColumn)
}

// Command is one imperative statement.
type Command interface {
	fmt.Stringer

	Span() Span
	SetSpan(span Span)

	// Type returns the inferred type annotation, empty when not annotated.
	Type() string
	SetType(typ string)

	Next() Command
	Previous() Command
	Parent() Command

	// SetNext appends next after the last command of this chain.
	SetNext(next Command)

	// BlockCommands returns the commands that begin nested blocks.
	BlockCommands() []Command

	links() *commandLinks
}

type commandLinks struct {
	span     Span
	typ      string
	next     Command
	previous Command
	parent   Command
}

func (l *commandLinks) links() *commandLinks { return l }

func (l *commandLinks) Span() Span         { return l.span }
func (l *commandLinks) SetSpan(span Span)  { l.span = span }
func (l *commandLinks) Type() string       { return l.typ }
func (l *commandLinks) SetType(typ string) { l.typ = typ }
func (l *commandLinks) Next() Command      { return l.next }
func (l *commandLinks) Previous() Command  { return l.previous }

// BlockCommands is empty for commands without nested blocks.
func (l *commandLinks) BlockCommands() []Command { return nil }

// Parent returns the command owning the block this command belongs to.
// Only the first command of a block carries the parent link, so the lookup
// walks back through the previous commands. Nil means top level.
func (l *commandLinks) Parent() Command {
	if l.parent != nil {
		return l.parent
	}
	if l.previous != nil {
		return l.previous.Parent()
	}
	return nil
}

// appendNext walks to the end of the chain starting at self and links next there.
func appendNext(self, next Command) {
	if next == nil {
		panic("lingo: SetNext with nil command")
	}
	tail := self
	for tail.links().next != nil {
		tail = tail.links().next
	}
	if next.links().previous != nil {
		panic(fmt.Sprintf("lingo: %q already follows %q", next, next.links().previous))
	}
	tail.links().next = next
	next.links().previous = tail
}

func setParent(child, parent Command) {
	if child == nil {
		return
	}
	child.links().parent = parent
}

// Assignment is "variable := expression".
type Assignment struct {
	commandLinks
	Variable   *Variable
	Expression Expression
}

// NewAssignment creates an assignment command.
func NewAssignment(variable *Variable, expr Expression) *Assignment {
	return &Assignment{Variable: variable, Expression: expr}
}

func (a *Assignment) SetNext(next Command) { appendNext(a, next) }

func (a *Assignment) String() string {
	return fmt.Sprintf("%s := %s", a.Variable, a.Expression)
}

// IsCall reports whether the right-hand side is a function invocation.
func (a *Assignment) IsCall() bool {
	_, ok := a.Expression.(*FunctionCall)
	return ok
}

// IsReturn reports whether the right-hand side is a function return point.
func (a *Assignment) IsReturn() bool {
	_, ok := a.Expression.(*FunctionReturn)
	return ok
}

// If is a two-way conditional.
type If struct {
	commandLinks
	Condition  Expression
	TrueBlock  Command
	FalseBlock Command
}

// NewIf creates a conditional and parents both branches to it.
func NewIf(cond Expression, trueBlock, falseBlock Command) *If {
	c := &If{Condition: cond, TrueBlock: trueBlock, FalseBlock: falseBlock}
	setParent(trueBlock, c)
	setParent(falseBlock, c)
	return c
}

func (c *If) SetNext(next Command) { appendNext(c, next) }

func (c *If) String() string { return fmt.Sprintf("if %s", c.Condition) }

// BlockCommands returns the first commands of the true and false branches.
func (c *If) BlockCommands() []Command {
	return []Command{c.TrueBlock, c.FalseBlock}
}

// While is a pre-tested loop.
type While struct {
	commandLinks
	Condition Expression
	Body      Command
}

// NewWhile creates a loop and parents its body to it.
func NewWhile(cond Expression, body Command) *While {
	c := &While{Condition: cond, Body: body}
	setParent(body, c)
	return c
}

func (c *While) SetNext(next Command) { appendNext(c, next) }

func (c *While) String() string { return fmt.Sprintf("while %s", c.Condition) }

// BlockCommands returns the first command of the loop body.
func (c *While) BlockCommands() []Command { return []Command{c.Body} }

// Skip does nothing.
type Skip struct {
	commandLinks
}

// NewSkip creates a skip command.
func NewSkip() *Skip { return &Skip{} }

func (c *Skip) SetNext(next Command) { appendNext(c, next) }
func (c *Skip) String() string       { return "skip" }

// Input reads a value into a variable.
type Input struct {
	commandLinks
	Variable *Variable
}

// NewInput creates an input command.
func NewInput(v *Variable) *Input { return &Input{Variable: v} }

func (c *Input) SetNext(next Command) { appendNext(c, next) }
func (c *Input) String() string       { return fmt.Sprintf("input %s", c.Variable) }

// Return leaves the enclosing function with a variable's value.
type Return struct {
	commandLinks
	Variable *Variable
}

// NewReturn creates a return command.
func NewReturn(v *Variable) *Return { return &Return{Variable: v} }

func (c *Return) SetNext(next Command) { appendNext(c, next) }
func (c *Return) String() string       { return fmt.Sprintf("return %s", c.Variable) }

// FunctionDeclaration binds a name to a function definition.
type FunctionDeclaration struct {
	commandLinks
	Name       string
	Definition *FunctionDefinition
}

// NewFunctionDeclaration creates a declaration and parents the body to it.
func NewFunctionDeclaration(name string, def *FunctionDefinition) *FunctionDeclaration {
	c := &FunctionDeclaration{Name: name, Definition: def}
	if def != nil {
		setParent(def.Body, c)
	}
	return c
}

func (c *FunctionDeclaration) SetNext(next Command) { appendNext(c, next) }

func (c *FunctionDeclaration) String() string {
	return fmt.Sprintf("%s = %s", c.Name, c.Definition)
}

// BlockCommands returns the first command of the function body.
func (c *FunctionDeclaration) BlockCommands() []Command {
	if c.Definition == nil {
		return []Command{nil}
	}
	return []Command{c.Definition.Body}
}

// Seq links commands into one block and returns its first command.
func Seq(cmds ...Command) Command {
	if len(cmds) == 0 {
		return nil
	}
	for _, c := range cmds[1:] {
		cmds[0].SetNext(c)
	}
	return cmds[0]
}

// Chain returns the commands of the block starting at first, in order.
func Chain(first Command) []Command {
	var out []Command
	for c := first; c != nil; c = c.Next() {
		out = append(out, c)
	}
	return out
}

// Program is a parsed Lingo program.
type Program struct {
	Functions []*FunctionDeclaration
	Command   Command
	Span      Span
}

// Function returns the declaration with the given name.
func (p *Program) Function(name string) (*FunctionDeclaration, bool) {
	for _, f := range p.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

func (p *Program) String() string {
	var sb strings.Builder
	for _, f := range p.Functions {
		sb.WriteString(f.String())
		sb.WriteString("\n")
	}
	for _, c := range Chain(p.Command) {
		sb.WriteString(c.String())
		sb.WriteString("\n")
	}
	return sb.String()
}
