package lingo

import (
	"fmt"
	"strconv"
	"strings"
)

// Expression is a value-producing component.
type Expression interface {
	fmt.Stringer
	exprNode()
}

// VariableKind distinguishes plain, referenced and dereferenced variables.
type VariableKind int

const (
	VarPlain VariableKind = iota // x
	VarRef                       // ref x
	VarDeref                     // !x
)

// Variable is a named storage location.
type Variable struct {
	Name string
	Kind VariableKind
	Span Span
}

// Var returns a plain variable.
func Var(name string) *Variable { return &Variable{Name: name} }

func (*Variable) exprNode() {}

func (v *Variable) String() string {
	switch v.Kind {
	case VarRef:
		return "ref " + v.Name
	case VarDeref:
		return "!" + v.Name
	default:
		return v.Name
	}
}

// Number is an integer literal.
type Number struct {
	Value int
	Span  Span
}

// Num returns an integer literal.
func Num(v int) *Number { return &Number{Value: v} }

func (*Number) exprNode()        {}
func (n *Number) String() string { return strconv.Itoa(n.Value) }

// Boolean is a boolean literal.
type Boolean struct {
	Value bool
	Span  Span
}

// Bool returns a boolean literal.
func Bool(v bool) *Boolean { return &Boolean{Value: v} }

func (*Boolean) exprNode()        {}
func (b *Boolean) String() string { return strconv.FormatBool(b.Value) }

// Operator is a binary operator token.
type Operator string

const (
	OpPlus     Operator = "+"
	OpMinus    Operator = "-"
	OpTimes    Operator = "*"
	OpDivide   Operator = "/"
	OpLess     Operator = "<"
	OpEqual    Operator = "="
	OpNotEqual Operator = "!="
	OpLessEq   Operator = "<="
	OpAnd      Operator = "&&"
	OpOr       Operator = "||"
)

var operators = map[Operator]struct{}{
	OpPlus: {}, OpMinus: {}, OpTimes: {}, OpDivide: {},
	OpLess: {}, OpEqual: {}, OpNotEqual: {}, OpLessEq: {},
	OpAnd: {}, OpOr: {},
}

// ValidOperator reports whether op is a Lingo operator.
func ValidOperator(op Operator) bool {
	_, ok := operators[op]
	return ok
}

// Binary is "left op right".
type Binary struct {
	Left     Expression
	Operator Operator
	Right    Expression
	Span     Span
}

// Bin returns a binary expression.
func Bin(left Expression, op Operator, right Expression) *Binary {
	return &Binary{Left: left, Operator: op, Right: right}
}

func (*Binary) exprNode() {}

func (b *Binary) String() string {
	return fmt.Sprintf("%s %s %s", b.Left, b.Operator, b.Right)
}

// New allocates a value of the given type.
type New struct {
	AllocateType string
	Span         Span
}

func (*New) exprNode()        {}
func (n *New) String() string { return "new " + n.AllocateType }

// FunctionCall invokes a function. In the CFG it marks the CALL point.
type FunctionCall struct {
	Function  *Variable
	Arguments []*Variable
	Span      Span
}

// Call returns a call expression.
func Call(fn string, args ...string) *FunctionCall {
	c := &FunctionCall{Function: Var(fn)}
	for _, a := range args {
		c.Arguments = append(c.Arguments, Var(a))
	}
	return c
}

func (*FunctionCall) exprNode() {}

func (c *FunctionCall) String() string {
	return fmt.Sprintf("%s(%s) [CALL]", c.Function, joinVars(c.Arguments))
}

// ReturnExpression returns the matching RET expression for this call.
func (c *FunctionCall) ReturnExpression() *FunctionReturn {
	return &FunctionReturn{Function: c.Function, Arguments: c.Arguments, Span: c.Span}
}

// FunctionReturn is the return point of a function call.
type FunctionReturn struct {
	Function  *Variable
	Arguments []*Variable
	Span      Span
}

func (*FunctionReturn) exprNode() {}

func (r *FunctionReturn) String() string {
	return fmt.Sprintf("%s(%s) [RET]", r.Function, joinVars(r.Arguments))
}

// Matches reports whether r returns from call.
func (r *FunctionReturn) Matches(call *FunctionCall) bool {
	if r == nil || call == nil || r.Function.Name != call.Function.Name {
		return false
	}
	if len(r.Arguments) != len(call.Arguments) {
		return false
	}
	for i := range r.Arguments {
		if r.Arguments[i].Name != call.Arguments[i].Name {
			return false
		}
	}
	return true
}

// FunctionDefinition is an anonymous function.
type FunctionDefinition struct {
	Parameters []*Variable
	Body       Command
	Span       Span
}

func (*FunctionDefinition) exprNode() {}

func (d *FunctionDefinition) String() string {
	return fmt.Sprintf("fun(%s)", joinVars(d.Parameters))
}

func joinVars(vars []*Variable) string {
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.String()
	}
	return strings.Join(names, ", ")
}

// Variables returns the variable names read by expr, in order of appearance.
func Variables(expr Expression) []string {
	var out []string
	var walk func(e Expression)
	walk = func(e Expression) {
		switch x := e.(type) {
		case *Variable:
			out = append(out, x.Name)
		case *Binary:
			walk(x.Left)
			walk(x.Right)
		case *FunctionCall:
			for _, a := range x.Arguments {
				out = append(out, a.Name)
			}
		case *FunctionReturn:
			for _, a := range x.Arguments {
				out = append(out, a.Name)
			}
		}
	}
	walk(expr)
	return out
}

// Defined returns the variable assigned by cmd, or "" if it defines none.
func Defined(cmd Command) string {
	switch c := cmd.(type) {
	case *Assignment:
		// The value of a call is only available at its return point.
		if c.IsCall() {
			return ""
		}
		if c.Variable != nil && c.Variable.Kind == VarPlain {
			return c.Variable.Name
		}
	case *Input:
		if c.Variable != nil {
			return c.Variable.Name
		}
	}
	return ""
}

// Used returns the variable names read by cmd.
func Used(cmd Command) []string {
	switch c := cmd.(type) {
	case *Assignment:
		uses := Variables(c.Expression)
		if c.Variable != nil && c.Variable.Kind == VarDeref {
			uses = append(uses, c.Variable.Name)
		}
		return uses
	case *If:
		return Variables(c.Condition)
	case *While:
		return Variables(c.Condition)
	case *Return:
		if c.Variable != nil {
			return []string{c.Variable.Name}
		}
	}
	return nil
}
