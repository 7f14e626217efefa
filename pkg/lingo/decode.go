package lingo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrParse is wrapped by every ParseError.
var ErrParse = errors.New("parse error")

// ParseError reports a malformed program document with its location.
type ParseError struct {
	Path   string
	Line   int
	Column int
	Msg    string
	Err    error
}

func (e *ParseError) Error() string {
	loc := fmt.Sprintf("%d:%d", e.Line, e.Column)
	if e.Path != "" {
		loc = e.Path + ":" + loc
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", loc, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", loc, e.Msg)
}

func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrParse, e.Err}
	}
	return []error{ErrParse}
}

// LoadFile reads and decodes a program document.
// Read failures are returned as-is so callers can tell them apart from ParseError.
func LoadFile(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	prog, err := Decode(f)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	return prog, nil
}

// Decode reads a YAML program document:
//
//	functions:
//	  - name: foo
//	    params: [x]
//	    body:
//	      - return: x
//	program:
//	  - assign: a
//	    value: 1
//	  - assign: b
//	    call: foo
//	    args: [a]
//	  - if: {op: "<", left: a, right: b}
//	    then: [...]
//	    else: [...]
//	  - while: true
//	    do: [...]
//	  - input: x
//	  - skip
func Decode(r io.Reader) (*Program, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Line: 1, Column: 1, Msg: "empty program document"}
		}
		return nil, &ParseError{Line: 1, Column: 1, Msg: "invalid YAML", Err: err}
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, errorAt(root, "program document must be a mapping")
	}

	d := &decoder{}
	prog := &Program{Span: spanOf(root)}
	seen := false
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		switch key.Value {
		case "functions":
			fns, err := d.functions(val)
			if err != nil {
				return nil, err
			}
			prog.Functions = fns
		case "program":
			cmd, err := d.block(val)
			if err != nil {
				return nil, err
			}
			prog.Command = cmd
			seen = true
		default:
			return nil, errorAt(key, fmt.Sprintf("unknown top-level key %q", key.Value))
		}
	}
	if !seen {
		return nil, errorAt(root, `missing "program" section`)
	}
	return prog, nil
}

type decoder struct{}

func errorAt(n *yaml.Node, msg string) *ParseError {
	return &ParseError{Line: n.Line, Column: n.Column, Msg: msg}
}

func spanOf(n *yaml.Node) Span {
	end := n
	for len(end.Content) > 0 {
		end = end.Content[len(end.Content)-1]
	}
	return Span{
		StartLine:   n.Line,
		StartColumn: n.Column,
		EndLine:     end.Line,
		EndColumn:   end.Column + len(end.Value),
	}
}

func (d *decoder) functions(n *yaml.Node) ([]*FunctionDeclaration, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, errorAt(n, `"functions" must be a sequence`)
	}
	out := make([]*FunctionDeclaration, 0, len(n.Content))
	for _, item := range n.Content {
		fn, err := d.function(item)
		if err != nil {
			return nil, err
		}
		out = append(out, fn)
	}
	return out, nil
}

func (d *decoder) function(n *yaml.Node) (*FunctionDeclaration, error) {
	fields, err := mapping(n)
	if err != nil {
		return nil, err
	}
	nameNode, ok := fields["name"]
	if !ok {
		nameNode, ok = fields["def"]
	}
	if !ok || nameNode.Kind != yaml.ScalarNode || nameNode.Value == "" {
		return nil, errorAt(n, "function declaration requires a name")
	}
	bodyNode, ok := fields["body"]
	if !ok {
		return nil, errorAt(n, fmt.Sprintf("function %q has no body", nameNode.Value))
	}
	body, err := d.block(bodyNode)
	if err != nil {
		return nil, err
	}

	def := &FunctionDefinition{Body: body, Span: spanOf(n)}
	if params, ok := fields["params"]; ok {
		vars, err := variables(params)
		if err != nil {
			return nil, err
		}
		def.Parameters = vars
	}

	decl := NewFunctionDeclaration(nameNode.Value, def)
	decl.SetSpan(spanOf(n))
	return decl, nil
}

func (d *decoder) block(n *yaml.Node) (Command, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, errorAt(n, "block must be a sequence of commands")
	}
	if len(n.Content) == 0 {
		return nil, errorAt(n, "block must contain at least one command")
	}
	cmds := make([]Command, 0, len(n.Content))
	for _, item := range n.Content {
		cmd, err := d.command(item)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return Seq(cmds...), nil
}

func (d *decoder) command(n *yaml.Node) (Command, error) {
	if n.Kind == yaml.ScalarNode {
		if n.Value == "skip" {
			c := NewSkip()
			c.SetSpan(spanOf(n))
			return c, nil
		}
		return nil, errorAt(n, fmt.Sprintf("unknown command %q", n.Value))
	}

	fields, err := mapping(n)
	if err != nil {
		return nil, err
	}

	var cmd Command
	switch {
	case fields["assign"] != nil:
		cmd, err = d.assignment(n, fields)
	case fields["if"] != nil:
		cmd, err = d.conditional(n, fields)
	case fields["while"] != nil:
		cmd, err = d.loop(n, fields)
	case fields["input"] != nil:
		var v *Variable
		if v, err = variable(fields["input"]); err == nil {
			cmd = NewInput(v)
		}
	case fields["return"] != nil:
		var v *Variable
		if v, err = variable(fields["return"]); err == nil {
			cmd = NewReturn(v)
		}
	case fields["skip"] != nil:
		cmd = NewSkip()
	case fields["def"] != nil:
		cmd, err = d.function(n)
	default:
		return nil, errorAt(n, "unrecognized command")
	}
	if err != nil {
		return nil, err
	}
	cmd.SetSpan(spanOf(n))
	return cmd, nil
}

func (d *decoder) assignment(n *yaml.Node, fields map[string]*yaml.Node) (Command, error) {
	target, err := variable(fields["assign"])
	if err != nil {
		return nil, err
	}

	var expr Expression
	switch {
	case fields["call"] != nil:
		fn, err := variable(fields["call"])
		if err != nil {
			return nil, err
		}
		call := &FunctionCall{Function: fn, Span: spanOf(n)}
		if args, ok := fields["args"]; ok {
			if call.Arguments, err = variables(args); err != nil {
				return nil, err
			}
		}
		expr = call
	case fields["value"] != nil:
		if expr, err = expression(fields["value"]); err != nil {
			return nil, err
		}
	case fields["new"] != nil:
		expr = &New{AllocateType: fields["new"].Value, Span: spanOf(fields["new"])}
	default:
		return nil, errorAt(n, fmt.Sprintf("assignment to %s has no value", target))
	}
	return NewAssignment(target, expr), nil
}

func (d *decoder) conditional(n *yaml.Node, fields map[string]*yaml.Node) (Command, error) {
	cond, err := expression(fields["if"])
	if err != nil {
		return nil, err
	}
	thenNode, ok := fields["then"]
	if !ok {
		return nil, errorAt(n, `"if" requires a "then" block`)
	}
	elseNode, ok := fields["else"]
	if !ok {
		return nil, errorAt(n, `"if" requires an "else" block`)
	}
	trueBlock, err := d.block(thenNode)
	if err != nil {
		return nil, err
	}
	falseBlock, err := d.block(elseNode)
	if err != nil {
		return nil, err
	}
	return NewIf(cond, trueBlock, falseBlock), nil
}

func (d *decoder) loop(n *yaml.Node, fields map[string]*yaml.Node) (Command, error) {
	cond, err := expression(fields["while"])
	if err != nil {
		return nil, err
	}
	bodyNode, ok := fields["do"]
	if !ok {
		return nil, errorAt(n, `"while" requires a "do" block`)
	}
	body, err := d.block(bodyNode)
	if err != nil {
		return nil, err
	}
	return NewWhile(cond, body), nil
}

func expression(n *yaml.Node) (Expression, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!int":
			var v int
			if err := n.Decode(&v); err != nil {
				return nil, &ParseError{Line: n.Line, Column: n.Column, Msg: "invalid number", Err: err}
			}
			return &Number{Value: v, Span: spanOf(n)}, nil
		case "!!bool":
			var v bool
			if err := n.Decode(&v); err != nil {
				return nil, &ParseError{Line: n.Line, Column: n.Column, Msg: "invalid boolean", Err: err}
			}
			return &Boolean{Value: v, Span: spanOf(n)}, nil
		default:
			return variable(n)
		}
	case yaml.MappingNode:
		fields, err := mapping(n)
		if err != nil {
			return nil, err
		}
		if fn, ok := fields["call"]; ok {
			callee, err := variable(fn)
			if err != nil {
				return nil, err
			}
			call := &FunctionCall{Function: callee, Span: spanOf(n)}
			if args, ok := fields["args"]; ok {
				if call.Arguments, err = variables(args); err != nil {
					return nil, err
				}
			}
			return call, nil
		}
		if t, ok := fields["new"]; ok {
			return &New{AllocateType: t.Value, Span: spanOf(n)}, nil
		}
		opNode, ok := fields["op"]
		if !ok {
			return nil, errorAt(n, "expression mapping requires op, call or new")
		}
		op := Operator(opNode.Value)
		if !ValidOperator(op) {
			return nil, errorAt(opNode, fmt.Sprintf("unknown operator %q", opNode.Value))
		}
		leftNode, lok := fields["left"]
		rightNode, rok := fields["right"]
		if !lok || !rok {
			return nil, errorAt(n, fmt.Sprintf("operator %q requires left and right operands", op))
		}
		left, err := expression(leftNode)
		if err != nil {
			return nil, err
		}
		right, err := expression(rightNode)
		if err != nil {
			return nil, err
		}
		return &Binary{Left: left, Operator: op, Right: right, Span: spanOf(n)}, nil
	default:
		return nil, errorAt(n, "expression must be a scalar or a mapping")
	}
}

func variable(n *yaml.Node) (*Variable, error) {
	if n == nil || n.Kind != yaml.ScalarNode || n.Value == "" {
		if n == nil {
			return nil, &ParseError{Msg: "missing variable"}
		}
		return nil, errorAt(n, "expected a variable name")
	}
	v := &Variable{Name: n.Value, Span: spanOf(n)}
	switch {
	case strings.HasPrefix(n.Value, "ref "):
		v.Kind = VarRef
		v.Name = strings.TrimSpace(strings.TrimPrefix(n.Value, "ref "))
	case strings.HasPrefix(n.Value, "!"):
		v.Kind = VarDeref
		v.Name = strings.TrimPrefix(n.Value, "!")
	}
	if !isIdentifier(v.Name) {
		return nil, errorAt(n, fmt.Sprintf("invalid identifier %q", v.Name))
	}
	return v, nil
}

func variables(n *yaml.Node) ([]*Variable, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, errorAt(n, "expected a sequence of variable names")
	}
	out := make([]*Variable, 0, len(n.Content))
	for _, item := range n.Content {
		v, err := variable(item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func mapping(n *yaml.Node) (map[string]*yaml.Node, error) {
	if n.Kind != yaml.MappingNode {
		return nil, errorAt(n, "expected a mapping")
	}
	out := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i]
		if _, dup := out[key.Value]; dup {
			return nil, errorAt(key, fmt.Sprintf("duplicate key %q", key.Value))
		}
		out[key.Value] = n.Content[i+1]
	}
	return out, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
