package session

import (
	"github.com/l3aro/go-sleuth/pkg/analysis"
	"github.com/l3aro/go-sleuth/pkg/signal"
)

func (s *Session) onStep(args signal.Args) error {
	label, err := stringArg(args, signal.ParamNodeLabel)
	if err != nil {
		return err
	}
	return s.Step(label)
}

func (s *Session) onSelectItem(args signal.Args) error {
	label, err := stringArg(args, signal.ParamNodeLabel)
	if err != nil {
		return err
	}
	return s.SelectItem(label)
}

func (s *Session) onQueryNode(args signal.Args) error {
	label, err := stringArg(args, signal.ParamNodeLabel)
	if err != nil {
		return err
	}
	rawDir, err := stringArg(args, signal.ParamDirection)
	if err != nil {
		return err
	}
	rawEnc, err := stringArg(args, signal.ParamEncoding)
	if err != nil {
		return err
	}

	dir, err := analysis.ParseDirection(rawDir)
	if err != nil {
		return err
	}
	enc, err := analysis.ParseEncoding(rawEnc)
	if err != nil {
		return err
	}
	_, err = s.QueryWith(label, dir, enc)
	return err
}

func (s *Session) onSetSortingEnabled(args signal.Args) error {
	enabled, err := signal.Arg[bool](args, signal.ParamEnabled)
	if err != nil {
		return err
	}
	return s.SetSortingEnabled(enabled)
}

// stringArg accepts plain strings and the string-based Direction and
// Encoding types.
func stringArg(args signal.Args, name string) (string, error) {
	switch v := args.Value(name).(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case analysis.Direction:
		return string(v), nil
	case analysis.Encoding:
		return string(v), nil
	default:
		return signal.Arg[string](args, name)
	}
}
