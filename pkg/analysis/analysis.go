// Package analysis defines the contract between the fixpoint engine and a
// client dataflow analysis.
package analysis

import (
	"fmt"
	"reflect"

	"github.com/l3aro/go-sleuth/pkg/cfg"
	"github.com/l3aro/go-sleuth/pkg/lattice"
)

// Analysis is a pluggable client analysis.
//
// Prepare seeds the worklist. Process computes new information for
// item.Node, updates the analysis's own cache and returns the items that may
// need re-examination, or nothing when the information did not change.
// Query returns the best known information for a node and must yield TOP
// values for nodes it has never computed.
type Analysis interface {
	Prepare(entry *cfg.CommandNode, nodes map[cfg.NodeID]*cfg.CommandNode) ([]WorklistInfo, error)
	Process(item WorklistInfo) ([]WorklistInfo, error)
	Query(node *cfg.CommandNode) (NodeInfo, error)
}

// WorklistInfo is a pending unit of work.
type WorklistInfo struct {
	Node *cfg.CommandNode `json:"node"`
	Rank int              `json:"rank"` // Client-assigned ordering key
}

func (w WorklistInfo) String() string {
	if w.Node == nil {
		return "<nil>"
	}
	return w.Node.Label
}

// Direction selects which values of a NodeInfo are reported.
type Direction string

const (
	DirectionIn   Direction = "in"
	DirectionOut  Direction = "out"
	DirectionBoth Direction = "both"
)

// ParseDirection validates a direction name. Empty means both.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case "", DirectionBoth:
		return DirectionBoth, nil
	case DirectionIn, DirectionOut:
		return Direction(s), nil
	default:
		return "", fmt.Errorf("unknown direction %q (want in, out or both)", s)
	}
}

// NodeInfo is the analysis result for one node.
type NodeInfo struct {
	Node      *cfg.CommandNode `json:"-"`
	In        lattice.Value    `json:"in"`
	Out       lattice.Value    `json:"out"`
	Direction Direction        `json:"direction,omitempty"`
	Encoding  Encoding         `json:"encoding,omitempty"`
}

// TopInfo returns the NodeInfo of a node nothing has been computed for.
func TopInfo(node *cfg.CommandNode) NodeInfo {
	return NodeInfo{Node: node, In: lattice.Top, Out: lattice.Top}
}

// Conform checks that a is usable as an analysis.
func Conform(a Analysis) error {
	if a == nil {
		return &ConfigurationError{Reason: "no analysis supplied"}
	}
	v := reflect.ValueOf(a)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		if v.IsNil() {
			return &ConfigurationError{Reason: fmt.Sprintf("analysis %T is nil", a)}
		}
	}
	return nil
}

// Name returns a short display name for an analysis.
func Name(a Analysis) string {
	if n, ok := a.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", a)
}
