package signal

import (
	"fmt"

	"github.com/l3aro/go-sleuth/pkg/analysis"
	"github.com/l3aro/go-sleuth/pkg/cfg"
)

// Parameter names of the analysis channels.
const (
	ParamNodeLabel = "node_label"
	ParamDirection = "direction"
	ParamEncoding  = "encoding"
	ParamEnabled   = "enabled"
	ParamLabels    = "labels"
	ParamError     = "error"
	ParamInfo      = "info"
	ParamNode      = "node"
)

// Events is the channel set connecting an analysis session to its callers
// and observers.
type Events struct {
	// Inbound commands.
	Step              *Channel // step(node_label)
	QueryNode         *Channel // queryNode(node_label, direction, encoding)
	SetSortingEnabled *Channel // setSortingEnabled(enabled)
	SelectItem        *Channel // selectItem(node_label)

	// Outbound notifications.
	WorklistUpdated  *Channel // worklistUpdated(labels)
	ClientException  *Channel // clientException(error)
	NodeInfoReady    *Channel // nodeInfoReady(info)
	AnalysisComplete *Channel // analysisComplete()
	NodeSelected     *Channel // nodeSelected(node)
}

// NewEvents declares a fresh channel set.
func NewEvents() *Events {
	return &Events{
		Step:              NewChannel("step", ParamNodeLabel),
		QueryNode:         NewChannel("queryNode", ParamNodeLabel, ParamDirection, ParamEncoding),
		SetSortingEnabled: NewChannel("setSortingEnabled", ParamEnabled),
		SelectItem:        NewChannel("selectItem", ParamNodeLabel),
		WorklistUpdated:   NewChannel("worklistUpdated", ParamLabels),
		ClientException:   NewChannel("clientException", ParamError),
		NodeInfoReady:     NewChannel("nodeInfoReady", ParamInfo),
		AnalysisComplete:  NewChannel("analysisComplete"),
		NodeSelected:      NewChannel("nodeSelected", ParamNode),
	}
}

// Channels returns every channel in declaration order.
func (e *Events) Channels() []*Channel {
	return []*Channel{
		e.Step, e.QueryNode, e.SetSortingEnabled, e.SelectItem,
		e.WorklistUpdated, e.ClientException, e.NodeInfoReady, e.AnalysisComplete, e.NodeSelected,
	}
}

// FireStep requests processing of the pending item with the given label.
func (e *Events) FireStep(label string) error {
	return e.Step.Fire(Named(ParamNodeLabel, label))
}

// FireQueryNode requests the analysis information of a node.
func (e *Events) FireQueryNode(label string, dir analysis.Direction, enc analysis.Encoding) error {
	return e.QueryNode.Fire(label, dir, enc)
}

// FireSetSortingEnabled toggles worklist sorting.
func (e *Events) FireSetSortingEnabled(enabled bool) error {
	return e.SetSortingEnabled.Fire(enabled)
}

// FireSelectItem selects a pending item without processing it.
func (e *Events) FireSelectItem(label string) error {
	return e.SelectItem.Fire(Named(ParamNodeLabel, label))
}

// OnWorklistUpdated registers fn for worklist updates.
func (e *Events) OnWorklistUpdated(fn func(labels []string)) Subscription {
	return e.WorklistUpdated.Register(func(args Args) error {
		labels, err := Arg[[]string](args, ParamLabels)
		if err != nil {
			return err
		}
		fn(labels)
		return nil
	})
}

// OnClientException registers fn for isolated client analysis failures.
func (e *Events) OnClientException(fn func(err error)) Subscription {
	return e.ClientException.Register(func(args Args) error {
		cerr, err := Arg[error](args, ParamError)
		if err != nil {
			return err
		}
		fn(cerr)
		return nil
	})
}

// OnNodeInfoReady registers fn for query results.
func (e *Events) OnNodeInfoReady(fn func(info analysis.NodeInfo)) Subscription {
	return e.NodeInfoReady.Register(func(args Args) error {
		info, err := Arg[analysis.NodeInfo](args, ParamInfo)
		if err != nil {
			return err
		}
		fn(info)
		return nil
	})
}

// OnAnalysisComplete registers fn for the fixpoint notification.
func (e *Events) OnAnalysisComplete(fn func()) Subscription {
	return e.AnalysisComplete.Register(func(Args) error {
		fn()
		return nil
	})
}

// OnNodeSelected registers fn for the node picked by each step or item
// selection.
func (e *Events) OnNodeSelected(fn func(node *cfg.CommandNode)) Subscription {
	return e.NodeSelected.Register(func(args Args) error {
		node, err := Arg[*cfg.CommandNode](args, ParamNode)
		if err != nil {
			return err
		}
		fn(node)
		return nil
	})
}

// Arg returns a typed argument, or a ProtocolError if it is missing or of
// another type. A nil value yields the zero T.
func Arg[T any](args Args, name string) (T, error) {
	var zero T
	raw, ok := args.Get(name)
	if !ok {
		return zero, &ProtocolError{Channel: args.channel, Reason: fmt.Sprintf("no parameter %q", name)}
	}
	if raw == nil {
		return zero, nil
	}
	v, ok := raw.(T)
	if !ok {
		return zero, &ProtocolError{Channel: args.channel, Reason: fmt.Sprintf("parameter %q has type %T, want %T", name, raw, zero)}
	}
	return v, nil
}
