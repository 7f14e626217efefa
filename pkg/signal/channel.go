// Package signal implements a synchronous publish/subscribe bus whose
// channels declare a fixed, ordered parameter list.
package signal

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrProtocol is wrapped by every ProtocolError.
var ErrProtocol = errors.New("signal protocol violation")

// ProtocolError reports a fire whose arguments do not match the channel
// declaration. It is a programming error and is never handled by the bus.
type ProtocolError struct {
	Channel string
	Reason  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrProtocol, e.Channel, e.Reason)
}

func (e *ProtocolError) Unwrap() error { return ErrProtocol }

// NamedArg binds a value to a declared parameter name.
type NamedArg struct {
	Name  string
	Value any
}

// Named returns a named argument for Fire.
func Named(name string, value any) NamedArg {
	return NamedArg{Name: name, Value: value}
}

// Args holds the arguments of one fire, in declaration order.
type Args struct {
	channel string
	names   []string
	values  []any
}

// Channel returns the name of the firing channel.
func (a Args) Channel() string { return a.channel }

// Len returns the number of arguments.
func (a Args) Len() int { return len(a.values) }

// At returns the i-th argument.
func (a Args) At(i int) any { return a.values[i] }

// Get returns the argument bound to a declared parameter.
func (a Args) Get(name string) (any, bool) {
	for i, n := range a.names {
		if n == name {
			return a.values[i], true
		}
	}
	return nil, false
}

// Value returns the argument bound to name, or nil.
func (a Args) Value(name string) any {
	v, _ := a.Get(name)
	return v
}

// Listener receives one fire.
type Listener func(args Args) error

// Subscription identifies a registered listener.
type Subscription uint64

type entry struct {
	id Subscription
	fn Listener
}

// Channel is one event with a declared parameter list.
type Channel struct {
	name   string
	params []string

	mu        sync.Mutex
	nextID    Subscription
	listeners []entry
}

// NewChannel declares a channel.
func NewChannel(name string, params ...string) *Channel {
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if p == "" || seen[p] {
			panic(fmt.Sprintf("signal: channel %s: invalid parameter list %v", name, params))
		}
		seen[p] = true
	}
	return &Channel{name: name, params: append([]string(nil), params...)}
}

func (c *Channel) String() string {
	return fmt.Sprintf("%s(%s)", c.name, strings.Join(c.params, ", "))
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

// Params returns the declared parameter names.
func (c *Channel) Params() []string { return append([]string(nil), c.params...) }

// Len returns the number of registered listeners.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

// Register appends a listener. Listeners run in registration order.
func (c *Channel) Register(fn Listener) Subscription {
	if fn == nil {
		panic(fmt.Sprintf("signal: nil listener registered on %s", c.name))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.listeners = append(c.listeners, entry{id: c.nextID, fn: fn})
	return c.nextID
}

// Unregister removes a listener and reports whether it was registered.
func (c *Channel) Unregister(sub Subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.listeners {
		if e.id == sub {
			c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// Fire checks args against the declaration and then calls every listener
// registered when Fire started. Arguments are positional values or NamedArg;
// positional arguments come first. Listener errors do not stop dispatch and
// are returned joined.
func (c *Channel) Fire(args ...any) error {
	bound, err := c.bind(args)
	if err != nil {
		return err
	}

	c.mu.Lock()
	snapshot := make([]entry, len(c.listeners))
	copy(snapshot, c.listeners)
	c.mu.Unlock()

	var errs []error
	for _, e := range snapshot {
		if err := e.fn(bound); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Channel) bind(args []any) (Args, error) {
	if len(args) != len(c.params) {
		return Args{}, &ProtocolError{
			Channel: c.name,
			Reason:  fmt.Sprintf("expected %d parameters %v but got %d", len(c.params), c.params, len(args)),
		}
	}

	values := make([]any, len(c.params))
	set := make([]bool, len(c.params))
	named := false
	for i, arg := range args {
		na, ok := arg.(NamedArg)
		if !ok {
			if named {
				return Args{}, &ProtocolError{Channel: c.name, Reason: fmt.Sprintf("positional argument %d follows a named argument", i)}
			}
			values[i] = arg
			set[i] = true
			continue
		}
		named = true
		idx := c.index(na.Name)
		if idx < 0 {
			return Args{}, &ProtocolError{Channel: c.name, Reason: fmt.Sprintf("unexpected parameter %q", na.Name)}
		}
		if set[idx] {
			return Args{}, &ProtocolError{Channel: c.name, Reason: fmt.Sprintf("parameter %q given twice", na.Name)}
		}
		values[idx] = na.Value
		set[idx] = true
	}
	return Args{channel: c.name, names: c.params, values: values}, nil
}

func (c *Channel) index(name string) int {
	for i, p := range c.params {
		if p == name {
			return i
		}
	}
	return -1
}
