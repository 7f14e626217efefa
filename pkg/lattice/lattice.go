// Package lattice provides the value-domain sentinels shared by all analyses.
//
// The information ordering is TOP ⊑ any concrete value ⊑ BOTTOM: TOP means
// nothing is known yet (or the point is unreachable so far) and BOTTOM means
// conflicting information was observed, so the least precise result holds.
package lattice

import (
	"fmt"
	"reflect"
)

// Value is a lattice element: a concrete analysis value or a Sentinel.
type Value = any

// Sentinel is one of the two distinguished lattice elements.
type Sentinel int

const (
	Top Sentinel = iota + 1
	Bottom
)

func (s Sentinel) String() string {
	switch s {
	case Top:
		return "TOP"
	case Bottom:
		return "BOTTOM"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the sentinel as its name.
func (s Sentinel) MarshalText() ([]byte, error) {
	if s != Top && s != Bottom {
		return nil, fmt.Errorf("invalid lattice sentinel %d", int(s))
	}
	return []byte(s.String()), nil
}

// IsTop reports whether v is TOP. A nil value counts as TOP.
func IsTop(v Value) bool {
	if v == nil {
		return true
	}
	s, ok := v.(Sentinel)
	return ok && s == Top
}

// IsBottom reports whether v is BOTTOM.
func IsBottom(v Value) bool {
	s, ok := v.(Sentinel)
	return ok && s == Bottom
}

// Equal compares two values for change detection.
func Equal(a, b Value) bool {
	if IsTop(a) || IsTop(b) {
		return IsTop(a) && IsTop(b)
	}
	return reflect.DeepEqual(a, b)
}

// Leq reports a ⊑ b in the information ordering.
func Leq(a, b Value) bool {
	return IsTop(a) || IsBottom(b) || Equal(a, b)
}

// Meet folds values with combine. TOP values are ignored and BOTTOM is
// absorbing; when every value is TOP (or there are none) the result is TOP.
func Meet(values []Value, combine func(a, b Value) Value) Value {
	var acc Value = Top
	for _, v := range values {
		switch {
		case IsBottom(v):
			return Bottom
		case IsTop(v):
			continue
		case IsTop(acc):
			acc = v
		default:
			acc = combine(acc, v)
			if IsBottom(acc) {
				return Bottom
			}
		}
	}
	return acc
}

// Widen returns next unless it differs from a previously computed concrete
// value, in which case it returns BOTTOM.
func Widen(prev, next Value) Value {
	if IsTop(prev) || Equal(prev, next) {
		return next
	}
	return Bottom
}

// Format renders a value for display.
func Format(v Value) string {
	if IsTop(v) {
		return Top.String()
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}
