package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/go-sleuth/pkg/lattice"
)

// Encoding selects how a NodeInfo is rendered for observers.
type Encoding string

const (
	EncodingText    Encoding = "text"
	EncodingJSON    Encoding = "json"
	EncodingMsgpack Encoding = "msgpack"
)

// ParseEncoding validates an encoding name. Empty means text.
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(s) {
	case "", EncodingText:
		return EncodingText, nil
	case EncodingJSON, EncodingMsgpack:
		return Encoding(s), nil
	default:
		return "", fmt.Errorf("unknown encoding %q (want text, json or msgpack)", s)
	}
}

// wireInfo is the decoded form of a serialized NodeInfo.
type wireInfo struct {
	ID    int    `json:"id" msgpack:"id"`
	Label string `json:"label" msgpack:"label"`
	In    any    `json:"in" msgpack:"in"`
	Out   any    `json:"out" msgpack:"out"`
}

// Encode renders info in the given encoding, restricted to its direction.
// Serialized forms carry only the "in"/"out" keys of the selected direction.
func Encode(info NodeInfo, enc Encoding) ([]byte, error) {
	dir := info.Direction
	if dir == "" {
		dir = DirectionBoth
	}

	id, label := -1, ""
	if info.Node != nil {
		id, label = int(info.Node.ID), info.Node.Label
	}
	fields := map[string]any{"id": id, "label": label}
	if dir != DirectionOut {
		fields["in"] = plain(info.In)
	}
	if dir != DirectionIn {
		fields["out"] = plain(info.Out)
	}

	switch enc {
	case EncodingJSON:
		return json.Marshal(fields)
	case EncodingMsgpack:
		var buf bytes.Buffer
		if err := msgpack.NewEncoder(&buf).SetSortMapKeys(true).Encode(fields); err != nil {
			return nil, fmt.Errorf("encoding node info: %w", err)
		}
		return buf.Bytes(), nil
	case "", EncodingText:
		var sb strings.Builder
		sb.WriteString(label)
		if dir != DirectionOut {
			fmt.Fprintf(&sb, "\n  IN:  %s", FormatValue(info.In))
		}
		if dir != DirectionIn {
			fmt.Fprintf(&sb, "\n  OUT: %s", FormatValue(info.Out))
		}
		return []byte(sb.String()), nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", enc)
	}
}

// DecodeMsgpack reads a msgpack-encoded NodeInfo back into plain values.
// Sentinels come back as their names.
func DecodeMsgpack(data []byte) (id int, label string, in, out any, err error) {
	var w wireInfo
	if err := msgpack.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return 0, "", nil, nil, fmt.Errorf("decoding node info: %w", err)
	}
	return w.ID, w.Label, w.In, w.Out, nil
}

// FormatValue renders a lattice value for display. Sets print sorted.
func FormatValue(v lattice.Value) string {
	switch x := plain(v).(type) {
	case []string:
		return "{" + strings.Join(x, ", ") + "}"
	case string:
		return x
	default:
		return lattice.Format(x)
	}
}

// plain replaces sentinels by their names and set-like maps by sorted key lists.
func plain(v lattice.Value) any {
	if lattice.IsTop(v) {
		return lattice.Top.String()
	}
	if lattice.IsBottom(v) {
		return lattice.Bottom.String()
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		elem := rv.Type().Elem()
		if elem.Kind() == reflect.Bool || (elem.Kind() == reflect.Struct && elem.NumField() == 0) {
			keys := make([]string, 0, rv.Len())
			for _, k := range rv.MapKeys() {
				keys = append(keys, k.String())
			}
			sort.Strings(keys)
			return keys
		}
	}
	return v
}
