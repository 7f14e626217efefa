package cfg

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

var dotEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// WriteDot writes edges as a Graphviz digraph. Every node appearing in a
// pair is declared, including nodes whose only pair is terminal; terminal
// nodes are drawn with a double border.
func WriteDot(w io.Writer, edges []EdgePair) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "digraph cfg {")
	fmt.Fprintln(bw, "  node [shape=box, fontname=\"monospace\"];")

	declared := make(map[NodeID]bool)
	declare := func(n *CommandNode) {
		if n == nil || declared[n.ID] {
			return
		}
		declared[n.ID] = true
		periph := 1
		if n.terminal {
			periph = 2
		}
		fmt.Fprintf(bw, "  %s [label=\"%s\", peripheries=%d];\n", n.ID, dotEscaper.Replace(n.Label), periph)
	}

	for _, e := range edges {
		declare(e.Source)
		declare(e.Destination)
	}
	for _, e := range edges {
		if e.Source == nil || e.Destination == nil {
			continue
		}
		fmt.Fprintf(bw, "  %s -> %s;\n", e.Source.ID, e.Destination.ID)
	}

	fmt.Fprintln(bw, "}")
	return bw.Flush()
}
