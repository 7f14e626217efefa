package cfg

import "iter"

// Paths lazily enumerates the paths from root to the end of the graph.
//
// A path ends at a terminal node or just before it would revisit a node
// already on it, so each loop back-edge is followed at most once per path.
// The repeated node is not appended.
func Paths(root *CommandNode) iter.Seq[[]*CommandNode] {
	return func(yield func([]*CommandNode) bool) {
		if root == nil {
			return
		}
		onPath := make(map[NodeID]bool)
		var path []*CommandNode

		emit := func() bool {
			return yield(append([]*CommandNode(nil), path...))
		}

		var walk func(n *CommandNode) bool
		walk = func(n *CommandNode) bool {
			path = append(path, n)
			onPath[n.ID] = true
			defer func() {
				path = path[:len(path)-1]
				delete(onPath, n.ID)
			}()

			if n.terminal || len(n.succs) == 0 {
				if !emit() {
					return false
				}
			}
			for _, next := range n.Successors() {
				if onPath[next.ID] {
					if !emit() {
						return false
					}
					continue
				}
				if !walk(next) {
					return false
				}
			}
			return true
		}
		walk(root)
	}
}
