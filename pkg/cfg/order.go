package cfg

// ReversePostOrder returns the nodes reachable from root in reverse
// post-order. Sibling successors are ranked in declaration order: the true
// branch precedes the false branch and a loop body precedes the loop exit.
func ReversePostOrder(root *CommandNode) []*CommandNode {
	if root == nil {
		return nil
	}
	g := root.graph
	visited := make(map[NodeID]bool, g.Len())
	postOrder := make([]NodeID, 0, g.Len())

	// Iterative DFS using explicit stack. Children are pushed last-declared
	// first so the first-declared subtree finishes last and leads the reversal.
	type frame struct {
		id       NodeID
		childIdx int
		started  bool
	}
	stack := []frame{{id: root.ID}}
	visited[root.ID] = true

	for len(stack) > 0 {
		current := &stack[len(stack)-1]
		succs := g.nodes[current.id].succs
		if !current.started {
			current.started = true
			current.childIdx = len(succs) - 1
		}

		foundUnvisited := false
		for current.childIdx >= 0 {
			child := succs[current.childIdx]
			current.childIdx--
			if !visited[child] {
				visited[child] = true
				stack = append(stack, frame{id: child})
				foundUnvisited = true
				break
			}
		}

		if !foundUnvisited {
			postOrder = append(postOrder, current.id)
			stack = stack[:len(stack)-1]
		}
	}

	out := make([]*CommandNode, len(postOrder))
	for i, id := range postOrder {
		out[len(postOrder)-1-i] = g.nodes[id]
	}
	return out
}

// RPORanks maps every node reachable from root to its reverse post-order index.
func RPORanks(root *CommandNode) map[NodeID]int {
	order := ReversePostOrder(root)
	ranks := make(map[NodeID]int, len(order))
	for i, n := range order {
		ranks[n.ID] = i
	}
	return ranks
}
