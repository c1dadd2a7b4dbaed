// Package graph implements the root's binary tree of peers: BFS for
// the shallowest open parent slot, subtree on/off propagation, and
// pruning.
package graph

import (
	"sync"

	"github.com/go-treecast/treecast/packet"
)

// GraphNode is one node of the root's tree.
type GraphNode struct {
	Address    packet.Address
	Parent     *GraphNode
	LeftChild  *GraphNode
	RightChild *GraphNode
	IsOn       bool
}

// children returns the actually-present children of n.
func (n *GraphNode) children() []*GraphNode {
	var out []*GraphNode
	if n.LeftChild != nil {
		out = append(out, n.LeftChild)
	}
	if n.RightChild != nil {
		out = append(out, n.RightChild)
	}
	return out
}

// canHaveChild reports whether n has an open child slot.
func (n *GraphNode) canHaveChild() bool {
	return n.LeftChild == nil || n.RightChild == nil
}

// addChild attaches child into n's first free slot, left preferred,
// and reports whether a slot was available.
func (n *GraphNode) addChild(child *GraphNode) bool {
	if n.LeftChild == nil {
		n.LeftChild = child
		return true
	}
	if n.RightChild == nil {
		n.RightChild = child
		return true
	}
	return false
}

// NetworkGraph is the root's tree store: the rooted binary tree plus
// an address index over every node in it.
type NetworkGraph struct {
	mu    sync.Mutex
	root  *GraphNode
	nodes map[packet.Address]*GraphNode
}

// New builds a NetworkGraph whose sole node is rootAddr, already on.
func New(rootAddr packet.Address) *NetworkGraph {
	root := &GraphNode{Address: rootAddr, IsOn: true}
	return &NetworkGraph{
		root:  root,
		nodes: map[packet.Address]*GraphNode{rootAddr: root},
	}
}

// Root returns the tree's root node.
func (g *NetworkGraph) Root() *GraphNode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.root
}

// Node looks up the graph node at addr, if any.
func (g *NetworkGraph) Node(addr packet.Address) (*GraphNode, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[addr]
	return n, ok
}

// inSubtree reports whether candidate is excluded, i.e. sender or one
// of sender's descendants.
func inSubtree(sender, candidate *GraphNode) bool {
	for n := candidate; n != nil; n = n.Parent {
		if n == sender {
			return true
		}
	}
	return false
}

// FindLiveParent runs a BFS from root for the first live node with an
// open child slot, excluding sender's own subtree so a re-advertise
// after reunion failure cannot create a cycle. Ties are broken by
// visit order, left before right.
func (g *NetworkGraph) FindLiveParent(sender packet.Address) *GraphNode {
	g.mu.Lock()
	defer g.mu.Unlock()

	senderNode := g.nodes[sender]

	queue := []*GraphNode{g.root}
	for len(queue) > 0 {
		head := queue[0]
		queue = queue[1:]

		if senderNode != nil && inSubtree(senderNode, head) {
			continue
		}
		if head.IsOn && head.canHaveChild() {
			return head
		}
		queue = append(queue, head.children()...)
	}
	return nil
}

// detach unlinks n from its parent's child slot, if any.
func detach(n *GraphNode) {
	if p := n.Parent; p != nil {
		if p.LeftChild == n {
			p.LeftChild = nil
		} else if p.RightChild == n {
			p.RightChild = nil
		}
	}
	n.Parent = nil
}

// AddNode creates or reuses a GraphNode at childAddr, attaches it under
// parentAddr's first free child slot, and turns the new subtree on. A
// node that already sits under parentAddr stays where it is; one
// attached elsewhere is detached from its old slot first, so it never
// occupies two slots at once. parentAddr must already be present (the
// caller resolves it via FindLiveParent first). Returns false if
// parentAddr is unknown or has no free slot.
func (g *NetworkGraph) AddNode(childAddr, parentAddr packet.Address) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	parent, ok := g.nodes[parentAddr]
	if !ok {
		return false
	}

	child, exists := g.nodes[childAddr]
	if !exists {
		child = &GraphNode{Address: childAddr}
		g.nodes[childAddr] = child
	}
	if exists {
		if child.Parent == parent {
			g.turnOnSubtreeLocked(child)
			return true
		}
		detach(child)
	}

	if !parent.addChild(child) {
		return false
	}
	child.Parent = parent
	g.turnOnSubtreeLocked(child)
	return true
}

// TurnOnNode marks addr live, if present.
func (g *NetworkGraph) TurnOnNode(addr packet.Address) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.nodes[addr]; ok {
		n.IsOn = true
	}
}

// TurnOffNode marks addr off, if present.
func (g *NetworkGraph) TurnOffNode(addr packet.Address) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.nodes[addr]; ok {
		n.IsOn = false
	}
}

// TurnOnSubtree recursively turns on addr and its descendants.
func (g *NetworkGraph) TurnOnSubtree(addr packet.Address) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.nodes[addr]; ok {
		g.turnOnSubtreeLocked(n)
	}
}

func (g *NetworkGraph) turnOnSubtreeLocked(n *GraphNode) {
	n.IsOn = true
	for _, c := range n.children() {
		g.turnOnSubtreeLocked(c)
	}
}

// TurnOffSubtree recursively turns off addr and its descendants.
func (g *NetworkGraph) TurnOffSubtree(addr packet.Address) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.nodes[addr]; ok {
		g.turnOffSubtreeLocked(n)
	}
}

func (g *NetworkGraph) turnOffSubtreeLocked(n *GraphNode) {
	n.IsOn = false
	for _, c := range n.children() {
		g.turnOffSubtreeLocked(c)
	}
}

// RemoveNode detaches addr from its parent's child slot, turns its
// entire subtree off (descendants stay in the nodes map but inert),
// and removes addr itself from nodes. Reports the removed node, or nil
// if addr was not present.
func (g *NetworkGraph) RemoveNode(addr packet.Address) *GraphNode {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[addr]
	if !ok {
		return nil
	}

	detach(n)
	g.turnOffSubtreeLocked(n)
	delete(g.nodes, addr)
	return n
}
