package graph

import (
	"testing"

	"github.com/go-treecast/treecast/packet"
)

func addr(t *testing.T, ip, port string) packet.Address {
	t.Helper()
	a, err := packet.NewAddress(ip, port)
	if err != nil {
		t.Fatalf("NewAddress(%q, %q): %v", ip, port, err)
	}
	return a
}

// TestThreeLevelJoin joins A, B, C in order under a fresh root; C's
// parent should be A (A's left slot), at depth 2.
func TestThreeLevelJoin(t *testing.T) {
	root := addr(t, "192.168.0.1", "1")
	a := addr(t, "192.168.0.2", "2")
	b := addr(t, "192.168.0.3", "3")
	c := addr(t, "192.168.0.4", "4")

	g := New(root)

	parent := g.FindLiveParent(a)
	if parent.Address != root {
		t.Fatalf("A's parent should be root, got %+v", parent.Address)
	}
	if !g.AddNode(a, parent.Address) {
		t.Fatal("AddNode(a, root) should succeed")
	}

	parent = g.FindLiveParent(b)
	if parent.Address != root {
		t.Fatalf("B's parent should be root, got %+v", parent.Address)
	}
	if !g.AddNode(b, parent.Address) {
		t.Fatal("AddNode(b, root) should succeed")
	}

	rootNode := g.Root()
	if rootNode.LeftChild == nil || rootNode.LeftChild.Address != a {
		t.Fatal("root's left child should be a")
	}
	if rootNode.RightChild == nil || rootNode.RightChild.Address != b {
		t.Fatal("root's right child should be b")
	}

	parent = g.FindLiveParent(c)
	if parent.Address != a {
		t.Fatalf("C's parent should be a (first in level-order with an open slot), got %+v", parent.Address)
	}
	if !g.AddNode(c, parent.Address) {
		t.Fatal("AddNode(c, a) should succeed")
	}

	cNode, ok := g.Node(c)
	if !ok {
		t.Fatal("c should be present in the graph")
	}
	if cNode.Parent == nil || cNode.Parent.Address != a {
		t.Fatal("c's parent should be a")
	}
	aNode, _ := g.Node(a)
	if aNode.LeftChild != cNode {
		t.Fatal("a's left child should be c")
	}
}

// TestFindLiveParentExcludesSenderSubtree checks that the BFS never
// returns a node belonging to the sender's own subtree.
func TestFindLiveParentExcludesSenderSubtree(t *testing.T) {
	root := addr(t, "192.168.0.1", "1")
	a := addr(t, "192.168.0.2", "2")
	c := addr(t, "192.168.0.4", "4")

	g := New(root)
	g.AddNode(a, root)
	g.AddNode(c, a)

	// a has one child (c) and one open slot; asking for a's own
	// best-parent (as on a reunion-failure re-advertise) must not
	// return a itself or c (a's descendant).
	parent := g.FindLiveParent(a)
	if parent.Address == a || parent.Address == c {
		t.Fatalf("BFS returned a node in sender's own subtree: %+v", parent.Address)
	}
	if parent.Address != root {
		t.Fatalf("expected root as a's alternate parent, got %+v", parent.Address)
	}
}

// slotsHolding counts how many child slots anywhere in the tree point
// at addr.
func slotsHolding(g *NetworkGraph, addr packet.Address) int {
	count := 0
	queue := []*GraphNode{g.Root()}
	for len(queue) > 0 {
		head := queue[0]
		queue = queue[1:]
		for _, c := range head.children() {
			if c.Address == addr {
				count++
			}
			queue = append(queue, c)
		}
	}
	return count
}

// TestReadvertiseKeepsSingleSlot re-advertises an already-attached node
// whose best parent is unchanged; the node must stay in exactly one
// child slot rather than fill a second one.
func TestReadvertiseKeepsSingleSlot(t *testing.T) {
	root := addr(t, "192.168.0.1", "1")
	a := addr(t, "192.168.0.2", "2")

	g := New(root)
	g.AddNode(a, root)

	parent := g.FindLiveParent(a)
	if parent.Address != root {
		t.Fatalf("expected root as a's parent, got %+v", parent.Address)
	}
	if !g.AddNode(a, parent.Address) {
		t.Fatal("re-adding a under its current parent should succeed")
	}

	if got := slotsHolding(g, a); got != 1 {
		t.Fatalf("a occupies %d child slots, want exactly 1", got)
	}
	rootNode := g.Root()
	if rootNode.LeftChild == nil || rootNode.LeftChild.Address != a {
		t.Fatal("a should remain root's left child")
	}
	if rootNode.RightChild != nil {
		t.Fatal("root's right slot should stay free after a re-advertise")
	}
}

// TestAddNodeRelocatesFromOldParent moves a node whose old parent went
// off to a new parent; the old slot must free up and the node must end
// in exactly one slot with its parent pointer updated.
func TestAddNodeRelocatesFromOldParent(t *testing.T) {
	root := addr(t, "192.168.0.1", "1")
	a := addr(t, "192.168.0.2", "2")
	b := addr(t, "192.168.0.3", "3")
	c := addr(t, "192.168.0.4", "4")

	g := New(root)
	g.AddNode(a, root)
	g.AddNode(b, root)
	g.AddNode(c, a)

	g.TurnOffNode(a)
	parent := g.FindLiveParent(c)
	if parent.Address != b {
		t.Fatalf("expected b as c's new parent while a is off, got %+v", parent.Address)
	}
	if !g.AddNode(c, parent.Address) {
		t.Fatal("relocating c under b should succeed")
	}

	if got := slotsHolding(g, c); got != 1 {
		t.Fatalf("c occupies %d child slots, want exactly 1", got)
	}
	aNode, _ := g.Node(a)
	if aNode.LeftChild != nil {
		t.Fatal("a's left slot should be free after c relocates")
	}
	bNode, _ := g.Node(b)
	cNode, _ := g.Node(c)
	if bNode.LeftChild != cNode {
		t.Fatal("c should be b's left child after relocating")
	}
	if cNode.Parent != bNode {
		t.Fatal("c's parent pointer should follow the relocation")
	}
}

// TestTurnOffSubtreePropagates checks that turning off a node forces
// its entire subtree off with it.
func TestTurnOffSubtreePropagates(t *testing.T) {
	root := addr(t, "192.168.0.1", "1")
	a := addr(t, "192.168.0.2", "2")
	c := addr(t, "192.168.0.4", "4")

	g := New(root)
	g.AddNode(a, root)
	g.AddNode(c, a)

	g.TurnOffSubtree(a)

	aNode, _ := g.Node(a)
	cNode, _ := g.Node(c)
	if aNode.IsOn || cNode.IsOn {
		t.Fatal("turning off a's subtree should turn off both a and c")
	}
}

// TestRemoveNodeDetachesAndTurnsOffDescendants checks that after
// pruning C, A's left slot frees up while A itself stays on.
func TestRemoveNodeDetachesAndKeepsParentOn(t *testing.T) {
	root := addr(t, "192.168.0.1", "1")
	a := addr(t, "192.168.0.2", "2")
	c := addr(t, "192.168.0.4", "4")

	g := New(root)
	g.AddNode(a, root)
	g.AddNode(c, a)

	removed := g.RemoveNode(c)
	if removed == nil || removed.Address != c {
		t.Fatal("RemoveNode should return the removed node")
	}

	aNode, _ := g.Node(a)
	if aNode.LeftChild != nil {
		t.Fatal("a's left slot should be free after removing c")
	}
	if !aNode.IsOn {
		t.Fatal("a should remain on after c is pruned")
	}
	if _, ok := g.Node(c); ok {
		t.Fatal("c should no longer be present in the nodes map")
	}
}

func TestRemoveNodeUnknownReturnsNil(t *testing.T) {
	root := addr(t, "192.168.0.1", "1")
	ghost := addr(t, "192.168.0.9", "9")

	g := New(root)
	if g.RemoveNode(ghost) != nil {
		t.Fatal("removing an absent node should return nil")
	}
}
