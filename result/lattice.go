// Package result holds the output surface of the decoder: recognition
// results, word lattices with posterior confidences, and the HTK SLF
// persistence format.
package result

import (
	"fmt"
	"sort"
	"time"

	"github.com/ieee0824/lvcsr-go/internal/mathutil"
)

// Node is a word hypothesis in the lattice, spanning [BeginFrame, EndFrame]
// feature frames. Forward, backward and posterior scores are filled in by
// ComputePosteriors.
type Node struct {
	id         int
	Word       string
	Filler     bool
	BeginFrame int
	EndFrame   int

	// ViterbiScore is the best total path score through this node.
	ViterbiScore float64

	forward   float64
	backward  float64
	posterior float64

	entering []*Edge
	leaving  []*Edge
}

// ID returns the node's lattice-unique id.
func (n *Node) ID() int { return n.id }

// Posterior returns the node's log posterior, valid after
// ComputePosteriors.
func (n *Node) Posterior() float64 { return n.posterior }

// EnteringEdges returns the edges into this node.
func (n *Node) EnteringEdges() []*Edge { return n.entering }

// LeavingEdges returns the edges out of this node.
func (n *Node) LeavingEdges() []*Edge { return n.leaving }

// EdgeTo returns the edge from this node to dest, or nil.
func (n *Node) EdgeTo(dest *Node) *Edge {
	for _, e := range n.leaving {
		if e.To == dest {
			return e
		}
	}
	return nil
}

// EdgeFrom returns the edge into this node from src, or nil.
func (n *Node) EdgeFrom(src *Node) *Edge {
	for _, e := range n.entering {
		if e.From == src {
			return e
		}
	}
	return nil
}

const scoreEps = 1e-9

// hasEquivalentEnteringEdges reports whether both nodes are entered from
// the same sources with matching scores.
func (n *Node) hasEquivalentEnteringEdges(o *Node) bool {
	if len(n.entering) != len(o.entering) {
		return false
	}
	for _, e := range n.entering {
		oe := o.EdgeFrom(e.From)
		if oe == nil || !scoresMatch(e, oe) {
			return false
		}
	}
	return true
}

// hasEquivalentLeavingEdges reports whether both nodes leave to the same
// destinations with matching scores.
func (n *Node) hasEquivalentLeavingEdges(o *Node) bool {
	if len(n.leaving) != len(o.leaving) {
		return false
	}
	for _, e := range n.leaving {
		oe := o.EdgeTo(e.To)
		if oe == nil || !scoresMatch(e, oe) {
			return false
		}
	}
	return true
}

func scoresMatch(a, b *Edge) bool {
	return abs(a.AcousticScore-b.AcousticScore) <= scoreEps &&
		abs(a.LMScore-b.LMScore) <= scoreEps
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// labelsEqual reports whether two nodes carry the same word over the same
// frame span.
func labelsEqual(a, b *Node) bool {
	return a.Word == b.Word && a.BeginFrame == b.BeginFrame && a.EndFrame == b.EndFrame
}

// Edge connects two word nodes, carrying the log scores of the destination
// word's segment.
type Edge struct {
	From, To      *Node
	AcousticScore float64
	LMScore       float64
}

// Lattice is a directed acyclic word graph with a unique initial node
// (sentence start) and terminal node (sentence end).
type Lattice struct {
	nodes    map[int]*Node
	nextID   int
	initial  *Node
	terminal *Node

	frameDuration time.Duration
	logMath       mathutil.LogMath
}

// NewLattice creates an empty lattice.
func NewLattice(logMath mathutil.LogMath, frameDuration time.Duration) *Lattice {
	if frameDuration == 0 {
		frameDuration = 10 * time.Millisecond
	}
	return &Lattice{
		nodes:         make(map[int]*Node),
		frameDuration: frameDuration,
		logMath:       logMath,
	}
}

// LogMath returns the lattice's log base context.
func (l *Lattice) LogMath() mathutil.LogMath { return l.logMath }

// FrameDuration returns the feature frame duration used for times.
func (l *Lattice) FrameDuration() time.Duration { return l.frameDuration }

// Initial returns the sentence-start node.
func (l *Lattice) Initial() *Node { return l.initial }

// Terminal returns the sentence-end node.
func (l *Lattice) Terminal() *Node { return l.terminal }

// SetInitial marks the sentence-start node.
func (l *Lattice) SetInitial(n *Node) { l.initial = n }

// SetTerminal marks the sentence-end node.
func (l *Lattice) SetTerminal(n *Node) { l.terminal = n }

// AddNode creates a node in the lattice.
func (l *Lattice) AddNode(word string, filler bool, beginFrame, endFrame int) *Node {
	n := &Node{
		id:           l.nextID,
		Word:         word,
		Filler:       filler,
		BeginFrame:   beginFrame,
		EndFrame:     endFrame,
		ViterbiScore: mathutil.LogZero,
		posterior:    mathutil.LogZero,
	}
	l.nextID++
	l.nodes[n.id] = n
	return n
}

// HasNode reports whether n still belongs to the lattice.
func (l *Lattice) HasNode(n *Node) bool {
	got, ok := l.nodes[n.id]
	return ok && got == n
}

// AddEdge connects from -> to with the given segment scores.
func (l *Lattice) AddEdge(from, to *Node, acoustic, lm float64) *Edge {
	e := &Edge{From: from, To: to, AcousticScore: acoustic, LMScore: lm}
	from.leaving = append(from.leaving, e)
	to.entering = append(to.entering, e)
	return e
}

// RemoveNodeAndEdges deletes a node and every edge touching it.
func (l *Lattice) RemoveNodeAndEdges(n *Node) {
	for _, e := range n.entering {
		e.From.leaving = removeEdge(e.From.leaving, e)
	}
	for _, e := range n.leaving {
		e.To.entering = removeEdge(e.To.entering, e)
	}
	n.entering = nil
	n.leaving = nil
	delete(l.nodes, n.id)
}

func removeEdge(edges []*Edge, e *Edge) []*Edge {
	for i, x := range edges {
		if x == e {
			return append(edges[:i], edges[i+1:]...)
		}
	}
	return edges
}

// Nodes returns all nodes ordered by id.
func (l *Lattice) Nodes() []*Node {
	out := make([]*Node, 0, len(l.nodes))
	for _, n := range l.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Edges returns all edges, ordered by source then destination id.
func (l *Lattice) Edges() []*Edge {
	var out []*Edge
	for _, n := range l.Nodes() {
		out = append(out, n.leaving...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From.id != out[j].From.id {
			return out[i].From.id < out[j].From.id
		}
		return out[i].To.id < out[j].To.id
	})
	return out
}

// NodeCount returns the number of nodes.
func (l *Lattice) NodeCount() int { return len(l.nodes) }

// EdgeCount returns the number of edges.
func (l *Lattice) EdgeCount() int {
	c := 0
	for _, n := range l.nodes {
		c += len(n.leaving)
	}
	return c
}

// BeginTime returns the node's start time.
func (l *Lattice) BeginTime(n *Node) time.Duration {
	if n.BeginFrame < 0 {
		return 0
	}
	return time.Duration(n.BeginFrame) * l.frameDuration
}

// EndTime returns the node's end time (exclusive frame boundary).
func (l *Lattice) EndTime(n *Node) time.Duration {
	if n.EndFrame < 0 {
		return 0
	}
	return time.Duration(n.EndFrame+1) * l.frameDuration
}

// TopologicalOrder returns the nodes in a topological order from initial to
// terminal, or an error when the lattice contains a cycle.
func (l *Lattice) TopologicalOrder() ([]*Node, error) {
	indeg := make(map[*Node]int, len(l.nodes))
	for _, n := range l.nodes {
		indeg[n] += 0
		for _, e := range n.leaving {
			indeg[e.To]++
		}
	}
	var queue []*Node
	for _, n := range l.Nodes() {
		if indeg[n] == 0 {
			queue = append(queue, n)
		}
	}
	order := make([]*Node, 0, len(l.nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, e := range n.leaving {
			indeg[e.To]--
			if indeg[e.To] == 0 {
				queue = append(queue, e.To)
			}
		}
	}
	if len(order) != len(l.nodes) {
		return nil, fmt.Errorf("lattice contains a cycle")
	}
	return order, nil
}

// RemoveHangingNodes deletes nodes (other than initial and terminal) with
// no entering or no leaving edges, repeating until a fixpoint.
func (l *Lattice) RemoveHangingNodes() {
	for {
		removed := false
		for _, n := range l.Nodes() {
			if n == l.initial || n == l.terminal {
				continue
			}
			if len(n.entering) == 0 || len(n.leaving) == 0 {
				l.RemoveNodeAndEdges(n)
				removed = true
			}
		}
		if !removed {
			return
		}
	}
}
