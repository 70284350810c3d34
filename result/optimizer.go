package result

// MergePolicy selects how scores on collapsed parallel edges combine.
type MergePolicy int

const (
	// MergeMax keeps the better score (viterbi merge). Lossy for true
	// posteriors but matches the standard SLF output.
	MergeMax MergePolicy = iota

	// MergeLogAdd sums the scores in the linear domain, preserving total
	// probability mass.
	MergeLogAdd
)

// Optimizer collapses all equivalent paths in a lattice. The result is
// deterministic (no node has edges to two equivalent nodes) and minimal
// (no node has edges from two equivalent nodes).
type Optimizer struct {
	lattice *Lattice
	policy  MergePolicy
}

// NewOptimizer creates an optimizer with the default MergeMax policy.
func NewOptimizer(l *Lattice) *Optimizer {
	return &Optimizer{lattice: l}
}

// SetMergePolicy selects the score merge policy.
func (o *Optimizer) SetMergePolicy(p MergePolicy) { o.policy = p }

// Optimize runs the forward determinize pass followed by the backward
// minimize pass. Each pass strictly reduces the node count whenever it does
// anything, so the fixpoints terminate.
func (o *Optimizer) Optimize() {
	o.optimizeForward()
	o.optimizeBackward()
}

// optimizeForward merges, for every node, pairs of leaving edges that lead
// to equivalent nodes: same label and same entering-edge set.
func (o *Optimizer) optimizeForward() {
	moreChanges := true
	for moreChanges {
		moreChanges = false
		for _, n := range o.lattice.Nodes() {
			// earlier merges may have removed this node
			if o.lattice.HasNode(n) {
				if o.optimizeNodeForward(n) {
					moreChanges = true
				}
			}
		}
	}
}

func (o *Optimizer) optimizeNodeForward(n *Node) bool {
	leaving := append([]*Edge(nil), n.leaving...)
	for j := 0; j < len(leaving); j++ {
		for k := j + 1; k < len(leaving); k++ {
			e, e2 := leaving[j], leaving[k]
			if o.equivalentNodesForward(e.To, e2.To) {
				o.mergeNodesAndEdgesForward(e, e2)
				return true
			}
		}
	}
	return false
}

func (o *Optimizer) equivalentNodesForward(n1, n2 *Node) bool {
	return labelsEqual(n1, n2) && n1.hasEquivalentEnteringEdges(n2)
}

// mergeNodesAndEdgesForward folds e2's destination into e1's: entering
// edges merge score-wise, leaving edges union with parallel-edge merging,
// then the duplicate node is removed.
func (o *Optimizer) mergeNodesAndEdgesForward(e1, e2 *Edge) {
	n1, n2 := e1.To, e2.To

	for _, edge := range n2.entering {
		other := n1.EdgeFrom(edge.From)
		other.AcousticScore = o.mergeAcousticScores(edge.AcousticScore, other.AcousticScore)
		other.LMScore = o.mergeLanguageScores(edge.LMScore, other.LMScore)
	}

	for _, edge := range n2.leaving {
		other := n1.EdgeTo(edge.To)
		if other == nil {
			o.lattice.AddEdge(n1, edge.To, edge.AcousticScore, edge.LMScore)
		} else {
			other.AcousticScore = o.mergeAcousticScores(edge.AcousticScore, other.AcousticScore)
			other.LMScore = o.mergeLanguageScores(edge.LMScore, other.LMScore)
		}
	}

	if o.lattice.terminal == n2 {
		o.lattice.terminal = n1
	}
	o.lattice.RemoveNodeAndEdges(n2)
}

// optimizeBackward is the mirror pass: merges pairs of entering edges from
// equivalent nodes (same label, same leaving-edge set).
func (o *Optimizer) optimizeBackward() {
	moreChanges := true
	for moreChanges {
		moreChanges = false
		for _, n := range o.lattice.Nodes() {
			if o.lattice.HasNode(n) {
				if o.optimizeNodeBackward(n) {
					moreChanges = true
				}
			}
		}
	}
}

func (o *Optimizer) optimizeNodeBackward(n *Node) bool {
	entering := append([]*Edge(nil), n.entering...)
	for j := 0; j < len(entering); j++ {
		for k := j + 1; k < len(entering); k++ {
			e, e2 := entering[j], entering[k]
			if o.equivalentNodesBackward(e.From, e2.From) {
				o.mergeNodesAndEdgesBackward(e, e2)
				return true
			}
		}
	}
	return false
}

func (o *Optimizer) equivalentNodesBackward(n1, n2 *Node) bool {
	return labelsEqual(n1, n2) && n1.hasEquivalentLeavingEdges(n2)
}

func (o *Optimizer) mergeNodesAndEdgesBackward(e1, e2 *Edge) {
	n1, n2 := e1.From, e2.From

	for _, edge := range n2.leaving {
		other := n1.EdgeTo(edge.To)
		other.AcousticScore = o.mergeAcousticScores(edge.AcousticScore, other.AcousticScore)
		other.LMScore = o.mergeLanguageScores(edge.LMScore, other.LMScore)
	}

	for _, edge := range n2.entering {
		other := n1.EdgeFrom(edge.From)
		if other == nil {
			o.lattice.AddEdge(edge.From, n1, edge.AcousticScore, edge.LMScore)
		} else {
			other.AcousticScore = o.mergeAcousticScores(edge.AcousticScore, other.AcousticScore)
			other.LMScore = o.mergeLanguageScores(edge.LMScore, other.LMScore)
		}
	}

	if o.lattice.initial == n2 {
		o.lattice.initial = n1
	}
	o.lattice.RemoveNodeAndEdges(n2)
}

// mergeAcousticScores combines acoustic scores of merged parallel edges.
// Kept as a single helper so the merge rule can change in one place.
func (o *Optimizer) mergeAcousticScores(score1, score2 float64) float64 {
	if o.policy == MergeLogAdd {
		return o.lattice.logMath.Add(score1, score2)
	}
	if score1 > score2 {
		return score1
	}
	return score2
}

// mergeLanguageScores combines language scores of merged parallel edges.
func (o *Optimizer) mergeLanguageScores(score1, score2 float64) float64 {
	if o.policy == MergeLogAdd {
		return o.lattice.logMath.Add(score1, score2)
	}
	if score1 > score2 {
		return score1
	}
	return score2
}
