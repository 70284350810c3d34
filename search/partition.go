package search

// partitionTopK moves the k highest-scoring tokens to the front of the
// slice using quickselect with a Lomuto-style partition step, in expected
// linear time. The front k
// tokens are not sorted among themselves. Returns the number of tokens in
// the selected prefix (min(k, len(tokens))).
func partitionTopK(tokens []*Token, k int) int {
	if k <= 0 {
		return 0
	}
	if k >= len(tokens) {
		return len(tokens)
	}
	lo, hi := 0, len(tokens)-1
	for lo < hi {
		p := partitionAround(tokens, lo, hi)
		switch {
		case p == k-1:
			return k
		case p < k-1:
			lo = p + 1
		default:
			hi = p - 1
		}
	}
	return k
}

// partitionAround partitions tokens[lo..hi] around a median-of-three pivot
// so that better tokens come first, and returns the pivot's final index.
func partitionAround(tokens []*Token, lo, hi int) int {
	mid := lo + (hi-lo)/2
	if tokens[mid].Better(tokens[lo]) {
		tokens[lo], tokens[mid] = tokens[mid], tokens[lo]
	}
	if tokens[hi].Better(tokens[lo]) {
		tokens[lo], tokens[hi] = tokens[hi], tokens[lo]
	}
	if tokens[hi].Better(tokens[mid]) {
		tokens[mid], tokens[hi] = tokens[hi], tokens[mid]
	}
	pivot := tokens[mid]
	tokens[mid], tokens[hi] = tokens[hi], tokens[mid]
	i := lo
	for j := lo; j < hi; j++ {
		if tokens[j].Better(pivot) {
			tokens[i], tokens[j] = tokens[j], tokens[i]
			i++
		}
	}
	tokens[i], tokens[hi] = tokens[hi], tokens[i]
	return i
}

// PartitionActiveList extracts the absolute beam with a linear-time
// selection instead of a full sort. Preferred when the beam width is much
// smaller than the number of grown tokens.
type PartitionActiveList struct {
	frontier
}

// PartitionActiveListFactory builds PartitionActiveLists.
type PartitionActiveListFactory struct {
	AbsoluteBeamWidth    int
	LogRelativeBeamWidth float64
}

func (f PartitionActiveListFactory) New(alternates *AlternateHypothesisManager) ActiveList {
	return &PartitionActiveList{frontier: newFrontier(alternates, f.AbsoluteBeamWidth, f.LogRelativeBeamWidth)}
}

func (l *PartitionActiveList) Commit() ActiveList {
	if l.absoluteBeam > 0 && len(l.tokens) > l.absoluteBeam {
		n := partitionTopK(l.tokens, l.absoluteBeam)
		l.tokens = l.tokens[:n]
	}
	sortTokens(l.tokens)
	l.applyRelativeBeam()
	l.rebuild()
	return l
}
