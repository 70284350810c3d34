package search

// WordActiveList holds word-boundary tokens only. On top of the usual
// beams it caps the number of paths kept per distinct word and the number
// of filler-word tokens.
type WordActiveList struct {
	frontier
	maxPathsPerWord int // 0 disables
	maxFillerWords  int // 0 disables
}

// WordActiveListFactory builds WordActiveLists.
type WordActiveListFactory struct {
	AbsoluteBeamWidth    int
	LogRelativeBeamWidth float64
	MaxPathsPerWord      int
	MaxFillerWords       int
}

func (f WordActiveListFactory) New(alternates *AlternateHypothesisManager) ActiveList {
	return &WordActiveList{
		frontier:        newFrontier(alternates, f.AbsoluteBeamWidth, f.LogRelativeBeamWidth),
		maxPathsPerWord: f.MaxPathsPerWord,
		maxFillerWords:  f.MaxFillerWords,
	}
}

func (l *WordActiveList) Commit() ActiveList {
	sortTokens(l.tokens)

	// Walk in score order so the quota keeps the best paths per word.
	if l.maxPathsPerWord > 0 || l.maxFillerWords > 0 {
		perWord := make(map[string]int)
		fillers := 0
		kept := l.tokens[:0]
		for _, t := range l.tokens {
			if l.maxFillerWords > 0 && t.State().IsFiller() {
				if fillers >= l.maxFillerWords {
					continue
				}
				fillers++
			}
			if l.maxPathsPerWord > 0 {
				w := t.Word()
				if perWord[w] >= l.maxPathsPerWord {
					continue
				}
				perWord[w]++
			}
			kept = append(kept, t)
		}
		l.tokens = kept
	}

	l.applyRelativeBeam()
	if l.absoluteBeam > 0 && len(l.tokens) > l.absoluteBeam {
		l.tokens = l.tokens[:l.absoluteBeam]
	}
	l.rebuild()
	return l
}
