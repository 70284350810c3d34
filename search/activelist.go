package search

import (
	"sort"

	"github.com/ieee0824/lvcsr-go/internal/mathutil"
)

// ActiveList is the frontier of surviving hypotheses at one frame. Add
// performs viterbi recombination per state signature; Commit applies the
// list's beam policies and returns the pruned list.
type ActiveList interface {
	// Add inserts a token, recombining against any token holding the same
	// state signature. It reports whether the token now represents its
	// signature (i.e. it was new or won recombination).
	Add(t *Token) bool

	// Commit prunes the list down to the configured beams and returns the
	// surviving list.
	Commit() ActiveList

	// Best returns the highest-scoring token, nil when empty.
	Best() *Token

	// BestScore returns the best token's score, or LogZero when empty.
	BestScore() float64

	// BeamThreshold returns bestScore + logRelativeBeamWidth, or LogZero
	// when the relative beam is disabled.
	BeamThreshold() float64

	// WorstScore returns the lowest kept score when the list is at
	// capacity, LogZero otherwise (anything would be accepted).
	WorstScore() float64

	Size() int
	Tokens() []*Token
}

// Factory creates empty active lists sharing one beam configuration.
// The alternate manager receives recombination losers; nil disables
// archiving.
type Factory interface {
	New(alternates *AlternateHypothesisManager) ActiveList
}

// frontier implements recombination and best tracking shared by all
// active list variants.
type frontier struct {
	tokens          []*Token
	index           map[string]int
	best            *Token
	alts            *AlternateHypothesisManager
	absoluteBeam    int
	logRelativeBeam float64 // <= 0; 0 disables
	worst           float64
}

func newFrontier(alts *AlternateHypothesisManager, absoluteBeam int, logRelativeBeam float64) frontier {
	return frontier{
		index:           make(map[string]int),
		alts:            alts,
		absoluteBeam:    absoluteBeam,
		logRelativeBeam: logRelativeBeam,
		worst:           mathutil.LogZero,
	}
}

func (f *frontier) Add(t *Token) bool {
	sig := t.State().Signature()
	i, ok := f.index[sig]
	if !ok {
		f.index[sig] = len(f.tokens)
		f.tokens = append(f.tokens, t)
		if f.best == nil || t.Better(f.best) {
			f.best = t
		}
		return true
	}
	cur := f.tokens[i]
	if cur == t {
		return false
	}
	winner, loser := cur, t
	if t.Better(cur) {
		winner, loser = t, cur
		f.tokens[i] = t
	}
	if f.alts != nil && loser.Predecessor() != nil && loser.Predecessor() != winner.Predecessor() {
		f.alts.AddAlternate(winner, loser.Predecessor())
	}
	if winner.Better(f.best) {
		f.best = winner
	}
	return winner == t
}

func (f *frontier) Best() *Token { return f.best }

func (f *frontier) BestScore() float64 {
	if f.best == nil {
		return mathutil.LogZero
	}
	return f.best.Score()
}

func (f *frontier) BeamThreshold() float64 {
	if f.best == nil || f.logRelativeBeam >= 0 {
		return mathutil.LogZero
	}
	return f.best.Score() + f.logRelativeBeam
}

func (f *frontier) WorstScore() float64 { return f.worst }

func (f *frontier) Size() int { return len(f.tokens) }

func (f *frontier) Tokens() []*Token { return f.tokens }

// rebuild restores the signature index and best/worst tracking after the
// token slice was reordered or truncated.
func (f *frontier) rebuild() {
	f.index = make(map[string]int, len(f.tokens))
	f.best = nil
	f.worst = mathutil.LogZero
	for i, t := range f.tokens {
		f.index[t.State().Signature()] = i
		if f.best == nil || t.Better(f.best) {
			f.best = t
		}
	}
	if f.absoluteBeam > 0 && len(f.tokens) >= f.absoluteBeam {
		worst := f.tokens[0].Score()
		for _, t := range f.tokens[1:] {
			if t.Score() < worst {
				worst = t.Score()
			}
		}
		f.worst = worst
	}
}

// applyRelativeBeam drops tokens below the beam threshold. The token slice
// must already be sorted by descending score.
func (f *frontier) applyRelativeBeam() {
	threshold := f.BeamThreshold()
	if threshold <= mathutil.LogZero {
		return
	}
	cut := len(f.tokens)
	for i, t := range f.tokens {
		if t.Score() < threshold {
			cut = i
			break
		}
	}
	f.tokens = f.tokens[:cut]
}

func sortTokens(tokens []*Token) {
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Better(tokens[j]) })
}

// SimpleActiveList keeps every added token and prunes with a full sort on
// Commit.
type SimpleActiveList struct {
	frontier
}

// SimpleActiveListFactory builds SimpleActiveLists.
type SimpleActiveListFactory struct {
	AbsoluteBeamWidth    int
	LogRelativeBeamWidth float64
}

func (f SimpleActiveListFactory) New(alternates *AlternateHypothesisManager) ActiveList {
	return &SimpleActiveList{frontier: newFrontier(alternates, f.AbsoluteBeamWidth, f.LogRelativeBeamWidth)}
}

func (l *SimpleActiveList) Commit() ActiveList {
	sortTokens(l.tokens)
	l.applyRelativeBeam()
	if l.absoluteBeam > 0 && len(l.tokens) > l.absoluteBeam {
		l.tokens = l.tokens[:l.absoluteBeam]
	}
	l.rebuild()
	return l
}
