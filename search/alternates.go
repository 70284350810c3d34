package search

import (
	"sort"
	"sync"
)

// AlternateHypothesisManager archives predecessors that lost viterbi
// recombination. The losers are replayed during lattice construction so the
// lattice carries more than the single best path. Appends are guarded by a
// mutex; scorer goroutines never touch this structure, so contention is
// limited to recombination on the search thread.
type AlternateHypothesisManager struct {
	mu       sync.Mutex
	losers   map[*Token][]*Token
	maxEdges int
}

// NewAlternateHypothesisManager creates a manager keeping at most
// maxEdges-1 losers per winning token after Purge.
func NewAlternateHypothesisManager(maxEdges int) *AlternateHypothesisManager {
	return &AlternateHypothesisManager{
		losers:   make(map[*Token][]*Token),
		maxEdges: maxEdges,
	}
}

// AddAlternate records a losing predecessor for a winning token.
// The caller must ensure loser differs from the winner's own predecessor.
func (m *AlternateHypothesisManager) AddAlternate(winner, loser *Token) {
	m.mu.Lock()
	m.losers[winner] = append(m.losers[winner], loser)
	m.mu.Unlock()
}

// HasAlternates reports whether the token has archived losers.
func (m *AlternateHypothesisManager) HasAlternates(t *Token) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.losers[t]) > 0
}

// Alternates returns the archived losers for a token in the order they were
// added; a list that Purge truncated is ordered best first.
func (m *AlternateHypothesisManager) Alternates(t *Token) []*Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.losers[t]
}

// Purge truncates each loser list to maxEdges-1 entries, keeping the
// highest-scoring losers.
func (m *AlternateHypothesisManager) Purge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := m.maxEdges - 1
	if max < 0 {
		max = 0
	}
	for tok, list := range m.losers {
		if len(list) <= max {
			continue
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Better(list[j]) })
		m.losers[tok] = list[:max]
	}
}

// Reset drops all archived losers.
func (m *AlternateHypothesisManager) Reset() {
	m.mu.Lock()
	m.losers = make(map[*Token][]*Token)
	m.mu.Unlock()
}
