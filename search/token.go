// Package search holds the token-passing machinery: hypothesis tokens, the
// active lists that carry the per-frame frontier, beam pruning, and the
// archive of viterbi losers used for lattice construction.
package search

import (
	"sync/atomic"

	"github.com/ieee0824/lvcsr-go/linguist"
)

var tokenSeq atomic.Uint64

// Token is one search hypothesis: a search state, a back-pointer to its
// predecessor, and accumulated log scores. Back-pointers form a DAG; a token
// is treated as immutable once a surviving descendant or the alternate
// archive references it. The score identity
//
//	score = pred.score + acoustic + language + insertion
//
// holds at all times.
type Token struct {
	state     linguist.SearchState
	pred      *Token
	score     float64
	acoustic  float64
	language  float64
	insertion float64
	frame     int
	word      string
	id        uint64
}

// NewToken creates a successor of pred through an arc carrying the given
// language and insertion scores. The frame index is inherited from the most
// recent emitting ancestor; scoring advances it when a frame is consumed.
func NewToken(pred *Token, state linguist.SearchState, languageScore, insertionScore float64) *Token {
	t := &Token{
		state:     state,
		pred:      pred,
		language:  languageScore,
		insertion: insertionScore,
		frame:     -1,
		id:        tokenSeq.Add(1),
	}
	if pred != nil {
		t.score = pred.score
		t.frame = pred.frame
		t.word = pred.word
	}
	t.score += languageScore + insertionScore
	if state.IsWord() {
		t.word = state.Word()
	}
	return t
}

// NewInitialToken creates the utterance-start token at the graph's initial
// state.
func NewInitialToken(state linguist.SearchState) *Token {
	return NewToken(nil, state, 0, 0)
}

// ApplyAcousticScore adds an acoustic log-likelihood for the given frame.
// Only valid before the token is committed to a pruned active list.
func (t *Token) ApplyAcousticScore(score float64, frame int) {
	t.acoustic += score
	t.score += score
	t.frame = frame
}

// Score returns the total accumulated log score.
func (t *Token) Score() float64 { return t.score }

// AcousticScore returns this token's own acoustic log score delta.
func (t *Token) AcousticScore() float64 { return t.acoustic }

// LanguageScore returns this token's own language log score delta.
func (t *Token) LanguageScore() float64 { return t.language }

// InsertionScore returns this token's own insertion log score delta.
func (t *Token) InsertionScore() float64 { return t.insertion }

// Frame returns the frame index of the most recent emitting ancestor,
// or -1 before any frame was consumed.
func (t *Token) Frame() int { return t.frame }

// Predecessor returns the viterbi predecessor, nil for the initial token.
func (t *Token) Predecessor() *Token { return t.pred }

// State returns the search state this token sits on.
func (t *Token) State() linguist.SearchState { return t.state }

// Word returns the nearest word-state ancestor's label, "" if none.
func (t *Token) Word() string { return t.word }

// IsEmitting reports whether the token's state consumes a frame.
func (t *Token) IsEmitting() bool { return t.state.IsEmitting() }

// IsFinal reports whether the token's state ends the utterance.
func (t *Token) IsFinal() bool { return t.state.IsFinal() }

// IsWord reports whether the token sits on a word boundary.
func (t *Token) IsWord() bool { return t.state.IsWord() }

// Better orders tokens by descending score with a stable identity
// tie-break, so equal-scoring tokens never compare equal unless identical.
func (t *Token) Better(o *Token) bool {
	if t.score != o.score {
		return t.score > o.score
	}
	return t.id < o.id
}
