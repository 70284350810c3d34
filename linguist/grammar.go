package linguist

import (
	"fmt"
	"math"
)

// Word declares one vocabulary entry for a grammar graph.
type Word struct {
	Label  string
	States int  // emitting states in the word chain, default 3
	Filler bool // filler words carry no language score
}

// GrammarConfig controls graph topology and scoring.
type GrammarConfig struct {
	// SelfLoopScore and ForwardScore are the log transition scores on the
	// emitting chain. Zero values select log(0.5) for both.
	SelfLoopScore float64
	ForwardScore  float64

	// WordScore returns the language log score for the transition
	// prev -> next. nil scores every transition 0.
	WordScore func(prev, next string) float64

	// InsertionPenalty is added when entering a non-filler word.
	InsertionPenalty float64

	// Loop allows word-to-word transitions. Without it every word is
	// followed directly by the sentence end.
	Loop bool
}

// Grammar is an in-memory SearchGraph: a sentence-start anchor, one
// left-to-right chain of emitting states per word, and a sentence-end
// anchor. It is immutable after construction and safe for concurrent reads.
type Grammar struct {
	initial *grammarState
}

type grammarState struct {
	sig      string
	emitting bool
	final    bool
	word     string // "" for non-word states
	filler   bool
	arcs     []Arc
}

func (s *grammarState) Signature() string { return s.sig }
func (s *grammarState) IsEmitting() bool  { return s.emitting }
func (s *grammarState) IsFinal() bool     { return s.final }
func (s *grammarState) IsWord() bool      { return s.word != "" }
func (s *grammarState) Word() string      { return s.word }
func (s *grammarState) IsFiller() bool    { return s.filler }
func (s *grammarState) Arcs() []Arc       { return s.arcs }

// NewGrammar builds a grammar graph over the given vocabulary.
func NewGrammar(words []Word, cfg GrammarConfig) *Grammar {
	logHalf := math.Log(0.5)
	if cfg.SelfLoopScore == 0 {
		cfg.SelfLoopScore = logHalf
	}
	if cfg.ForwardScore == 0 {
		cfg.ForwardScore = logHalf
	}
	score := cfg.WordScore
	if score == nil {
		score = func(prev, next string) float64 { return 0 }
	}

	final := &grammarState{sig: SentenceEnd, word: SentenceEnd, final: true}
	initial := &grammarState{sig: SentenceStart, word: SentenceStart}

	type chain struct {
		word  Word
		entry *grammarState
		end   *grammarState
	}
	chains := make([]chain, 0, len(words))
	for _, w := range words {
		n := w.States
		if n <= 0 {
			n = 3
		}
		end := &grammarState{
			sig:    fmt.Sprintf("W:%s:end", w.Label),
			word:   w.Label,
			filler: w.Filler,
		}
		states := make([]*grammarState, n)
		for i := n - 1; i >= 0; i-- {
			s := &grammarState{
				sig:      fmt.Sprintf("S:%s:%d", w.Label, i),
				emitting: true,
			}
			var next SearchState = end
			if i < n-1 {
				next = states[i+1]
			}
			s.arcs = []Arc{
				{Dest: s, InsertionScore: cfg.SelfLoopScore},
				{Dest: next, InsertionScore: cfg.ForwardScore},
			}
			states[i] = s
		}
		chains = append(chains, chain{word: w, entry: states[0], end: end})
	}

	enterArcs := func(from string) []Arc {
		arcs := make([]Arc, 0, len(chains)+1)
		for _, c := range chains {
			a := Arc{Dest: c.entry}
			if !c.word.Filler {
				a.LanguageScore = score(from, c.word.Label)
				a.InsertionScore = cfg.InsertionPenalty
			}
			arcs = append(arcs, a)
		}
		arcs = append(arcs, Arc{Dest: final, LanguageScore: score(from, SentenceEnd)})
		return arcs
	}

	initial.arcs = enterArcs(SentenceStart)
	for _, c := range chains {
		if cfg.Loop {
			c.end.arcs = enterArcs(c.word.Label)
		} else {
			c.end.arcs = []Arc{{Dest: final, LanguageScore: score(c.word.Label, SentenceEnd)}}
		}
	}

	return &Grammar{initial: initial}
}

// InitialState returns the sentence-start state.
func (g *Grammar) InitialState() SearchState { return g.initial }
