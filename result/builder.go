package result

import (
	"github.com/ieee0824/lvcsr-go/linguist"
	"github.com/ieee0824/lvcsr-go/search"
)

// nodeKey identifies equivalent word hypotheses during lattice
// construction: same word over the same frame span.
type nodeKey struct {
	word  string
	begin int
	end   int
}

// latticeBuilder converts the token back-pointer forest plus the archived
// viterbi losers into a word lattice. Every word-boundary token becomes (or
// merges into) a node keyed by (word, beginFrame, endFrame); each node's
// entering edges carry the acoustic and language score sums of its own word
// segment.
type latticeBuilder struct {
	lat        *Lattice
	alternates *search.AlternateHypothesisManager
	nodes      map[nodeKey]*Node
	visited    map[*search.Token]bool
	queue      []*search.Token
}

// backPath is a pending backward walk: the next token to visit and the
// scores accumulated since the word boundary the walk started from.
type backPath struct {
	tok      *search.Token
	acoustic float64
	language float64
}

func buildLattice(r *Result) *Lattice {
	b := &latticeBuilder{
		lat:        NewLattice(r.logMath, r.frameDuration),
		alternates: r.alternates,
		nodes:      make(map[nodeKey]*Node),
		visited:    make(map[*search.Token]bool),
	}
	if b.alternates != nil {
		b.alternates.Purge()
	}

	anchors := r.finals
	if len(anchors) == 0 {
		if best := bestOf(r.actives); best != nil {
			anchors = []*search.Token{best}
		}
	}
	if len(anchors) == 0 {
		// no search happened at all; a bare sentence-start node
		n := b.lat.AddNode(linguist.SentenceStart, false, -1, -1)
		b.lat.SetInitial(n)
		b.lat.SetTerminal(n)
		return b.lat
	}

	// The first anchor's node is the terminal. Anchors with the same word and
	// span merge into it; any other anchor's node has no leaving edges and is
	// dropped by RemoveHangingNodes.
	for _, anchor := range anchors {
		wt := nearestWordToken(anchor)
		if wt == nil {
			continue
		}
		n := b.nodeOf(wt)
		if b.lat.Terminal() == nil {
			b.lat.SetTerminal(n)
		}
		b.enqueue(wt)
	}
	if b.lat.Terminal() == nil {
		n := b.lat.AddNode(linguist.SentenceStart, false, -1, -1)
		b.lat.SetInitial(n)
		b.lat.SetTerminal(n)
		return b.lat
	}

	for len(b.queue) > 0 {
		wt := b.queue[len(b.queue)-1]
		b.queue = b.queue[:len(b.queue)-1]
		b.expand(wt)
	}

	b.lat.RemoveHangingNodes()
	return b.lat
}

// nearestWordToken walks to the closest word-boundary ancestor, which is
// the token itself for final word states. A partial hypothesis that never
// crossed a word boundary yields nil.
func nearestWordToken(t *search.Token) *search.Token {
	for ; t != nil; t = t.Predecessor() {
		if t.IsWord() {
			return t
		}
	}
	return nil
}

func (b *latticeBuilder) enqueue(wt *search.Token) {
	if !b.visited[wt] {
		b.visited[wt] = true
		b.queue = append(b.queue, wt)
	}
}

// nodeOf returns the lattice node for a word token, creating it on first
// sight. Tokens with equal (word, beginFrame, endFrame) merge; the node
// keeps the best viterbi score seen.
func (b *latticeBuilder) nodeOf(wt *search.Token) *Node {
	begin, end := wordSpan(wt)
	key := nodeKey{wt.State().Word(), begin, end}
	n, ok := b.nodes[key]
	if !ok {
		n = b.lat.AddNode(key.word, wt.State().IsFiller(), begin, end)
		b.nodes[key] = n
	}
	if wt.Score() > n.ViterbiScore {
		n.ViterbiScore = wt.Score()
	}
	return n
}

// expand walks every backward path out of one word token down to the
// previous word boundary, creating the entering edges of its node. Archived
// alternate predecessors branch additional paths at the token where the
// recombination happened, with the scores accumulated so far carried over.
func (b *latticeBuilder) expand(wt *search.Token) {
	n := b.nodeOf(wt)

	if wt.Predecessor() == nil {
		// the sentence-start token is the initial node
		b.lat.SetInitial(n)
		return
	}

	paths := []backPath{{
		tok:      wt.Predecessor(),
		acoustic: wt.AcousticScore(),
		language: wt.LanguageScore() + wt.InsertionScore(),
	}}
	for _, alt := range b.altsOf(wt) {
		paths = append(paths, backPath{
			tok:      alt,
			acoustic: wt.AcousticScore(),
			language: wt.LanguageScore() + wt.InsertionScore(),
		})
	}

	for len(paths) > 0 {
		p := paths[len(paths)-1]
		paths = paths[:len(paths)-1]

		tok, ac, lm := p.tok, p.acoustic, p.language
		for tok != nil && !tok.IsWord() {
			ac += tok.AcousticScore()
			lm += tok.LanguageScore() + tok.InsertionScore()
			for _, alt := range b.altsOf(tok) {
				paths = append(paths, backPath{tok: alt, acoustic: ac, language: lm})
			}
			tok = tok.Predecessor()
		}

		var prev *Node
		if tok == nil {
			prev = b.ensureInitial()
		} else {
			prev = b.nodeOf(tok)
			b.enqueue(tok)
		}
		b.addOrMergeEdge(prev, n, ac, lm)
	}
}

func (b *latticeBuilder) altsOf(t *search.Token) []*search.Token {
	if b.alternates == nil {
		return nil
	}
	return b.alternates.Alternates(t)
}

// ensureInitial covers graphs whose initial state is not a word state: a
// synthetic sentence-start node anchors the paths.
func (b *latticeBuilder) ensureInitial() *Node {
	if b.lat.Initial() == nil {
		key := nodeKey{linguist.SentenceStart, -1, -1}
		n, ok := b.nodes[key]
		if !ok {
			n = b.lat.AddNode(key.word, false, -1, -1)
			b.nodes[key] = n
		}
		b.lat.SetInitial(n)
	}
	return b.lat.Initial()
}

// addOrMergeEdge inserts an edge, collapsing parallel edges with a viterbi
// (max) merge, matching the optimizer's default policy.
func (b *latticeBuilder) addOrMergeEdge(from, to *Node, acoustic, language float64) {
	if e := from.EdgeTo(to); e != nil {
		if acoustic > e.AcousticScore {
			e.AcousticScore = acoustic
		}
		if language > e.LMScore {
			e.LMScore = language
		}
		return
	}
	b.lat.AddEdge(from, to, acoustic, language)
}
