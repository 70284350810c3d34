package result

import (
	"math"
	"testing"

	"github.com/ieee0824/lvcsr-go/internal/mathutil"
	"github.com/ieee0824/lvcsr-go/linguist"
	"github.com/ieee0824/lvcsr-go/search"
)

type chainState struct {
	sig      string
	emitting bool
	final    bool
	word     string
	filler   bool
}

func (s *chainState) Signature() string    { return s.sig }
func (s *chainState) IsEmitting() bool     { return s.emitting }
func (s *chainState) IsFinal() bool        { return s.final }
func (s *chainState) IsWord() bool         { return s.word != "" }
func (s *chainState) Word() string         { return s.word }
func (s *chainState) IsFiller() bool       { return s.filler }
func (s *chainState) Arcs() []linguist.Arc { return nil }

func emitState(sig string) *chainState { return &chainState{sig: sig, emitting: true} }

func wordState(word string) *chainState {
	return &chainState{sig: "W:" + word, word: word, final: word == "</s>"}
}

// chainThrough builds <s> -> word (frames 0..frames-1, acPerFrame each)
// -> </s> and returns the final token.
func chainThrough(word string, frames int, acPerFrame, lang, ins float64) *search.Token {
	t := search.NewInitialToken(wordState("<s>"))
	var cur *search.Token = t
	for i := 0; i < frames; i++ {
		cur = search.NewToken(cur, emitState("S:"+word), 0, 0)
		cur.ApplyAcousticScore(acPerFrame, i)
	}
	w := search.NewToken(cur, wordState(word), lang, ins)
	return search.NewToken(w, wordState("</s>"), 0, 0)
}

func finalResult(finals []*search.Token, alts *search.AlternateHypothesisManager) *Result {
	return New(finals, nil, alts, true, 0, mathutil.NewLogMath(0), nil)
}

func TestBuildLatticeSimpleChain(t *testing.T) {
	final := chainThrough("A", 3, -1.0, -0.2, -0.1)
	lat := finalResult([]*search.Token{final}, nil).GetLattice()

	if lat.NodeCount() != 3 {
		t.Fatalf("nodes = %d, want <s>, A, </s>", lat.NodeCount())
	}
	if lat.Initial() == nil || lat.Initial().Word != "<s>" {
		t.Fatalf("initial = %+v", lat.Initial())
	}
	if lat.Terminal() == nil || lat.Terminal().Word != "</s>" {
		t.Fatalf("terminal = %+v", lat.Terminal())
	}

	var a *Node
	for _, n := range lat.Nodes() {
		if n.Word == "A" {
			a = n
		}
	}
	if a == nil {
		t.Fatal("no A node")
	}
	if a.BeginFrame != 0 || a.EndFrame != 2 {
		t.Errorf("A spans frames [%d, %d], want [0, 2]", a.BeginFrame, a.EndFrame)
	}
	in := a.entering[0]
	if math.Abs(in.AcousticScore-(-3.0)) > 1e-9 {
		t.Errorf("segment acoustic = %f, want -3", in.AcousticScore)
	}
	if math.Abs(in.LMScore-(-0.3)) > 1e-9 {
		t.Errorf("segment language = %f, want -0.3", in.LMScore)
	}

	if _, err := lat.TopologicalOrder(); err != nil {
		t.Errorf("lattice not acyclic: %v", err)
	}
}

func TestBuildLatticeMergesEquivalentWordTokens(t *testing.T) {
	// two final tokens over identical word hypotheses merge node-wise
	f1 := chainThrough("A", 3, -1.0, 0, 0)
	f2 := chainThrough("A", 3, -1.5, 0, 0)
	lat := finalResult([]*search.Token{f1, f2}, nil).GetLattice()

	count := 0
	for _, n := range lat.Nodes() {
		if n.Word == "A" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("A nodes = %d, want 1 (merged by word and span)", count)
	}
	// parallel edges collapse with a viterbi merge
	var a *Node
	for _, n := range lat.Nodes() {
		if n.Word == "A" {
			a = n
		}
	}
	if got := a.entering[0].AcousticScore; math.Abs(got-(-3.0)) > 1e-9 {
		t.Errorf("merged acoustic = %f, want max(-3, -4.5)", got)
	}
}

func TestBuildLatticeWithAlternates(t *testing.T) {
	// viterbi winner through A; loser through B archived at </s>
	winner := chainThrough("A", 3, -1.0, 0, 0)
	loserPath := chainThrough("B", 3, -2.0, 0, 0)
	alts := search.NewAlternateHypothesisManager(10)
	// the archived token is the loser's predecessor (its word token)
	alts.AddAlternate(winner, loserPath.Predecessor())

	lat := finalResult([]*search.Token{winner}, alts).GetLattice()

	var sawA, sawB bool
	for _, n := range lat.Nodes() {
		switch n.Word {
		case "A":
			sawA = true
		case "B":
			sawB = true
		}
	}
	if !sawA || !sawB {
		t.Fatalf("alternate path missing: A=%v B=%v", sawA, sawB)
	}
	if err := lat.ComputePosteriors(); err != nil {
		t.Fatal(err)
	}
	var pa, pb float64
	for _, n := range lat.Nodes() {
		switch n.Word {
		case "A":
			pa = n.Posterior()
		case "B":
			pb = n.Posterior()
		}
	}
	if pa <= pb {
		t.Errorf("posterior(A)=%f should beat posterior(B)=%f", pa, pb)
	}
}

func TestBuildLatticeEmptyResult(t *testing.T) {
	lat := New(nil, nil, nil, true, 0, mathutil.NewLogMath(0), nil).GetLattice()
	if lat.NodeCount() != 1 || lat.Initial() != lat.Terminal() {
		t.Fatalf("empty result lattice: %d nodes", lat.NodeCount())
	}
	if lat.Initial().Word != "<s>" {
		t.Errorf("word = %q", lat.Initial().Word)
	}
	if err := lat.ComputePosteriors(); err != nil {
		t.Fatal(err)
	}
}

func TestBestTokenFallsBackToActive(t *testing.T) {
	active := search.NewInitialToken(emitState("S:A"))
	r := New(nil, []*search.Token{active}, nil, true, 0, mathutil.NewLogMath(0), nil)
	if r.BestFinalToken() != nil {
		t.Error("no final token expected")
	}
	if r.BestToken() != active {
		t.Error("best token must fall back to best active token")
	}
}

func TestTimedBestResult(t *testing.T) {
	final := chainThrough("A", 3, -1.0, 0, 0)
	r := finalResult([]*search.Token{final}, nil)

	words := r.GetTimedBestResult(true)
	if len(words) != 3 {
		t.Fatalf("words = %+v", words)
	}
	if words[0].Word != "<s>" || words[1].Word != "A" || words[2].Word != "</s>" {
		t.Fatalf("order: %q %q %q", words[0].Word, words[1].Word, words[2].Word)
	}
	if words[1].BeginMs != 0 || words[1].EndMs != 30 {
		t.Errorf("A spans [%d, %d) ms, want [0, 30)", words[1].BeginMs, words[1].EndMs)
	}
	// single path: every word has full confidence
	for _, w := range words {
		if math.Abs(w.Confidence()-1.0) > 1e-6 {
			t.Errorf("%s confidence = %f, want 1", w.Word, w.Confidence())
		}
	}
}

func TestTimedBestResultSkipsFillers(t *testing.T) {
	t0 := search.NewInitialToken(wordState("<s>"))
	e1 := search.NewToken(t0, emitState("S:sil"), 0, 0)
	e1.ApplyAcousticScore(-1, 0)
	sil := search.NewToken(e1, &chainState{sig: "W:<sil>", word: "<sil>", filler: true}, 0, 0)
	e2 := search.NewToken(sil, emitState("S:A"), 0, 0)
	e2.ApplyAcousticScore(-1, 1)
	w := search.NewToken(e2, wordState("A"), 0, 0)
	final := search.NewToken(w, wordState("</s>"), 0, 0)

	r := finalResult([]*search.Token{final}, nil)
	with := r.GetTimedBestResult(true)
	without := r.GetTimedBestResult(false)
	if len(with) != len(without)+1 {
		t.Fatalf("with=%d without=%d", len(with), len(without))
	}
	for _, wr := range without {
		if wr.Filler {
			t.Errorf("filler %q in no-filler result", wr.Word)
		}
	}
}

func TestConfidenceCappedAtLogOne(t *testing.T) {
	w := WordResult{LogConfidence: 0.25, logMath: mathutil.NewLogMath(0)}
	if got := w.Confidence(); got != 1.0 {
		t.Errorf("Confidence = %f, want capped 1.0", got)
	}
	w = WordResult{LogConfidence: math.Log(0.5), logMath: mathutil.NewLogMath(0)}
	if got := w.Confidence(); math.Abs(got-0.5) > 1e-10 {
		t.Errorf("Confidence = %f, want 0.5", got)
	}
}
