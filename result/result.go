package result

import (
	"time"

	"github.com/ieee0824/lvcsr-go/internal/mathutil"
	"github.com/ieee0824/lvcsr-go/search"
)

// Result is the (possibly partial) outcome of a recognition. It retains the
// tokens that reached a final state, the active frontier at the time it was
// taken, and the alternate-predecessor archive needed to build a lattice.
type Result struct {
	finals        []*search.Token
	actives       []*search.Token
	alternates    *search.AlternateHypothesisManager
	isFinal       bool
	frameDuration time.Duration
	logMath       mathutil.LogMath
	err           error

	lattice *Lattice
}

// New assembles a Result. finals may be empty: the best active token then
// stands in for the best hypothesis (an empty result is not an error).
func New(finals, actives []*search.Token, alternates *search.AlternateHypothesisManager,
	isFinal bool, frameDuration time.Duration, logMath mathutil.LogMath, err error) *Result {
	if frameDuration == 0 {
		frameDuration = 10 * time.Millisecond
	}
	return &Result{
		finals:        finals,
		actives:       actives,
		alternates:    alternates,
		isFinal:       isFinal,
		frameDuration: frameDuration,
		logMath:       logMath,
		err:           err,
	}
}

// IsFinal reports whether the utterance ran to end-of-data.
func (r *Result) IsFinal() bool { return r.isFinal }

// Err returns the utterance error, if the search was aborted.
func (r *Result) Err() error { return r.err }

// ActiveTokens returns the surviving frontier.
func (r *Result) ActiveTokens() []*search.Token { return r.actives }

// FinalTokens returns the tokens that reached a final state.
func (r *Result) FinalTokens() []*search.Token { return r.finals }

// BestFinalToken returns the highest-scoring final token, nil if none.
func (r *Result) BestFinalToken() *search.Token { return bestOf(r.finals) }

// BestToken returns the best final token, falling back to the best active
// token when no hypothesis reached a final state.
func (r *Result) BestToken() *search.Token {
	if t := bestOf(r.finals); t != nil {
		return t
	}
	return bestOf(r.actives)
}

func bestOf(tokens []*search.Token) *search.Token {
	var best *search.Token
	for _, t := range tokens {
		if best == nil || t.Better(best) {
			best = t
		}
	}
	return best
}

// GetLattice builds (once) and returns the word lattice for this result.
func (r *Result) GetLattice() *Lattice {
	if r.lattice == nil {
		r.lattice = buildLattice(r)
	}
	return r.lattice
}

// WordResult is one recognized word with timings and confidence.
// LogConfidence is the raw log posterior; Confidence converts to linear,
// capping at LogOne first to mask floating-point overshoot.
type WordResult struct {
	Word          string
	BeginMs       uint64
	EndMs         uint64
	Score         float64
	LogConfidence float64
	Filler        bool

	logMath mathutil.LogMath
}

// Confidence returns the linear posterior in [0, 1].
func (w WordResult) Confidence() float64 {
	c := w.LogConfidence
	if c > mathutil.LogOne {
		c = mathutil.LogOne
	}
	return w.logMath.LogToLinear(c)
}

// GetTimedBestResult returns the best path as timed WordResults with
// lattice posteriors as confidences. Filler words are dropped unless
// withFillers is set.
func (r *Result) GetTimedBestResult(withFillers bool) []WordResult {
	best := r.BestToken()
	if best == nil {
		return nil
	}

	lat := buildLattice(r)
	opt := NewOptimizer(lat)
	opt.Optimize()
	withPosteriors := lat.ComputePosteriors() == nil

	nodeFor := make(map[nodeKey]*Node, lat.NodeCount())
	for _, n := range lat.Nodes() {
		nodeFor[nodeKey{n.Word, n.BeginFrame, n.EndFrame}] = n
	}

	var words []WordResult
	for t := best; t != nil; t = t.Predecessor() {
		if !t.IsWord() {
			continue
		}
		filler := t.State().IsFiller()
		if filler && !withFillers {
			continue
		}
		wr := WordResult{
			Word:    t.State().Word(),
			Score:   t.Score(),
			Filler:  filler,
			logMath: r.logMath,
		}
		begin, end := wordSpan(t)
		wr.BeginMs = frameToMs(begin, r.frameDuration, false)
		wr.EndMs = frameToMs(end, r.frameDuration, true)
		if withPosteriors {
			if n, ok := nodeFor[nodeKey{wr.Word, begin, end}]; ok {
				wr.LogConfidence = n.posterior
			}
		}
		words = append(words, wr)
	}

	// back-pointer walk yields words last-to-first
	for i, j := 0, len(words)-1; i < j; i, j = i+1, j-1 {
		words[i], words[j] = words[j], words[i]
	}
	return words
}

func frameToMs(frame int, d time.Duration, endBoundary bool) uint64 {
	if frame < 0 {
		return 0
	}
	if endBoundary {
		frame++
	}
	return uint64(time.Duration(frame) * d / time.Millisecond)
}

// wordSpan returns the frame span of the word ending at word token t: from
// the first emitting token after the previous word boundary through t's
// frame.
func wordSpan(t *search.Token) (begin, end int) {
	end = t.Frame()
	begin = end
	for p := t.Predecessor(); p != nil && !p.IsWord(); p = p.Predecessor() {
		if p.IsEmitting() && p.Frame() >= 0 {
			begin = p.Frame()
		}
	}
	return begin, end
}
