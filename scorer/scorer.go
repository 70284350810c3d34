// Package scorer defines the acoustic scoring boundary. The decoder hands a
// feature frame and a batch of emitting tokens to a BatchScorer; the model
// behind it is opaque. Scoring is the only place per-utterance parallelism
// is permitted.
package scorer

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ieee0824/lvcsr-go/frontend"
	"github.com/ieee0824/lvcsr-go/internal/mathutil"
	"github.com/ieee0824/lvcsr-go/linguist"
	"github.com/ieee0824/lvcsr-go/search"
)

// Scorer computes log-likelihoods for (frame, state) pairs.
type Scorer interface {
	// Allocate acquires model resources. Called before recognition starts.
	Allocate() error

	// Deallocate releases model resources.
	Deallocate()

	// Score returns the log-likelihood of the feature under the state's
	// output distribution.
	Score(f frontend.Feature, state linguist.SearchState) (float64, error)
}

// Func adapts a plain scoring function to the Scorer interface.
type Func func(f frontend.Feature, state linguist.SearchState) (float64, error)

func (fn Func) Allocate() error { return nil }

func (fn Func) Deallocate() {}

func (fn Func) Score(f frontend.Feature, state linguist.SearchState) (float64, error) {
	return fn(f, state)
}

// BatchScorer scores a batch of emitting tokens against one frame, fanning
// the batch out over worker goroutines, and returns the best-scored token
// for relative beaming.
type BatchScorer struct {
	Scorer  Scorer
	Workers int // <= 1 runs inline; 0 selects GOMAXPROCS
}

// CalculateScoresAndNormalize applies the frame's acoustic score to every
// emitting token in the batch and returns the best token afterwards, or nil
// for an empty batch. NaN and -Inf likelihoods are floored to LogZero and
// counted. Each token is touched by exactly one goroutine, so no locking is
// needed on the tokens themselves.
func (b *BatchScorer) CalculateScoresAndNormalize(f frontend.Feature, tokens []*search.Token) (*search.Token, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	workers := b.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(tokens) {
		workers = len(tokens)
	}

	var floored atomic.Int64
	scorePart := func(part []*search.Token) error {
		for _, t := range part {
			s, err := b.Scorer.Score(f, t.State())
			if err != nil {
				return fmt.Errorf("score frame %d: %w", f.Index, err)
			}
			s, bad := mathutil.Floor(s)
			if bad {
				floored.Add(1)
			}
			t.ApplyAcousticScore(s, f.Index)
		}
		return nil
	}

	if workers <= 1 {
		if err := scorePart(tokens); err != nil {
			return nil, err
		}
	} else {
		var g errgroup.Group
		chunk := (len(tokens) + workers - 1) / workers
		for start := 0; start < len(tokens); start += chunk {
			end := start + chunk
			if end > len(tokens) {
				end = len(tokens)
			}
			part := tokens[start:end]
			g.Go(func() error { return scorePart(part) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	if n := floored.Load(); n > 0 {
		slog.Warn("acoustic scores floored to log zero", "frame", f.Index, "count", n)
	}

	best := tokens[0]
	for _, t := range tokens[1:] {
		if t.Better(best) {
			best = t
		}
	}
	return best, nil
}
