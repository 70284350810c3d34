package scorer

import (
	"fmt"
	"math"

	"github.com/ieee0824/lvcsr-go/frontend"
	"github.com/ieee0824/lvcsr-go/linguist"
)

// GaussianScorer scores states with single diagonal Gaussians keyed by
// state signature. It is the reference scorer for tests and tooling; real
// acoustic models plug in behind the Scorer interface.
type GaussianScorer struct {
	states map[string]*gaussian
}

type gaussian struct {
	mean     []float64
	invVar   []float64
	logConst float64 // -0.5 * (dim*log(2π) + Σ log var)
}

// NewGaussianScorer creates an empty scorer.
func NewGaussianScorer() *GaussianScorer {
	return &GaussianScorer{states: make(map[string]*gaussian)}
}

// SetState registers the output distribution for a state signature.
func (s *GaussianScorer) SetState(signature string, mean, variance []float64) {
	g := &gaussian{
		mean:   mean,
		invVar: make([]float64, len(variance)),
	}
	logDet := 0.0
	for i, v := range variance {
		g.invVar[i] = 1.0 / v
		logDet += math.Log(v)
	}
	g.logConst = -0.5 * (float64(len(mean))*math.Log(2*math.Pi) + logDet)
	s.states[signature] = g
}

func (s *GaussianScorer) Allocate() error { return nil }

func (s *GaussianScorer) Deallocate() {}

// Score returns the diagonal-Gaussian log density of the feature.
func (s *GaussianScorer) Score(f frontend.Feature, state linguist.SearchState) (float64, error) {
	g, ok := s.states[state.Signature()]
	if !ok {
		return 0, fmt.Errorf("no distribution for state %q", state.Signature())
	}
	if len(f.Data) != len(g.mean) {
		return 0, fmt.Errorf("feature dim %d does not match model dim %d", len(f.Data), len(g.mean))
	}
	maha := 0.0
	for i, x := range f.Data {
		d := x - g.mean[i]
		maha += d * d * g.invVar[i]
	}
	return g.logConst - 0.5*maha, nil
}
