package result

import (
	"fmt"
	"log/slog"

	"github.com/ieee0824/lvcsr-go/internal/mathutil"
)

// posteriorTolerance bounds the allowed relative disagreement between the
// forward and backward normalizers.
const posteriorTolerance = 1e-4

// ComputePosteriors runs a forward-backward pass over the lattice in the
// log semiring and stores a log posterior on every node, capped at LogOne
// to mask floating-point overshoot. Degenerate lattices (a single node, no
// edges) get posterior LogOne without error.
func (l *Lattice) ComputePosteriors() error {
	if l.initial == nil {
		return fmt.Errorf("compute posteriors: lattice has no initial node")
	}
	order, err := l.TopologicalOrder()
	if err != nil {
		return fmt.Errorf("compute posteriors: %w", err)
	}
	if l.terminal == nil {
		l.terminal = l.initial
	}

	for _, n := range order {
		n.forward = mathutil.LogZero
		n.backward = mathutil.LogZero
	}
	l.initial.forward = mathutil.LogOne
	for _, n := range order {
		if mathutil.IsZero(n.forward) {
			continue
		}
		for _, e := range n.leaving {
			e.To.forward = l.logMath.Add(e.To.forward, n.forward+e.AcousticScore+e.LMScore)
		}
	}

	l.terminal.backward = mathutil.LogOne
	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		if mathutil.IsZero(n.backward) {
			continue
		}
		for _, e := range n.entering {
			e.From.backward = l.logMath.Add(e.From.backward, n.backward+e.AcousticScore+e.LMScore)
		}
	}

	z := l.terminal.forward
	zb := l.initial.backward
	if mathutil.IsZero(z) || mathutil.IsZero(zb) {
		return fmt.Errorf("compute posteriors: terminal unreachable from initial")
	}
	if diff := abs(z - zb); diff > posteriorTolerance*(1+abs(z)) {
		return fmt.Errorf("compute posteriors: normalizers disagree: forward %g, backward %g", z, zb)
	}

	for _, n := range order {
		p := n.forward + n.backward - z
		p, floored := mathutil.Floor(p)
		if floored {
			slog.Warn("posterior underflow floored", "word", n.Word, "node", n.id)
		}
		if p > mathutil.LogOne {
			p = mathutil.LogOne
		}
		n.posterior = p
	}
	return nil
}
