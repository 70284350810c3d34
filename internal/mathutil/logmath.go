package mathutil

import "math"

// LogZero represents log(0), used as negative infinity in log-domain arithmetic.
const LogZero = -1e30

// LogOne is the log-domain multiplicative identity.
const LogOne = 0.0

// LogMath performs log-domain arithmetic in a configurable log base.
// All decoder scores pass through a single LogMath value so the base stays
// consistent across components without a process-wide singleton.
type LogMath struct {
	base    float64
	logBase float64 // natural log of base, 1.0 for base e
	invBase float64 // 1 / logBase
}

// NewLogMath creates a LogMath for the given base.
// A base of 0 or e selects natural logarithms.
func NewLogMath(base float64) LogMath {
	if base == 0 || base == math.E {
		return LogMath{base: math.E, logBase: 1.0, invBase: 1.0}
	}
	lb := math.Log(base)
	return LogMath{base: base, logBase: lb, invBase: 1.0 / lb}
}

// Base returns the log base.
func (m LogMath) Base() float64 { return m.base }

// LinearToLog converts a linear value to the log domain.
// Non-positive values map to LogZero.
func (m LogMath) LinearToLog(v float64) float64 {
	if v <= 0 {
		return LogZero
	}
	return math.Log(v) * m.invBase
}

// LogToLinear converts a log-domain value to linear.
func (m LogMath) LogToLinear(v float64) float64 {
	if v <= LogZero {
		return 0
	}
	return math.Exp(v * m.logBase)
}

// Add returns log(exp(a) + exp(b)) in a numerically stable way.
// Uses threshold-based early exit to skip expensive exp/log1p when the
// smaller value contributes less than float64 precision.
func (m LogMath) Add(a, b float64) float64 {
	if a < b {
		a, b = b, a
	}
	if b <= LogZero {
		return a
	}
	d := (b - a) * m.logBase
	if d < -36.0 {
		return a
	}
	return a + math.Log1p(math.Exp(d))*m.invBase
}

// Sub returns log(exp(a) - exp(b)), assuming a > b.
func (m LogMath) Sub(a, b float64) float64 {
	if b <= LogZero {
		return a
	}
	if a <= b {
		return LogZero
	}
	return a + math.Log1p(-math.Exp((b-a)*m.logBase))*m.invBase
}

// IsZero reports whether v represents log(0).
func IsZero(v float64) bool { return v <= LogZero }

// Floor maps NaN, -Inf and underflowed values to LogZero.
// The second return value tells the caller the input was degenerate.
func Floor(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, -1) || v < LogZero {
		return LogZero, true
	}
	return v, false
}
