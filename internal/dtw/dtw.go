// Package dtw aligns two solar wind time series with dynamic time warping.
//
// The aligner is the standard cumulative-cost dynamic program with one
// addition: an off-diagonal penalty that discourages the path from locally
// compressing or stretching time beyond a configured band. Without it, flat
// stretches of signal produce degenerate alignments where many comparison
// samples collapse onto a single reference sample.
package dtw

import (
	"errors"
	"math"
	"time"
)

var (
	// ErrEmptyInput indicates one or both input sequences are empty.
	ErrEmptyInput = errors.New("dtw: input sequences must be non-empty")

	// ErrTooShort indicates a sequence has fewer than two samples, which
	// leaves no rate-of-change information to warp against.
	ErrTooShort = errors.New("dtw: input sequences need at least two samples")

	// ErrNonFinite indicates NaN or Inf survived gap filling.
	ErrNonFinite = errors.New("dtw: input contains non-finite values")
)

// Pair is one step of a warping path: reference index I matched to
// comparison index J.
type Pair struct {
	I, J int
}

// Path is a monotonic warping path from (0,0) to (len(ref)-1, len(comp)-1).
type Path []Pair

// Options configures the off-diagonal penalty. Radii are in reference
// samples; see RadiiFromMinutes for the conversion from a time tolerance.
type Options struct {
	// RadiusMin is the penalty-free band around the diagonal.
	RadiusMin float64
	// RadiusMax saturates the penalty: deviation beyond it costs no more.
	RadiusMax float64
	// Weight scales the penalty. Chosen per channel class (flow speed vs
	// magnetic field) because the two live on very different value scales.
	Weight float64
	// Exponent shapes penalty growth between the two radii.
	Exponent float64
}

// RadiiFromMinutes converts a time tolerance into penalty radii in samples.
// Each series contributes a radius from its own median cadence; the band is
// bounded by the smaller of the two and saturates at the larger.
func RadiiFromMinutes(minutes float64, refInterval, compInterval time.Duration) (rmin, rmax float64) {
	r1 := minutes * 60 / refInterval.Seconds()
	r2 := minutes * 60 / compInterval.Seconds()
	if r1 < r2 {
		return r1, r2
	}
	return r2, r1
}

// Align computes the minimal-cost monotonic warping path between ref and
// comp. When comp is longer than ref the alignment runs with the operands
// swapped and the resulting path is inverted, since the dynamic program is
// not symmetric for unequal lengths; equal lengths keep reference order.
func Align(ref, comp []float64, opts Options) (Path, error) {
	if err := validate(ref); err != nil {
		return nil, err
	}
	if err := validate(comp); err != nil {
		return nil, err
	}

	if len(comp) > len(ref) {
		inv, err := align(comp, ref, opts)
		if err != nil {
			return nil, err
		}
		path := make(Path, len(inv))
		for k, p := range inv {
			path[k] = Pair{I: p.J, J: p.I}
		}
		return path, nil
	}
	return align(ref, comp, opts)
}

func validate(x []float64) error {
	if len(x) == 0 {
		return ErrEmptyInput
	}
	if len(x) < 2 {
		return ErrTooShort
	}
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrNonFinite
		}
	}
	return nil
}

// align fills the (n+1)x(m+1) cumulative cost matrix and backtracks the
// optimal path. Caller guarantees len(a) >= len(b) >= 2.
func align(a, b []float64, opts Options) (Path, error) {
	n, m := len(a), len(b)
	inf := math.Inf(1)

	dp := make([][]float64, n+1)
	for i := range dp {
		dp[i] = make([]float64, m+1)
	}
	for i := 1; i <= n; i++ {
		dp[i][0] = inf
	}
	for j := 1; j <= m; j++ {
		dp[0][j] = inf
	}

	// Comparison indices are mapped onto the reference axis so the
	// deviation is measured in reference samples regardless of cadence.
	ratio := 1.0
	if m > 1 {
		ratio = float64(n-1) / float64(m-1)
	}

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			cost := math.Abs(a[i-1]-b[j-1]) + penalty(float64(i-1), float64(j-1)*ratio, opts)
			diag := dp[i-1][j-1]
			up := dp[i-1][j]
			left := dp[i][j-1]
			best := diag
			if up < best {
				best = up
			}
			if left < best {
				best = left
			}
			dp[i][j] = cost + best
		}
	}

	// Backtrack from (n,m) preferring the diagonal step on ties so equal
	// cost never introduces spurious time skew.
	path := make(Path, 0, n+m)
	i, j := n, m
	for i > 1 || j > 1 {
		path = append(path, Pair{I: i - 1, J: j - 1})
		diag, up, left := inf, inf, inf
		if i > 1 && j > 1 {
			diag = dp[i-1][j-1]
		}
		if i > 1 {
			up = dp[i-1][j]
		}
		if j > 1 {
			left = dp[i][j-1]
		}
		switch {
		case diag <= up && diag <= left:
			i, j = i-1, j-1
		case up <= left:
			i--
		default:
			j--
		}
	}
	path = append(path, Pair{I: 0, J: 0})

	// Reverse in place.
	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}
	return path, nil
}

// penalty is the additive off-diagonal cost for matching reference sample i
// to a comparison sample at reference-axis position jScaled. Zero inside
// RadiusMin, grows as Weight*excess^Exponent, flat beyond RadiusMax.
func penalty(i, jScaled float64, opts Options) float64 {
	if opts.Weight == 0 {
		return 0
	}
	dev := math.Abs(i - jScaled)
	excess := dev - opts.RadiusMin
	if excess <= 0 {
		return 0
	}
	if span := opts.RadiusMax - opts.RadiusMin; span > 0 && excess > span {
		excess = span
	}
	return opts.Weight * math.Pow(excess, opts.Exponent)
}
