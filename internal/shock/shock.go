// Package shock scores single-spacecraft shock signatures and selects the
// event instants the triangulation pipeline runs on.
//
// The logistic model itself is trained offline; only its application lives
// here. Features are jump significances: the per-second rate of change of a
// plasma channel normalized by its recent rolling variability.
package shock

import (
	"math"
	"sort"
	"time"

	"github.com/helioswarm/shockfront/internal/series"
)

// stdToSeconds rescales the rolling standard deviation to a per-second
// variability, matching the feature definition the model was trained on.
const stdToSeconds = 360.0

// Scorer applies trained logistic-regression coefficients to jump
// significances. Coefficients are configuration: they come from the offline
// training run, not from this repository.
type Scorer struct {
	WSpeed    float64
	WNp       float64
	WVth      float64
	Intercept float64
}

// DefaultScorer returns the coefficients of the operational model.
func DefaultScorer() Scorer {
	return Scorer{
		WSpeed:    1.69,
		WNp:       1.08,
		WVth:      1.23,
		Intercept: -10.3,
	}
}

// Probability returns the shock probability for one sample's significances.
func (s Scorer) Probability(sigSpeed, sigNp, sigVth float64) float64 {
	z := s.WSpeed*sigSpeed + s.WNp*sigNp + s.WVth*sigVth + s.Intercept
	return 1 / (1 + math.Exp(-z))
}

// Significance computes the jump significance series for one channel:
// |dv/dt| / v normalized by the rolling standard deviation over window,
// rescaled per second. Samples where the ratio is undefined score zero, so
// data gaps never masquerade as shocks.
func Significance(rec *series.Record, ch series.Channel, window time.Duration) []float64 {
	vals := rec.Values[ch]
	n := len(vals)
	sig := make([]float64, n)

	std := rollingStd(rec.Times, vals, window)

	prev := -1
	for i := 0; i < n; i++ {
		if math.IsNaN(vals[i]) {
			continue
		}
		if prev >= 0 {
			dt := rec.Times[i].Sub(rec.Times[prev]).Seconds()
			if dt > 0 && vals[i] != 0 && std[i] > 0 {
				del := math.Abs((vals[i]-vals[prev])/dt) / math.Abs(vals[i])
				s := del / (std[i] / stdToSeconds)
				if !math.IsNaN(s) && !math.IsInf(s, 0) {
					sig[i] = s
				}
			}
		}
		prev = i
	}
	return sig
}

// rollingStd computes a trailing-window standard deviation per sample.
// Windows with fewer than three finite samples yield NaN.
func rollingStd(times []time.Time, vals []float64, window time.Duration) []float64 {
	n := len(vals)
	out := make([]float64, n)
	var sum, sumSq float64
	var count int
	lo := 0

	// The window contents are tracked incrementally; NaN samples are never
	// admitted so they cannot poison the running sums.
	inWindow := make([]bool, n)
	for i := 0; i < n; i++ {
		if !math.IsNaN(vals[i]) {
			sum += vals[i]
			sumSq += vals[i] * vals[i]
			count++
			inWindow[i] = true
		}
		for lo <= i && times[i].Sub(times[lo]) > window {
			if inWindow[lo] {
				sum -= vals[lo]
				sumSq -= vals[lo] * vals[lo]
				count--
			}
			lo++
		}
		if count < 3 {
			out[i] = math.NaN()
			continue
		}
		mean := sum / float64(count)
		variance := sumSq/float64(count) - mean*mean
		if variance < 0 {
			variance = 0
		}
		out[i] = math.Sqrt(variance)
	}
	return out
}

// TopEvents returns the n reference instants with the largest relative speed
// jumps, in time order. The first and last edgeGuard of the window are
// excluded because DTW compresses pathologically near the boundaries.
func TopEvents(ref *series.Record, n int, edgeGuard time.Duration) []time.Time {
	type jump struct {
		t   time.Time
		rel float64
	}
	if ref.Len() == 0 || n <= 0 {
		return nil
	}
	start := ref.Times[0].Add(edgeGuard)
	end := ref.Times[len(ref.Times)-1].Add(-edgeGuard)

	speeds := ref.Values[series.Speed]
	var jumps []jump
	prev := -1
	for i, v := range speeds {
		if math.IsNaN(v) || v == 0 {
			continue
		}
		if prev >= 0 {
			t := ref.Times[i]
			if !t.Before(start) && !t.After(end) {
				jumps = append(jumps, jump{t: t, rel: math.Abs(v-speeds[prev]) / math.Abs(v)})
			}
		}
		prev = i
	}

	sort.Slice(jumps, func(a, b int) bool { return jumps[a].rel > jumps[b].rel })
	if len(jumps) > n {
		jumps = jumps[:n]
	}
	sort.Slice(jumps, func(a, b int) bool { return jumps[a].t.Before(jumps[b].t) })

	out := make([]time.Time, len(jumps))
	for i, j := range jumps {
		out[i] = j.t
	}
	return out
}
