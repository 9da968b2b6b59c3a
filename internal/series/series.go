// Package series holds per-spacecraft time-indexed solar wind observations.
//
// A Record carries every measured channel on one shared, strictly increasing
// timeline, with NaN marking missing values. Records are built once per
// analysis window and are not mutated afterwards except for fill and
// position interpolation performed during construction.
package series

import (
	"math"
	"sort"
	"time"

	"github.com/helioswarm/shockfront/internal/geometry"
)

// Channel identifies one measured physical quantity.
type Channel string

const (
	Speed Channel = "SPEED" // proton flow speed, km/s
	Np    Channel = "Np"    // proton density, cm^-3
	Vth   Channel = "Vth"   // thermal speed, km/s
	Bx    Channel = "Bx"    // GSE magnetic field components, nT
	By    Channel = "By"
	Bz    Channel = "Bz"
	Bt    Channel = "Bt" // total field magnitude, derived at ingest
)

// PlasmaChannels are the channels subject to the physical-range quality cut.
var PlasmaChannels = []Channel{Speed, Np, Vth}

// Record is one spacecraft's merged plasma, magnetic field and orbit data.
type Record struct {
	Craft  string
	Times  []time.Time
	Values map[Channel][]float64
	Pos    []geometry.Vec3 // GSE km; NaN components where the orbit file has gaps
}

// sample pairs a timestamp with its original slot so the merged timeline can
// be rebuilt after sorting.
type sample struct {
	t   time.Time
	idx int
}

// New builds a Record from raw parallel slices. Timestamps are sorted and
// duplicate timestamps collapsed keeping the first occurrence, so the result
// satisfies the strictly-increasing invariant.
func New(craft string, times []time.Time, values map[Channel][]float64, pos []geometry.Vec3) *Record {
	order := make([]sample, len(times))
	for i, t := range times {
		order[i] = sample{t: t, idx: i}
	}
	sort.SliceStable(order, func(a, b int) bool { return order[a].t.Before(order[b].t) })

	r := &Record{
		Craft:  craft,
		Values: make(map[Channel][]float64, len(values)),
	}
	var last time.Time
	for k, s := range order {
		if k > 0 && !s.t.After(last) {
			continue // duplicate timestamp, keep first
		}
		last = s.t
		r.Times = append(r.Times, s.t)
		if pos != nil {
			r.Pos = append(r.Pos, pos[s.idx])
		}
		for ch, vals := range values {
			r.Values[ch] = append(r.Values[ch], vals[s.idx])
		}
	}
	return r
}

// Len returns the number of samples.
func (r *Record) Len() int { return len(r.Times) }

// CleanRange replaces values outside [lo, hi] with NaN for the given
// channels. Out-of-range sentinels (e.g. -9999.0) become missing.
func (r *Record) CleanRange(lo, hi float64, channels ...Channel) {
	for _, ch := range channels {
		vals := r.Values[ch]
		for i, v := range vals {
			if v < lo || v > hi {
				vals[i] = math.NaN()
			}
		}
	}
}

// Filled returns a copy of the channel with NaN gaps forward-filled, then
// backward-filled for any leading gap. The result is what the DTW aligner
// consumes; the stored channel is left untouched.
func (r *Record) Filled(ch Channel) []float64 {
	src := r.Values[ch]
	out := make([]float64, len(src))
	copy(out, src)

	lastFinite := math.NaN()
	for i, v := range out {
		if math.IsNaN(v) {
			out[i] = lastFinite
		} else {
			lastFinite = v
		}
	}
	// Backward pass for whatever the forward pass left at the head.
	lastFinite = math.NaN()
	for i := len(out) - 1; i >= 0; i-- {
		if math.IsNaN(out[i]) {
			out[i] = lastFinite
		} else {
			lastFinite = out[i]
		}
	}
	return out
}

// InterpolatePositions fills NaN position components by linear interpolation
// between the surrounding finite samples. Orbit archives are typically much
// coarser than plasma data, so most position slots start empty after merge.
func (r *Record) InterpolatePositions() {
	if len(r.Pos) == 0 {
		return
	}
	interpComponent(r.Times, r.Pos, func(v *geometry.Vec3) *float64 { return &v.X })
	interpComponent(r.Times, r.Pos, func(v *geometry.Vec3) *float64 { return &v.Y })
	interpComponent(r.Times, r.Pos, func(v *geometry.Vec3) *float64 { return &v.Z })
}

func interpComponent(times []time.Time, pos []geometry.Vec3, comp func(*geometry.Vec3) *float64) {
	prev := -1
	for i := range pos {
		v := *comp(&pos[i])
		if math.IsNaN(v) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			v0 := *comp(&pos[prev])
			t0 := times[prev]
			span := times[i].Sub(t0).Seconds()
			for k := prev + 1; k < i; k++ {
				frac := times[k].Sub(t0).Seconds() / span
				*comp(&pos[k]) = v0 + frac*(v-v0)
			}
		}
		prev = i
	}
	// Hold the edge values flat outside the first/last finite sample.
	if prev < 0 {
		return
	}
	first := -1
	for i := range pos {
		if !math.IsNaN(*comp(&pos[i])) {
			first = i
			break
		}
	}
	for i := 0; i < first; i++ {
		*comp(&pos[i]) = *comp(&pos[first])
	}
	for i := prev + 1; i < len(pos); i++ {
		*comp(&pos[i]) = *comp(&pos[prev])
	}
}

// Window returns a new Record restricted to [start, end] inclusive.
// The underlying slices are shared with the parent.
func (r *Record) Window(start, end time.Time) *Record {
	lo := sort.Search(len(r.Times), func(i int) bool { return !r.Times[i].Before(start) })
	hi := sort.Search(len(r.Times), func(i int) bool { return r.Times[i].After(end) })

	out := &Record{
		Craft:  r.Craft,
		Times:  r.Times[lo:hi],
		Values: make(map[Channel][]float64, len(r.Values)),
	}
	if r.Pos != nil {
		out.Pos = r.Pos[lo:hi]
	}
	for ch, vals := range r.Values {
		out.Values[ch] = vals[lo:hi]
	}
	return out
}

// MedianInterval returns the median spacing between consecutive samples.
// Returns 0 when fewer than two samples exist.
func (r *Record) MedianInterval() time.Duration {
	if len(r.Times) < 2 {
		return 0
	}
	diffs := make([]time.Duration, len(r.Times)-1)
	for i := 1; i < len(r.Times); i++ {
		diffs[i-1] = r.Times[i].Sub(r.Times[i-1])
	}
	sort.Slice(diffs, func(a, b int) bool { return diffs[a] < diffs[b] })
	return diffs[len(diffs)/2]
}

// NearestIndex returns the index of the sample closest in time to t.
// ok is false when the record is empty or the closest sample is farther
// than tol (tol <= 0 disables the tolerance check).
func (r *Record) NearestIndex(t time.Time, tol time.Duration) (int, bool) {
	n := len(r.Times)
	if n == 0 {
		return 0, false
	}
	i := sort.Search(n, func(k int) bool { return !r.Times[k].Before(t) })
	best := i
	if i == n {
		best = n - 1
	} else if i > 0 {
		if t.Sub(r.Times[i-1]) <= r.Times[i].Sub(t) {
			best = i - 1
		}
	}
	if tol > 0 {
		d := r.Times[best].Sub(t)
		if d < 0 {
			d = -d
		}
		if d > tol {
			return best, false
		}
	}
	return best, true
}

// PositionAt returns the interpolated GSE position nearest to t.
// ok is false when no finite position exists within tol of t.
func (r *Record) PositionAt(t time.Time, tol time.Duration) (geometry.Vec3, bool) {
	i, ok := r.NearestIndex(t, tol)
	if !ok || len(r.Pos) == 0 {
		return geometry.Vec3{}, false
	}
	// Walk outward to the nearest finite position if the closest slot is a gap.
	for off := 0; off < len(r.Pos); off++ {
		for _, k := range []int{i - off, i + off} {
			if k < 0 || k >= len(r.Pos) {
				continue
			}
			if r.Pos[k].IsFinite() {
				if tol > 0 {
					d := r.Times[k].Sub(t)
					if d < 0 {
						d = -d
					}
					if d > tol {
						return geometry.Vec3{}, false
					}
				}
				return r.Pos[k], true
			}
		}
	}
	return geometry.Vec3{}, false
}

// FiniteCount returns how many samples of ch inside [start, end] are finite.
func (r *Record) FiniteCount(ch Channel, start, end time.Time) int {
	vals := r.Values[ch]
	n := 0
	for i, t := range r.Times {
		if t.Before(start) || t.After(end) {
			continue
		}
		if i < len(vals) && !math.IsNaN(vals[i]) {
			n++
		}
	}
	return n
}

// DeriveBt computes the total field magnitude from the three components and
// stores it as the Bt channel. Slots where any component is missing stay NaN.
func (r *Record) DeriveBt() {
	bx, by, bz := r.Values[Bx], r.Values[By], r.Values[Bz]
	if bx == nil || by == nil || bz == nil {
		return
	}
	bt := make([]float64, len(bx))
	for i := range bx {
		bt[i] = math.Sqrt(bx[i]*bx[i] + by[i]*by[i] + bz[i]*bz[i])
	}
	r.Values[Bt] = bt
}
