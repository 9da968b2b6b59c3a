// Package align turns DTW warping paths into per-sample time offsets and
// runs the two-pass coarse/fine alignment of every spacecraft against the
// reference craft.
package align

import (
	"errors"
	"sort"
	"time"

	"github.com/helioswarm/shockfront/internal/dtw"
	"github.com/helioswarm/shockfront/internal/series"
)

// ErrInsufficientData indicates a spacecraft had too few finite samples in
// the central sub-window to compute a meaningful bulk offset.
var ErrInsufficientData = errors.New("align: too few samples in central sub-window")

// ErrPathMismatch indicates a warping path references indices outside the
// timestamp slices it is being applied to.
var ErrPathMismatch = errors.New("align: warping path does not match series lengths")

// OffsetSample maps one reference sample to the signed time delta of its
// matched comparison sample (comparison time minus reference time).
type OffsetSample struct {
	RefIndex  int
	RefTime   time.Time
	CompIndex int
	Offset    time.Duration
}

// OffsetSeries is ordered by reference index, one entry per covered index.
type OffsetSeries []OffsetSample

// Offsets derives the offset series from a warping path. Non-injective
// paths map several comparison samples onto one reference index; the first
// occurrence wins, matching how the matched series is later re-keyed.
func Offsets(refTimes, compTimes []time.Time, path dtw.Path) (OffsetSeries, error) {
	out := make(OffsetSeries, 0, len(refTimes))
	lastRef := -1
	for _, p := range path {
		if p.I < 0 || p.I >= len(refTimes) || p.J < 0 || p.J >= len(compTimes) {
			return nil, ErrPathMismatch
		}
		if p.I == lastRef {
			continue // keep first match for this reference sample
		}
		lastRef = p.I
		out = append(out, OffsetSample{
			RefIndex:  p.I,
			RefTime:   refTimes[p.I],
			CompIndex: p.J,
			Offset:    compTimes[p.J].Sub(refTimes[p.I]),
		})
	}
	return out, nil
}

// Reindex builds a comparison record re-keyed onto the reference clock:
// each matched comparison sample is shifted backward by its own offset so
// comparable features line up on the reference timeline.
func Reindex(comp *series.Record, offsets OffsetSeries) *series.Record {
	out := &series.Record{
		Craft:  comp.Craft,
		Times:  make([]time.Time, 0, len(offsets)),
		Values: make(map[series.Channel][]float64, len(comp.Values)),
	}
	for _, os := range offsets {
		out.Times = append(out.Times, comp.Times[os.CompIndex].Add(-os.Offset))
		if comp.Pos != nil {
			out.Pos = append(out.Pos, comp.Pos[os.CompIndex])
		}
		for ch, vals := range comp.Values {
			out.Values[ch] = append(out.Values[ch], vals[os.CompIndex])
		}
	}
	return out
}

// At returns the offset for the reference sample nearest to t.
// ok is false for an empty series.
func (s OffsetSeries) At(t time.Time) (OffsetSample, bool) {
	if len(s) == 0 {
		return OffsetSample{}, false
	}
	i := sort.Search(len(s), func(k int) bool { return !s[k].RefTime.Before(t) })
	if i == len(s) {
		return s[len(s)-1], true
	}
	if i > 0 && t.Sub(s[i-1].RefTime) <= s[i].RefTime.Sub(t) {
		return s[i-1], true
	}
	return s[i], true
}

// Bulk returns the median offset within halfWidth of center. At least
// minSamples entries must fall inside the sub-window, otherwise
// ErrInsufficientData is returned and the caller keeps its previous
// estimate.
func (s OffsetSeries) Bulk(center time.Time, halfWidth time.Duration, minSamples int) (time.Duration, error) {
	var inside []time.Duration
	for _, os := range s {
		d := os.RefTime.Sub(center)
		if d < 0 {
			d = -d
		}
		if d <= halfWidth {
			inside = append(inside, os.Offset)
		}
	}
	if len(inside) < minSamples {
		return 0, ErrInsufficientData
	}
	sort.Slice(inside, func(a, b int) bool { return inside[a] < inside[b] })
	return inside[len(inside)/2], nil
}
