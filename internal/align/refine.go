package align

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/helioswarm/shockfront/internal/dtw"
	"github.com/helioswarm/shockfront/internal/metrics"
	"github.com/helioswarm/shockfront/internal/series"
)

// Reloader re-reads one spacecraft's data for a shifted analysis window so
// the fine pass compares approximately co-temporal samples.
type Reloader interface {
	Reload(ctx context.Context, craft string, start, end time.Time) (*series.Record, error)
}

// Config carries the empirically tuned alignment constants. The penalty
// weights and exponent come from the operational tuning of the matching
// pipeline and are deliberately configuration, not code.
type Config struct {
	CoarseMinutes    float64       // penalty tolerance for the first pass
	FineMinutes      float64       // penalty tolerance for the second pass
	SpeedPenalty     float64       // km/s-scale channel weight
	MagPenalty       float64       // nT-scale channel weight
	PenaltyExponent  float64       // growth of the off-diagonal penalty
	CenterHalfWidth  time.Duration // half width of the bulk-offset sub-window
	MinCenterSamples int           // minimum offsets required for a bulk median
}

// DefaultConfig returns the tuned defaults (85/30 minute tolerances,
// 10 km/s and 0.2 nT penalty weights, exponent 1.10, 30 minute sub-window).
func DefaultConfig() Config {
	return Config{
		CoarseMinutes:    85,
		FineMinutes:      30,
		SpeedPenalty:     10,
		MagPenalty:       0.2,
		PenaltyExponent:  1.10,
		CenterHalfWidth:  30 * time.Minute,
		MinCenterSamples: 5,
	}
}

// Result is the alignment of one comparison spacecraft against the
// reference after refinement.
type Result struct {
	Craft   string
	Channel series.Channel // channel the warp was computed on
	Offsets OffsetSeries
	Aligned *series.Record // comparison samples re-keyed on the reference clock
	Bulk    time.Duration  // bulk offset applied before the fine pass
	Record  *series.Record // the (possibly re-windowed) record the offsets index into
	Fine    bool           // false when the craft kept its coarse solution
}

// Controller runs DTW alignment in the fixed order Coarse -> Re-window ->
// Fine. Passes are strictly sequential because each output feeds the next.
type Controller struct {
	loader Reloader
	cfg    Config
	logger *slog.Logger
}

// NewController creates a refinement controller.
func NewController(loader Reloader, cfg Config, logger *slog.Logger) *Controller {
	return &Controller{loader: loader, cfg: cfg, logger: logger}
}

// Refine aligns every comparison craft against ref over [start, end].
// A craft whose bulk offset cannot be computed, or whose shifted window
// cannot be re-read, keeps its coarse solution; that is a degradation, not
// a failure. Craft are processed in sorted name order for determinism.
func (c *Controller) Refine(ctx context.Context, ref *series.Record, comps map[string]*series.Record, start, end time.Time) (map[string]*Result, error) {
	center := start.Add(end.Sub(start) / 2)

	names := make([]string, 0, len(comps))
	for name := range comps {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]*Result, len(comps))
	for _, name := range names {
		comp := comps[name]

		coarseStart := time.Now()
		coarse, err := c.alignPass(ref, comp, c.cfg.CoarseMinutes)
		if err != nil {
			return nil, fmt.Errorf("coarse alignment of %s: %w", name, err)
		}
		metrics.ObserveAlignment("coarse", time.Since(coarseStart))
		coarse.Craft = name
		coarse.Record = comp
		results[name] = coarse

		bulk, err := coarse.Offsets.Bulk(center, c.cfg.CenterHalfWidth, c.cfg.MinCenterSamples)
		if err != nil {
			c.logger.Warn("keeping coarse offsets", "craft", name, "error", err)
			continue
		}
		coarse.Bulk = bulk

		shifted, err := c.loader.Reload(ctx, name, start.Add(bulk), end.Add(bulk))
		if err != nil {
			c.logger.Warn("re-window failed, keeping coarse offsets", "craft", name, "error", err)
			continue
		}
		if shifted.Len() < 2 {
			c.logger.Warn("re-windowed record too short, keeping coarse offsets", "craft", name, "samples", shifted.Len())
			continue
		}

		fineStart := time.Now()
		fine, err := c.alignPass(ref, shifted, c.cfg.FineMinutes)
		if err != nil {
			c.logger.Warn("fine alignment failed, keeping coarse offsets", "craft", name, "error", err)
			continue
		}
		metrics.ObserveAlignment("fine", time.Since(fineStart))
		fine.Craft = name
		fine.Bulk = bulk
		fine.Record = shifted
		fine.Fine = true
		results[name] = fine
	}
	return results, nil
}

// alignPass picks the matching channel, derives penalty radii from the pass
// tolerance and both cadences, and runs one DTW alignment.
func (c *Controller) alignPass(ref, comp *series.Record, minutes float64) (*Result, error) {
	ch := pickChannel(ref, comp)

	weight := c.cfg.MagPenalty
	if ch == series.Speed {
		weight = c.cfg.SpeedPenalty
	}

	rmin, rmax := dtw.RadiiFromMinutes(minutes, ref.MedianInterval(), comp.MedianInterval())
	path, err := dtw.Align(ref.Filled(ch), comp.Filled(ch), dtw.Options{
		RadiusMin: rmin,
		RadiusMax: rmax,
		Weight:    weight,
		Exponent:  c.cfg.PenaltyExponent,
	})
	if err != nil {
		return nil, err
	}

	offsets, err := Offsets(ref.Times, comp.Times, path)
	if err != nil {
		return nil, err
	}
	return &Result{
		Channel: ch,
		Offsets: offsets,
		Aligned: Reindex(comp, offsets),
	}, nil
}

// pickChannel chooses what signal to warp on. Craft without usable magnetic
// field data (SOHO CELIAS) match on flow speed; everything else matches on
// the field component with the largest swing around the reference craft's
// sharpest speed jump, since that component carries the clearest shock
// signature.
func pickChannel(ref, comp *series.Record) series.Channel {
	magUsable := false
	for _, ch := range []series.Channel{series.Bx, series.By, series.Bz} {
		for _, v := range comp.Values[ch] {
			if !math.IsNaN(v) {
				magUsable = true
				break
			}
		}
		if magUsable {
			break
		}
	}
	if !magUsable {
		return series.Speed
	}

	jump := sharpestJump(ref)
	best := series.Bx
	bestRange := -1.0
	for _, ch := range []series.Channel{series.Bx, series.By, series.Bz} {
		r := rangeNear(ref, ch, jump, 3*time.Minute)
		if r > bestRange {
			bestRange = r
			best = ch
		}
	}
	return best
}

// sharpestJump returns the reference timestamp with the largest relative
// speed change between consecutive finite samples.
func sharpestJump(ref *series.Record) time.Time {
	speeds := ref.Values[series.Speed]
	bestVal := -1.0
	best := 0
	prev := -1
	for i, v := range speeds {
		if math.IsNaN(v) || v == 0 {
			continue
		}
		if prev >= 0 {
			rel := math.Abs(v-speeds[prev]) / math.Abs(v)
			if rel > bestVal {
				bestVal = rel
				best = i
			}
		}
		prev = i
	}
	if len(ref.Times) == 0 {
		return time.Time{}
	}
	return ref.Times[best]
}

// rangeNear returns max-min of the channel within +/- pad of t.
func rangeNear(rec *series.Record, ch series.Channel, t time.Time, pad time.Duration) float64 {
	vals := rec.Values[ch]
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, ts := range rec.Times {
		d := ts.Sub(t)
		if d < 0 {
			d = -d
		}
		if d > pad || i >= len(vals) || math.IsNaN(vals[i]) {
			continue
		}
		if vals[i] < lo {
			lo = vals[i]
		}
		if vals[i] > hi {
			hi = vals[i]
		}
	}
	if hi < lo {
		return -1
	}
	return hi - lo
}
