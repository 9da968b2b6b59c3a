// Package front triangulates planar shock-front solutions from aligned
// multi-spacecraft observations and predicts arrival times at additional
// near-Earth targets.
package front

import (
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/helioswarm/shockfront/internal/align"
	"github.com/helioswarm/shockfront/internal/geometry"
	"github.com/helioswarm/shockfront/internal/series"
)

// Observation is one spacecraft's triangulation input at an event instant.
type Observation struct {
	Craft  string
	Pos    geometry.Vec3 // GSE km at the offset-corrected time
	Offset float64       // seconds relative to the reference craft
}

// Prediction is a projected arrival at a target spacecraft.
type Prediction struct {
	Craft       string
	DistanceKm  float64 // signed perpendicular distance from the target to the plane
	OffsetSec   float64 // predicted time delta from the reference event
	Arrival     time.Time
	ActualSec   float64 // target's own DTW offset; NaN when unavailable
	ErrorSec    float64 // predicted minus actual; NaN when unavailable
	HasObserved bool
}

// Event is a reference instant with a validated plane solution.
type Event struct {
	At           time.Time
	Observations []Observation
	Plane        geometry.Plane
	Reused       bool // plane carried over from the previous valid event
	AngleDeg     float64
	Predictions  []Prediction
}

// Config for the triangulation loop.
type Config struct {
	AngleCutoffDeg float64       // discard normals farther than this from sunward
	PosTolerance   time.Duration // nearest-neighbor window for position lookups
}

// DefaultConfig uses the 70 degree cutoff of Weimer et al. (2003).
func DefaultConfig() Config {
	return Config{
		AngleCutoffDeg: 70,
		PosTolerance:   2 * time.Hour,
	}
}

// Triangulator solves plane geometry per event, carrying the most recent
// valid solution across events as an explicit fallback.
type Triangulator struct {
	cfg    Config
	logger *slog.Logger
}

// NewTriangulator creates a triangulator.
func NewTriangulator(cfg Config, logger *slog.Logger) *Triangulator {
	return &Triangulator{cfg: cfg, logger: logger}
}

// Solve triangulates a plane for each event instant. triCraft names the
// three non-reference spacecraft used for geometry, targets the additional
// craft to predict arrivals for. Events with no usable plane (degenerate
// geometry or gated angle, and no prior valid solution) are omitted.
func (tr *Triangulator) Solve(events []time.Time, ref *series.Record, results map[string]*align.Result, triCraft, targets []string) []Event {
	var out []Event
	var lastValid *geometry.Plane // nil until the first accepted solution

	for _, at := range events {
		obs, ok := tr.observe(at, ref, results, triCraft)
		if !ok {
			continue
		}
		refPos, ok := ref.PositionAt(at, tr.cfg.PosTolerance)
		if !ok {
			tr.logger.Warn("no reference position for event", "at", at)
			continue
		}

		var positions [3]geometry.Vec3
		var offsets [3]float64
		for k, o := range obs {
			positions[k] = o.Pos.Sub(refPos)
			offsets[k] = o.Offset
		}

		plane := geometry.Plane{Anchor: refPos, At: at}
		reused := false
		angle := math.NaN()

		normal, speed, err := geometry.SolvePlane(positions, offsets)
		if err != nil {
			if !errors.Is(err, geometry.ErrSingularGeometry) {
				tr.logger.Warn("plane solve failed", "at", at, "error", err)
				continue
			}
			if lastValid == nil {
				tr.logger.Warn("degenerate geometry with no prior solution, skipping event", "at", at)
				continue
			}
			plane.Normal, plane.Speed = lastValid.Normal, lastValid.Speed
			reused = true
		} else {
			angle = geometry.AngleFromSunward(normal)
			if angle > tr.cfg.AngleCutoffDeg {
				if lastValid == nil {
					tr.logger.Warn("normal outside sunward cone with no prior solution, skipping event",
						"at", at, "angle_deg", angle)
					continue
				}
				plane.Normal, plane.Speed = lastValid.Normal, lastValid.Speed
				reused = true
			} else {
				plane.Normal, plane.Speed = normal, speed
				lastValid = &geometry.Plane{Normal: normal, Speed: speed}
			}
		}

		ev := Event{
			At:           at,
			Observations: obs,
			Plane:        plane,
			Reused:       reused,
			AngleDeg:     angle,
		}
		for _, target := range targets {
			res := results[target]
			if res == nil {
				continue
			}
			if p, ok := tr.predict(ev.Plane, at, res); ok {
				p.Craft = target
				ev.Predictions = append(ev.Predictions, p)
			}
		}
		out = append(out, ev)
	}
	return out
}

// observe collects per-craft offset and position for one event instant.
// The per-sample offset uses the first DTW match on the reference timeline;
// the position is looked up at the offset-corrected time, because that is
// when the front actually crossed the craft.
func (tr *Triangulator) observe(at time.Time, ref *series.Record, results map[string]*align.Result, triCraft []string) ([]Observation, bool) {
	obs := make([]Observation, 0, len(triCraft))
	for _, name := range triCraft {
		res := results[name]
		if res == nil {
			return nil, false
		}
		os, ok := res.Offsets.At(at)
		if !ok {
			tr.logger.Warn("no offset for craft at event", "craft", name, "at", at)
			return nil, false
		}
		offset := os.Offset.Seconds()
		pos, ok := res.Record.PositionAt(at.Add(os.Offset), tr.cfg.PosTolerance)
		if !ok {
			tr.logger.Warn("no position for craft at event", "craft", name, "at", at)
			return nil, false
		}
		obs = append(obs, Observation{Craft: name, Pos: pos, Offset: offset})
	}
	return obs, len(obs) == len(triCraft)
}

// predict projects the plane to the target's position. The target's own
// offset series, when it covers the event, provides the observed arrival
// for the diagnostic error; the error never feeds back into the solution.
func (tr *Triangulator) predict(plane geometry.Plane, at time.Time, res *align.Result) (Prediction, bool) {
	pos, ok := res.Record.PositionAt(at, tr.cfg.PosTolerance)
	if !ok {
		return Prediction{}, false
	}
	dist := plane.SignedDistance(pos)
	dt := dist / plane.Speed

	p := Prediction{
		DistanceKm: dist,
		OffsetSec:  dt,
		Arrival:    at.Add(time.Duration(dt * float64(time.Second))),
		ActualSec:  math.NaN(),
		ErrorSec:   math.NaN(),
	}
	if os, ok := res.Offsets.At(at); ok {
		p.ActualSec = os.Offset.Seconds()
		p.ErrorSec = dt - p.ActualSec
		p.HasObserved = true
	}
	return p, true
}
