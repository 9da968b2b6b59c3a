package front

import (
	"log/slog"
	"math"
	"os"
	"testing"
	"time"

	"github.com/helioswarm/shockfront/internal/align"
	"github.com/helioswarm/shockfront/internal/geometry"
	"github.com/helioswarm/shockfront/internal/series"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

var refPos = geometry.Vec3{X: 1.5e6, Y: 1e4, Z: -2e4}

// refRecord builds a reference record parked at refPos around the given
// instants.
func refRecord(instants ...time.Time) *series.Record {
	first := instants[0]
	times := make([]time.Time, 0)
	pos := make([]geometry.Vec3, 0)
	for m := -60; m <= 60*6; m += 10 {
		times = append(times, first.Add(time.Duration(m)*time.Minute))
		pos = append(pos, refPos)
	}
	return series.New("Wind", times, map[series.Channel][]float64{}, pos)
}

// craftResult builds an alignment result for a craft parked at an absolute
// position, reporting the given offset at every covered instant.
func craftResult(name string, pos geometry.Vec3, offset time.Duration, around time.Time) *align.Result {
	times := make([]time.Time, 0)
	positions := make([]geometry.Vec3, 0)
	var offsets align.OffsetSeries
	for m := -60; m <= 60*6; m += 10 {
		ts := around.Add(time.Duration(m) * time.Minute)
		times = append(times, ts)
		positions = append(positions, pos)
		offsets = append(offsets, align.OffsetSample{
			RefIndex: len(offsets),
			RefTime:  ts,
			Offset:   offset,
		})
	}
	rec := series.New(name, times, map[series.Channel][]float64{}, positions)
	return &align.Result{Craft: name, Offsets: offsets, Record: rec}
}

// frontOffset derives one craft's crossing delay from a known front.
func frontOffset(pos geometry.Vec3, normal geometry.Vec3, speed float64) time.Duration {
	sec := pos.Sub(refPos).Dot(normal) / speed
	return time.Duration(sec * float64(time.Second))
}

// TestSolveRecoversFront verifies the plane solution and the target
// prediction for a clean earthward front.
func TestSolveRecoversFront(t *testing.T) {
	at := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	normal := geometry.Vec3{X: -1}
	const speed = 100.0

	triPos := map[string]geometry.Vec3{
		"DSCOVR": refPos.Sub(geometry.Vec3{X: 1000}),
		"ACE":    refPos.Sub(geometry.Vec3{X: 1500, Y: -2000}),
		"SOHO":   refPos.Sub(geometry.Vec3{X: 500, Z: -3000}),
	}
	results := map[string]*align.Result{}
	for name, pos := range triPos {
		results[name] = craftResult(name, pos, frontOffset(pos, normal, speed), at)
	}
	// Target far earthward; its own offset deliberately disagrees with the
	// plane by 400 s so the diagnostic error is visible.
	targetPos := refPos.Sub(geometry.Vec3{X: 1.44e6})
	trueDelay := frontOffset(targetPos, normal, speed)
	results["THEMIS_B"] = craftResult("THEMIS_B", targetPos, trueDelay-400*time.Second, at)

	tr := NewTriangulator(DefaultConfig(), testLogger())
	events := tr.Solve([]time.Time{at}, refRecord(at), results,
		[]string{"DSCOVR", "ACE", "SOHO"}, []string{"THEMIS_B"})

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Reused {
		t.Error("clean solve marked as reused")
	}
	if math.Abs(ev.Plane.Normal.X-(-1)) > 1e-6 || math.Abs(ev.Plane.Normal.Y) > 1e-6 || math.Abs(ev.Plane.Normal.Z) > 1e-6 {
		t.Errorf("normal = %+v, want (-1,0,0)", ev.Plane.Normal)
	}
	if math.Abs(ev.Plane.Speed-speed) > 1e-3 {
		t.Errorf("speed = %v, want %v", ev.Plane.Speed, speed)
	}
	if ev.AngleDeg > 1e-3 {
		t.Errorf("angle = %v, want ~0", ev.AngleDeg)
	}

	if len(ev.Predictions) != 1 {
		t.Fatalf("got %d predictions, want 1", len(ev.Predictions))
	}
	p := ev.Predictions[0]
	wantSec := trueDelay.Seconds()
	if math.Abs(p.OffsetSec-wantSec) > 1 {
		t.Errorf("predicted offset = %v s, want %v s", p.OffsetSec, wantSec)
	}
	if !p.HasObserved {
		t.Fatal("prediction missing observed arrival")
	}
	if math.Abs(p.ErrorSec-400) > 1 {
		t.Errorf("diagnostic error = %v s, want ~400", p.ErrorSec)
	}
	wantArrival := at.Add(time.Duration(p.OffsetSec * float64(time.Second)))
	if p.Arrival.Sub(wantArrival).Abs() > time.Millisecond {
		t.Errorf("arrival = %v, want %v", p.Arrival, wantArrival)
	}
}

// TestSolveAngleGate verifies the sunward-cone gate: a sideways normal with
// no prior solution drops the event entirely.
func TestSolveAngleGate(t *testing.T) {
	at := time.Date(2026, 4, 2, 13, 0, 0, 0, time.UTC)
	badNormal := geometry.Vec3{Y: 1} // 90 degrees from sunward
	const speed = 100.0

	triPos := map[string]geometry.Vec3{
		"DSCOVR": refPos.Sub(geometry.Vec3{X: 1000}),
		"ACE":    refPos.Sub(geometry.Vec3{X: 1500, Y: -2000}),
		"SOHO":   refPos.Sub(geometry.Vec3{X: 500, Z: -3000}),
	}
	results := map[string]*align.Result{}
	for name, pos := range triPos {
		results[name] = craftResult(name, pos, frontOffset(pos, badNormal, speed), at)
	}

	tr := NewTriangulator(DefaultConfig(), testLogger())
	events := tr.Solve([]time.Time{at}, refRecord(at), results,
		[]string{"DSCOVR", "ACE", "SOHO"}, nil)
	if len(events) != 0 {
		t.Fatalf("gated event without prior produced %d events, want 0", len(events))
	}
}

// TestSolveReusesPriorPlane verifies an explicitly gated second event
// carries the first event's plane.
func TestSolveReusesPriorPlane(t *testing.T) {
	base := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	const speed = 100.0
	goodNormal := geometry.Vec3{X: -1}
	badNormal := geometry.Vec3{Y: 1}

	triPos := map[string]geometry.Vec3{
		"DSCOVR": refPos.Sub(geometry.Vec3{X: 1000}),
		"ACE":    refPos.Sub(geometry.Vec3{X: 1500, Y: -2000}),
		"SOHO":   refPos.Sub(geometry.Vec3{X: 500, Z: -3000}),
	}

	// Offset series switch from good to bad geometry at the second event.
	results := map[string]*align.Result{}
	second := base.Add(2 * time.Hour)
	for name, pos := range triPos {
		goodOff := frontOffset(pos, goodNormal, speed)
		badOff := frontOffset(pos, badNormal, speed)

		times := []time.Time{base, second}
		positions := []geometry.Vec3{pos, pos}
		rec := series.New(name, times, map[series.Channel][]float64{}, positions)
		results[name] = &align.Result{
			Craft:  name,
			Record: rec,
			Offsets: align.OffsetSeries{
				{RefIndex: 0, RefTime: base, Offset: goodOff},
				{RefIndex: 1, RefTime: second, Offset: badOff},
			},
		}
	}

	tr := NewTriangulator(DefaultConfig(), testLogger())
	events := tr.Solve([]time.Time{base, second}, refRecord(base), results,
		[]string{"DSCOVR", "ACE", "SOHO"}, nil)

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Reused {
		t.Error("first event unexpectedly reused")
	}
	if !events[1].Reused {
		t.Fatal("second event did not reuse the prior plane")
	}
	if events[1].Plane.Normal != events[0].Plane.Normal {
		t.Errorf("reused normal %+v differs from prior %+v",
			events[1].Plane.Normal, events[0].Plane.Normal)
	}
	if events[1].Plane.Speed != events[0].Plane.Speed {
		t.Errorf("reused speed %v differs from prior %v",
			events[1].Plane.Speed, events[0].Plane.Speed)
	}
}

// TestSolveDegenerateGeometrySkips verifies collinear spacecraft with no
// prior solution drop the event rather than emitting a bogus plane.
func TestSolveDegenerateGeometrySkips(t *testing.T) {
	at := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)

	results := map[string]*align.Result{
		"DSCOVR": craftResult("DSCOVR", refPos.Sub(geometry.Vec3{X: 1000}), 10*time.Second, at),
		"ACE":    craftResult("ACE", refPos.Sub(geometry.Vec3{X: 2000}), 20*time.Second, at),
		"SOHO":   craftResult("SOHO", refPos.Sub(geometry.Vec3{X: 3000}), 30*time.Second, at),
	}

	tr := NewTriangulator(DefaultConfig(), testLogger())
	events := tr.Solve([]time.Time{at}, refRecord(at), results,
		[]string{"DSCOVR", "ACE", "SOHO"}, nil)
	if len(events) != 0 {
		t.Fatalf("degenerate geometry produced %d events, want 0", len(events))
	}
}
