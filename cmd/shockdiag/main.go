// Command shockdiag runs the full analysis pipeline on a synthetic
// four-spacecraft scenario with a known planar front, printing the
// recovered offsets, plane and arrival predictions against truth. Useful
// for eyeballing pipeline health without real archives.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/helioswarm/shockfront/internal/geometry"
	"github.com/helioswarm/shockfront/internal/series"
	"github.com/helioswarm/shockfront/internal/session"
)

// trueNormal and trueSpeed define the synthetic front. The normal points
// earthward (-X in GSE), so upstream craft see the shock first.
var (
	trueNormal = geometry.Vec3{X: -1}
	trueSpeed  = 600.0 // km/s
)

// craftPositions in GSE km: an L1 constellation plus one near-Earth target.
var craftPositions = map[string]geometry.Vec3{
	"Wind":     {X: 1.56e6, Y: 1.0e4, Z: -2.0e4},
	"DSCOVR":   {X: 1.50e6, Y: 1.2e5, Z: 3.0e4},
	"ACE":      {X: 1.48e6, Y: -2.4e5, Z: 1.0e4},
	"SOHO":     {X: 1.52e6, Y: 6.0e4, Z: -8.0e4},
	"THEMIS_B": {X: 6.0e4, Y: 1.5e4, Z: 5.0e3},
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	start := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	end := start.Add(6 * time.Hour)
	shockAtRef := start.Add(3 * time.Hour)

	loader := &syntheticLoader{shockAtRef: shockAtRef}

	fmt.Printf("Synthetic front: normal=(%.0f,%.0f,%.0f) speed=%.0f km/s, shock at %v (reference)\n",
		trueNormal.X, trueNormal.Y, trueNormal.Z, trueSpeed, shockAtRef)
	order := []string{"Wind", "DSCOVR", "ACE", "SOHO", "THEMIS_B"}
	for _, name := range order {
		fmt.Printf("  %-9s true crossing delay %+.1f s\n", name, loader.delaySeconds(name))
	}

	cfg := session.DefaultConfig("Wind", []string{"DSCOVR", "ACE", "SOHO"}, []string{"THEMIS_B"}, start, end)
	sess := session.New(cfg, loader, logger)

	results, err := sess.Run(context.Background())
	if err != nil {
		fmt.Println("ERROR running pipeline:", err)
		os.Exit(1)
	}

	fmt.Println("\nRecovered offsets at the shock instant (seconds from reference):")
	for _, name := range order[1:] {
		offsets, ok := results.Offsets[name]
		if !ok {
			fmt.Printf("  %-9s not aligned\n", name)
			continue
		}
		sample, ok := offsets.At(shockAtRef)
		if !ok {
			fmt.Printf("  %-9s no offset at shock instant\n", name)
			continue
		}
		fmt.Printf("  %-9s recovered=%+.1f true=%+.1f\n",
			name, sample.Offset.Seconds(), loader.delaySeconds(name))
	}

	fmt.Printf("\nTriangulated events: %d\n", len(results.Events))
	for _, ev := range results.Events {
		n := ev.Plane.Normal
		fmt.Printf("  at=%v normal=(%+.3f,%+.3f,%+.3f) speed=%.1f km/s angle=%.1f° reused=%v\n",
			ev.At, n.X, n.Y, n.Z, ev.Plane.Speed, ev.AngleDeg, ev.Reused)
		for _, p := range ev.Predictions {
			fmt.Printf("    %-9s predicted arrival %v (offset %+.1f s", p.Craft, p.Arrival, p.OffsetSec)
			if p.HasObserved {
				fmt.Printf(", observed %+.1f s, error %+.1f s", p.ActualSec, p.ErrorSec)
			}
			fmt.Println(")")
		}
		if p, ok := results.ShockProb[ev.At]; ok {
			fmt.Printf("    shock probability %.3f\n", p)
		}
	}
}

// syntheticLoader generates shock profiles deterministically, so the fine
// pass can re-window at any shifted interval.
type syntheticLoader struct {
	shockAtRef time.Time
}

// delaySeconds is the true plane-crossing delay of a craft relative to the
// reference, from the plane equation.
func (l *syntheticLoader) delaySeconds(craft string) float64 {
	rel := craftPositions[craft].Sub(craftPositions["Wind"])
	return rel.Dot(trueNormal) / trueSpeed
}

func (l *syntheticLoader) Reload(ctx context.Context, craft string, start, end time.Time) (*series.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pos, ok := craftPositions[craft]
	if !ok {
		return nil, fmt.Errorf("shockdiag: unknown synthetic craft %q", craft)
	}
	shockAt := l.shockAtRef.Add(time.Duration(l.delaySeconds(craft) * float64(time.Second)))

	const cadence = 20 * time.Second
	n := int(end.Sub(start)/cadence) + 1
	times := make([]time.Time, n)
	values := map[series.Channel][]float64{
		series.Speed: make([]float64, n),
		series.Np:    make([]float64, n),
		series.Vth:   make([]float64, n),
		series.Bx:    make([]float64, n),
		series.By:    make([]float64, n),
		series.Bz:    make([]float64, n),
	}
	positions := make([]geometry.Vec3, n)

	// Seed per craft so repeated reloads of overlapping windows agree.
	rng := rand.New(rand.NewSource(int64(len(craft)) * 7919))
	noise := func(scale float64) float64 { return (rng.Float64() - 0.5) * scale }

	for i := 0; i < n; i++ {
		t := start.Add(time.Duration(i) * cadence)
		times[i] = t
		// Smooth step through the shock, width ~2 minutes.
		x := t.Sub(shockAt).Seconds() / 120.0
		step := 1.0 / (1.0 + math.Exp(-x))

		values[series.Speed][i] = 380 + 220*step + noise(4)
		values[series.Np][i] = 5 + 9*step + noise(0.3)
		values[series.Vth][i] = 30 + 25*step + noise(1)
		values[series.Bx][i] = -2 + noise(0.2)
		values[series.By][i] = 3 - 4*step + noise(0.2)
		values[series.Bz][i] = 1 + 8*step + noise(0.2)
		positions[i] = pos
	}
	// SOHO CELIAS has no magnetometer; the pipeline must fall back to speed.
	if craft == "SOHO" {
		for _, ch := range []series.Channel{series.Bx, series.By, series.Bz} {
			for i := range values[ch] {
				values[ch][i] = math.NaN()
			}
		}
	}

	rec := series.New(craft, times, values, positions)
	rec.DeriveBt()
	return rec, nil
}

func (l *syntheticLoader) LoadAll(ctx context.Context, craft []string, start, end time.Time, earthCraft []string, earthPad time.Duration) (map[string]*series.Record, error) {
	out := make(map[string]*series.Record, len(craft)+len(earthCraft))
	for _, name := range craft {
		rec, err := l.Reload(ctx, name, start, end)
		if err != nil {
			return nil, err
		}
		out[name] = rec
	}
	for _, name := range earthCraft {
		rec, err := l.Reload(ctx, name, start.Add(earthPad), end.Add(earthPad))
		if err != nil {
			return nil, err
		}
		out[name] = rec
	}
	return out, nil
}
