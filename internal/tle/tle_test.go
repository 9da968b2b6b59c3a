package tle

import (
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/helioswarm/shockfront/internal/geometry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// Real ISS orbital elements, used as a stand-in for a near-Earth craft.
const (
	issName  = "ISS (ZARYA)"
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

func writeTLE(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

// TestParseFile verifies 3-line set parsing with malformed entries skipped.
func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	content := issName + "\n" + issLine1 + "\n" + issLine2 + "\n" +
		"BROKEN SAT\nnot a tle line\nalso not a tle line\n"
	writeTLE(t, dir, "test.tle", content)

	entries, err := ParseFile(filepath.Join(dir, "test.tle"), testLogger())
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1 (malformed skipped)", len(entries))
	}
	if entries[0].Name != issName {
		t.Errorf("name = %q, want %q", entries[0].Name, issName)
	}
}

// TestValidateLines verifies the pre-checks that keep go-satellite away
// from garbage input.
func TestValidateLines(t *testing.T) {
	tests := []struct {
		name    string
		line1   string
		line2   string
		wantErr bool
	}{
		{"valid", issLine1, issLine2, false},
		{"short line1", issLine1[:50], issLine2, true},
		{"swapped prefixes", issLine2, issLine1, true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateLines(tt.line1, tt.line2)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateLines error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestPositions verifies propagated GSE positions have near-Earth orbital
// magnitude and are finite.
func TestPositions(t *testing.T) {
	dir := t.TempDir()
	writeTLE(t, dir, "iss.tle", issName+"\n"+issLine1+"\n"+issLine2+"\n")

	src := &Source{Dir: dir, Logger: testLogger()}
	times := []time.Time{
		time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 10, 12, 30, 0, 0, time.UTC),
	}
	pos, err := src.Positions("iss.tle", times)
	if err != nil {
		t.Fatalf("Positions failed: %v", err)
	}
	if len(pos) != 2 {
		t.Fatalf("got %d positions, want 2", len(pos))
	}
	for i, p := range pos {
		if !p.IsFinite() {
			t.Fatalf("position %d not finite: %+v", i, p)
		}
		// ISS altitude ~420 km above a 6371 km Earth.
		mag := p.Norm()
		if mag < 6500 || mag > 7100 {
			t.Errorf("position %d magnitude = %.1f km, want ~6791", i, mag)
		}
	}
	// Half an orbit apart, the two positions must differ substantially.
	if pos[0].Sub(pos[1]).Norm() < 1000 {
		t.Errorf("positions %v apart, expected large separation", pos[0].Sub(pos[1]).Norm())
	}
}

// TestPositionsMissingFile verifies the error path.
func TestPositionsMissingFile(t *testing.T) {
	src := &Source{Dir: t.TempDir(), Logger: testLogger()}
	if _, err := src.Positions("absent.tle", nil); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

// TestGEIToGSERotationPreservesNorm verifies the frame change is a pure
// rotation.
func TestGEIToGSERotationPreservesNorm(t *testing.T) {
	v := geometry.Vec3{X: 5000, Y: -3000, Z: 1500}
	for _, ts := range []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC),
	} {
		got := geiToGSE(v, ts)
		if math.Abs(got.Norm()-v.Norm()) > 1e-6 {
			t.Errorf("rotation at %v changed norm: %v -> %v", ts, v.Norm(), got.Norm())
		}
	}
}

// TestGEIToGSESolarDirection verifies that a GEI vector pointing at the Sun
// maps close to the +X GSE axis. The solar longitude model is
// low-precision, so the tolerance is loose.
func TestGEIToGSESolarDirection(t *testing.T) {
	// Around the March equinox the Sun sits near the GEI +X axis.
	ts := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	got := geiToGSE(geometry.Vec3{X: 1}, ts)
	if got.X < 0.98 {
		t.Errorf("equinox solar direction maps to X=%v, want close to 1", got.X)
	}
}
