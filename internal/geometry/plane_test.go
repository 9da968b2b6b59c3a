package geometry

import (
	"errors"
	"math"
	"testing"
)

// TestSolvePlaneKnownFront recovers a front propagating along -X from three
// spacecraft offset in position and arrival time.
func TestSolvePlaneKnownFront(t *testing.T) {
	// Front moving earthward at 100 km/s: a craft 1000 km sunward of the
	// reference is crossed 10 s earlier.
	positions := [3]Vec3{
		{X: -1000, Y: 0, Z: 0},
		{X: -1500, Y: 2000, Z: 0},
		{X: -500, Y: 0, Z: 3000},
	}
	offsets := [3]float64{10, 15, 5}

	normal, speed, err := SolvePlane(positions, offsets)
	if err != nil {
		t.Fatalf("SolvePlane failed: %v", err)
	}

	if math.Abs(normal.Norm()-1) > 1e-9 {
		t.Errorf("normal magnitude = %v, want 1", normal.Norm())
	}
	if math.Abs(normal.X-(-1)) > 1e-9 || math.Abs(normal.Y) > 1e-9 || math.Abs(normal.Z) > 1e-9 {
		t.Errorf("normal = %+v, want (-1, 0, 0)", normal)
	}
	if math.Abs(speed-100) > 1e-6 {
		t.Errorf("speed = %v km/s, want 100", speed)
	}
}

// TestSolvePlaneObliqueFront verifies a tilted normal round-trips through
// synthetic offsets.
func TestSolvePlaneObliqueFront(t *testing.T) {
	wantNormal := Vec3{X: -0.9, Y: 0.3, Z: -0.1}
	wantNormal = wantNormal.Scale(1 / wantNormal.Norm())
	wantSpeed := 550.0

	positions := [3]Vec3{
		{X: -60000, Y: 120000, Z: 30000},
		{X: -80000, Y: -240000, Z: 10000},
		{X: -40000, Y: 50000, Z: -80000},
	}
	var offsets [3]float64
	for i, p := range positions {
		offsets[i] = p.Dot(wantNormal) / wantSpeed
	}

	normal, speed, err := SolvePlane(positions, offsets)
	if err != nil {
		t.Fatalf("SolvePlane failed: %v", err)
	}
	if math.Abs(normal.X-wantNormal.X) > 1e-9 ||
		math.Abs(normal.Y-wantNormal.Y) > 1e-9 ||
		math.Abs(normal.Z-wantNormal.Z) > 1e-9 {
		t.Errorf("normal = %+v, want %+v", normal, wantNormal)
	}
	if math.Abs(speed-wantSpeed) > 1e-6 {
		t.Errorf("speed = %v, want %v", speed, wantSpeed)
	}
}

// TestSolvePlaneDegenerate verifies singular geometries are rejected.
func TestSolvePlaneDegenerate(t *testing.T) {
	tests := []struct {
		name      string
		positions [3]Vec3
	}{
		{
			"collinear craft",
			[3]Vec3{{X: 1000}, {X: 2000}, {X: 3000}},
		},
		{
			"coplanar through origin",
			[3]Vec3{{X: 1000, Y: 0}, {X: 0, Y: 1000}, {X: 500, Y: 500}},
		},
		{
			"all at reference",
			[3]Vec3{{}, {}, {}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := SolvePlane(tt.positions, [3]float64{1, 2, 3})
			if !errors.Is(err, ErrSingularGeometry) {
				t.Errorf("SolvePlane error = %v, want ErrSingularGeometry", err)
			}
		})
	}
}

// TestAngleFromSunward checks the angle against hand-computed directions.
func TestAngleFromSunward(t *testing.T) {
	tests := []struct {
		name   string
		normal Vec3
		want   float64
	}{
		{"earthward", Vec3{X: -1}, 0},
		{"sunward", Vec3{X: 1}, 180},
		{"perpendicular", Vec3{Y: 1}, 90},
		{"45 degrees", Vec3{X: -math.Sqrt2 / 2, Y: math.Sqrt2 / 2}, 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AngleFromSunward(tt.normal)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("AngleFromSunward(%+v) = %v, want %v", tt.normal, got, tt.want)
			}
		})
	}
}

// TestSignedDistance verifies sign and magnitude on both sides of a plane.
func TestSignedDistance(t *testing.T) {
	p := Plane{Normal: Vec3{X: -1}, Anchor: Vec3{X: 1.5e6}}

	if got := p.SignedDistance(Vec3{X: 1.5e6 - 1000}); math.Abs(got-1000) > 1e-6 {
		t.Errorf("earthward point distance = %v, want 1000", got)
	}
	if got := p.SignedDistance(Vec3{X: 1.5e6 + 1000}); math.Abs(got+1000) > 1e-6 {
		t.Errorf("sunward point distance = %v, want -1000", got)
	}
	if got := p.SignedDistance(p.Anchor); got != 0 {
		t.Errorf("anchor distance = %v, want 0", got)
	}
}

// TestCoefficients verifies the implicit form vanishes on the plane.
func TestCoefficients(t *testing.T) {
	anchor := Vec3{X: 100, Y: -50, Z: 25}
	normal := Vec3{X: 0, Y: 0, Z: 1}
	a, b, c, d := Coefficients(anchor, normal)

	onPlane := Vec3{X: 999, Y: 123, Z: 25}
	if got := a*onPlane.X + b*onPlane.Y + c*onPlane.Z + d; math.Abs(got) > 1e-9 {
		t.Errorf("plane equation at on-plane point = %v, want 0", got)
	}
}
