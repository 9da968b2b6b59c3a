package geometry

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Sunward is the expected shock propagation axis in GSE: shocks travel from
// the Sun toward Earth, i.e. along -X.
var Sunward = Vec3{X: -1, Y: 0, Z: 0}

// ErrSingularGeometry indicates the three spacecraft position-difference
// vectors are coplanar or nearly so, and no plane velocity can be solved.
var ErrSingularGeometry = errors.New("geometry: spacecraft positions are degenerate")

// pivotEps is the smallest pivot magnitude, relative to the largest matrix
// entry, accepted during elimination before the system is declared singular.
const pivotEps = 1e-12

// Plane describes a planar shock front at the moment it crosses the
// reference spacecraft.
type Plane struct {
	Normal Vec3      // unit propagation normal
	Speed  float64   // km/s, strictly positive
	Anchor Vec3      // reference spacecraft GSE position, km
	At     time.Time // reference arrival time
}

// SolvePlane determines the shock-front normal and speed from three
// spacecraft positions relative to the reference craft (km) and their
// arrival-time offsets relative to the reference craft (seconds).
//
// Each row of the linear system P v = t is one position difference; the
// solution v points along the front normal with |v| = 1/speed.
func SolvePlane(positions [3]Vec3, offsets [3]float64) (Vec3, float64, error) {
	p := [3][3]float64{
		{positions[0].X, positions[0].Y, positions[0].Z},
		{positions[1].X, positions[1].Y, positions[1].Z},
		{positions[2].X, positions[2].Y, positions[2].Z},
	}
	v, err := solve3(p, offsets)
	if err != nil {
		return Vec3{}, 0, err
	}

	mag := v.Norm()
	if mag == 0 || math.IsNaN(mag) || math.IsInf(mag, 0) {
		return Vec3{}, 0, fmt.Errorf("solving plane velocity: %w", ErrSingularGeometry)
	}

	normal := v.Scale(1 / mag)
	speed := 1 / mag
	return normal, speed, nil
}

// solve3 solves a 3x3 linear system by Gaussian elimination with partial
// pivoting. Returns ErrSingularGeometry when a pivot collapses below the
// conditioning threshold.
func solve3(a [3][3]float64, b [3]float64) (Vec3, error) {
	// Scale threshold by the largest absolute entry so km-scale and
	// normalized inputs are treated alike.
	var amax float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if abs := math.Abs(a[i][j]); abs > amax {
				amax = abs
			}
		}
	}
	if amax == 0 {
		return Vec3{}, fmt.Errorf("zero position matrix: %w", ErrSingularGeometry)
	}

	for col := 0; col < 3; col++ {
		// Partial pivot: swap in the row with the largest entry in this column.
		pivot := col
		for row := col + 1; row < 3; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if pivot != col {
			a[col], a[pivot] = a[pivot], a[col]
			b[col], b[pivot] = b[pivot], b[col]
		}
		if math.Abs(a[col][col]) < pivotEps*amax {
			return Vec3{}, fmt.Errorf("pivot %d below conditioning threshold: %w", col, ErrSingularGeometry)
		}
		for row := col + 1; row < 3; row++ {
			f := a[row][col] / a[col][col]
			for k := col; k < 3; k++ {
				a[row][k] -= f * a[col][k]
			}
			b[row] -= f * b[col]
		}
	}

	// Back substitution.
	var x [3]float64
	for row := 2; row >= 0; row-- {
		sum := b[row]
		for k := row + 1; k < 3; k++ {
			sum -= a[row][k] * x[k]
		}
		x[row] = sum / a[row][row]
	}

	return Vec3{X: x[0], Y: x[1], Z: x[2]}, nil
}

// AngleFromSunward returns the angle in degrees between a unit normal and
// the sunward propagation axis (-X GSE).
func AngleFromSunward(normal Vec3) float64 {
	cos := normal.Dot(Sunward)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos) * 180 / math.Pi
}

// Coefficients returns the implicit plane equation a*x+b*y+c*z+d = 0 for the
// plane through anchor with the given unit normal.
func Coefficients(anchor, normal Vec3) (a, b, c, d float64) {
	return normal.X, normal.Y, normal.Z, -normal.Dot(anchor)
}

// SignedDistance returns the perpendicular distance from point to the plane,
// positive on the side the normal points toward.
func (p Plane) SignedDistance(point Vec3) float64 {
	return p.Normal.Dot(point.Sub(p.Anchor))
}
