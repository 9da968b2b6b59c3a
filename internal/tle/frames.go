package tle

import (
	"math"
	"time"

	"github.com/helioswarm/shockfront/internal/geometry"
)

// j2000 is the Julian Date of the J2000.0 epoch.
const j2000 = 2451545.0

// obliquity of the ecliptic, radians (J2000 mean value).
const obliquity = 23.439291 * math.Pi / 180

// julianDate converts a UTC time to Julian Date using the standard
// astronomical algorithm.
func julianDate(t time.Time) float64 {
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())
	h := float64(t.Hour())
	min := float64(t.Minute())
	s := float64(t.Second()) + float64(t.Nanosecond())/1e9

	if m <= 2 {
		y -= 1
		m += 12
	}
	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)

	jd := math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + b - 1524.5
	jd += (h + min/60.0 + s/3600.0) / 24.0
	return jd
}

// solarLongitude returns the Sun's apparent ecliptic longitude in radians
// (low-precision formula, good to ~0.01 degrees over decades).
func solarLongitude(t time.Time) float64 {
	n := julianDate(t) - j2000
	g := math.Mod(357.528+0.9856003*n, 360) * math.Pi / 180 // mean anomaly
	l := math.Mod(280.460+0.9856474*n, 360) * math.Pi / 180 // mean longitude
	return l + (1.915*math.Sin(g)+0.020*math.Sin(2*g))*math.Pi/180
}

// geiToGSE rotates a geocentric equatorial inertial position into GSE:
// first about X by the obliquity (equatorial -> ecliptic), then about Z by
// the Sun's longitude so +X points at the Sun (Hapgood 1992, T2).
func geiToGSE(p geometry.Vec3, t time.Time) geometry.Vec3 {
	sinE, cosE := math.Sin(obliquity), math.Cos(obliquity)
	ecl := geometry.Vec3{
		X: p.X,
		Y: p.Y*cosE + p.Z*sinE,
		Z: -p.Y*sinE + p.Z*cosE,
	}

	lam := solarLongitude(t)
	sinL, cosL := math.Sin(lam), math.Cos(lam)
	return geometry.Vec3{
		X: ecl.X*cosL + ecl.Y*sinL,
		Y: -ecl.X*sinL + ecl.Y*cosL,
		Z: ecl.Z,
	}
}
