package traj

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// LaunchSite is a geodetic launch location.
type LaunchSite struct {
	Name         string
	LatitudeDeg  float64
	LongitudeDeg float64
	AltitudeM    float64
}

// CapeCanaveral is the SLC-40 reference site.
func CapeCanaveral() LaunchSite {
	return LaunchSite{"Cape Canaveral", 28.5623, -80.5774, 0}
}

// Vandenberg is the west-coast polar-corridor site.
func Vandenberg() LaunchSite {
	return LaunchSite{"Vandenberg", 34.7420, -120.5724, 0}
}

// GMST returns the Greenwich mean sidereal time in radians for a Julian date,
// per the IAU 1982 model.
func GMST(jd float64) float64 {
	T := (jd - 2451545.0) / 36525.0
	gmstSeconds := 67310.54841 +
		(876600.0*3600.0+8640184.812866)*T +
		0.093104*T*T -
		6.2e-6*T*T*T
	return wrap2Pi(gmstSeconds * 2 * math.Pi / 86400.0)
}

// ECIState returns the inertial position and velocity of the site at the
// given Julian date. The position chain is geodetic (WGS84) to ECEF to ECI
// via the GMST rotation, the velocity is ω x r from Earth rotation.
func (s LaunchSite) ECIState(epochJD float64) (R, V []float64) {
	lat := s.LatitudeDeg * deg2rad
	lon := s.LongitudeDeg * deg2rad

	a := Earth.Radius
	f := 1.0 / 298.257223563
	e2 := 2*f - f*f
	sinLat, cosLat := math.Sincos(lat)
	N := a / math.Sqrt(1-e2*sinLat*sinLat)

	ecef := []float64{
		(N + s.AltitudeM) * cosLat * math.Cos(lon),
		(N + s.AltitudeM) * cosLat * math.Sin(lon),
		(N*(1-e2) + s.AltitudeM) * sinLat,
	}

	R = ECEF2ECI(ecef, GMST(epochJD))
	V = []float64{-EarthRotationRate * R[1], EarthRotationRate * R[0], 0}
	return
}

// ECIStateAt is ECIState for a wall-clock epoch.
func (s LaunchSite) ECIStateAt(epoch time.Time) (R, V []float64) {
	return s.ECIState(julian.TimeToJD(epoch))
}
