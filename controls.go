package traj

import "math"

// NumControls is the size of the flattened launch control vector.
const NumControls = 13

// LaunchControls parameterizes a complete ascent trajectory: launch azimuth,
// per-stage pitch polynomials θ(τ) = p0 + p1 τ + p2 τ² (pitch measured from
// vertical, τ normalized within the burn segment), per-stage linear yaw
// polynomials, coast time after burnout and a launch epoch offset.
type LaunchControls struct {
	Azimuth     float64    // rad, clockwise from north
	PitchS1     [3]float64 // stage 1 pitch polynomial
	PitchS2     [3]float64 // stage 2 pitch polynomial
	YawS1       [2]float64 // stage 1 yaw polynomial
	YawS2       [2]float64
	Coast       float64 // s, after final burnout
	EpochOffset float64 // s, from nominal launch epoch
}

// ToArray flattens the controls into a fixed-order vector.
func (c LaunchControls) ToArray() [NumControls]float64 {
	return [NumControls]float64{
		c.Azimuth,
		c.PitchS1[0], c.PitchS1[1], c.PitchS1[2],
		c.PitchS2[0], c.PitchS2[1], c.PitchS2[2],
		c.YawS1[0], c.YawS1[1],
		c.YawS2[0], c.YawS2[1],
		c.Coast,
		c.EpochOffset,
	}
}

// FromArray is the inverse of ToArray.
func (c *LaunchControls) FromArray(x [NumControls]float64) {
	c.Azimuth = x[0]
	c.PitchS1 = [3]float64{x[1], x[2], x[3]}
	c.PitchS2 = [3]float64{x[4], x[5], x[6]}
	c.YawS1 = [2]float64{x[7], x[8]}
	c.YawS2 = [2]float64{x[9], x[10]}
	c.Coast = x[11]
	c.EpochOffset = x[12]
}

// FreeMask marks which control components the solver may adjust.
type FreeMask [NumControls]bool

// DefaultFreeMask frees everything except the launch epoch offset.
func DefaultFreeMask() FreeMask {
	var m FreeMask
	for i := range m {
		m[i] = true
	}
	m[12] = false
	return m
}

// Count returns the number of free components.
func (m FreeMask) Count() int {
	n := 0
	for _, free := range m {
		if free {
			n++
		}
	}
	return n
}

// Pack projects the free components of the controls into a dense vector.
func (m FreeMask) Pack(c LaunchControls) []float64 {
	all := c.ToArray()
	x := make([]float64, 0, NumControls)
	for i, free := range m {
		if free {
			x = append(x, all[i])
		}
	}
	return x
}

// Unpack scatters a dense free vector back into the controls, leaving the
// fixed components untouched. Pack and Unpack are exact inverses on the
// free subset.
func (m FreeMask) Unpack(c *LaunchControls, x []float64) {
	all := c.ToArray()
	idx := 0
	for i, free := range m {
		if free {
			all[i] = x[idx]
			idx++
		}
	}
	c.FromArray(all)
}

// DefaultGuess builds a standard gravity-turn guess for a target inclination
// and site latitude (both radians). The azimuth comes from the spherical
// launch triangle, preferring a northeasterly ascent for prograde orbits.
func DefaultGuess(targetInc, launchLat float64) LaunchControls {
	var c LaunchControls

	cosInc := math.Cos(targetInc)
	cosLat := math.Cos(launchLat)
	sinAz := 0.0
	if math.Abs(cosLat) > 1e-10 {
		sinAz = cosInc / cosLat
	}
	sinAz = clamp(sinAz, -1, 1)
	c.Azimuth = math.Asin(sinAz)
	if c.Azimuth < 0 {
		c.Azimuth += math.Pi
	}

	// Stage 1: steep climb through the atmosphere, reaching roughly 0.5 rad
	// from vertical at staging.
	c.PitchS1 = [3]float64{0.05, 0.20, 0.25}
	// Stage 2: lofted, slow turn first then an accelerating flattening to
	// horizontal.
	c.PitchS2 = [3]float64{0.50, 0.20, 0.87}

	return c
}
