package traj

import (
	"errors"
	"math"
)

// TargetingMode selects which terminal constraints a solve enforces.
type TargetingMode uint8

const (
	// OrbitInsertion matches target orbital elements.
	OrbitInsertion TargetingMode = iota + 1
	// PositionIntercept matches the target position at the time of flight.
	PositionIntercept
	// FullRendezvous matches the target position and velocity.
	FullRendezvous
)

func (m TargetingMode) String() string {
	switch m {
	case OrbitInsertion:
		return "orbit insertion"
	case PositionIntercept:
		return "position intercept"
	case FullRendezvous:
		return "full rendezvous"
	default:
		panic("unknown targeting mode")
	}
}

// TerminalTarget specifies the terminal constraint set for a launch solve.
type TerminalTarget struct {
	Mode TargetingMode

	// Orbit insertion: desired elements and which ones to constrain.
	Elements      *Orbit
	ConstrainSMA  bool
	ConstrainEcc  bool
	ConstrainInc  bool
	ConstrainRAAN bool
	ConstrainArgP bool

	// Intercept and rendezvous: target state at launch epoch.
	TargetR, TargetV []float64
	TOF              float64 // s, launch to intercept

	PositionTol float64 // m
	VelocityTol float64 // m/s
}

// NewOrbitInsertionTarget constrains semi major axis, eccentricity and
// inclination of the provided orbit.
func NewOrbitInsertionTarget(o *Orbit) TerminalTarget {
	return TerminalTarget{Mode: OrbitInsertion, Elements: o,
		ConstrainSMA: true, ConstrainEcc: true, ConstrainInc: true,
		TOF: 3600, PositionTol: 1000, VelocityTol: 1}
}

// NewInterceptTarget aims for the position of the given state after tof seconds.
func NewInterceptTarget(R, V []float64, tof float64) TerminalTarget {
	return TerminalTarget{Mode: PositionIntercept, TargetR: R, TargetV: V,
		TOF: tof, PositionTol: 1000, VelocityTol: 1}
}

// NewRendezvousTarget aims for the position and velocity of the given state
// after tof seconds.
func NewRendezvousTarget(R, V []float64, tof float64) TerminalTarget {
	t := NewInterceptTarget(R, V, tof)
	t.Mode = FullRendezvous
	return t
}

// NumConstraints returns the number of residual components for this target.
func (t TerminalTarget) NumConstraints() int {
	switch t.Mode {
	case OrbitInsertion:
		n := 0
		if t.ConstrainSMA {
			n++
		}
		if t.ConstrainEcc {
			n++
		}
		if t.ConstrainInc {
			n++
		}
		if t.ConstrainRAAN {
			n++
		}
		if t.ConstrainArgP {
			n++
		}
		return n
	case PositionIntercept:
		return 3
	case FullRendezvous:
		return 6
	default:
		panic("unknown targeting mode")
	}
}

// Validate fails fast on malformed targets, before any propagation happens.
func (t TerminalTarget) Validate() error {
	switch t.Mode {
	case OrbitInsertion:
		if t.Elements == nil {
			return errors.New("orbit insertion requires target elements")
		}
		if t.NumConstraints() == 0 {
			return errors.New("orbit insertion requires at least one constrained element")
		}
	case PositionIntercept, FullRendezvous:
		if len(t.TargetR) != 3 || len(t.TargetV) != 3 {
			return errors.New("intercept requires a full target state")
		}
		if t.TOF <= 0 {
			return errors.New("time of flight must be strictly positive")
		}
	default:
		return errors.New("targeting mode not set")
	}
	return nil
}

// timeScale returns the scale applied to velocity residuals so they are
// commensurate with position residuals in meters.
func (t TerminalTarget) timeScale() float64 {
	a := Earth.Radius + 400e3
	if t.Elements != nil {
		if ta, _, _, _, _, _, _, _, _ := t.Elements.Elements(); ta > 1e6 {
			a = ta
		}
	}
	return math.Sqrt(a * a * a / Earth.μ)
}

// Residuals evaluates the scaled constraint residuals of a terminal state
// against this target. For the intercept modes, targetR/targetV is the
// target state already propagated to the time of flight.
func (t TerminalTarget) Residuals(R, V, targetR, targetV []float64) []float64 {
	r := make([]float64, 0, 6)
	switch t.Mode {
	case OrbitInsertion:
		final := NewOrbitFromRV(R, V, Earth)
		a, e, i, Ω, ω, _, _, _, _ := final.Elements()
		aT, eT, iT, ΩT, ωT, _, _, _, _ := t.Elements.Elements()
		if t.ConstrainSMA {
			// Difference in km
			r = append(r, (a-aT)/1000)
		}
		if t.ConstrainEcc {
			// Scaled by 1e4 for conditioning comparable to SMA in km
			r = append(r, (e-eT)*1e4)
		}
		if t.ConstrainInc {
			r = append(r, (i-iT)*1e4)
		}
		if t.ConstrainRAAN {
			r = append(r, (Ω-ΩT)*1e4)
		}
		if t.ConstrainArgP {
			r = append(r, (ω-ωT)*1e4)
		}
	case PositionIntercept:
		for i := 0; i < 3; i++ {
			r = append(r, R[i]-targetR[i])
		}
	case FullRendezvous:
		for i := 0; i < 3; i++ {
			r = append(r, R[i]-targetR[i])
		}
		Tscale := t.timeScale()
		for i := 0; i < 3; i++ {
			r = append(r, (V[i]-targetV[i])*Tscale)
		}
	default:
		panic("unknown targeting mode")
	}
	return r
}
