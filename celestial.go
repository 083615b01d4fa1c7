package traj

// All units SI: meters, seconds, kilograms, radians.

// CelestialObject defines a celestial object as an orbit origin.
type CelestialObject struct {
	Name   string
	Radius float64 // Equatorial radius [m]
	μ      float64 // Gravitational parameter [m³/s²]
	J2     float64
	J3     float64
}

// GM returns μ (which is unexported because it's a lowercase letter).
func (c CelestialObject) GM() float64 {
	return c.μ
}

// J returns the perturbing J_n factor for the provided n.
// Currently only J2 and J3 are supported.
func (c CelestialObject) J(n uint8) float64 {
	switch n {
	case 2:
		return c.J2
	case 3:
		return c.J3
	default:
		return 0.0
	}
}

// String implements the Stringer interface.
func (c CelestialObject) String() string {
	return c.Name + " body"
}

// Equals returns whether the provided celestial object is the same.
func (c CelestialObject) Equals(b CelestialObject) bool {
	return c.Name == b.Name && c.Radius == b.Radius && c.μ == b.μ && c.J2 == b.J2
}

// Earth is home.
var Earth = CelestialObject{"Earth", 6378137.0, 3.986004418e14, 1.08262668e-3, -2.5327e-6}

// Moon is Earth's only natural satellite.
var Moon = CelestialObject{"Moon", 1737400.0, 4.9028e12, 2.027e-4, 0}
