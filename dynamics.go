package traj

import (
	"math"

	"github.com/gonum/matrix/mat64"
)

// ForceModel computes the inertial acceleration acting on a point mass.
type ForceModel interface {
	Acceleration(R []float64) []float64
}

// TwoBodyJ2 is point-mass gravity with an optional J2 zonal term.
type TwoBodyJ2 struct {
	Body      CelestialObject
	IncludeJ2 bool
}

// Acceleration implements the ForceModel interface.
func (f TwoBodyJ2) Acceleration(R []float64) []float64 {
	r := norm(R)
	r3 := r * r * r
	μ := f.Body.μ
	acc := []float64{-μ * R[0] / r3, -μ * R[1] / r3, -μ * R[2] / r3}
	if f.IncludeJ2 {
		r2 := r * r
		r5 := r2 * r3
		Re2 := f.Body.Radius * f.Body.Radius
		z2 := R[2] * R[2]
		factor := 1.5 * f.Body.J2 * μ * Re2 / r5
		acc[0] += factor * R[0] * (5*z2/r2 - 1)
		acc[1] += factor * R[1] * (5*z2/r2 - 1)
		acc[2] += factor * R[2] * (5*z2/r2 - 3)
	}
	return acc
}

// GravityGradient returns the 3x3 two-body gravity gradient at R:
// G_ij = -μ/r³ (δ_ij - 3 r_i r_j / r²). The J2 contribution is omitted.
func (f TwoBodyJ2) GravityGradient(R []float64) *mat64.Dense {
	r := norm(R)
	r2 := r * r
	r3 := r2 * r
	μ := f.Body.μ
	G := mat64.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			δ := 0.0
			if i == j {
				δ = 1.0
			}
			G.Set(i, j, -μ/r3*(δ-3*R[i]*R[j]/r2))
		}
	}
	return G
}

// PropagateState advances a ballistic [R V] state by tof seconds using fixed
// RK4 steps of the provided size, shortening the last step to land exactly on
// the time of flight.
func PropagateState(R, V []float64, tof, step float64, force ForceModel) ([]float64, []float64) {
	y := []float64{R[0], R[1], R[2], V[0], V[1], V[2]}
	deriv := func(t float64, s []float64) []float64 {
		acc := force.Acceleration(s[:3])
		return []float64{s[3], s[4], s[5], acc[0], acc[1], acc[2]}
	}
	t := 0.0
	for t < tof {
		h := math.Min(step, tof-t)
		if h < 1e-6 {
			break
		}
		y = rk4Step(t, h, y, deriv)
		t += h
	}
	return []float64{y[0], y[1], y[2]}, []float64{y[3], y[4], y[5]}
}
