package traj

import (
	"math"

	"github.com/gonum/matrix/mat64"
)

// extendedState flattens [R V Φ] into a 42-element integration state,
// with Φ stored row-major after the six Cartesian components.
type extendedState struct {
	R, V []float64
	Φ    *mat64.Dense
}

func newExtendedState(R, V []float64) extendedState {
	return extendedState{
		R: []float64{R[0], R[1], R[2]},
		V: []float64{V[0], V[1], V[2]},
		Φ: denseIdentity(6),
	}
}

func (e extendedState) flatten() []float64 {
	s := make([]float64, 42)
	copy(s[:3], e.R)
	copy(s[3:6], e.V)
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			s[6+i*6+j] = e.Φ.At(i, j)
		}
	}
	return s
}

func (e *extendedState) unflatten(s []float64) {
	e.R = []float64{s[0], s[1], s[2]}
	e.V = []float64{s[3], s[4], s[5]}
	e.Φ = mat64.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			e.Φ.Set(i, j, s[6+i*6+j])
		}
	}
}

// PropagateWithSTM propagates a state and its 6x6 state transition matrix
// over tof seconds. The STM evolves as Φ' = AΦ with A built from the
// zero/identity blocks and the gravity gradient of the force model:
//
//	A = | 0 I |
//	    | G 0 |
//
// The returned Φ maps initial-state deviations to final-state deviations.
func PropagateWithSTM(R, V []float64, tof, step float64, force TwoBodyJ2) ([]float64, []float64, *mat64.Dense) {
	es := newExtendedState(R, V)
	y := es.flatten()

	deriv := func(t float64, s []float64) []float64 {
		d := make([]float64, 42)
		// State derivative
		acc := force.Acceleration(s[:3])
		d[0], d[1], d[2] = s[3], s[4], s[5]
		d[3], d[4], d[5] = acc[0], acc[1], acc[2]
		// Φ' = AΦ computed blockwise: the upper rows of AΦ are the lower
		// rows of Φ, the lower rows are G times the upper rows.
		G := force.GravityGradient(s[:3])
		for i := 0; i < 3; i++ {
			for j := 0; j < 6; j++ {
				d[6+i*6+j] = s[6+(i+3)*6+j]
			}
		}
		for i := 0; i < 3; i++ {
			for j := 0; j < 6; j++ {
				sum := 0.0
				for k := 0; k < 3; k++ {
					sum += G.At(i, k) * s[6+k*6+j]
				}
				d[6+(i+3)*6+j] = sum
			}
		}
		return d
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
	es.unflatten(y)
	return es.R, es.V, es.Φ
}
