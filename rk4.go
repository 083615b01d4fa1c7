package traj

// rk4Step performs a single classical Runge-Kutta 4 step of size dt on the
// provided state. The derivative function must not mutate its input.
func rk4Step(t, dt float64, y []float64, f func(t float64, y []float64) []float64) []float64 {
	k1 := f(t, y)
	k2 := f(t+dt/2, vecSum(y, dt/2, k1))
	k3 := f(t+dt/2, vecSum(y, dt/2, k2))
	k4 := f(t+dt, vecSum(y, dt, k3))
	out := make([]float64, len(y))
	for i := range y {
		out[i] = y[i] + dt/6*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
	}
	return out
}
