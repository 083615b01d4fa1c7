package traj

import (
	"errors"
	"fmt"
	"math"
	"os"

	kitlog "github.com/go-kit/kit/log"
	"github.com/gonum/matrix/mat64"
)

const gravityTurnStartAlt = 1000.0 // m

// LaunchConfig tunes the ascent solver.
type LaunchConfig struct {
	MaxIterations  int
	FDStepSize     float64 // relative finite-difference step
	ConvergenceTol float64 // on the scaled residual norm
	AtmoStepSize   float64 // s, below 100 km
	VacuumStepSize float64 // s
	FreeControls   FreeMask
	Verbose        bool
}

// DefaultLaunchConfig returns the baseline ascent solver settings.
func DefaultLaunchConfig() LaunchConfig {
	return LaunchConfig{
		MaxIterations:  30,
		FDStepSize:     5e-4,
		ConvergenceTol: 100.0,
		AtmoStepSize:   0.5,
		VacuumStepSize: 5.0,
		FreeControls:   DefaultFreeMask(),
	}
}

// LaunchState is the extended ascent propagation state.
type LaunchState struct {
	R, V            []float64 // ECI [m], [m/s]
	Mass            float64   // kg
	Time            float64   // s from launch
	StageIndex      int
	EnginesOn       bool
	Altitude        float64 // m above the equatorial radius
	DynamicPressure float64 // Pa
	FuelRemaining   [4]float64
	Crashed         bool
}

// LaunchSolution is always returned by a solve, converged or not.
type LaunchSolution struct {
	Converged           bool
	Iterations          int
	ResidualNorm        float64
	Status              string
	Controls            LaunchControls
	FinalState          LaunchState
	Trajectory          []LaunchState
	FinalElements       *Orbit
	FinalPositionError  float64
	FinalVelocityError  float64
	StageSeparationTime float64
	BurnoutTime         float64
	TotalΔV             float64
}

// LaunchSolver computes ascent steering which delivers a vehicle from a
// rotating-Earth launch site to a target orbit or satellite, by
// Levenberg-Marquardt differential correction on a finite-difference
// Jacobian.
type LaunchSolver struct {
	vehicle Vehicle
	site    LaunchSite
	epochJD float64
	config  LaunchConfig
	force   TwoBodyJ2
	logger  kitlog.Logger
}

// NewLaunchSolver returns an ascent solver for the given vehicle and site.
func NewLaunchSolver(vehicle Vehicle, site LaunchSite, epochJD float64, config LaunchConfig) (*LaunchSolver, error) {
	if len(vehicle.Stages) == 0 {
		return nil, errors.New("vehicle must have at least one stage")
	}
	klog := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	klog = kitlog.With(klog, "subsys", "launch", "site", site.Name)
	return &LaunchSolver{vehicle, site, epochJD, config, TwoBodyJ2{Earth, true}, klog}, nil
}

func eciAltitude(R []float64) float64 {
	return norm(R) - Earth.Radius
}

// earthRelativeVelocity removes the ω x r atmosphere co-rotation term.
func earthRelativeVelocity(R, V []float64) []float64 {
	return []float64{
		V[0] + EarthRotationRate*R[1],
		V[1] - EarthRotationRate*R[0],
		V[2],
	}
}

// evaluateSteering returns the commanded pitch (from vertical) and yaw at
// the current state. Below the gravity turn start altitude the vehicle
// flies vertically.
func (s *LaunchSolver) evaluateSteering(state LaunchState, controls LaunchControls) (pitch, yaw float64) {
	if state.Altitude < gravityTurnStartAlt {
		return 0, 0
	}

	tS1Burn := s.vehicle.Stages[0].BurnDuration(30000.0)
	const tTurnStart = 10.0 // approximate time to reach 1 km

	switch {
	case state.StageIndex == 0 && state.EnginesOn:
		τ := clamp((state.Time-tTurnStart)/(tS1Burn-tTurnStart), 0, 1)
		pitch = controls.PitchS1[0] + controls.PitchS1[1]*τ + controls.PitchS1[2]*τ*τ
		yaw = controls.YawS1[0] + controls.YawS1[1]*τ
	case state.StageIndex >= 1 && state.EnginesOn:
		stageIdx := state.StageIndex
		if stageIdx > len(s.vehicle.Stages)-1 {
			stageIdx = len(s.vehicle.Stages) - 1
		}
		tS2Burn := s.vehicle.Stages[stageIdx].BurnDuration(150000.0)
		τ := clamp((state.Time-tS1Burn)/tS2Burn, 0, 1)
		pitch = controls.PitchS2[0] + controls.PitchS2[1]*τ + controls.PitchS2[2]*τ*τ
		yaw = controls.YawS2[0] + controls.YawS2[1]*τ
	default:
		// Coasting: hold the stage 2 end angles.
		pitch = controls.PitchS2[0] + controls.PitchS2[1] + controls.PitchS2[2]
		yaw = 0
	}

	pitch = clamp(pitch, 0, math.Pi/2)
	return
}

// thrustDirection builds the commanded thrust unit vector in the
// radial/downrange/cross-range basis. Above 500 m/s the downrange direction
// follows the horizontal velocity, otherwise the launch azimuth.
func (s *LaunchSolver) thrustDirection(state LaunchState, controls LaunchControls) []float64 {
	pitch, yaw := s.evaluateSteering(state, controls)

	rHat := unit(state.R)
	var dHat []float64

	azimuthFrame := func() []float64 {
		east := []float64{-state.R[1], state.R[0], 0}
		if eMag := norm(east); eMag < 1.0 {
			east = []float64{0, 1, 0}
		} else {
			east = unit(east)
		}
		north := cross(rHat, east)
		sinAz, cosAz := math.Sincos(controls.Azimuth)
		return vecSum(
			[]float64{sinAz * east[0], sinAz * east[1], sinAz * east[2]},
			cosAz, north)
	}

	if norm(state.V) > 500.0 && state.Altitude > gravityTurnStartAlt {
		vRadial := dot(state.V, rHat)
		vHoriz := vecSum(state.V, -vRadial, rHat)
		if norm(vHoriz) > 1.0 {
			dHat = unit(vHoriz)
		} else {
			dHat = azimuthFrame()
		}
	} else {
		dHat = azimuthFrame()
	}

	cHat := cross(rHat, dHat)

	sp, cp := math.Sincos(pitch)
	sy, cy := math.Sincos(yaw)
	tDir := make([]float64, 3)
	for i := 0; i < 3; i++ {
		tDir[i] = cp*rHat[i] + sp*(cy*dHat[i]+sy*cHat[i])
	}
	if tMag := norm(tDir); tMag > 1e-10 {
		for i := range tDir {
			tDir[i] /= tMag
		}
	}
	return tDir
}

// derivatives evaluates acceleration and mass rate: gravity with J2, thrust
// with altitude-dependent Isp while engines burn, drag on the Earth-relative
// velocity below 200 km.
func (s *LaunchSolver) derivatives(state LaunchState, controls LaunchControls) (acc []float64, massRate float64) {
	acc = s.force.Acceleration(state.R)

	if state.EnginesOn && state.StageIndex < len(s.vehicle.Stages) {
		stage := s.vehicle.Stages[state.StageIndex]
		alt := math.Max(state.Altitude, 0)
		mdot := stage.MassFlowRate(alt)
		tDir := s.thrustDirection(state, controls)
		aMag := stage.Thrust / state.Mass
		for i := 0; i < 3; i++ {
			acc[i] += aMag * tDir[i]
		}
		massRate = -mdot
	}

	if state.Altitude >= 0 && state.Altitude < 200000.0 {
		vRel := earthRelativeVelocity(state.R, state.V)
		ρ := DensityExtended(state.Altitude)
		if ρ > 1e-15 {
			vRelMag := norm(vRel)
			if vRelMag > 1.0 {
				dragFactor := 0.5 * ρ * vRelMag * s.vehicle.DragCoefficient * s.vehicle.ReferenceArea / state.Mass
				for i := 0; i < 3; i++ {
					acc[i] -= dragFactor * vRel[i]
				}
			}
		}
	}
	return
}

// rk4LaunchStep advances the ascent state by one RK4 step of size dt, with
// the position update built from the stage velocities.
func (s *LaunchSolver) rk4LaunchStep(state LaunchState, controls LaunchControls, dt float64) LaunchState {
	a1, mdot1 := s.derivatives(state, controls)

	s2 := state
	s2.R = vecSum(state.R, dt/2, state.V)
	s2.V = vecSum(state.V, dt/2, a1)
	s2.Mass = state.Mass + mdot1*dt/2
	s2.Time = state.Time + dt/2
	s2.Altitude = eciAltitude(s2.R)
	a2, mdot2 := s.derivatives(s2, controls)

	s3 := state
	s3.R = vecSum(state.R, dt/2, s2.V)
	s3.V = vecSum(state.V, dt/2, a2)
	s3.Mass = state.Mass + mdot2*dt/2
	s3.Time = state.Time + dt/2
	s3.Altitude = eciAltitude(s3.R)
	a3, mdot3 := s.derivatives(s3, controls)

	s4 := state
	s4.R = vecSum(state.R, dt, s3.V)
	s4.V = vecSum(state.V, dt, a3)
	s4.Mass = state.Mass + mdot3*dt
	s4.Time = state.Time + dt
	s4.Altitude = eciAltitude(s4.R)
	a4, mdot4 := s.derivatives(s4, controls)

	out := state
	out.R = make([]float64, 3)
	out.V = make([]float64, 3)
	for i := 0; i < 3; i++ {
		out.R[i] = state.R[i] + dt/6*(state.V[i]+2*s2.V[i]+2*s3.V[i]+s4.V[i])
		out.V[i] = state.V[i] + dt/6*(a1[i]+2*a2[i]+2*a3[i]+a4[i])
	}
	out.Mass = state.Mass + dt/6*(mdot1+2*mdot2+2*mdot3+mdot4)
	out.Time = state.Time + dt
	out.Altitude = eciAltitude(out.R)

	vRel := earthRelativeVelocity(out.R, out.V)
	ρ := 0.0
	if out.Altitude >= 0 && out.Altitude < 200000.0 {
		ρ = DensityExtended(out.Altitude)
	}
	out.DynamicPressure = 0.5 * ρ * dot(vRel, vRel)
	return out
}

// initialState builds the liftoff state from the launch site and epoch offset.
func (s *LaunchSolver) initialState(controls LaunchControls) LaunchState {
	epoch := s.epochJD + controls.EpochOffset/86400.0
	R, V := s.site.ECIState(epoch)
	state := LaunchState{
		R: R, V: V,
		Mass:      s.vehicle.TotalMass(),
		EnginesOn: true,
		Altitude:  eciAltitude(R),
	}
	for i := 0; i < len(s.vehicle.Stages) && i < 4; i++ {
		state.FuelRemaining[i] = s.vehicle.Stages[i].PropellantMass
	}
	return state
}

// propagateTrajectory integrates the full ascent under the given controls,
// splitting steps exactly on propellant depletion so staging happens at the
// event time. A non-nil trajectory buffer collects every accepted state.
func (s *LaunchSolver) propagateTrajectory(controls LaunchControls, trajectory *[]LaunchState) LaunchState {
	state := s.initialState(controls)

	tBurnTotal := 0.0
	for _, stage := range s.vehicle.Stages {
		tBurnTotal += stage.BurnDuration(80000.0)
	}
	tEnd := tBurnTotal + controls.Coast

	if trajectory != nil {
		*trajectory = (*trajectory)[:0]
		*trajectory = append(*trajectory, state)
	}

	t := 0.0
	for t < tEnd {
		dt := s.stepSizeFor(state.Altitude)
		if t+dt > tEnd {
			dt = tEnd - t
		}
		if dt < 1e-6 {
			break
		}

		// Split the step when the current stage depletes inside it.
		if state.EnginesOn && state.StageIndex < len(s.vehicle.Stages) {
			stage := s.vehicle.Stages[state.StageIndex]
			mdot := stage.MassFlowRate(math.Max(state.Altitude, 0))
			fuel := state.FuelRemaining[state.StageIndex]

			if mdot > 0 && fuel > 0 {
				tToBurnout := fuel / mdot
				if tToBurnout < dt {
					if tToBurnout > 1e-6 {
						state = s.rk4LaunchStep(state, controls, tToBurnout)
						t += tToBurnout
					}

					// Staging event
					state.FuelRemaining[state.StageIndex] = 0
					state.Mass -= s.vehicle.Stages[state.StageIndex].DryMass
					state.StageIndex++
					if state.StageIndex >= len(s.vehicle.Stages) {
						state.EnginesOn = false
					}
					if trajectory != nil {
						*trajectory = append(*trajectory, state)
					}

					if dtRemain := dt - tToBurnout; dtRemain > 1e-6 {
						newState := s.rk4LaunchStep(state, controls, dtRemain)
						if state.EnginesOn && state.StageIndex < len(s.vehicle.Stages) {
							fuelUsed := state.Mass - newState.Mass
							remaining := state.FuelRemaining[state.StageIndex] - fuelUsed
							newState.FuelRemaining[state.StageIndex] = math.Max(remaining, 0)
						}
						state = newState
						t += dtRemain
					}
					if trajectory != nil {
						*trajectory = append(*trajectory, state)
					}
					continue
				}
			}
		}

		newState := s.rk4LaunchStep(state, controls, dt)

		// Fuel bookkeeping from the integrated mass delta.
		if state.EnginesOn && state.StageIndex < len(s.vehicle.Stages) {
			fuelUsed := state.Mass - newState.Mass
			remaining := state.FuelRemaining[state.StageIndex] - fuelUsed
			newState.FuelRemaining[state.StageIndex] = math.Max(remaining, 0)
		}

		state = newState
		t += dt
		if trajectory != nil {
			*trajectory = append(*trajectory, state)
		}

		if state.Altitude < -100000.0 {
			state.Crashed = true
			break
		}
	}
	return state
}

// stepSizeFor returns the integration step for an altitude: the short
// atmospheric step below 100 km, the vacuum step above.
func (s *LaunchSolver) stepSizeFor(altitude float64) float64 {
	if altitude < 100000.0 {
		return s.config.AtmoStepSize
	}
	return s.config.VacuumStepSize
}

// targetFinalState propagates the target satellite (when the mode has one)
// to the time of flight.
func (s *LaunchSolver) targetFinalState(target TerminalTarget) (R, V []float64) {
	if target.Mode == OrbitInsertion {
		return nil, nil
	}
	return PropagateState(target.TargetR, target.TargetV, target.TOF, 60, s.force)
}

// fdFloors are the minimum finite-difference perturbations per control:
// angular controls in radians, time controls in seconds.
var fdFloors = [NumControls]float64{
	0.01, // azimuth
	0.01, 0.01, 0.01, // pitch s1
	0.01, 0.01, 0.01, // pitch s2
	0.01, 0.01, // yaw s1
	0.01, 0.01, // yaw s2
	10.0, // coast
	10.0, // epoch offset
}

// computeJacobian builds the finite-difference Jacobian, one full
// re-propagation per free control.
func (s *LaunchSolver) computeJacobian(controls LaunchControls, target TerminalTarget, rNominal []float64, tFinalR, tFinalV []float64) *mat64.Dense {
	nConstraints := len(rNominal)
	x0 := s.config.FreeControls.Pack(controls)
	nFree := len(x0)

	freeToFull := make([]int, 0, nFree)
	for i, free := range s.config.FreeControls {
		if free {
			freeToFull = append(freeToFull, i)
		}
	}

	J := mat64.NewDense(nConstraints, nFree, nil)
	for j := 0; j < nFree; j++ {
		floor := fdFloors[freeToFull[j]]
		h := s.config.FDStepSize * math.Max(math.Abs(x0[j]), floor)

		xPert := make([]float64, nFree)
		copy(xPert, x0)
		xPert[j] += h

		cPert := controls
		s.config.FreeControls.Unpack(&cPert, xPert)

		finalPert := s.propagateTrajectory(cPert, nil)
		rPert := target.Residuals(finalPert.R, finalPert.V, tFinalR, tFinalV)

		for i := 0; i < nConstraints; i++ {
			J.Set(i, j, (rPert[i]-rNominal[i])/h)
		}
	}
	return J
}

// maxStep is the per-control correction clamp, indexed like the flattened
// control vector.
var maxStep = [NumControls]float64{
	0.15, // azimuth, about 9 degrees per iteration
	0.05, 0.20, 0.20, // pitch s1: the initial kick is the sensitive one
	0.15, 0.50, 0.50, // pitch s2: turn rate and shape need a wider range
	0.05, 0.05, // yaw s1
	0.05, 0.05, // yaw s2
	200.0, // coast
	60.0,  // epoch offset
}

// applyCorrection clamps the raw correction per control, applies x -= α dx
// on the free subset and projects the result into the admissible ranges.
func (s *LaunchSolver) applyCorrection(controls *LaunchControls, dxIn []float64, α float64) {
	dx := make([]float64, len(dxIn))
	copy(dx, dxIn)
	idx := 0
	for i, free := range s.config.FreeControls {
		if free {
			limit := maxStep[i] / α
			dx[idx] = clamp(dx[idx], -limit, limit)
			idx++
		}
	}

	x := s.config.FreeControls.Pack(*controls)
	for i := range x {
		x[i] -= α * dx[i]
	}
	s.config.FreeControls.Unpack(controls, x)

	// Physical bounds
	controls.PitchS1[0] = clamp(controls.PitchS1[0], 0, 0.3)
	controls.PitchS1[1] = clamp(controls.PitchS1[1], 0, 2.5)
	controls.PitchS1[2] = clamp(controls.PitchS1[2], -1, 2)

	// Stage 2 bounds stay wide: fast-turn profiles use a large rate with a
	// negative shape term.
	controls.PitchS2[0] = clamp(controls.PitchS2[0], 0.1, math.Pi/2)
	controls.PitchS2[1] = clamp(controls.PitchS2[1], -2, 6)
	controls.PitchS2[2] = clamp(controls.PitchS2[2], -6, 4)

	controls.YawS1[0] = clamp(controls.YawS1[0], -0.3, 0.3)
	controls.YawS1[1] = clamp(controls.YawS1[1], -0.3, 0.3)
	controls.YawS2[0] = clamp(controls.YawS2[0], -0.3, 0.3)
	controls.YawS2[1] = clamp(controls.YawS2[1], -0.3, 0.3)

	controls.Azimuth = wrap2Pi(controls.Azimuth)
	if controls.Coast < 0 {
		controls.Coast = 0
	}
}

// GenerateInitialGuess builds the starting controls: azimuth from the launch
// triangle, a coarse-then-fine grid search over the stage 2 pitch rate, and
// a Lambert refinement of the final pitch and coast for intercept targets.
func (s *LaunchSolver) GenerateInitialGuess(target TerminalTarget) LaunchControls {
	targetInc := 0.0
	if target.Mode == OrbitInsertion {
		_, _, targetInc, _, _, _, _, _, _ = target.Elements.Elements()
	} else {
		h := cross(target.TargetR, target.TargetV)
		if hMag := norm(h); hMag > 0 {
			targetInc = math.Acos(h[2] / hMag)
		}
	}

	guess := DefaultGuess(targetInc, s.site.LatitudeDeg*deg2rad)
	pitchS1End := guess.PitchS1[0] + guess.PitchS1[1] + guess.PitchS1[2]

	// Grid search over the stage 2 pitch rate with a linear profile. The
	// steering clamp means overshooting rates just reach horizontal early.
	targetSMA, targetEcc := 0.0, 0.0
	if target.Mode == OrbitInsertion {
		targetSMA, targetEcc, _, _, _, _, _, _, _ = target.Elements.Elements()
	} else {
		te := NewOrbitFromRV(target.TargetR, target.TargetV, Earth)
		targetSMA, targetEcc, _, _, _, _, _, _, _ = te.Elements()
	}

	if targetSMA > 0 {
		cost := func(rate float64) (float64, bool) {
			test := guess
			test.PitchS2 = [3]float64{pitchS1End, rate, 0}
			final := s.propagateTrajectory(test, nil)
			if final.Altitude < 0 {
				return 0, false
			}
			elem := NewOrbitFromRV(final.R, final.V, Earth)
			a, e, _, _, _, _, _, _, _ := elem.Elements()
			if a < Earth.Radius || e > 0.95 {
				return 0, false
			}
			smaRes := (a - targetSMA) / 1000
			eccRes := (e - targetEcc) * 1e4
			return smaRes*smaRes + eccRes*eccRes, true
		}

		bestRate, bestCost := 1.07, 1e30
		for rate := 0.3; rate <= 5.5; rate += 0.2 {
			if c, ok := cost(rate); ok && c < bestCost {
				bestCost = c
				bestRate = rate
			}
		}
		for rate := bestRate - 0.4; rate <= bestRate+0.4; rate += 0.02 {
			if rate < 0.1 {
				continue
			}
			if c, ok := cost(rate); ok && c < bestCost {
				bestCost = c
				bestRate = rate
			}
		}

		guess.PitchS2 = [3]float64{pitchS1End, bestRate, 0}

		if s.config.Verbose {
			s.logger.Log("level", "info", "state", "guess", "s2rate", bestRate, "cost", bestCost)
		}
	}

	// Lambert refinement for intercept targets.
	if target.Mode != OrbitInsertion {
		insertion := s.propagateTrajectory(guess, nil)
		targetFinalR, _ := s.targetFinalState(target)

		coastTOF := target.TOF - insertion.Time
		if coastTOF > 60.0 {
			Vi, _, _, err := Lambert(insertion.R, targetFinalR, coastTOF, TTypeAuto, Earth)
			if err == nil {
				rHat := unit(insertion.R)
				vRadial := dot(Vi, rHat)
				vMag := norm(Vi)
				vHoriz := math.Sqrt(math.Max(0, vMag*vMag-vRadial*vRadial))
				finalPitch := clamp(math.Atan2(vHoriz, vRadial), 0, math.Pi/2)

				guess.PitchS2[1] = math.Max(finalPitch-guess.PitchS2[0], 0)
				guess.PitchS2[2] = 0
				guess.Coast = math.Max(0, coastTOF-300)
			}
		}
	}

	return guess
}

// Solve runs the differential correction loop from the given guess, or from
// GenerateInitialGuess when the guess is nil. Non-convergence is reported in
// the solution status, not as an error.
func (s *LaunchSolver) Solve(target TerminalTarget, initialGuess *LaunchControls) (LaunchSolution, error) {
	if err := target.Validate(); err != nil {
		return LaunchSolution{}, err
	}

	var controls LaunchControls
	if initialGuess != nil {
		controls = *initialGuess
	} else {
		controls = s.GenerateInitialGuess(target)
	}

	solution := LaunchSolution{}
	tFinalR, tFinalV := s.targetFinalState(target)

	if s.config.Verbose {
		s.logger.Log("level", "notice", "state", "start", "mode", target.Mode.String(),
			"constraints", target.NumConstraints(), "free", s.config.FreeControls.Count(),
			"azimuth", Rad2deg(controls.Azimuth))
	}

	λ := 0.01

	for iter := 0; iter < s.config.MaxIterations; iter++ {
		finalState := s.propagateTrajectory(controls, nil)
		residuals := target.Residuals(finalState.R, finalState.V, tFinalR, tFinalV)
		rNorm := norm2(residuals)

		if s.config.Verbose {
			s.logger.Log("level", "info", "iter", iter, "rnorm", rNorm,
				"alt", finalState.Altitude/1000, "λ", λ)
		}

		if rNorm < s.config.ConvergenceTol {
			solution.Converged = true
			solution.Iterations = iter
			solution.ResidualNorm = rNorm
			solution.Status = "Converged"
			solution.Controls = controls
			solution.FinalState = s.propagateTrajectory(controls, &solution.Trajectory)
			break
		}

		J := s.computeJacobian(controls, target, residuals, tFinalR, tFinalV)

		// Trial-and-accept: grow the damping toward steepest descent on
		// rejection, shrink it on acceptance.
		stepAccepted := false
		for trial := 0; trial < 10 && !stepAccepted; trial++ {
			dx := SolveCorrection(J, residuals, λ)

			cTest := controls
			s.applyCorrection(&cTest, dx, 1.0)

			fsTest := s.propagateTrajectory(cTest, nil)
			if fsTest.Altitude < -50000.0 {
				λ *= 5
				continue
			}

			rTest := target.Residuals(fsTest.R, fsTest.V, tFinalR, tFinalV)
			if norm2(rTest) < rNorm {
				controls = cTest
				λ = math.Max(λ*0.3, 1e-10)
				stepAccepted = true
			} else {
				λ = math.Min(λ*5, 1e6)
			}
		}

		if !stepAccepted {
			// Gradient fallback: a tiny normalized steepest-descent step.
			m, n := J.Dims()
			gradient := make([]float64, n)
			for j := 0; j < n; j++ {
				for i := 0; i < m; i++ {
					gradient[j] += J.At(i, j) * residuals[i]
				}
			}
			if gNorm := norm2(gradient); gNorm > 1e-10 {
				for j := range gradient {
					gradient[j] *= 0.005 / gNorm
				}
				s.applyCorrection(&controls, gradient, 1.0)
			}
			if s.config.Verbose {
				s.logger.Log("level", "warning", "iter", iter, "msg", "all damping trials rejected, gradient fallback")
			}
		}

		solution.Iterations = iter + 1
		solution.ResidualNorm = rNorm
	}

	if !solution.Converged {
		solution.Status = fmt.Sprintf("Did not converge after %d iterations", s.config.MaxIterations)
		solution.Controls = controls
		solution.FinalState = s.propagateTrajectory(controls, &solution.Trajectory)
	}

	s.fillDiagnostics(&solution, target, tFinalR, tFinalV)
	if s.config.Verbose {
		s.logger.Log("level", "notice", "state", "done", "converged", solution.Converged,
			"iterations", solution.Iterations, "rnorm", solution.ResidualNorm)
	}
	return solution, nil
}

// Propagate evaluates the controls without solving.
func (s *LaunchSolver) Propagate(controls LaunchControls, target TerminalTarget) (LaunchSolution, error) {
	if err := target.Validate(); err != nil {
		return LaunchSolution{}, err
	}
	solution := LaunchSolution{Controls: controls, Status: "Propagation only (no optimization)"}
	solution.FinalState = s.propagateTrajectory(controls, &solution.Trajectory)

	tFinalR, tFinalV := s.targetFinalState(target)
	solution.ResidualNorm = norm2(target.Residuals(solution.FinalState.R, solution.FinalState.V, tFinalR, tFinalV))
	s.fillDiagnostics(&solution, target, tFinalR, tFinalV)
	return solution, nil
}

// fillDiagnostics scans the trajectory for staging and burnout events and
// fills the rocket-equation Δv, terminal elements and target errors.
func (s *LaunchSolver) fillDiagnostics(solution *LaunchSolution, target TerminalTarget, tFinalR, tFinalV []float64) {
	for i := 1; i < len(solution.Trajectory); i++ {
		prev, cur := solution.Trajectory[i-1], solution.Trajectory[i]
		if cur.StageIndex > prev.StageIndex && solution.StageSeparationTime == 0 {
			solution.StageSeparationTime = cur.Time
		}
		if prev.EnginesOn && !cur.EnginesOn {
			solution.BurnoutTime = cur.Time
		}
	}

	if len(solution.FinalState.R) == 3 {
		solution.FinalElements = NewOrbitFromRV(solution.FinalState.R, solution.FinalState.V, Earth)
	}

	m0 := s.vehicle.TotalMass()
	mf := solution.FinalState.Mass
	ispAvg := 0.0
	for _, stage := range s.vehicle.Stages {
		ispAvg += stage.IspVac
	}
	ispAvg /= float64(len(s.vehicle.Stages))
	if mf > 0 && m0 > mf {
		solution.TotalΔV = ispAvg * g0 * math.Log(m0/mf)
	}

	if target.Mode != OrbitInsertion && len(tFinalR) == 3 {
		solution.FinalPositionError = norm(vecSum(solution.FinalState.R, -1, tFinalR))
		solution.FinalVelocityError = norm(vecSum(solution.FinalState.V, -1, tFinalV))
	}
}
