package traj

import (
	"math"
	"testing"

	"github.com/gonum/floats"
)

func testVehicle() Vehicle {
	return Vehicle{
		Stages: []Stage{
			{DryMass: 22000, PropellantMass: 410000, Thrust: 7600e3, IspSL: 282, IspVac: 311},
			{DryMass: 4000, PropellantMass: 107000, Thrust: 934e3, IspSL: 300, IspVac: 348},
		},
		PayloadMass:     8000,
		DragCoefficient: 0.3,
		ReferenceArea:   10.5,
	}
}

// testLaunchConfig coarsens the integration steps so propagations stay cheap.
func testLaunchConfig() LaunchConfig {
	config := DefaultLaunchConfig()
	config.AtmoStepSize = 2.0
	config.VacuumStepSize = 10.0
	return config
}

func testLaunchSolver(t *testing.T) *LaunchSolver {
	s, err := NewLaunchSolver(testVehicle(), CapeCanaveral(), 2451545.0, testLaunchConfig())
	if err != nil {
		t.Fatalf("err %s", err)
	}
	return s
}

func testControls() LaunchControls {
	c := DefaultGuess(Deg2rad(28.6), Deg2rad(28.5623))
	c.PitchS2 = [3]float64{0.5, 2.0, 0}
	c.Coast = 60
	return c
}

func TestStageHelpers(t *testing.T) {
	stage := testVehicle().Stages[0]
	if isp := stage.EffectiveIsp(0); isp != 282 {
		t.Fatalf("sea level Isp %f", isp)
	}
	if isp := stage.EffectiveIsp(80000); isp != 311 {
		t.Fatalf("vacuum Isp %f", isp)
	}
	if isp := stage.EffectiveIsp(20000); !floats.EqualWithinAbs(isp, 296.5, 1e-9) {
		t.Fatalf("mid-altitude Isp %f", isp)
	}
	mdot := stage.MassFlowRate(0)
	if !floats.EqualWithinAbs(mdot, 7600e3/(282*g0), 1e-9) {
		t.Fatalf("mass flow rate %f", mdot)
	}
	if !floats.EqualWithinAbs(stage.BurnDuration(0), stage.PropellantMass/mdot, 1e-9) {
		t.Fatalf("burn duration %f", stage.BurnDuration(0))
	}

	v := testVehicle()
	if m := v.TotalMass(); m != 22000+410000+4000+107000+8000 {
		t.Fatalf("liftoff mass %f", m)
	}
	if m := v.MassFromStage(1); m != 4000+107000+8000 {
		t.Fatalf("upper stack mass %f", m)
	}
}

func TestLaunchStagingEvents(t *testing.T) {
	s := testLaunchSolver(t)
	var trajectory []LaunchState
	final := s.propagateTrajectory(testControls(), &trajectory)

	if final.Crashed {
		t.Fatal("nominal ascent crashed")
	}
	// Both stages burn out, so only the payload remains.
	if !floats.EqualWithinAbs(final.Mass, s.vehicle.PayloadMass, 1e-3) {
		t.Fatalf("final mass %f, expected the payload %f", final.Mass, s.vehicle.PayloadMass)
	}
	if final.EnginesOn || final.StageIndex != 2 {
		t.Fatalf("engines still on at coast end: stage=%d", final.StageIndex)
	}

	staging := -1
	for i := 1; i < len(trajectory); i++ {
		prev, cur := trajectory[i-1], trajectory[i]
		if cur.Time < prev.Time {
			t.Fatalf("time went backwards at sample %d", i)
		}
		for stg := 0; stg < len(s.vehicle.Stages); stg++ {
			if cur.FuelRemaining[stg] < 0 {
				t.Fatalf("negative propellant at sample %d: %v", i, cur.FuelRemaining)
			}
		}
		if staging < 0 && cur.StageIndex == 1 && prev.StageIndex == 0 {
			staging = i
			if cur.FuelRemaining[0] != 0 {
				t.Fatalf("stage 1 separated with propellant left: %f", cur.FuelRemaining[0])
			}
			// The drop includes the propellant burnt inside the split step
			// plus the jettisoned dry mass.
			if drop := prev.Mass - cur.Mass; drop < s.vehicle.Stages[0].DryMass {
				t.Fatalf("staging dropped only %f kg", drop)
			}
			// Stage 2 starts full, and its ledger must already account for
			// the burn inside the very next sub-step.
			if cur.FuelRemaining[1] != s.vehicle.Stages[1].PropellantMass {
				t.Fatalf("stage 2 not full at separation: %f", cur.FuelRemaining[1])
			}
			if i+1 < len(trajectory) {
				next := trajectory[i+1]
				if next.FuelRemaining[1] >= s.vehicle.Stages[1].PropellantMass {
					t.Fatalf("stage 2 ledger not decremented after separation: %f", next.FuelRemaining[1])
				}
			}
		}
	}
	if staging < 0 {
		t.Fatal("no staging event in the trajectory")
	}
}

func TestLaunchCrashDetection(t *testing.T) {
	// An underpowered single stage falls back and must trip the crash guard
	// instead of integrating to the burn end.
	weak := Vehicle{
		Stages:          []Stage{{DryMass: 1000, PropellantMass: 10000, Thrust: 1e3, IspSL: 300, IspVac: 300}},
		PayloadMass:     7000,
		DragCoefficient: 0.3,
		ReferenceArea:   10.5,
	}
	s, err := NewLaunchSolver(weak, CapeCanaveral(), 2451545.0, testLaunchConfig())
	if err != nil {
		t.Fatalf("err %s", err)
	}
	final := s.propagateTrajectory(testControls(), nil)
	if !final.Crashed {
		t.Fatalf("underpowered vehicle did not crash: alt=%f t=%f", final.Altitude, final.Time)
	}
}

func TestLaunchSteering(t *testing.T) {
	s := testLaunchSolver(t)
	controls := testControls()

	// Vertical below the gravity turn start.
	state := LaunchState{Altitude: 500, Time: 5, EnginesOn: true}
	if pitch, yaw := s.evaluateSteering(state, controls); pitch != 0 || yaw != 0 {
		t.Fatalf("not vertical at 500 m: pitch=%f yaw=%f", pitch, yaw)
	}

	// Stage 2 pitch never passes horizontal, whatever the polynomial says.
	state = LaunchState{Altitude: 150e3, Time: 400, StageIndex: 1, EnginesOn: true}
	hot := controls
	hot.PitchS2 = [3]float64{1.5, 6, 4}
	if pitch, _ := s.evaluateSteering(state, hot); pitch > math.Pi/2 {
		t.Fatalf("pitch past horizontal: %f", pitch)
	}

	// Coast holds the stage 2 terminal attitude.
	state = LaunchState{Altitude: 200e3, Time: 600, StageIndex: 2}
	wantPitch := clamp(controls.PitchS2[0]+controls.PitchS2[1]+controls.PitchS2[2], 0, math.Pi/2)
	if pitch, yaw := s.evaluateSteering(state, controls); pitch != wantPitch || yaw != 0 {
		t.Fatalf("coast attitude pitch=%f yaw=%f, expected pitch %f", pitch, yaw, wantPitch)
	}
}

func TestLaunchThrustDirection(t *testing.T) {
	s := testLaunchSolver(t)
	controls := testControls()

	R, V := s.site.ECIState(s.epochJD)
	state := LaunchState{R: R, V: V, Altitude: 100, EnginesOn: true}

	tDir := s.thrustDirection(state, controls)
	if !floats.EqualWithinAbs(norm(tDir), 1, 1e-12) {
		t.Fatalf("thrust direction not unit: |t|=%f", norm(tDir))
	}
	// Vertical flight: thrust along the radial.
	if align := dot(tDir, unit(R)); !floats.EqualWithinAbs(align, 1, 1e-9) {
		t.Fatalf("vertical thrust misaligned: cos=%f", align)
	}
}

func TestLaunchJacobianFinite(t *testing.T) {
	config := testLaunchConfig()
	var mask FreeMask
	mask[0] = true  // azimuth
	mask[5] = true  // stage 2 pitch rate
	mask[11] = true // coast
	config.FreeControls = mask

	s, err := NewLaunchSolver(testVehicle(), CapeCanaveral(), 2451545.0, config)
	if err != nil {
		t.Fatalf("err %s", err)
	}

	target := NewOrbitInsertionTarget(NewOrbitFromOE(Earth.Radius+400e3, 0.001, 28.6, 0, 0, 0, Earth))
	controls := testControls()
	final := s.propagateTrajectory(controls, nil)
	residuals := target.Residuals(final.R, final.V, nil, nil)

	J := s.computeJacobian(controls, target, residuals, nil, nil)
	rows, cols := J.Dims()
	if rows != 3 || cols != 3 {
		t.Fatalf("Jacobian is %dx%d", rows, cols)
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if math.IsNaN(J.At(i, j)) || math.IsInf(J.At(i, j), 0) {
				t.Fatalf("non-finite Jacobian entry (%d,%d)", i, j)
			}
		}
	}
}

func TestLaunchPropagateDiagnostics(t *testing.T) {
	s := testLaunchSolver(t)
	target := NewOrbitInsertionTarget(NewOrbitFromOE(Earth.Radius+400e3, 0.001, 28.6, 0, 0, 0, Earth))

	solution, err := s.Propagate(testControls(), target)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if len(solution.Trajectory) == 0 {
		t.Fatal("empty trajectory")
	}
	if solution.FinalElements == nil {
		t.Fatal("no terminal elements")
	}
	if math.IsNaN(solution.ResidualNorm) {
		t.Fatal("NaN residual norm")
	}
	if solution.StageSeparationTime <= 0 {
		t.Fatalf("staging time %f", solution.StageSeparationTime)
	}
	if solution.BurnoutTime <= solution.StageSeparationTime {
		t.Fatalf("burnout at %f, staging at %f", solution.BurnoutTime, solution.StageSeparationTime)
	}
	if solution.TotalΔV <= 0 {
		t.Fatalf("rocket equation Δv %f", solution.TotalΔV)
	}
}

func TestLaunchInitialGuess(t *testing.T) {
	s := testLaunchSolver(t)
	target := NewOrbitInsertionTarget(NewOrbitFromOE(Earth.Radius+400e3, 0.001, 28.6, 0, 0, 0, Earth))

	guess := s.GenerateInitialGuess(target)
	if math.IsNaN(guess.Azimuth) {
		t.Fatal("NaN azimuth")
	}
	// The grid search keeps a linear stage 2 profile.
	if guess.PitchS2[2] != 0 {
		t.Fatalf("grid search left a quadratic term: %f", guess.PitchS2[2])
	}
	if guess.PitchS2[1] < 0.1 || guess.PitchS2[1] > 5.5 {
		t.Fatalf("stage 2 rate out of the search range: %f", guess.PitchS2[1])
	}
}

func TestLaunchSolveImmediateConvergence(t *testing.T) {
	// A tolerance the first residual evaluation already meets: the loop must
	// report convergence before any correction, with zero iterations.
	config := testLaunchConfig()
	config.ConvergenceTol = 1e9
	s, err := NewLaunchSolver(testVehicle(), CapeCanaveral(), 2451545.0, config)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	target := NewOrbitInsertionTarget(NewOrbitFromOE(Earth.Radius+400e3, 0.001, 28.6, 0, 0, 0, Earth))
	guess := testControls()

	solution, err := s.Solve(target, &guess)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if !solution.Converged || solution.Status != "Converged" {
		t.Fatalf("expected immediate convergence, got %q after %d iterations", solution.Status, solution.Iterations)
	}
	if solution.Iterations != 0 {
		t.Fatalf("converged on the first evaluation but counted %d iterations", solution.Iterations)
	}
	if len(solution.Trajectory) == 0 || solution.FinalElements == nil {
		t.Fatal("converged solution missing trajectory or elements")
	}
}

func TestLaunchSolveExhaustsIterations(t *testing.T) {
	// An unreachable tolerance: the correction loop must run its full budget
	// through the damping trials and report exhaustion with finite numbers.
	config := testLaunchConfig()
	config.ConvergenceTol = 1e-12
	config.MaxIterations = 2
	var mask FreeMask
	mask[0] = true  // azimuth
	mask[5] = true  // stage 2 pitch rate
	mask[11] = true // coast
	config.FreeControls = mask

	s, err := NewLaunchSolver(testVehicle(), CapeCanaveral(), 2451545.0, config)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	target := NewOrbitInsertionTarget(NewOrbitFromOE(Earth.Radius+400e3, 0.001, 28.6, 0, 0, 0, Earth))
	guess := testControls()

	solution, err := s.Solve(target, &guess)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if solution.Converged {
		t.Fatal("converged below an unreachable tolerance")
	}
	if solution.Status != "Did not converge after 2 iterations" {
		t.Fatalf("unexpected status %q", solution.Status)
	}
	if solution.Iterations != 2 {
		t.Fatalf("ran %d iterations, budget was 2", solution.Iterations)
	}
	if math.IsNaN(solution.ResidualNorm) || math.IsInf(solution.ResidualNorm, 0) {
		t.Fatalf("non-finite residual norm %f", solution.ResidualNorm)
	}
	x := solution.Controls.ToArray()
	if anyNaN(x[:]) {
		t.Fatalf("NaN in corrected controls: %v", x)
	}
	// Corrections stay inside the admissible ranges.
	if solution.Controls.PitchS2[0] < 0.1 || solution.Controls.PitchS2[0] > math.Pi/2 {
		t.Fatalf("stage 2 initial pitch out of bounds: %f", solution.Controls.PitchS2[0])
	}
	if solution.Controls.Coast < 0 {
		t.Fatalf("negative coast: %f", solution.Controls.Coast)
	}
	if len(solution.Trajectory) == 0 || solution.FinalElements == nil {
		t.Fatal("exhausted solution missing trajectory or elements")
	}
}

func TestLaunchSolveValidation(t *testing.T) {
	s := testLaunchSolver(t)
	if _, err := s.Solve(TerminalTarget{}, nil); err == nil {
		t.Fatal("expected error with an unset target")
	}
	if _, err := NewLaunchSolver(Vehicle{}, CapeCanaveral(), 2451545.0, testLaunchConfig()); err == nil {
		t.Fatal("expected error with a stageless vehicle")
	}
}
