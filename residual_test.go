package traj

import (
	"math"
	"testing"

	"github.com/gonum/floats"
)

func TestTargetValidate(t *testing.T) {
	var empty TerminalTarget
	if empty.Validate() == nil {
		t.Fatal("expected error with unset mode")
	}
	if (TerminalTarget{Mode: OrbitInsertion}).Validate() == nil {
		t.Fatal("expected error with nil elements")
	}
	noConstraint := TerminalTarget{Mode: OrbitInsertion,
		Elements: NewOrbitFromOE(Earth.Radius+400e3, 0.001, 28.6, 0, 0, 0, Earth)}
	if noConstraint.Validate() == nil {
		t.Fatal("expected error with no constrained elements")
	}
	if (TerminalTarget{Mode: PositionIntercept, TargetR: []float64{1, 2},
		TargetV: []float64{0, 0, 0}, TOF: 60}).Validate() == nil {
		t.Fatal("expected error with short target state")
	}
	badTOF := NewInterceptTarget([]float64{1, 0, 0}, []float64{0, 1, 0}, 0)
	if badTOF.Validate() == nil {
		t.Fatal("expected error with non positive time of flight")
	}
	good := NewOrbitInsertionTarget(NewOrbitFromOE(Earth.Radius+400e3, 0.001, 28.6, 0, 0, 0, Earth))
	if err := good.Validate(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
}

func TestTargetNumConstraints(t *testing.T) {
	o := NewOrbitFromOE(Earth.Radius+400e3, 0.001, 28.6, 0, 0, 0, Earth)
	insertion := NewOrbitInsertionTarget(o)
	if n := insertion.NumConstraints(); n != 3 {
		t.Fatalf("default insertion has %d constraints", n)
	}
	insertion.ConstrainRAAN = true
	insertion.ConstrainArgP = true
	if n := insertion.NumConstraints(); n != 5 {
		t.Fatalf("full insertion has %d constraints", n)
	}
	if n := NewInterceptTarget(o.R(), o.V(), 600).NumConstraints(); n != 3 {
		t.Fatalf("intercept has %d constraints", n)
	}
	if n := NewRendezvousTarget(o.R(), o.V(), 600).NumConstraints(); n != 6 {
		t.Fatalf("rendezvous has %d constraints", n)
	}
}

func TestInsertionResidualScaling(t *testing.T) {
	target := NewOrbitInsertionTarget(NewOrbitFromOE(6778137, 0.01, 28.6, 10, 20, 0, Earth))
	// Same eccentricity and inclination, semi major axis off by 1000 km.
	final := NewOrbitFromOE(6778137+1e6, 0.01, 28.6, 10, 20, 0, Earth)
	r := target.Residuals(final.R(), final.V(), nil, nil)
	if len(r) != 3 {
		t.Fatalf("expected 3 residuals, got %d", len(r))
	}
	if !floats.EqualWithinAbs(r[0], 1000, 1e-3) {
		t.Fatalf("semi major axis residual not in km: %f", r[0])
	}
	if !floats.EqualWithinAbs(r[1], 0, 1e-3) || !floats.EqualWithinAbs(r[2], 0, 1e-3) {
		t.Fatalf("eccentricity and inclination residuals not null: %v", r)
	}
}

func TestRendezvousResidualScaling(t *testing.T) {
	R := []float64{Earth.Radius + 400e3, 0, 0}
	V := []float64{0, 7670, 0}
	target := NewRendezvousTarget(R, V, 600)

	// No target elements: the velocity scale falls back to a 400 km orbit.
	Tscale := target.timeScale()
	if !floats.EqualWithinAbs(Tscale, math.Sqrt(math.Pow(Earth.Radius+400e3, 3)/Earth.μ), 1e-9) {
		t.Fatalf("incorrect fallback time scale %f", Tscale)
	}

	r := target.Residuals([]float64{R[0] + 100, R[1], R[2]}, []float64{V[0], V[1] + 1, V[2]}, R, V)
	if !floats.EqualWithinAbs(r[0], 100, 1e-9) {
		t.Fatalf("position residual not raw meters: %f", r[0])
	}
	if !floats.EqualWithinAbs(r[4], Tscale, 1e-9) {
		t.Fatalf("velocity residual not time scaled: %f", r[4])
	}
}
