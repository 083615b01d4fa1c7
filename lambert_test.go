package traj

import (
	"testing"

	"github.com/gonum/floats"
)

func TestLambertVallado(t *testing.T) {
	// From Vallado 4th edition, page 497, in meters.
	Ri := []float64{15945340, 0, 0}
	Rf := []float64{12214838.99, 10249467.31, 0}
	ViExp := []float64{2058.913, 2915.965, 0}
	VfExp := []float64{-3451.565, 910.315, 0}
	tof := 76.0 * 60
	for _, dm := range []TransferType{TTypeAuto, TType1} {
		Vi, Vf, φ, err := Lambert(Ri, Rf, tof, dm, Earth)
		if err != nil {
			t.Fatalf("err %s", err)
		}
		for i := 0; i < 3; i++ {
			if !floats.EqualWithinAbs(Vi[i], ViExp[i], 1e-2) {
				t.Logf("φ=%f", φ)
				t.Fatalf("[%s] incorrect Vi: got %+v exp %+v", dm, Vi, ViExp)
			}
			if !floats.EqualWithinAbs(Vf[i], VfExp[i], 1e-2) {
				t.Logf("φ=%f", φ)
				t.Fatalf("[%s] incorrect Vf: got %+v exp %+v", dm, Vf, VfExp)
			}
		}
	}
	// Long way
	ViExp = []float64{-3811.158, -2003.854, 0}
	VfExp = []float64{4207.569, 914.724, 0}
	Vi, Vf, φ, err := Lambert(Ri, Rf, tof, TType2, Earth)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	for i := 0; i < 3; i++ {
		if !floats.EqualWithinAbs(Vi[i], ViExp[i], 1e-2) {
			t.Logf("φ=%f", φ)
			t.Fatalf("[%s] incorrect Vi: got %+v exp %+v", TType2, Vi, ViExp)
		}
		if !floats.EqualWithinAbs(Vf[i], VfExp[i], 1e-2) {
			t.Logf("φ=%f", φ)
			t.Fatalf("[%s] incorrect Vf: got %+v exp %+v", TType2, Vf, VfExp)
		}
	}
}

func TestLambertErrors(t *testing.T) {
	if _, _, _, err := Lambert([]float64{0, 0}, []float64{0, 0, 0}, 3600, TTypeAuto, Earth); err == nil {
		t.Fatal("expected error with short Ri")
	}
}

func TestHohmann(t *testing.T) {
	// LEO to GEO, textbook numbers.
	rI := Earth.Radius + 400e3
	rF := 42164e3
	vD, vA, tof := Hohmann(rI, rF, Earth)
	if !floats.EqualWithinAbs(vD, 10066, 20) {
		t.Fatalf("departure speed %f", vD)
	}
	if !floats.EqualWithinAbs(vA, 1618, 20) {
		t.Fatalf("arrival speed %f", vA)
	}
	if !floats.EqualWithinAbs(tof, 19046, 200) {
		t.Fatalf("time of flight %f", tof)
	}
}
