package traj

import (
	"math"
	"testing"

	"github.com/gonum/floats"
)

func TestControlsArrayRoundTrip(t *testing.T) {
	c := LaunchControls{
		Azimuth: 1.2,
		PitchS1: [3]float64{0.05, 0.20, 0.25},
		PitchS2: [3]float64{0.50, 0.20, 0.87},
		YawS1:   [2]float64{0.01, -0.02},
		YawS2:   [2]float64{-0.03, 0.04},
		Coast:   120, EpochOffset: -5,
	}
	var c1 LaunchControls
	c1.FromArray(c.ToArray())
	if c1 != c {
		t.Fatalf("round trip mismatch:\n%+v\n%+v", c1, c)
	}
}

func TestFreeMaskPackUnpack(t *testing.T) {
	m := DefaultFreeMask()
	if m.Count() != NumControls-1 {
		t.Fatalf("default mask frees %d components", m.Count())
	}

	c := DefaultGuess(Deg2rad(28.6), Deg2rad(28.5623))
	c.EpochOffset = 42
	x := m.Pack(c)
	if len(x) != m.Count() {
		t.Fatalf("packed %d components, expected %d", len(x), m.Count())
	}

	for i := range x {
		x[i] += 0.1
	}
	m.Unpack(&c, x)
	if c.EpochOffset != 42 {
		t.Fatalf("fixed epoch offset was modified: %f", c.EpochOffset)
	}
	if !floats.EqualApprox(m.Pack(c), x, 1e-15) {
		t.Fatal("unpack then pack did not recover the free vector")
	}
}

func TestDefaultGuessAzimuth(t *testing.T) {
	// Inclination equal to the latitude: due east launch.
	c := DefaultGuess(Deg2rad(28.5), Deg2rad(28.5))
	if !floats.EqualWithinAbs(c.Azimuth, math.Pi/2, 1e-12) {
		t.Fatalf("expected due east azimuth, got %f rad", c.Azimuth)
	}

	// Polar target: due north.
	c = DefaultGuess(math.Pi/2, Deg2rad(34.742))
	if !floats.EqualWithinAbs(c.Azimuth, 0, 1e-12) {
		t.Fatalf("expected due north azimuth, got %f rad", c.Azimuth)
	}

	// Higher inclination than latitude allows still yields a finite azimuth.
	c = DefaultGuess(Deg2rad(51.6), Deg2rad(28.5))
	if math.IsNaN(c.Azimuth) {
		t.Fatal("azimuth is NaN")
	}
	if c.PitchS1[0] <= 0 || c.PitchS2[0] <= 0 {
		t.Fatalf("pitch guess not climbing: %+v %+v", c.PitchS1, c.PitchS2)
	}
}
