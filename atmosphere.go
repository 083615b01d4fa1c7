package traj

import "math"

// US-76-style layered atmosphere, with an exponential extension above the
// mesopause. Altitudes in meters above the reference ellipsoid.

const (
	seaLevelDensity     = 1.225    // kg/m³
	seaLevelPressure    = 101325.0 // Pa
	seaLevelTemperature = 288.15   // K
	airGasConstant      = 287.053  // J/(kg·K)
	airGamma            = 1.4
	g0                  = 9.80665   // m/s²
	karmanLine          = 100000.0  // m
	tropopauseAlt       = 11000.0   // m
	stratopauseAlt      = 47000.0   // m
	mesopauseAlt        = 84852.0   // m
)

// AtmosphereState holds the thermodynamic state at one altitude.
type AtmosphereState struct {
	Temperature  float64 // K
	Pressure     float64 // Pa
	Density      float64 // kg/m³
	SpeedOfSound float64 // m/s
}

// Atmosphere computes the layered atmospheric state at the given altitude.
func Atmosphere(altitude float64) AtmosphereState {
	var state AtmosphereState
	altitude = math.Max(0, altitude)

	switch {
	case altitude > mesopauseAlt:
		// Above the mesopause, exponential decay.
		h := altitude - mesopauseAlt
		scaleHeight := 6500.0
		state.Temperature = 186.87
		state.Pressure = 0.37 * math.Exp(-h/scaleHeight)
		state.Density = state.Pressure / (airGasConstant * state.Temperature)
	case altitude > stratopauseAlt:
		// Mesosphere (47-85 km)
		h := altitude - stratopauseAlt
		lapse := -0.0028
		state.Temperature = math.Max(270.65+lapse*h, 186.87)
		T0, P0 := 270.65, 110.91
		state.Pressure = P0 * math.Pow(state.Temperature/T0, -g0/(lapse*airGasConstant))
		state.Density = state.Pressure / (airGasConstant * state.Temperature)
	case altitude > 32000.0:
		// Upper stratosphere (32-47 km)
		h := altitude - 32000.0
		lapse := 0.0028
		state.Temperature = 228.65 + lapse*h
		T0, P0 := 228.65, 868.02
		state.Pressure = P0 * math.Pow(state.Temperature/T0, -g0/(lapse*airGasConstant))
		state.Density = state.Pressure / (airGasConstant * state.Temperature)
	case altitude > 20000.0:
		// Middle stratosphere (20-32 km)
		h := altitude - 20000.0
		lapse := 0.001
		state.Temperature = 216.65 + lapse*h
		T0, P0 := 216.65, 5474.89
		state.Pressure = P0 * math.Pow(state.Temperature/T0, -g0/(lapse*airGasConstant))
		state.Density = state.Pressure / (airGasConstant * state.Temperature)
	case altitude > tropopauseAlt:
		// Lower stratosphere (11-20 km), isothermal.
		h := altitude - tropopauseAlt
		state.Temperature = 216.65
		P0 := 22632.1
		state.Pressure = P0 * math.Exp(-g0*h/(airGasConstant*state.Temperature))
		state.Density = state.Pressure / (airGasConstant * state.Temperature)
	default:
		// Troposphere (0-11 km)
		lapse := -0.0065
		state.Temperature = seaLevelTemperature + lapse*altitude
		state.Pressure = seaLevelPressure * math.Pow(state.Temperature/seaLevelTemperature, -g0/(lapse*airGasConstant))
		state.Density = state.Pressure / (airGasConstant * state.Temperature)
	}

	state.SpeedOfSound = math.Sqrt(airGamma * airGasConstant * state.Temperature)
	return state
}

// Density is the fast path used by the drag computation.
func Density(altitude float64) float64 {
	if altitude > karmanLine {
		return 0
	}
	if altitude > 50000.0 {
		scaleHeight := 7400.0
		return seaLevelDensity * math.Exp(-altitude/scaleHeight)
	}
	return Atmosphere(altitude).Density
}

// DensityExtended keeps the exponential tail above the Kármán line, for
// ascent drag which still matters in the high thin atmosphere.
func DensityExtended(altitude float64) float64 {
	return Atmosphere(altitude).Density
}

// Drag returns the drag force in Newtons for the provided relative velocity.
func Drag(velocity []float64, altitude, cd, area float64) []float64 {
	ρ := Density(altitude)
	if ρ < 1e-15 {
		return []float64{0, 0, 0}
	}
	vMag := norm(velocity)
	if vMag < 1e-6 {
		return []float64{0, 0, 0}
	}
	dragMag := 0.5 * ρ * vMag * vMag * cd * area
	return []float64{-dragMag * velocity[0] / vMag,
		-dragMag * velocity[1] / vMag,
		-dragMag * velocity[2] / vMag}
}

// DynamicPressure returns q at the given speed and altitude.
func DynamicPressure(velocity, altitude float64) float64 {
	return 0.5 * Density(altitude) * velocity * velocity
}

// InAtmosphere reports whether the altitude is below the Kármán line.
func InAtmosphere(altitude float64) bool {
	return altitude < karmanLine
}
