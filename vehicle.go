package traj

// Stage is a single rocket stage as the ascent solver sees it.
type Stage struct {
	DryMass        float64 // kg
	PropellantMass float64 // kg
	Thrust         float64 // N, vacuum reference
	IspSL          float64 // s, sea level
	IspVac         float64 // s, vacuum
}

// EffectiveIsp interpolates between sea level and vacuum over 0-40 km.
func (s Stage) EffectiveIsp(altitude float64) float64 {
	frac := clamp(altitude/40000.0, 0, 1)
	return s.IspSL + (s.IspVac-s.IspSL)*frac
}

// MassFlowRate returns the propellant mass flow rate at altitude in kg/s.
func (s Stage) MassFlowRate(altitude float64) float64 {
	return s.Thrust / (s.EffectiveIsp(altitude) * g0)
}

// BurnDuration approximates the burn time at an average altitude.
func (s Stage) BurnDuration(avgAltitude float64) float64 {
	mdot := s.MassFlowRate(avgAltitude)
	if mdot <= 0 {
		return 0
	}
	return s.PropellantMass / mdot
}

// Vehicle is a full launch vehicle: stages, payload and aerodynamics.
type Vehicle struct {
	Stages          []Stage
	PayloadMass     float64 // kg
	DragCoefficient float64
	ReferenceArea   float64 // m²
}

// TotalMass returns the liftoff mass.
func (v Vehicle) TotalMass() float64 {
	m := v.PayloadMass
	for _, s := range v.Stages {
		m += s.DryMass + s.PropellantMass
	}
	return m
}

// MassFromStage returns the mass of the given stage and everything above it.
func (v Vehicle) MassFromStage(stageIdx int) float64 {
	m := v.PayloadMass
	for i := stageIdx; i < len(v.Stages); i++ {
		m += v.Stages[i].DryMass + v.Stages[i].PropellantMass
	}
	return m
}
