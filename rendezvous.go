package traj

import (
	"errors"
	"math"
	"os"

	kitlog "github.com/go-kit/kit/log"
	"github.com/gonum/matrix/mat64"
)

// RendezvousConfig tunes the impulsive rendezvous solver.
type RendezvousConfig struct {
	MaxIterations   int
	PositionTol     float64 // m
	VelocityTol     float64 // m/s
	StepSize        float64 // s
	UseLineSearch   bool
	LineSearchAlpha float64 // backtracking factor
	Verbose         bool
}

// DefaultRendezvousConfig returns the baseline solver settings.
func DefaultRendezvousConfig() RendezvousConfig {
	return RendezvousConfig{
		MaxIterations:   50,
		PositionTol:     1.0,
		VelocityTol:     0.01,
		StepSize:        60,
		UseLineSearch:   true,
		LineSearchAlpha: 0.5,
	}
}

// Maneuver is an impulsive burn at a given epoch offset from solve start.
type Maneuver struct {
	Epoch float64 // s
	ΔV    []float64
}

// RendezvousSolution is always returned by a solve, converged or not.
type RendezvousSolution struct {
	Converged          bool
	Iterations         int
	Maneuvers          []Maneuver
	TotalΔV            float64
	FinalPositionError float64 // m
	FinalVelocityError float64 // m/s
	Status             string
}

// RendezvousSolver computes impulsive burns which bring a chaser onto a
// target by Newton-Raphson differential correction on the co-propagated
// state transition matrix.
type RendezvousSolver struct {
	force  TwoBodyJ2
	config RendezvousConfig
	logger kitlog.Logger
}

// NewRendezvousSolver returns a solver for the given force model.
func NewRendezvousSolver(force TwoBodyJ2, config RendezvousConfig) *RendezvousSolver {
	klog := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	klog = kitlog.With(klog, "subsys", "rendezvous")
	return &RendezvousSolver{force, config, klog}
}

// GenerateInitialGuess returns a Clohessy-Wiltshire-based Δv guess. Near the
// half period the radial burn dominates, elsewhere the in-track burn does.
func (s *RendezvousSolver) GenerateInitialGuess(chaserR, chaserV, targetR []float64, tof float64) []float64 {
	r := norm(chaserR)
	n := math.Sqrt(s.force.Body.μ / (r * r * r))

	dr := vecSum(chaserR, -1, targetR)
	inTrackSep := math.Sqrt(dr[0]*dr[0] + dr[1]*dr[1])

	period := 2 * math.Pi / n
	halfPeriod := period / 2

	guess := []float64{0, 0, 0}
	if math.Abs(tof-halfPeriod) < 0.2*halfPeriod {
		// Near half-period: radial burn
		dvRadial := inTrackSep * n / 4
		for i := 0; i < 3; i++ {
			guess[i] = -dvRadial * chaserR[i] / r
		}
	} else {
		// In-track burn
		vCirc := math.Sqrt(s.force.Body.μ / r)
		Δθ := inTrackSep / r
		dvInTrack := vCirc * Δθ / (3 * tof * n)
		vMag := norm(chaserV)
		for i := 0; i < 3; i++ {
			guess[i] = -dvInTrack * chaserV[i] / vMag
		}
	}
	return guess
}

// residuals returns the raw terminal state differences (position in meters,
// optionally velocity in m/s).
func rendezvousResiduals(chaserR, chaserV, targetR, targetV []float64, matchVelocity bool) []float64 {
	r := make([]float64, 0, 6)
	for i := 0; i < 3; i++ {
		r = append(r, chaserR[i]-targetR[i])
	}
	if matchVelocity {
		for i := 0; i < 3; i++ {
			r = append(r, chaserV[i]-targetV[i])
		}
	}
	return r
}

// extractJacobian builds the sensitivity of the constrained terminal state
// to the initial Δv from the STM: ∂r_f/∂v_0 is the upper-right 3x3 block,
// ∂v_f/∂v_0 the lower-right.
func extractJacobian(Φ *mat64.Dense, matchVelocity bool) *mat64.Dense {
	rows := 3
	if matchVelocity {
		rows = 6
	}
	J := mat64.NewDense(rows, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			J.Set(i, j, Φ.At(i, j+3))
		}
	}
	if matchVelocity {
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				J.Set(i+3, j, Φ.At(i+3, j+3))
			}
		}
	}
	return J
}

func (s *RendezvousSolver) validate(chaserR, chaserV, targetR, targetV []float64, tof float64) error {
	if len(chaserR) != 3 || len(chaserV) != 3 || len(targetR) != 3 || len(targetV) != 3 {
		return errors.New("chaser and target states must be 3x1 vectors")
	}
	if tof <= 0 {
		return errors.New("time of flight must be strictly positive")
	}
	return nil
}

// SolveSingleImpulse finds the single burn at t=0 which brings the chaser to
// the target position (and velocity, if matchVelocity) after tof seconds.
// A nil guess falls back to the Clohessy-Wiltshire guess.
func (s *RendezvousSolver) SolveSingleImpulse(chaserR, chaserV, targetR, targetV []float64, tof float64, matchVelocity bool, guess []float64) (RendezvousSolution, error) {
	if err := s.validate(chaserR, chaserV, targetR, targetV, tof); err != nil {
		return RendezvousSolution{}, err
	}
	if guess != nil && len(guess) != 3 {
		return RendezvousSolution{}, errors.New("Δv guess must be a 3x1 vector")
	}

	solution := RendezvousSolution{Status: "Max iterations reached"}

	targetFinalR, targetFinalV := PropagateState(targetR, targetV, tof, s.config.StepSize, s.force)

	dv := guess
	if dv == nil {
		dv = s.GenerateInitialGuess(chaserR, chaserV, targetR, tof)
	}
	if s.config.Verbose {
		s.logger.Log("level", "info", "state", "start", "guessΔv", norm(dv), "tof", tof)
	}

	for iter := 0; iter < s.config.MaxIterations; iter++ {
		solution.Iterations = iter + 1

		postBurnV := vecSum(chaserV, 1, dv)
		finalR, finalV, Φ := PropagateWithSTM(chaserR, postBurnV, tof, s.config.StepSize, s.force)

		residuals := rendezvousResiduals(finalR, finalV, targetFinalR, targetFinalV, matchVelocity)

		posErr := norm(residuals[:3])
		velErr := 0.0
		if matchVelocity {
			velErr = norm(residuals[3:])
		}
		solution.FinalPositionError = posErr
		solution.FinalVelocityError = velErr

		if s.config.Verbose {
			s.logger.Log("level", "info", "iter", iter, "posErr", posErr, "velErr", velErr, "Δv", norm(dv))
		}

		if posErr < s.config.PositionTol && (!matchVelocity || velErr < s.config.VelocityTol) {
			solution.Converged = true
			solution.Status = "Converged"
			break
		}

		J := extractJacobian(Φ, matchVelocity)
		correction := SolveCorrection(J, residuals, 0)

		α := 1.0
		if s.config.UseLineSearch {
			errCurr := norm2(residuals)
			for ls := 0; ls < 10; ls++ {
				dvTest := vecSum(dv, -α, correction)
				testV := vecSum(chaserV, 1, dvTest)
				testR, testVf, _ := PropagateWithSTM(chaserR, testV, tof, s.config.StepSize, s.force)
				resTest := rendezvousResiduals(testR, testVf, targetFinalR, targetFinalV, matchVelocity)
				if norm2(resTest) < errCurr {
					break
				}
				α *= s.config.LineSearchAlpha
			}
		}

		dv = vecSum(dv, -α, correction)
	}

	solution.Maneuvers = []Maneuver{{Epoch: 0, ΔV: dv}}
	solution.TotalΔV = norm(dv)
	if s.config.Verbose {
		s.logger.Log("level", "notice", "state", "done", "converged", solution.Converged, "iterations", solution.Iterations, "Δv", solution.TotalΔV)
	}
	return solution, nil
}

// SolveTwoImpulse first solves a position-only intercept, then appends the
// closed-form velocity matching burn at arrival.
func (s *RendezvousSolver) SolveTwoImpulse(chaserR, chaserV, targetR, targetV []float64, tof float64) (RendezvousSolution, error) {
	sol1, err := s.SolveSingleImpulse(chaserR, chaserV, targetR, targetV, tof, false, nil)
	if err != nil {
		return sol1, err
	}
	if !sol1.Converged {
		sol1.Status = "First burn failed to converge"
		return sol1, nil
	}

	postBurnV := vecSum(chaserV, 1, sol1.Maneuvers[0].ΔV)
	_, chaserFinalV := PropagateState(chaserR, postBurnV, tof, s.config.StepSize, s.force)
	_, targetFinalV := PropagateState(targetR, targetV, tof, s.config.StepSize, s.force)

	burn2 := vecSum(targetFinalV, -1, chaserFinalV)

	solution := RendezvousSolution{
		Converged:          true,
		Iterations:         sol1.Iterations,
		Maneuvers:          append(sol1.Maneuvers, Maneuver{Epoch: tof, ΔV: burn2}),
		TotalΔV:            norm(sol1.Maneuvers[0].ΔV) + norm(burn2),
		FinalPositionError: sol1.FinalPositionError,
		FinalVelocityError: 0, // exact match by construction
		Status:             "Converged (two-impulse)",
	}
	return solution, nil
}

// Propagate evaluates a candidate burn without solving: it applies Δv at
// t=0, propagates both craft for tof seconds and reports the terminal errors.
func (s *RendezvousSolver) Propagate(chaserR, chaserV, targetR, targetV, Δv []float64, tof float64) (RendezvousSolution, error) {
	if err := s.validate(chaserR, chaserV, targetR, targetV, tof); err != nil {
		return RendezvousSolution{}, err
	}
	if len(Δv) != 3 {
		return RendezvousSolution{}, errors.New("Δv must be a 3x1 vector")
	}
	postBurnV := vecSum(chaserV, 1, Δv)
	finalR, finalV := PropagateState(chaserR, postBurnV, tof, s.config.StepSize, s.force)
	targetFinalR, targetFinalV := PropagateState(targetR, targetV, tof, s.config.StepSize, s.force)
	return RendezvousSolution{
		Maneuvers:          []Maneuver{{Epoch: 0, ΔV: Δv}},
		TotalΔV:            norm(Δv),
		FinalPositionError: norm(vecSum(finalR, -1, targetFinalR)),
		FinalVelocityError: norm(vecSum(finalV, -1, targetFinalV)),
		Status:             "Propagation only (no optimization)",
	}, nil
}
