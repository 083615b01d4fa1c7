package main

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/orbitalarena/traj"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/spf13/cobra"
)

var (
	// rendezvous flags
	chaserAlt float64
	targetAlt float64
	leadAngle float64
	tof       float64
	twoBurn   bool
	// launch flags
	site      string
	targetSMA float64
	targetEcc float64
	targetInc float64
	epoch     string
	// shared
	verbose    bool
	plotAscii  bool
	exportName string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "traj",
		Short: "trajectory differential-correction toolkit",
	}
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "per-iteration solver logging")

	rdvCmd := &cobra.Command{
		Use:   "rendezvous",
		Short: "solve an impulsive rendezvous between two circular orbits",
		RunE:  runRendezvous,
	}
	rdvCmd.Flags().Float64Var(&chaserAlt, "chaser-alt", 400e3, "chaser altitude [m]")
	rdvCmd.Flags().Float64Var(&targetAlt, "target-alt", 400e3, "target altitude [m]")
	rdvCmd.Flags().Float64Var(&leadAngle, "lead", 0.5, "target lead angle [deg]")
	rdvCmd.Flags().Float64Var(&tof, "tof", 2700, "time of flight [s]")
	rdvCmd.Flags().BoolVar(&twoBurn, "two-impulse", false, "add the velocity matching burn")

	launchCmd := &cobra.Command{
		Use:   "launch",
		Short: "solve a launch-to-orbit ascent",
		RunE:  runLaunch,
	}
	launchCmd.Flags().StringVar(&site, "site", "cape", "launch site (cape|vandenberg)")
	launchCmd.Flags().Float64Var(&targetSMA, "sma", 6778137, "target semi major axis [m]")
	launchCmd.Flags().Float64Var(&targetEcc, "ecc", 0.001, "target eccentricity")
	launchCmd.Flags().Float64Var(&targetInc, "inc", 28.6, "target inclination [deg]")
	launchCmd.Flags().StringVar(&epoch, "epoch", "2026-03-01T12:00:00Z", "launch epoch (RFC 3339)")
	launchCmd.Flags().BoolVar(&plotAscii, "plot", false, "ascii altitude profile")
	launchCmd.Flags().StringVar(&exportName, "export", "", "trajectory export file (.csv or .json)")

	propCmd := &cobra.Command{
		Use:   "propagate",
		Short: "propagate the default vehicle open loop and report the orbit",
		RunE:  runPropagate,
	}
	propCmd.Flags().StringVar(&site, "site", "cape", "launch site (cape|vandenberg)")
	propCmd.Flags().StringVar(&epoch, "epoch", "2026-03-01T12:00:00Z", "launch epoch (RFC 3339)")
	propCmd.Flags().BoolVar(&plotAscii, "plot", false, "ascii altitude profile")

	rootCmd.AddCommand(rdvCmd, launchCmd, propCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runRendezvous(cmd *cobra.Command, args []string) error {
	chaser := traj.NewOrbitFromOE(traj.Earth.Radius+chaserAlt, 0, 0.1, 0, 0, 0, traj.Earth)
	target := traj.NewOrbitFromOE(traj.Earth.Radius+targetAlt, 0, 0.1, 0, 0, leadAngle, traj.Earth)

	config := traj.ConfiguredRendezvous()
	config.Verbose = verbose
	solver := traj.NewRendezvousSolver(traj.TwoBodyJ2{Body: traj.Earth, IncludeJ2: true}, config)

	var solution traj.RendezvousSolution
	var err error
	if twoBurn {
		solution, err = solver.SolveTwoImpulse(chaser.R(), chaser.V(), target.R(), target.V(), tof)
	} else {
		solution, err = solver.SolveSingleImpulse(chaser.R(), chaser.V(), target.R(), target.V(), tof, false, nil)
	}
	if err != nil {
		return err
	}

	fmt.Printf("status: %s after %d iterations\n", solution.Status, solution.Iterations)
	for i, m := range solution.Maneuvers {
		fmt.Printf("burn %d @ t=%.0fs: Δv = [%.3f %.3f %.3f] m/s (%.3f m/s)\n",
			i+1, m.Epoch, m.ΔV[0], m.ΔV[1], m.ΔV[2], vnorm(m.ΔV))
	}
	fmt.Printf("total Δv: %.3f m/s, final position error: %.1f m\n",
		solution.TotalΔV, solution.FinalPositionError)
	return nil
}

func runLaunch(cmd *cobra.Command, args []string) error {
	solver, err := newSolver()
	if err != nil {
		return err
	}

	target := traj.NewOrbitInsertionTarget(
		traj.NewOrbitFromOE(targetSMA, targetEcc, targetInc, 0, 0, 0, traj.Earth))

	solution, err := solver.Solve(target, nil)
	if err != nil {
		return err
	}

	fmt.Printf("status: %s (|r|=%.3g after %d iterations)\n",
		solution.Status, solution.ResidualNorm, solution.Iterations)
	fmt.Printf("final orbit: %s\n", solution.FinalElements)
	fmt.Printf("staging at t=%.1fs, burnout at t=%.1fs, Δv=%.0f m/s\n",
		solution.StageSeparationTime, solution.BurnoutTime, solution.TotalΔV)

	if plotAscii {
		plotAltitude(solution.Trajectory, "altitude profile [km]")
	}
	if exportName != "" {
		if err := traj.ExportTrajectory(exportName, solution.Trajectory); err != nil {
			return err
		}
		fmt.Printf("trajectory written to %s\n", exportName)
	}
	return nil
}

func runPropagate(cmd *cobra.Command, args []string) error {
	solver, err := newSolver()
	if err != nil {
		return err
	}

	target := traj.NewOrbitInsertionTarget(
		traj.NewOrbitFromOE(traj.Earth.Radius+400e3, 0.001, 28.6, 0, 0, 0, traj.Earth))

	guess := solver.GenerateInitialGuess(target)
	solution, err := solver.Propagate(guess, target)
	if err != nil {
		return err
	}

	fmt.Printf("open-loop final state: alt=%.1f km, mass=%.0f kg\n",
		solution.FinalState.Altitude/1000, solution.FinalState.Mass)
	fmt.Printf("orbit: %s\n", solution.FinalElements)

	if plotAscii {
		plotAltitude(solution.Trajectory, "open-loop altitude [km]")
	}
	return nil
}

func newSolver() (*traj.LaunchSolver, error) {
	launchSite := traj.CapeCanaveral()
	if site == "vandenberg" {
		launchSite = traj.Vandenberg()
	}

	epochTime, err := time.Parse(time.RFC3339, epoch)
	if err != nil {
		return nil, fmt.Errorf("bad epoch: %v", err)
	}

	config := traj.ConfiguredLaunch()
	config.Verbose = verbose
	return traj.NewLaunchSolver(defaultVehicle(), launchSite, julian.TimeToJD(epochTime), config)
}

// defaultVehicle is a generic two-stage medium-lift launcher.
func defaultVehicle() traj.Vehicle {
	return traj.Vehicle{
		Stages: []traj.Stage{
			{DryMass: 22000, PropellantMass: 410000, Thrust: 7600e3, IspSL: 282, IspVac: 311},
			{DryMass: 4000, PropellantMass: 107000, Thrust: 934e3, IspSL: 300, IspVac: 348},
		},
		PayloadMass:     8000,
		DragCoefficient: 0.3,
		ReferenceArea:   10.5,
	}
}

func plotAltitude(trajectory []traj.LaunchState, caption string) {
	if len(trajectory) == 0 {
		return
	}
	// Decimate to the plot width.
	data := make([]float64, 0, 160)
	stride := len(trajectory)/160 + 1
	for i := 0; i < len(trajectory); i += stride {
		data = append(data, trajectory[i].Altitude/1000)
	}
	graph := asciigraph.Plot(data,
		asciigraph.Height(15),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	)
	fmt.Println(graph)
}

func vnorm(v []float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}
