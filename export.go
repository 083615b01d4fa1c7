package traj

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// trajectorySample is the serializable form of one propagation state.
type trajectorySample struct {
	Time            float64   `json:"t"`
	Position        []float64 `json:"position"`
	Velocity        []float64 `json:"velocity"`
	Mass            float64   `json:"mass"`
	Altitude        float64   `json:"altitude"`
	DynamicPressure float64   `json:"dynamicPressure"`
	StageIndex      int       `json:"stage"`
	EnginesOn       bool      `json:"enginesOn"`
}

func sampleOf(s LaunchState) trajectorySample {
	return trajectorySample{
		Time:            s.Time,
		Position:        s.R,
		Velocity:        s.V,
		Mass:            s.Mass,
		Altitude:        s.Altitude,
		DynamicPressure: s.DynamicPressure,
		StageIndex:      s.StageIndex,
		EnginesOn:       s.EnginesOn,
	}
}

// WriteTrajectoryCSV streams a trajectory as CSV with a header row.
func WriteTrajectoryCSV(w io.Writer, trajectory []LaunchState) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"t", "x", "y", "z", "vx", "vy", "vz", "mass", "altitude", "q", "stage"}); err != nil {
		return err
	}
	for _, s := range trajectory {
		record := []string{
			fmt.Sprintf("%f", s.Time),
			fmt.Sprintf("%f", s.R[0]), fmt.Sprintf("%f", s.R[1]), fmt.Sprintf("%f", s.R[2]),
			fmt.Sprintf("%f", s.V[0]), fmt.Sprintf("%f", s.V[1]), fmt.Sprintf("%f", s.V[2]),
			fmt.Sprintf("%f", s.Mass),
			fmt.Sprintf("%f", s.Altitude),
			fmt.Sprintf("%f", s.DynamicPressure),
			fmt.Sprintf("%d", s.StageIndex),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTrajectoryJSON streams a trajectory as a JSON array of samples.
func WriteTrajectoryJSON(w io.Writer, trajectory []LaunchState) error {
	samples := make([]trajectorySample, len(trajectory))
	for i, s := range trajectory {
		samples[i] = sampleOf(s)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(samples)
}

// ExportTrajectory writes a trajectory to the configured output directory,
// picking the format from the file extension (.csv or .json).
func ExportTrajectory(name string, trajectory []LaunchState) error {
	path := filepath.Join(OutputDir(), name)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	switch filepath.Ext(name) {
	case ".csv":
		return WriteTrajectoryCSV(f, trajectory)
	case ".json":
		return WriteTrajectoryJSON(f, trajectory)
	default:
		return fmt.Errorf("unsupported trajectory format %q", filepath.Ext(name))
	}
}
