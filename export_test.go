package traj

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
)

func sampleTrajectory() []LaunchState {
	return []LaunchState{
		{R: []float64{Earth.Radius, 0, 0}, V: []float64{0, 0, 0}, Mass: 550000, Time: 0, Altitude: 0},
		{R: []float64{Earth.Radius + 1e3, 0, 0}, V: []float64{120, 10, 0}, Mass: 540000, Time: 10, Altitude: 1e3, DynamicPressure: 8500},
		{R: []float64{Earth.Radius + 5e3, 100, 0}, V: []float64{300, 40, 0}, Mass: 520000, Time: 25, Altitude: 5e3, StageIndex: 0, EnginesOn: true},
	}
}

func TestWriteTrajectoryCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTrajectoryCSV(&buf, sampleTrajectory()); err != nil {
		t.Fatalf("err %s", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected a header and 3 rows, got %d records", len(records))
	}
	if records[0][0] != "t" || records[0][len(records[0])-1] != "stage" {
		t.Fatalf("unexpected header %v", records[0])
	}
	for _, rec := range records[1:] {
		if len(rec) != len(records[0]) {
			t.Fatalf("ragged row %v", rec)
		}
	}
}

func TestWriteTrajectoryJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTrajectoryJSON(&buf, sampleTrajectory()); err != nil {
		t.Fatalf("err %s", err)
	}
	var samples []trajectorySample
	if err := json.Unmarshal(buf.Bytes(), &samples); err != nil {
		t.Fatalf("err %s", err)
	}
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	if samples[1].Time != 10 || samples[1].Altitude != 1e3 {
		t.Fatalf("sample mismatch: %+v", samples[1])
	}
	if !samples[2].EnginesOn {
		t.Fatal("engines flag lost in serialization")
	}
}
