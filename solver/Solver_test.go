package solver

import (
	"encoding/json"
	"testing"
)

func TestNewAdamRejectsIllegalParameters(t *testing.T) {
	if _, err := NewAdam(0, 1e-5, 0.5); err == nil {
		t.Error("zero step size accepted")
	}
	if _, err := NewAdam(1e-3, 0, 0.5); err == nil {
		t.Error("zero epsilon accepted")
	}
	if _, err := NewAdam(1e-3, 1e-5, -1); err == nil {
		t.Error("negative clip accepted")
	}
	if _, err := NewAdam(1e-3, 1e-5, 0); err != nil {
		t.Errorf("disabled clipping rejected: %v", err)
	}
}

func TestWithStepSizeCopies(t *testing.T) {
	config := AdamConfig{StepSize: 1e-3, Epsilon: 1e-5, Clip: 0.5}
	adjusted := config.WithStepSize(5e-4).(AdamConfig)

	if adjusted.StepSize != 5e-4 {
		t.Errorf("adjusted step size: got %v, want 5e-4",
			adjusted.StepSize)
	}
	if config.StepSize != 1e-3 {
		t.Errorf("original step size mutated: got %v", config.StepSize)
	}
	if adjusted.Epsilon != config.Epsilon || adjusted.Clip != config.Clip {
		t.Error("adjusted config lost fields")
	}
}

func TestSolverJSONRoundTrip(t *testing.T) {
	original, err := NewAdam(1e-3, 1e-5, 0.5)
	if err != nil {
		t.Fatalf("could not create solver: %v", err)
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("could not marshal solver: %v", err)
	}

	restored := &Solver{}
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatalf("could not unmarshal solver: %v", err)
	}

	if restored.Type() != Adam {
		t.Errorf("restored type: got %v, want %v", restored.Type(), Adam)
	}
	if restored.Config.(AdamConfig) != original.Config.(AdamConfig) {
		t.Errorf("restored config: got %+v, want %+v", restored.Config,
			original.Config)
	}
}
