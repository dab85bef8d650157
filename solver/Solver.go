// Package solver implements serializable configurations of gorgonia
// solvers used to train the policy model.
package solver

import (
	"encoding/json"
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Type describes the gradient-based optimizer a Solver uses
type Type string

const (
	Adam    Type = "Adam"
	Vanilla Type = "Vanilla"
)

// Config represents a configuration of a gorgonia solver
type Config interface {
	// Create returns the gorgonia solver the Config describes
	Create() G.Solver

	// Type returns the type of solver the Config describes
	Type() Type

	// WithStepSize returns a copy of the Config with its step size
	// replaced. Gorgonia solvers cannot change their step size in
	// place, so a new rate means recreating the solver from the
	// adjusted Config; stateful solvers lose their accumulated
	// moments when recreated.
	WithStepSize(stepSize float64) Config
}

// Solver wraps a solver Config so that solvers can be marshalled into
// and unmarshalled from JSON configuration files.
type Solver struct {
	Config
}

// NewAdam returns a new Adam Solver. A clip of 0 disables gradient
// clipping.
func NewAdam(stepSize, epsilon, clip float64) (*Solver, error) {
	if stepSize <= 0 {
		return nil, fmt.Errorf("newadam: step size must be positive, "+
			"got %v", stepSize)
	}
	if epsilon <= 0 {
		return nil, fmt.Errorf("newadam: epsilon must be positive, "+
			"got %v", epsilon)
	}
	if clip < 0 {
		return nil, fmt.Errorf("newadam: clip cannot be negative, "+
			"got %v", clip)
	}
	return &Solver{AdamConfig{
		StepSize: stepSize,
		Epsilon:  epsilon,
		Clip:     clip,
	}}, nil
}

// NewVanilla returns a new vanilla gradient descent Solver
func NewVanilla(stepSize float64) (*Solver, error) {
	if stepSize <= 0 {
		return nil, fmt.Errorf("newvanilla: step size must be positive, "+
			"got %v", stepSize)
	}
	return &Solver{VanillaConfig{StepSize: stepSize}}, nil
}

// MarshalJSON implements the json.Marshaler interface
func (s *Solver) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   Type
		Config Config
	}{
		Type:   s.Type(),
		Config: s.Config,
	})
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (s *Solver) UnmarshalJSON(data []byte) error {
	var wrapper struct {
		Type   Type
		Config json.RawMessage
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return fmt.Errorf("unmarshaljson: could not unmarshal solver: %v",
			err)
	}

	switch wrapper.Type {
	case Adam:
		var config AdamConfig
		if err := json.Unmarshal(wrapper.Config, &config); err != nil {
			return fmt.Errorf("unmarshaljson: could not unmarshal Adam "+
				"config: %v", err)
		}
		s.Config = config

	case Vanilla:
		var config VanillaConfig
		if err := json.Unmarshal(wrapper.Config, &config); err != nil {
			return fmt.Errorf("unmarshaljson: could not unmarshal "+
				"vanilla config: %v", err)
		}
		s.Config = config

	default:
		return fmt.Errorf("unmarshaljson: illegal solver type %v",
			wrapper.Type)
	}
	return nil
}

// AdamConfig implements a configuration of the Adam solver
type AdamConfig struct {
	StepSize float64
	Epsilon  float64

	// Clip is the maximum global gradient norm. A value of 0 disables
	// gradient clipping.
	Clip float64
}

// Create returns the Adam solver the AdamConfig describes
func (a AdamConfig) Create() G.Solver {
	opts := []G.SolverOpt{
		G.WithLearnRate(a.StepSize),
		G.WithEps(a.Epsilon),
	}
	if a.Clip > 0 {
		opts = append(opts, G.WithClip(a.Clip))
	}
	return G.NewAdamSolver(opts...)
}

// Type returns the type of solver the AdamConfig describes
func (a AdamConfig) Type() Type {
	return Adam
}

// WithStepSize returns a copy of the AdamConfig with a new step size
func (a AdamConfig) WithStepSize(stepSize float64) Config {
	a.StepSize = stepSize
	return a
}

// VanillaConfig implements a configuration of the vanilla gradient
// descent solver
type VanillaConfig struct {
	StepSize float64
}

// Create returns the vanilla solver the VanillaConfig describes
func (v VanillaConfig) Create() G.Solver {
	return G.NewVanillaSolver(G.WithLearnRate(v.StepSize))
}

// Type returns the type of solver the VanillaConfig describes
func (v VanillaConfig) Type() Type {
	return Vanilla
}

// WithStepSize returns a copy of the VanillaConfig with a new step
// size
func (v VanillaConfig) WithStepSize(stepSize float64) Config {
	v.StepSize = stepSize
	return v
}
