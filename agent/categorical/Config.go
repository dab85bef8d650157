// Package categorical implements a feedforward actor-critic policy
// with a categorical action distribution, trained with a clipped
// policy-gradient objective.
package categorical

import (
	"fmt"
	"math"

	"github.com/cooprl/cooppo/agent"
	"github.com/cooprl/cooppo/initwfn"
	"github.com/cooprl/cooppo/network"
	"github.com/cooprl/cooppo/solver"
)

// Config implements a configuration of a categorical actor-critic
// policy. The policy head and value head are separate multi-layer
// perceptrons with the same hidden architecture.
type Config struct {
	// HiddenSizes, Biases, and Activations describe the hidden layers
	// of both the policy head and the value head. A final linear
	// layer is added to each head automatically.
	HiddenSizes []int
	Biases      []bool
	Activations []*network.Activation

	InitWFn *initwfn.InitWFn
	Solver  *solver.Solver

	// ValueCoef scales the value loss and EntropyCoef scales the
	// entropy bonus in the total loss.
	ValueCoef   float64
	EntropyCoef float64
}

// DefaultConfig returns a default Config for a categorical
// actor-critic policy
func DefaultConfig() Config {
	sol, err := solver.NewAdam(3e-4, 1e-5, 0.5)
	if err != nil {
		panic(fmt.Sprintf("defaultconfig: could not create solver: %v",
			err))
	}
	return Config{
		HiddenSizes: []int{64, 64},
		Biases:      []bool{true, true},
		Activations: []*network.Activation{network.TanH(), network.TanH()},
		InitWFn:     initwfn.NewGlorotN(math.Sqrt2),
		Solver:      sol,
		ValueCoef:   0.5,
		EntropyCoef: 0.01,
	}
}

// Validate returns an error describing the first illegal field of the
// Config, if any.
func (c Config) Validate() error {
	if len(c.HiddenSizes) == 0 {
		return fmt.Errorf("validate: policy must have at least one " +
			"hidden layer")
	}
	if len(c.HiddenSizes) != len(c.Biases) {
		return fmt.Errorf("validate: invalid number of biases\n\twant"+
			"(%v)\n\thave(%v)", len(c.HiddenSizes), len(c.Biases))
	}
	if len(c.HiddenSizes) != len(c.Activations) {
		return fmt.Errorf("validate: invalid number of activations\n\t"+
			"want(%v)\n\thave(%v)", len(c.HiddenSizes), len(c.Activations))
	}
	if c.InitWFn == nil {
		return fmt.Errorf("validate: no weight initializer given")
	}
	if c.Solver == nil {
		return fmt.Errorf("validate: no solver given")
	}
	if c.ValueCoef < 0 {
		return fmt.Errorf("validate: value coefficient cannot be "+
			"negative, got %v", c.ValueCoef)
	}
	if c.EntropyCoef < 0 {
		return fmt.Errorf("validate: entropy coefficient cannot be "+
			"negative, got %v", c.EntropyCoef)
	}
	return nil
}

// Builder returns an agent.Builder that constructs categorical
// actor-critic policies from the Config.
func Builder(c Config) agent.Builder {
	return func(obsDim, numActions, nenvs, trainBatch int,
		seed uint64) (agent.Policy, error) {
		return New(obsDim, numActions, nenvs, trainBatch, c, seed)
	}
}
