// Package agent defines the policy model contract consumed by the
// training loop.
//
// A Policy is composed of an acting half, which maps observations to
// actions, value estimates, and log-probabilities, and a training
// half, which performs one clipped policy-gradient update on a
// minibatch. Both halves must share weights so that changes made by
// Train are reflected in the actions that Act selects.
package agent

import (
	"gonum.org/v1/gonum/mat"
)

// RecurrentState carries the hidden state of a recurrent policy across
// environment steps. Feedforward policies use NonRecurrent; recurrent
// policies use Recurrent with one row of hidden state per environment.
//
// RecurrentState is a closed sum: only NonRecurrent and Recurrent
// satisfy it, so call sites can switch exhaustively instead of
// null-checking.
type RecurrentState interface {
	isRecurrentState()
}

// NonRecurrent is the RecurrentState of a feedforward policy.
type NonRecurrent struct{}

func (NonRecurrent) isRecurrentState() {}

// Recurrent holds the hidden state of a recurrent policy. States has
// one row per environment in the vectorized environment.
type Recurrent struct {
	States *mat.Dense
}

func (Recurrent) isRecurrentState() {}

// Step is the result of acting in every environment of a vectorized
// environment at a single timestep.
type Step struct {
	// Actions holds one discrete action index per environment.
	Actions *mat.VecDense

	// Values holds the value estimate of each environment's current
	// observation.
	Values *mat.VecDense

	// LogProbs holds the log-probability of each selected action.
	LogProbs *mat.VecDense

	// State is the recurrent state after acting, or NonRecurrent.
	State RecurrentState
}

// Batch is a flattened rollout batch or minibatch. All slices are
// indexed identically and laid out env-major: the transitions of
// environment e occupy indices [e*nsteps, (e+1)*nsteps), so every
// per-environment time sequence is contiguous.
type Batch struct {
	// Obs has one row per transition.
	Obs *mat.Dense

	Returns  []float64
	Actions  []float64
	Values   []float64
	LogProbs []float64

	// Masks holds the episode-done flag observed at each transition.
	// Feedforward policies ignore it; recurrent policies use it to
	// reset hidden state inside the batch.
	Masks []bool

	// State is the recurrent snapshot taken at the start of the time
	// window covered by this batch, or NonRecurrent.
	State RecurrentState
}

// Size returns the number of transitions in the batch.
func (b Batch) Size() int {
	r, _ := b.Obs.Dims()
	return r
}

// Policy is the opaque policy model driven by the training loop.
type Policy interface {
	// Act selects one action per environment given the current
	// observations (one row per environment), the recurrent state,
	// and the episode-done flags from the previous step.
	Act(obs *mat.Dense, state RecurrentState, dones []bool) (Step, error)

	// Train performs one PPO update on a minibatch at the given
	// learning rate and clipping range, returning one scalar per
	// loss component, ordered as LossNames.
	Train(lr, clipRange float64, b Batch) ([]float64, error)

	// LossNames names the loss components returned by Train.
	LossNames() []string

	// Save persists the model weights at the given path.
	Save(path string) error

	// Load restores model weights previously written by Save.
	Load(path string) error
}

// Builder constructs a Policy for a vectorized environment.
// The acting half must accept batches of nenvs observations and the
// training half batches of trainBatch observations.
type Builder func(obsDim, numActions, nenvs, trainBatch int,
	seed uint64) (Policy, error)
