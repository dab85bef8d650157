// Package ppo implements the proximal policy optimization training
// loop following https://arxiv.org/abs/1707.06347: fixed-horizon
// rollout collection with GAE, epochs of clipped policy-gradient
// updates on shuffled minibatches, curriculum control of reward
// shaping and self-play, model selection, and early stopping.
package ppo

import (
	"fmt"

	"github.com/cooprl/cooppo/curriculum"
	"github.com/cooprl/cooppo/schedule"
	"github.com/cooprl/cooppo/selection"
)

// Config implements a configuration of the PPO training loop.
type Config struct {
	// TotalTimesteps is the environment step budget of the run. The
	// number of updates is TotalTimesteps / (nenvs * NSteps).
	TotalTimesteps int

	// NSteps is the rollout horizon per environment instance
	NSteps int

	// NMinibatches is the number of minibatches each rollout batch is
	// split into, and NOptEpochs the number of optimization passes
	// over the batch per update.
	NMinibatches int
	NOptEpochs   int

	// Gamma is the discount factor and Lambda the GAE(λ) parameter
	Gamma  float64
	Lambda float64

	// LearningRate and ClipRange are evaluated once per update at the
	// fraction of the update budget remaining.
	LearningRate schedule.Schedule
	ClipRange    schedule.Schedule

	// Recurrent selects environment-contiguous minibatching for
	// policies that carry hidden state across steps.
	Recurrent bool

	// LogInterval is the number of updates between metric records.
	LogInterval int

	// Verbose enables per-update console output
	Verbose bool

	Seed uint64

	// RewardShaping anneals the shaped-reward coefficient and SelfPlay
	// anneals the self-play randomization ratio of the environment.
	RewardShaping *curriculum.RewardShaping
	SelfPlay      curriculum.SelfPlay

	Run RunConfig
}

// RunConfig groups the bookkeeping settings of a run: where models are
// saved, which best-model checkpoints are maintained, and when
// validation runs and early stopping engage.
type RunConfig struct {
	// SaveDir is the directory all checkpoints and run records are
	// written under. An empty SaveDir disables all saving.
	SaveDir string

	// LoadPath, when set, restores the policy from a previous
	// checkpoint before training starts.
	LoadPath string

	// Checkpoints lists the best-model checkpoints to maintain
	Checkpoints []selection.CheckpointKind

	// CheckpointInterval is the cadence, in updates, of periodic
	// numbered checkpoints. 0 disables them.
	CheckpointInterval int

	// ValidationFrequency is the cadence, in updates, of held-out
	// validation runs. 0 disables validation.
	ValidationFrequency int

	// ParallelValidation runs the held-out partner evaluations
	// concurrently
	ParallelValidation bool

	// StagnantUpdatesToStop is the number of consecutive validation
	// evaluations without significant improvement after which the run
	// stops early. 0 disables stagnation stopping.
	StagnantUpdatesToStop int

	// EarlyStopping tracks the model with the best training reward
	// per step and reloads it as the final model when the run ends.
	EarlyStopping bool

	// VizInterval is the cadence, in updates, of rendered environment
	// frames, honored only when the environment can render itself.
	// 0 disables rendering.
	VizInterval int

	// PartnerScripted indicates the training target is play with a
	// fixed, non-learning partner. While self-play randomization is
	// still active in that setting, training rewards do not reflect
	// the intended partner and best-train checkpoints are withheld.
	PartnerScripted bool
}

// DefaultConfig returns a Config with the standard PPO
// hyperparameters.
func DefaultConfig() Config {
	return Config{
		TotalTimesteps: 1_000_000,
		NSteps:         128,
		NMinibatches:   4,
		NOptEpochs:     4,
		Gamma:          0.99,
		Lambda:         0.95,
		LearningRate:   schedule.Constant(3e-4),
		ClipRange:      schedule.Constant(0.2),
		LogInterval:    1,
		RewardShaping:  mustRewardShaping(),
		SelfPlay:       curriculum.DisabledSelfPlay(),
	}
}

func mustRewardShaping() *curriculum.RewardShaping {
	r, err := curriculum.NewRewardShaping(0, 0)
	if err != nil {
		panic(fmt.Sprintf("defaultconfig: %v", err))
	}
	return r
}

// Validate returns an error describing the first illegal field of the
// Config for a run on nenvs environment instances. It must pass before
// the loop touches the environment, so that partition errors surface
// as configuration errors rather than mid-run failures.
func (c Config) Validate(nenvs int) error {
	if nenvs <= 0 {
		return fmt.Errorf("validate: need at least 1 environment "+
			"instance, have %d", nenvs)
	}
	if c.NSteps <= 0 {
		return fmt.Errorf("validate: rollout horizon must be positive, "+
			"got %d", c.NSteps)
	}

	nbatch := nenvs * c.NSteps
	if c.TotalTimesteps < nbatch {
		return fmt.Errorf("validate: timestep budget %d is below one "+
			"batch of %d steps", c.TotalTimesteps, nbatch)
	}
	if c.NMinibatches < 1 {
		return fmt.Errorf("validate: need at least 1 minibatch, have %d",
			c.NMinibatches)
	}
	if nbatch%c.NMinibatches != 0 {
		return fmt.Errorf("validate: have %d total batch size and want "+
			"%d minibatches, can't split evenly", nbatch, c.NMinibatches)
	}
	if c.Recurrent && nenvs%c.NMinibatches != 0 {
		return fmt.Errorf("validate: recurrent minibatching requires "+
			"nminibatches (%d) to divide nenvs (%d)", c.NMinibatches, nenvs)
	}
	if c.NOptEpochs <= 0 {
		return fmt.Errorf("validate: need at least 1 optimization "+
			"epoch, have %d", c.NOptEpochs)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: discount factor must be in [0, 1], "+
			"got %v", c.Gamma)
	}
	if c.Lambda < 0 || c.Lambda > 1 {
		return fmt.Errorf("validate: λ must be in [0, 1], got %v",
			c.Lambda)
	}
	if c.LearningRate == nil || c.ClipRange == nil {
		return fmt.Errorf("validate: learning rate and clipping range " +
			"schedules cannot be nil")
	}
	if c.LogInterval <= 0 {
		return fmt.Errorf("validate: logging interval must be positive, "+
			"got %d", c.LogInterval)
	}
	if c.RewardShaping == nil {
		return fmt.Errorf("validate: no reward shaping curriculum given")
	}
	if c.Run.CheckpointInterval < 0 || c.Run.ValidationFrequency < 0 ||
		c.Run.StagnantUpdatesToStop < 0 || c.Run.VizInterval < 0 {
		return fmt.Errorf("validate: run cadences cannot be negative")
	}
	return nil
}

// saves reports whether the run maintains the given best-model
// checkpoint.
func (r RunConfig) saves(kind selection.CheckpointKind) bool {
	for _, k := range r.Checkpoints {
		if k == kind {
			return true
		}
	}
	return false
}
