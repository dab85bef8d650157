// Package environment outlines the interfaces needed to implement
// concrete vectorized environments for the training loop.
package environment

import (
	"gonum.org/v1/gonum/mat"
)

// EpisodeInfo records the outcome of one completed episode. The
// perceived return is the reward stream the agent was actually trained
// on: the sparse return plus the shaped return scaled by the current
// reward-shaping coefficient.
type EpisodeInfo struct {
	SparseReturn    float64
	ShapedReturn    float64
	PerceivedReturn float64
	Length          int
}

// VecEnv is a vectorized environment: a batch of environment instances
// stepped in lockstep. Implementations may simulate the instances in
// parallel internally, but Step and Reset present a synchronous,
// blocking interface.
//
// The reward-shaping coefficient and the self-play randomization ratio
// are mutable knobs written by the curriculum controllers once per
// logging-interval update and read by the environment at rollout time.
// Both are always in [0, 1].
type VecEnv interface {
	NumEnvs() int
	ObservationSize() int
	NumActions() int

	// Reset resets every environment instance and returns the initial
	// observations, one row per instance.
	Reset() *mat.Dense

	// Step applies one action per instance and returns the next
	// observations, the perceived rewards, the episode-done flags,
	// and an EpisodeInfo per instance whose episode just completed
	// (nil entries otherwise). Instances reset automatically when
	// their episode ends.
	Step(actions *mat.VecDense) (*mat.Dense, []float64, []bool,
		[]*EpisodeInfo, error)

	RewardShaping() float64
	SetRewardShaping(coef float64)

	SelfPlayRandomization() float64
	SetSelfPlayRandomization(ratio float64)
}

// Renderer is implemented by environments that can draw their current
// state to an image file. The training loop renders rollout frames at
// the configured visualization cadence when the environment supports
// it.
type Renderer interface {
	Render(path string) error
}
