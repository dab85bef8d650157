// Package rollout implements fixed-horizon experience collection with
// generalized advantage estimation - GAE(λ) - following
// https://arxiv.org/abs/1506.02438.
package rollout

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/cooprl/cooppo/agent"
	"github.com/cooprl/cooppo/environment"
)

// Runner drives a vectorized environment for a fixed horizon with the
// current policy and assembles the resulting transitions into a
// flattened training batch with GAE advantages and returns.
//
// The Runner owns the environment's episode position between rollouts:
// observations, done flags, and recurrent state persist from the end
// of one Run call to the start of the next, so consecutive rollouts
// continue episodes rather than restarting them.
type Runner struct {
	env    environment.VecEnv
	policy agent.Policy
	nsteps int
	gamma  float64 // Discount factor ℽ
	lambda float64 // λ for GAE(λ) calculation

	obs   *mat.Dense
	dones []bool
	state agent.RecurrentState
}

// NewRunner creates a Runner collecting nsteps-long rollouts. The
// environment is reset once here; afterwards individual instances
// reset themselves as their episodes end.
func NewRunner(env environment.VecEnv, policy agent.Policy, nsteps int,
	gamma, lambda float64) *Runner {
	return &Runner{
		env:    env,
		policy: policy,
		nsteps: nsteps,
		gamma:  gamma,
		lambda: lambda,
		obs:    env.Reset(),
		dones:  make([]bool, env.NumEnvs()),
		state:  agent.NonRecurrent{},
	}
}

// Run collects one rollout of nsteps * nenvs transitions and returns
// the flattened batch together with the info records of every episode
// that completed during the rollout.
//
// The batch is laid out env-major: environment e's transitions occupy
// the contiguous index range [e*nsteps, (e+1)*nsteps). The recurrent
// snapshot stored in the batch is the state at the start of the
// rollout, which is the state a recurrent policy needs to replay any
// per-environment time window.
func (r *Runner) Run() (agent.Batch, []*environment.EpisodeInfo, error) {
	nenvs := r.env.NumEnvs()
	obsDim := r.env.ObservationSize()
	initialState := r.state

	stepObs := make([]*mat.Dense, r.nsteps)
	actions := make([][]float64, r.nsteps)
	values := make([][]float64, r.nsteps)
	logProbs := make([][]float64, r.nsteps)
	rewards := make([][]float64, r.nsteps)
	doneBefore := make([][]bool, r.nsteps)
	doneAfter := make([][]bool, r.nsteps)
	var infos []*environment.EpisodeInfo

	for t := 0; t < r.nsteps; t++ {
		step, err := r.policy.Act(r.obs, r.state, r.dones)
		if err != nil {
			return agent.Batch{}, nil, fmt.Errorf("run: could not act "+
				"at step %d: %v", t, err)
		}

		stepObs[t] = mat.DenseCopyOf(r.obs)
		actions[t] = copyVec(step.Actions)
		values[t] = copyVec(step.Values)
		logProbs[t] = copyVec(step.LogProbs)
		doneBefore[t] = copyBools(r.dones)

		nextObs, rews, dones, stepInfos, err := r.env.Step(step.Actions)
		if err != nil {
			return agent.Batch{}, nil, fmt.Errorf("run: could not step "+
				"environment at step %d: %v", t, err)
		}

		rewards[t] = append([]float64(nil), rews...)
		doneAfter[t] = copyBools(dones)
		for _, info := range stepInfos {
			if info != nil {
				infos = append(infos, info)
			}
		}

		r.obs = nextObs
		r.dones = dones
		r.state = step.State
	}

	// Bootstrap with a value estimate of the observation after the
	// horizon so that advantages account for rewards beyond the
	// rollout cutoff.
	last, err := r.policy.Act(r.obs, r.state, r.dones)
	if err != nil {
		return agent.Batch{}, nil, fmt.Errorf("run: could not bootstrap "+
			"final value: %v", err)
	}
	lastValues := copyVec(last.Values)

	advantages := r.estimateAdvantages(rewards, values, doneAfter,
		lastValues, nenvs)

	batch := r.flatten(stepObs, actions, values, logProbs, doneBefore,
		advantages, nenvs, obsDim)
	batch.State = initialState
	return batch, infos, nil
}

// estimateAdvantages runs the GAE(λ) backward recursion over the
// rollout. The (1 - done) mask zeroes cross-episode propagation
// whenever an environment instance reset mid-horizon.
func (r *Runner) estimateAdvantages(rewards, values [][]float64,
	doneAfter [][]bool, lastValues []float64, nenvs int) [][]float64 {
	advantages := make([][]float64, r.nsteps)
	for t := range advantages {
		advantages[t] = make([]float64, nenvs)
	}

	lastGAE := make([]float64, nenvs)
	for t := r.nsteps - 1; t >= 0; t-- {
		for e := 0; e < nenvs; e++ {
			nextNonTerminal := 1.0
			if doneAfter[t][e] {
				nextNonTerminal = 0.0
			}

			var nextValue float64
			if t == r.nsteps-1 {
				nextValue = lastValues[e]
			} else {
				nextValue = values[t+1][e]
			}

			delta := rewards[t][e] +
				r.gamma*nextValue*nextNonTerminal - values[t][e]
			lastGAE[e] = delta +
				r.gamma*r.lambda*nextNonTerminal*lastGAE[e]
			advantages[t][e] = lastGAE[e]
		}
	}
	return advantages
}

// flatten lays the per-step arrays out env-major and computes
// returns = advantages + values.
func (r *Runner) flatten(stepObs []*mat.Dense, actions, values,
	logProbs [][]float64, doneBefore [][]bool, advantages [][]float64,
	nenvs, obsDim int) agent.Batch {
	nbatch := nenvs * r.nsteps

	obs := mat.NewDense(nbatch, obsDim, nil)
	flatActions := make([]float64, nbatch)
	flatValues := make([]float64, nbatch)
	flatLogProbs := make([]float64, nbatch)
	flatAdvantages := make([]float64, nbatch)
	masks := make([]bool, nbatch)

	for e := 0; e < nenvs; e++ {
		for t := 0; t < r.nsteps; t++ {
			i := e*r.nsteps + t
			obs.SetRow(i, stepObs[t].RawRowView(e))
			flatActions[i] = actions[t][e]
			flatValues[i] = values[t][e]
			flatLogProbs[i] = logProbs[t][e]
			flatAdvantages[i] = advantages[t][e]
			masks[i] = doneBefore[t][e]
		}
	}

	returns := make([]float64, nbatch)
	floats.AddTo(returns, flatAdvantages, flatValues)

	return agent.Batch{
		Obs:      obs,
		Returns:  returns,
		Actions:  flatActions,
		Values:   flatValues,
		LogProbs: flatLogProbs,
		Masks:    masks,
	}
}

func copyVec(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	copy(out, v.RawVector().Data)
	return out
}

func copyBools(b []bool) []bool {
	out := make([]bool, len(b))
	copy(out, b)
	return out
}
