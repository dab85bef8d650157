package ppo

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/cooprl/cooppo/agent"
	"github.com/cooprl/cooppo/environment"
)

// Validator evaluates a policy on held-out games and returns the mean
// sparse reward achieved.
type Validator interface {
	Validate(policy agent.Policy) (float64, error)
}

// CloneFunc constructs an independent copy of a policy from weights
// saved at path. Parallel validation needs one policy instance per
// goroutine because a policy's computational graph is not safe for
// concurrent use.
type CloneFunc func(path string) (agent.Policy, error)

// PopulationValidator evaluates a policy against a population of
// held-out partners, one vectorized environment per partner, and
// averages the sparse reward over all completed episodes.
type PopulationValidator struct {
	envs     []environment.VecEnv
	episodes int
	parallel bool
	clone    CloneFunc
}

// NewPopulationValidator returns a PopulationValidator collecting
// episodes completed episodes per partner environment. The clone
// function is required in parallel mode and ignored otherwise.
func NewPopulationValidator(envs []environment.VecEnv, episodes int,
	parallel bool, clone CloneFunc) (*PopulationValidator, error) {
	if len(envs) == 0 {
		return nil, fmt.Errorf("newpopulationvalidator: need at least " +
			"1 held-out environment")
	}
	if episodes <= 0 {
		return nil, fmt.Errorf("newpopulationvalidator: episodes must "+
			"be positive, got %d", episodes)
	}
	if parallel && clone == nil {
		return nil, fmt.Errorf("newpopulationvalidator: parallel " +
			"validation requires a clone function")
	}
	return &PopulationValidator{
		envs:     envs,
		episodes: episodes,
		parallel: parallel,
		clone:    clone,
	}, nil
}

// Validate evaluates the policy against every held-out partner and
// returns the mean sparse reward per episode.
func (v *PopulationValidator) Validate(policy agent.Policy) (float64,
	error) {
	if v.parallel {
		return v.validateParallel(policy)
	}

	var rewards []float64
	for i, env := range v.envs {
		partnerRewards, err := rolloutEpisodes(env, policy, v.episodes)
		if err != nil {
			return 0, fmt.Errorf("validate: partner %d: %v", i, err)
		}
		rewards = append(rewards, partnerRewards...)
	}
	return floats.Sum(rewards) / float64(len(rewards)), nil
}

// validateParallel evaluates every held-out partner concurrently. The
// policy's weights are saved once and each goroutine works with its
// own clone.
func (v *PopulationValidator) validateParallel(policy agent.Policy) (
	float64, error) {
	dir, err := os.MkdirTemp("", "validation")
	if err != nil {
		return 0, fmt.Errorf("validate: could not create staging "+
			"directory: %v", err)
	}
	defer os.RemoveAll(dir)

	weights := filepath.Join(dir, "weights")
	if err := policy.Save(weights); err != nil {
		return 0, fmt.Errorf("validate: could not stage weights: %v", err)
	}

	rewards := make([][]float64, len(v.envs))
	errs := make([]error, len(v.envs))

	var wg sync.WaitGroup
	for i, env := range v.envs {
		wg.Add(1)
		go func(i int, env environment.VecEnv) {
			defer wg.Done()

			clone, err := v.clone(weights)
			if err != nil {
				errs[i] = fmt.Errorf("could not clone policy: %v", err)
				return
			}
			rewards[i], errs[i] = rolloutEpisodes(env, clone, v.episodes)
		}(i, env)
	}
	wg.Wait()

	var all []float64
	for i := range v.envs {
		if errs[i] != nil {
			return 0, fmt.Errorf("validate: partner %d: %v", i, errs[i])
		}
		all = append(all, rewards[i]...)
	}
	return floats.Sum(all) / float64(len(all)), nil
}

// rolloutEpisodes plays the policy in env until at least episodes
// episodes complete and returns their sparse returns.
func rolloutEpisodes(env environment.VecEnv, policy agent.Policy,
	episodes int) ([]float64, error) {
	obs := env.Reset()
	dones := make([]bool, env.NumEnvs())
	state := agent.RecurrentState(agent.NonRecurrent{})

	var rewards []float64
	for len(rewards) < episodes {
		step, err := policy.Act(obs, state, dones)
		if err != nil {
			return nil, fmt.Errorf("rolloutepisodes: could not act: %v",
				err)
		}

		nextObs, _, nextDones, infos, err := env.Step(step.Actions)
		if err != nil {
			return nil, fmt.Errorf("rolloutepisodes: could not step "+
				"environment: %v", err)
		}

		for _, info := range infos {
			if info != nil {
				rewards = append(rewards, info.SparseReturn)
			}
		}

		obs = nextObs
		dones = nextDones
		state = step.State
	}
	return rewards, nil
}
