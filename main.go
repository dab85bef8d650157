// Trains a categorical actor-critic policy with PPO on the cooperative
// kitchen environment, annealing reward shaping and self-play over the
// course of the run and validating against held-out scripted partners.
package main

import (
	"fmt"
	"log"

	"github.com/cooprl/cooppo/agent/categorical"
	"github.com/cooprl/cooppo/curriculum"
	"github.com/cooprl/cooppo/environment"
	"github.com/cooprl/cooppo/environment/kitchen"
	"github.com/cooprl/cooppo/ppo"
	"github.com/cooprl/cooppo/schedule"
	"github.com/cooprl/cooppo/selection"
)

const seed uint64 = 42

func main() {
	envConfig := kitchen.DefaultConfig()
	envConfig.NumEnvs = 8
	envConfig.Seed = seed
	env, err := kitchen.New(envConfig)
	if err != nil {
		log.Fatalf("could not create environment: %v", err)
	}

	policyConfig := categorical.DefaultConfig()
	builder := categorical.Builder(policyConfig)

	// The self-play partner is a second policy instance playing the
	// partner seat one observation at a time.
	partnerPolicy, err := builder(env.ObservationSize(), env.NumActions(),
		1, 1, seed+1)
	if err != nil {
		log.Fatalf("could not build partner policy: %v", err)
	}
	partner, err := kitchen.NewPolicyPartner(partnerPolicy,
		env.ObservationSize())
	if err != nil {
		log.Fatalf("could not create self-play partner: %v", err)
	}
	env.SetSelfPartner(partner)

	validator, err := newValidator(envConfig)
	if err != nil {
		log.Fatalf("could not create validator: %v", err)
	}

	config, err := newConfig()
	if err != nil {
		log.Fatalf("could not create configuration: %v", err)
	}

	loop, err := ppo.New(env, builder, validator, config)
	if err != nil {
		log.Fatalf("could not create training loop: %v", err)
	}

	info, err := loop.Learn()
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}

	tracker := loop.Tracker()
	fmt.Printf("run finished: %v\n", tracker.State())
	fmt.Printf("best training reward:   %g\n", tracker.BestTrain())
	fmt.Printf("best validation reward: %g\n", tracker.BestValidation())
	fmt.Printf("final sparse reward:    %g\n",
		info.Latest("ep_sparse_rew_mean"))
}

// newConfig assembles the training configuration: an annealed learning
// rate, reward shaping fading out over the first half of training, and
// reward-driven self-play annealing.
func newConfig() (ppo.Config, error) {
	shaping, err := curriculum.NewRewardShaping(1_000_000, 2_500_000)
	if err != nil {
		return ppo.Config{}, err
	}
	selfPlay, err := curriculum.NewSigmoidSelfPlay(40.0)
	if err != nil {
		return ppo.Config{}, err
	}

	c := ppo.DefaultConfig()
	c.TotalTimesteps = 5_000_000
	c.NSteps = 400
	c.NMinibatches = 8
	c.NOptEpochs = 8
	c.Gamma = 0.99
	c.Lambda = 0.98
	c.LearningRate = schedule.Linear(1e-3, 0)
	c.ClipRange = schedule.Constant(0.05)
	c.LogInterval = 10
	c.Verbose = true
	c.Seed = seed
	c.RewardShaping = shaping
	c.SelfPlay = selfPlay
	c.Run = ppo.RunConfig{
		SaveDir: "data/kitchen",
		Checkpoints: []selection.CheckpointKind{
			selection.CheckpointBestTrain,
			selection.CheckpointBestValidation,
		},
		CheckpointInterval:    100,
		ValidationFrequency:   20,
		StagnantUpdatesToStop: 30,
		VizInterval:           100,
	}
	return c, nil
}

// newValidator builds the held-out evaluation environments: kitchens
// whose partner is always scripted, with seeds the training
// environment never sees.
func newValidator(envConfig kitchen.Config) (ppo.Validator, error) {
	var envs []environment.VecEnv
	for i := uint64(1); i <= 2; i++ {
		c := envConfig
		c.Seed = envConfig.Seed + 1000*i
		env, err := kitchen.New(c)
		if err != nil {
			return nil, err
		}
		env.SetSelfPlayRandomization(0.0)
		envs = append(envs, env)
	}
	return ppo.NewPopulationValidator(envs, 10, false, nil)
}
