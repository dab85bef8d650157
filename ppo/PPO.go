package ppo

import (
	"fmt"
	"math"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/cooprl/cooppo/agent"
	"github.com/cooprl/cooppo/checkpointer"
	"github.com/cooprl/cooppo/environment"
	"github.com/cooprl/cooppo/minibatch"
	"github.com/cooprl/cooppo/rollout"
	"github.com/cooprl/cooppo/selection"
	"github.com/cooprl/cooppo/utils/floatutils"
	"github.com/cooprl/cooppo/utils/progressbar"
)

// Checkpoint file names written under the configured save directory
const (
	bestTrainFile      = "best_train"
	bestValidationFile = "best_validation"
	bestRewardRateFile = "best_reward_rate"
	finalModelFile     = "final"
	runInfoFile        = "run_info"
)

// progressBarWidth is the character width of the per-epoch progress
// bar printed in verbose mode.
const progressBarWidth = 30

// PPO drives the full training loop: rollout collection, minibatch
// optimization epochs, curriculum pushes, logging, model selection,
// and checkpointing.
type PPO struct {
	env    environment.VecEnv
	policy agent.Policy
	config Config

	runner    *rollout.Runner
	scheduler *minibatch.Scheduler
	tracker   *selection.Tracker
	infos     *rollout.InfoBuffer
	validator Validator
	runInfo   *RunInfo
}

// New validates the configuration and assembles a PPO training loop
// on env. The builder constructs the policy sized to the environment;
// validator may be nil when the run performs no validation.
func New(env environment.VecEnv, builder agent.Builder,
	validator Validator, c Config) (*PPO, error) {
	nenvs := env.NumEnvs()
	if err := c.Validate(nenvs); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	trainBatch := nenvs * c.NSteps / c.NMinibatches
	policy, err := builder(env.ObservationSize(), env.NumActions(), nenvs,
		trainBatch, c.Seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not build policy: %v", err)
	}

	if c.Run.LoadPath != "" {
		if err := policy.Load(c.Run.LoadPath); err != nil {
			return nil, fmt.Errorf("new: could not restore policy: %v",
				err)
		}
	}

	scheduler, err := minibatch.NewScheduler(nenvs, c.NSteps,
		c.NMinibatches, c.Recurrent, c.Seed)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	names := []string{"total_timesteps", "explained_variance",
		"ep_sparse_rew_mean", "ep_dense_rew_mean",
		"ep_perceived_rew_mean", "eplenmean", "validation_rew_mean"}
	names = append(names, policy.LossNames()...)

	return &PPO{
		env:       env,
		policy:    policy,
		config:    c,
		runner:    rollout.NewRunner(env, policy, c.NSteps, c.Gamma, c.Lambda),
		scheduler: scheduler,
		tracker:   selection.NewTracker(c.Run.StagnantUpdatesToStop),
		infos:     rollout.NewInfoBuffer(rollout.DefaultInfoCapacity),
		validator: validator,
		runInfo:   NewRunInfo(names...),
	}, nil
}

// Policy returns the policy being trained
func (p *PPO) Policy() agent.Policy {
	return p.policy
}

// Tracker returns the model-selection state machine of the run
func (p *PPO) Tracker() *selection.Tracker {
	return p.tracker
}

// Learn runs the training loop to completion and returns the metric
// record of the run. The loop ends when the timestep budget is
// exhausted or when validation stagnates for the configured number of
// evaluations.
func (p *PPO) Learn() (*RunInfo, error) {
	c := p.config
	nbatch := p.env.NumEnvs() * c.NSteps
	nupdates := c.TotalTimesteps / nbatch

	periodic := checkpointer.NewNStep(
		p.checkpointInterval(),
		p.policy,
		checkpointer.UpdateEnumerator(filepath.Join(c.Run.SaveDir,
			"checkpoints")),
	)

	savedRewardRate := false
	for update := 1; update <= nupdates; update++ {
		// Fraction of the update budget remaining, used to evaluate
		// the hyperparameter schedules
		frac := 1.0 - float64(update-1)/float64(nupdates)
		lr := c.LearningRate(frac)
		clipRange := c.ClipRange(frac)

		batch, episodes, err := p.runner.Run()
		if err != nil {
			return nil, fmt.Errorf("learn: update %d: %v", update, err)
		}
		p.infos.Extend(episodes)

		lossMeans, err := p.optimize(lr, clipRange, batch)
		if err != nil {
			return nil, fmt.Errorf("learn: update %d: %v", update, err)
		}

		// Curriculum pushes share the logging cadence with metric
		// records and model selection.
		stop := false
		if update%c.LogInterval == 0 || update == 1 {
			timesteps := update * nbatch
			sparseMean := floatutils.SafeMean(p.infos.SparseReturns())
			p.pushCurriculum(timesteps, sparseMean)

			actions, s, err := p.evaluate(update, timesteps, sparseMean,
				batch, lossMeans)
			if err != nil {
				return nil, fmt.Errorf("learn: update %d: %v", update, err)
			}
			stop = s

			for _, action := range actions {
				saved, err := p.saveCheckpoint(action.Kind)
				if err != nil {
					return nil, fmt.Errorf("learn: update %d: %v", update,
						err)
				}
				if saved && action.Kind == selection.CheckpointBestRewardRate {
					savedRewardRate = true
				}
			}
		}

		if err := periodic.Checkpoint(update); err != nil {
			return nil, fmt.Errorf("learn: update %d: %v", update, err)
		}
		p.render(update)

		if stop {
			break
		}
	}
	p.tracker.Finish()

	// With early stopping engaged, the final model of the run is the
	// one with the best training reward per step, not the last one.
	if c.Run.EarlyStopping && savedRewardRate {
		path := filepath.Join(c.Run.SaveDir, bestRewardRateFile)
		if err := p.policy.Load(path); err != nil {
			return nil, fmt.Errorf("learn: could not reload best "+
				"model: %v", err)
		}
	}

	if c.Run.SaveDir != "" {
		if err := p.policy.Save(filepath.Join(c.Run.SaveDir,
			finalModelFile)); err != nil {
			return nil, fmt.Errorf("learn: could not save final "+
				"model: %v", err)
		}
		if err := p.runInfo.Save(filepath.Join(c.Run.SaveDir,
			runInfoFile)); err != nil {
			return nil, fmt.Errorf("learn: %v", err)
		}
	}
	return p.runInfo, nil
}

// optimize runs the optimization epochs of one update and returns the
// loss components averaged over all minibatch updates.
func (p *PPO) optimize(lr, clipRange float64, batch agent.Batch) (
	[]float64, error) {
	c := p.config
	lossSums := make([]float64, len(p.policy.LossNames()))
	count := 0

	for epoch := 0; epoch < c.NOptEpochs; epoch++ {
		var bar *progressbar.ManualProgressBar
		if c.Verbose {
			bar = progressbar.NewManualProgressBar(progressBarWidth,
				c.NMinibatches, fmt.Sprintf("epoch %d/%d", epoch+1,
					c.NOptEpochs))
		}

		for _, mb := range p.scheduler.Epoch(batch.State) {
			losses, err := p.policy.Train(lr, clipRange, mb.Gather(batch))
			if err != nil {
				return nil, fmt.Errorf("optimize: epoch %d: %v", epoch,
					err)
			}

			floats.Add(lossSums, losses)
			count++
			if bar != nil {
				bar.Increment()
				bar.Display()
			}
		}
		if bar != nil {
			fmt.Println()
		}
	}

	floats.Scale(1.0/float64(count), lossSums)
	return lossSums, nil
}

// pushCurriculum writes the annealed reward-shaping coefficient and
// self-play randomization ratio into the environment.
func (p *PPO) pushCurriculum(timesteps int, sparseMean float64) {
	if p.config.RewardShaping.Enabled() {
		p.env.SetRewardShaping(
			p.config.RewardShaping.Coefficient(timesteps))
	}
	if p.config.SelfPlay.Enabled() {
		p.env.SetSelfPlayRandomization(
			p.config.SelfPlay.Ratio(timesteps, sparseMean))
	}
}

// evaluate records one logging step's metrics and feeds them through
// the model-selection state machine. It returns the checkpoint actions
// to perform and whether the run must stop.
func (p *PPO) evaluate(update, timesteps int, sparseMean float64,
	batch agent.Batch, lossMeans []float64) ([]selection.Action, bool,
	error) {
	c := p.config
	lengthMean := floatutils.SafeMean(p.infos.Lengths())
	perceivedMean := floatutils.SafeMean(p.infos.PerceivedReturns())

	p.runInfo.Record("total_timesteps", float64(timesteps))
	p.runInfo.Record("explained_variance",
		explainedVariance(batch.Values, batch.Returns))
	p.runInfo.Record("ep_sparse_rew_mean", sparseMean)
	p.runInfo.Record("ep_dense_rew_mean",
		floatutils.SafeMean(p.infos.ShapedReturns()))
	p.runInfo.Record("ep_perceived_rew_mean", perceivedMean)
	p.runInfo.Record("eplenmean", lengthMean)
	for i, name := range p.policy.LossNames() {
		p.runInfo.Record(name, lossMeans[i])
	}

	// The reward rate is measured on the perceived reward stream, the
	// one the agent is actually trained on.
	metrics := selection.Metrics{
		RewardPerStep:    perceivedMean / lengthMean,
		TrackRewardRate:  c.Run.EarlyStopping,
		SparseRewardMean: sparseMean,
		EvaluateTrain:    c.Run.saves(selection.CheckpointBestTrain),
		SelfPlayContaminated: c.Run.PartnerScripted &&
			p.env.SelfPlayRandomization() != 0,
	}

	if p.shouldValidate(update) {
		reward, err := p.validator.Validate(p.policy)
		if err != nil {
			return nil, false, fmt.Errorf("evaluate: %v", err)
		}
		metrics.ValidationReward = reward
		metrics.Validated = true
		p.runInfo.Record("validation_rew_mean", reward)
	}

	if c.Verbose {
		fmt.Printf("update %d:\n", update)
		for _, name := range p.runInfo.Names() {
			fmt.Printf("\t%-24s %g\n", name, p.runInfo.Latest(name))
		}
	}

	actions, stop := p.tracker.OnUpdate(metrics)
	return actions, stop, nil
}

// shouldValidate reports whether held-out validation runs at this
// update. Validation requires a validator, the best-validation
// checkpoint, an active self-play curriculum, the validation cadence,
// and a fully non-self-play rollout partner.
func (p *PPO) shouldValidate(update int) bool {
	c := p.config
	return p.validator != nil &&
		c.Run.ValidationFrequency > 0 &&
		c.Run.saves(selection.CheckpointBestValidation) &&
		c.SelfPlay.Enabled() &&
		update%c.Run.ValidationFrequency == 0 &&
		p.env.SelfPlayRandomization() == 0
}

// saveCheckpoint persists the current model as the named best-model
// checkpoint. It reports whether a file was written; nothing is
// written when no save directory is configured.
func (p *PPO) saveCheckpoint(kind selection.CheckpointKind) (bool,
	error) {
	if p.config.Run.SaveDir == "" {
		return false, nil
	}

	var name string
	switch kind {
	case selection.CheckpointBestTrain:
		name = bestTrainFile
	case selection.CheckpointBestValidation:
		name = bestValidationFile
	case selection.CheckpointBestRewardRate:
		name = bestRewardRateFile
	default:
		return false, fmt.Errorf("savecheckpoint: illegal checkpoint "+
			"kind %v", kind)
	}

	path := filepath.Join(p.config.Run.SaveDir, name)
	if err := p.policy.Save(path); err != nil {
		return false, fmt.Errorf("savecheckpoint: %v", err)
	}
	return true, nil
}

// checkpointInterval returns the periodic checkpoint cadence, which is
// disabled when no save directory is configured.
func (p *PPO) checkpointInterval() int {
	if p.config.Run.SaveDir == "" {
		return 0
	}
	return p.config.Run.CheckpointInterval
}

// render draws one environment frame at the visualization cadence when
// the environment supports rendering.
func (p *PPO) render(update int) {
	c := p.config
	if c.Run.VizInterval == 0 || update%c.Run.VizInterval != 0 ||
		c.Run.SaveDir == "" {
		return
	}
	renderer, ok := p.env.(environment.Renderer)
	if !ok {
		return
	}

	path := filepath.Join(c.Run.SaveDir, "viz",
		fmt.Sprintf("update_%05d.png", update))
	if err := renderer.Render(path); err != nil && c.Verbose {
		fmt.Printf("could not render update %d: %v\n", update, err)
	}
}

// explainedVariance returns 1 - Var(returns - values) / Var(returns),
// the fraction of the return variance the value function accounts for.
// It is NaN when the returns have zero variance, which a single tiny
// update can produce.
func explainedVariance(values, returns []float64) float64 {
	varReturns := stat.PopVariance(returns, nil)
	if varReturns == 0 {
		return math.NaN()
	}

	residuals := make([]float64, len(returns))
	floats.SubTo(residuals, returns, values)
	return 1.0 - stat.PopVariance(residuals, nil)/varReturns
}
