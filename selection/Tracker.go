// Package selection implements the model-selection and early-stopping
// state machine of the training loop: it tracks the best training
// reward, the best and significantly-best validation rewards, and the
// validation stagnation counter, and decides which checkpoints to
// write and when to terminate a run early.
package selection

import (
	"math"
)

// SignificantImprovement is the factor a validation reward must exceed
// the previous significantly-best validation reward by to count as
// real progress and reset the stagnation counter.
const SignificantImprovement = 1.1

// State is the lifecycle state of a training run.
type State int

const (
	// Training is the normal state while updates are still running.
	Training State = iota

	// StoppedByStagnation means validation stopped improving for the
	// configured number of consecutive evaluations and the run was
	// terminated early. This is a successful termination path.
	StoppedByStagnation

	// Completed means the update budget was exhausted.
	Completed
)

func (s State) String() string {
	switch s {
	case StoppedByStagnation:
		return "StoppedByStagnation"
	case Completed:
		return "Completed"
	default:
		return "Training"
	}
}

// CheckpointKind identifies which model checkpoint an Action writes.
type CheckpointKind int

const (
	// CheckpointBestTrain is the model with the best smoothed sparse
	// training reward.
	CheckpointBestTrain CheckpointKind = iota

	// CheckpointBestValidation is the model with the best held-out
	// validation reward.
	CheckpointBestValidation

	// CheckpointBestRewardRate is the model with the best training
	// reward per step, tracked when early stopping is engaged and
	// reloaded as the final model at loop end.
	CheckpointBestRewardRate
)

// Action instructs the orchestrator to persist the current model as
// the named checkpoint.
type Action struct {
	Kind CheckpointKind
}

// Metrics carries the per-update observations the state machine
// evaluates. Fields gated by their companion flag are ignored when the
// flag is false.
type Metrics struct {
	// RewardPerStep is the smoothed training reward per timestep,
	// considered only when TrackRewardRate is set.
	RewardPerStep   float64
	TrackRewardRate bool

	// SparseRewardMean is the smoothed sparse training reward,
	// considered only when EvaluateTrain is set (logging cadence with
	// best-train checkpointing enabled).
	SparseRewardMean float64
	EvaluateTrain    bool

	// SelfPlayContaminated is set while the rollout partner is still
	// partially self-play even though a behavior-cloned or theory-of-
	// mind partner is configured; best-train checkpoints are withheld
	// because the training reward does not reflect play with the
	// intended partner.
	SelfPlayContaminated bool

	// ValidationReward is the mean reward of held-out validation
	// games, considered only when Validated is set.
	ValidationReward float64
	Validated        bool
}

// Tracker is the model-selection state machine. It is single-writer:
// the orchestrator calls OnUpdate once per update, strictly sequenced
// within the training loop.
type Tracker struct {
	bestTrain      float64
	bestValidation float64

	// significantBestValidation only moves on a >10% improvement; it
	// is the reference for the stagnation counter.
	significantBestValidation float64
	stagnation                int
	stagnantLimit             int

	bestRewardPerStep float64

	state State
}

// NewTracker returns a Tracker in the Training state. A stagnantLimit
// of 0 disables stagnation stopping.
func NewTracker(stagnantLimit int) *Tracker {
	return &Tracker{
		bestTrain:                 math.Inf(-1),
		bestValidation:            math.Inf(-1),
		significantBestValidation: math.Inf(-1),
		stagnantLimit:             stagnantLimit,
		state:                     Training,
	}
}

// OnUpdate feeds one update's observations through the state machine.
// It returns the checkpoints the orchestrator should write now and
// whether the run must stop before the next update.
func (t *Tracker) OnUpdate(m Metrics) ([]Action, bool) {
	if t.state != Training {
		return nil, true
	}

	var actions []Action

	if m.TrackRewardRate && !math.IsNaN(m.RewardPerStep) &&
		m.RewardPerStep > t.bestRewardPerStep {
		t.bestRewardPerStep = m.RewardPerStep
		actions = append(actions, Action{Kind: CheckpointBestRewardRate})
	}

	if m.EvaluateTrain && !math.IsNaN(m.SparseRewardMean) &&
		m.SparseRewardMean > t.bestTrain && !m.SelfPlayContaminated {
		t.bestTrain = m.SparseRewardMean
		actions = append(actions, Action{Kind: CheckpointBestTrain})
	}

	if m.Validated {
		if m.ValidationReward > t.bestValidation {
			t.bestValidation = m.ValidationReward
			actions = append(actions, Action{Kind: CheckpointBestValidation})
		}

		if m.ValidationReward >
			SignificantImprovement*t.significantBestValidation {
			t.significantBestValidation = m.ValidationReward
			t.stagnation = 0
		} else {
			t.stagnation++
			if t.stagnantLimit > 0 && t.stagnation >= t.stagnantLimit {
				t.state = StoppedByStagnation
				return actions, true
			}
		}
	}

	return actions, false
}

// Finish marks the run Completed if it is still training. Called when
// the update budget is exhausted.
func (t *Tracker) Finish() {
	if t.state == Training {
		t.state = Completed
	}
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	return t.state
}

// BestTrain returns the best smoothed sparse training reward seen.
func (t *Tracker) BestTrain() float64 {
	return t.bestTrain
}

// BestValidation returns the best validation reward seen.
func (t *Tracker) BestValidation() float64 {
	return t.bestValidation
}

// SignificantBestValidation returns the significantly-best validation
// reward used as the stagnation reference.
func (t *Tracker) SignificantBestValidation() float64 {
	return t.significantBestValidation
}

// StagnationCount returns the number of consecutive validation
// evaluations without significant improvement.
func (t *Tracker) StagnationCount() int {
	return t.stagnation
}

// BestRewardPerStep returns the best training reward per step seen.
func (t *Tracker) BestRewardPerStep() float64 {
	return t.bestRewardPerStep
}
