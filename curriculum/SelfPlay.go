package curriculum

import (
	"fmt"
	"math"

	"github.com/cooprl/cooppo/utils/floatutils"
)

// SelfPlayType tags the variant of self-play schedule in use.
type SelfPlayType int

const (
	// SelfPlayDisabled leaves the environment's self-play
	// randomization untouched.
	SelfPlayDisabled SelfPlayType = iota

	// SelfPlaySigmoid decreases the self-play ratio as the smoothed
	// sparse reward approaches a target reward.
	SelfPlaySigmoid

	// SelfPlayLinear decreases the self-play ratio on a fixed
	// piecewise-linear timestep schedule.
	SelfPlayLinear
)

// SelfPlay is the self-play mixing schedule: it yields the probability
// that the agent's rollout partner is a copy of itself rather than a
// member of the fixed partner population. The variant is chosen once
// at configuration time.
type SelfPlay struct {
	typ SelfPlayType

	// Sigmoid variant
	targetReward float64

	// Linear variant
	threshold int
	horizon   int
}

// DisabledSelfPlay returns the no-op schedule.
func DisabledSelfPlay() SelfPlay {
	return SelfPlay{typ: SelfPlayDisabled}
}

// NewSigmoidSelfPlay returns a performance-feedback schedule that
// anneals self-play out as the smoothed sparse reward approaches
// targetReward.
func NewSigmoidSelfPlay(targetReward float64) (SelfPlay, error) {
	if targetReward <= 0 {
		return SelfPlay{}, fmt.Errorf("newsigmoidselfplay: target "+
			"reward must be positive, have %v", targetReward)
	}
	return SelfPlay{typ: SelfPlaySigmoid, targetReward: targetReward}, nil
}

// NewLinearSelfPlay returns a fixed piecewise-linear schedule over
// elapsed timesteps, symmetric to the reward-shaping anneal.
func NewLinearSelfPlay(threshold, horizon int) (SelfPlay, error) {
	if threshold < 0 || horizon <= 0 {
		return SelfPlay{}, fmt.Errorf("newlinearselfplay: schedule "+
			"bounds must be positive (threshold %d, horizon %d)",
			threshold, horizon)
	}
	if horizon <= threshold {
		return SelfPlay{}, fmt.Errorf("newlinearselfplay: horizon (%d) "+
			"must exceed threshold (%d)", horizon, threshold)
	}
	return SelfPlay{typ: SelfPlayLinear, threshold: threshold,
		horizon: horizon}, nil
}

// Type returns the schedule variant.
func (s SelfPlay) Type() SelfPlayType {
	return s.typ
}

// Enabled reports whether the schedule mutates the environment's
// self-play randomization.
func (s SelfPlay) Enabled() bool {
	return s.typ != SelfPlayDisabled
}

// Ratio returns the self-play mixing ratio at the given elapsed
// timestep and smoothed sparse reward, always in [0, 1].
//
// The sigmoid variant reads only the reward; while no episode has
// completed yet (NaN reward) it keeps full self-play. The linear
// variant reads only the timestep.
func (s SelfPlay) Ratio(timestep int, smoothedSparseReward float64) float64 {
	switch s.typ {
	case SelfPlaySigmoid:
		if math.IsNaN(smoothedSparseReward) {
			return 1.0
		}
		shift := s.targetReward / 2
		k := 10 / s.targetReward
		v := 1.0 - sigmoid(k*(smoothedSparseReward-shift))
		return floatutils.ClipInterval(v, floatutils.Unit)

	case SelfPlayLinear:
		return piecewiseLinear(timestep, s.threshold, s.horizon)

	default:
		return 0.0
	}
}

// sigmoid is the numerically stable logistic function; extreme reward
// values saturate to 0 or 1 instead of overflowing.
func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}
