// Package curriculum implements the schedules that anneal training
// aids over the course of a run: the dense reward-shaping coefficient
// and the self-play mixing ratio. Both produce coefficients in [0, 1]
// and are evaluated once per logging-interval update.
package curriculum

import (
	"fmt"

	"github.com/cooprl/cooppo/utils/floatutils"
)

// RewardShaping anneals the dense reward-shaping coefficient with a
// piecewise-linear schedule over elapsed timesteps: held at 1 until
// the threshold timestep, decaying linearly to 0 at the horizon
// timestep, and 0 afterwards. A zero horizon disables the schedule
// entirely.
type RewardShaping struct {
	threshold int
	horizon   int
}

// NewRewardShaping validates and returns a reward-shaping schedule.
// When the schedule is enabled (horizon != 0), the horizon must lie
// strictly after the threshold; anything else is a configuration
// error.
func NewRewardShaping(threshold, horizon int) (*RewardShaping, error) {
	if threshold < 0 || horizon < 0 {
		return nil, fmt.Errorf("newrewardshaping: negative schedule "+
			"bounds (threshold %d, horizon %d)", threshold, horizon)
	}
	if horizon != 0 && horizon <= threshold {
		return nil, fmt.Errorf("newrewardshaping: horizon (%d) must "+
			"exceed threshold (%d)", horizon, threshold)
	}
	return &RewardShaping{threshold: threshold, horizon: horizon}, nil
}

// Enabled reports whether the schedule is active. A disabled schedule
// leaves the environment's shaping coefficient untouched.
func (r *RewardShaping) Enabled() bool {
	return r.horizon != 0
}

// Coefficient returns the shaping coefficient at the given elapsed
// timestep, always in [0, 1].
func (r *RewardShaping) Coefficient(timestep int) float64 {
	if !r.Enabled() {
		return 1.0
	}
	return piecewiseLinear(timestep, r.threshold, r.horizon)
}

// piecewiseLinear is the shared 1→0 anneal: 1 before the threshold,
// linear decay between threshold and horizon, clipped into [0, 1].
func piecewiseLinear(timestep, threshold, horizon int) float64 {
	if timestep <= threshold {
		return 1.0
	}
	v := 1.0 - float64(timestep-threshold)/float64(horizon-threshold)
	return floatutils.ClipInterval(v, floatutils.Unit)
}
