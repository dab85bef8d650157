// Package schedule implements scalar schedules for hyperparameters
// that vary over the course of training, such as the learning rate and
// the PPO clipping range.
package schedule

// Schedule maps the remaining-progress fraction of a training run to a
// scalar hyperparameter value. The fraction starts at 1 on the first
// update and decreases linearly to 0 as the update budget is consumed.
type Schedule func(frac float64) float64

// Constant returns a Schedule that always yields v.
func Constant(v float64) Schedule {
	return func(_ float64) float64 {
		return v
	}
}

// Linear returns a Schedule that interpolates linearly from start at
// the beginning of training (frac = 1) to end at the end of training
// (frac = 0).
func Linear(start, end float64) Schedule {
	return func(frac float64) float64 {
		return end + (start-end)*frac
	}
}

// Annealed returns a Schedule that anneals linearly from start at the
// beginning of training down to start/reduction at the end.
func Annealed(start, reduction float64) Schedule {
	floor := start / reduction
	return func(frac float64) float64 {
		return floor + (start-floor)*frac
	}
}
