package curriculum

import (
	"math"
	"testing"
)

func TestNewRewardShapingRejectsMalformedBounds(t *testing.T) {
	if _, err := NewRewardShaping(1000, 500); err == nil {
		t.Error("expected error when horizon <= threshold")
	}
	if _, err := NewRewardShaping(1000, 1000); err == nil {
		t.Error("expected error when horizon == threshold")
	}
	if _, err := NewRewardShaping(-1, 100); err == nil {
		t.Error("expected error for negative threshold")
	}
	if _, err := NewRewardShaping(0, 0); err != nil {
		t.Errorf("disabled schedule rejected: %v", err)
	}
}

func TestRewardShapingDisabled(t *testing.T) {
	r, err := NewRewardShaping(0, 0)
	if err != nil {
		t.Fatalf("newrewardshaping: %v", err)
	}
	if r.Enabled() {
		t.Error("zero horizon should disable the schedule")
	}
}

func TestRewardShapingPiecewiseLinear(t *testing.T) {
	r, err := NewRewardShaping(1000, 5000)
	if err != nil {
		t.Fatalf("newrewardshaping: %v", err)
	}

	if got := r.Coefficient(0); got != 1.0 {
		t.Errorf("before threshold: got %v, want 1.0", got)
	}
	if got := r.Coefficient(1000); got != 1.0 {
		t.Errorf("at threshold: got %v, want 1.0", got)
	}
	if got := r.Coefficient(3000); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("at midpoint: got %v, want 0.5", got)
	}
	if got := r.Coefficient(5000); got != 0.0 {
		t.Errorf("at horizon: got %v, want 0.0", got)
	}
	if got := r.Coefficient(1 << 30); got != 0.0 {
		t.Errorf("beyond horizon: got %v, want 0.0", got)
	}
}

// Both schedules must stay inside [0, 1] for any input, including
// inputs far outside the configured window.
func TestCurriculumBoundedness(t *testing.T) {
	shaping, err := NewRewardShaping(100, 200)
	if err != nil {
		t.Fatalf("newrewardshaping: %v", err)
	}
	linear, err := NewLinearSelfPlay(100, 200)
	if err != nil {
		t.Fatalf("newlinearselfplay: %v", err)
	}
	sigmoidal, err := NewSigmoidSelfPlay(40)
	if err != nil {
		t.Fatalf("newsigmoidselfplay: %v", err)
	}

	timesteps := []int{0, 1, 50, 100, 150, 200, 201, 1 << 40}
	rewards := []float64{-1e12, -40, 0, 20, 40, 1e12, math.NaN()}

	for _, ts := range timesteps {
		if c := shaping.Coefficient(ts); c < 0 || c > 1 {
			t.Errorf("shaping coefficient out of [0,1] at t=%d: %v", ts, c)
		}
		if c := linear.Ratio(ts, 0); c < 0 || c > 1 {
			t.Errorf("linear self-play ratio out of [0,1] at t=%d: %v",
				ts, c)
		}
	}
	for _, rew := range rewards {
		c := sigmoidal.Ratio(0, rew)
		if c < 0 || c > 1 || math.IsNaN(c) {
			t.Errorf("sigmoid self-play ratio out of [0,1] at rew=%v: %v",
				rew, c)
		}
	}
}

func TestSigmoidSelfPlayDecreasesWithReward(t *testing.T) {
	s, err := NewSigmoidSelfPlay(40)
	if err != nil {
		t.Fatalf("newsigmoidselfplay: %v", err)
	}

	low := s.Ratio(0, 0)
	mid := s.Ratio(0, 20)
	high := s.Ratio(0, 40)

	if !(low > mid && mid > high) {
		t.Errorf("ratio should decrease with reward: %v, %v, %v", low,
			mid, high)
	}
	if math.Abs(mid-0.5) > 1e-12 {
		t.Errorf("ratio at half the target reward: got %v, want 0.5", mid)
	}
	if s.Ratio(0, math.NaN()) != 1.0 {
		t.Error("ratio before any episode completes should be 1.0")
	}
}

func TestNewLinearSelfPlayRejectsMalformedBounds(t *testing.T) {
	if _, err := NewLinearSelfPlay(500, 100); err == nil {
		t.Error("expected error when horizon <= threshold")
	}
	if _, err := NewLinearSelfPlay(0, 0); err == nil {
		t.Error("expected error for zero horizon")
	}
}

func TestDisabledSelfPlay(t *testing.T) {
	s := DisabledSelfPlay()
	if s.Enabled() {
		t.Error("disabled schedule reports enabled")
	}
	if got := s.Ratio(123, 45); got != 0.0 {
		t.Errorf("disabled schedule ratio: got %v, want 0.0", got)
	}
}
