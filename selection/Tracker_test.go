package selection

import (
	"math"
	"testing"
)

func validated(rew float64) Metrics {
	return Metrics{ValidationReward: rew, Validated: true}
}

func TestFirstValidationSetsBests(t *testing.T) {
	tr := NewTracker(5)

	actions, stop := tr.OnUpdate(validated(12.5))
	if stop {
		t.Fatal("first validation must not stop the run")
	}
	if len(actions) != 1 || actions[0].Kind != CheckpointBestValidation {
		t.Fatalf("actions: got %v, want one best-validation checkpoint",
			actions)
	}
	if tr.BestValidation() != 12.5 {
		t.Errorf("best validation: got %v, want 12.5", tr.BestValidation())
	}
	if tr.SignificantBestValidation() != 12.5 {
		t.Errorf("significant best: got %v, want 12.5",
			tr.SignificantBestValidation())
	}
	if tr.StagnationCount() != 0 {
		t.Errorf("stagnation count: got %v, want 0", tr.StagnationCount())
	}
}

// A validation sequence that never improves by 10% over the
// significant best must stop the run at exactly the configured number
// of consecutive stagnant evaluations.
func TestStagnationTerminatesAtExactUpdate(t *testing.T) {
	limit := 3
	tr := NewTracker(limit)

	if _, stop := tr.OnUpdate(validated(100)); stop {
		t.Fatal("unexpected stop on first validation")
	}

	// Each reward is a new best but never a significant (>10%) one.
	rewards := []float64{101, 103, 105}
	for i, rew := range rewards {
		actions, stop := tr.OnUpdate(validated(rew))
		wantStop := i == len(rewards)-1
		if stop != wantStop {
			t.Fatalf("evaluation %d: stop = %v, want %v", i+1, stop,
				wantStop)
		}
		// The best-validation checkpoint is still written even on the
		// stopping update: the saved model is the best one, not the
		// last-trained one.
		if len(actions) != 1 ||
			actions[0].Kind != CheckpointBestValidation {
			t.Errorf("evaluation %d: actions = %v", i+1, actions)
		}
	}

	if tr.State() != StoppedByStagnation {
		t.Errorf("state: got %v, want StoppedByStagnation", tr.State())
	}
	if tr.StagnationCount() != limit {
		t.Errorf("stagnation count: got %v, want %v",
			tr.StagnationCount(), limit)
	}
}

func TestSignificantImprovementResetsStagnation(t *testing.T) {
	tr := NewTracker(3)

	tr.OnUpdate(validated(100)) // sets significant best
	tr.OnUpdate(validated(102)) // stagnant (< 110)
	tr.OnUpdate(validated(104)) // stagnant

	if tr.StagnationCount() != 2 {
		t.Fatalf("stagnation count: got %v, want 2", tr.StagnationCount())
	}

	_, stop := tr.OnUpdate(validated(120)) // > 1.1 * 100
	if stop {
		t.Fatal("significant improvement must not stop the run")
	}
	if tr.StagnationCount() != 0 {
		t.Errorf("stagnation count after improvement: got %v, want 0",
			tr.StagnationCount())
	}
	if tr.SignificantBestValidation() != 120 {
		t.Errorf("significant best: got %v, want 120",
			tr.SignificantBestValidation())
	}
}

func TestBestTrainWithheldDuringSelfPlayContamination(t *testing.T) {
	tr := NewTracker(0)

	actions, _ := tr.OnUpdate(Metrics{
		SparseRewardMean:     50,
		EvaluateTrain:        true,
		SelfPlayContaminated: true,
	})
	if len(actions) != 0 {
		t.Fatalf("contaminated update produced actions: %v", actions)
	}
	if !math.IsInf(tr.BestTrain(), -1) {
		t.Errorf("best train moved during contamination: %v",
			tr.BestTrain())
	}

	actions, _ = tr.OnUpdate(Metrics{
		SparseRewardMean: 50,
		EvaluateTrain:    true,
	})
	if len(actions) != 1 || actions[0].Kind != CheckpointBestTrain {
		t.Fatalf("actions: got %v, want one best-train checkpoint",
			actions)
	}
	if tr.BestTrain() != 50 {
		t.Errorf("best train: got %v, want 50", tr.BestTrain())
	}
}

func TestBestTrainIgnoresNaN(t *testing.T) {
	tr := NewTracker(0)
	actions, _ := tr.OnUpdate(Metrics{
		SparseRewardMean: math.NaN(),
		EvaluateTrain:    true,
	})
	if len(actions) != 0 {
		t.Errorf("NaN reward produced actions: %v", actions)
	}
}

func TestRewardRateTracking(t *testing.T) {
	tr := NewTracker(0)

	actions, _ := tr.OnUpdate(Metrics{
		RewardPerStep:   0.5,
		TrackRewardRate: true,
	})
	if len(actions) != 1 || actions[0].Kind != CheckpointBestRewardRate {
		t.Fatalf("actions: got %v, want one best-reward-rate checkpoint",
			actions)
	}

	actions, _ = tr.OnUpdate(Metrics{
		RewardPerStep:   0.4,
		TrackRewardRate: true,
	})
	if len(actions) != 0 {
		t.Errorf("non-improving reward rate produced actions: %v", actions)
	}
	if tr.BestRewardPerStep() != 0.5 {
		t.Errorf("best reward per step: got %v, want 0.5",
			tr.BestRewardPerStep())
	}
}

func TestFinish(t *testing.T) {
	tr := NewTracker(0)
	tr.Finish()
	if tr.State() != Completed {
		t.Errorf("state after finish: got %v, want Completed", tr.State())
	}

	// Finishing must not overwrite a stagnation stop.
	tr = NewTracker(1)
	tr.OnUpdate(validated(10))
	tr.OnUpdate(validated(10)) // stagnant, limit 1 -> stop
	tr.Finish()
	if tr.State() != StoppedByStagnation {
		t.Errorf("state: got %v, want StoppedByStagnation", tr.State())
	}
}
