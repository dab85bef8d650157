package categorical

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"

	"github.com/cooprl/cooppo/network"
)

func TestConfigValidate(t *testing.T) {
	valid := DefaultConfig()
	if err := valid.Validate(); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}

	mismatched := DefaultConfig()
	mismatched.Biases = []bool{true}
	if err := mismatched.Validate(); err == nil {
		t.Error("mismatched bias count accepted")
	}

	mismatchedActs := DefaultConfig()
	mismatchedActs.Activations = []*network.Activation{network.TanH()}
	if err := mismatchedActs.Validate(); err == nil {
		t.Error("mismatched activation count accepted")
	}

	negEntropy := DefaultConfig()
	negEntropy.EntropyCoef = -0.1
	if err := negEntropy.Validate(); err == nil {
		t.Error("negative entropy coefficient accepted")
	}

	noSolver := DefaultConfig()
	noSolver.Solver = nil
	if err := noSolver.Validate(); err == nil {
		t.Error("missing solver accepted")
	}
}

func TestSoftmax(t *testing.T) {
	logits := []float64{1.0, 2.0, 3.0}
	probs := make([]float64, len(logits))
	softmax(logits, probs)

	sum := 0.0
	for _, prob := range probs {
		sum += prob
	}
	if math.Abs(sum-1.0) > 1e-12 {
		t.Errorf("probabilities sum to %v", sum)
	}
	if !(probs[2] > probs[1] && probs[1] > probs[0]) {
		t.Errorf("probabilities not ordered by logits: %v", probs)
	}

	// Shifting by the maximum logit keeps extreme logits finite
	softmax([]float64{1000.0, 1001.0, 999.0}, probs)
	for i, prob := range probs {
		if math.IsNaN(prob) || math.IsInf(prob, 0) {
			t.Errorf("probability %d not finite: %v", i, prob)
		}
	}
}

func TestSampleDegenerate(t *testing.T) {
	p := &CategoricalActorCritic{rng: rand.New(rand.NewSource(7))}

	probs := []float64{0.0, 1.0, 0.0}
	for i := 0; i < 100; i++ {
		if action := p.sample(probs); action != 1 {
			t.Fatalf("sampled action %d from degenerate distribution",
				action)
		}
	}
}
