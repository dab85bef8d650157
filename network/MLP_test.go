package network

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func testMLP(t *testing.T, hidden []int, outputs int) *MLP {
	t.Helper()
	g := G.NewGraph()
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(4, 3),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	biases := make([]bool, len(hidden))
	acts := make([]*Activation, len(hidden))
	for i := range hidden {
		biases[i] = true
		acts[i] = TanH()
	}

	net, err := NewMLP(g, input, 3, outputs, hidden, biases, acts,
		G.GlorotN(math.Sqrt2), "Test")
	if err != nil {
		t.Fatalf("could not create network: %v", err)
	}
	return net
}

func TestNewMLPRejectsMismatchedArchitecture(t *testing.T) {
	g := G.NewGraph()
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(2, 3),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	_, err := NewMLP(g, input, 3, 2, []int{16, 16}, []bool{true},
		[]*Activation{TanH(), TanH()}, G.Zeroes(), "Bad")
	if err == nil {
		t.Error("mismatched bias count accepted")
	}

	_, err = NewMLP(g, input, 3, 2, []int{16}, []bool{true},
		[]*Activation{TanH(), TanH()}, G.Zeroes(), "Bad")
	if err == nil {
		t.Error("mismatched activation count accepted")
	}

	_, err = NewMLP(nil, input, 3, 2, []int{16}, []bool{true},
		[]*Activation{TanH()}, G.Zeroes(), "Bad")
	if err == nil {
		t.Error("nil graph accepted")
	}
}

func TestMLPLearnables(t *testing.T) {
	// Two biased hidden layers plus the final linear layer: three
	// weight matrices and three bias rows
	net := testMLP(t, []int{8, 8}, 2)
	if got := len(net.Learnables()); got != 6 {
		t.Errorf("learnables: got %d, want 6", got)
	}

	shape := net.Prediction().Shape()
	if shape[0] != 4 || shape[1] != 2 {
		t.Errorf("prediction shape: got %v, want (4, 2)", shape)
	}
}

func TestSetRejectsIncompatibleNetworks(t *testing.T) {
	dest := testMLP(t, []int{8, 8}, 2)
	src := testMLP(t, []int{8}, 2)

	if err := dest.Set(src); err == nil {
		t.Error("incompatible network accepted")
	}
}

func TestSetCopiesWeights(t *testing.T) {
	dest := testMLP(t, []int{4}, 2)
	src := testMLP(t, []int{4}, 2)

	if err := dest.Set(src); err != nil {
		t.Fatalf("could not copy weights: %v", err)
	}

	for i, node := range dest.Learnables() {
		want := src.Learnables()[i].Value().Data().([]float64)
		got := node.Value().Data().([]float64)
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("learnable %d element %d: got %v, want %v",
					i, j, got[j], want[j])
			}
		}
	}
}
