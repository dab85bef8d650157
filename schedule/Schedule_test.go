package schedule

import (
	"math"
	"testing"
)

func TestConstant(t *testing.T) {
	s := Constant(3e-4)
	for _, frac := range []float64{1.0, 0.5, 0.0} {
		if got := s(frac); got != 3e-4 {
			t.Errorf("constant schedule at frac %v: got %v, want 3e-4",
				frac, got)
		}
	}
}

func TestLinear(t *testing.T) {
	s := Linear(0.2, 0.0)
	if got := s(1.0); got != 0.2 {
		t.Errorf("linear schedule at start: got %v, want 0.2", got)
	}
	if got := s(0.0); got != 0.0 {
		t.Errorf("linear schedule at end: got %v, want 0.0", got)
	}
	if got := s(0.5); math.Abs(got-0.1) > 1e-12 {
		t.Errorf("linear schedule at midpoint: got %v, want 0.1", got)
	}
}

func TestAnnealed(t *testing.T) {
	s := Annealed(1e-3, 10)
	if got := s(1.0); math.Abs(got-1e-3) > 1e-15 {
		t.Errorf("annealed schedule at start: got %v, want 1e-3", got)
	}
	if got := s(0.0); math.Abs(got-1e-4) > 1e-15 {
		t.Errorf("annealed schedule at end: got %v, want 1e-4", got)
	}
}
