package floatutils

import (
	"math"
	"testing"
)

func TestClip(t *testing.T) {
	if got := Clip(1.5, 0, 1); got != 1.0 {
		t.Errorf("clip above max: got %v, want 1.0", got)
	}
	if got := Clip(-0.25, 0, 1); got != 0.0 {
		t.Errorf("clip below min: got %v, want 0.0", got)
	}
	if got := Clip(0.75, 0, 1); got != 0.75 {
		t.Errorf("clip within bounds: got %v, want 0.75", got)
	}
	if got := ClipInterval(2.0, Unit); got != 1.0 {
		t.Errorf("clip interval: got %v, want 1.0", got)
	}
}

func TestSafeMeanEmpty(t *testing.T) {
	if got := SafeMean(nil); !math.IsNaN(got) {
		t.Errorf("safe mean of empty slice: got %v, want NaN", got)
	}
	if got := SafeMean([]float64{}); !math.IsNaN(got) {
		t.Errorf("safe mean of zero-length slice: got %v, want NaN", got)
	}
}

func TestSafeMean(t *testing.T) {
	if got := SafeMean([]float64{1, 2, 3, 4}); got != 2.5 {
		t.Errorf("safe mean: got %v, want 2.5", got)
	}
	if got := SafeMean([]float64{-3}); got != -3 {
		t.Errorf("safe mean of single element: got %v, want -3", got)
	}
}
