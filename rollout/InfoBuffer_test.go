package rollout

import (
	"testing"

	"github.com/cooprl/cooppo/environment"
)

func TestInfoBufferEvictsOldest(t *testing.T) {
	b := NewInfoBuffer(3)
	for i := 0; i < 5; i++ {
		b.Append(&environment.EpisodeInfo{SparseReturn: float64(i)})
	}

	if b.Len() != 3 {
		t.Fatalf("len after overflow: got %v, want 3", b.Len())
	}

	total := 0.0
	for _, r := range b.SparseReturns() {
		total += r
	}
	// Episodes 0 and 1 must have been evicted, leaving 2+3+4.
	if total != 9 {
		t.Errorf("retained sparse returns sum: got %v, want 9", total)
	}
}

func TestInfoBufferIgnoresNil(t *testing.T) {
	b := NewInfoBuffer(4)
	b.Extend([]*environment.EpisodeInfo{
		nil,
		{SparseReturn: 1, ShapedReturn: 2, PerceivedReturn: 3, Length: 4},
		nil,
	})

	if b.Len() != 1 {
		t.Fatalf("len: got %v, want 1", b.Len())
	}
	if got := b.ShapedReturns(); len(got) != 1 || got[0] != 2 {
		t.Errorf("shaped returns: got %v, want [2]", got)
	}
	if got := b.PerceivedReturns(); len(got) != 1 || got[0] != 3 {
		t.Errorf("perceived returns: got %v, want [3]", got)
	}
	if got := b.Lengths(); len(got) != 1 || got[0] != 4 {
		t.Errorf("lengths: got %v, want [4]", got)
	}
}
