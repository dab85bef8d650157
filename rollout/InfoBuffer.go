package rollout

import (
	"github.com/cooprl/cooppo/environment"
)

// DefaultInfoCapacity is the number of completed episodes retained for
// smoothed reporting.
const DefaultInfoCapacity = 100

// InfoBuffer is a bounded ring buffer of completed-episode records.
// Once the buffer is full, appending a record evicts the oldest one,
// so the accessor slices always describe the most recent episodes.
type InfoBuffer struct {
	infos []*environment.EpisodeInfo
	next  int
	full  bool
}

// NewInfoBuffer returns an InfoBuffer holding at most capacity
// episode records.
func NewInfoBuffer(capacity int) *InfoBuffer {
	return &InfoBuffer{infos: make([]*environment.EpisodeInfo, capacity)}
}

// Append adds a single episode record, evicting the oldest record if
// the buffer is full. Nil records are ignored.
func (b *InfoBuffer) Append(info *environment.EpisodeInfo) {
	if info == nil {
		return
	}
	b.infos[b.next] = info
	b.next++
	if b.next == len(b.infos) {
		b.next = 0
		b.full = true
	}
}

// Extend appends every non-nil record in infos.
func (b *InfoBuffer) Extend(infos []*environment.EpisodeInfo) {
	for _, info := range infos {
		b.Append(info)
	}
}

// Len returns the number of records currently held.
func (b *InfoBuffer) Len() int {
	if b.full {
		return len(b.infos)
	}
	return b.next
}

// SparseReturns returns the sparse return of each held episode.
func (b *InfoBuffer) SparseReturns() []float64 {
	return b.collect(func(i *environment.EpisodeInfo) float64 {
		return i.SparseReturn
	})
}

// ShapedReturns returns the shaped return of each held episode.
func (b *InfoBuffer) ShapedReturns() []float64 {
	return b.collect(func(i *environment.EpisodeInfo) float64 {
		return i.ShapedReturn
	})
}

// PerceivedReturns returns the perceived return of each held episode.
func (b *InfoBuffer) PerceivedReturns() []float64 {
	return b.collect(func(i *environment.EpisodeInfo) float64 {
		return i.PerceivedReturn
	})
}

// Lengths returns the length of each held episode.
func (b *InfoBuffer) Lengths() []float64 {
	return b.collect(func(i *environment.EpisodeInfo) float64 {
		return float64(i.Length)
	})
}

func (b *InfoBuffer) collect(
	f func(*environment.EpisodeInfo) float64) []float64 {
	out := make([]float64, 0, b.Len())
	for _, info := range b.infos {
		if info != nil {
			out = append(out, f(info))
		}
	}
	return out
}
