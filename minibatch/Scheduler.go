// Package minibatch partitions rollout batches into shuffled
// minibatches for the optimization epochs of a PPO update.
package minibatch

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/cooprl/cooppo/agent"
)

// Minibatch identifies one slice of a rollout batch: the flat indices
// of its transitions and, for recurrent policies, the per-environment
// recurrent snapshot at the start of its time window.
type Minibatch struct {
	Indices []int
	State   agent.RecurrentState
}

// Gather materializes the minibatch from a full rollout batch.
func (m Minibatch) Gather(b agent.Batch) agent.Batch {
	_, cols := b.Obs.Dims()
	obs := mat.NewDense(len(m.Indices), cols, nil)

	out := agent.Batch{
		Obs:      obs,
		Returns:  make([]float64, len(m.Indices)),
		Actions:  make([]float64, len(m.Indices)),
		Values:   make([]float64, len(m.Indices)),
		LogProbs: make([]float64, len(m.Indices)),
		Masks:    make([]bool, len(m.Indices)),
		State:    m.State,
	}
	for i, idx := range m.Indices {
		obs.SetRow(i, b.Obs.RawRowView(idx))
		out.Returns[i] = b.Returns[idx]
		out.Actions[i] = b.Actions[idx]
		out.Values[i] = b.Values[idx]
		out.LogProbs[i] = b.LogProbs[idx]
		out.Masks[i] = b.Masks[idx]
	}
	return out
}

// Scheduler produces shuffled minibatch partitions of a rollout batch,
// one fresh shuffle per optimization epoch.
//
// In stateless mode the flat index range is shuffled, so transitions
// mix freely across environments and time. In recurrent mode whole
// environments are shuffled instead, keeping each environment's time
// sequence contiguous within a single minibatch so that hidden state
// can be replayed from the snapshot at the window start.
type Scheduler struct {
	nenvs        int
	nsteps       int
	nminibatches int
	recurrent    bool
	rng          *rand.Rand
}

// NewScheduler validates the partition configuration and returns a
// Scheduler. The batch size nenvs*nsteps must divide evenly into
// nminibatches and, in recurrent mode, nminibatches must also divide
// nenvs. Both violations are configuration errors surfaced before any
// optimization begins.
func NewScheduler(nenvs, nsteps, nminibatches int, recurrent bool,
	seed uint64) (*Scheduler, error) {
	nbatch := nenvs * nsteps
	if nminibatches < 1 {
		return nil, fmt.Errorf("newscheduler: need at least 1 minibatch, "+
			"have %d", nminibatches)
	}
	if nbatch%nminibatches != 0 {
		return nil, fmt.Errorf("newscheduler: have %d total batch size "+
			"and want %d minibatches, can't split evenly", nbatch,
			nminibatches)
	}
	if recurrent && nenvs%nminibatches != 0 {
		return nil, fmt.Errorf("newscheduler: recurrent mode requires "+
			"nminibatches (%d) to divide nenvs (%d)", nminibatches, nenvs)
	}

	return &Scheduler{
		nenvs:        nenvs,
		nsteps:       nsteps,
		nminibatches: nminibatches,
		recurrent:    recurrent,
		rng:          rand.New(rand.NewSource(seed)),
	}, nil
}

// Epoch returns one full shuffled partition of the batch into
// nminibatches minibatches. Every transition appears in exactly one
// minibatch per epoch; the ordering across minibatches carries no
// guarantee beyond that. The state argument is the rollout's recurrent
// snapshot and is sliced per minibatch in recurrent mode.
func (s *Scheduler) Epoch(state agent.RecurrentState) []Minibatch {
	if s.recurrent {
		return s.recurrentEpoch(state)
	}
	return s.statelessEpoch()
}

func (s *Scheduler) statelessEpoch() []Minibatch {
	nbatch := s.nenvs * s.nsteps
	size := nbatch / s.nminibatches
	inds := s.rng.Perm(nbatch)

	out := make([]Minibatch, 0, s.nminibatches)
	for start := 0; start < nbatch; start += size {
		out = append(out, Minibatch{
			Indices: inds[start : start+size],
			State:   agent.NonRecurrent{},
		})
	}
	return out
}

func (s *Scheduler) recurrentEpoch(state agent.RecurrentState) []Minibatch {
	envsPerBatch := s.nenvs / s.nminibatches
	envInds := s.rng.Perm(s.nenvs)

	out := make([]Minibatch, 0, s.nminibatches)
	for start := 0; start < s.nenvs; start += envsPerBatch {
		envs := envInds[start : start+envsPerBatch]

		flat := make([]int, 0, envsPerBatch*s.nsteps)
		for _, e := range envs {
			for t := 0; t < s.nsteps; t++ {
				flat = append(flat, e*s.nsteps+t)
			}
		}

		out = append(out, Minibatch{
			Indices: flat,
			State:   sliceState(state, envs),
		})
	}
	return out
}

// sliceState selects the recurrent-state rows of the given
// environments. A NonRecurrent snapshot passes through unchanged.
func sliceState(state agent.RecurrentState, envs []int) agent.RecurrentState {
	rec, ok := state.(agent.Recurrent)
	if !ok {
		return agent.NonRecurrent{}
	}

	_, cols := rec.States.Dims()
	sub := mat.NewDense(len(envs), cols, nil)
	for i, e := range envs {
		sub.SetRow(i, rec.States.RawRowView(e))
	}
	return agent.Recurrent{States: sub}
}
