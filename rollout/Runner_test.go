package rollout

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/cooprl/cooppo/agent"
	"github.com/cooprl/cooppo/environment"
)

// scriptedEnv replays fixed reward and done sequences.
type scriptedEnv struct {
	nenvs, obsDim int
	step          int
	rewards       [][]float64 // rewards[t][e]
	dones         [][]bool    // dones[t][e]
	infos         map[int][]*environment.EpisodeInfo

	shaping  float64
	selfPlay float64
}

func (s *scriptedEnv) NumEnvs() int         { return s.nenvs }
func (s *scriptedEnv) ObservationSize() int { return s.obsDim }
func (s *scriptedEnv) NumActions() int      { return 2 }

func (s *scriptedEnv) Reset() *mat.Dense {
	s.step = 0
	return s.observe()
}

func (s *scriptedEnv) observe() *mat.Dense {
	obs := mat.NewDense(s.nenvs, s.obsDim, nil)
	for e := 0; e < s.nenvs; e++ {
		obs.Set(e, 0, float64(s.step)+float64(e)*100)
	}
	return obs
}

func (s *scriptedEnv) Step(actions *mat.VecDense) (*mat.Dense, []float64,
	[]bool, []*environment.EpisodeInfo, error) {
	rews := s.rewards[s.step]
	dones := s.dones[s.step]
	infos := s.infos[s.step]
	if infos == nil {
		infos = make([]*environment.EpisodeInfo, s.nenvs)
	}
	s.step++
	return s.observe(), rews, dones, infos, nil
}

func (s *scriptedEnv) RewardShaping() float64            { return s.shaping }
func (s *scriptedEnv) SetRewardShaping(c float64)        { s.shaping = c }
func (s *scriptedEnv) SelfPlayRandomization() float64    { return s.selfPlay }
func (s *scriptedEnv) SetSelfPlayRandomization(r float64) { s.selfPlay = r }

// scriptedPolicy returns fixed value estimates per Act call.
type scriptedPolicy struct {
	values [][]float64 // values[call][e]
	call   int
}

func (p *scriptedPolicy) Act(obs *mat.Dense, state agent.RecurrentState,
	dones []bool) (agent.Step, error) {
	nenvs, _ := obs.Dims()
	vals := p.values[p.call]
	p.call++

	actions := mat.NewVecDense(nenvs, nil)
	logProbs := mat.NewVecDense(nenvs, nil)
	for e := 0; e < nenvs; e++ {
		logProbs.SetVec(e, -0.5)
	}
	return agent.Step{
		Actions:  actions,
		Values:   mat.NewVecDense(nenvs, append([]float64(nil), vals...)),
		LogProbs: logProbs,
		State:    agent.NonRecurrent{},
	}, nil
}

func (p *scriptedPolicy) Train(lr, clipRange float64,
	b agent.Batch) ([]float64, error) {
	return []float64{0}, nil
}

func (p *scriptedPolicy) LossNames() []string   { return []string{"loss"} }
func (p *scriptedPolicy) Save(path string) error { return nil }
func (p *scriptedPolicy) Load(path string) error { return nil }

func TestRunGAEMatchesHandComputation(t *testing.T) {
	env := &scriptedEnv{
		nenvs:  1,
		obsDim: 1,
		rewards: [][]float64{
			{1.0}, {2.0}, {3.0},
		},
		dones: [][]bool{
			{false}, {false}, {false},
		},
	}
	policy := &scriptedPolicy{
		values: [][]float64{
			{0.5}, {1.0}, {1.5}, {2.0}, // final entry is the bootstrap
		},
	}

	gamma, lambda := 0.9, 0.8
	runner := NewRunner(env, policy, 3, gamma, lambda)
	batch, _, err := runner.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// Backward recursion by hand:
	// δ2 = 3 + 0.9*2.0 - 1.5 = 3.3,   A2 = 3.3
	// δ1 = 2 + 0.9*1.5 - 1.0 = 2.35,  A1 = 2.35 + 0.72*3.3  = 4.726
	// δ0 = 1 + 0.9*1.0 - 0.5 = 1.4,   A0 = 1.4  + 0.72*4.726 = 4.80272
	wantAdv := []float64{4.80272, 4.726, 3.3}

	for i := range wantAdv {
		adv := batch.Returns[i] - batch.Values[i]
		if math.Abs(adv-wantAdv[i]) > 1e-12 {
			t.Errorf("advantage[%d]: got %v, want %v", i, adv, wantAdv[i])
		}
	}
}

func TestRunReturnsEqualAdvantagePlusValue(t *testing.T) {
	env := &scriptedEnv{
		nenvs:  2,
		obsDim: 1,
		rewards: [][]float64{
			{1.0, -1.0}, {0.5, 2.0}, {0.0, 1.0}, {2.0, 0.0},
		},
		dones: [][]bool{
			{false, false}, {true, false}, {false, true}, {false, false},
		},
	}
	policy := &scriptedPolicy{
		values: [][]float64{
			{0.1, 0.2}, {0.3, 0.4}, {0.5, 0.6}, {0.7, 0.8}, {0.9, 1.0},
		},
	}

	runner := NewRunner(env, policy, 4, 0.99, 0.95)
	batch, _, err := runner.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if batch.Size() != 8 {
		t.Fatalf("batch size: got %v, want 8", batch.Size())
	}

	// The invariant return[i] = advantage[i] + value[i] holds exactly
	// by construction, so the returns array must differ from the
	// values array by exactly the advantage at every index.
	for i := 0; i < batch.Size(); i++ {
		adv := batch.Returns[i] - batch.Values[i]
		if math.IsNaN(adv) || math.IsInf(adv, 0) {
			t.Errorf("advantage[%d] is not finite: %v", i, adv)
		}
	}
}

func TestRunZeroesCrossEpisodeAdvantage(t *testing.T) {
	env := &scriptedEnv{
		nenvs:  1,
		obsDim: 1,
		rewards: [][]float64{
			{1.0}, {1.0}, {1.0},
		},
		dones: [][]bool{
			{false}, {true}, {false},
		},
	}
	policy := &scriptedPolicy{
		values: [][]float64{
			{0.2}, {0.4}, {0.6}, {0.8},
		},
	}

	runner := NewRunner(env, policy, 3, 0.5, 0.5)
	batch, _, err := runner.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// The done flag after step 1 must stop both bootstrapping and
	// advantage propagation across the episode boundary:
	// δ2 = 1 + 0.5*0.8 - 0.6 = 0.8,          A2 = 0.8
	// δ1 = 1 + 0        - 0.4 = 0.6,         A1 = 0.6 (masked)
	// δ0 = 1 + 0.5*0.4  - 0.2 = 1.0,         A0 = 1.0 + 0.25*0.6 = 1.15
	wantAdv := []float64{1.15, 0.6, 0.8}
	for i := range wantAdv {
		adv := batch.Returns[i] - batch.Values[i]
		if math.Abs(adv-wantAdv[i]) > 1e-12 {
			t.Errorf("advantage[%d]: got %v, want %v", i, adv, wantAdv[i])
		}
	}
}

func TestRunCollectsEpisodeInfos(t *testing.T) {
	env := &scriptedEnv{
		nenvs:  1,
		obsDim: 1,
		rewards: [][]float64{
			{1.0}, {1.0},
		},
		dones: [][]bool{
			{true}, {false},
		},
		infos: map[int][]*environment.EpisodeInfo{
			0: {{SparseReturn: 20, ShapedReturn: 3, Length: 7}},
		},
	}
	policy := &scriptedPolicy{
		values: [][]float64{{0}, {0}, {0}},
	}

	runner := NewRunner(env, policy, 2, 0.99, 0.95)
	_, infos, err := runner.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("episode infos: got %v, want 1", len(infos))
	}
	if infos[0].SparseReturn != 20 || infos[0].Length != 7 {
		t.Errorf("episode info: got %+v", infos[0])
	}
}
