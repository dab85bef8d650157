package kitchen

import (
	"fmt"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/cooprl/cooppo/agent"
)

// PartnerPolicy selects the partner's action from the partner's
// observation vector. The scripted partner does not go through this
// interface; it reads the game state directly.
type PartnerPolicy interface {
	Act(obs []float64) int
}

// RandomPartner acts uniformly at random
type RandomPartner struct {
	rng *rand.Rand
}

// NewRandomPartner returns a uniformly random PartnerPolicy
func NewRandomPartner(seed uint64) *RandomPartner {
	return &RandomPartner{rng: rand.New(rand.NewSource(seed))}
}

// Act implements the PartnerPolicy interface
func (r *RandomPartner) Act([]float64) int {
	return r.rng.Intn(NumActions)
}

// PolicyPartner plays the partner seat with a learned policy. The
// wrapped policy must have an acting batch of one observation; in
// self-play it is a separate instance of the learning agent's
// architecture whose weights are refreshed from checkpoints.
type PolicyPartner struct {
	policy agent.Policy
	obsDim int
}

// NewPolicyPartner returns a PartnerPolicy wrapping policy
func NewPolicyPartner(policy agent.Policy, obsDim int) (*PolicyPartner,
	error) {
	if policy == nil {
		return nil, fmt.Errorf("newpolicypartner: policy cannot be nil")
	}
	if obsDim <= 0 {
		return nil, fmt.Errorf("newpolicypartner: observation dimension "+
			"must be positive, got %d", obsDim)
	}
	return &PolicyPartner{policy: policy, obsDim: obsDim}, nil
}

// Refresh loads the weights saved at path into the partner's policy
func (p *PolicyPartner) Refresh(path string) error {
	if err := p.policy.Load(path); err != nil {
		return fmt.Errorf("refresh: %v", err)
	}
	return nil
}

// Act implements the PartnerPolicy interface. A policy failure leaves
// the partner standing still rather than crashing the rollout.
func (p *PolicyPartner) Act(obs []float64) int {
	step, err := p.policy.Act(mat.NewDense(1, p.obsDim, obs),
		agent.NonRecurrent{}, []bool{false})
	if err != nil {
		return ActStay
	}
	return int(step.Actions.AtVec(0))
}
