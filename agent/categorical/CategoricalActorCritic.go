package categorical

import (
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/cooprl/cooppo/agent"
	"github.com/cooprl/cooppo/network"
	"github.com/cooprl/cooppo/solver"
)

// advantageEpsilon keeps advantage normalization finite when every
// advantage in a minibatch is identical.
const advantageEpsilon = 1e-8

// logitEpsilon keeps log-probabilities finite when the softmax
// saturates.
const logitEpsilon = 1e-10

// CategoricalActorCritic implements a feedforward actor-critic policy
// over discrete actions. Acting and training run on two separate
// computational graphs because they use different batch sizes: the
// acting graph takes one observation per environment, while the
// training graph takes a full minibatch. The training graph owns the
// weights, which are copied into the acting graph after every update.
type CategoricalActorCritic struct {
	obsDim     int
	numActions int
	nenvs      int
	trainBatch int

	valueCoef   float64
	entropyCoef float64

	// Acting half
	actGraph  *G.ExprGraph
	actInput  *G.Node
	actPolicy *network.MLP
	actValue  *network.MLP
	actVM     G.VM

	// Training half
	trainGraph  *G.ExprGraph
	trainInput  *G.Node
	policy      *network.MLP
	value       *network.MLP
	actions     *G.Node
	advantages  *G.Node
	returns     *G.Node
	oldLogProbs *G.Node
	oldValues   *G.Node
	clipRange   *G.Node
	trainVM     G.VM

	// Loss components read out of the training graph after each run
	policyLossVal G.Value
	valueLossVal  G.Value
	entropyVal    G.Value
	approxKLVal   G.Value
	ratioVal      G.Value

	learnables   G.Nodes
	model        []G.ValueGrad
	solverConfig solver.Config
	solver       G.Solver
	stepSize     float64

	rng *rand.Rand
}

// New returns a new CategoricalActorCritic whose acting half accepts
// nenvs observations at a time and whose training half accepts
// trainBatch observations at a time.
func New(obsDim, numActions, nenvs, trainBatch int, c Config,
	seed uint64) (*CategoricalActorCritic, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: invalid configuration: %v", err)
	}
	if obsDim <= 0 || numActions <= 0 {
		return nil, fmt.Errorf("new: observation dimension and number "+
			"of actions must be positive, got %v and %v", obsDim,
			numActions)
	}
	if nenvs <= 0 || trainBatch <= 0 {
		return nil, fmt.Errorf("new: acting and training batch sizes "+
			"must be positive, got %v and %v", nenvs, trainBatch)
	}

	p := &CategoricalActorCritic{
		obsDim:       obsDim,
		numActions:   numActions,
		nenvs:        nenvs,
		trainBatch:   trainBatch,
		valueCoef:    c.ValueCoef,
		entropyCoef:  c.EntropyCoef,
		solverConfig: c.Solver.Config,
		rng:          rand.New(rand.NewSource(seed)),
	}

	if err := p.buildActGraph(c); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if err := p.buildTrainGraph(c); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	// Both halves start with independently initialized weights, so
	// make the acting half match the training half before any steps
	// are taken.
	if err := p.syncActWeights(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	return p, nil
}

// buildActGraph constructs the graph used by Act
func (p *CategoricalActorCritic) buildActGraph(c Config) error {
	p.actGraph = G.NewGraph()
	p.actInput = G.NewMatrix(
		p.actGraph,
		tensor.Float64,
		G.WithShape(p.nenvs, p.obsDim),
		G.WithName("actObservations"),
		G.WithInit(G.Zeroes()),
	)

	var err error
	p.actPolicy, err = network.NewMLP(p.actGraph, p.actInput, p.obsDim,
		p.numActions, c.HiddenSizes, c.Biases, c.Activations,
		c.InitWFn.InitWFn(), "ActPolicy")
	if err != nil {
		return fmt.Errorf("buildactgraph: could not create policy "+
			"head: %v", err)
	}

	p.actValue, err = network.NewMLP(p.actGraph, p.actInput, p.obsDim,
		1, c.HiddenSizes, c.Biases, c.Activations, c.InitWFn.InitWFn(),
		"ActValue")
	if err != nil {
		return fmt.Errorf("buildactgraph: could not create value "+
			"head: %v", err)
	}

	p.actVM = G.NewTapeMachine(p.actGraph)
	return nil
}

// buildTrainGraph constructs the graph used by Train, including the
// clipped policy-gradient loss.
func (p *CategoricalActorCritic) buildTrainGraph(c Config) error {
	p.trainGraph = G.NewGraph()
	p.trainInput = G.NewMatrix(
		p.trainGraph,
		tensor.Float64,
		G.WithShape(p.trainBatch, p.obsDim),
		G.WithName("observations"),
		G.WithInit(G.Zeroes()),
	)

	var err error
	p.policy, err = network.NewMLP(p.trainGraph, p.trainInput, p.obsDim,
		p.numActions, c.HiddenSizes, c.Biases, c.Activations,
		c.InitWFn.InitWFn(), "Policy")
	if err != nil {
		return fmt.Errorf("buildtraingraph: could not create policy "+
			"head: %v", err)
	}

	p.value, err = network.NewMLP(p.trainGraph, p.trainInput, p.obsDim,
		1, c.HiddenSizes, c.Biases, c.Activations, c.InitWFn.InitWFn(),
		"Value")
	if err != nil {
		return fmt.Errorf("buildtraingraph: could not create value "+
			"head: %v", err)
	}

	p.actions = G.NewMatrix(
		p.trainGraph,
		tensor.Float64,
		G.WithShape(p.trainBatch, p.numActions),
		G.WithName("selectedActions"),
		G.WithInit(G.Zeroes()),
	)
	p.advantages = newBatchVector(p.trainGraph, p.trainBatch, "advantages")
	p.returns = newBatchVector(p.trainGraph, p.trainBatch, "returns")
	p.oldLogProbs = newBatchVector(p.trainGraph, p.trainBatch,
		"oldLogProbs")
	p.oldValues = newBatchVector(p.trainGraph, p.trainBatch, "oldValues")
	p.clipRange = G.NewScalar(
		p.trainGraph,
		tensor.Float64,
		G.WithName("clipRange"),
	)

	// Log-probability of each action in the minibatch under the
	// current policy
	probs := G.Must(G.SoftMax(p.policy.Prediction(), 1))
	logProbs := G.Must(G.Log(
		G.Must(G.Add(probs, G.NewConstant(logitEpsilon))),
	))
	selectedLogProbs := G.Must(G.Sum(
		G.Must(G.HadamardProd(logProbs, p.actions)), 1,
	))

	// Clipped surrogate policy loss
	ratio := G.Must(G.Exp(
		G.Must(G.Sub(selectedLogProbs, p.oldLogProbs)),
	))
	lowRatio := G.Must(G.Sub(G.NewConstant(1.0), p.clipRange))
	highRatio := G.Must(G.Add(G.NewConstant(1.0), p.clipRange))
	clippedRatio := minOf(maxOf(ratio, lowRatio), highRatio)

	negAdvantages := G.Must(G.Neg(p.advantages))
	surrogate := G.Must(G.HadamardProd(ratio, negAdvantages))
	clippedSurrogate := G.Must(G.HadamardProd(clippedRatio, negAdvantages))
	policyLoss := G.Must(G.Mean(maxOf(surrogate, clippedSurrogate)))

	// Clipped value loss. The value prediction is clipped to stay
	// within the clipping range of the value estimates recorded when
	// the minibatch was collected.
	values := G.Must(G.Reshape(p.value.Prediction(),
		tensor.Shape{p.trainBatch}))
	negClipRange := G.Must(G.Neg(p.clipRange))
	clippedValues := G.Must(G.Add(
		p.oldValues,
		minOf(maxOf(G.Must(G.Sub(values, p.oldValues)), negClipRange),
			p.clipRange),
	))
	valueErr := G.Must(G.Square(G.Must(G.Sub(values, p.returns))))
	clippedValueErr := G.Must(G.Square(
		G.Must(G.Sub(clippedValues, p.returns)),
	))
	valueLoss := G.Must(G.Mul(
		G.NewConstant(0.5),
		G.Must(G.Mean(maxOf(valueErr, clippedValueErr))),
	))

	entropy := G.Must(G.Mean(G.Must(G.Neg(
		G.Must(G.Sum(G.Must(G.HadamardProd(probs, logProbs)), 1)),
	))))

	approxKL := G.Must(G.Mul(
		G.NewConstant(0.5),
		G.Must(G.Mean(G.Must(G.Square(
			G.Must(G.Sub(selectedLogProbs, p.oldLogProbs)),
		)))),
	))

	loss := G.Must(G.Sub(
		G.Must(G.Add(
			policyLoss,
			G.Must(G.Mul(G.NewConstant(p.valueCoef), valueLoss)),
		)),
		G.Must(G.Mul(G.NewConstant(p.entropyCoef), entropy)),
	))

	G.Read(policyLoss, &p.policyLossVal)
	G.Read(valueLoss, &p.valueLossVal)
	G.Read(entropy, &p.entropyVal)
	G.Read(approxKL, &p.approxKLVal)
	G.Read(ratio, &p.ratioVal)

	p.learnables = append(p.learnables, p.policy.Learnables()...)
	p.learnables = append(p.learnables, p.value.Learnables()...)
	if _, err := G.Grad(loss, p.learnables...); err != nil {
		return fmt.Errorf("buildtraingraph: could not compute "+
			"gradient: %v", err)
	}
	p.model = G.NodesToValueGrads(p.learnables)

	p.trainVM = G.NewTapeMachine(p.trainGraph,
		G.BindDualValues(p.learnables...))
	return nil
}

// Act selects one action per environment by sampling from the
// categorical distribution the policy head defines over actions.
// The dones and state arguments exist only to satisfy the recurrent
// policy contract and are ignored.
func (p *CategoricalActorCritic) Act(obs *mat.Dense,
	state agent.RecurrentState, dones []bool) (agent.Step, error) {
	rows, cols := obs.Dims()
	if rows != p.nenvs || cols != p.obsDim {
		return agent.Step{}, fmt.Errorf("act: invalid observation "+
			"dimensions\n\twant(%v x %v)\n\thave(%v x %v)", p.nenvs,
			p.obsDim, rows, cols)
	}

	input := tensor.New(
		tensor.WithShape(p.nenvs, p.obsDim),
		tensor.WithBacking(denseData(obs)),
	)
	if err := G.Let(p.actInput, input); err != nil {
		return agent.Step{}, fmt.Errorf("act: could not set "+
			"observations: %v", err)
	}
	if err := p.actVM.RunAll(); err != nil {
		return agent.Step{}, fmt.Errorf("act: could not run "+
			"computational graph: %v", err)
	}
	defer p.actVM.Reset()

	logits := p.actPolicy.Output().Data().([]float64)
	values := p.actValue.Output().Data().([]float64)

	actions := mat.NewVecDense(p.nenvs, nil)
	valueEstimates := mat.NewVecDense(p.nenvs, nil)
	logProbs := mat.NewVecDense(p.nenvs, nil)
	probs := make([]float64, p.numActions)
	for env := 0; env < p.nenvs; env++ {
		softmax(logits[env*p.numActions:(env+1)*p.numActions], probs)
		action := p.sample(probs)

		actions.SetVec(env, float64(action))
		valueEstimates.SetVec(env, values[env])
		logProbs.SetVec(env, math.Log(probs[action]+logitEpsilon))
	}

	return agent.Step{
		Actions:  actions,
		Values:   valueEstimates,
		LogProbs: logProbs,
		State:    agent.NonRecurrent{},
	}, nil
}

// Train performs one clipped policy-gradient update on the minibatch
// and returns the loss components ordered as LossNames.
func (p *CategoricalActorCritic) Train(lr, clipRange float64,
	b agent.Batch) ([]float64, error) {
	if b.Size() != p.trainBatch {
		return nil, fmt.Errorf("train: invalid minibatch size\n\twant"+
			"(%v)\n\thave(%v)", p.trainBatch, b.Size())
	}

	// Normalize the advantages within the minibatch
	advantages := make([]float64, p.trainBatch)
	for i := range advantages {
		advantages[i] = b.Returns[i] - b.Values[i]
	}
	mean := stat.Mean(advantages, nil)
	std := stat.PopStdDev(advantages, nil)
	for i := range advantages {
		advantages[i] = (advantages[i] - mean) / (std + advantageEpsilon)
	}

	oneHot := make([]float64, p.trainBatch*p.numActions)
	for i, action := range b.Actions {
		oneHot[i*p.numActions+int(action)] = 1.0
	}

	if err := p.letTrainInputs(b, advantages, oneHot, clipRange); err != nil {
		return nil, fmt.Errorf("train: %v", err)
	}

	// Gorgonia solvers expose no step-size setter, so a changed rate
	// means a fresh solver; the rebuild resets Adam's accumulated
	// moment estimates.
	if p.solver == nil || lr != p.stepSize {
		p.solver = p.solverConfig.WithStepSize(lr).Create()
		p.stepSize = lr
	}

	if err := p.trainVM.RunAll(); err != nil {
		return nil, fmt.Errorf("train: could not run computational "+
			"graph: %v", err)
	}
	if err := p.solver.Step(p.model); err != nil {
		return nil, fmt.Errorf("train: could not step solver: %v", err)
	}
	p.trainVM.Reset()

	// Fraction of the minibatch at which the probability ratio was
	// clipped
	ratios := p.ratioVal.Data().([]float64)
	clipped := 0
	for _, ratio := range ratios {
		if math.Abs(ratio-1.0) > clipRange {
			clipped++
		}
	}
	clipFrac := float64(clipped) / float64(len(ratios))

	if err := p.syncActWeights(); err != nil {
		return nil, fmt.Errorf("train: %v", err)
	}

	return []float64{
		p.policyLossVal.Data().(float64),
		p.valueLossVal.Data().(float64),
		p.entropyVal.Data().(float64),
		p.approxKLVal.Data().(float64),
		clipFrac,
	}, nil
}

// letTrainInputs writes the minibatch into the input nodes of the
// training graph
func (p *CategoricalActorCritic) letTrainInputs(b agent.Batch,
	advantages, oneHot []float64, clipRange float64) error {
	inputs := map[*G.Node]*tensor.Dense{
		p.trainInput: tensor.New(
			tensor.WithShape(p.trainBatch, p.obsDim),
			tensor.WithBacking(denseData(b.Obs)),
		),
		p.actions: tensor.New(
			tensor.WithShape(p.trainBatch, p.numActions),
			tensor.WithBacking(oneHot),
		),
		p.advantages: tensor.New(
			tensor.WithShape(p.trainBatch),
			tensor.WithBacking(advantages),
		),
		p.returns: tensor.New(
			tensor.WithShape(p.trainBatch),
			tensor.WithBacking(copyFloats(b.Returns)),
		),
		p.oldLogProbs: tensor.New(
			tensor.WithShape(p.trainBatch),
			tensor.WithBacking(copyFloats(b.LogProbs)),
		),
		p.oldValues: tensor.New(
			tensor.WithShape(p.trainBatch),
			tensor.WithBacking(copyFloats(b.Values)),
		),
	}
	for node, value := range inputs {
		if err := G.Let(node, value); err != nil {
			return fmt.Errorf("could not set %v: %v", node.Name(), err)
		}
	}
	if err := G.Let(p.clipRange, clipRange); err != nil {
		return fmt.Errorf("could not set clipping range: %v", err)
	}
	return nil
}

// LossNames names the loss components returned by Train
func (p *CategoricalActorCritic) LossNames() []string {
	return []string{"policy_loss", "value_loss", "policy_entropy",
		"approxkl", "clipfrac"}
}

// Save persists the weights of the policy at path
func (p *CategoricalActorCritic) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("save: could not create directory: %v", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save: could not create file: %v", err)
	}
	defer file.Close()

	weights := make([]*tensor.Dense, len(p.learnables))
	for i, node := range p.learnables {
		weights[i] = node.Value().(*tensor.Dense)
	}
	if err := gob.NewEncoder(file).Encode(weights); err != nil {
		return fmt.Errorf("save: could not encode weights: %v", err)
	}
	return nil
}

// Load restores weights previously written by Save. The saved policy
// must have the same architecture as the receiver.
func (p *CategoricalActorCritic) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("load: could not open file: %v", err)
	}
	defer file.Close()

	var weights []*tensor.Dense
	if err := gob.NewDecoder(file).Decode(&weights); err != nil {
		return fmt.Errorf("load: could not decode weights: %v", err)
	}
	if len(weights) != len(p.learnables) {
		return fmt.Errorf("load: incompatible policy\n\twant(%v "+
			"learnables)\n\thave(%v)", len(p.learnables), len(weights))
	}

	for i, node := range p.learnables {
		if err := G.Let(node, weights[i]); err != nil {
			return fmt.Errorf("load: could not set %v: %v", node.Name(),
				err)
		}
	}
	return p.syncActWeights()
}

// syncActWeights copies the weights of the training half into the
// acting half
func (p *CategoricalActorCritic) syncActWeights() error {
	if err := p.actPolicy.Set(p.policy); err != nil {
		return fmt.Errorf("syncactweights: %v", err)
	}
	if err := p.actValue.Set(p.value); err != nil {
		return fmt.Errorf("syncactweights: %v", err)
	}
	return nil
}

// sample draws an action index from the given probabilities
func (p *CategoricalActorCritic) sample(probs []float64) int {
	u := p.rng.Float64()
	cumulative := 0.0
	for action, prob := range probs {
		cumulative += prob
		if u < cumulative {
			return action
		}
	}
	return len(probs) - 1
}

// softmax writes the softmax of logits into out, shifting by the
// maximum logit so that the exponentials cannot overflow
func softmax(logits, out []float64) {
	max := logits[0]
	for _, logit := range logits[1:] {
		if logit > max {
			max = logit
		}
	}

	sum := 0.0
	for i, logit := range logits {
		out[i] = math.Exp(logit - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
}

// maxOf computes the elementwise maximum of two nodes as
// (a + b + |a - b|) / 2, since gorgonia exposes no elementwise
// maximum op.
func maxOf(a, b *G.Node) *G.Node {
	sum := G.Must(G.Add(a, b))
	diff := G.Must(G.Abs(G.Must(G.Sub(a, b))))
	return G.Must(G.Mul(G.NewConstant(0.5), G.Must(G.Add(sum, diff))))
}

// minOf computes the elementwise minimum of two nodes as
// (a + b - |a - b|) / 2
func minOf(a, b *G.Node) *G.Node {
	sum := G.Must(G.Add(a, b))
	diff := G.Must(G.Abs(G.Must(G.Sub(a, b))))
	return G.Must(G.Mul(G.NewConstant(0.5), G.Must(G.Sub(sum, diff))))
}

// newBatchVector adds a batch-sized input vector to the graph
func newBatchVector(g *G.ExprGraph, size int, name string) *G.Node {
	return G.NewVector(
		g,
		tensor.Float64,
		G.WithShape(size),
		G.WithName(name),
		G.WithInit(G.Zeroes()),
	)
}

// denseData returns a copy of the elements of m in row-major order
func denseData(m *mat.Dense) []float64 {
	rows, cols := m.Dims()
	data := make([]float64, rows*cols)
	for r := 0; r < rows; r++ {
		copy(data[r*cols:(r+1)*cols], m.RawRowView(r))
	}
	return data
}

// copyFloats returns a copy of data
func copyFloats(data []float64) []float64 {
	out := make([]float64, len(data))
	copy(out, data)
	return out
}
