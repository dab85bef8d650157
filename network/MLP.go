package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// MLP implements a multi-layer perceptron constructed on a
// caller-owned computational graph. The caller provides the input
// node so that several networks, such as a policy head and a value
// head, can share a single graph and a single input placeholder.
type MLP struct {
	g      *G.ExprGraph
	layers []*fcLayer

	input      *G.Node
	prediction *G.Node
	predVal    G.Value

	learnables G.Nodes
}

// NewMLP returns a new MLP on graph g reading from the input node. The
// network consists of len(hiddenSizes) hidden layers followed by a
// final linear layer of outputs units with a bias and no activation.
// The hidden layer at index i has hiddenSizes[i] units, a bias unit if
// biases[i] is true, and activation activations[i]. The prefix names
// the network's nodes so that multiple networks can share g.
func NewMLP(g *G.ExprGraph, input *G.Node, features, outputs int,
	hiddenSizes []int, biases []bool, activations []*Activation,
	init G.InitWFn, prefix string) (*MLP, error) {
	if g == nil || input == nil {
		return nil, fmt.Errorf("newmlp: graph and input cannot be nil")
	}
	if features <= 0 {
		return nil, fmt.Errorf("newmlp: features must be positive")
	}
	if outputs <= 0 {
		return nil, fmt.Errorf("newmlp: outputs must be positive")
	}
	if len(hiddenSizes) != len(biases) {
		return nil, fmt.Errorf("newmlp: invalid number of biases\n\twant"+
			"(%v)\n\thave(%v)", len(hiddenSizes), len(biases))
	}
	if len(hiddenSizes) != len(activations) {
		return nil, fmt.Errorf("newmlp: invalid number of activations"+
			"\n\twant(%v)\n\thave(%v)", len(hiddenSizes), len(activations))
	}
	for _, size := range hiddenSizes {
		if size <= 0 {
			return nil, fmt.Errorf("newmlp: hidden layer sizes must be "+
				"positive, got %v", size)
		}
	}

	sizes := make([]int, len(hiddenSizes)+1)
	copy(sizes, hiddenSizes)
	sizes[len(sizes)-1] = outputs

	layerBiases := make([]bool, len(biases)+1)
	copy(layerBiases, biases)
	layerBiases[len(layerBiases)-1] = true

	layerActs := make([]*Activation, len(activations)+1)
	copy(layerActs, activations)
	layerActs[len(layerActs)-1] = Identity()

	net := &MLP{
		g:      g,
		layers: addLayers(g, features, sizes, layerBiases, layerActs, init, prefix),
		input:  input,
	}
	for _, layer := range net.layers {
		net.learnables = append(net.learnables, layer.learnables()...)
	}

	if err := net.fwd(input); err != nil {
		return nil, fmt.Errorf("newmlp: could not compute forward pass: %v",
			err)
	}
	return net, nil
}

// fwd computes the forward pass of the MLP on the input node
func (m *MLP) fwd(input *G.Node) error {
	pred := input
	for i, layer := range m.layers {
		var err error
		pred, err = layer.fwd(pred)
		if err != nil {
			return fmt.Errorf("fwd: could not compute layer %d: %v", i, err)
		}
	}

	m.prediction = pred
	G.Read(m.prediction, &m.predVal)
	return nil
}

// Graph returns the computational graph of the MLP
func (m *MLP) Graph() *G.ExprGraph {
	return m.g
}

// Prediction returns the node of the computational graph that holds
// the output of the MLP
func (m *MLP) Prediction() *G.Node {
	return m.prediction
}

// Output returns the value of the prediction node after the last run
// of the computational graph
func (m *MLP) Output() G.Value {
	return m.predVal
}

// Learnables returns the learnable nodes of the MLP
func (m *MLP) Learnables() G.Nodes {
	return m.learnables
}

// Set copies the weights of source into the MLP. The two networks
// must have identical architectures.
func (m *MLP) Set(source *MLP) error {
	sourceNodes := source.Learnables()
	nodes := m.Learnables()
	if len(nodes) != len(sourceNodes) {
		return fmt.Errorf("set: incompatible networks\n\twant(%v "+
			"learnables)\n\thave(%v learnables)", len(nodes),
			len(sourceNodes))
	}

	for i, node := range nodes {
		value := sourceNodes[i].Value().(*tensor.Dense).Clone().(*tensor.Dense)
		if err := G.Let(node, value); err != nil {
			return fmt.Errorf("set: could not set weights of %v: %v",
				node.Name(), err)
		}
	}
	return nil
}
