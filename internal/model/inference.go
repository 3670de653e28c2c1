package model

import (
	"fmt"

	"github.com/thyrook/thinkmate/internal/data"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Network runs batch-1 inference with running batch-norm statistics.
// It is not safe for concurrent use.
type Network struct {
	params *ParamSet
	gr     *graph
	vm     gorgonia.VM
	buf    []float64
}

// NewNetwork compiles an inference graph over ps. Later changes to ps are
// picked up on the next Forward call.
func NewNetwork(ps *ParamSet) (*Network, error) {
	gr, err := buildGraph(ps, 1, ModeInfer)
	if err != nil {
		return nil, fmt.Errorf("failed to build inference graph: %w", err)
	}

	return &Network{
		params: ps,
		gr:     gr,
		vm:     gorgonia.NewTapeMachine(gr.g),
		buf:    make([]float64, data.PlaneSize),
	}, nil
}

// Params returns the parameter set the network reads.
func (n *Network) Params() *ParamSet {
	return n.params
}

// Forward returns the unnormalized origin and destination logits.
func (n *Network) Forward(planes *data.Planes) (from, to [numSquares]float64, err error) {
	planes.Flatten(n.buf)
	input := tensor.New(
		tensor.WithShape(1, inputChannels, 8, 8),
		tensor.WithBacking(n.buf),
	)

	if err = gorgonia.Let(n.gr.input, input); err != nil {
		return from, to, fmt.Errorf("failed to set input: %w", err)
	}
	n.gr.refreshFolded(n.params)
	if err = n.gr.syncIn(n.params); err != nil {
		return from, to, err
	}

	defer n.vm.Reset()
	if err = n.vm.RunAll(); err != nil {
		return from, to, fmt.Errorf("failed to run inference: %w", err)
	}

	fromData, err := nodeData(n.gr.fromLogits)
	if err != nil {
		return from, to, err
	}
	toData, err := nodeData(n.gr.toLogits)
	if err != nil {
		return from, to, err
	}
	copy(from[:], fromData)
	copy(to[:], toData)

	return from, to, nil
}

// Predict runs Forward and normalizes both heads.
func (n *Network) Predict(planes *data.Planes) (ProbabilityField, error) {
	from, to, err := n.Forward(planes)
	if err != nil {
		return ProbabilityField{}, err
	}
	return NewProbabilityField(from, to), nil
}

// Close releases the VM.
func (n *Network) Close() error {
	if n.vm != nil {
		return n.vm.Close()
	}
	return nil
}
