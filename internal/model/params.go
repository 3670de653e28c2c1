package model

import (
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"gorgonia.org/tensor"
)

// ModelType identifies parameter artifacts written by this package.
const ModelType = "MoveNet"

const formatVersion = "1.0"

// ErrModelNotFound is returned when a parameter artifact does not exist.
var ErrModelNotFound = errors.New("model artifact not found")

// Channel widths of the three convolution stages.
var stageWidths = [3]int{64, 128, 256}

const (
	inputChannels = 12
	hiddenUnits   = 256
	numSquares    = 64
	bnEpsilon     = 1e-5
	bnMomentum    = 0.1
)

// ParamKind tells the optimizer how to treat a parameter.
type ParamKind int

const (
	KindWeight ParamKind = iota
	KindBias
	KindRunningStat
)

// ParamSpec describes one named tensor of the network.
type ParamSpec struct {
	Name  string
	Shape tensor.Shape
	Kind  ParamKind
	// FanIn bounds the uniform initializer; zero means constant init.
	FanIn int
}

// convStage holds the parameter names of one conv + batch-norm stage.
type convStage struct {
	conv string
	bn   string
	in   int
	out  int
}

func convStages() []convStage {
	stages := make([]convStage, len(stageWidths))
	in := inputChannels
	for i, out := range stageWidths {
		// Indices follow the conv/bn/relu layout: 0,1,2 then 3,4,5 then 6,7,8.
		stages[i] = convStage{
			conv: fmt.Sprintf("conv.%d", 3*i),
			bn:   fmt.Sprintf("conv.%d", 3*i+1),
			in:   in,
			out:  out,
		}
		in = out
	}
	return stages
}

// Layout returns the parameter specs in their canonical order.
func Layout() []ParamSpec {
	var specs []ParamSpec
	for _, st := range convStages() {
		fanIn := st.in * 3 * 3
		specs = append(specs,
			ParamSpec{st.conv + ".weight", tensor.Shape{st.out, st.in, 3, 3}, KindWeight, fanIn},
			ParamSpec{st.conv + ".bias", tensor.Shape{st.out}, KindBias, fanIn},
			ParamSpec{st.bn + ".weight", tensor.Shape{st.out}, KindWeight, 0},
			ParamSpec{st.bn + ".bias", tensor.Shape{st.out}, KindBias, 0},
			ParamSpec{st.bn + ".running_mean", tensor.Shape{st.out}, KindRunningStat, 0},
			ParamSpec{st.bn + ".running_var", tensor.Shape{st.out}, KindRunningStat, 0},
		)
	}

	linear := func(name string, in, out int) []ParamSpec {
		return []ParamSpec{
			{name + ".weight", tensor.Shape{in, out}, KindWeight, in},
			{name + ".bias", tensor.Shape{out}, KindBias, in},
		}
	}
	specs = append(specs, linear("fc_common.0", hiddenUnits, hiddenUnits)...)
	specs = append(specs, linear("head_from", hiddenUnits, numSquares)...)
	specs = append(specs, linear("head_to", hiddenUnits, numSquares)...)

	return specs
}

// ParamSet is the complete set of named network tensors. Graphs bind
// these tensors directly, so every graph built from the same set sees
// the same values.
type ParamSet struct {
	specs   []ParamSpec
	tensors map[string]*tensor.Dense
}

func newEmptyParamSet() *ParamSet {
	specs := Layout()
	ps := &ParamSet{
		specs:   specs,
		tensors: make(map[string]*tensor.Dense, len(specs)),
	}
	for _, spec := range specs {
		ps.tensors[spec.Name] = tensor.New(
			tensor.WithShape(spec.Shape...),
			tensor.Of(tensor.Float64),
		)
	}
	return ps
}

// NewParamSet returns a randomly initialized parameter set. Weights and
// biases of conv and linear layers are drawn from U(-1/sqrt(fan_in),
// 1/sqrt(fan_in)); batch-norm scales start at one, shifts and running
// means at zero, running variances at one.
func NewParamSet(seed int64) *ParamSet {
	ps := newEmptyParamSet()
	rng := rand.New(rand.NewSource(seed))

	for _, spec := range ps.specs {
		data := ps.Data(spec.Name)
		switch {
		case spec.FanIn > 0:
			bound := 1 / math.Sqrt(float64(spec.FanIn))
			for i := range data {
				data[i] = (rng.Float64()*2 - 1) * bound
			}
		case strings.HasSuffix(spec.Name, ".weight"), strings.HasSuffix(spec.Name, ".running_var"):
			for i := range data {
				data[i] = 1
			}
		}
	}

	return ps
}

// Tensor returns the tensor bound to name, or nil.
func (ps *ParamSet) Tensor(name string) *tensor.Dense {
	return ps.tensors[name]
}

// Data returns the backing slice of a named tensor.
func (ps *ParamSet) Data(name string) []float64 {
	t := ps.tensors[name]
	if t == nil {
		return nil
	}
	return t.Data().([]float64)
}

// Learnable returns the names of parameters updated by the optimizer.
func (ps *ParamSet) Learnable() []string {
	names := make([]string, 0, len(ps.specs))
	for _, spec := range ps.specs {
		if spec.Kind != KindRunningStat {
			names = append(names, spec.Name)
		}
	}
	return names
}

// NumParams returns the number of scalar values in the set.
func (ps *ParamSet) NumParams() int {
	n := 0
	for _, spec := range ps.specs {
		n += spec.Shape.TotalSize()
	}
	return n
}

// Metadata is the artifact header.
type Metadata struct {
	Version     string
	ModelType   string
	InputShape  []int
	OutputShape []int
}

type storedTensor struct {
	Name  string
	Shape []int
	Data  []float64
}

// Save writes the parameter set to path. The file is written to a
// temporary name in the same directory and renamed into place, so a
// reader never observes a partial artifact.
func (ps *ParamSet) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := ps.encode(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return nil
}

func (ps *ParamSet) encode(f *os.File) error {
	encoder := gob.NewEncoder(f)

	metadata := Metadata{
		Version:     formatVersion,
		ModelType:   ModelType,
		InputShape:  []int{inputChannels, 8, 8},
		OutputShape: []int{2, numSquares},
	}
	if err := encoder.Encode(metadata); err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	if err := encoder.Encode(len(ps.specs)); err != nil {
		return fmt.Errorf("failed to encode tensor count: %w", err)
	}
	for _, spec := range ps.specs {
		st := storedTensor{
			Name:  spec.Name,
			Shape: []int(spec.Shape),
			Data:  ps.Data(spec.Name),
		}
		if err := encoder.Encode(st); err != nil {
			return fmt.Errorf("failed to encode %s: %w", spec.Name, err)
		}
	}

	return nil
}

// LoadParamSet reads an artifact written by Save. Every tensor of the
// layout must be present with the expected shape.
func LoadParamSet(path string) (*ParamSet, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	decoder := gob.NewDecoder(f)

	var metadata Metadata
	if err := decoder.Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if metadata.ModelType != ModelType {
		return nil, fmt.Errorf("invalid model type: %s", metadata.ModelType)
	}

	var count int
	if err := decoder.Decode(&count); err != nil {
		return nil, fmt.Errorf("failed to decode tensor count: %w", err)
	}

	ps := newEmptyParamSet()
	seen := make(map[string]bool, count)
	for i := 0; i < count; i++ {
		var st storedTensor
		if err := decoder.Decode(&st); err != nil {
			return nil, fmt.Errorf("failed to decode tensor %d: %w", i, err)
		}

		dst := ps.tensors[st.Name]
		if dst == nil {
			return nil, fmt.Errorf("unexpected tensor %q", st.Name)
		}
		if !dst.Shape().Eq(tensor.Shape(st.Shape)) || len(st.Data) != dst.Shape().TotalSize() {
			return nil, fmt.Errorf("tensor %q has shape %v, want %v", st.Name, st.Shape, dst.Shape())
		}
		copy(ps.Data(st.Name), st.Data)
		seen[st.Name] = true
	}

	for _, spec := range ps.specs {
		if !seen[spec.Name] {
			return nil, fmt.Errorf("missing tensor %q", spec.Name)
		}
	}

	return ps, nil
}
