package model

import (
	"fmt"
	"math"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Mode selects how batch normalization is computed.
type Mode int

const (
	// ModeTrain normalizes with batch statistics.
	ModeTrain Mode = iota
	// ModeInfer normalizes with the stored running statistics.
	ModeInfer
)

var channelAxes = []byte{0, 2, 3}

// bnStat records the batch statistic nodes of one batch-norm layer.
type bnStat struct {
	name     string
	mean     *gorgonia.Node
	variance *gorgonia.Node
	// count is the number of values each channel statistic is taken over.
	count int
}

// foldedBN is an inference batch-norm layer reduced to y = x*scale + shift.
type foldedBN struct {
	name  string
	scale *tensor.Dense
	shift *tensor.Dense
	nodes [2]*gorgonia.Node
}

// graph is the network compiled for a fixed batch size.
type graph struct {
	g     *gorgonia.ExprGraph
	mode  Mode
	batch int

	input  *gorgonia.Node
	params map[string]*gorgonia.Node
	order  []string

	fromLogits *gorgonia.Node
	toLogits   *gorgonia.Node

	stats  []bnStat
	folded []*foldedBN
}

func buildGraph(ps *ParamSet, batch int, mode Mode) (*graph, error) {
	if batch < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batch)
	}

	gr := &graph{
		g:      gorgonia.NewGraph(),
		mode:   mode,
		batch:  batch,
		params: make(map[string]*gorgonia.Node),
	}

	gr.input = gorgonia.NewTensor(gr.g, tensor.Float64, 4,
		gorgonia.WithShape(batch, inputChannels, 8, 8),
		gorgonia.WithName("input"))

	x := gr.input
	for _, st := range convStages() {
		var err error
		if x, err = gr.convStage(ps, x, st); err != nil {
			return nil, err
		}
	}

	// Global average pool: [N, C, 8, 8] -> [N, C, 64] -> [N, C]
	last := stageWidths[len(stageWidths)-1]
	flat, err := gorgonia.Reshape(x, tensor.Shape{batch, last, 64})
	if err != nil {
		return nil, fmt.Errorf("pool reshape failed: %w", err)
	}
	pooled, err := gorgonia.Mean(flat, 2)
	if err != nil {
		return nil, fmt.Errorf("pool failed: %w", err)
	}

	hidden, err := gr.linear(ps, pooled, "fc_common.0", hiddenUnits)
	if err != nil {
		return nil, err
	}
	hidden = gorgonia.Must(gorgonia.Rectify(hidden))

	if gr.fromLogits, err = gr.linear(ps, hidden, "head_from", numSquares); err != nil {
		return nil, err
	}
	if gr.toLogits, err = gr.linear(ps, hidden, "head_to", numSquares); err != nil {
		return nil, err
	}

	if mode == ModeInfer {
		gr.refreshFolded(ps)
	}

	return gr, nil
}

// bind creates a graph node backed by the named parameter tensor.
func (gr *graph) bind(ps *ParamSet, name string) *gorgonia.Node {
	t := ps.Tensor(name)
	n := gorgonia.NewTensor(gr.g, tensor.Float64, t.Dims(),
		gorgonia.WithShape(t.Shape()...),
		gorgonia.WithName(name),
		gorgonia.WithValue(t))
	gr.params[name] = n
	gr.order = append(gr.order, name)
	return n
}

// learnables returns the bound nodes of trainable parameters in binding order.
func (gr *graph) learnables() gorgonia.Nodes {
	nodes := make(gorgonia.Nodes, 0, len(gr.order))
	for _, name := range gr.order {
		nodes = append(nodes, gr.params[name])
	}
	return nodes
}

// convStage is conv 3x3 (pad 1) -> batch norm -> ReLU.
func (gr *graph) convStage(ps *ParamSet, x *gorgonia.Node, st convStage) (*gorgonia.Node, error) {
	w := gr.bind(ps, st.conv+".weight")
	b := gr.bind(ps, st.conv+".bias")

	y, err := gorgonia.Conv2d(x, w, tensor.Shape{3, 3}, []int{1, 1}, []int{1, 1}, []int{1, 1})
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", st.conv, err)
	}
	bias := gorgonia.Must(gorgonia.Reshape(b, tensor.Shape{1, st.out, 1, 1}))
	y = gorgonia.Must(gorgonia.BroadcastAdd(y, bias, nil, channelAxes))

	if gr.mode == ModeTrain {
		y, err = gr.batchNorm(ps, y, st)
	} else {
		y, err = gr.foldedBatchNorm(y, st)
	}
	if err != nil {
		return nil, err
	}

	return gorgonia.Rectify(y)
}

// channelMean averages a [N, C, 8, 8] node over everything but C.
func (gr *graph) channelMean(x *gorgonia.Node, c int) (*gorgonia.Node, error) {
	flat, err := gorgonia.Reshape(x, tensor.Shape{gr.batch, c, 64})
	if err != nil {
		return nil, err
	}
	perSample, err := gorgonia.Mean(flat, 2)
	if err != nil {
		return nil, err
	}
	return gorgonia.Mean(perSample, 0)
}

func (gr *graph) batchNorm(ps *ParamSet, y *gorgonia.Node, st convStage) (*gorgonia.Node, error) {
	gamma := gr.bind(ps, st.bn+".weight")
	beta := gr.bind(ps, st.bn+".bias")
	c := st.out
	bcast := tensor.Shape{1, c, 1, 1}

	mean, err := gr.channelMean(y, c)
	if err != nil {
		return nil, fmt.Errorf("%s mean failed: %w", st.bn, err)
	}
	centered := gorgonia.Must(gorgonia.BroadcastSub(y, gorgonia.Must(gorgonia.Reshape(mean, bcast)), nil, channelAxes))

	variance, err := gr.channelMean(gorgonia.Must(gorgonia.Square(centered)), c)
	if err != nil {
		return nil, fmt.Errorf("%s variance failed: %w", st.bn, err)
	}
	eps := gorgonia.NewConstant(bnEpsilon)
	std := gorgonia.Must(gorgonia.Sqrt(gorgonia.Must(gorgonia.Add(gorgonia.Must(gorgonia.Reshape(variance, bcast)), eps))))
	norm := gorgonia.Must(gorgonia.BroadcastHadamardDiv(centered, std, nil, channelAxes))

	out := gorgonia.Must(gorgonia.BroadcastHadamardProd(norm, gorgonia.Must(gorgonia.Reshape(gamma, bcast)), nil, channelAxes))
	out = gorgonia.Must(gorgonia.BroadcastAdd(out, gorgonia.Must(gorgonia.Reshape(beta, bcast)), nil, channelAxes))

	gr.stats = append(gr.stats, bnStat{
		name:     st.bn,
		mean:     mean,
		variance: variance,
		count:    gr.batch * 64,
	})
	return out, nil
}

func (gr *graph) foldedBatchNorm(y *gorgonia.Node, st convStage) (*gorgonia.Node, error) {
	fb := &foldedBN{
		name:  st.bn,
		scale: tensor.New(tensor.WithShape(1, st.out, 1, 1), tensor.Of(tensor.Float64)),
		shift: tensor.New(tensor.WithShape(1, st.out, 1, 1), tensor.Of(tensor.Float64)),
	}
	fb.nodes[0] = gorgonia.NewTensor(gr.g, tensor.Float64, 4,
		gorgonia.WithShape(1, st.out, 1, 1),
		gorgonia.WithName(st.bn+".scale"),
		gorgonia.WithValue(fb.scale))
	fb.nodes[1] = gorgonia.NewTensor(gr.g, tensor.Float64, 4,
		gorgonia.WithShape(1, st.out, 1, 1),
		gorgonia.WithName(st.bn+".shift"),
		gorgonia.WithValue(fb.shift))
	gr.folded = append(gr.folded, fb)

	out, err := gorgonia.BroadcastHadamardProd(y, fb.nodes[0], nil, channelAxes)
	if err != nil {
		return nil, fmt.Errorf("%s scale failed: %w", st.bn, err)
	}
	return gorgonia.BroadcastAdd(out, fb.nodes[1], nil, channelAxes)
}

// refreshFolded recomputes the inference batch-norm affine terms from the
// current parameter values.
func (gr *graph) refreshFolded(ps *ParamSet) {
	for _, fb := range gr.folded {
		gamma := ps.Data(fb.name + ".weight")
		beta := ps.Data(fb.name + ".bias")
		mean := ps.Data(fb.name + ".running_mean")
		variance := ps.Data(fb.name + ".running_var")

		scale := fb.scale.Data().([]float64)
		shift := fb.shift.Data().([]float64)
		for i := range scale {
			scale[i] = gamma[i] / math.Sqrt(variance[i]+bnEpsilon)
			shift[i] = beta[i] - mean[i]*scale[i]
		}
	}
}

func (gr *graph) linear(ps *ParamSet, x *gorgonia.Node, name string, out int) (*gorgonia.Node, error) {
	w := gr.bind(ps, name+".weight")
	b := gr.bind(ps, name+".bias")

	y, err := gorgonia.Mul(x, w)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", name, err)
	}
	bias := gorgonia.Must(gorgonia.Reshape(b, tensor.Shape{1, out}))
	return gorgonia.BroadcastAdd(y, bias, nil, []byte{0})
}

// syncIn makes every bound node read the parameter set's current values.
// Nodes normally alias the tensors already; this covers the case where
// the machine swapped in its own storage.
func (gr *graph) syncIn(ps *ParamSet) error {
	for name, n := range gr.params {
		if n.Value() == nil {
			if err := gorgonia.Let(n, ps.Tensor(name)); err != nil {
				return fmt.Errorf("failed to bind %s: %w", name, err)
			}
			continue
		}
		dst := n.Value().Data().([]float64)
		src := ps.Data(name)
		if !sameBacking(dst, src) {
			copy(dst, src)
		}
	}
	return nil
}

func sameBacking(a, b []float64) bool {
	return len(a) > 0 && len(a) == len(b) && &a[0] == &b[0]
}

func nodeData(n *gorgonia.Node) ([]float64, error) {
	v := n.Value()
	if v == nil {
		return nil, fmt.Errorf("node %s has no value", n.Name())
	}
	data, ok := v.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("node %s has unexpected data type %T", n.Name(), v.Data())
	}
	return data, nil
}

func scalarValue(n *gorgonia.Node) (float64, error) {
	v := n.Value()
	if v == nil {
		return 0, fmt.Errorf("node %s has no value", n.Name())
	}
	switch d := v.Data().(type) {
	case float64:
		return d, nil
	case []float64:
		if len(d) > 0 {
			return d[0], nil
		}
		return 0, fmt.Errorf("node %s value is empty", n.Name())
	default:
		return 0, fmt.Errorf("unexpected value type: %T", d)
	}
}
