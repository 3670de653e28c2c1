package model

import (
	"fmt"

	"github.com/thyrook/thinkmate/internal/data"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Batch is a set of encoded positions with their origin/destination labels.
type Batch struct {
	Inputs []float64 // Len() * data.PlaneSize values, channel-major per sample
	From   []int
	To     []int
}

// NewBatch allocates a batch for n samples.
func NewBatch(n int) *Batch {
	return &Batch{
		Inputs: make([]float64, n*data.PlaneSize),
		From:   make([]int, n),
		To:     make([]int, n),
	}
}

// Len returns the number of samples.
func (b *Batch) Len() int {
	return len(b.From)
}

// StepResult reports one optimizer step.
type StepResult struct {
	Size        int
	Loss        float64 // mean per-sample loss of the batch
	CorrectFrom int
	CorrectTo   int
}

// TrainGraph is the training network for one batch size: forward pass with
// batch statistics, label-smoothed cross-entropy on both heads, gradients.
type TrainGraph struct {
	params    *ParamSet
	gr        *graph
	smoothing float64

	fromTarget *gorgonia.Node
	toTarget   *gorgonia.Node
	loss       *gorgonia.Node
	learnables gorgonia.Nodes

	vm gorgonia.VM

	fromBuf []float64
	toBuf   []float64
}

// NewTrainGraph builds the training graph for batches of exactly batch
// samples.
func NewTrainGraph(ps *ParamSet, batch int, smoothing float64) (*TrainGraph, error) {
	gr, err := buildGraph(ps, batch, ModeTrain)
	if err != nil {
		return nil, fmt.Errorf("failed to build training graph: %w", err)
	}

	tg := &TrainGraph{
		params:    ps,
		gr:        gr,
		smoothing: smoothing,
		fromBuf:   make([]float64, batch*numSquares),
		toBuf:     make([]float64, batch*numSquares),
	}

	tg.fromTarget = gorgonia.NewMatrix(gr.g, tensor.Float64,
		gorgonia.WithShape(batch, numSquares),
		gorgonia.WithName("from_target"))
	tg.toTarget = gorgonia.NewMatrix(gr.g, tensor.Float64,
		gorgonia.WithShape(batch, numSquares),
		gorgonia.WithName("to_target"))

	lossFrom, err := crossEntropy(gr.fromLogits, tg.fromTarget, batch)
	if err != nil {
		return nil, fmt.Errorf("origin loss: %w", err)
	}
	lossTo, err := crossEntropy(gr.toLogits, tg.toTarget, batch)
	if err != nil {
		return nil, fmt.Errorf("destination loss: %w", err)
	}
	total := gorgonia.Must(gorgonia.Add(lossFrom, lossTo))
	tg.loss = gorgonia.Must(gorgonia.Mul(total, gorgonia.NewConstant(0.5)))

	tg.learnables = gr.learnables()
	if want := len(ps.Learnable()); len(tg.learnables) != want {
		return nil, fmt.Errorf("graph has %d learnables, param set has %d", len(tg.learnables), want)
	}
	if _, err := gorgonia.Grad(tg.loss, tg.learnables...); err != nil {
		return nil, fmt.Errorf("failed to compute gradients: %w", err)
	}

	tg.vm = gorgonia.NewTapeMachine(gr.g, gorgonia.BindDualValues(tg.learnables...))
	return tg, nil
}

// crossEntropy is the mean over the batch of -sum(target * log_softmax(logits)).
// The row max is subtracted before exponentiating so large logits stay finite.
func crossEntropy(logits, target *gorgonia.Node, batch int) (*gorgonia.Node, error) {
	rowMax, err := gorgonia.Max(logits, 1)
	if err != nil {
		return nil, err
	}
	rowMax = gorgonia.Must(gorgonia.Reshape(rowMax, tensor.Shape{batch, 1}))

	shifted, err := gorgonia.BroadcastSub(logits, rowMax, nil, []byte{1})
	if err != nil {
		return nil, err
	}

	lse, err := gorgonia.Sum(gorgonia.Must(gorgonia.Exp(shifted)), 1)
	if err != nil {
		return nil, err
	}
	lse = gorgonia.Must(gorgonia.Log(lse))
	lse = gorgonia.Must(gorgonia.Reshape(lse, tensor.Shape{batch, 1}))

	// log_softmax = (x - max) - log(sum(exp(x - max)))
	logProbs, err := gorgonia.BroadcastSub(shifted, lse, nil, []byte{1})
	if err != nil {
		return nil, err
	}

	perSample, err := gorgonia.Sum(gorgonia.Must(gorgonia.HadamardProd(target, logProbs)), 1)
	if err != nil {
		return nil, err
	}
	return gorgonia.Neg(gorgonia.Must(gorgonia.Mean(perSample)))
}

// BatchSize returns the number of samples the graph was built for.
func (tg *TrainGraph) BatchSize() int {
	return tg.gr.batch
}

// Step runs forward and backward passes on b, folds the batch statistics
// into the running statistics and applies one optimizer update.
func (tg *TrainGraph) Step(b *Batch, opt *AdamW) (StepResult, error) {
	n := tg.gr.batch
	if b.Len() != n || len(b.Inputs) != n*data.PlaneSize {
		return StepResult{}, fmt.Errorf("batch has %d samples, graph expects %d", b.Len(), n)
	}

	for i := 0; i < n; i++ {
		if err := checkLabel(b.From[i]); err != nil {
			return StepResult{}, err
		}
		if err := checkLabel(b.To[i]); err != nil {
			return StepResult{}, err
		}
		SmoothLabel(tg.fromBuf[i*numSquares:(i+1)*numSquares], b.From[i], tg.smoothing)
		SmoothLabel(tg.toBuf[i*numSquares:(i+1)*numSquares], b.To[i], tg.smoothing)
	}

	lets := []struct {
		node  *gorgonia.Node
		value *tensor.Dense
	}{
		{tg.gr.input, tensor.New(tensor.WithShape(n, inputChannels, 8, 8), tensor.WithBacking(b.Inputs))},
		{tg.fromTarget, tensor.New(tensor.WithShape(n, numSquares), tensor.WithBacking(tg.fromBuf))},
		{tg.toTarget, tensor.New(tensor.WithShape(n, numSquares), tensor.WithBacking(tg.toBuf))},
	}
	for _, l := range lets {
		if err := gorgonia.Let(l.node, l.value); err != nil {
			return StepResult{}, fmt.Errorf("failed to set %s: %w", l.node.Name(), err)
		}
	}
	if err := tg.gr.syncIn(tg.params); err != nil {
		return StepResult{}, err
	}

	defer tg.vm.Reset()
	if err := tg.vm.RunAll(); err != nil {
		return StepResult{}, fmt.Errorf("failed to run forward/backward: %w", err)
	}

	loss, err := scalarValue(tg.loss)
	if err != nil {
		return StepResult{}, fmt.Errorf("loss: %w", err)
	}

	res := StepResult{Size: n, Loss: loss}
	if res.CorrectFrom, err = countCorrect(tg.gr.fromLogits, b.From); err != nil {
		return StepResult{}, err
	}
	if res.CorrectTo, err = countCorrect(tg.gr.toLogits, b.To); err != nil {
		return StepResult{}, err
	}

	if err := tg.updateRunningStats(); err != nil {
		return StepResult{}, err
	}

	updates := make([]ParamGrad, 0, len(tg.learnables))
	for _, node := range tg.learnables {
		grad, err := node.Grad()
		if err != nil {
			return StepResult{}, fmt.Errorf("no gradient for %s: %w", node.Name(), err)
		}
		updates = append(updates, ParamGrad{
			Name:  node.Name(),
			Value: tg.params.Data(node.Name()),
			Grad:  grad.Data().([]float64),
		})
	}
	if err := opt.Step(updates); err != nil {
		return StepResult{}, fmt.Errorf("failed to update weights: %w", err)
	}

	return res, nil
}

// updateRunningStats applies running = (1-m)*running + m*batch, using the
// unbiased batch variance.
func (tg *TrainGraph) updateRunningStats() error {
	for _, st := range tg.gr.stats {
		mean, err := nodeData(st.mean)
		if err != nil {
			return err
		}
		variance, err := nodeData(st.variance)
		if err != nil {
			return err
		}

		correction := 1.0
		if st.count > 1 {
			correction = float64(st.count) / float64(st.count-1)
		}

		runMean := tg.params.Data(st.name + ".running_mean")
		runVar := tg.params.Data(st.name + ".running_var")
		for i := range runMean {
			runMean[i] = (1-bnMomentum)*runMean[i] + bnMomentum*mean[i]
			runVar[i] = (1-bnMomentum)*runVar[i] + bnMomentum*variance[i]*correction
		}
	}
	return nil
}

func countCorrect(logits *gorgonia.Node, labels []int) (int, error) {
	values, err := nodeData(logits)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i, label := range labels {
		if Argmax(values[i*numSquares:(i+1)*numSquares]) == label {
			correct++
		}
	}
	return correct, nil
}

func checkLabel(label int) error {
	if label < 0 || label >= numSquares {
		return fmt.Errorf("label %d out of range", label)
	}
	return nil
}

// Close releases the VM.
func (tg *TrainGraph) Close() error {
	if tg.vm != nil {
		return tg.vm.Close()
	}
	return nil
}
