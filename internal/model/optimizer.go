package model

import (
	"fmt"
	"math"
)

// AdamW is Adam with decoupled weight decay. Moment estimates are kept per
// parameter name, so the learning rate can change between steps without
// resetting optimizer state.
type AdamW struct {
	learnRate   float64
	beta1       float64
	beta2       float64
	eps         float64
	weightDecay float64

	step int
	m    map[string][]float64
	v    map[string][]float64
}

// NewAdamW creates an optimizer with beta1 0.9, beta2 0.999, eps 1e-8.
func NewAdamW(learnRate, weightDecay float64) *AdamW {
	return &AdamW{
		learnRate:   learnRate,
		beta1:       0.9,
		beta2:       0.999,
		eps:         1e-8,
		weightDecay: weightDecay,
		m:           make(map[string][]float64),
		v:           make(map[string][]float64),
	}
}

// SetLearnRate changes the learning rate used by subsequent steps.
func (o *AdamW) SetLearnRate(lr float64) {
	o.learnRate = lr
}

// LearnRate returns the current learning rate.
func (o *AdamW) LearnRate() float64 {
	return o.learnRate
}

// Steps returns the number of completed steps.
func (o *AdamW) Steps() int {
	return o.step
}

// ParamGrad pairs a parameter's values with its gradient.
type ParamGrad struct {
	Name  string
	Value []float64
	Grad  []float64
}

// Step applies one update to every parameter in place.
func (o *AdamW) Step(params []ParamGrad) error {
	o.step++
	t := float64(o.step)
	bc1 := 1 - math.Pow(o.beta1, t)
	bc2 := 1 - math.Pow(o.beta2, t)
	decay := 1 - o.learnRate*o.weightDecay

	for _, p := range params {
		if len(p.Value) != len(p.Grad) {
			return fmt.Errorf("%s: %d values but %d gradients", p.Name, len(p.Value), len(p.Grad))
		}

		m, ok := o.m[p.Name]
		if !ok {
			m = make([]float64, len(p.Value))
			o.m[p.Name] = m
			o.v[p.Name] = make([]float64, len(p.Value))
		}
		v := o.v[p.Name]

		for i, g := range p.Grad {
			m[i] = o.beta1*m[i] + (1-o.beta1)*g
			v[i] = o.beta2*v[i] + (1-o.beta2)*g*g

			mHat := m[i] / bc1
			vHat := v[i] / bc2

			p.Value[i] *= decay
			p.Value[i] -= o.learnRate * mHat / (math.Sqrt(vHat) + o.eps)
		}
	}

	return nil
}
