package model

import (
	"math"
)

// ProbabilityField is the pair of independent distributions over origin
// and destination squares.
type ProbabilityField struct {
	From [numSquares]float64
	To   [numSquares]float64
}

// NewProbabilityField normalizes both logit vectors with softmax.
func NewProbabilityField(fromLogits, toLogits [numSquares]float64) ProbabilityField {
	var pf ProbabilityField
	softmaxInto(pf.From[:], fromLogits[:])
	softmaxInto(pf.To[:], toLogits[:])
	return pf
}

// Score returns P(from) * P(to).
func (pf *ProbabilityField) Score(from, to int) float64 {
	return pf.From[from] * pf.To[to]
}

// softmaxInto writes softmax(logits) into dst, subtracting the max first.
func softmaxInto(dst, logits []float64) {
	if len(logits) == 0 {
		return
	}

	maxLogit := logits[0]
	for i := 1; i < len(logits); i++ {
		if logits[i] > maxLogit {
			maxLogit = logits[i]
		}
	}

	sum := 0.0
	for i, logit := range logits {
		dst[i] = math.Exp(logit - maxLogit)
		sum += dst[i]
	}

	for i := range dst[:len(logits)] {
		dst[i] /= sum
	}
}

// Argmax returns the index of the first maximum.
func Argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

// GetPredictionEntropy calculates the entropy of a distribution in bits.
func GetPredictionEntropy(predictions []float64) float64 {
	entropy := 0.0
	for _, p := range predictions {
		if p > 0 {
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}

// SmoothLabel writes a label-smoothed one-hot target into dst:
// (1-eps) on the label plus eps/len(dst) everywhere.
func SmoothLabel(dst []float64, label int, eps float64) {
	base := eps / float64(len(dst))
	for i := range dst {
		dst[i] = base
	}
	dst[label] += 1 - eps
}
