package model

import (
	"math"
)

// LRScheduler defines the interface for learning rate scheduling
type LRScheduler interface {
	GetLR(step int) float64
	Step()
	GetCurrentLR() float64
}

// CosineAnnealingScheduler implements cosine annealing with optional
// linear warmup. Without warmup it matches
// lr(t) = minLR + (baseLR-minLR) * (1 + cos(pi*t/totalSteps)) / 2.
type CosineAnnealingScheduler struct {
	baseLR      float64
	minLR       float64
	warmupSteps int
	totalSteps  int
	currentStep int
	currentLR   float64
}

// NewCosineAnnealingScheduler creates a new cosine annealing scheduler
func NewCosineAnnealingScheduler(baseLR, minLR float64, warmupSteps, totalSteps int) *CosineAnnealingScheduler {
	s := &CosineAnnealingScheduler{
		baseLR:      baseLR,
		minLR:       minLR,
		warmupSteps: warmupSteps,
		totalSteps:  totalSteps,
	}
	s.currentLR = s.GetLR(0)
	return s
}

// GetLR returns the learning rate for a given step
func (s *CosineAnnealingScheduler) GetLR(step int) float64 {
	if step < s.warmupSteps {
		return s.baseLR * float64(step+1) / float64(s.warmupSteps)
	}

	span := s.totalSteps - s.warmupSteps
	if span <= 0 {
		return s.baseLR
	}

	progress := float64(step-s.warmupSteps) / float64(span)
	if progress > 1.0 {
		progress = 1.0
	}
	cosine := 0.5 * (1.0 + math.Cos(math.Pi*progress))
	return s.minLR + (s.baseLR-s.minLR)*cosine
}

// Step advances the scheduler by one step
func (s *CosineAnnealingScheduler) Step() {
	s.currentStep++
	s.currentLR = s.GetLR(s.currentStep)
}

// GetCurrentLR returns the current learning rate
func (s *CosineAnnealingScheduler) GetCurrentLR() float64 {
	return s.currentLR
}
