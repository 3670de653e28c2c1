package model

import (
	"math"
	"testing"
)

func TestCosineAnnealingPerEpoch(t *testing.T) {
	const base, epochs = 3e-4, 4
	s := NewCosineAnnealingScheduler(base, 0, 0, epochs)

	if s.GetCurrentLR() != base {
		t.Fatalf("initial LR = %g, want %g", s.GetCurrentLR(), base)
	}

	want := []float64{
		base * (1 + math.Cos(math.Pi*1/4)) / 2,
		base / 2,
		base * (1 + math.Cos(math.Pi*3/4)) / 2,
		0,
	}
	for i, w := range want {
		s.Step()
		if got := s.GetCurrentLR(); math.Abs(got-w) > 1e-15 {
			t.Errorf("after %d steps LR = %g, want %g", i+1, got, w)
		}
	}

	// Past the budget the rate stays at the floor.
	s.Step()
	if got := s.GetCurrentLR(); math.Abs(got) > 1e-15 {
		t.Errorf("LR past T_max = %g, want 0", got)
	}
}

func TestCosineAnnealingMinLR(t *testing.T) {
	s := NewCosineAnnealingScheduler(1.0, 0.1, 0, 2)
	s.Step()
	s.Step()
	if got := s.GetCurrentLR(); math.Abs(got-0.1) > 1e-12 {
		t.Errorf("final LR = %g, want 0.1", got)
	}
}

func TestCosineAnnealingWarmup(t *testing.T) {
	s := NewCosineAnnealingScheduler(1.0, 0, 2, 10)
	if got := s.GetLR(0); got != 0.5 {
		t.Errorf("GetLR(0) = %g, want 0.5", got)
	}
	if got := s.GetLR(2); got != 1.0 {
		t.Errorf("GetLR(2) = %g, want 1.0", got)
	}
}
