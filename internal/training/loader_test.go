package training

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/thyrook/thinkmate/internal/data"
	"github.com/thyrook/thinkmate/internal/model"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func makeSamples(n int) []data.Sample {
	samples := make([]data.Sample, n)
	for i := range samples {
		samples[i] = data.Sample{FEN: startFEN, From: i % 64, To: (i * 7) % 64}
	}
	return samples
}

func TestLoaderOrder(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		batchSize int
		workers   int
		sizes     []int
	}{
		{"exact", 8, 4, 3, []int{4, 4}},
		{"tail", 10, 4, 2, []int{4, 4, 2}},
		{"single worker", 5, 2, 1, []int{2, 2, 1}},
		{"empty", 0, 4, 2, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := makeSamples(tt.n)
			loader := &Loader{BatchSize: tt.batchSize, Workers: tt.workers, Logger: zap.NewNop()}

			var sizes []int
			next := 0
			err := loader.Run(context.Background(), samples, func(b *model.Batch) error {
				sizes = append(sizes, b.Len())
				for i := 0; i < b.Len(); i++ {
					if b.From[i] != samples[next].From || b.To[i] != samples[next].To {
						t.Errorf("sample %d delivered out of order", next)
					}
					next++
				}
				return nil
			})
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}

			if len(sizes) != len(tt.sizes) {
				t.Fatalf("batch sizes = %v, want %v", sizes, tt.sizes)
			}
			for i := range sizes {
				if sizes[i] != tt.sizes[i] {
					t.Fatalf("batch sizes = %v, want %v", sizes, tt.sizes)
				}
			}
		})
	}
}

func TestLoaderEncodes(t *testing.T) {
	samples := []data.Sample{
		{FEN: startFEN, From: 12, To: 28},
		{FEN: "garbage", From: 0, To: 0},
	}
	loader := &Loader{BatchSize: 2, Workers: 2, Logger: zap.NewNop()}

	err := loader.Run(context.Background(), samples, func(b *model.Batch) error {
		first := b.Inputs[:data.PlaneSize]
		second := b.Inputs[data.PlaneSize:]

		ones := 0
		for _, v := range first {
			if v == 1 {
				ones++
			}
		}
		if ones != 32 {
			t.Errorf("start position has %d set cells, want 32", ones)
		}
		for _, v := range second {
			if v != 0 {
				t.Fatal("malformed FEN should encode to zeros")
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestLoaderStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	loader := &Loader{BatchSize: 1, Workers: 2, Logger: zap.NewNop()}

	calls := 0
	err := loader.Run(context.Background(), makeSamples(20), func(b *model.Batch) error {
		calls++
		if calls == 3 {
			return boom
		}
		return nil
	})

	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}
	if calls != 3 {
		t.Errorf("callback ran %d times after error, want 3", calls)
	}
}

func TestLoaderWarnsOnEmptyPosition(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	loader := &Loader{BatchSize: 3, Workers: 1, Logger: zap.New(core)}

	samples := []data.Sample{
		{FEN: startFEN, From: 12, To: 28},
		{FEN: "8/8/8/8/8/8/8/8 w - - 0 1", From: 0, To: 1},
		{FEN: "not a fen", From: 0, To: 1},
	}
	err := loader.Run(context.Background(), samples, func(b *model.Batch) error { return nil })
	if err != nil {
		t.Fatal(err)
	}

	if n := logs.FilterMessage("Position has no pieces").Len(); n != 1 {
		t.Errorf("empty position warnings = %d, want 1", n)
	}
	if n := logs.FilterMessage("Invalid FEN, using empty board").Len(); n != 1 {
		t.Errorf("invalid FEN warnings = %d, want 1", n)
	}
}
