package training

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thyrook/thinkmate/internal/data"
	"github.com/thyrook/thinkmate/internal/model"
)

// Loader encodes samples into batches on worker goroutines and hands the
// batches to a single consumer in sample order.
type Loader struct {
	BatchSize int
	Workers   int
	Logger    *zap.Logger
}

type batchJob struct {
	samples []data.Sample
	batch   *model.Batch
	done    chan struct{}
}

// Run splits samples into consecutive batches (the last may be short) and
// calls fn on each one in order. It stops at the first error from fn or
// when ctx is cancelled.
func (l *Loader) Run(ctx context.Context, samples []data.Sample, fn func(*model.Batch) error) error {
	batchSize := l.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}
	workers := l.Workers
	if workers < 1 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)

	jobs := make(chan *batchJob, workers)
	ordered := make(chan *batchJob, 2*workers)

	g.Go(func() error {
		defer close(jobs)
		defer close(ordered)
		for start := 0; start < len(samples); start += batchSize {
			end := start + batchSize
			if end > len(samples) {
				end = len(samples)
			}
			job := &batchJob{samples: samples[start:end], done: make(chan struct{})}

			select {
			case ordered <- job:
			case <-ctx.Done():
				return ctx.Err()
			}
			select {
			case jobs <- job:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for job := range jobs {
				job.batch = l.build(job.samples)
				close(job.done)
			}
			return nil
		})
	}

	g.Go(func() error {
		for job := range ordered {
			select {
			case <-job.done:
			case <-ctx.Done():
				return ctx.Err()
			}
			if err := fn(job.batch); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}

// build encodes one batch. Positions that fail to parse keep the zero
// tensor and are logged.
func (l *Loader) build(samples []data.Sample) *model.Batch {
	b := model.NewBatch(len(samples))
	for i, s := range samples {
		planes, err := data.EncodeFEN(s.FEN)
		if l.Logger != nil {
			switch {
			case err != nil:
				l.Logger.Warn("Invalid FEN, using empty board", zap.String("fen", s.FEN), zap.Error(err))
			case planes.IsEmpty():
				l.Logger.Warn("Position has no pieces", zap.String("fen", s.FEN))
			}
		}
		planes.Flatten(b.Inputs[i*data.PlaneSize : (i+1)*data.PlaneSize])
		b.From[i] = s.From
		b.To[i] = s.To
	}
	return b
}
