package training

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/thyrook/thinkmate/internal/data"
	"github.com/thyrook/thinkmate/internal/model"
)

// Config holds training hyperparameters
type Config struct {
	Epochs          int
	BatchSize       int
	LearningRate    float64
	MinLearningRate float64
	WarmupEpochs    int
	WeightDecay     float64
	LabelSmoothing  float64
	Workers         int
	Seed            int64
	OutputPath      string
}

// DefaultConfig returns the default training configuration
func DefaultConfig() Config {
	return Config{
		Epochs:         50,
		BatchSize:      256,
		LearningRate:   3e-4,
		WeightDecay:    1e-5,
		LabelSmoothing: 0.1,
		Workers:        2,
		Seed:           1,
		OutputPath:     "models/chess_cnn.gob",
	}
}

// EpochMetrics tracks training progress
type EpochMetrics struct {
	Epoch        int           `json:"epoch"`
	Loss         float64       `json:"loss"`
	FromAccuracy float64       `json:"from_accuracy"`
	ToAccuracy   float64       `json:"to_accuracy"`
	LearningRate float64       `json:"learning_rate"`
	Samples      int           `json:"samples"`
	Duration     time.Duration `json:"duration"`
	Checkpointed bool          `json:"checkpointed"`
}

// AvgAccuracy is the mean of origin and destination accuracy.
func (m EpochMetrics) AvgAccuracy() float64 {
	return (m.FromAccuracy + m.ToAccuracy) / 2
}

// Trainer runs the epoch loop over a fixed parameter set.
type Trainer struct {
	config Config
	params *model.ParamSet
	logger *zap.Logger

	opt    *model.AdamW
	sched  model.LRScheduler
	ckpt   *Checkpointer
	loader *Loader
	rng    *rand.Rand

	// one graph per batch size seen; only the tail batch differs
	graphs map[int]*model.TrainGraph

	history []EpochMetrics
	onEpoch func(EpochMetrics) error
}

// NewTrainer creates a trainer that updates params in place and writes
// improving checkpoints to config.OutputPath.
func NewTrainer(config Config, params *model.ParamSet, logger *zap.Logger) (*Trainer, error) {
	if config.Epochs < 1 {
		return nil, fmt.Errorf("epochs must be positive, got %d", config.Epochs)
	}
	if config.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", config.BatchSize)
	}
	if params == nil {
		return nil, errors.New("params is nil")
	}

	return &Trainer{
		config: config,
		params: params,
		logger: logger,
		opt:    model.NewAdamW(config.LearningRate, config.WeightDecay),
		sched:  model.NewCosineAnnealingScheduler(config.LearningRate, config.MinLearningRate, config.WarmupEpochs, config.Epochs),
		ckpt:   NewCheckpointer(config.OutputPath, params.Save),
		loader: &Loader{BatchSize: config.BatchSize, Workers: config.Workers, Logger: logger},
		rng:    rand.New(rand.NewSource(config.Seed)),
		graphs: make(map[int]*model.TrainGraph),
	}, nil
}

// OnEpoch registers a callback invoked after every epoch. An error from
// the callback is logged and does not stop training.
func (t *Trainer) OnEpoch(fn func(EpochMetrics) error) {
	t.onEpoch = fn
}

// History returns the metrics of completed epochs.
func (t *Trainer) History() []EpochMetrics {
	return t.history
}

// Best returns the best epoch loss and its epoch.
func (t *Trainer) Best() (float64, int) {
	return t.ckpt.Best()
}

// Train runs the configured number of epochs over samples.
func (t *Trainer) Train(ctx context.Context, samples []data.Sample) error {
	if len(samples) == 0 {
		return errors.New("no training samples")
	}

	t.logger.Info("Starting training",
		zap.Int("samples", len(samples)),
		zap.Int("epochs", t.config.Epochs),
		zap.Int("batch_size", t.config.BatchSize),
		zap.Float64("learning_rate", t.config.LearningRate),
		zap.Int("params", t.params.NumParams()))

	order := make([]data.Sample, len(samples))
	copy(order, samples)

	for epoch := 1; epoch <= t.config.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		t.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})

		metrics, err := t.trainEpoch(ctx, epoch, order)
		if err != nil {
			return fmt.Errorf("epoch %d failed: %w", epoch, err)
		}

		saved, err := t.ckpt.Observe(epoch, metrics.Loss)
		if err != nil {
			return err
		}
		metrics.Checkpointed = saved
		t.sched.Step()

		t.history = append(t.history, metrics)
		t.logger.Info("Epoch complete",
			zap.Int("epoch", epoch),
			zap.Int("epochs", t.config.Epochs),
			zap.Float64("loss", metrics.Loss),
			zap.Float64("from_acc", metrics.FromAccuracy),
			zap.Float64("to_acc", metrics.ToAccuracy),
			zap.Float64("avg_acc", metrics.AvgAccuracy()),
			zap.Float64("lr", metrics.LearningRate),
			zap.Duration("duration", metrics.Duration))
		if saved {
			t.logger.Info("Model improved, checkpoint saved", zap.String("path", t.ckpt.Path()))
		}

		if t.onEpoch != nil {
			if err := t.onEpoch(metrics); err != nil {
				t.logger.Warn("Epoch callback failed", zap.Error(err))
			}
		}
	}

	best, bestEpoch := t.ckpt.Best()
	t.logger.Info("Training complete",
		zap.Float64("best_loss", best),
		zap.Int("best_epoch", bestEpoch),
		zap.Int("optimizer_steps", t.opt.Steps()))
	return nil
}

func (t *Trainer) trainEpoch(ctx context.Context, epoch int, samples []data.Sample) (EpochMetrics, error) {
	start := time.Now()
	t.opt.SetLearnRate(t.sched.GetCurrentLR())

	var (
		lossSum     float64
		total       int
		correctFrom int
		correctTo   int
	)

	err := t.loader.Run(ctx, samples, func(b *model.Batch) error {
		tg, err := t.graphFor(b.Len())
		if err != nil {
			return err
		}
		res, err := tg.Step(b, t.opt)
		if err != nil {
			return err
		}

		lossSum += res.Loss * float64(res.Size)
		total += res.Size
		correctFrom += res.CorrectFrom
		correctTo += res.CorrectTo
		return nil
	})
	if err != nil {
		return EpochMetrics{}, err
	}

	return EpochMetrics{
		Epoch:        epoch,
		Loss:         lossSum / float64(total),
		FromAccuracy: float64(correctFrom) / float64(total) * 100,
		ToAccuracy:   float64(correctTo) / float64(total) * 100,
		LearningRate: t.opt.LearnRate(),
		Samples:      total,
		Duration:     time.Since(start),
	}, nil
}

func (t *Trainer) graphFor(batch int) (*model.TrainGraph, error) {
	if tg, ok := t.graphs[batch]; ok {
		return tg, nil
	}
	tg, err := model.NewTrainGraph(t.params, batch, t.config.LabelSmoothing)
	if err != nil {
		return nil, err
	}
	t.graphs[batch] = tg
	t.logger.Debug("Built training graph", zap.Int("batch_size", tg.BatchSize()))
	return tg, nil
}

// Close releases the compiled graphs.
func (t *Trainer) Close() error {
	var errs []error
	for _, tg := range t.graphs {
		if err := tg.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	t.graphs = make(map[int]*model.TrainGraph)
	return errors.Join(errs...)
}

// PrepareSamples validates records and applies the label policy, logging
// every record whose label could not be parsed.
func PrepareSamples(records []data.Record, skipInvalid bool, logger *zap.Logger) []data.Sample {
	policy := data.SentinelLabel
	if skipInvalid {
		policy = data.SkipLabel
	}

	samples, flagged := data.Samples(data.Validate(records), policy)
	for _, res := range flagged {
		logger.Warn("Invalid move label",
			zap.Int("index", res.Index),
			zap.String("move", res.Record.Move),
			zap.String("reason", string(res.Reason)),
			zap.Bool("skipped", skipInvalid),
			zap.Error(res.Err))
	}
	if len(flagged) > 0 {
		logger.Info("Label validation finished",
			zap.Int("records", len(records)),
			zap.Int("invalid", len(flagged)),
			zap.Int("samples", len(samples)))
	}
	return samples
}
