package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/thyrook/thinkmate/internal/config"
	"github.com/thyrook/thinkmate/internal/data"
	"github.com/thyrook/thinkmate/internal/logging"
	"github.com/thyrook/thinkmate/internal/model"
	"github.com/thyrook/thinkmate/internal/storage"
	"github.com/thyrook/thinkmate/internal/training"
)

func main() {
	// Command-line flags
	configPath := flag.String("config", "", "Path to JSON config (defaults and THINKMATE_* env apply)")
	datasetPath := flag.String("dataset", "", "Training data: CSV file, or .db record store from ingest-pgn")
	modelPath := flag.String("model", "", "Path to save the best model")
	epochs := flag.Int("epochs", 0, "Number of training epochs")
	batchSize := flag.Int("batch-size", 0, "Batch size for training")
	learningRate := flag.Float64("lr", 0, "Initial learning rate")
	resume := flag.Bool("resume", false, "Continue from the existing model instead of fresh weights")
	skipInvalid := flag.Bool("skip-invalid", false, "Drop records with unparseable move labels")
	historyJSON := flag.String("history-json", "", "Also export this run's epoch history as JSON")
	listRuns := flag.Bool("list-runs", false, "Print the recorded training runs and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *datasetPath != "" {
		cfg.Training.DatasetPath = *datasetPath
	}
	if *modelPath != "" {
		cfg.Model.Path = *modelPath
	}
	if *epochs > 0 {
		cfg.Training.Epochs = *epochs
	}
	if *batchSize > 0 {
		cfg.Training.BatchSize = *batchSize
	}
	if *learningRate > 0 {
		cfg.Training.LearningRate = *learningRate
	}
	if *skipInvalid {
		cfg.Training.SkipInvalidLabels = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *listRuns {
		if err := printRuns(cfg.Training.HistoryPath); err != nil {
			logger.Error("Failed to list runs", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *resume, *historyJSON, logger); err != nil {
		logger.Error("Training failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, resume bool, historyJSON string, logger *zap.Logger) error {
	records, err := loadRecords(cfg.Training.DatasetPath, logger)
	if err != nil {
		return err
	}
	samples := training.PrepareSamples(records, cfg.Training.SkipInvalidLabels, logger)

	var params *model.ParamSet
	if resume {
		params, err = model.LoadParamSet(cfg.Model.Path)
		if err != nil {
			return fmt.Errorf("failed to resume: %w", err)
		}
		logger.Info("Resuming from model", zap.String("path", cfg.Model.Path))
	} else {
		params = model.NewParamSet(cfg.Training.Seed)
	}

	trainer, err := training.NewTrainer(training.Config{
		Epochs:          cfg.Training.Epochs,
		BatchSize:       cfg.Training.BatchSize,
		LearningRate:    cfg.Training.LearningRate,
		MinLearningRate: cfg.Training.MinLearningRate,
		WarmupEpochs:    cfg.Training.WarmupEpochs,
		WeightDecay:     cfg.Training.WeightDecay,
		LabelSmoothing:  cfg.Training.LabelSmoothing,
		Workers:         cfg.Training.Workers,
		Seed:            cfg.Training.Seed,
		OutputPath:      cfg.Model.Path,
	}, params, logger)
	if err != nil {
		return err
	}
	defer trainer.Close()

	var (
		history *storage.RunStore
		runID   uint64
	)
	if cfg.Training.HistoryPath != "" {
		history, err = storage.NewRunStore(cfg.Training.HistoryPath)
		if err != nil {
			return err
		}
		defer history.Close()

		if runID, err = history.BeginRun(); err != nil {
			return err
		}
		logger.Info("Recording training history", zap.String("path", history.Path()), zap.Uint64("run", runID))

		trainer.OnEpoch(func(m training.EpochMetrics) error {
			rec := storage.EpochRecord{
				Run:          runID,
				Epoch:        m.Epoch,
				Loss:         m.Loss,
				FromAccuracy: m.FromAccuracy,
				ToAccuracy:   m.ToAccuracy,
				LearningRate: m.LearningRate,
				Samples:      m.Samples,
				DurationMs:   m.Duration.Milliseconds(),
			}
			if m.Checkpointed {
				rec.Checkpoint = cfg.Model.Path
			}
			return history.RecordEpoch(rec)
		})
	}

	if err := trainer.Train(ctx, samples); err != nil {
		return err
	}

	best, bestEpoch := trainer.Best()
	fmt.Println()
	fmt.Println("Training Complete")
	fmt.Println(strings.Repeat("=", 40))
	fmt.Printf("Best loss:    %.4f (epoch %d)\n", best, bestEpoch)
	if h := trainer.History(); len(h) > 0 {
		last := h[len(h)-1]
		fmt.Printf("Final epoch:  loss %.4f, from %.2f%%, to %.2f%%\n", last.Loss, last.FromAccuracy, last.ToAccuracy)
	}
	fmt.Printf("Model saved:  %s\n", cfg.Model.Path)

	if history != nil && historyJSON != "" {
		if err := history.ExportRun(runID, historyJSON); err != nil {
			return err
		}
		fmt.Printf("History:      %s\n", historyJSON)
	}
	return nil
}

func printRuns(path string) error {
	if path == "" {
		return fmt.Errorf("no history path configured")
	}
	store, err := storage.NewRunStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No recorded runs")
		return nil
	}

	for _, run := range runs {
		epochs, err := store.Epochs(run)
		if err != nil {
			return err
		}
		if len(epochs) == 0 {
			fmt.Printf("Run %d: no epochs\n", run)
			continue
		}
		last := epochs[len(epochs)-1]
		fmt.Printf("Run %d: %d epochs, final loss %.4f\n", run, len(epochs), last.Loss)
	}

	best, err := store.Best()
	if err != nil {
		return err
	}
	if best != nil {
		fmt.Printf("Best: run %d epoch %d loss %.4f (%s)\n", best.Run, best.Epoch, best.Loss, best.ModelPath)
	}
	return nil
}

func loadRecords(path string, logger *zap.Logger) ([]data.Record, error) {
	if strings.HasSuffix(path, ".db") {
		dataset, err := data.NewDataset(path)
		if err != nil {
			return nil, err
		}
		defer dataset.Close()

		records, err := dataset.LoadAll()
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded record store", zap.String("path", path), zap.Int("records", len(records)))
		return records, nil
	}

	records, report, err := data.LoadCSV(path)
	if err != nil {
		return nil, err
	}
	logger.Info("Loaded CSV",
		zap.String("path", path),
		zap.Strings("columns", report.Columns),
		zap.Int("rows", report.Rows),
		zap.Int("dropped", report.Dropped()),
		zap.Int("records", len(records)))
	return records, nil
}
