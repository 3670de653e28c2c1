package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/thyrook/thinkmate/internal/config"
	"github.com/thyrook/thinkmate/internal/data"
	"github.com/thyrook/thinkmate/internal/decision"
	"github.com/thyrook/thinkmate/internal/logging"
	"github.com/thyrook/thinkmate/internal/model"
	"github.com/thyrook/thinkmate/internal/training"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	dataPath := flag.String("data", "", "CSV file with FEN,Move columns")
	modelPath := flag.String("model", "", "Path to trained model")
	noSplit := flag.Bool("no-split", false, "Evaluate every row instead of the held-out split")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dataPath != "" {
		cfg.Evaluation.DatasetPath = *dataPath
	}
	if *modelPath != "" {
		cfg.Model.Path = *modelPath
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	records, report, err := data.LoadCSV(cfg.Evaluation.DatasetPath)
	if err != nil {
		logger.Error("Failed to load data", zap.String("path", cfg.Evaluation.DatasetPath), zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Loaded CSV", zap.Int("rows", report.Rows), zap.Int("records", len(records)))

	test := records
	if !*noSplit {
		_, test, err = data.Split(records, cfg.Evaluation.TestFraction, cfg.Evaluation.SplitSeed)
		if err != nil {
			logger.Error("Failed to split data", zap.Error(err))
			os.Exit(1)
		}
	}

	session, err := decision.NewSession(cfg.Model.Path, logger)
	if err != nil {
		if errors.Is(err, model.ErrModelNotFound) {
			fmt.Fprintf(os.Stderr, "Model file not found: %s\n", cfg.Model.Path)
		} else {
			logger.Error("Failed to load model", zap.Error(err))
		}
		os.Exit(1)
	}
	defer session.Close()

	result, err := training.Evaluate(ctx, session, test, logger)
	if err != nil {
		logger.Error("Evaluation interrupted", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Evaluation complete",
		zap.Int("correct", result.Correct),
		zap.Int("total", result.Total),
		zap.Int("skipped", result.Skipped))
	fmt.Printf("Model Accuracy on Test Set: %.2f%%\n", result.Accuracy)
}
