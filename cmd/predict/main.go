package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/thyrook/thinkmate/internal/config"
	"github.com/thyrook/thinkmate/internal/decision"
	"github.com/thyrook/thinkmate/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	modelPath := flag.String("model", "", "Path to trained model")
	fen := flag.String("fen", "", "Position to move from")
	topK := flag.Int("top", decision.DefaultTopK, "Number of candidates to show")

	flag.Parse()

	if *fen == "" {
		fmt.Println("Usage: predict -fen='<FEN>' [-model=models/chess_cnn.gob]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
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

	session, err := decision.NewSession(cfg.Model.Path, logger)
	if err != nil {
		logger.Error("Failed to load model", zap.Error(err))
		os.Exit(1)
	}
	defer session.Close()
	session.SetTopK(*topK)

	sel, err := session.SelectMove(*fen)
	if err != nil {
		os.Exit(1)
	}
	if sel == nil {
		fmt.Println("No move: game is over")
		return
	}

	fmt.Printf("Move: %s (score %.4f, %v)\n", sel.Move, sel.Score, sel.Elapsed)
	fmt.Printf("Entropy: from %.2f bits, to %.2f bits\n", sel.FromEntropy, sel.ToEntropy)
	for i, c := range sel.Candidates {
		fmt.Printf("  %d. %s  %.4f\n", i+1, c.Move, c.Score)
	}
}
