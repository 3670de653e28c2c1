package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/thyrook/thinkmate/internal/config"
	"github.com/thyrook/thinkmate/internal/data"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	input := flag.String("input", "", "Source CSV with FEN,Move columns")
	outputDir := flag.String("output-dir", "", "Directory for train_data.csv and test_data.csv")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *input != "" {
		cfg.Evaluation.DatasetPath = *input
	}
	if *outputDir != "" {
		cfg.Evaluation.OutputDir = *outputDir
	}

	records, report, err := data.LoadCSV(cfg.Evaluation.DatasetPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", cfg.Evaluation.DatasetPath, err)
		os.Exit(1)
	}

	fmt.Println("Dataset Preparation")
	fmt.Println(strings.Repeat("=", 40))
	fmt.Printf("Columns:         %s\n", strings.Join(report.Columns, ", "))
	fmt.Printf("Rows:            %d\n", report.Rows)
	fmt.Printf("Missing FEN:     %d\n", report.MissingFEN)
	fmt.Printf("Missing Move:    %d\n", report.MissingMove)
	fmt.Printf("Kept:            %d\n", report.Kept)

	train, test, err := data.Split(records, cfg.Evaluation.TestFraction, cfg.Evaluation.SplitSeed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to split: %v\n", err)
		os.Exit(1)
	}

	trainPath := filepath.Join(cfg.Evaluation.OutputDir, "train_data.csv")
	testPath := filepath.Join(cfg.Evaluation.OutputDir, "test_data.csv")
	if err := data.WriteCSV(trainPath, train); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", trainPath, err)
		os.Exit(1)
	}
	if err := data.WriteCSV(testPath, test); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", testPath, err)
		os.Exit(1)
	}

	fmt.Printf("Training set:    %d -> %s\n", len(train), trainPath)
	fmt.Printf("Test set:        %d -> %s\n", len(test), testPath)
}
