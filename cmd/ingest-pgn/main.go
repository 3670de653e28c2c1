package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/thyrook/thinkmate/internal/config"
	"github.com/thyrook/thinkmate/internal/data"
	"github.com/thyrook/thinkmate/internal/logging"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "", "Path to JSON config")
	pgnPath := flag.String("pgn", "", "Path to PGN file to ingest")
	datasetPath := flag.String("dataset", "", "Path to output record store")
	maxGames := flag.Int("max-games", -1, "Maximum number of games to process (0 = all)")
	maxPositions := flag.Int("max-positions", -1, "Maximum positions to extract (0 = all)")
	workers := flag.Int("workers", 0, "Number of parallel workers")
	verify := flag.Bool("verify", false, "Verify dataset integrity after ingestion")
	showStats := flag.Bool("stats", false, "Show dataset statistics")
	exportCSV := flag.String("export-csv", "", "Write the record store as FEN,Move CSV")
	reset := flag.Bool("reset", false, "Clear the record store before ingesting")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *pgnPath != "" {
		cfg.Ingestion.PGNPath = *pgnPath
	}
	if *datasetPath != "" {
		cfg.Training.RecordStore = *datasetPath
	}
	if *maxGames >= 0 {
		cfg.Ingestion.MaxGames = *maxGames
	}
	if *maxPositions >= 0 {
		cfg.Ingestion.MaxPositions = *maxPositions
	}
	if *workers > 0 {
		cfg.Ingestion.Workers = *workers
	}

	if *showStats || *exportCSV != "" {
		if err := inspect(cfg.Training.RecordStore, *showStats, *exportCSV); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		return
	}

	// Require PGN path for ingestion
	if cfg.Ingestion.PGNPath == "" {
		fmt.Println("Chess Dataset Ingestion Tool")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  Ingest PGN file:")
		fmt.Println("    ingest-pgn -pgn=games.pgn -dataset=data/positions.db")
		fmt.Println()
		fmt.Println("  Show statistics:")
		fmt.Println("    ingest-pgn -dataset=data/positions.db -stats")
		fmt.Println()
		flag.PrintDefaults()
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := data.ValidatePGN(cfg.Ingestion.PGNPath); err != nil {
		logger.Error("Refusing to ingest", zap.String("pgn", cfg.Ingestion.PGNPath), zap.Error(err))
		os.Exit(1)
	}

	ingestCfg := data.DefaultIngestionConfig(cfg.Ingestion.PGNPath, cfg.Training.RecordStore)
	ingestCfg.MaxGames = cfg.Ingestion.MaxGames
	ingestCfg.MaxPositions = cfg.Ingestion.MaxPositions
	if cfg.Ingestion.BatchSize > 0 {
		ingestCfg.BatchSize = cfg.Ingestion.BatchSize
	}
	if cfg.Ingestion.Workers > 0 {
		ingestCfg.WorkerPoolSize = cfg.Ingestion.Workers
	}

	ingestor, err := data.NewIngestor(ingestCfg, logger)
	if err != nil {
		logger.Error("Failed to create ingestor", zap.Error(err))
		os.Exit(1)
	}
	defer ingestor.Close()

	if *reset {
		if err := ingestor.Dataset().Clear(); err != nil {
			logger.Error("Failed to clear record store", zap.Error(err))
			os.Exit(1)
		}
		logger.Info("Record store cleared", zap.String("path", cfg.Training.RecordStore))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := ingestor.Ingest(ctx)
	if err != nil {
		logger.Error("Ingestion failed", zap.Error(err))
		os.Exit(1)
	}

	// Print summary
	fmt.Println()
	fmt.Println("============================================================")
	fmt.Println("Ingestion Complete")
	fmt.Println("============================================================")
	fmt.Printf("Games processed:     %d / %d\n", stats.GamesProcessed, stats.TotalGames)
	fmt.Printf("Games skipped:       %d\n", stats.SkippedGames)
	fmt.Printf("Positions ingested:  %d\n", stats.PositionsIngested)

	if *verify {
		if err := ingestor.Dataset().VerifyIntegrity(); err != nil {
			logger.Error("Integrity check failed", zap.Error(err))
			os.Exit(1)
		}
		fmt.Println("Integrity check:     ok")
	}
}

func inspect(datasetPath string, showStats bool, exportCSV string) error {
	dataset, err := data.NewDataset(datasetPath)
	if err != nil {
		return fmt.Errorf("failed to open dataset: %w", err)
	}
	defer dataset.Close()

	if showStats {
		stats, err := dataset.GetStats()
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		fmt.Println("Dataset Statistics")
		fmt.Println("========================================")
		fmt.Printf("File:            %s\n", stats.FilePath)
		fmt.Printf("Total records:   %d\n", stats.TotalRecords)
		fmt.Printf("File size:       %.2f MB\n", float64(stats.FileSize)/1024/1024)

		entries, err := dataset.LoadBatch(0, 5)
		if err != nil {
			return fmt.Errorf("failed to load sample: %w", err)
		}
		for i, entry := range entries {
			fmt.Printf("\nRecord %d:\n", i+1)
			fmt.Printf("  Game ID:  %s\n", entry.GameID)
			fmt.Printf("  Move #:   %d\n", entry.MoveNumber)
			fmt.Printf("  FEN:      %s\n", entry.FEN)
			fmt.Printf("  Move:     %s\n", entry.Move)
		}
	}

	if exportCSV != "" {
		records, err := dataset.LoadAll()
		if err != nil {
			return err
		}
		if err := data.WriteCSV(exportCSV, records); err != nil {
			return err
		}
		fmt.Printf("Exported %d records to %s\n", len(records), exportCSV)
	}
	return nil
}
