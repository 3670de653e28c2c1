package data

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// IngestionConfig holds configuration for PGN ingestion
type IngestionConfig struct {
	PGNPath        string // Path to PGN file
	DatasetPath    string // Path to output dataset
	MaxGames       int    // Maximum number of games to process (0 = all)
	MaxPositions   int    // Maximum positions to extract (0 = all)
	SkipInvalid    bool   // Skip invalid games instead of failing
	BatchSize      int    // Number of records to batch before writing
	WorkerPoolSize int    // Number of parallel workers (<= 1 = sequential)
}

// DefaultIngestionConfig returns a config with sensible defaults
func DefaultIngestionConfig(pgnPath, datasetPath string) *IngestionConfig {
	return &IngestionConfig{
		PGNPath:        pgnPath,
		DatasetPath:    datasetPath,
		SkipInvalid:    true,
		BatchSize:      100,
		WorkerPoolSize: 4,
	}
}

// Ingestor turns PGN games into (FEN, move) records in a Dataset.
type Ingestor struct {
	config  *IngestionConfig
	dataset *Dataset
	logger  *zap.Logger
}

// NewIngestor creates a new ingestor
func NewIngestor(config *IngestionConfig, logger *zap.Logger) (*Ingestor, error) {
	dataset, err := NewDataset(config.DatasetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset: %w", err)
	}

	return &Ingestor{
		config:  config,
		dataset: dataset,
		logger:  logger,
	}, nil
}

// Dataset returns the underlying record store.
func (ing *Ingestor) Dataset() *Dataset {
	return ing.dataset
}

// Close closes the ingestor and underlying dataset
func (ing *Ingestor) Close() error {
	return ing.dataset.Close()
}

// Ingest parses the configured PGN file and stores every position.
func (ing *Ingestor) Ingest(ctx context.Context) (*IngestionStats, error) {
	stats := &IngestionStats{}

	parser := NewPGNParser(ing.config.PGNPath)
	games, err := parser.ParsePGN()
	if err != nil {
		return stats, fmt.Errorf("failed to parse PGN: %w", err)
	}

	stats.TotalGames = len(games)
	ing.logger.Info("Parsed PGN",
		zap.String("file", filepath.Base(ing.config.PGNPath)),
		zap.Int("games", len(games)))

	if ing.config.MaxGames > 0 && len(games) > ing.config.MaxGames {
		games = games[:ing.config.MaxGames]
		ing.logger.Info("Limited games", zap.Int("max_games", ing.config.MaxGames))
	}

	batchSize := ing.config.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	var (
		batchMu      sync.Mutex
		currentBatch []*StoredRecord
		reserved     int32
	)

	// flush writes full batches; with force it writes whatever is pending.
	flush := func(force bool) error {
		batchMu.Lock()
		var toWrite []*StoredRecord
		if len(currentBatch) >= batchSize || (force && len(currentBatch) > 0) {
			toWrite = currentBatch
			currentBatch = nil
		}
		batchMu.Unlock()

		if len(toWrite) == 0 {
			return nil
		}
		if err := ing.dataset.AddBatch(toWrite); err != nil {
			return fmt.Errorf("failed to add batch: %w", err)
		}
		total := atomic.AddInt32(&stats.PositionsIngested, int32(len(toWrite)))
		ing.logger.Debug("Wrote batch", zap.Int("records", len(toWrite)), zap.Int32("total", total))
		return nil
	}

	processGame := func(gameIdx int) error {
		records, err := ExtractRecords(games[gameIdx])
		if err != nil {
			if ing.config.SkipInvalid {
				atomic.AddInt32(&stats.SkippedGames, 1)
				ing.logger.Warn("Skipping game", zap.Int("game", gameIdx), zap.Error(err))
				return nil
			}
			return fmt.Errorf("failed to extract records from game %d: %w", gameIdx, err)
		}

		gameID := fmt.Sprintf("game_%d", gameIdx)
		for moveNum, rec := range records {
			if ing.config.MaxPositions > 0 && atomic.AddInt32(&reserved, 1) > int32(ing.config.MaxPositions) {
				break
			}

			batchMu.Lock()
			currentBatch = append(currentBatch, &StoredRecord{
				Record:     rec,
				GameID:     gameID,
				MoveNumber: moveNum,
			})
			batchMu.Unlock()

			if err := flush(false); err != nil {
				return err
			}
		}

		atomic.AddInt32(&stats.GamesProcessed, 1)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	workers := ing.config.WorkerPoolSize
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for i := range games {
		i := i
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return processGame(i)
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	if err := flush(true); err != nil {
		return stats, fmt.Errorf("failed to write final batch: %w", err)
	}

	ing.logger.Info("Ingestion complete",
		zap.Int32("games_processed", stats.GamesProcessed),
		zap.Int("total_games", stats.TotalGames),
		zap.Int32("positions_ingested", stats.PositionsIngested),
		zap.Int32("games_skipped", stats.SkippedGames))

	return stats, nil
}

// IngestionStats contains statistics about the ingestion process
type IngestionStats struct {
	TotalGames        int
	GamesProcessed    int32
	PositionsIngested int32
	SkippedGames      int32
}
