package training

import (
	"context"

	"go.uber.org/zap"

	"github.com/thyrook/thinkmate/internal/data"
)

// MovePredictor returns the top-ranked legal move for a position in
// 4-character form.
type MovePredictor interface {
	PredictMove(fen string) (string, error)
}

// Report is the outcome of an evaluation run.
type Report struct {
	Accuracy float64 `json:"accuracy"` // percent
	Correct  int     `json:"correct"`
	Total    int     `json:"total"`
	Skipped  int     `json:"skipped"`
}

// Evaluate compares the predicted move for each record with the recorded
// move by exact string equality. Records the predictor fails on are
// counted as skipped and excluded from the accuracy.
func Evaluate(ctx context.Context, predictor MovePredictor, records []data.Record, logger *zap.Logger) (Report, error) {
	var report Report

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			report.finish()
			return report, err
		}

		move, err := predictor.PredictMove(rec.FEN)
		if err != nil {
			report.Skipped++
			logger.Debug("Skipping record", zap.Int("index", i), zap.String("fen", rec.FEN), zap.Error(err))
			continue
		}

		if move == rec.Move {
			report.Correct++
		}
		report.Total++
	}

	report.finish()
	return report, nil
}

func (r *Report) finish() {
	if r.Total > 0 {
		r.Accuracy = float64(r.Correct) / float64(r.Total) * 100
	}
}
