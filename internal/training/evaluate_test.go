package training

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/thyrook/thinkmate/internal/data"
)

type fakePredictor map[string]string

func (f fakePredictor) PredictMove(fen string) (string, error) {
	move, ok := f[fen]
	if !ok {
		return "", errors.New("no legal moves")
	}
	return move, nil
}

func TestEvaluateEmpty(t *testing.T) {
	report, err := Evaluate(context.Background(), fakePredictor{}, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if report != (Report{}) {
		t.Errorf("report = %+v, want zero", report)
	}
}

func TestEvaluate(t *testing.T) {
	predictor := fakePredictor{
		"a": "e2e4",
		"b": "d2d4",
		"c": "e7e8",
		"d": "g1f3",
	}
	records := []data.Record{
		{FEN: "a", Move: "e2e4"},  // correct
		{FEN: "b", Move: "c2c4"},  // wrong
		{FEN: "c", Move: "e7e8q"}, // promotion never matches
		{FEN: "d", Move: "g1f3"},  // correct
		{FEN: "x", Move: "e2e4"},  // predictor error, skipped
	}

	report, err := Evaluate(context.Background(), predictor, records, zap.NewNop())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	want := Report{Accuracy: 50, Correct: 2, Total: 4, Skipped: 1}
	if report != want {
		t.Errorf("report = %+v, want %+v", report, want)
	}
}

func TestEvaluateAllSkipped(t *testing.T) {
	records := []data.Record{{FEN: "x", Move: "e2e4"}, {FEN: "y", Move: "d2d4"}}
	report, err := Evaluate(context.Background(), fakePredictor{}, records, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if report.Accuracy != 0 || report.Total != 0 || report.Skipped != 2 {
		t.Errorf("report = %+v", report)
	}
}

func TestEvaluateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Evaluate(ctx, fakePredictor{"a": "e2e4"}, []data.Record{{FEN: "a", Move: "e2e4"}}, zap.NewNop())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
