package data

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	records := []Record{
		{FEN: startFEN, Move: "e7e5"},
		{FEN: startFEN, Move: "bogus"},
		{FEN: startFEN, Move: "e7e8q"},
		{FEN: startFEN, Move: ""},
	}

	results := Validate(records)
	if len(results) != len(records) {
		t.Fatalf("Validate returned %d results, want %d", len(results), len(records))
	}

	tests := []struct {
		reason   SkipReason
		from, to int
	}{
		{SkipNone, 52, 36},
		{SkipInvalidLabel, 0, 0},
		{SkipNone, 52, 60},
		{SkipInvalidLabel, 0, 0},
	}
	for i, tt := range tests {
		res := results[i]
		if res.Index != i {
			t.Errorf("result %d has index %d", i, res.Index)
		}
		if res.Reason != tt.reason {
			t.Errorf("result %d reason = %q, want %q", i, res.Reason, tt.reason)
		}
		if res.Sample.From != tt.from || res.Sample.To != tt.to {
			t.Errorf("result %d label = (%d, %d), want (%d, %d)", i, res.Sample.From, res.Sample.To, tt.from, tt.to)
		}
		if tt.reason != SkipNone && !errors.Is(res.Err, ErrInvalidMove) {
			t.Errorf("result %d error = %v, want ErrInvalidMove", i, res.Err)
		}
	}
}

func TestSamplesPolicy(t *testing.T) {
	results := Validate([]Record{
		{FEN: startFEN, Move: "e7e5"},
		{FEN: startFEN, Move: "??"},
		{FEN: startFEN, Move: "d7d5"},
	})

	kept, flagged := Samples(results, SentinelLabel)
	if len(kept) != 3 || len(flagged) != 1 {
		t.Fatalf("sentinel policy: kept %d flagged %d, want 3 and 1", len(kept), len(flagged))
	}
	if kept[1].From != 0 || kept[1].To != 0 {
		t.Errorf("sentinel label = (%d, %d), want (0, 0)", kept[1].From, kept[1].To)
	}

	kept, flagged = Samples(results, SkipLabel)
	if len(kept) != 2 || len(flagged) != 1 {
		t.Fatalf("skip policy: kept %d flagged %d, want 2 and 1", len(kept), len(flagged))
	}
	if flagged[0].Index != 1 {
		t.Errorf("flagged index = %d, want 1", flagged[0].Index)
	}
}

func TestSplit(t *testing.T) {
	records := make([]Record, 10)
	for i := range records {
		records[i] = Record{FEN: startFEN, Move: MoveString(i, i+8)}
	}

	train, test, err := Split(records, 0.2, 42)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(train) != 8 || len(test) != 2 {
		t.Fatalf("Split sizes = %d/%d, want 8/2", len(train), len(test))
	}

	seen := make(map[string]int)
	for _, rec := range append(append([]Record(nil), train...), test...) {
		seen[rec.Move]++
	}
	for _, rec := range records {
		if seen[rec.Move] != 1 {
			t.Errorf("record %s appears %d times across splits", rec.Move, seen[rec.Move])
		}
	}

	train2, test2, _ := Split(records, 0.2, 42)
	for i := range test {
		if test[i] != test2[i] {
			t.Error("Split is not deterministic for a fixed seed")
		}
	}
	for i := range train {
		if train[i] != train2[i] {
			t.Error("Split is not deterministic for a fixed seed")
		}
	}

	if records[0].Move != MoveString(0, 8) {
		t.Error("Split modified its input")
	}
}

func TestSplitInvalid(t *testing.T) {
	if _, _, err := Split(nil, 0.2, 1); err == nil {
		t.Error("expected error for empty input")
	}
	if _, _, err := Split([]Record{{FEN: startFEN, Move: "e7e5"}}, 1.5, 1); err == nil {
		t.Error("expected error for out-of-range fraction")
	}
}
