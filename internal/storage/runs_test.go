package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) (*RunStore, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "history", "runs.db")
	store, err := NewRunStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, dbPath
}

func TestBeginRun(t *testing.T) {
	store, _ := openTestStore(t)

	first, err := store.BeginRun()
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.BeginRun()
	if err != nil {
		t.Fatal(err)
	}
	if first != 1 || second != 2 {
		t.Errorf("run IDs = %d, %d; want 1, 2", first, second)
	}

	runs, err := store.Runs()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0] != 1 || runs[1] != 2 {
		t.Errorf("Runs() = %v", runs)
	}
}

func TestRecordEpochs(t *testing.T) {
	store, _ := openTestStore(t)
	run, _ := store.BeginRun()

	losses := []float64{2.1, 1.7, 1.9}
	for i, loss := range losses {
		rec := EpochRecord{Run: run, Epoch: i + 1, Loss: loss, Samples: 100}
		if err := store.RecordEpoch(rec); err != nil {
			t.Fatalf("RecordEpoch failed: %v", err)
		}
	}

	records, err := store.Epochs(run)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	for i, rec := range records {
		if rec.Epoch != i+1 || rec.Loss != losses[i] {
			t.Errorf("record %d = %+v", i, rec)
		}
		if rec.Timestamp == 0 {
			t.Errorf("record %d has no timestamp", i)
		}
	}
}

func TestRecordEpochValidation(t *testing.T) {
	store, _ := openTestStore(t)

	if err := store.RecordEpoch(EpochRecord{Epoch: 1}); err == nil {
		t.Error("expected error for missing run ID")
	}
	if err := store.RecordEpoch(EpochRecord{Run: 99, Epoch: 1}); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestBestTracksCheckpoints(t *testing.T) {
	store, _ := openTestStore(t)

	best, err := store.Best()
	if err != nil || best != nil {
		t.Fatalf("empty store Best() = %+v, %v", best, err)
	}

	run, _ := store.BeginRun()
	records := []EpochRecord{
		{Run: run, Epoch: 1, Loss: 2.0, Checkpoint: "a.gob"},
		{Run: run, Epoch: 2, Loss: 1.5, Checkpoint: "a.gob"},
		{Run: run, Epoch: 3, Loss: 1.0},                        // not checkpointed
		{Run: run, Epoch: 4, Loss: 1.8, Checkpoint: "late.gob"}, // worse
	}
	for _, rec := range records {
		if err := store.RecordEpoch(rec); err != nil {
			t.Fatal(err)
		}
	}

	best, err = store.Best()
	if err != nil {
		t.Fatal(err)
	}
	if best == nil || best.Epoch != 2 || best.Loss != 1.5 || best.ModelPath != "a.gob" {
		t.Errorf("Best() = %+v, want epoch 2 loss 1.5", best)
	}
}

func TestPersistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	store, err := NewRunStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	run, _ := store.BeginRun()
	store.RecordEpoch(EpochRecord{Run: run, Epoch: 1, Loss: 0.5, Checkpoint: "m.gob"})
	store.Close()

	reopened, err := NewRunStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	records, err := reopened.Epochs(run)
	if err != nil || len(records) != 1 {
		t.Fatalf("reopened records = %v, %v", records, err)
	}
	next, _ := reopened.BeginRun()
	if next != run+1 {
		t.Errorf("next run = %d, want %d", next, run+1)
	}
}

func TestExportRun(t *testing.T) {
	store, _ := openTestStore(t)
	run, _ := store.BeginRun()
	store.RecordEpoch(EpochRecord{Run: run, Epoch: 1, Loss: 0.9})
	store.RecordEpoch(EpochRecord{Run: run, Epoch: 2, Loss: 0.8})

	out := filepath.Join(t.TempDir(), "history.json")
	if err := store.ExportRun(run, out); err != nil {
		t.Fatalf("ExportRun failed: %v", err)
	}

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var records []EpochRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[1].Loss != 0.8 {
		t.Errorf("exported %+v", records)
	}
}

func TestCloseIdempotent(t *testing.T) {
	store, err := NewRunStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("First close failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}

	if _, err := store.BeginRun(); !errors.Is(err, ErrClosed) {
		t.Errorf("BeginRun after close = %v, want ErrClosed", err)
	}
	if err := store.RecordEpoch(EpochRecord{Run: 1}); !errors.Is(err, ErrClosed) {
		t.Errorf("RecordEpoch after close = %v, want ErrClosed", err)
	}
}
