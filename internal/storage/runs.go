package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	// RunsBucket holds one nested bucket of epoch records per training run
	RunsBucket = "runs"

	// MetaBucket for storing metadata
	MetaBucket = "meta"

	// NextRunKey tracks the last issued run ID
	NextRunKey = "next_run"

	// BestKey holds the best checkpoint across all runs
	BestKey = "best"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// EpochRecord is the persisted summary of one training epoch
type EpochRecord struct {
	Run          uint64  `json:"run"`
	Epoch        int     `json:"epoch"`
	Loss         float64 `json:"loss"`
	FromAccuracy float64 `json:"from_accuracy"`
	ToAccuracy   float64 `json:"to_accuracy"`
	LearningRate float64 `json:"learning_rate"`
	Samples      int     `json:"samples"`
	DurationMs   int64   `json:"duration_ms"`
	Checkpoint   string  `json:"checkpoint,omitempty"` // set when the epoch saved the model
	Timestamp    int64   `json:"timestamp"`
}

// BestRecord points at the lowest-loss checkpoint written so far
type BestRecord struct {
	Run       uint64  `json:"run"`
	Epoch     int     `json:"epoch"`
	Loss      float64 `json:"loss"`
	ModelPath string  `json:"model_path"`
	Timestamp int64   `json:"timestamp"`
}

// RunStore persists training history in BoltDB
type RunStore struct {
	db       *bbolt.DB
	dbPath   string
	isClosed bool
}

// NewRunStore opens or creates the history database at dbPath
func NewRunStore(dbPath string) (*RunStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(RunsBucket)); err != nil {
			return fmt.Errorf("create runs bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(MetaBucket)); err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &RunStore{db: db, dbPath: dbPath}, nil
}

// BeginRun allocates a new run ID
func (s *RunStore) BeginRun() (uint64, error) {
	if s.isClosed {
		return 0, ErrClosed
	}

	var id uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket([]byte(MetaBucket))
		if raw := meta.Get([]byte(NextRunKey)); raw != nil {
			id = binary.BigEndian.Uint64(raw)
		}
		id++

		if err := meta.Put([]byte(NextRunKey), u64(id)); err != nil {
			return err
		}
		_, err := tx.Bucket([]byte(RunsBucket)).CreateBucketIfNotExists(u64(id))
		return err
	})
	return id, err
}

// RecordEpoch stores rec under its run. A record carrying a checkpoint
// with a loss below the stored best replaces the best record.
func (s *RunStore) RecordEpoch(rec EpochRecord) error {
	if s.isClosed {
		return ErrClosed
	}
	if rec.Run == 0 {
		return fmt.Errorf("record has no run ID")
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().Unix()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal epoch: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		run := tx.Bucket([]byte(RunsBucket)).Bucket(u64(rec.Run))
		if run == nil {
			return fmt.Errorf("run %d not found", rec.Run)
		}
		if err := run.Put(u64(uint64(rec.Epoch)), data); err != nil {
			return err
		}

		if rec.Checkpoint == "" {
			return nil
		}

		meta := tx.Bucket([]byte(MetaBucket))
		if raw := meta.Get([]byte(BestKey)); raw != nil {
			var best BestRecord
			if err := json.Unmarshal(raw, &best); err == nil && !(rec.Loss < best.Loss) {
				return nil
			}
		}

		best, err := json.Marshal(BestRecord{
			Run:       rec.Run,
			Epoch:     rec.Epoch,
			Loss:      rec.Loss,
			ModelPath: rec.Checkpoint,
			Timestamp: rec.Timestamp,
		})
		if err != nil {
			return err
		}
		return meta.Put([]byte(BestKey), best)
	})
}

// Epochs returns the records of a run in epoch order
func (s *RunStore) Epochs(run uint64) ([]EpochRecord, error) {
	if s.isClosed {
		return nil, ErrClosed
	}

	var records []EpochRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(RunsBucket)).Bucket(u64(run))
		if b == nil {
			return fmt.Errorf("run %d not found", run)
		}
		return b.ForEach(func(_, v []byte) error {
			var rec EpochRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil // Skip corrupted records
			}
			records = append(records, rec)
			return nil
		})
	})
	return records, err
}

// Runs returns all run IDs in ascending order
func (s *RunStore) Runs() ([]uint64, error) {
	if s.isClosed {
		return nil, ErrClosed
	}

	var runs []uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(RunsBucket)).ForEach(func(k, v []byte) error {
			if v == nil && len(k) == 8 {
				runs = append(runs, binary.BigEndian.Uint64(k))
			}
			return nil
		})
	})
	return runs, err
}

// Best returns the best checkpoint record, or nil if none was stored
func (s *RunStore) Best() (*BestRecord, error) {
	if s.isClosed {
		return nil, ErrClosed
	}

	var best *BestRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(MetaBucket)).Get([]byte(BestKey))
		if raw == nil {
			return nil
		}
		best = &BestRecord{}
		return json.Unmarshal(raw, best)
	})
	return best, err
}

// ExportRun writes a run's history as indented JSON
func (s *RunStore) ExportRun(run uint64, outputPath string) error {
	records, err := s.Epochs(run)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	return os.WriteFile(outputPath, data, 0644)
}

// Path returns the database file path
func (s *RunStore) Path() string {
	return s.dbPath
}

// Close closes the database connection
func (s *RunStore) Close() error {
	if s.isClosed {
		return nil
	}

	s.isClosed = true
	return s.db.Close()
}

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
