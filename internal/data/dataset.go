package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"
)

const (
	// DefaultBucketName is the bucket holding position records.
	DefaultBucketName = "records"
)

// StoredRecord is a record plus the provenance the ingestor knows about.
type StoredRecord struct {
	Record
	GameID     string `json:"game_id,omitempty"`
	MoveNumber int    `json:"move_number,omitempty"`
}

// Dataset manages an on-disk record store using BoltDB. Keys are zero
// padded sequence numbers, so iteration order is insertion order.
type Dataset struct {
	db         *bolt.DB
	bucketName string
	path       string
	mu         sync.RWMutex
}

// NewDataset creates a new dataset or opens an existing one
func NewDataset(path string) (*Dataset, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ds := &Dataset{
		db:         db,
		bucketName: DefaultBucketName,
		path:       path,
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(ds.bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return ds, nil
}

// Close closes the dataset
func (ds *Dataset) Close() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.db != nil {
		return ds.db.Close()
	}
	return nil
}

// Add appends a record.
func (ds *Dataset) Add(rec *StoredRecord) error {
	return ds.AddBatch([]*StoredRecord{rec})
}

// AddBatch appends records in a single transaction.
func (ds *Dataset) AddBatch(records []*StoredRecord) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	return ds.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(ds.bucketName))
		if bucket == nil {
			return fmt.Errorf("bucket not found")
		}

		for _, rec := range records {
			id, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			key := []byte(fmt.Sprintf("%020d", id))

			value, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("failed to marshal record: %w", err)
			}

			if err := bucket.Put(key, value); err != nil {
				return err
			}
		}

		return nil
	})
}

// Count returns the number of records in the dataset
func (ds *Dataset) Count() (int, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	count := 0
	err := ds.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(ds.bucketName))
		if bucket == nil {
			return fmt.Errorf("bucket not found")
		}
		return bucket.ForEach(func(k, v []byte) error {
			count++
			return nil
		})
	})

	return count, err
}

// LoadBatch loads n records starting from the given offset.
func (ds *Dataset) LoadBatch(offset, n int) ([]*StoredRecord, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	var records []*StoredRecord

	err := ds.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(ds.bucketName))
		if bucket == nil {
			return fmt.Errorf("bucket not found")
		}

		cursor := bucket.Cursor()

		currentIdx := 0
		k, v := cursor.First()
		for k != nil && currentIdx < offset {
			k, v = cursor.Next()
			currentIdx++
		}

		for loaded := 0; k != nil && loaded < n; loaded++ {
			var rec StoredRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal record %s: %w", k, err)
			}
			records = append(records, &rec)
			k, v = cursor.Next()
		}

		return nil
	})

	return records, err
}

// LoadAll loads every record, dropping those missing a position or a move.
func (ds *Dataset) LoadAll() ([]Record, error) {
	count, err := ds.Count()
	if err != nil {
		return nil, err
	}

	stored, err := ds.LoadBatch(0, count)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(stored))
	for _, rec := range stored {
		if rec.FEN == "" || rec.Move == "" {
			continue
		}
		records = append(records, rec.Record)
	}
	return records, nil
}

// VerifyIntegrity scans the dataset and checks that every record has a
// parseable position and move label.
func (ds *Dataset) VerifyIntegrity() error {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	errors := 0
	totalEntries := 0

	err := ds.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(ds.bucketName))
		if bucket == nil {
			return fmt.Errorf("bucket not found")
		}

		return bucket.ForEach(func(k, v []byte) error {
			totalEntries++

			var rec StoredRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				errors++
				return nil
			}
			if _, err := ParsePlacement(rec.FEN); err != nil {
				errors++
				return nil
			}
			if _, _, err := ParseMoveLabel(rec.Move); err != nil {
				errors++
			}
			return nil
		})
	})

	if err != nil {
		return err
	}

	if errors > 0 {
		return fmt.Errorf("integrity check failed: %d/%d records have errors", errors, totalEntries)
	}

	return nil
}

// Clear removes all records from the dataset
func (ds *Dataset) Clear() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	return ds.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(ds.bucketName)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(ds.bucketName))
		return err
	})
}

// GetStats returns statistics about the dataset
func (ds *Dataset) GetStats() (*DatasetStats, error) {
	count, err := ds.Count()
	if err != nil {
		return nil, err
	}

	fileInfo, err := os.Stat(ds.path)
	if err != nil {
		return nil, err
	}

	return &DatasetStats{
		TotalRecords: count,
		FilePath:     ds.path,
		FileSize:     fileInfo.Size(),
	}, nil
}

// DatasetStats contains statistics about the dataset
type DatasetStats struct {
	TotalRecords int
	FilePath     string
	FileSize     int64
}
