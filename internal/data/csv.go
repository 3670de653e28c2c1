package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	ColumnFEN  = "FEN"
	ColumnMove = "Move"
)

// ErrMissingColumns is returned when a CSV header lacks FEN or Move.
var ErrMissingColumns = errors.New("csv must have FEN and Move columns")

// CSVReport summarizes a CSV load.
type CSVReport struct {
	Columns     []string
	Rows        int
	MissingFEN  int
	MissingMove int
	Kept        int
}

// Dropped returns the number of rows that were discarded.
func (r CSVReport) Dropped() int {
	return r.Rows - r.Kept
}

// LoadCSV reads a CSV file with FEN and Move header columns. Rows missing
// either field are dropped and counted in the report.
func LoadCSV(path string) ([]Record, *CSVReport, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open CSV: %w", err)
	}
	defer file.Close()

	return ReadCSV(file)
}

// ReadCSV parses records from r. See LoadCSV.
func ReadCSV(r io.Reader) ([]Record, *CSVReport, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	report := &CSVReport{Columns: append([]string(nil), header...)}

	fenIdx, moveIdx := -1, -1
	for i, col := range header {
		switch strings.TrimSpace(col) {
		case ColumnFEN:
			fenIdx = i
		case ColumnMove:
			moveIdx = i
		}
	}
	if fenIdx < 0 || moveIdx < 0 {
		return nil, report, fmt.Errorf("%w: got %v", ErrMissingColumns, header)
	}

	var records []Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, report, fmt.Errorf("failed to read CSV row %d: %w", report.Rows+1, err)
		}
		report.Rows++

		fen := field(row, fenIdx)
		move := field(row, moveIdx)
		if fen == "" {
			report.MissingFEN++
		}
		if move == "" {
			report.MissingMove++
		}
		if fen == "" || move == "" {
			continue
		}

		records = append(records, Record{FEN: fen, Move: move})
	}

	report.Kept = len(records)
	return records, report, nil
}

func field(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// WriteCSV writes records with a FEN,Move header, creating parent
// directories as needed.
func WriteCSV(path string, records []Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV: %w", err)
	}

	w := csv.NewWriter(file)
	if err := w.Write([]string{ColumnFEN, ColumnMove}); err != nil {
		file.Close()
		return err
	}
	for _, rec := range records {
		if err := w.Write([]string{rec.FEN, rec.Move}); err != nil {
			file.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		file.Close()
		return fmt.Errorf("failed to write CSV: %w", err)
	}

	return file.Close()
}
