package data

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// Record is one labeled position: a FEN and the move played from it.
type Record struct {
	FEN  string `json:"fen"`
	Move string `json:"move"`
}

// Sample is a record whose label has been mapped to square indices.
type Sample struct {
	FEN  string
	From int
	To   int
}

// SkipReason explains why a record did not produce a clean sample.
type SkipReason string

const (
	SkipNone         SkipReason = ""
	SkipInvalidLabel SkipReason = "invalid_label"
)

// ValidationResult is the outcome of validating a single record. Sample
// is meaningful when Reason is SkipNone, or when the sentinel policy kept
// the record.
type ValidationResult struct {
	Index  int
	Record Record
	Sample Sample
	Reason SkipReason
	Err    error
}

// LabelPolicy controls what happens to records with unparseable labels.
type LabelPolicy int

const (
	// SentinelLabel keeps the record with label (0, 0).
	SentinelLabel LabelPolicy = iota
	// SkipLabel drops the record.
	SkipLabel
)

// Validate maps every record to an explicit result. Records with a bad
// move string get Reason SkipInvalidLabel and a sentinel (0, 0) sample.
func Validate(records []Record) []ValidationResult {
	results := make([]ValidationResult, len(records))
	for i, rec := range records {
		res := ValidationResult{Index: i, Record: rec}
		from, to, err := ParseMoveLabel(rec.Move)
		if err != nil {
			res.Reason = SkipInvalidLabel
			res.Err = err
			from, to = 0, 0
		}
		res.Sample = Sample{FEN: rec.FEN, From: from, To: to}
		results[i] = res
	}
	return results
}

// Samples collects the trainable samples of a validation pass under the
// given policy, returning the results that were not clean.
func Samples(results []ValidationResult, policy LabelPolicy) ([]Sample, []ValidationResult) {
	samples := make([]Sample, 0, len(results))
	var flagged []ValidationResult
	for _, res := range results {
		if res.Reason != SkipNone {
			flagged = append(flagged, res)
			if policy == SkipLabel {
				continue
			}
		}
		samples = append(samples, res.Sample)
	}
	return samples, flagged
}

// Split shuffles records with the given seed and cuts off testFraction of
// them as the held-out split. The input slice is not modified.
func Split(records []Record, testFraction float64, seed int64) (train, test []Record, err error) {
	if testFraction < 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in [0, 1), got %f", testFraction)
	}
	if len(records) == 0 {
		return nil, nil, errors.New("no records to split")
	}

	shuffled := make([]Record, len(records))
	copy(shuffled, records)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	nTest := int(math.Ceil(float64(len(shuffled)) * testFraction))

	return shuffled[nTest:], shuffled[:nTest], nil
}
