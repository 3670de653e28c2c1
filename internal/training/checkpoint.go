package training

import (
	"fmt"
	"math"
)

// SaveFunc persists the current parameters to path.
type SaveFunc func(path string) error

// Checkpointer saves parameters only when the epoch loss strictly improves
// on the best loss seen so far.
type Checkpointer struct {
	path      string
	save      SaveFunc
	best      float64
	bestEpoch int
	saved     bool
}

// NewCheckpointer creates a checkpointer writing to path.
func NewCheckpointer(path string, save SaveFunc) *Checkpointer {
	return &Checkpointer{
		path: path,
		save: save,
		best: math.Inf(1),
	}
}

// Observe records an epoch's loss and saves when it is a new best. The
// first observation always saves, whatever its value. It reports whether a
// checkpoint was written.
func (c *Checkpointer) Observe(epoch int, loss float64) (bool, error) {
	if c.saved && !c.improves(loss) {
		return false, nil
	}

	if c.path != "" && c.save != nil {
		if err := c.save(c.path); err != nil {
			return false, fmt.Errorf("failed to save checkpoint: %w", err)
		}
	}

	c.best = loss
	c.bestEpoch = epoch
	c.saved = true
	return true, nil
}

// improves reports whether loss beats the best so far. Any comparable
// loss beats a NaN best; a NaN loss never improves.
func (c *Checkpointer) improves(loss float64) bool {
	if math.IsNaN(loss) {
		return false
	}
	return math.IsNaN(c.best) || loss < c.best
}

// Best returns the best loss and the epoch it was reached in. The epoch is
// zero before any observation.
func (c *Checkpointer) Best() (float64, int) {
	return c.best, c.bestEpoch
}

// Path returns the checkpoint destination.
func (c *Checkpointer) Path() string {
	return c.path
}
