package stream

import (
	"time"

	"github.com/yourusername/quantstream/pkg/model"
)

// SeriesCursor remembers the last accepted time of one metric series.
// An unset cursor stands for -inf and accepts any time.
type SeriesCursor struct {
	Metric model.Metric
	last   time.Time
	set    bool
}

// NewSeriesCursor creates a cursor at -inf.
func NewSeriesCursor(m model.Metric) *SeriesCursor {
	return &SeriesCursor{Metric: m}
}

// Reset moves the cursor to t; a zero t means -inf.
func (c *SeriesCursor) Reset(t time.Time) {
	c.last = t
	c.set = !t.IsZero()
}

// Accept advances the cursor to candidate iff candidate is strictly later
// than the last accepted time. Equal times are duplicates.
func (c *SeriesCursor) Accept(candidate time.Time) bool {
	if c.set && !candidate.After(c.last) {
		return false
	}
	c.last = candidate
	c.set = true
	return true
}

// Last returns the last accepted time and whether one exists.
func (c *SeriesCursor) Last() (time.Time, bool) {
	return c.last, c.set
}
