package stream

import (
	"github.com/yourusername/quantstream/pkg/model"
)

// Sink receives the reconciler's output. Calls happen on the reconciler's
// goroutine, in order; implementations must not block for long.
type Sink interface {
	// Seeded delivers the full series after a (re)seed. It replaces
	// everything previously delivered for any session.
	Seeded(set model.SeriesSet)
	// Append delivers one accepted point.
	Append(ev model.PointEvent)
}

type discardSink struct{}

func (discardSink) Seeded(model.SeriesSet)  {}
func (discardSink) Append(model.PointEvent) {}

// Discard drops everything.
var Discard Sink = discardSink{}
