package stream

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/yourusername/quantstream/pkg/model"
	"github.com/yourusername/quantstream/pkg/stats"
)

// ErrNotSeeded is returned for ticks offered before Seed completed.
var ErrNotSeeded = errors.New("reconciler not seeded")

// passthrough maps each directly forwarded metric to its tick field.
var passthrough = []struct {
	metric model.Metric
	field  func(model.LiveTick) model.Value
}{
	{model.MetricExpectedPrice, func(t model.LiveTick) model.Value { return t.RegressionLineValue }},
	{model.MetricSpread, func(t model.LiveTick) model.Value { return t.Spread }},
	{model.MetricZScore, func(t model.LiveTick) model.Value { return t.ZScore }},
	{model.MetricBasePrice, func(t model.LiveTick) model.Value { return t.YPrice }},
	{model.MetricHedgePrice, func(t model.LiveTick) model.Value { return t.XPrice }},
}

// TickResult describes what one tick did.
type TickResult struct {
	Emitted   []model.Metric
	Stale     []model.Metric
	Malformed []model.Metric

	Boundary    Boundary
	Correlation float64 // valid when MetricCorrelation is in Emitted
}

// Has reports whether m was appended for this tick.
func (r TickResult) Has(m model.Metric) bool {
	for _, e := range r.Emitted {
		if e == m {
			return true
		}
	}
	return false
}

// Stats are cumulative counters of one reconciler.
type Stats struct {
	Ticks             int64 `json:"ticks"`
	Points            int64 `json:"points"`
	StaleRejected     int64 `json:"stale_rejected"`
	MalformedSkipped  int64 `json:"malformed_skipped"`
	IntervalsClosed   int64 `json:"intervals_closed"`
	CorrelationPoints int64 `json:"correlation_points"`
	Degenerate        int64 `json:"degenerate_windows"`
}

// Reconciler merges one pair session's snapshot and live ticks.
//
// It is not safe for concurrent use: ticks must be fed from a single
// goroutine in arrival order. A selection change or snapshot reload must
// use a new Reconciler.
type Reconciler struct {
	session   string
	selection model.Selection
	sink      Sink

	window   *stats.RollingWindow
	interval *IntervalState
	cursors  map[model.Metric]*SeriesCursor
	latest   time.Time // newest tick time any passthrough metric accepted
	seeded   bool

	xs, ys []float64
	stats  Stats
	warned bool
}

// NewReconciler creates an unseeded reconciler for sel (normalized here).
func NewReconciler(session string, sel model.Selection, sink Sink) *Reconciler {
	sel = sel.Normalize()
	if sink == nil {
		sink = Discard
	}
	r := &Reconciler{
		session:   session,
		selection: sel,
		sink:      sink,
		xs:        make([]float64, 0, sel.WindowSize),
		ys:        make([]float64, 0, sel.WindowSize),
	}
	r.reset()
	return r
}

func (r *Reconciler) reset() {
	if r.window == nil {
		r.window = stats.NewRollingWindow(r.selection.WindowSize)
	} else {
		r.window.Reset()
	}
	r.interval = NewIntervalState(r.selection.Timeframe.Granularity())
	r.cursors = make(map[model.Metric]*SeriesCursor, len(model.Metrics()))
	for _, m := range model.Metrics() {
		r.cursors[m] = NewSeriesCursor(m)
	}
	r.latest = time.Time{}
	r.seeded = false
	r.stats = Stats{}
	r.warned = false
}

// Seed rebuilds all state from a snapshot and emits the full series.
func (r *Reconciler) Seed(snap *model.Snapshot) (model.SeriesSet, error) {
	if snap == nil {
		snap = &model.Snapshot{}
	}
	if err := snap.Validate(); err != nil {
		return model.SeriesSet{}, fmt.Errorf("seed %s: %w", r.selection.Pair(), err)
	}

	r.reset()

	bars := snap.Bars
	tail := bars
	if len(tail) > r.selection.WindowSize {
		tail = tail[len(tail)-r.selection.WindowSize:]
	}
	samples := make([]stats.Sample, 0, len(tail))
	for _, b := range tail {
		if y, x, ok := b.Closes(); ok {
			samples = append(samples, stats.Sample{Y: y, X: x})
		}
	}
	r.window.Seed(samples)

	if len(bars) > 0 {
		r.interval.Seed(bars[len(bars)-1].Time)
		for _, c := range r.cursors {
			c.Reset(r.interval.Last())
		}
		r.latest = r.interval.Last()
	}
	r.seeded = true

	set := r.buildSeries(bars)
	r.sink.Seeded(set)

	log.Printf("[Reconciler] %s seeded: %d bars, window %d/%d, last interval %s",
		r.selection, len(bars), r.window.Len(), r.window.Cap(), formatTime(r.interval.Last()))
	return set, nil
}

func (r *Reconciler) buildSeries(bars []model.HistoricalBar) model.SeriesSet {
	series := make(map[model.Metric][]model.Point, len(model.Metrics()))
	add := func(m model.Metric, t time.Time, v model.Value) {
		if f, ok := v.Get(); ok {
			series[m] = append(series[m], model.Point{Time: t, Value: f})
		}
	}
	for _, b := range bars {
		add(model.MetricExpectedPrice, b.Time, b.RegressionLineValue)
		add(model.MetricSpread, b.Time, b.Spread)
		add(model.MetricZScore, b.Time, b.ZScore)
		add(model.MetricCorrelation, b.Time, b.RollingCorr)
		if b.YOHLC != nil {
			add(model.MetricBasePrice, b.Time, model.Some(b.YOHLC.Close))
		}
		if b.XOHLC != nil {
			add(model.MetricHedgePrice, b.Time, model.Some(b.XOHLC.Close))
		}
	}
	return model.SeriesSet{Session: r.session, Selection: r.selection, Series: series}
}

// OnLiveTick routes one tick through the guards, the boundary detector and
// the window. It never fails for bad payload fields; those only skip the
// affected metric.
func (r *Reconciler) OnLiveTick(tick model.LiveTick) (TickResult, error) {
	var res TickResult
	if !r.seeded {
		return res, ErrNotSeeded
	}
	r.stats.Ticks++
	fresh := tick.Time.After(r.latest)

	for _, p := range passthrough {
		v, ok := p.field(tick).Get()
		if !ok {
			res.Malformed = append(res.Malformed, p.metric)
			continue
		}
		if !r.cursors[p.metric].Accept(tick.Time) {
			res.Stale = append(res.Stale, p.metric)
			continue
		}
		r.emit(p.metric, tick.Time, v)
		res.Emitted = append(res.Emitted, p.metric)
		if tick.Time.After(r.latest) {
			r.latest = tick.Time
		}
	}

	// A tick older than one already accepted must not reach the window,
	// even when a price-less earlier tick left the interval open.
	if fresh {
		r.updateCorrelation(tick, &res)
	}

	r.stats.StaleRejected += int64(len(res.Stale))
	r.stats.MalformedSkipped += int64(len(res.Malformed))
	return res, nil
}

func (r *Reconciler) updateCorrelation(tick model.LiveTick, res *TickResult) {
	y, yok := tick.YPrice.Get()
	x, xok := tick.XPrice.Get()

	// An empty snapshot leaves no interval to measure from; the first
	// priced tick anchors the grid.
	if !r.interval.Seeded() {
		if yok && xok {
			r.interval.Seed(tick.Time)
		}
		return
	}

	b := r.interval.Check(tick.Time)
	res.Boundary = b
	if !b.ClosesInterval {
		return
	}
	if !yok || !xok {
		res.Malformed = append(res.Malformed, model.MetricCorrelation)
		return
	}

	r.window.Push(stats.Sample{Y: y, X: x})
	r.interval.Advance(b)
	r.stats.IntervalsClosed++

	if !r.window.IsFull() {
		return
	}

	r.xs, r.ys = r.window.Columns(r.xs, r.ys)
	corr, defined := stats.CorrelationDefined(r.xs, r.ys)
	if !defined {
		r.stats.Degenerate++
		if !r.warned {
			r.warned = true
			log.Printf("[Reconciler] %s: zero-variance window at %s, correlation reported as 0",
				r.selection.Pair(), formatTime(b.NewIntervalTime))
		}
	}

	if !r.cursors[model.MetricCorrelation].Accept(b.NewIntervalTime) {
		res.Stale = append(res.Stale, model.MetricCorrelation)
		return
	}
	r.emit(model.MetricCorrelation, b.NewIntervalTime, corr)
	r.stats.CorrelationPoints++
	res.Emitted = append(res.Emitted, model.MetricCorrelation)
	res.Correlation = corr
}

func (r *Reconciler) emit(m model.Metric, t time.Time, v float64) {
	r.stats.Points++
	r.sink.Append(model.PointEvent{Session: r.session, Metric: m, Time: t, Value: v})
}

// Session returns the session id the reconciler stamps on its events.
func (r *Reconciler) Session() string {
	return r.session
}

// Selection returns the normalized selection.
func (r *Reconciler) Selection() model.Selection {
	return r.selection
}

// Seeded reports whether Seed completed.
func (r *Reconciler) Seeded() bool {
	return r.seeded
}

// Window returns a copy of the current window contents, oldest first.
func (r *Reconciler) Window() []stats.Sample {
	return r.window.Samples()
}

// LastInterval returns the last completed interval time.
func (r *Reconciler) LastInterval() time.Time {
	return r.interval.Last()
}

// Cursor returns the last accepted time of metric m.
func (r *Reconciler) Cursor(m model.Metric) (time.Time, bool) {
	c, ok := r.cursors[m]
	if !ok {
		return time.Time{}, false
	}
	return c.Last()
}

// Stats returns the cumulative counters.
func (r *Reconciler) Stats() Stats {
	return r.stats
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
