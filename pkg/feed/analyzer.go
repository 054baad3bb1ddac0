package feed

import (
	"sync"
	"time"

	"github.com/yourusername/quantstream/pkg/model"
	"github.com/yourusername/quantstream/pkg/series"
	"github.com/yourusername/quantstream/pkg/stats"
)

// SpreadAnalyzer tracks the hedged spread of a y/x pair:
// spread = y - hedgeRatio·x, with z-scores taken against a calibrated
// mean and standard deviation.
type SpreadAnalyzer struct {
	ySeries      *series.TimeSeries
	xSeries      *series.TimeSeries
	spreadSeries *series.TimeSeries

	hedgeRatio    float64
	intercept     float64
	y, x          float64
	currentSpread float64
	spreadMean    float64
	spreadStd     float64
	currentZScore float64
	correlation   float64

	mu sync.RWMutex
}

// SpreadStats is a snapshot of the analyzer state.
type SpreadStats struct {
	CurrentSpread float64
	Mean          float64
	Std           float64
	ZScore        float64
	Correlation   float64
	HedgeRatio    float64
	Intercept     float64
}

// NewSpreadAnalyzer keeps up to maxHistory samples per series.
func NewSpreadAnalyzer(maxHistory int) *SpreadAnalyzer {
	return &SpreadAnalyzer{
		ySeries:      series.NewTimeSeries(model.MetricBasePrice, maxHistory),
		xSeries:      series.NewTimeSeries(model.MetricHedgePrice, maxHistory),
		spreadSeries: series.NewTimeSeries(model.MetricSpread, maxHistory),
		hedgeRatio:   1.0,
	}
}

// UpdatePrices records a y/x pair and recomputes spread and z-score.
func (sa *SpreadAnalyzer) UpdatePrices(y, x float64, at time.Time) {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	sa.y, sa.x = y, x
	sa.ySeries.Append(model.Point{Time: at, Value: y})
	sa.xSeries.Append(model.Point{Time: at, Value: x})

	sa.currentSpread = y - sa.hedgeRatio*x
	sa.spreadSeries.Append(model.Point{Time: at, Value: sa.currentSpread})
	sa.currentZScore = stats.ZScore(sa.currentSpread, sa.spreadMean, sa.spreadStd)
}

// Calibrate fits y = intercept + hedgeRatio·x over the last lookback
// samples and rebases the spread statistics on the fitted ratio. It is a
// no-op until lookback samples exist.
func (sa *SpreadAnalyzer) Calibrate(lookback int) bool {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	if lookback < 2 || sa.ySeries.Len() < lookback || sa.xSeries.Len() < lookback {
		return false
	}

	ys := values(sa.ySeries.GetLast(lookback))
	xs := values(sa.xSeries.GetLast(lookback))

	sa.hedgeRatio, sa.intercept = stats.LinearRegression(xs, ys)
	sa.correlation = stats.Correlation(xs, ys)

	spreads := make([]float64, len(xs))
	for i := range xs {
		spreads[i] = ys[i] - sa.hedgeRatio*xs[i]
	}
	rs := stats.CalculateRollingStats(spreads, 0)
	sa.spreadMean, sa.spreadStd = rs.Mean, rs.Std

	sa.currentSpread = sa.y - sa.hedgeRatio*sa.x
	sa.currentZScore = stats.ZScore(sa.currentSpread, sa.spreadMean, sa.spreadStd)
	return true
}

// RegressionValue returns intercept + hedgeRatio·x.
func (sa *SpreadAnalyzer) RegressionValue(x float64) float64 {
	sa.mu.RLock()
	defer sa.mu.RUnlock()
	return sa.intercept + sa.hedgeRatio*x
}

// GetStats returns the current state.
func (sa *SpreadAnalyzer) GetStats() SpreadStats {
	sa.mu.RLock()
	defer sa.mu.RUnlock()

	return SpreadStats{
		CurrentSpread: sa.currentSpread,
		Mean:          sa.spreadMean,
		Std:           sa.spreadStd,
		ZScore:        sa.currentZScore,
		Correlation:   sa.correlation,
		HedgeRatio:    sa.hedgeRatio,
		Intercept:     sa.intercept,
	}
}

// Len returns the number of recorded samples.
func (sa *SpreadAnalyzer) Len() int {
	return sa.spreadSeries.Len()
}

func values(points []model.Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}
