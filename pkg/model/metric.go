package model

import (
	"fmt"
	"time"
)

// Metric names one displayed series.
type Metric string

const (
	MetricExpectedPrice Metric = "expectedPrice"
	MetricSpread        Metric = "spread"
	MetricZScore        Metric = "zScore"
	MetricCorrelation   Metric = "correlation"

	// Live y/x prices, plotted next to the expected price.
	MetricBasePrice  Metric = "basePrice"
	MetricHedgePrice Metric = "hedgePrice"
)

// Metrics lists every series in display order.
func Metrics() []Metric {
	return []Metric{
		MetricExpectedPrice,
		MetricSpread,
		MetricZScore,
		MetricCorrelation,
		MetricBasePrice,
		MetricHedgePrice,
	}
}

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	for _, m := range Metrics() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

// Point is one sample of a series.
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// PointEvent is an append to one series of a session.
type PointEvent struct {
	Session string    `json:"session"`
	Metric  Metric    `json:"metric"`
	Time    time.Time `json:"time"`
	Value   float64   `json:"value"`
}

// Point drops the routing fields.
func (e PointEvent) Point() Point {
	return Point{Time: e.Time, Value: e.Value}
}

// SeriesSet is the full series per metric, emitted on every (re)seed.
type SeriesSet struct {
	Session   string             `json:"session"`
	Selection Selection          `json:"selection"`
	Series    map[Metric][]Point `json:"series"`
}

// Len returns the number of points of one metric.
func (s SeriesSet) Len(m Metric) int {
	return len(s.Series[m])
}
