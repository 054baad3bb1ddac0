// Package series keeps the merged per-metric series of the active session
// in memory for the query API.
package series

import (
	"sync"
	"time"

	"github.com/yourusername/quantstream/pkg/model"
	"github.com/yourusername/quantstream/pkg/stats"
)

// DefaultMaxLength caps each metric series.
const DefaultMaxLength = 5000

// TimeSeries is one capped, time-ordered metric series.
type TimeSeries struct {
	Metric    model.Metric
	MaxLength int

	points []model.Point
	mu     sync.RWMutex
}

// NewTimeSeries 创建新的时间序列
func NewTimeSeries(metric model.Metric, maxLength int) *TimeSeries {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &TimeSeries{
		Metric:    metric,
		MaxLength: maxLength,
		points:    make([]model.Point, 0, 64),
	}
}

// Append 添加新数据点（线程安全），超过 MaxLength 时丢弃最旧的点
func (ts *TimeSeries) Append(p model.Point) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.points = append(ts.points, p)
	if over := len(ts.points) - ts.MaxLength; over > 0 {
		ts.points = append(ts.points[:0], ts.points[over:]...)
	}
}

// Replace swaps the contents for points (the tail is kept when too long).
func (ts *TimeSeries) Replace(points []model.Point) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if len(points) > ts.MaxLength {
		points = points[len(points)-ts.MaxLength:]
	}
	ts.points = append(make([]model.Point, 0, len(points)), points...)
}

// GetLast 获取最近 n 个数据点的副本（n <= 0 时返回全部）
func (ts *TimeSeries) GetLast(n int) []model.Point {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	if n <= 0 || n > len(ts.points) {
		n = len(ts.points)
	}
	out := make([]model.Point, n)
	copy(out, ts.points[len(ts.points)-n:])
	return out
}

// GetRange 获取指定时间范围的数据（from <= time <= to）
func (ts *TimeSeries) GetRange(from, to time.Time) []model.Point {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	out := make([]model.Point, 0)
	for _, p := range ts.points {
		if !p.Time.Before(from) && !p.Time.After(to) {
			out = append(out, p)
		}
	}
	return out
}

// Len 返回当前数据点数量
func (ts *TimeSeries) Len() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.points)
}

// Last 获取最新的数据点
func (ts *TimeSeries) Last() (model.Point, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	if len(ts.points) == 0 {
		return model.Point{}, false
	}
	return ts.points[len(ts.points)-1], true
}

// Stats 计算滚动窗口统计
func (ts *TimeSeries) Stats(period int) stats.RollingWindowStats {
	ts.mu.RLock()
	values := make([]float64, len(ts.points))
	for i, p := range ts.points {
		values[i] = p.Value
	}
	ts.mu.RUnlock()

	return stats.CalculateRollingStats(values, period)
}

// Store holds the series of the active session and implements stream.Sink.
// Appends tagged with another session are dropped: they belong to a pair
// that has already been replaced.
type Store struct {
	maxLength int

	mu        sync.RWMutex
	session   string
	selection model.Selection
	series    map[model.Metric]*TimeSeries
	ignored   int64
}

// NewStore creates an empty store.
func NewStore(maxLength int) *Store {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	s := &Store{maxLength: maxLength}
	s.series = s.emptySeries()
	return s
}

func (s *Store) emptySeries() map[model.Metric]*TimeSeries {
	m := make(map[model.Metric]*TimeSeries, len(model.Metrics()))
	for _, metric := range model.Metrics() {
		m[metric] = NewTimeSeries(metric, s.maxLength)
	}
	return m
}

// Seeded replaces everything with set.
func (s *Store) Seeded(set model.SeriesSet) {
	fresh := s.emptySeries()
	for metric, points := range set.Series {
		if ts, ok := fresh[metric]; ok {
			ts.Replace(points)
		}
	}

	s.mu.Lock()
	s.session = set.Session
	s.selection = set.Selection
	s.series = fresh
	s.mu.Unlock()
}

// Append adds one point of the active session.
func (s *Store) Append(ev model.PointEvent) {
	s.mu.Lock()
	if ev.Session != s.session {
		s.ignored++
		s.mu.Unlock()
		return
	}
	ts, ok := s.series[ev.Metric]
	s.mu.Unlock()

	if ok {
		ts.Append(ev.Point())
	}
}

// Series returns the series of one metric.
func (s *Store) Series(metric model.Metric) (*TimeSeries, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.series[metric]
	return ts, ok
}

// Snapshot copies the last n points of every metric (all for n <= 0).
func (s *Store) Snapshot(n int) model.SeriesSet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := model.SeriesSet{
		Session:   s.session,
		Selection: s.selection,
		Series:    make(map[model.Metric][]model.Point, len(s.series)),
	}
	for metric, ts := range s.series {
		out.Series[metric] = ts.GetLast(n)
	}
	return out
}

// Session returns the id of the session currently held.
func (s *Store) Session() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Ignored returns how many appends from replaced sessions were dropped.
func (s *Store) Ignored() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ignored
}

// Clear empties the store.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = ""
	s.selection = model.Selection{}
	s.series = s.emptySeries()
}
