// Package model defines the records exchanged between the snapshot source,
// the live channel and the stream reconciler.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Window size bounds for local correlation.
const (
	MinWindowSize     = 10
	MaxWindowSize     = 200
	DefaultWindowSize = 50
)

// Timeframe is the bar granularity of a pair session.
type Timeframe string

const (
	Timeframe1s Timeframe = "1s"
	Timeframe1m Timeframe = "1m"
	Timeframe5m Timeframe = "5m"
)

var timeframeSeconds = map[Timeframe]int64{
	Timeframe1s: 1,
	Timeframe1m: 60,
	Timeframe5m: 300,
}

// Timeframes lists the supported timeframes in ascending order.
func Timeframes() []Timeframe {
	return []Timeframe{Timeframe1s, Timeframe1m, Timeframe5m}
}

// ParseTimeframe maps "1s", "1m", "5m" to a Timeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := timeframeSeconds[tf]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedTimeframe, s)
	}
	return tf, nil
}

// Seconds returns the granularity in seconds, 0 for an unknown timeframe.
func (tf Timeframe) Seconds() int64 {
	return timeframeSeconds[tf]
}

// Granularity returns the granularity as a duration.
func (tf Timeframe) Granularity() time.Duration {
	return time.Duration(tf.Seconds()) * time.Second
}

// ClampWindow forces n into [MinWindowSize, MaxWindowSize].
func ClampWindow(n int) int {
	if n < MinWindowSize {
		return MinWindowSize
	}
	if n > MaxWindowSize {
		return MaxWindowSize
	}
	return n
}

// Selection identifies one pair session: base asset Y hedged by asset X.
type Selection struct {
	BaseSymbol  string    `json:"y_symbol" yaml:"base_symbol"`
	HedgeSymbol string    `json:"x_symbol" yaml:"hedge_symbol"`
	Timeframe   Timeframe `json:"timeframe" yaml:"timeframe"`
	WindowSize  int       `json:"window" yaml:"window"`
}

// Normalize upper-cases the symbols, defaults the timeframe and clamps the window.
func (s Selection) Normalize() Selection {
	s.BaseSymbol = strings.ToUpper(strings.TrimSpace(s.BaseSymbol))
	s.HedgeSymbol = strings.ToUpper(strings.TrimSpace(s.HedgeSymbol))
	if s.Timeframe == "" {
		s.Timeframe = Timeframe1m
	}
	if s.WindowSize == 0 {
		s.WindowSize = DefaultWindowSize
	}
	s.WindowSize = ClampWindow(s.WindowSize)
	return s
}

// Validate checks the selection after Normalize.
func (s Selection) Validate() error {
	if s.BaseSymbol == "" || s.HedgeSymbol == "" {
		return fmt.Errorf("%w: both symbols are required", ErrInvalidSelection)
	}
	if s.BaseSymbol == s.HedgeSymbol {
		return fmt.Errorf("%w: base and hedge symbols cannot be the same", ErrInvalidSelection)
	}
	if _, err := ParseTimeframe(string(s.Timeframe)); err != nil {
		return err
	}
	if s.WindowSize < MinWindowSize || s.WindowSize > MaxWindowSize {
		return fmt.Errorf("%w: window %d outside [%d,%d]", ErrInvalidSelection, s.WindowSize, MinWindowSize, MaxWindowSize)
	}
	return nil
}

// Pair returns "Y/X".
func (s Selection) Pair() string {
	return s.BaseSymbol + "/" + s.HedgeSymbol
}

func (s Selection) String() string {
	return fmt.Sprintf("%s %s w=%d", s.Pair(), s.Timeframe, s.WindowSize)
}
