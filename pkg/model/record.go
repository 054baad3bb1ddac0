package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Value is an optional finite number. The analytics backend sends null for
// NaN/Inf and live payloads may carry strings, so absence is a normal state.
type Value struct {
	V     float64
	Valid bool
}

// Some wraps a number; NaN and Inf stay absent.
func Some(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Value{}
	}
	return Value{V: v, Valid: true}
}

// Get returns the number and whether it is present.
func (v Value) Get() (float64, bool) {
	return v.V, v.Valid
}

// MarshalJSON writes null for an absent value.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.V)
}

// UnmarshalJSON never fails on odd input: anything that is not a finite
// number (or numeric string) becomes an absent value.
func (v *Value) UnmarshalJSON(data []byte) error {
	*v = Value{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	*v = ValueOf(raw)
	return nil
}

// ValueOf converts a loosely typed field (number or numeric string).
func ValueOf(raw any) Value {
	switch x := raw.(type) {
	case float64:
		return Some(x)
	case float32:
		return Some(float64(x))
	case int:
		return Some(float64(x))
	case int64:
		return Some(float64(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}
		}
		return Some(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return Value{}
		}
		return Some(f)
	}
	return Value{}
}

// OHLC is one side of a historical bar.
type OHLC struct {
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoricalBar is one snapshot row for a pair.
type HistoricalBar struct {
	Time                time.Time `json:"time"`
	YOHLC               *OHLC     `json:"y_ohlc"`
	XOHLC               *OHLC     `json:"x_ohlc"`
	RegressionLineValue Value     `json:"regression_line_value"`
	Spread              Value     `json:"spread"`
	ZScore              Value     `json:"z_score"`
	RollingCorr         Value     `json:"rolling_corr"`
}

type ohlcWire struct {
	Open      Value `json:"open"`
	High      Value `json:"high"`
	Low       Value `json:"low"`
	Close     Value `json:"close"`
	Timestamp any   `json:"timestamp"`
}

func (w *ohlcWire) ohlc(fallback time.Time) *OHLC {
	if w == nil || !w.Close.Valid {
		return nil
	}
	ts, err := ParseTime(w.Timestamp)
	if err != nil {
		ts = fallback
	}
	return &OHLC{Open: w.Open.V, High: w.High.V, Low: w.Low.V, Close: w.Close.V, Timestamp: ts}
}

// UnmarshalJSON accepts zone-less ISO or epoch times and drops a price side
// whose close is missing.
func (b *HistoricalBar) UnmarshalJSON(data []byte) error {
	var raw struct {
		Time                any       `json:"time"`
		YOHLC               *ohlcWire `json:"y_ohlc"`
		XOHLC               *ohlcWire `json:"x_ohlc"`
		RegressionLineValue Value     `json:"regression_line_value"`
		Spread              Value     `json:"spread"`
		ZScore              Value     `json:"z_score"`
		RollingCorr         Value     `json:"rolling_corr"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := ParseTime(raw.Time)
	if err != nil {
		return fmt.Errorf("bar: %w", err)
	}
	*b = HistoricalBar{
		Time:                ts,
		YOHLC:               raw.YOHLC.ohlc(ts),
		XOHLC:               raw.XOHLC.ohlc(ts),
		RegressionLineValue: raw.RegressionLineValue,
		Spread:              raw.Spread,
		ZScore:              raw.ZScore,
		RollingCorr:         raw.RollingCorr,
	}
	return nil
}

// Closes returns the (y, x) closing prices when both sides are present.
func (b HistoricalBar) Closes() (y, x float64, ok bool) {
	if b.YOHLC == nil || b.XOHLC == nil {
		return 0, 0, false
	}
	return b.YOHLC.Close, b.XOHLC.Close, true
}

// Summary is the scalar part of a snapshot response.
type Summary struct {
	HedgeRatio Value  `json:"hedge_ratio"`
	ADFPValue  Value  `json:"adf_p_value"`
	Pair       string `json:"pair"`
	SpreadMean Value  `json:"spread_mean"`
}

// Snapshot is the one-shot historical fetch for a selection.
type Snapshot struct {
	Summary Summary         `json:"analytics_summary"`
	Bars    []HistoricalBar `json:"timeseries_data"`
}

// Validate enforces strictly increasing bar times.
func (s *Snapshot) Validate() error {
	for i := 1; i < len(s.Bars); i++ {
		if !s.Bars[i].Time.After(s.Bars[i-1].Time) {
			return fmt.Errorf("%w: bar %d at %s", ErrUnorderedSnapshot, i, s.Bars[i].Time.Format(time.RFC3339))
		}
	}
	return nil
}

// LiveTick is one pushed update for the active pair.
type LiveTick struct {
	Time                time.Time `json:"time"`
	YPrice              Value     `json:"y_price"`
	XPrice              Value     `json:"x_price"`
	Spread              Value     `json:"spread"`
	ZScore              Value     `json:"z_score"`
	RegressionLineValue Value     `json:"regression_line_value"`
}

// Fields returns the payload map the live codecs carry on the wire.
func (t LiveTick) Fields() map[string]any {
	m := map[string]any{"time": t.Time.UTC().Format(time.RFC3339Nano)}
	put := func(key string, v Value) {
		if f, ok := v.Get(); ok {
			m[key] = f
		} else {
			m[key] = nil
		}
	}
	put("y_price", t.YPrice)
	put("x_price", t.XPrice)
	put("spread", t.Spread)
	put("z_score", t.ZScore)
	put("regression_line_value", t.RegressionLineValue)
	return m
}

// DecodeLiveTick builds a tick from a loosely typed payload. Only the time is
// mandatory; every other field independently degrades to absent.
func DecodeLiveTick(payload map[string]any) (LiveTick, error) {
	ts, err := ParseTime(payload["time"])
	if err != nil {
		return LiveTick{}, err
	}
	return LiveTick{
		Time:                ts,
		YPrice:              ValueOf(payload["y_price"]),
		XPrice:              ValueOf(payload["x_price"]),
		Spread:              ValueOf(payload["spread"]),
		ZScore:              ValueOf(payload["z_score"]),
		RegressionLineValue: ValueOf(payload["regression_line_value"]),
	}, nil
}

// naiveLayouts are ISO forms without a zone, read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
}

// ParseTime accepts RFC3339 strings (zone-less ISO strings are UTC) or
// epoch milliseconds.
func ParseTime(raw any) (time.Time, error) {
	switch x := raw.(type) {
	case string:
		s := strings.TrimSpace(x)
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts.UTC(), nil
		}
		for _, layout := range naiveLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: time %q", ErrMalformedTick, x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			break
		}
		return time.UnixMilli(int64(x)).UTC(), nil
	case int64:
		return time.UnixMilli(x).UTC(), nil
	case json.Number:
		if ms, err := x.Int64(); err == nil {
			return time.UnixMilli(ms).UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: missing time", ErrMalformedTick)
}
