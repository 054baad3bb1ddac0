package feed

import (
	"math"
	"testing"
	"time"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

var testConfig = Config{
	BasePrice:  64000,
	HedgePrice: 3100,
	Volatility: 0.001,
	Warmup:     200,
	Seed:       42,
}

func TestGenerator_PacketIsConsistentWithFit(t *testing.T) {
	g := NewGenerator(testConfig)
	fit := g.Fit()

	if fit.Slope <= 0 {
		t.Fatalf("slope = %v, want positive for a cointegrated pair", fit.Slope)
	}
	if fit.SpreadStd <= 0 {
		t.Fatalf("spread std = %v", fit.SpreadStd)
	}

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	for i := 0; i < 50; i++ {
		tick := g.Next(now.Add(time.Duration(i) * time.Second))

		y, _ := tick.YPrice.Get()
		x, _ := tick.XPrice.Get()
		spread, _ := tick.Spread.Get()
		z, _ := tick.ZScore.Get()
		reg, _ := tick.RegressionLineValue.Get()

		if !almostEqual(reg, fit.Intercept+fit.Slope*x, 1e-9) {
			t.Errorf("tick %d: regression = %v", i, reg)
		}
		if !almostEqual(spread, y-fit.Slope*x, 1e-9) {
			t.Errorf("tick %d: spread = %v", i, spread)
		}
		if !almostEqual(z, (spread-fit.SpreadMean)/fit.SpreadStd, 1e-9) {
			t.Errorf("tick %d: z = %v", i, z)
		}
		if tick.Time.Location() != time.UTC {
			t.Errorf("tick %d: time not UTC: %v", i, tick.Time)
		}
	}
	if g.Issued() != 50 {
		t.Errorf("Issued() = %d", g.Issued())
	}
}

func TestGenerator_SeedIsDeterministic(t *testing.T) {
	a, b := NewGenerator(testConfig), NewGenerator(testConfig)
	now := time.Unix(1_700_000_000, 0)
	for i := 0; i < 10; i++ {
		ta, tb := a.Next(now), b.Next(now)
		ya, _ := ta.YPrice.Get()
		yb, _ := tb.YPrice.Get()
		if ya != yb {
			t.Fatalf("step %d: %v != %v", i, ya, yb)
		}
	}
}

func TestGenerator_FlatMarket(t *testing.T) {
	cfg := testConfig
	cfg.Volatility = 0
	g := NewGenerator(cfg)

	fit := g.Fit()
	if fit.Slope != 0 || fit.SpreadStd > 1e-10 {
		t.Errorf("fit = %+v, want zero slope and std", fit)
	}
	tick := g.Next(time.Now())
	if z, _ := tick.ZScore.Get(); z != 0 {
		t.Errorf("z = %v, want 0 when the spread has no variance", z)
	}
	if y, _ := tick.YPrice.Get(); !almostEqual(y, cfg.BasePrice, 1e-6) {
		t.Errorf("y = %v, want %v", y, cfg.BasePrice)
	}
}
