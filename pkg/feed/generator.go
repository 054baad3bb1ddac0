// Package feed simulates the live analytics packets of one pair: a
// cointegrated random walk whose hedge ratio is fitted once over a warm-up
// window, as the analytics backend does.
package feed

import (
	"math"
	"math/rand"
	"time"

	"github.com/yourusername/quantstream/pkg/model"
)

// Config drives a Generator.
type Config struct {
	BasePrice  float64 // starting y price
	HedgePrice float64 // starting x price
	Volatility float64 // per-step log-return std of x
	Warmup     int     // samples used for the fit
	Seed       int64   // 0 picks a time-based seed
}

// Fit is the regression and spread baseline of the warm-up window.
type Fit struct {
	Slope      float64
	Intercept  float64
	SpreadMean float64
	SpreadStd  float64
}

// Generator produces LiveTicks. Not safe for concurrent use.
type Generator struct {
	rng      *rand.Rand
	vol      float64
	ratio    float64
	noise    float64 // AR(1) deviation of y from ratio*x
	y, x     float64
	analyzer *SpreadAnalyzer
	issued   int64
}

// NewGenerator runs the warm-up walk and fits y = a + b·x over it.
func NewGenerator(cfg Config) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.Warmup < 2 {
		cfg.Warmup = 2
	}
	if cfg.HedgePrice <= 0 {
		cfg.HedgePrice = 1
	}

	g := &Generator{
		rng:      rand.New(rand.NewSource(seed)),
		vol:      cfg.Volatility,
		ratio:    cfg.BasePrice / cfg.HedgePrice,
		y:        cfg.BasePrice,
		x:        cfg.HedgePrice,
		analyzer: NewSpreadAnalyzer(cfg.Warmup),
	}

	start := time.Now().Add(-time.Duration(cfg.Warmup) * time.Second)
	for i := 0; i < cfg.Warmup; i++ {
		g.step()
		g.analyzer.UpdatePrices(g.y, g.x, start.Add(time.Duration(i)*time.Second))
	}
	g.analyzer.Calibrate(cfg.Warmup)
	return g
}

func (g *Generator) step() {
	g.x *= math.Exp(g.vol * g.rng.NormFloat64())
	g.noise = 0.9*g.noise + g.vol*g.ratio*g.x*g.rng.NormFloat64()
	g.y = g.ratio*g.x + g.noise
}

// Fit returns the warm-up fit.
func (g *Generator) Fit() Fit {
	st := g.analyzer.GetStats()
	return Fit{
		Slope:      st.HedgeRatio,
		Intercept:  st.Intercept,
		SpreadMean: st.Mean,
		SpreadStd:  st.Std,
	}
}

// Next advances the walk and returns the packet stamped at now.
func (g *Generator) Next(now time.Time) model.LiveTick {
	g.step()
	g.issued++

	g.analyzer.UpdatePrices(g.y, g.x, now)
	st := g.analyzer.GetStats()

	return model.LiveTick{
		Time:                now.UTC(),
		YPrice:              model.Some(g.y),
		XPrice:              model.Some(g.x),
		Spread:              model.Some(st.CurrentSpread),
		ZScore:              model.Some(st.ZScore),
		RegressionLineValue: model.Some(g.analyzer.RegressionValue(g.x)),
	}
}

// Issued returns how many ticks Next has produced.
func (g *Generator) Issued() int64 {
	return g.issued
}
