// Package stats provides the rolling window and statistical functions used
// for pair analytics.
package stats

import (
	"math"
)

// RollingWindowStats 滚动窗口统计结果
type RollingWindowStats struct {
	Mean     float64
	Std      float64
	Variance float64
	Count    int
}

// CalculateRollingStats 计算滚动窗口统计（均值、方差、标准差）
// period <= 0 时使用全部数据
func CalculateRollingStats(data []float64, period int) RollingWindowStats {
	if len(data) == 0 {
		return RollingWindowStats{}
	}

	n := len(data)
	if period <= 0 || period > n {
		period = n
	}

	recent := data[n-period:]

	var sum float64
	for _, val := range recent {
		sum += val
	}
	mean := sum / float64(len(recent))

	var variance float64
	for _, val := range recent {
		diff := val - mean
		variance += diff * diff
	}
	variance /= float64(len(recent))

	return RollingWindowStats{
		Mean:     mean,
		Std:      math.Sqrt(variance),
		Variance: variance,
		Count:    len(recent),
	}
}

// Mean 计算均值，空输入返回 0
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}

	var sum float64
	for _, val := range data {
		sum += val
	}
	return sum / float64(len(data))
}

// Variance 计算总体方差
func Variance(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}

	mean := Mean(data)
	var variance float64
	for _, val := range data {
		diff := val - mean
		variance += diff * diff
	}
	return variance / float64(len(data))
}

// StdDev 计算标准差
func StdDev(data []float64) float64 {
	return math.Sqrt(Variance(data))
}

// ZScore 计算 Z-Score
// z = (x - μ) / σ，σ 接近 0 时返回 0
func ZScore(value, mean, std float64) float64 {
	if std < 1e-10 {
		return 0
	}
	return (value - mean) / std
}

// Correlation returns the Pearson correlation of xs and ys.
//
// Sums are accumulated in the order n, Σx, Σy, Σxy, Σx², Σy² so results are
// bit-reproducible. A zero denominator (either side constant) yields 0.
// Callers pass equal-length, non-empty sequences; anything else yields 0.
func Correlation(xs, ys []float64) float64 {
	r, _ := CorrelationDefined(xs, ys)
	return r
}

// CorrelationDefined is Correlation plus whether the coefficient was defined
// (non-zero denominator).
func CorrelationDefined(xs, ys []float64) (float64, bool) {
	if len(xs) != len(ys) || len(xs) == 0 {
		return 0, false
	}

	var n, sumX, sumY, sumXY, sumX2, sumY2 float64
	for i := range xs {
		x, y := xs[i], ys[i]
		n++
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
		sumY2 += y * y
	}

	numerator := n*sumXY - sumX*sumY
	denominator := math.Sqrt((n*sumX2 - sumX*sumX) * (n*sumY2 - sumY*sumY))
	if denominator == 0 || math.IsNaN(denominator) {
		return 0, false
	}

	return numerator / denominator, true
}

// LinearRegression 最小二乘拟合 y = slope * x + intercept
func LinearRegression(x, y []float64) (slope, intercept float64) {
	if len(x) != len(y) || len(x) == 0 {
		return 0, 0
	}

	meanX := Mean(x)
	meanY := Mean(y)

	var numerator, denominator float64
	for i := range x {
		diffX := x[i] - meanX
		numerator += diffX * (y[i] - meanY)
		denominator += diffX * diffX
	}

	if denominator < 1e-10 {
		return 0, meanY
	}

	slope = numerator / denominator
	intercept = meanY - slope*meanX

	return slope, intercept
}
