package stats

import (
	"math"
	"testing"
)

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}

func TestMeanStdDev(t *testing.T) {
	tests := []struct {
		name     string
		data     []float64
		wantMean float64
		wantStd  float64
	}{
		{
			name:     "Textbook sample",
			data:     []float64{2, 4, 4, 4, 5, 5, 7, 9},
			wantMean: 5.0,
			wantStd:  2.0,
		},
		{
			name:     "Constant",
			data:     []float64{5, 5, 5, 5},
			wantMean: 5.0,
		},
		{
			name: "Empty",
			data: []float64{},
		},
		{
			name:     "Single value",
			data:     []float64{5.5},
			wantMean: 5.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Mean(tt.data); !almostEqual(got, tt.wantMean, 1e-10) {
				t.Errorf("Mean() = %v, want %v", got, tt.wantMean)
			}
			if got := StdDev(tt.data); !almostEqual(got, tt.wantStd, 1e-10) {
				t.Errorf("StdDev() = %v, want %v", got, tt.wantStd)
			}
		})
	}
}

func TestZScore(t *testing.T) {
	tests := []struct {
		value, mean, std float64
		expected         float64
	}{
		{15, 10, 2.5, 2},
		{5, 10, 2.5, -2},
		{10, 10, 0, 0},
	}

	for _, tt := range tests {
		if got := ZScore(tt.value, tt.mean, tt.std); !almostEqual(got, tt.expected, 1e-10) {
			t.Errorf("ZScore(%v, %v, %v) = %v, want %v", tt.value, tt.mean, tt.std, got, tt.expected)
		}
	}
}

func TestCalculateRollingStats(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	result := CalculateRollingStats(data, 5)
	if !almostEqual(result.Mean, 8.0, 1e-10) {
		t.Errorf("Mean = %v, want 8", result.Mean)
	}
	if !almostEqual(result.Std, math.Sqrt(2.0), 1e-10) {
		t.Errorf("Std = %v, want sqrt(2)", result.Std)
	}
	if result.Count != 5 {
		t.Errorf("Count = %v, want 5", result.Count)
	}

	if all := CalculateRollingStats(data, 0); all.Count != len(data) {
		t.Errorf("period 0 Count = %v, want %v", all.Count, len(data))
	}
}

func TestCorrelation(t *testing.T) {
	tests := []struct {
		name     string
		x        []float64
		y        []float64
		expected float64
	}{
		{
			name:     "Perfect positive correlation",
			x:        []float64{1, 2, 3, 4, 5},
			y:        []float64{2, 4, 6, 8, 10},
			expected: 1.0,
		},
		{
			name:     "Perfect negative correlation",
			x:        []float64{1, 2, 3, 4, 5},
			y:        []float64{10, 8, 6, 4, 2},
			expected: -1.0,
		},
		{
			name:     "Constant y is degenerate",
			x:        []float64{1, 2, 3},
			y:        []float64{5, 5, 5},
			expected: 0.0,
		},
		{
			name:     "Both constant",
			x:        []float64{2, 2, 2, 2},
			y:        []float64{5, 5, 5, 5},
			expected: 0.0,
		},
		{
			name:     "Partial correlation",
			x:        []float64{1, 2, 3, 4},
			y:        []float64{1, 3, 2, 4},
			expected: 0.8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Correlation(tt.x, tt.y)
			if !almostEqual(result, tt.expected, 1e-10) {
				t.Errorf("Correlation() = %v, want %v", result, tt.expected)
			}
			if math.IsNaN(result) {
				t.Error("Correlation() must never return NaN")
			}
		})
	}
}

func TestCorrelation_Symmetric(t *testing.T) {
	xs := []float64{64010.5, 64020.25, 63990.0, 64100.75, 64080.0, 64055.5}
	ys := []float64{3101.2, 3102.9, 3099.5, 3110.0, 3108.25, 3104.0}

	if a, b := Correlation(xs, ys), Correlation(ys, xs); a != b {
		t.Errorf("Correlation(xs,ys) = %v, Correlation(ys,xs) = %v", a, b)
	}
}

func TestCorrelation_IdenticalSequences(t *testing.T) {
	xs := []float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3}

	if got := Correlation(xs, xs); !almostEqual(got, 1.0, 1e-12) {
		t.Errorf("Correlation(xs, xs) = %v, want 1", got)
	}
}

func TestCorrelationDefined(t *testing.T) {
	tests := []struct {
		name        string
		x, y        []float64
		wantDefined bool
	}{
		{"varying", []float64{1, 2, 3}, []float64{3, 1, 2}, true},
		{"constant x", []float64{7, 7, 7}, []float64{1, 2, 3}, false},
		{"empty", nil, nil, false},
		{"length mismatch", []float64{1, 2, 3}, []float64{1, 2}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := CorrelationDefined(tt.x, tt.y)
			if ok != tt.wantDefined {
				t.Errorf("defined = %v, want %v", ok, tt.wantDefined)
			}
			if !ok && r != 0 {
				t.Errorf("undefined correlation = %v, want 0", r)
			}
		})
	}
}

// Only an exactly zero denominator counts as degenerate. A constant that is
// not representable in binary leaves rounding residue in n·Σx² - (Σx)², so
// the coefficient is defined and merely tiny.
func TestCorrelationDefined_InexactConstant(t *testing.T) {
	xs := make([]float64, 10)
	ys := make([]float64, 10)
	for i := range xs {
		xs[i] = 0.1
		ys[i] = float64(i + 1)
	}

	r, ok := CorrelationDefined(xs, ys)
	if !ok {
		t.Fatal("defined = false, want true for a rounding-level denominator")
	}
	if r == 0 || math.Abs(r) > 1e-6 {
		t.Errorf("r = %v, want a tiny non-zero value", r)
	}
	if got := Correlation(ys, xs); got != r {
		t.Errorf("Correlation(ys, xs) = %v, want %v", got, r)
	}
}

func TestLinearRegression(t *testing.T) {
	tests := []struct {
		name              string
		x                 []float64
		y                 []float64
		expectedSlope     float64
		expectedIntercept float64
	}{
		{
			name:              "y=2x+1",
			x:                 []float64{1, 2, 3, 4, 5},
			y:                 []float64{3, 5, 7, 9, 11},
			expectedSlope:     2.0,
			expectedIntercept: 1.0,
		},
		{
			name:              "Vertical x has no slope",
			x:                 []float64{4, 4, 4},
			y:                 []float64{1, 2, 3},
			expectedSlope:     0.0,
			expectedIntercept: 2.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slope, intercept := LinearRegression(tt.x, tt.y)
			if !almostEqual(slope, tt.expectedSlope, 1e-10) {
				t.Errorf("Slope = %v, want %v", slope, tt.expectedSlope)
			}
			if !almostEqual(intercept, tt.expectedIntercept, 1e-10) {
				t.Errorf("Intercept = %v, want %v", intercept, tt.expectedIntercept)
			}
		})
	}
}

func BenchmarkCorrelation(b *testing.B) {
	x := make([]float64, 200)
	y := make([]float64, 200)
	for i := range x {
		x[i] = float64(i)
		y[i] = float64(i) * 2
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Correlation(x, y)
	}
}
