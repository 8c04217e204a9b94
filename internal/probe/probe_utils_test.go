package probe

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"testing"
	"time"
)

func TestNearestRankPercentile(t *testing.T) {
	hundred := make([]float64, 100)
	for i := range hundred {
		hundred[i] = float64(i + 1)
	}

	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"p95 of four", []float64{10, 20, 30, 40}, 0.95, 40},
		{"p50 of four", []float64{10, 20, 30, 40}, 0.5, 20},
		{"p25 of four", []float64{10, 20, 30, 40}, 0.25, 10},
		{"p0 is min", []float64{10, 20, 30, 40}, 0, 10},
		{"p100 is max", []float64{10, 20, 30, 40}, 1, 40},
		{"single sample", []float64{7}, 0.99, 7},
		{"rank with float error", hundred, 0.07, 7},
		{"p99 of hundred", hundred, 0.99, 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := percentile(tt.sorted, tt.p, PercentileNearestRank); got != tt.want {
				t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestLinearPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"median of four", []float64{10, 20, 30, 40}, 0.5, 25},
		{"p95 of four", []float64{10, 20, 30, 40}, 0.95, 38.5},
		{"p0", []float64{10, 20, 30, 40}, 0, 10},
		{"p100", []float64{10, 20, 30, 40}, 1, 40},
		{"single sample", []float64{3}, 0.5, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := percentile(tt.sorted, tt.p, PercentileLinear)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestPercentileMonotonic(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	ps := []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 0.95, 0.99, 0.999, 1}

	for range 50 {
		samples := make([]float64, 1+rng.IntN(200))
		for i := range samples {
			samples[i] = rng.ExpFloat64() * 10
		}
		slices.Sort(samples)

		for _, method := range []PercentileMethod{PercentileNearestRank, PercentileLinear} {
			prev := math.Inf(-1)
			for _, p := range ps {
				got := percentile(samples, p, method)
				if got < prev {
					t.Fatalf("%v: percentile(%v) = %v < previous %v", method, p, got, prev)
				}
				prev = got
			}
		}
	}
}

func TestParsePercentileMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    PercentileMethod
		wantErr bool
	}{
		{"nearest", PercentileNearestRank, false},
		{"", PercentileNearestRank, false},
		{"LINEAR", PercentileLinear, false},
		{"median", 0, true},
	}

	for _, tt := range tests {
		got, err := ParsePercentileMethod(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePercentileMethod(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("ParsePercentileMethod(%q) error = %v, want ErrInvalidArgument", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParsePercentileMethod(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCalculateLossPct(t *testing.T) {
	tests := []struct {
		name  string
		lost  uint
		count uint
		want  float64
	}{
		{name: "no loss", lost: 0, count: 10, want: 0.0},
		{name: "50% loss", lost: 5, count: 10, want: 50.0},
		{name: "100% loss", lost: 10, count: 10, want: 100.0},
		{name: "100% of odd count", lost: 7, count: 7, want: 100.0},
		{name: "100% of max count", lost: MaxCount, count: MaxCount, want: 100.0},
		{name: "zero count", lost: 0, count: 0, want: 0.0},
		{name: "33.33% loss", lost: 1, count: 3, want: 100.0 / 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calculateLossPct(tt.lost, tt.count); got != tt.want {
				t.Errorf("calculateLossPct(%d, %d) = %v, want %v", tt.lost, tt.count, got, tt.want)
			}
		})
	}
}

func TestCalculateStdDev(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{name: "no values", values: nil, want: 0},
		{name: "single value", values: []float64{100}, want: 0},
		{name: "identical values", values: []float64{100, 100, 100}, want: 0},
		{name: "two values", values: []float64{100, 200}, want: 50},
		{name: "textbook", values: []float64{2, 4, 4, 4, 5, 5, 7, 9}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sum float64
			for _, v := range tt.values {
				sum += v
			}
			mean := 0.0
			if len(tt.values) > 0 {
				mean = sum / float64(len(tt.values))
			}
			if got := calculateStdDev(tt.values, mean); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("calculateStdDev() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDurationToMs(t *testing.T) {
	if got := durationToMs(1500 * time.Microsecond); got != 1.5 {
		t.Errorf("durationToMs(1.5ms) = %v, want 1.5", got)
	}
	if got := sortedMs([]time.Duration{3 * time.Millisecond, time.Millisecond}); !slices.Equal(got, []float64{1, 3}) {
		t.Errorf("sortedMs() = %v, want [1 3]", got)
	}
}
