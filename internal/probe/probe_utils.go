package probe

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// PercentileMethod selects how a percentile is read from the sorted samples.
type PercentileMethod int

const (
	// PercentileNearestRank returns an observed sample: the smallest value
	// with at least p of the samples at or below it.
	PercentileNearestRank PercentileMethod = iota
	// PercentileLinear interpolates between the two closest ranks.
	PercentileLinear
)

func (m PercentileMethod) String() string {
	switch m {
	case PercentileNearestRank:
		return "nearest"
	case PercentileLinear:
		return "linear"
	}
	return fmt.Sprintf("PercentileMethod(%d)", int(m))
}

// ParsePercentileMethod accepts "nearest" or "linear".
func ParsePercentileMethod(s string) (PercentileMethod, error) {
	switch strings.ToLower(s) {
	case "nearest", "nearest-rank", "":
		return PercentileNearestRank, nil
	case "linear":
		return PercentileLinear, nil
	}
	return 0, fmt.Errorf("%w: unknown percentile method %q", ErrInvalidArgument, s)
}

// rankEpsilon absorbs float error in p*n, so 0.07*100 is rank 7 and not 8.
const rankEpsilon = 1e-9

// percentile reads p (0..1) from sorted, which must not be empty.
func percentile(sorted []float64, p float64, method PercentileMethod) float64 {
	if method == PercentileLinear {
		return linearPercentile(sorted, p)
	}
	return nearestRankPercentile(sorted, p)
}

func nearestRankPercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	rank := p * float64(n)
	if r := math.Round(rank); math.Abs(rank-r) < rankEpsilon {
		rank = r
	}
	idx := int(math.Ceil(rank)) - 1
	return sorted[min(max(idx, 0), n-1)]
}

func linearPercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// calculateLossPct returns the lost share of count as a percentage.
func calculateLossPct(lost, count uint) float64 {
	if count == 0 {
		return 0
	}
	return float64(lost) * 100 / float64(count)
}

// calculateStdDev returns the population standard deviation of values.
func calculateStdDev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sumSquares float64
	for _, v := range values {
		d := v - mean
		sumSquares += d * d
	}
	return math.Sqrt(sumSquares / float64(len(values)))
}

// durationToMs converts d to fractional milliseconds.
func durationToMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// sortedMs returns the samples as sorted milliseconds.
func sortedMs(samples []time.Duration) []float64 {
	ms := make([]float64, len(samples))
	for i, s := range samples {
		ms[i] = durationToMs(s)
	}
	slices.Sort(ms)
	return ms
}
