package shared

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"
)

// RTTStats holds round-trip statistics for the successful probes of a target.
// All values are in milliseconds.
type RTTStats struct {
	Mean   float64 `json:"mean_ms"`
	Min    float64 `json:"min_ms"`
	Max    float64 `json:"max_ms"`
	StdDev float64 `json:"stddev_ms"`
}

// PercentileMap maps a requested percentile (0.95) to an RTT in milliseconds.
type PercentileMap map[float64]float64

// Keys returns the requested percentiles in ascending order.
func (pm PercentileMap) Keys() []float64 {
	keys := make([]float64, 0, len(pm))
	for k := range pm {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// MarshalJSON encodes the map as an object keyed by the formatted percentile,
// since encoding/json cannot use float keys.
func (pm PercentileMap) MarshalJSON() ([]byte, error) {
	out := make(map[string]float64, len(pm))
	for k, v := range pm {
		out[FormatPercentile(k)] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (pm *PercentileMap) UnmarshalJSON(data []byte) error {
	var in map[string]float64
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	m := make(PercentileMap, len(in))
	for k, v := range in {
		p, err := strconv.ParseFloat(k, 64)
		if err != nil {
			return fmt.Errorf("invalid percentile key %q: %w", k, err)
		}
		m[p] = v
	}
	*pm = m
	return nil
}

// FormatPercentile renders a percentile with the shortest exact representation.
func FormatPercentile(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

// TargetResult is the final measurement for one registered host.
type TargetResult struct {
	Host        string        `json:"host"`
	Address     string        `json:"address,omitempty"`
	PTR         string        `json:"ptr,omitempty"`
	Count       uint          `json:"count"`
	Received    uint          `json:"received"`
	Lost        uint          `json:"lost"`
	LossPct     float64       `json:"loss_pct"`
	RTT         *RTTStats     `json:"rtt"` // nil when no probe succeeded
	Percentiles PercentileMap `json:"percentiles"`
	Error       string        `json:"error,omitempty"`
}

// HasRTT reports whether at least one probe succeeded. Mean and percentiles
// must not be read otherwise.
func (r TargetResult) HasRTT() bool {
	return r.RTT != nil && r.Received > 0
}

// Report is a complete run in registration order.
type Report struct {
	Started  time.Time      `json:"started"`
	Duration time.Duration  `json:"-"`
	Results  []TargetResult `json:"results"`
}

// MarshalJSON adds the run duration in milliseconds.
func (r Report) MarshalJSON() ([]byte, error) {
	type plain Report
	return json.Marshal(struct {
		plain
		DurationMs float64 `json:"duration_ms"`
	}{
		plain:      plain(r),
		DurationMs: float64(r.Duration) / float64(time.Millisecond),
	})
}

// OrderResults returns results in the given host order. Hosts missing from
// the map are skipped.
func OrderResults(results map[string]TargetResult, order []string) []TargetResult {
	ordered := make([]TargetResult, 0, len(results))
	for _, host := range order {
		if r, ok := results[host]; ok {
			ordered = append(ordered, r)
		}
	}
	return ordered
}
