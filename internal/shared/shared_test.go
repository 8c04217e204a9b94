package shared

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestFormatPercentile(t *testing.T) {
	tests := []struct {
		p    float64
		want string
	}{
		{0.95, "0.95"},
		{0.5, "0.5"},
		{0.999, "0.999"},
		{1, "1"},
		{0, "0"},
	}

	for _, tt := range tests {
		if got := FormatPercentile(tt.p); got != tt.want {
			t.Errorf("FormatPercentile(%v) = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestPercentileMap_Keys(t *testing.T) {
	pm := PercentileMap{0.99: 12, 0.5: 3, 0.95: 9}
	keys := pm.Keys()
	want := []float64{0.5, 0.95, 0.99}
	if len(keys) != len(want) {
		t.Fatalf("Keys() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Keys()[%d] = %v, want %v", i, keys[i], want[i])
		}
	}
}

func TestPercentileMap_JSON(t *testing.T) {
	pm := PercentileMap{0.95: 40, 0.5: 20}

	data, err := json.Marshal(pm)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"0.95":40`) || !strings.Contains(string(data), `"0.5":20`) {
		t.Errorf("json.Marshal() = %s, want keys 0.95 and 0.5", data)
	}

	var decoded PercentileMap
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if decoded[0.95] != 40 || decoded[0.5] != 20 {
		t.Errorf("decoded = %v, want %v", decoded, pm)
	}

	if err := json.Unmarshal([]byte(`{"abc":1}`), &decoded); err == nil {
		t.Error("json.Unmarshal() with non-numeric key should fail")
	}
}

func TestTargetResult_HasRTT(t *testing.T) {
	tests := []struct {
		name   string
		result TargetResult
		want   bool
	}{
		{"all lost", TargetResult{Count: 3, Lost: 3, LossPct: 100}, false},
		{"received", TargetResult{Count: 3, Received: 3, RTT: &RTTStats{Mean: 0}}, true},
		{"stats without replies", TargetResult{Count: 3, RTT: &RTTStats{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.HasRTT(); got != tt.want {
				t.Errorf("HasRTT() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTargetResult_JSONAbsentMean(t *testing.T) {
	data, err := json.Marshal(TargetResult{Host: "192.0.2.1", Count: 2, Lost: 2, LossPct: 100, Percentiles: PercentileMap{}})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"rtt":null`) {
		t.Errorf("json.Marshal() = %s, want rtt null", data)
	}
}

func TestReport_MarshalJSON(t *testing.T) {
	r := Report{
		Started:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Duration: 1500 * time.Millisecond,
		Results:  []TargetResult{{Host: "198.51.100.1"}},
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if decoded["duration_ms"] != 1500.0 {
		t.Errorf("duration_ms = %v, want 1500", decoded["duration_ms"])
	}
	if _, ok := decoded["results"]; !ok {
		t.Error("results key missing")
	}
}

func TestOrderResults(t *testing.T) {
	results := map[string]TargetResult{
		"b": {Host: "b"},
		"a": {Host: "a"},
		"c": {Host: "c"},
	}

	got := OrderResults(results, []string{"c", "a", "missing", "b"})
	want := []string{"c", "a", "b"}
	if len(got) != len(want) {
		t.Fatalf("OrderResults() returned %d results, want %d", len(got), len(want))
	}
	for i, host := range want {
		if got[i].Host != host {
			t.Errorf("OrderResults()[%d] = %q, want %q", i, got[i].Host, host)
		}
	}
}
