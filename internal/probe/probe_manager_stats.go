package probe

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tkjaer/mping/internal/shared"
)

// Outcome is the resolution of a single probe.
type Outcome struct {
	Lost bool
	RTT  time.Duration
}

type streamStats struct {
	count   uint
	samples []time.Duration
	lost    uint
}

// Aggregator collects outcomes per stream and turns them into results.
// It is safe for concurrent use.
type Aggregator struct {
	mu      sync.Mutex
	streams []streamStats
}

// NewAggregator creates an aggregator for n streams of count probes each.
func NewAggregator(n int, count uint) *Aggregator {
	a := &Aggregator{streams: make([]streamStats, n)}
	for i := range a.streams {
		a.streams[i].count = count
		a.streams[i].samples = make([]time.Duration, 0, count)
	}
	return a
}

// Record adds one outcome to stream. Outcomes past the stream's count are
// dropped so successes plus losses never exceed it.
func (a *Aggregator) Record(stream int, o Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := &a.streams[stream]
	if uint(len(s.samples))+s.lost >= s.count {
		slog.Debug("Dropping outcome beyond probe count", "stream", stream)
		return
	}
	if o.Lost {
		s.lost++
		return
	}
	s.samples = append(s.samples, max(o.RTT, 0))
}

// RecordLosses marks n probes of stream as lost.
func (a *Aggregator) RecordLosses(stream int, n uint) {
	for range n {
		a.Record(stream, Outcome{Lost: true})
	}
}

// Resolved returns how many probes of stream have an outcome.
func (a *Aggregator) Resolved(stream int) uint {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.streams[stream]
	return uint(len(s.samples)) + s.lost
}

// Finalize computes the result for stream. Host fields are left empty.
// Probes without a recorded outcome count as lost. The result only depends
// on the multiset of outcomes, not on the order they were recorded in.
func (a *Aggregator) Finalize(stream int, percentiles []float64, method PercentileMethod) shared.TargetResult {
	a.mu.Lock()
	s := a.streams[stream]
	samples := sortedMs(s.samples)
	a.mu.Unlock()

	received := uint(len(samples))
	lost := s.count - received
	result := shared.TargetResult{
		Count:       s.count,
		Received:    received,
		Lost:        lost,
		LossPct:     calculateLossPct(lost, s.count),
		Percentiles: shared.PercentileMap{},
	}
	if received == 0 {
		return result
	}

	var sum float64
	for _, v := range samples {
		sum += v
	}
	mean := sum / float64(received)
	result.RTT = &shared.RTTStats{
		Mean:   mean,
		Min:    samples[0],
		Max:    samples[len(samples)-1],
		StdDev: calculateStdDev(samples, mean),
	}
	for _, p := range percentiles {
		result.Percentiles[p] = percentile(samples, p, method)
	}
	return result
}

// statsProcessor consumes probe events until the events channel is closed.
// Each event resolves one probe: it is recorded, its concurrency slot is
// released and the outstanding probe count drops.
func (pm *ProbeManager) statsProcessor() {
	for event := range pm.events {
		switch event.EventType {
		case eventReceived:
			pm.stats.Record(event.Stream, Outcome{RTT: event.RTT})
		case eventTimeout, eventSendFailed, eventCancelled:
			pm.stats.Record(event.Stream, Outcome{Lost: true})
		default:
			slog.Debug("Unknown probe event type", "type", event.EventType)
		}
		slog.Debug("Probe resolved",
			"stream", event.Stream,
			"seq", event.Seq,
			"event", event.EventType,
			"rtt", event.RTT)

		pm.slots.Release(1)
		pm.wg.Done()
	}
	slog.Debug("Events channel closed, exiting stats processor")
}
