package probe

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Probe event types. Every outstanding probe produces exactly one event.
const (
	eventReceived   = "received"
	eventTimeout    = "timeout"
	eventSendFailed = "send_failed"
	eventCancelled  = "cancelled"
)

// receivePollInterval bounds how long the receive loop blocks before it
// checks for shutdown.
const receivePollInterval = 100 * time.Millisecond

// ProbeEvent reports the resolution of one probe to the stats processor.
type ProbeEvent struct {
	Stream    int
	Seq       uint16
	EventType string
	RTT       time.Duration
}

// RunConfig holds the parameters of one measurement run.
type RunConfig struct {
	Count       uint
	Concurrency int
	Timeout     time.Duration
	// Interval is the minimum pause between two consecutive sends.
	Interval time.Duration
}

// ProbeManager measures a set of streams, one per distinct address, over a
// shared socket.
type ProbeManager struct {
	// Coordination
	wg       sync.WaitGroup // outstanding probes
	stop     chan struct{}
	stopOnce sync.Once

	socket  *Socket
	tracker *tracker
	stats   *Aggregator
	events  chan ProbeEvent
	slots   *semaphore.Weighted

	streams []netip.Addr
	config  RunConfig
}

// NewProbeManager creates a manager for streams. The manager owns socket and
// closes it when Run returns.
func NewProbeManager(socket *Socket, streams []netip.Addr, cfg RunConfig) *ProbeManager {
	pm := &ProbeManager{
		stop:    make(chan struct{}),
		socket:  socket,
		stats:   NewAggregator(len(streams), cfg.Count),
		events:  make(chan ProbeEvent, max(cfg.Concurrency, 100)),
		slots:   semaphore.NewWeighted(int64(cfg.Concurrency)),
		streams: streams,
		config:  cfg,
	}
	pm.tracker = newTracker(cfg.Timeout, func(p pendingProbe) {
		pm.events <- ProbeEvent{Stream: p.Stream, Seq: p.Seq, EventType: eventTimeout}
	})
	return pm
}

// Stats returns the aggregator holding the run's outcomes.
func (pm *ProbeManager) Stats() *Aggregator {
	return pm.stats
}

// Run sends every probe and returns once each one is resolved. When ctx is
// cancelled, outstanding and unsent probes are recorded as lost and ctx.Err()
// is returned; the aggregator is complete in either case.
func (pm *ProbeManager) Run(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		pm.tracker.start()
		return nil
	})
	g.Go(func() error {
		pm.statsProcessor()
		return nil
	})
	g.Go(pm.recvProbes)

	runErr := pm.transmitProbes(ctx)
	if runErr != nil {
		pm.cancelPending()
	}

	pm.wg.Wait()
	pm.Stop()
	close(pm.events)

	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Stop shuts down the receive loop, the socket and expiry. It is called by
// Run once every probe is resolved.
func (pm *ProbeManager) Stop() {
	pm.stopOnce.Do(func() {
		close(pm.stop)
		if err := pm.socket.Close(); err != nil {
			slog.Debug("Closing ICMP socket", "error", err)
		}
		pm.tracker.stop()
	})
}

// cancelPending resolves every probe still in the tracker as cancelled.
func (pm *ProbeManager) cancelPending() {
	drained := pm.tracker.drain()
	if len(drained) > 0 {
		slog.Debug("Cancelling outstanding probes", "count", len(drained))
	}
	for _, p := range drained {
		pm.events <- ProbeEvent{Stream: p.Stream, Seq: p.Seq, EventType: eventCancelled}
	}
}

func isStopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
