package probe

import (
	"context"
	"log/slog"
	"net/netip"
	"time"
)

// transmitProbes walks the backlog round-robin across streams: sequence 0
// for every stream, then sequence 1, and so on. Each send first takes a
// concurrency slot, which the stats processor returns once the probe is
// resolved. On cancellation the unsent remainder is recorded as lost.
func (pm *ProbeManager) transmitProbes(ctx context.Context) error {
	var lastSend time.Time

	for seq := range pm.config.Count {
		for idx, addr := range pm.streams {
			if err := pm.slots.Acquire(ctx, 1); err != nil {
				pm.abandon(seq, idx)
				return err
			}

			if err := pm.pace(ctx, lastSend); err != nil {
				pm.slots.Release(1)
				pm.abandon(seq, idx)
				return err
			}

			lastSend = pm.sendProbe(idx, addr, uint16(seq))
		}
	}

	slog.Debug("All probes sent", "streams", len(pm.streams), "count", pm.config.Count)
	return nil
}

// pace waits until Interval has passed since lastSend.
func (pm *ProbeManager) pace(ctx context.Context, lastSend time.Time) error {
	if pm.config.Interval <= 0 || lastSend.IsZero() {
		return ctx.Err()
	}
	wait := pm.config.Interval - time.Since(lastSend)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// sendProbe registers a probe before writing it so that a fast reply always
// finds its entry. A failed write resolves the probe as lost immediately.
func (pm *ProbeManager) sendProbe(stream int, addr netip.Addr, seq uint16) time.Time {
	key := probeKey{Addr: addr, Seq: seq}
	pm.wg.Add(1)

	sent := time.Now()
	pm.tracker.add(key, pendingProbe{Stream: stream, Seq: seq, SentAt: sent})
	if err := pm.socket.SendEcho(addr, seq); err != nil {
		if _, ok := pm.tracker.resolve(key); !ok {
			// Expired in the meantime; the expiry event accounts for it.
			return sent
		}
		slog.Debug("Error sending probe", "addr", addr, "seq", seq, "error", err)
		pm.events <- ProbeEvent{Stream: stream, Seq: seq, EventType: eventSendFailed}
	}
	return sent
}

// abandon records the probes that will never be sent once transmission
// stops at (seq, idx). Streams before idx already sent seq.
func (pm *ProbeManager) abandon(seq uint, idx int) {
	var total uint
	for i := range pm.streams {
		unsent := pm.config.Count - seq
		if i < idx {
			unsent--
		}
		pm.stats.RecordLosses(i, unsent)
		total += unsent
	}
	slog.Debug("Abandoned unsent probes", "count", total)
}
