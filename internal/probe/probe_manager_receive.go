package probe

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
)

// recvProbes reads echo replies until the manager stops. A reply resolves
// its probe only if the probe is still outstanding; replies for unknown,
// expired or already resolved probes are dropped.
func (pm *ProbeManager) recvProbes() error {
	for {
		if isStopped(pm.stop) {
			slog.Debug("Stopping receive probes")
			return nil
		}

		reply, err := pm.socket.Receive(min(receivePollInterval, pm.config.Timeout))
		if err != nil {
			if errors.Is(err, ErrNoReply) {
				continue
			}
			if errors.Is(err, net.ErrClosed) || isStopped(pm.stop) {
				return nil
			}
			slog.Error("Error receiving probes", "error", err)
			return fmt.Errorf("receive: %w", err)
		}

		pm.handleReply(reply)
	}
}

func (pm *ProbeManager) handleReply(reply Reply) {
	p, ok := pm.tracker.resolve(probeKey{Addr: reply.Src, Seq: reply.Seq})
	if !ok {
		slog.Debug("Dropping reply without outstanding probe", "src", reply.Src, "seq", reply.Seq)
		return
	}

	pm.events <- ProbeEvent{
		Stream:    p.Stream,
		Seq:       p.Seq,
		EventType: eventReceived,
		RTT:       max(reply.ReceivedAt.Sub(p.SentAt), 0),
	}
}
