package probe

import (
	"context"
	"net/netip"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// probeKey identifies an outstanding probe on the wire.
type probeKey struct {
	Addr netip.Addr
	Seq  uint16
}

// pendingProbe is what the tracker remembers about an outstanding probe.
type pendingProbe struct {
	Stream int
	Seq    uint16
	SentAt time.Time
}

// tracker holds outstanding probes until they are answered, expire or are
// drained. Every probe leaves the tracker exactly once: through resolve,
// through the expiry callback, or through drain.
type tracker struct {
	cache *ttlcache.Cache[probeKey, pendingProbe]
}

// newTracker creates a tracker whose entries expire after timeout. onExpire
// must not call back into the tracker.
func newTracker(timeout time.Duration, onExpire func(pendingProbe)) *tracker {
	cache := ttlcache.New(
		ttlcache.WithTTL[probeKey, pendingProbe](timeout),
		ttlcache.WithDisableTouchOnHit[probeKey, pendingProbe](),
	)
	cache.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[probeKey, pendingProbe]) {
		if reason == ttlcache.EvictionReasonExpired {
			onExpire(item.Value())
		}
	})
	return &tracker{cache: cache}
}

// start runs expiry until stop is called.
func (t *tracker) start() {
	t.cache.Start()
}

func (t *tracker) stop() {
	t.cache.Stop()
}

func (t *tracker) add(key probeKey, p pendingProbe) {
	t.cache.Set(key, p, ttlcache.DefaultTTL)
}

// resolve removes and returns the probe for key. Expired probes are not
// returned, so a late reply loses against the expiry callback.
func (t *tracker) resolve(key probeKey) (pendingProbe, bool) {
	item, ok := t.cache.GetAndDelete(key)
	if !ok || item == nil {
		return pendingProbe{}, false
	}
	return item.Value(), true
}

// drain expires what is due and removes everything else, returning the
// probes that were removed without expiring.
func (t *tracker) drain() []pendingProbe {
	t.cache.DeleteExpired()

	var drained []pendingProbe
	for _, key := range t.cache.Keys() {
		if p, ok := t.resolve(key); ok {
			drained = append(drained, p)
		}
	}
	return drained
}

// pending returns the number of probes still held.
func (t *tracker) pending() int {
	return t.cache.Len()
}
