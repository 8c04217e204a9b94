package probe

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/netip"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tkjaer/mping/internal/shared"
	"github.com/tkjaer/mping/pkg/resolve"
)

// MaxCount is the largest probe count per target; sequence numbers are 16 bits.
const MaxCount = 1 << 16

// resolveParallelism bounds concurrent DNS lookups at run start.
const resolveParallelism = 16

// Target is a registered host and, once resolved, its address.
type Target struct {
	Host string
	Addr netip.Addr
}

// Option configures a Pinger.
type Option func(*Pinger)

// WithPrivileged selects a raw ICMP socket (true, the default) or an
// unprivileged datagram ICMP socket (false).
func WithPrivileged(privileged bool) Option {
	return func(p *Pinger) { p.privileged = privileged }
}

// WithPayloadSize sets the number of data bytes in each echo request.
func WithPayloadSize(size int) Option {
	return func(p *Pinger) { p.payloadSize = size }
}

// WithInterval sets the minimum pause between consecutive sends.
func WithInterval(d time.Duration) Option {
	return func(p *Pinger) { p.interval = d }
}

// WithIdentifier fixes the echo identifier instead of picking a random one
// per run.
func WithIdentifier(id uint16) Option {
	return func(p *Pinger) {
		p.id = id
		p.fixedID = true
	}
}

// WithPercentileMethod selects the percentile definition.
func WithPercentileMethod(m PercentileMethod) Option {
	return func(p *Pinger) { p.method = m }
}

// WithPTRLookup enables reverse lookups of resolved addresses.
func WithPTRLookup(enabled bool) Option {
	return func(p *Pinger) { p.lookupPTR = enabled }
}

// WithResolver replaces the default system resolver.
func WithResolver(r *resolve.Resolver) Option {
	return func(p *Pinger) { p.resolver = r }
}

// Pinger measures round-trip time and loss to a set of hosts. Targets may be
// changed between runs; a run works on a snapshot taken when it starts.
type Pinger struct {
	mu    sync.Mutex
	hosts []string

	privileged  bool
	payloadSize int
	interval    time.Duration
	id          uint16
	fixedID     bool
	method      PercentileMethod
	lookupPTR   bool
	resolver    *resolve.Resolver

	listen func(SocketConfig) (*Socket, error)
}

// NewPinger creates a Pinger with no targets.
func NewPinger(opts ...Option) *Pinger {
	p := &Pinger{
		privileged:  true,
		payloadSize: DefaultPayloadSize,
		method:      PercentileNearestRank,
		listen:      OpenSocket,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.resolver == nil {
		p.resolver = resolve.NewResolver()
	}
	return p
}

// AddTarget registers host. Adding a host twice has no effect. Resolution
// happens when a run starts; a host that cannot be resolved is reported with
// 100% loss.
func (p *Pinger) AddTarget(host string) error {
	if host == "" {
		return ErrEmptyHost
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !slices.Contains(p.hosts, host) {
		p.hosts = append(p.hosts, host)
	}
	return nil
}

// RemoveTarget unregisters host and reports whether it was registered.
func (p *Pinger) RemoveTarget(host string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := slices.Index(p.hosts, host)
	if i < 0 {
		return false
	}
	p.hosts = slices.Delete(p.hosts, i, i+1)
	return true
}

// Targets returns the registered hosts in registration order.
func (p *Pinger) Targets() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.hosts)
}

func validateRun(count, concurrency int, timeout time.Duration, percentiles []float64) error {
	switch {
	case count < 1 || count > MaxCount:
		return fmt.Errorf("%w: count must be between 1 and %d, got %d", ErrInvalidArgument, MaxCount, count)
	case concurrency < 1:
		return fmt.Errorf("%w: concurrency must be at least 1, got %d", ErrInvalidArgument, concurrency)
	case timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalidArgument, timeout)
	}
	for _, pct := range percentiles {
		if math.IsNaN(pct) || pct < 0 || pct > 1 {
			return fmt.Errorf("%w: percentile %v outside [0, 1]", ErrInvalidArgument, pct)
		}
	}
	return nil
}

// SendPings sends count echo requests to every registered target with at
// most concurrency probes outstanding at once, waiting up to timeout for each
// reply. It returns one result per registered host.
//
// If the socket cannot be opened the error wraps ErrPermission or
// ErrUnsupported and no results are returned. If ctx is cancelled the
// results are still complete, with unresolved probes counted as lost, and
// ctx.Err() is returned alongside them.
func (p *Pinger) SendPings(ctx context.Context, count, concurrency int, timeout time.Duration, percentiles []float64) (map[string]shared.TargetResult, error) {
	if err := validateRun(count, concurrency, timeout, percentiles); err != nil {
		return nil, err
	}
	if p.payloadSize < 0 || p.payloadSize > MaxPayloadSize {
		return nil, fmt.Errorf("%w: payload size must be between 0 and %d, got %d", ErrInvalidArgument, MaxPayloadSize, p.payloadSize)
	}

	hosts := p.Targets()
	results := make(map[string]shared.TargetResult, len(hosts))
	if len(hosts) == 0 {
		return results, nil
	}

	// Addresses are looked up afresh for every run.
	p.resolver.ForgetAddresses()
	targets, resolveErrs := p.resolveTargets(ctx, hosts, concurrency)

	// One stream per distinct address.
	var streams []netip.Addr
	streamOf := make(map[netip.Addr]int)
	for _, t := range targets {
		if _, ok := streamOf[t.Addr]; !ok {
			streamOf[t.Addr] = len(streams)
			streams = append(streams, t.Addr)
		}
	}

	var runErr error
	var stats *Aggregator
	if len(streams) > 0 {
		sock, err := p.openSocket()
		if err != nil {
			return nil, err
		}
		stats, runErr = p.run(ctx, sock, streams, RunConfig{
			Count:       uint(count),
			Concurrency: concurrency,
			Timeout:     timeout,
			Interval:    p.interval,
		})
	}

	for _, t := range targets {
		r := stats.Finalize(streamOf[t.Addr], percentiles, p.method)
		r.Host = t.Host
		r.Address = t.Addr.String()
		if p.lookupPTR {
			r.PTR, _ = p.resolver.GetPTR(t.Addr)
		}
		results[t.Host] = r
	}
	for host, err := range resolveErrs {
		results[host] = shared.TargetResult{
			Host:        host,
			Count:       uint(count),
			Lost:        uint(count),
			LossPct:     100,
			Percentiles: shared.PercentileMap{},
			Error:       err.Error(),
		}
	}
	if runErr == nil {
		runErr = ctx.Err()
	}
	return results, runErr
}

// openSocket opens the run's socket with a fresh identifier unless one was
// fixed.
func (p *Pinger) openSocket() (*Socket, error) {
	id := p.id
	if !p.fixedID {
		id = uint16(rand.N(1 << 16))
	}
	return p.listen(SocketConfig{
		Privileged:  p.privileged,
		ID:          id,
		PayloadSize: p.payloadSize,
	})
}

// run measures streams over sock, looking up PTR names alongside when
// enabled. The aggregator is complete even when an error is returned.
func (p *Pinger) run(ctx context.Context, sock *Socket, streams []netip.Addr, cfg RunConfig) (*Aggregator, error) {
	var ptrs errgroup.Group
	if p.lookupPTR {
		for _, addr := range streams {
			ptrs.Go(func() error {
				p.resolver.RequestPTR(ctx, addr)
				return nil
			})
		}
	}

	slog.Debug("Starting run",
		"streams", len(streams),
		"count", cfg.Count,
		"concurrency", cfg.Concurrency,
		"timeout", cfg.Timeout,
		"id", sock.id)
	pm := NewProbeManager(sock, streams, cfg)
	runErr := pm.Run(ctx)
	_ = ptrs.Wait()

	return pm.Stats(), runErr
}

// resolveTargets resolves hosts concurrently. Hosts that fail are returned
// in the error map instead of the target list.
func (p *Pinger) resolveTargets(ctx context.Context, hosts []string, limit int) ([]Target, map[string]error) {
	addrs := make([]netip.Addr, len(hosts))
	errs := make([]error, len(hosts))

	var g errgroup.Group
	g.SetLimit(min(limit, resolveParallelism))
	for i, host := range hosts {
		g.Go(func() error {
			addrs[i], errs[i] = p.resolver.Resolve(ctx, host)
			return nil
		})
	}
	_ = g.Wait()

	var targets []Target
	failed := make(map[string]error)
	for i, host := range hosts {
		if errs[i] != nil {
			slog.Warn("Target unresolved", "host", host, "error", errs[i])
			failed[host] = errs[i]
			continue
		}
		targets = append(targets, Target{Host: host, Addr: addrs[i]})
	}
	return targets, failed
}
