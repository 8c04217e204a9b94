// Package resolve turns target host names into IPv4 addresses and addresses
// back into PTR names, caching successful answers.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"
)

// ErrNoIPv4 is returned when a host resolves, but only to non-IPv4 addresses.
var ErrNoIPv4 = errors.New("no IPv4 address")

// ResolutionError reports a host that could not be turned into an address.
type ResolutionError struct {
	Host string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %q: %v", e.Host, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Resolver handles forward and PTR lookups with simple caching
type Resolver struct {
	mu       sync.Mutex
	cache    map[string]netip.Addr
	ptrCache map[string]string

	lookupFunc func(ctx context.Context, host string) ([]netip.Addr, error)
	ptrFunc    func(ctx context.Context, addr string) ([]string, error)
	retries    int
	retryDelay time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLookupFunc replaces the forward lookup.
func WithLookupFunc(fn func(ctx context.Context, host string) ([]netip.Addr, error)) Option {
	return func(r *Resolver) { r.lookupFunc = fn }
}

// WithPTRFunc replaces the reverse lookup.
func WithPTRFunc(fn func(ctx context.Context, addr string) ([]string, error)) Option {
	return func(r *Resolver) { r.ptrFunc = fn }
}

// WithRetries sets how often a failed lookup is attempted and the pause
// between attempts.
func WithRetries(n int, delay time.Duration) Option {
	return func(r *Resolver) {
		r.retries = n
		r.retryDelay = delay
	}
}

// NewResolver creates a Resolver backed by the system resolver
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		cache:    make(map[string]netip.Addr),
		ptrCache: make(map[string]string),
		lookupFunc: func(ctx context.Context, host string) ([]netip.Addr, error) {
			return net.DefaultResolver.LookupNetIP(ctx, "ip4", host)
		},
		ptrFunc:    net.DefaultResolver.LookupAddr,
		retries:    3,
		retryDelay: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the first IPv4 address for host. Literal addresses are
// returned without a lookup.
func (r *Resolver) Resolve(ctx context.Context, host string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		if !addr.Is4() {
			return netip.Addr{}, &ResolutionError{Host: host, Err: ErrNoIPv4}
		}
		return addr, nil
	}

	r.mu.Lock()
	addr, cached := r.cache[host]
	r.mu.Unlock()
	if cached {
		return addr, nil
	}

	var lastErr error
	for attempt := range max(r.retries, 1) {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return netip.Addr{}, &ResolutionError{Host: host, Err: ctx.Err()}
			case <-time.After(r.retryDelay):
			}
		}

		addrs, err := r.lookupFunc(ctx, host)
		if err != nil {
			lastErr = err
			var dnsErr *net.DNSError
			if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
				break
			}
			continue
		}

		for _, a := range addrs {
			if a = a.Unmap(); a.Is4() {
				r.mu.Lock()
				r.cache[host] = a
				r.mu.Unlock()
				return a, nil
			}
		}
		lastErr = ErrNoIPv4
		break
	}

	return netip.Addr{}, &ResolutionError{Host: host, Err: lastErr}
}

// ForgetAddresses drops every cached forward lookup so the next Resolve
// asks the resolver again. PTR names are kept.
func (r *Resolver) ForgetAddresses() {
	r.mu.Lock()
	clear(r.cache)
	r.mu.Unlock()
}

// RequestPTR looks up the PTR record for addr if it is not cached yet
func (r *Resolver) RequestPTR(ctx context.Context, addr netip.Addr) {
	ip := addr.String()

	r.mu.Lock()
	if _, exists := r.ptrCache[ip]; exists {
		r.mu.Unlock()
		return
	}
	r.ptrCache[ip] = "" // in progress
	r.mu.Unlock()

	for attempt := range max(r.retries, 1) {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.retryDelay):
			}
		}
		names, err := r.ptrFunc(ctx, ip)
		if err == nil && len(names) > 0 {
			r.mu.Lock()
			r.ptrCache[ip] = normalizePTR(names[0])
			r.mu.Unlock()
			return
		}
	}
}

// GetPTR retrieves the cached PTR result for the given address
// Returns the PTR and a boolean indicating if it was found
func (r *Resolver) GetPTR(addr netip.Addr) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ptr, exists := r.ptrCache[addr.String()]
	if ptr == "" {
		return "", false
	}
	return ptr, exists
}

func normalizePTR(name string) string {
	return strings.TrimSuffix(name, ".")
}
