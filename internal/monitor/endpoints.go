package monitor

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"clueless/internal/inspect"
)

// LookupFunc resolves a host name to addresses.
type LookupFunc func(ctx context.Context, host string) ([]string, error)

// endpointTTL is how long resolved endpoint addresses are trusted.
const endpointTTL = 5 * time.Minute

// endpointMatcher matches netstat remote addresses against AI service hosts.
// Hosts match by name when netstat printed one, and by resolved address
// otherwise.
type endpointMatcher struct {
	hosts   []string
	lookup  LookupFunc
	resolve bool

	mu       sync.RWMutex
	addrs    map[string]string // address -> host
	resolved time.Time
}

func newEndpointMatcher(hosts []string, lookup LookupFunc, resolve bool) *endpointMatcher {
	if lookup == nil {
		lookup = net.DefaultResolver.LookupHost
	}
	lower := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			lower = append(lower, h)
		}
	}
	return &endpointMatcher{
		hosts:   lower,
		lookup:  lookup,
		resolve: resolve,
		addrs:   make(map[string]string),
	}
}

// refresh re-resolves every host once the cache has expired. Lookup
// failures leave the host without addresses until the next refresh.
func (m *endpointMatcher) refresh(ctx context.Context) {
	if !m.resolve {
		return
	}
	m.mu.RLock()
	fresh := !m.resolved.IsZero() && time.Since(m.resolved) < endpointTTL
	m.mu.RUnlock()
	if fresh {
		return
	}

	addrs := make(map[string]string)
	for _, h := range m.hosts {
		lctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		ips, err := m.lookup(lctx, h)
		cancel()
		if err != nil {
			continue
		}
		for _, ip := range ips {
			addrs[ip] = h
		}
	}

	m.mu.Lock()
	m.addrs = addrs
	m.resolved = time.Now()
	m.mu.Unlock()
}

// match returns the AI host that remote belongs to.
func (m *endpointMatcher) match(remote string) (string, bool) {
	lower := strings.ToLower(remote)
	for _, h := range m.hosts {
		if strings.Contains(lower, h) {
			return h, true
		}
	}
	host := inspect.RemoteHost(remote)
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.addrs[host]
	return h, ok
}
