package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultMaxEntries = 10000

// IPRateLimiter keeps one token bucket per client address.
type IPRateLimiter struct {
	mu             sync.Mutex
	limiters       map[string]*limiterEntry
	rate           rate.Limit
	burst          int
	idleTTL        time.Duration
	maxEntries     int
	trustedProxies []*net.IPNet
	now            func() time.Time
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewIPRateLimiter allows r requests per second with bursts of b per client.
// Buckets idle for idleTTL are dropped by Run. Forwarding headers are only
// honoured from trustedProxies (CIDRs or bare IPs); with none configured they
// are always honoured.
func NewIPRateLimiter(r rate.Limit, b int, idleTTL time.Duration, trustedProxies []string) *IPRateLimiter {
	return &IPRateLimiter{
		limiters:       make(map[string]*limiterEntry),
		rate:           r,
		burst:          b,
		idleTTL:        idleTTL,
		maxEntries:     defaultMaxEntries,
		trustedProxies: parseProxies(trustedProxies),
		now:            time.Now,
	}
}

func parseProxies(values []string) []*net.IPNet {
	var out []*net.IPNet
	for _, v := range values {
		if _, ipnet, err := net.ParseCIDR(v); err == nil {
			out = append(out, ipnet)
			continue
		}
		ip := net.ParseIP(v)
		if ip == nil {
			continue
		}
		bits := 128
		if ip.To4() != nil {
			ip, bits = ip.To4(), 32
		}
		out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return out
}

// Run drops idle buckets until ctx is done.
func (l *IPRateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.idleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *IPRateLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idleTTL)
	for ip, entry := range l.limiters {
		if entry.lastAccess.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}

func (l *IPRateLimiter) limiterFor(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if entry, ok := l.limiters[ip]; ok {
		entry.lastAccess = now
		return entry.limiter
	}
	if len(l.limiters) >= l.maxEntries {
		l.evictOldest()
	}
	entry := &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst), lastAccess: now}
	l.limiters[ip] = entry
	return entry.limiter
}

func (l *IPRateLimiter) evictOldest() {
	var oldestIP string
	var oldest time.Time
	for ip, entry := range l.limiters {
		if oldestIP == "" || entry.lastAccess.Before(oldest) {
			oldestIP, oldest = ip, entry.lastAccess
		}
	}
	delete(l.limiters, oldestIP)
}

// Middleware rejects clients over their budget with 429.
func (l *IPRateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.limiterFor(l.clientIP(r)).Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *IPRateLimiter) clientIP(r *http.Request) string {
	remote := parseIP(r.RemoteAddr)
	if remote == nil {
		return r.RemoteAddr
	}
	if len(l.trustedProxies) > 0 && !l.trusted(remote) {
		return remote.String()
	}

	// Leftmost X-Forwarded-For entry is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	return remote.String()
}

func (l *IPRateLimiter) trusted(ip net.IP) bool {
	for _, ipnet := range l.trustedProxies {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}

func parseIP(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(addr)
}
