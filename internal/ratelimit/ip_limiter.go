package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipState tracks one address: open connections and its token bucket
type ipState struct {
	conns    int
	bucket   *rate.Limiter
	lastSeen time.Time
}

// IPLimiter limits concurrent connections and the connection rate per IP address
type IPLimiter struct {
	maxConnsPerIP int
	perSecond     rate.Limit
	burst         int

	mu          sync.Mutex
	ips         map[string]*ipState
	lastCleanup time.Time
	idleTTL     time.Duration
}

// NewIPLimiter creates a limiter allowing maxConnsPerIP open connections and
// ratePerSecond new connections per second (with an equal burst) per address
func NewIPLimiter(maxConnsPerIP, ratePerSecond int) *IPLimiter {
	return &IPLimiter{
		maxConnsPerIP: maxConnsPerIP,
		perSecond:     rate.Limit(ratePerSecond),
		burst:         ratePerSecond,
		ips:           make(map[string]*ipState),
		lastCleanup:   time.Now(),
		idleTTL:       5 * time.Minute,
	}
}

// Allow reserves a connection slot for ip. Every true result needs a Release.
func (l *IPLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastCleanup) > l.idleTTL {
		l.cleanup(now)
		l.lastCleanup = now
	}

	st, ok := l.ips[ip]
	if !ok {
		st = &ipState{bucket: rate.NewLimiter(l.perSecond, l.burst)}
		l.ips[ip] = st
	}
	st.lastSeen = now

	if st.conns >= l.maxConnsPerIP {
		return false
	}
	if !st.bucket.AllowN(now, 1) {
		return false
	}
	st.conns++
	return true
}

// Release frees a connection slot for ip
func (l *IPLimiter) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if st, ok := l.ips[ip]; ok && st.conns > 0 {
		st.conns--
	}
}

// cleanup drops idle addresses with no open connections
func (l *IPLimiter) cleanup(now time.Time) {
	for ip, st := range l.ips {
		if st.conns == 0 && now.Sub(st.lastSeen) > l.idleTTL {
			delete(l.ips, ip)
		}
	}
}

// Connections returns the open connection count for ip
func (l *IPLimiter) Connections(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.ips[ip]; ok {
		return st.conns
	}
	return 0
}

// SetLimits applies new limits; existing buckets are updated in place
func (l *IPLimiter) SetLimits(maxConnsPerIP, ratePerSecond int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.maxConnsPerIP = maxConnsPerIP
	l.perSecond = rate.Limit(ratePerSecond)
	l.burst = ratePerSecond
	for _, st := range l.ips {
		st.bucket.SetLimit(l.perSecond)
		st.bucket.SetBurst(l.burst)
	}
}
