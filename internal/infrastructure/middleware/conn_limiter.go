package middleware

import (
	"net"
	"time"

	"golang.org/x/time/rate"
)

// ConnLimiter throttles raw TCP admissions on the relays: a per-IP
// connections-per-minute budget plus a global cap on concurrent connections.
// Zero values disable the respective check.
type ConnLimiter struct {
	perIP *rateLimiterStore
	sem   chan struct{}
}

func NewConnLimiter(connectionsPerMinute, maxConcurrent int) *ConnLimiter {
	l := &ConnLimiter{}
	if connectionsPerMinute > 0 {
		l.perIP = newRateLimiterStore(rate.Every(time.Minute/time.Duration(connectionsPerMinute)), connectionsPerMinute)
	}
	if maxConcurrent > 0 {
		l.sem = make(chan struct{}, maxConcurrent)
	}
	return l
}

// Admit reports whether a connection from addr may proceed. Every admitted
// connection must be paired with a Release.
func (l *ConnLimiter) Admit(addr net.Addr) bool {
	if l.perIP != nil && addr != nil {
		if !l.perIP.getLimiter(hostOf(addr.String())).Allow() {
			return false
		}
	}
	if l.sem != nil {
		select {
		case l.sem <- struct{}{}:
		default:
			return false
		}
	}
	return true
}

// Release frees a concurrency slot taken by Admit.
func (l *ConnLimiter) Release() {
	if l.sem != nil {
		<-l.sem
	}
}
