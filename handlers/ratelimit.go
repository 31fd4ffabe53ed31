package handlers

import (
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	maxAttempts    = 5
	blockDuration  = 15 * time.Minute
	windowDuration = 15 * time.Minute

	// entries kept before expired ones are swept
	maxTrackedIPs = 10000
)

type attemptData struct {
	count        int
	firstAttempt time.Time
}

// rateLimiter blocks an IP for blockDuration after maxAttempts failures
// inside windowDuration. Login and registration each get their own.
type rateLimiter struct {
	sync.Mutex
	attempts map[string]*attemptData
	blocked  map[string]time.Time
	now      func() time.Time
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		attempts: make(map[string]*attemptData),
		blocked:  make(map[string]time.Time),
		now:      time.Now,
	}
}

// Allow returns false while ip is blocked.
func (l *rateLimiter) Allow(ip string) bool {
	l.Lock()
	defer l.Unlock()

	if unblockTime, ok := l.blocked[ip]; ok {
		if l.now().Before(unblockTime) {
			return false
		}
		delete(l.blocked, ip)
		delete(l.attempts, ip)
	}
	return true
}

// RecordFailure counts a failed attempt and blocks ip at the threshold.
func (l *rateLimiter) RecordFailure(ip string) {
	l.Lock()
	defer l.Unlock()

	now := l.now()
	if len(l.attempts) > maxTrackedIPs {
		l.sweep(now)
	}

	data, exists := l.attempts[ip]
	if !exists || now.Sub(data.firstAttempt) > windowDuration {
		data = &attemptData{firstAttempt: now}
		l.attempts[ip] = data
	}
	data.count++
	if data.count >= maxAttempts {
		l.blocked[ip] = now.Add(blockDuration)
	}
}

// Reset forgets ip, used after a successful login.
func (l *rateLimiter) Reset(ip string) {
	l.Lock()
	defer l.Unlock()
	delete(l.attempts, ip)
	delete(l.blocked, ip)
}

func (l *rateLimiter) sweep(now time.Time) {
	for ip, data := range l.attempts {
		if now.Sub(data.firstAttempt) > windowDuration {
			delete(l.attempts, ip)
		}
	}
	for ip, until := range l.blocked {
		if !now.Before(until) {
			delete(l.blocked, ip)
		}
	}
}

func getClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
