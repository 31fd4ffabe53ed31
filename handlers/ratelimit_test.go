package handlers

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestRateLimiter(t *testing.T) {
	limiter := newRateLimiter()
	ip := "127.0.0.1"

	if !limiter.Allow(ip) {
		t.Errorf("Expected IP to be allowed initially")
	}

	for i := 0; i < maxAttempts-1; i++ {
		limiter.RecordFailure(ip)
	}
	if !limiter.Allow(ip) {
		t.Errorf("Expected IP to be allowed after %d failures", maxAttempts-1)
	}

	limiter.RecordFailure(ip)
	if limiter.Allow(ip) {
		t.Errorf("Expected IP to be blocked after %d failures", maxAttempts)
	}

	limiter.Reset(ip)
	if !limiter.Allow(ip) {
		t.Errorf("Expected IP to be allowed after reset")
	}
}

func TestRateLimiterBlockExpires(t *testing.T) {
	limiter := newRateLimiter()
	now := time.Now()
	limiter.now = func() time.Time { return now }
	ip := "10.0.0.2"

	for i := 0; i < maxAttempts; i++ {
		limiter.RecordFailure(ip)
	}
	if limiter.Allow(ip) {
		t.Fatal("Expected IP to be blocked")
	}

	now = now.Add(blockDuration + time.Second)
	if !limiter.Allow(ip) {
		t.Error("Expected block to expire")
	}
}

func TestRateLimiterWindowResets(t *testing.T) {
	limiter := newRateLimiter()
	now := time.Now()
	limiter.now = func() time.Time { return now }
	ip := "10.0.0.3"

	for i := 0; i < maxAttempts-1; i++ {
		limiter.RecordFailure(ip)
	}
	now = now.Add(windowDuration + time.Second)
	limiter.RecordFailure(ip)

	if !limiter.Allow(ip) {
		t.Error("Failures outside the window should not accumulate")
	}
}

func TestRateLimiterSweep(t *testing.T) {
	limiter := newRateLimiter()
	now := time.Now()
	limiter.now = func() time.Time { return now }

	for i := 0; i <= maxTrackedIPs; i++ {
		limiter.RecordFailure(fmt.Sprintf("ip-%d", i))
	}
	now = now.Add(windowDuration + time.Second)
	limiter.RecordFailure("fresh")

	limiter.Lock()
	defer limiter.Unlock()
	if len(limiter.attempts) != 1 {
		t.Errorf("Expected stale entries to be swept, %d left", len(limiter.attempts))
	}
}

func TestRateLimiterParallel(t *testing.T) {
	limiter := newRateLimiter()
	ip := "10.0.0.1"

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			limiter.RecordFailure(ip)
		}()
	}
	wg.Wait()

	if limiter.Allow(ip) {
		t.Errorf("Expected IP to be blocked after concurrent failures")
	}
}
