package server

import (
	"fmt"
	"sync"
	"time"
)

// maxTrackedClients bounds the usage table; idle clients are pruned beyond it.
const maxTrackedClients = 10000

// RateLimitConfig holds per-client limits. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64 // bytes
}

// RateLimiter tracks requests and uploaded bytes per client. Matching is
// expensive, so every accepted request counts, not only successful ones.
type RateLimiter struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	clients map[string]*clientUsage
	now     func() time.Time
}

// window is a fixed counting window that restarts once its span elapsed.
type window struct {
	start time.Time
	count int
}

func (w *window) roll(now time.Time, span time.Duration) {
	if now.Sub(w.start) >= span {
		w.start = now
		w.count = 0
	}
}

type clientUsage struct {
	minute   window
	hour     window
	day      time.Time // local midnight of the counted day
	requests int
	data     int64
	lastSeen time.Time
}

// Usage is a snapshot of one client's counters.
type Usage struct {
	RequestsLastMinute int
	RequestsLastHour   int
	RequestsToday      int
	DataToday          int64
}

// NewRateLimiter creates a rate limiter with the given limits.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		cfg:     cfg,
		clients: make(map[string]*clientUsage),
		now:     time.Now,
	}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Allow records a request of dataSize bytes from client, or returns a
// *RateLimitError or *QuotaExceededError without recording it.
func (rl *RateLimiter) Allow(client string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u := rl.usage(client, now)
	u.minute.roll(now, time.Minute)
	u.hour.roll(now, time.Hour)
	if today := midnight(now); !today.Equal(u.day) {
		u.day, u.requests, u.data = today, 0, 0
	}

	if n := rl.cfg.RequestsPerMinute; n > 0 && u.minute.count >= n {
		return &RateLimitError{Window: "minute", Limit: n, RetryAfter: time.Minute - now.Sub(u.minute.start)}
	}
	if n := rl.cfg.RequestsPerHour; n > 0 && u.hour.count >= n {
		return &RateLimitError{Window: "hour", Limit: n, RetryAfter: time.Hour - now.Sub(u.hour.start)}
	}
	resets := u.day.AddDate(0, 0, 1)
	if n := rl.cfg.MaxRequestsPerDay; n > 0 && u.requests >= n {
		return &QuotaExceededError{Quota: "requests", Limit: int64(n), Used: int64(u.requests), Resets: resets}
	}
	if n := rl.cfg.MaxDataPerDay; n > 0 && u.data+dataSize > n {
		return &QuotaExceededError{Quota: "data", Limit: n, Used: u.data, Resets: resets}
	}

	u.minute.count++
	u.hour.count++
	u.requests++
	u.data += dataSize
	u.lastSeen = now
	return nil
}

// usage returns the counters of client, creating them on first sight.
// Caller holds rl.mu.
func (rl *RateLimiter) usage(client string, now time.Time) *clientUsage {
	if u, ok := rl.clients[client]; ok {
		return u
	}
	if len(rl.clients) >= maxTrackedClients {
		rl.pruneLocked(now, 24*time.Hour)
	}
	u := &clientUsage{
		minute:   window{start: now},
		hour:     window{start: now},
		day:      midnight(now),
		lastSeen: now,
	}
	rl.clients[client] = u
	return u
}

// Prune forgets clients idle for longer than idle and returns how many
// were dropped.
func (rl *RateLimiter) Prune(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.pruneLocked(rl.now(), idle)
}

func (rl *RateLimiter) pruneLocked(now time.Time, idle time.Duration) int {
	dropped := 0
	for client, u := range rl.clients {
		if now.Sub(u.lastSeen) > idle {
			delete(rl.clients, client)
			dropped++
		}
	}
	return dropped
}

// Usage returns current usage statistics for a client.
func (rl *RateLimiter) Usage(client string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	u, ok := rl.clients[client]
	if !ok {
		return Usage{}
	}
	return Usage{
		RequestsLastMinute: u.minute.count,
		RequestsLastHour:   u.hour.count,
		RequestsToday:      u.requests,
		DataToday:          u.data,
	}
}

// RateLimitError reports a request over a per-minute or per-hour limit.
type RateLimitError struct {
	Window     string // "minute" or "hour"
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)",
		e.Window, e.Limit, e.RetryAfter.Round(time.Second))
}

// QuotaExceededError reports a client over its daily request or data quota.
type QuotaExceededError struct {
	Quota  string // "requests" or "data"
	Limit  int64
	Used   int64
	Resets time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Quota, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
