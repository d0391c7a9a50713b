package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"studio-booking-api/internal/clock"
)

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

// Decision is the outcome of one Take, ready to be rendered as
// X-RateLimit-* headers.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds up so callers never retry too early.
func (d Decision) RetryAfterSeconds() int {
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

// Limiter keeps one token bucket per key (user id or client ip).
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*client
	r       rate.Limit
	burst   int
	clk     clock.Clock
}

// New allows burst requests at once, refilled at rps per second.
func New(rps float64, burst int, clk clock.Clock) *Limiter {
	if burst < 1 {
		burst = 1
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Limiter{
		clients: make(map[string]*client),
		r:       rate.Limit(rps),
		burst:   burst,
		clk:     clk,
	}
}

// PerMinute is the usual booking shape: n requests per rolling minute.
func PerMinute(n int, clk clock.Clock) *Limiter {
	return New(float64(n)/60, n, clk)
}

func (l *Limiter) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.clients[key]; ok {
		c.seen = now
		return c.lim
	}
	lim := rate.NewLimiter(l.r, l.burst)
	l.clients[key] = &client{lim: lim, seen: now}
	return lim
}

// Take consumes one token for key when available.
func (l *Limiter) Take(key string) Decision {
	now := l.clk.Now()
	lim := l.get(key, now)

	d := Decision{Limit: l.burst}
	res := lim.ReserveN(now, 1)
	if !res.OK() {
		d.RetryAfter = time.Minute
		d.Reset = now.Add(d.RetryAfter)
		return d
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		d.RetryAfter = delay
		d.Reset = now.Add(delay)
		return d
	}

	d.Allowed = true
	tokens := lim.TokensAt(now)
	if tokens < 0 {
		tokens = 0
	}
	d.Remaining = int(tokens)
	d.Reset = now
	if l.r > 0 {
		missing := float64(l.burst) - tokens
		d.Reset = now.Add(time.Duration(missing / float64(l.r) * float64(time.Second)))
	}
	return d
}

func (l *Limiter) Allow(key string) bool {
	return l.Take(key).Allowed
}

// Sweep drops buckets idle for longer than maxIdle.
func (l *Limiter) Sweep(maxIdle time.Duration) {
	now := l.clk.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.clients {
		if now.Sub(c.seen) > maxIdle {
			delete(l.clients, key)
		}
	}
}

// Janitor sweeps every minute until stop is closed.
func (l *Limiter) Janitor(stop <-chan struct{}) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			l.Sweep(3 * time.Minute)
		}
	}
}
