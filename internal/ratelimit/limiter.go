// Package ratelimit provides a sliding-window call limiter for outbound
// extraction requests.
package ratelimit

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Limiter admits at most maxCalls calls in any trailing window.
//
// Acquire holds the limiter's lock for the whole evict-check-wait-record
// sequence, so a waiting caller blocks every other caller behind it.
type Limiter struct {
	mu       sync.Mutex
	maxCalls int
	window   time.Duration
	calls    []time.Time

	logger  *slog.Logger
	observe func(time.Duration)
	now     func() time.Time
	sleep   func(time.Duration)
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger used to report waits.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithWaitObserver registers a callback that receives every wait duration,
// including zero for immediate admissions.
func WithWaitObserver(fn func(time.Duration)) Option {
	return func(l *Limiter) { l.observe = fn }
}

// WithClock replaces the time source and the sleep function.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(l *Limiter) {
		l.now = now
		l.sleep = sleep
	}
}

// New creates a limiter allowing maxCalls calls per window.
func New(maxCalls int, window time.Duration, opts ...Option) (*Limiter, error) {
	if maxCalls < 1 {
		return nil, errors.New("ratelimit: maxCalls must be >= 1")
	}
	if window <= 0 {
		return nil, errors.New("ratelimit: window must be > 0")
	}

	l := &Limiter{
		maxCalls: maxCalls,
		window:   window,
		calls:    make([]time.Time, 0, maxCalls),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Acquire blocks until a call is permitted and records it. It cannot be
// cancelled.
func (l *Limiter) Acquire() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)

	var waited time.Duration
	if len(l.calls) >= l.maxCalls {
		waited = l.calls[0].Add(l.window).Sub(now)
		if waited > 0 {
			l.logger.Info("Call limit reached, waiting",
				"wait", waited,
				"maxCalls", l.maxCalls,
				"window", l.window,
			)
			l.sleep(waited)
		} else {
			waited = 0
		}
		now = l.now()
		l.evict(now)
	}

	l.calls = append(l.calls, now)
	if l.observe != nil {
		l.observe(waited)
	}
}

// InFlight reports how many admissions fall inside the current window.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.now())
	return len(l.calls)
}

// evict drops admissions at or before now-window. Caller holds mu.
func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}
