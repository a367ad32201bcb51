package service

import (
	"context"
	"sync"
	"time"

	"github.com/jorat/landing/internal/clock"
	"github.com/jorat/landing/internal/models"
	"github.com/jorat/landing/internal/sweeper"
	"github.com/sirupsen/logrus"
)

// RateLimiter bounds how many OTP requests a key may make per fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type RateLimitConfig struct {
	MaxRequests   int
	Window        time.Duration
	SweepInterval time.Duration
}

// MemoryRateLimiter keeps fixed windows in process memory. Windows reset
// entirely at ResetAt; they do not slide.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*models.RateLimitWindow

	maxRequests int
	window      time.Duration
	clock       clock.Clock
	sweeper     *sweeper.Sweeper
}

func NewMemoryRateLimiter(cfg RateLimitConfig, clk clock.Clock, logger *logrus.Logger) *MemoryRateLimiter {
	l := &MemoryRateLimiter{
		windows:     make(map[string]*models.RateLimitWindow),
		maxRequests: cfg.MaxRequests,
		window:      cfg.Window,
		clock:       clk,
	}
	l.sweeper = sweeper.New("rate_limit_windows", cfg.SweepInterval, l.Sweep, logger)
	return l
}

func (l *MemoryRateLimiter) Start(ctx context.Context) {
	l.sweeper.Start(ctx)
}

func (l *MemoryRateLimiter) Stop() {
	l.sweeper.Stop()
}

// Allow opens a new window when none is live, counts the request when the
// live window has room, and otherwise denies without touching state.
func (l *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !w.IsLive(now) {
		l.windows[key] = &models.RateLimitWindow{
			Count:   1,
			ResetAt: now.Add(l.window),
		}
		return true, nil
	}

	if w.Count >= l.maxRequests {
		return false, nil
	}

	w.Count++
	return true, nil
}

// Sweep drops expired windows and returns how many were removed.
func (l *MemoryRateLimiter) Sweep() int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		if !w.IsLive(now) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

func (l *MemoryRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
