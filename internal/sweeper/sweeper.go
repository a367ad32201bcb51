// Package sweeper runs a cleanup function on a fixed interval until stopped.
package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweeper owns one background goroutine that calls fn every interval.
type Sweeper struct {
	name     string
	interval time.Duration
	fn       func() int
	logger   *logrus.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a stopped Sweeper. fn returns how many entries it removed.
func New(name string, interval time.Duration, fn func() int, logger *logrus.Logger) *Sweeper {
	return &Sweeper{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger,
	}
}

// Start launches the background loop. Calling Start on a running Sweeper is a
// no-op. The loop exits when ctx is done or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil || s.interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)
}

// Stop cancels the loop and waits for it to exit. Safe to call more than once.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.fn(); removed > 0 {
				s.logger.WithFields(logrus.Fields{
					"sweeper": s.name,
					"removed": removed,
				}).Debug("Swept expired entries")
			}
		}
	}
}
