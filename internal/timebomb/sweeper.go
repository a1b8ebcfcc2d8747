// Package timebomb runs the periodic sweep that rejects pending TimeBomb requests past their deadline.
package timebomb

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Default sweep settings.
const (
	DefaultInterval  = 30 * time.Second
	DefaultBatchSize = 100
)

// Expirer rejects expired TimeBomb requests. requests.Service implements it.
type Expirer interface {
	ExpireTimeBombs(ctx context.Context, now time.Time, limit int) (int, error)
}

// Sweeper periodically expires TimeBomb requests.
type Sweeper struct {
	expirer   Expirer
	interval  time.Duration
	batchSize int
	now       func() time.Time
	logger    *slog.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithInterval sets the time between sweeps.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithBatchSize sets how many requests one store round trip expires.
func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

// NewSweeper creates a new Sweeper.
func NewSweeper(expirer Expirer, logger *slog.Logger, opts ...Option) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		expirer:   expirer,
		interval:  DefaultInterval,
		batchSize: DefaultBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start sweeps once immediately and then on every tick until Stop is called or ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	stop, done := make(chan struct{}), make(chan struct{})
	s.stopChan, s.done = stop, done
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.stopChan, s.done = nil, nil
		s.mu.Unlock()
		close(done)
	}()

	s.logger.Info("starting timebomb sweeper",
		"interval", s.interval,
		"batch_size", s.batchSize,
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("timebomb sweeper stopped by context")
			return ctx.Err()
		case <-stop:
			s.logger.Info("timebomb sweeper stopped")
			return nil
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

// Stop ends the sweep loop and waits for a sweep in progress to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	stop, done := s.stopChan, s.done
	s.stopChan = nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// IsRunning reports whether the loop is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	n, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("timebomb sweep failed", "expired", n, "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("timebomb sweep completed", "expired", n)
	}
}

// Sweep expires every overdue TimeBomb request, one batch at a time, and returns the total.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	total := 0
	for {
		n, err := s.expirer.ExpireTimeBombs(ctx, now, s.batchSize)
		total += n
		if err != nil {
			return total, err
		}
		// Skipped requests also shorten a batch; the next tick picks up any remainder.
		if n < s.batchSize {
			return total, nil
		}
	}
}
