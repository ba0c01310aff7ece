package bot

import (
	"context"
	"role-keeper/tasks/temprole"
	"role-keeper/utils/clock"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper reconciles stored grants with the in-memory timers.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (temprole.RecoveryReport, error)
}

// Scheduler runs the periodic reconciliation sweep.
type Scheduler struct {
	sweeper  Sweeper
	clock    clock.Clock
	interval time.Duration
	logger   *zap.Logger
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewScheduler creates a new scheduler.
func NewScheduler(sweeper Sweeper, clk clock.Clock, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		clock:    clk,
		interval: interval,
		logger:   logger.Named("sweeper"),
		done:     make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.startSweeper()
}

// Stop terminates the sweep loop and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping scheduler")
		close(s.done)
	})
	s.wg.Wait()
}

func (s *Scheduler) startSweeper() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := s.sweeper.Sweep(ctx, s.clock.Now()); err != nil {
		s.logger.Error("reconciliation sweep failed", zap.Error(err))
	}
}
