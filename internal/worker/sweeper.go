// Package worker runs background maintenance loops.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"marketplace-auth/internal/otp"
)

type Sweepable interface {
	Sweep(ctx context.Context) (otp.SweepResult, error)
}

// Sweeper runs Sweep on a fixed interval until stopped.
type Sweeper struct {
	target   Sweepable
	interval time.Duration
	budget   time.Duration
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSweeper(target Sweepable, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{target: target, interval: interval, budget: 10 * time.Second, logger: logger}
}

func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("OTP sweeper started", zap.Duration("interval", s.interval))
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("OTP sweeper stopped")
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight sweep to return.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) runOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()
	res, err := s.target.Sweep(ctx)
	if err != nil {
		s.logger.Warn("OTP sweep failed", zap.Error(err))
		return
	}
	if res.Deleted > 0 || res.Failed > 0 {
		s.logger.Info("OTP sweep completed",
			zap.Int64("deleted", res.Deleted),
			zap.Int64("failed", res.Failed))
	}
}
