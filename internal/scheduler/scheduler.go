// Package scheduler runs the background jobs of the API process: the daily
// contract status correction and the outbox drain.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/contracts"
	"github.com/kylejryan/insurance-policy-portal/internal/outbox"
)

// Job defaults.
const (
	DefaultFixSpec  = "0 3 * * *"
	FixLockKey      = "lock:fix-statuses"
	FixLockTTL      = 10 * time.Minute
	DefaultBatch    = 50
	defaultInterval = 30 * time.Second
)

// Fixer corrects contract statuses.
type Fixer interface {
	FixStatuses(ctx context.Context) (contracts.FixReport, error)
}

// Drainer delivers queued emails.
type Drainer interface {
	Drain(ctx context.Context, limit int) (outbox.Report, error)
}

// Config tunes the jobs.
type Config struct {
	FixSpec        string        // cron expression, UTC
	OutboxInterval time.Duration // <= 0 uses 30s
	OutboxBatch    int
}

// Scheduler owns the cron runner and the drain loop.
type Scheduler struct {
	cron    *cron.Cron
	fixer   Fixer
	drainer Drainer
	lock    Locker
	cfg     Config
	log     *zap.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New validates cfg and registers the jobs. lock may be nil, in which case
// every instance runs the correction.
func New(cfg Config, fixer Fixer, drainer Drainer, lock Locker, log *zap.Logger) (*Scheduler, error) {
	if cfg.FixSpec == "" {
		cfg.FixSpec = DefaultFixSpec
	}
	if cfg.OutboxInterval <= 0 {
		cfg.OutboxInterval = defaultInterval
	}
	if cfg.OutboxBatch <= 0 {
		cfg.OutboxBatch = DefaultBatch
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		fixer:   fixer,
		drainer: drainer,
		lock:    lock,
		cfg:     cfg,
		log:     log,
	}
	if _, err := s.cron.AddFunc(cfg.FixSpec, func() { s.RunFix(context.Background()) }); err != nil {
		return nil, fmt.Errorf("status fix schedule %q: %w", cfg.FixSpec, err)
	}
	return s, nil
}

// RunFix runs one status correction unless another instance holds the
// lock. It reports whether the correction ran.
func (s *Scheduler) RunFix(ctx context.Context) bool {
	if s.lock != nil {
		release, ok, err := s.lock.Acquire(ctx, FixLockKey, FixLockTTL)
		if err != nil {
			s.log.Error("status fix lock failed", zap.Error(err))
			return false
		}
		if !ok {
			s.log.Info("status fix already running elsewhere")
			return false
		}
		defer release()
	}
	start := time.Now()
	rep, err := s.fixer.FixStatuses(ctx)
	if err != nil {
		s.log.Error("status fix failed", zap.Error(err))
		return true
	}
	s.log.Info("status fix done",
		zap.Int("expired", rep.Expired),
		zap.Int("activated", rep.Activated),
		zap.Int("reactivated", rep.Reactivated),
		zap.Duration("took", time.Since(start)))
	return true
}

// DrainOnce delivers one batch of queued emails.
func (s *Scheduler) DrainOnce(ctx context.Context) {
	rep, err := s.drainer.Drain(ctx, s.cfg.OutboxBatch)
	if err != nil {
		s.log.Warn("outbox drain failed", zap.Error(err))
		return
	}
	if rep.Delivered+rep.Retrying+rep.Failed > 0 {
		s.log.Info("outbox drained",
			zap.Int("delivered", rep.Delivered),
			zap.Int("retrying", rep.Retrying),
			zap.Int("failed", rep.Failed))
	}
}

// Start runs the correction once, then starts the cron runner and the
// drain loop. They stop when ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RunFix(ctx)
	}()

	s.cron.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(s.cfg.OutboxInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.DrainOnce(ctx)
			}
		}
	}()
}

// Stop ends the jobs and waits for running ones to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.wg.Wait()
}
