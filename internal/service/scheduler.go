package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/billingdesk/invoice-notifier/internal/domain"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler triggers dispatch runs on a cron expression evaluated in the
// business timezone, so "0 8 * * *" is 08:00 local regardless of where
// the process runs.
type Scheduler struct {
	cron   *cron.Cron
	runner *DispatchRunner
	logger *zap.Logger
}

func NewScheduler(runner *DispatchRunner, spec string, loc *time.Location, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("dispatch runner is required")
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		runner: runner,
		logger: logger,
	}

	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, fmt.Errorf("invalid dispatch cron expression %q: %w", spec, err)
	}

	return s, nil
}

func (s *Scheduler) runOnce() {
	result, err := s.runner.Run(context.Background())
	if err != nil {
		if errors.Is(err, domain.ErrRunInProgress) {
			s.logger.Warn("scheduled dispatch skipped, previous run still in progress")
			return
		}
		s.logger.Error("scheduled dispatch run failed", zap.Error(err))
		return
	}

	s.logger.Info("scheduled dispatch run completed",
		zap.Int("totalEligible", result.TotalEligible),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("skippedAlreadySent", result.SkippedAlreadySent),
		zap.Int("skippedInvalidData", result.SkippedInvalidData),
	)
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("dispatch scheduler started")
}

// Stop halts future triggers and waits for an in-flight job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("dispatch scheduler stopped")
}
