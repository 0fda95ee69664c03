package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"tinkoff-merchant/internal/payment"
)

// ScheduleOff disables the status sync job.
const ScheduleOff = "off"

const (
	defaultBatch   = 100
	refreshTimeout = 30 * time.Second
)

// PendingLister hands out payments whose final status is not known yet,
// least recently synced first.
type PendingLister interface {
	ClaimForSync(ctx context.Context, statuses []payment.Status, limit int) ([]*payment.Payment, error)
}

// Refresher asks the gateway for the current state of a payment.
type Refresher interface {
	RefreshStatus(ctx context.Context, p *payment.Payment) (*payment.Payment, error)
}

// Scheduler periodically reconciles pending payments with the gateway in
// case a notification was lost.
type Scheduler struct {
	cron     *cron.Cron
	schedule string
	lister   PendingLister
	svc      Refresher
	logger   *zap.Logger
	batch    int
}

func New(schedule string, lister PendingLister, svc Refresher, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		schedule: schedule,
		lister:   lister,
		svc:      svc,
		logger:   logger,
		batch:    defaultBatch,
	}
}

// Start registers the status sync job and starts the scheduler. It does
// nothing when the schedule is empty or "off".
func (s *Scheduler) Start() error {
	if s.schedule == "" || s.schedule == ScheduleOff {
		s.logger.Info("status sync disabled")
		return nil
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		s.logger.Debug("Running: payment status sync")
		s.SyncStatuses(context.Background())
	})
	if err != nil {
		return fmt.Errorf("invalid status sync schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started", zap.String("schedule", s.schedule))
	return nil
}

// Stop waits for a running job to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// SyncStatuses refreshes one batch of pending payments and returns how many
// were refreshed successfully. Failures are logged and skipped.
func (s *Scheduler) SyncStatuses(ctx context.Context) int {
	pending, err := s.lister.ClaimForSync(ctx, payment.PendingStatuses, s.batch)
	if err != nil {
		s.logger.Error("failed to list pending payments", zap.Error(err))
		return 0
	}

	refreshed := 0
	for _, p := range pending {
		callCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
		_, err := s.svc.RefreshStatus(callCtx, p)
		cancel()

		if err != nil {
			s.logger.Warn("status sync failed",
				zap.String("order_id", p.OrderID),
				zap.String("payment_id", p.PaymentID),
				zap.Error(err),
			)
			continue
		}
		refreshed++
	}

	if len(pending) > 0 {
		s.logger.Info("status sync finished", zap.Int("pending", len(pending)), zap.Int("refreshed", refreshed))
	}
	return refreshed
}
