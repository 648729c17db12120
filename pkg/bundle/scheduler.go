package bundle

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wardenhq/warden/pkg/observability"
)

// Scheduler periodically rebuilds and publishes bundles for a fixed set of
// tenants, so the policy-enforcement engine's polling location never goes
// stale even without an explicit publish call.
type Scheduler struct {
	publisher *Publisher
	tenants   []string
	logger    *observability.Logger
	cron      *cron.Cron
	timeout   time.Duration
}

// NewScheduler creates a bundle publish scheduler.
func NewScheduler(publisher *Publisher, tenants []string, logger *observability.Logger) *Scheduler {
	return &Scheduler{
		publisher: publisher,
		tenants:   tenants,
		logger:    logger,
		cron:      cron.New(),
		timeout:   5 * time.Minute,
	}
}

// Start registers the publish job under the given cron spec and starts the
// scheduler.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, s.run)
	if err != nil {
		return fmt.Errorf("schedule bundle publish: %w", err)
	}
	s.cron.Start()
	s.logger.WithField("schedule", spec).Info("bundle publish scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("bundle publish scheduler stopped")
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	if err := s.publisher.PublishAll(ctx, s.tenants); err != nil {
		s.logger.WithError(err).Error("scheduled bundle publish failed")
		return
	}
	s.logger.WithFields(map[string]interface{}{
		"tenants":  len(s.tenants),
		"duration": time.Since(start).String(),
	}).Info("scheduled bundle publish complete")
}
