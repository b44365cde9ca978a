// services/scheduler.go
package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// StartTierReconciler repairs stale stored tiers every interval. The returned
// scheduler must be shut down by the caller.
func (s *PointsService) StartTierReconciler(ctx context.Context, interval time.Duration, batch int) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			fixed, err := s.ReconcileAll(ctx, batch)
			if err != nil {
				s.Logger.Error("[TIERS] reconcile run failed", zap.Error(err))
				return
			}
			if fixed > 0 {
				s.Logger.Info("[TIERS] ✅ reconciled stale tiers", zap.Int("fixed", fixed))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	s.Logger.Info("[TIERS] reconciler started", zap.Duration("interval", interval), zap.Int("batch", batch))
	return sched, nil
}
