// Package jobs schedules the periodic orchestrator run.
package jobs

import (
	"context"
	"fmt"
	"time"

	"mission_rewards/internal/logger"
	"mission_rewards/internal/service"

	"github.com/go-co-op/gocron/v2"
)

// Runner is what the scheduler triggers; *service.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context) service.RunReport
}

type Scheduler struct {
	sched gocron.Scheduler
}

// Start schedules runner every interval. A run still in progress when the
// next tick fires makes that tick skip instead of overlapping.
func Start(ctx context.Context, interval time.Duration, runner Runner) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	log := logger.Component("scheduler")
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			report := runner.Run(ctx)
			log.Info("scheduled orchestrator run",
				"execution_id", report.ExecutionID,
				"success_rate", report.SuccessRate,
				"duration", report.Duration)
		}),
		gocron.WithName("orchestrator"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule orchestrator: %w", err)
	}

	sched.Start()
	log.Info("orchestrator scheduled", "interval", interval)
	return &Scheduler{sched: sched}, nil
}

func (s *Scheduler) Stop() error {
	return s.sched.Shutdown()
}
