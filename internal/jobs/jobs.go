package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/mrrustybutter/orchestrator/internal/health"
	"github.com/mrrustybutter/orchestrator/internal/models"
	"github.com/mrrustybutter/orchestrator/internal/providers"
	"github.com/mrrustybutter/orchestrator/internal/scheduler"
)

// Runner owns the periodic background jobs: provider health re-probes and
// event history cleanup.
type Runner struct {
	cron gocron.Scheduler
}

// NewRunner creates the job runner
func NewRunner() (*Runner, error) {
	cron, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create job scheduler: %w", err)
	}
	return &Runner{cron: cron}, nil
}

// RegisterHealthChecks schedules periodic re-probes of every configured
// provider. Providers excluded after a failed probe get another chance on
// the next cycle.
func (r *Runner) RegisterHealthChecks(registry *providers.Registry, healthSvc *health.Service, interval time.Duration) error {
	_, err := r.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			checked, failed := 0, 0
			for _, name := range registry.Configured() {
				provider, ok := registry.Get(name)
				if !ok {
					continue
				}
				capability := health.CapabilityChat
				if provider.Type == models.ProviderTypeCoding {
					capability = health.CapabilityCoding
				}
				checked++
				if err := healthSvc.CheckProvider(capability, name); err != nil {
					failed++
				}
			}
			log.Printf("[HEALTH-JOB] Re-probed %d providers (%d failing)", checked, failed)
		}),
	)
	return err
}

// RegisterHistoryCleanup schedules eviction of terminal events from the
// in-memory history into the archive.
func (r *Runner) RegisterHistoryCleanup(sched *scheduler.Scheduler, retention time.Duration) error {
	interval := retention / 4
	if interval < time.Minute {
		interval = time.Minute
	}

	_, err := r.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			sched.EvictTerminal(retention)
		}),
	)
	return err
}

// Start begins running registered jobs
func (r *Runner) Start() {
	r.cron.Start()
	log.Printf("⏰ [JOBS] Background jobs started")
}

// Stop shuts the job scheduler down
func (r *Runner) Stop(ctx context.Context) error {
	return r.cron.Shutdown()
}
