package task

import (
	"context"
	"time"

	qport "go-lounge/internal/infrastructure/queue/port"
	"go-lounge/internal/pkg/presence/application/usecase"
)

// SweepTaskType is the queue task name for the periodic disconnect sweep.
const SweepTaskType = "presence:sweep"

// sweepUniqueness collapses overlapping deliveries: if a sweep task is
// already queued or running, a duplicate enqueue within this window is
// dropped. The sweep itself is idempotent, so this is load shedding, not a
// correctness requirement.
const sweepUniqueness = 90 * time.Second

// RegisterSweepTask binds the sweep handler to the provided server. The
// handler carries no payload; the sweep derives everything from the store.
func RegisterSweepTask(srv qport.Server, uc *usecase.RunSweepUseCase) {
	srv.Register(SweepTaskType, func(ctx context.Context, t qport.Task) error {
		ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()

		// Per-room failures are logged inside; returning them would retry
		// the whole run, and the next scheduled run self-heals anyway.
		_, _ = uc.Execute(ctx)
		return nil
	})
}

// ScheduleSweep registers the recurring sweep entry on the scheduler.
func ScheduleSweep(s qport.Scheduler, every time.Duration) (string, error) {
	return s.RegisterPeriodic("@every "+every.String(), qport.Task{Type: SweepTaskType}, qport.EnqueueOption{
		Queue:     "presence",
		UniqueTTL: sweepUniqueness,
	})
}

// EnqueueStartupSweep kicks one immediate sweep so a freshly restarted
// process reconciles state accumulated while it was down.
func EnqueueStartupSweep(ctx context.Context, client qport.Client) (string, error) {
	return client.Enqueue(ctx, qport.Task{Type: SweepTaskType}, qport.EnqueueOption{
		Queue:     "presence",
		UniqueTTL: sweepUniqueness,
	})
}
