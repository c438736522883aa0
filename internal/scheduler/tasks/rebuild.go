package tasks

import (
	"context"

	"github.com/reelwise/reelwise/internal/scheduler"
)

const RebuildTickTaskID = "taste-rebuild-tick"

// Ticker fires a pending rebuild once its cooldown has elapsed.
type Ticker interface {
	Tick(ctx context.Context)
}

// RegisterRebuildTickTask registers the taste rebuild check. It retries
// failed rebuilds and fires ones deferred by the cooldown.
func RegisterRebuildTickTask(sched *scheduler.Scheduler, ticker Ticker, cron string) error {
	if cron == "" {
		cron = "* * * * *"
	}
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          RebuildTickTaskID,
		Name:        "Taste Rebuild Check",
		Description: "Requests a deferred or failed taste profile rebuild once the cooldown allows",
		Cron:        cron,
		RunOnStart:  true,
		Func: func(ctx context.Context) error {
			ticker.Tick(ctx)
			return nil
		},
	})
}
