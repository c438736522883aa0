package tasks

import (
	"context"

	"github.com/reelwise/reelwise/internal/scheduler"
)

const LogRotateTaskID = "log-rotate"

// Rotator starts a new log file.
type Rotator interface {
	Rotate() error
}

// RegisterLogRotateTask registers the daily log rotation task. Size based
// rotation still happens on write; this bounds how long one file stays open.
func RegisterLogRotateTask(sched *scheduler.Scheduler, rotator Rotator) error {
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          LogRotateTaskID,
		Name:        "Log Rotation",
		Description: "Starts a new diagnostics log file",
		Cron:        "0 3 * * *",
		RunOnStart:  false,
		Func: func(context.Context) error {
			return rotator.Rotate()
		},
	})
}
