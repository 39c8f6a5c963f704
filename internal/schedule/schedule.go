// Package schedule runs the periodic session jobs on cron schedules.
package schedule

import (
	"fmt"

	"github.com/robfig/cron/v3"

	appLog "epdpanel/internal/log"
)

// Session is what the jobs drive.
type Session interface {
	// Tick prints the status line while auto status is on.
	Tick()
	// Condition runs the anti-ghosting cycle and sleeps the controller.
	Condition() error
}

// Jobs holds the cron schedules. Empty ones are not scheduled.
type Jobs struct {
	AutoStatus string
	Condition  string
}

// logger adapts the application logger to cron.Logger.
type logger struct{}

func (logger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (logger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}

// New builds a stopped scheduler with the jobs registered. A job that is
// still running when its next activation comes is skipped.
func New(s Session, jobs Jobs) (*cron.Cron, error) {
	l := logger{}
	c := cron.New(
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)

	if jobs.AutoStatus != "" {
		if _, err := c.AddFunc(jobs.AutoStatus, s.Tick); err != nil {
			return nil, fmt.Errorf("schedule: auto status %q: %w", jobs.AutoStatus, err)
		}
	}
	if jobs.Condition != "" {
		_, err := c.AddFunc(jobs.Condition, func() {
			appLog.Info("scheduled conditioning start")
			if err := s.Condition(); err != nil {
				appLog.Error("scheduled conditioning failed", err)
				return
			}
			appLog.Info("scheduled conditioning done")
		})
		if err != nil {
			return nil, fmt.Errorf("schedule: condition %q: %w", jobs.Condition, err)
		}
	}
	return c, nil
}
