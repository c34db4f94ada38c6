// Package schedule posts periodic update ticks to the supervisor
package schedule

import (
	"context"
	"fmt"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/robfig/cron/v3"

	"github.com/offlinebay/offlinebay/app/supervisor"
)

// Cron defines robfig/cron methods used by Updater
type Cron interface {
	Start()
	Stop() context.Context
	Schedule(schedule cron.Schedule, cmd cron.Job) cron.EntryID
}

// Dispatcher accepts commands, implemented by supervisor.Supervisor
type Dispatcher interface {
	Dispatch(cmd supervisor.Command) error
}

// Updater dispatches update-tick command on every Spec activation.
// The supervisor decides what to do with it based on update policy.
type Updater struct {
	Cron       Cron
	Spec       string // standard 5 fields crontab spec or @descriptor
	Dispatcher Dispatcher
}

// Run schedules ticks and blocks until ctx is done
func (u *Updater) Run(ctx context.Context) error {
	sched, err := cron.ParseStandard(u.Spec)
	if err != nil {
		return fmt.Errorf("can't parse update schedule %q: %w", u.Spec, err)
	}
	id := u.Cron.Schedule(sched, cron.FuncJob(u.tick))
	log.Printf("[INFO] update checks scheduled, %s, first: %s (%v)", u.Spec, sched.Next(time.Now()).Format(time.RFC3339), id)

	u.Cron.Start()
	<-ctx.Done()
	log.Printf("[DEBUG] update checks stopped")
	<-u.Cron.Stop().Done()
	return nil
}

func (u *Updater) tick() {
	log.Printf("[DEBUG] update tick")
	if err := u.Dispatcher.Dispatch(supervisor.Command{Name: supervisor.CmdUpdateTick}); err != nil {
		log.Printf("[DEBUG] update tick not dispatched, %v", err)
	}
}
