package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offlinebay/offlinebay/app/supervisor"
)

type dispatcherMock struct {
	mu   sync.Mutex
	cmds []supervisor.Command
	err  error
}

func (d *dispatcherMock) Dispatch(cmd supervisor.Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cmds = append(d.cmds, cmd)
	return d.err
}

func (d *dispatcherMock) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.cmds)
}

type cronMock struct {
	mu       sync.Mutex
	jobs     []cron.Job
	started  bool
	stopped  bool
	schedule cron.Schedule
}

func (c *cronMock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
}

func (c *cronMock) Stop() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func (c *cronMock) Schedule(schedule cron.Schedule, cmd cron.Job) cron.EntryID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schedule = schedule
	c.jobs = append(c.jobs, cmd)
	return cron.EntryID(len(c.jobs))
}

func (c *cronMock) Jobs() []cron.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]cron.Job{}, c.jobs...)
}

func TestUpdater_Run(t *testing.T) {
	cr := &cronMock{}
	disp := &dispatcherMock{}
	u := Updater{Cron: cr, Spec: "@every 6h", Dispatcher: disp}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- u.Run(ctx) }()

	require.Eventually(t, func() bool { return len(cr.Jobs()) == 1 }, time.Second, 10*time.Millisecond)
	cr.Jobs()[0].Run()
	cr.Jobs()[0].Run()
	assert.Equal(t, 2, disp.Len())
	assert.Equal(t, supervisor.Command{Name: supervisor.CmdUpdateTick}, disp.cmds[0])

	disp.err = supervisor.ErrTerminated
	cr.Jobs()[0].Run()
	assert.Equal(t, 3, disp.Len(), "dispatch error only logged")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("updater didn't stop")
	}
	assert.True(t, cr.started)
	assert.True(t, cr.stopped)
	next := cr.schedule.Next(time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC), next)
}

func TestUpdater_BadSpec(t *testing.T) {
	u := Updater{Cron: &cronMock{}, Spec: "every day", Dispatcher: &dispatcherMock{}}
	err := u.Run(context.Background())
	assert.ErrorContains(t, err, `can't parse update schedule "every day"`)
}

func TestUpdater_RealCron(t *testing.T) {
	disp := &dispatcherMock{}
	u := Updater{Cron: cron.New(), Spec: "@every 1s", Dispatcher: disp}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = u.Run(ctx) }()
	require.Eventually(t, func() bool { return disp.Len() >= 1 }, 3*time.Second, 50*time.Millisecond)
}
