// Package supervisor runs background workers on behalf of the UI. A single loop goroutine owns
// the job registry, preferences and shutdown state; commands from the UI, events from workers and
// results of collaborator calls are all handled there one at a time.
package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/offlinebay/offlinebay/app/job"
	"github.com/offlinebay/offlinebay/app/notify"
	"github.com/offlinebay/offlinebay/app/prefs"
	"github.com/offlinebay/offlinebay/app/remote"
)

// ErrTerminated returned by Dispatch once the supervisor finished
var ErrTerminated = errors.New("supervisor terminated")

// Spawner starts workers. Every event of a worker goes to sink, exit last and exactly once.
type Spawner interface {
	Spawn(kind job.Kind, args []string, sink chan<- job.Event) (job.Handle, error)
}

// UI is the single surface receiving named events
type UI interface {
	Send(name string, payload any)
}

// FilePicker selects a dump file to import, ok is false if user cancelled
type FilePicker interface {
	Pick(ctx context.Context) (path string, ok bool, err error)
}

// Remote fetches tracker lists and checks dump freshness
type Remote interface {
	Trackers(ctx context.Context, endpoint string) ([]string, error)
	CheckDump(ctx context.Context, endpoint string, since time.Time) (remote.DumpInfo, error)
}

// Relay forwards notifications out of band
type Relay interface {
	Forward(ctx context.Context, n notify.Notification) error
}

// Opts defines supervisor collaborators. Spawner, UI and Store are required.
type Opts struct {
	Spawner      Spawner
	UI           UI
	Store        prefs.Store
	Prefs        prefs.Preferences
	LoadErr      error // preferences load failure, reported to the UI on start
	Picker       FilePicker
	Remote       Remote
	Relay        Relay
	FlushTimeout time.Duration
}

// Supervisor coordinates workers, UI commands, preferences and shutdown
type Supervisor struct {
	Opts
	registry *Registry
	scrape   *Supersession
	gate     *prefs.Gate
	phase    atomic.Int32
	started  atomic.Bool

	events   chan job.Event
	commands chan Command
	results  chan func()
	done     chan struct{}
}

// New makes supervisor, Run has to be called to start processing
func New(opts Opts) *Supervisor {
	if opts.Prefs == nil {
		opts.Prefs = prefs.Defaults()
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = 10 * time.Second
	}
	return &Supervisor{
		Opts:     opts,
		registry: NewRegistry(),
		scrape:   NewSupersession(job.KindScrape),
		gate:     prefs.NewGate(opts.Store),
		events:   make(chan job.Event, 1024),
		commands: make(chan Command, 64),
		results:  make(chan func(), 64),
		done:     make(chan struct{}),
	}
}

// Run processes commands and worker events until shutdown completes. Cancelling ctx starts
// the shutdown, the same way window-close does. Run returns after workers exited and
// preferences flushed.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("supervisor already started")
	}
	log.Printf("[INFO] supervisor started")
	if s.LoadErr != nil {
		log.Printf("[WARN] preferences not loaded, %v", s.LoadErr)
		s.notify(ctx, "DB error occurred. Please re-install OfflineBay", notify.SeverityDanger)
	}

	ctxDone := ctx.Done()
	for {
		select {
		case <-ctxDone:
			ctxDone = nil // handled once, the loop keeps going until drained
			log.Printf("[INFO] stop requested, %v", ctx.Err())
			s.shutdown(ctx)
		case cmd := <-s.commands:
			s.route(ctx, cmd)
		case ev := <-s.events:
			s.onEvent(ctx, ev)
		case fn := <-s.results:
			fn()
		}

		if s.Phase() == PhaseTerminating {
			s.UI.Send(EvtAppQuit, nil)
			close(s.done)
			log.Printf("[INFO] supervisor terminated")
			return nil
		}
	}
}

// Dispatch queues a UI command for the loop
func (s *Supervisor) Dispatch(cmd Command) error {
	select {
	case <-s.done:
		return ErrTerminated
	default:
	}
	select {
	case s.commands <- cmd:
		return nil
	case <-s.done:
		return ErrTerminated
	}
}

// Done is closed when Run finished
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// Jobs returns snapshot of running workers
func (s *Supervisor) Jobs() []Slot { return s.registry.Snapshot() }

// Phase returns shutdown phase
func (s *Supervisor) Phase() Phase { return Phase(s.phase.Load()) }

func (s *Supervisor) setPhase(p Phase) {
	log.Printf("[DEBUG] shutdown phase %s -> %s", s.Phase(), p)
	s.phase.Store(int32(p))
}

func (s *Supervisor) onEvent(ctx context.Context, ev job.Event) {
	switch ev.Type {
	case job.EventMessage:
		var payload any
		if len(ev.Message.Payload) > 0 {
			payload = ev.Message.Payload
		}
		s.UI.Send(ev.Message.Name, payload)
	case job.EventExit:
		s.onExit(ctx, ev)
	default:
		log.Printf("[WARN] unknown event type %d from %s worker", ev.Type, ev.Kind)
	}
}

// async runs fn outside of the loop and posts the continuation it returns back to the loop
func (s *Supervisor) async(ctx context.Context, fn func(ctx context.Context) func()) {
	go func() {
		cont := fn(ctx)
		if cont == nil {
			return
		}
		select {
		case s.results <- cont:
		case <-s.done:
		}
	}()
}

func (s *Supervisor) notify(ctx context.Context, msg string, severity notify.Severity) {
	n := notify.Notification{Message: msg, Severity: severity}
	s.UI.Send(EvtNotify, n.Payload())
	if s.Relay == nil {
		return
	}
	go func() {
		if err := s.Relay.Forward(context.WithoutCancel(ctx), n); err != nil {
			log.Printf("[WARN] %v", err)
		}
	}()
}
