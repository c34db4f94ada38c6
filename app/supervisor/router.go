package supervisor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	log "github.com/go-pkgz/lgr"

	"github.com/offlinebay/offlinebay/app/job"
	"github.com/offlinebay/offlinebay/app/notify"
)

// Outcome of a job request
type Outcome int

// request outcomes
const (
	Accepted   Outcome = iota
	Busy               // slot occupied, request dropped
	Superseded         // running handle terminated, request queued
	Failed             // spawn error
	Rejected           // shutdown in progress
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Busy:
		return "busy"
	case Superseded:
		return "superseded"
	case Failed:
		return "failed"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type handlerFunc func(s *Supervisor, ctx context.Context, cmd Command)

// routes is a fixed command table, no business logic here
var routes = map[string]handlerFunc{
	CmdWindowClose:      (*Supervisor).onWindowClose,
	CmdWindowMinimize:   (*Supervisor).passThrough,
	CmdWindowMaximize:   (*Supervisor).passThrough,
	CmdWindowShow:       (*Supervisor).passThrough,
	CmdImport:           (*Supervisor).onImport,
	CmdSearch:           (*Supervisor).onSearch,
	CmdScrape:           (*Supervisor).onScrape,
	CmdPreferenceChange: (*Supervisor).onPreferenceChange,
	CmdSaveSettings:     (*Supervisor).onSaveSettings,
	CmdTrackersUpdate:   (*Supervisor).onTrackersUpdate,
	CmdDumpUpdate:       (*Supervisor).onDumpUpdate,
	CmdUpdateTick:       (*Supervisor).onUpdateTick,
}

func (s *Supervisor) route(ctx context.Context, cmd Command) {
	h, ok := routes[cmd.Name]
	if !ok {
		log.Printf("[WARN] unknown command %q, ignored", cmd.Name)
		return
	}
	log.Printf("[DEBUG] command %s %v", cmd.Name, cmd.Args)
	h(s, ctx, cmd)
}

func (s *Supervisor) passThrough(_ context.Context, cmd Command) {
	s.UI.Send(cmd.Name, cmd.Args)
}

// onWindowClose hides the window to tray or starts shutdown, the window stays until drained
func (s *Supervisor) onWindowClose(ctx context.Context, cmd Command) {
	if cmd.Bool(0) && s.Phase() == PhaseActive {
		s.UI.Send(EvtWindowHide, nil)
		return
	}
	s.shutdown(ctx)
}

// onImport requests import of the given file, asking the picker when no file given
func (s *Supervisor) onImport(ctx context.Context, cmd Command) {
	args := []string{cmd.String(0), strconv.FormatBool(cmd.Bool(1)), cmd.String(2)}
	if args[0] != "" {
		s.request(ctx, job.KindImport, args)
		return
	}
	if s.Picker == nil {
		log.Printf("[WARN] import requested without a file and no picker set")
		return
	}
	s.async(ctx, func(ctx context.Context) func() {
		path, ok, err := s.Picker.Pick(ctx)
		return func() {
			if err != nil {
				log.Printf("[WARN] can't pick import file, %v", err)
				s.notify(ctx, "Failed to open dump file", notify.SeverityDanger)
				return
			}
			if !ok {
				log.Printf("[DEBUG] import file selection cancelled")
				return
			}
			args[0] = path
			s.request(ctx, job.KindImport, args)
		}
	})
}

func (s *Supervisor) onSearch(ctx context.Context, cmd Command) {
	s.request(ctx, job.KindSearch, []string{cmd.String(0), cmd.String(1), strconv.FormatBool(cmd.Bool(2)), strconv.FormatBool(cmd.Bool(3))})
}

func (s *Supervisor) onScrape(ctx context.Context, cmd Command) {
	s.request(ctx, job.KindScrape, []string{cmd.String(0), strconv.FormatBool(cmd.Bool(1))})
}

func (s *Supervisor) onPreferenceChange(_ context.Context, cmd Command) {
	key := cmd.String(0)
	if key == "" {
		log.Printf("[WARN] preference change without key, %v", cmd.Args)
		return
	}
	if s.Phase() >= PhaseFlushing {
		log.Printf("[WARN] preference %s changed after flush, ignored", key)
		return
	}
	s.Prefs.Set(key, cmd.Arg(1))
}

// request spawns a worker of kind unless its slot is busy. A busy scrape slot gets superseded.
func (s *Supervisor) request(ctx context.Context, kind job.Kind, args []string) Outcome {
	if s.Phase() != PhaseActive {
		log.Printf("[WARN] %s request %q rejected, shutdown in progress", kind, args)
		return Rejected
	}

	if !s.registry.Reserve(kind) {
		if kind == job.KindScrape {
			return s.supersede(args)
		}
		log.Printf("[INFO] %s request %q dropped, busy", kind, args)
		s.notify(ctx, fmt.Sprintf("One %s process is already running", displayName(kind)), notify.SeverityWarning)
		if kind == job.KindSearch {
			s.UI.Send(EvtHideOverlay, nil)
		}
		return Busy
	}
	return s.spawn(ctx, kind, args)
}

func (s *Supervisor) supersede(args []string) Outcome {
	if !s.scrape.Queue(args) {
		log.Printf("[DEBUG] scrape request %q replaces pending one", args)
		return Superseded
	}
	log.Printf("[INFO] scrape request %q supersedes running one", args)
	if h, ok := s.registry.Get(job.KindScrape); ok {
		if err := h.Terminate(); err != nil {
			log.Printf("[WARN] can't terminate scrape worker, %v", err)
		}
	}
	return Superseded
}

// spawn starts worker in the reserved slot
func (s *Supervisor) spawn(ctx context.Context, kind job.Kind, args []string) Outcome {
	switch kind {
	case job.KindImport:
		s.UI.Send(EvtImportStart, nil)
	case job.KindScrape:
		s.UI.Send(EvtScrapeInit, nil)
	}

	h, err := s.Spawner.Spawn(kind, args, s.events)
	if err != nil {
		s.registry.Abort(kind)
		log.Printf("[ERROR] can't spawn %s worker, %v", kind, err)
		s.UI.Send(kind.String()+"-failed", err.Error())
		s.notify(ctx, fmt.Sprintf("Failed to start %s process", displayName(kind)), notify.SeverityDanger)
		return Failed
	}
	s.registry.Attach(kind, h)

	switch kind {
	case job.KindSearch:
		s.UI.Send(EvtSearchInit, nil)
	case job.KindScrape:
		s.scrape.OnSpawn()
	case job.KindUpdate:
		s.UI.Send(EvtUpdateStart, nil)
	}
	return Accepted
}

// onExit releases the slot regardless of exit code and re-checks supersession and drain
func (s *Supervisor) onExit(ctx context.Context, ev job.Event) {
	if !s.registry.Release(ev.Kind, ev.HandleID) {
		log.Printf("[WARN] exit of unknown %s worker %s ignored", ev.Kind, ev.HandleID)
		return
	}
	log.Printf("[INFO] %s worker %s exited with %d", ev.Kind, ev.HandleID, ev.ExitCode)

	switch ev.Kind {
	case job.KindImport:
		s.UI.Send(EvtImportEnd, nil)
	case job.KindSearch:
		s.UI.Send(EvtSearchEnd, nil)
	case job.KindUpdate:
		s.UI.Send(EvtUpdateEnd, nil)
	case job.KindScrape:
		if req, ok := s.scrape.OnExit(); ok {
			log.Printf("[DEBUG] dispatch pending scrape %q", req.Args)
			s.request(ctx, job.KindScrape, req.Args)
		} else {
			s.UI.Send(EvtScrapeEnd, nil)
		}
	}
	s.checkDrain(ctx)
}

// displayName makes "Import" from import
func displayName(kind job.Kind) string {
	name := kind.String()
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
