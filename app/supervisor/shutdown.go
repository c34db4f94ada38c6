package supervisor

import (
	"context"
	"fmt"

	log "github.com/go-pkgz/lgr"

	"github.com/offlinebay/offlinebay/app/notify"
)

// Phase of the shutdown
type Phase int32

// shutdown phases, in order
const (
	PhaseActive Phase = iota
	PhaseDraining
	PhaseFlushing
	PhaseTerminating
)

func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhaseDraining:
		return "draining"
	case PhaseFlushing:
		return "flushing"
	case PhaseTerminating:
		return "terminating"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// shutdown terminates every running worker and waits for all of them to exit.
// Repeated calls are no-op.
func (s *Supervisor) shutdown(ctx context.Context) {
	if s.Phase() != PhaseActive {
		log.Printf("[DEBUG] shutdown already in progress, %s", s.Phase())
		return
	}
	s.setPhase(PhaseDraining)
	log.Printf("[INFO] shutdown, %d worker(s) running", s.registry.Len())

	if s.scrape.Discard() {
		log.Printf("[INFO] pending scrape request discarded")
	}
	for _, h := range s.registry.Handles() {
		s.notify(ctx, fmt.Sprintf("Wait for background process '%s' to finish", h.Kind().Title()), notify.SeverityWarning)
		if err := h.Terminate(); err != nil {
			log.Printf("[WARN] can't terminate %s worker, %v", h.Kind(), err)
		}
	}
	s.checkDrain(ctx)
}

// checkDrain moves to flushing once nothing is running. Called on every release.
func (s *Supervisor) checkDrain(ctx context.Context) {
	if s.Phase() != PhaseDraining || s.registry.Len() > 0 {
		return
	}
	s.setPhase(PhaseFlushing)
	snapshot := s.Prefs.Clone()
	s.async(ctx, func(ctx context.Context) func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.FlushTimeout)
		defer cancel()
		err := s.gate.Flush(flushCtx, snapshot)
		return func() { s.onFlushed(ctx, err) }
	})
}

// onFlushed allows termination, flush failure is reported but doesn't block it
func (s *Supervisor) onFlushed(ctx context.Context, err error) {
	if err != nil {
		log.Printf("[ERROR] can't save preferences, %v", err)
		s.notify(ctx, "Failed to save preferences", notify.SeverityDanger)
	}
	s.setPhase(PhaseTerminating)
}
