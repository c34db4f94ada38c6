package supervisor

import (
	"github.com/offlinebay/offlinebay/app/job"
)

// SupersedeState is a state of the scrape supersession machine
type SupersedeState int

// supersession states
const (
	SupersedeIdle SupersedeState = iota
	SupersedeRunning
	SupersedeAwaiting
)

func (s SupersedeState) String() string {
	switch s {
	case SupersedeIdle:
		return "idle"
	case SupersedeRunning:
		return "running"
	case SupersedeAwaiting:
		return "awaiting-supersede"
	default:
		return "unknown"
	}
}

// Reason tells why a request is pending
type Reason int

// pending request reasons
const (
	ReasonNew Reason = iota
	ReasonSupersede
)

// PendingRequest is a request waiting for the running handle of the same kind to exit
type PendingRequest struct {
	Kind   job.Kind
	Args   []string
	Reason Reason
}

// Supersession keeps the single pending request of a supersede-on-busy kind, the latest one wins
type Supersession struct {
	kind    job.Kind
	state   SupersedeState
	pending *PendingRequest
}

// NewSupersession makes idle supersession for kind
func NewSupersession(kind job.Kind) *Supersession {
	return &Supersession{kind: kind}
}

// State returns current state
func (s *Supersession) State() SupersedeState { return s.state }

// Pending returns queued request if any
func (s *Supersession) Pending() (PendingRequest, bool) {
	if s.pending == nil {
		return PendingRequest{}, false
	}
	return *s.pending, true
}

// OnSpawn marks a handle as running
func (s *Supersession) OnSpawn() {
	s.state = SupersedeRunning
	s.pending = nil
}

// Queue stores args as the only pending request, replacing the earlier one.
// Returns true if the running handle must be terminated, i.e. it was not asked already.
func (s *Supersession) Queue(args []string) (terminate bool) {
	terminate = s.state != SupersedeAwaiting
	s.pending = &PendingRequest{Kind: s.kind, Args: append([]string{}, args...), Reason: ReasonSupersede}
	s.state = SupersedeAwaiting
	return terminate
}

// OnExit moves the machine to idle and hands over the pending request to be dispatched
func (s *Supersession) OnExit() (PendingRequest, bool) {
	s.state = SupersedeIdle
	if s.pending == nil {
		return PendingRequest{}, false
	}
	req := *s.pending
	s.pending = nil
	return req, true
}

// Discard drops the pending request, the running handle stays terminated.
// Returns true if there was something to drop.
func (s *Supersession) Discard() bool {
	if s.pending == nil {
		return false
	}
	s.pending = nil
	return true
}
