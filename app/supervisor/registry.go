package supervisor

import (
	"slices"
	"sync"
	"time"

	"github.com/offlinebay/offlinebay/app/job"
)

// Registry holds at most one handle per job kind. A slot is reserved before spawn and either
// attached to the spawned handle or aborted, so check-and-set is atomic per kind.
// Mutated by the supervisor loop only, read by status endpoints from other goroutines.
type Registry struct {
	lock  sync.Mutex
	slots map[job.Kind]*slot
}

type slot struct {
	handle     job.Handle // nil while reserved
	reservedAt time.Time
}

// Slot is a read-only view of an occupied registry slot
type Slot struct {
	Kind      job.Kind  `json:"kind"`
	ID        string    `json:"id"`
	PID       int       `json:"pid"`
	Args      []string  `json:"args"`
	StartedAt time.Time `json:"started_at"`
}

// NewRegistry makes empty registry
func NewRegistry() *Registry {
	return &Registry{slots: map[job.Kind]*slot{}}
}

// Reserve occupies the kind's slot, false if already occupied
func (r *Registry) Reserve(kind job.Kind) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, found := r.slots[kind]; found {
		return false
	}
	r.slots[kind] = &slot{reservedAt: time.Now()}
	return true
}

// Attach binds spawned handle to the reserved slot
func (r *Registry) Attach(kind job.Kind, h job.Handle) {
	r.lock.Lock()
	defer r.lock.Unlock()
	s, found := r.slots[kind]
	if !found {
		s = &slot{reservedAt: time.Now()}
		r.slots[kind] = s
	}
	s.handle = h
}

// Abort frees slot reserved for a spawn that failed. Attached slots are left intact.
func (r *Registry) Abort(kind job.Kind) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if s, found := r.slots[kind]; found && s.handle == nil {
		delete(r.slots, kind)
	}
}

// Release clears the slot if it holds handle with given id. Returns false for an empty slot or
// a different handle, so a repeated release is a no-op.
func (r *Registry) Release(kind job.Kind, id string) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	s, found := r.slots[kind]
	if !found || s.handle == nil || s.handle.ID() != id {
		return false
	}
	delete(r.slots, kind)
	return true
}

// Get returns live handle of the kind
func (r *Registry) Get(kind job.Kind) (job.Handle, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	s, found := r.slots[kind]
	if !found || s.handle == nil {
		return nil, false
	}
	return s.handle, true
}

// Len returns number of occupied slots, reserved ones included
func (r *Registry) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.slots)
}

// Handles returns live handles ordered by kind
func (r *Registry) Handles() []job.Handle {
	r.lock.Lock()
	defer r.lock.Unlock()
	res := make([]job.Handle, 0, len(r.slots))
	for _, kind := range r.kinds() {
		if h := r.slots[kind].handle; h != nil {
			res = append(res, h)
		}
	}
	return res
}

// Snapshot returns views of live handles ordered by kind
func (r *Registry) Snapshot() []Slot {
	res := []Slot{}
	for _, h := range r.Handles() {
		res = append(res, Slot{Kind: h.Kind(), ID: h.ID(), PID: h.PID(), Args: h.Args(), StartedAt: h.StartedAt()})
	}
	return res
}

func (r *Registry) kinds() []job.Kind {
	res := make([]job.Kind, 0, len(r.slots))
	for k := range r.slots {
		res = append(res, k)
	}
	slices.Sort(res)
	return res
}
