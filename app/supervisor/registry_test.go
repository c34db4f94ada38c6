package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offlinebay/offlinebay/app/job"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.Reserve(job.KindSearch))
	assert.False(t, r.Reserve(job.KindSearch), "reserved slot is occupied")
	_, ok := r.Get(job.KindSearch)
	assert.False(t, ok, "no handle while reserved")
	assert.Equal(t, 1, r.Len())
	assert.Empty(t, r.Handles())

	h := &fakeHandle{id: "s1", kind: job.KindSearch, args: []string{"q"}}
	r.Attach(job.KindSearch, h)
	got, ok := r.Get(job.KindSearch)
	require.True(t, ok)
	assert.Equal(t, "s1", got.ID())
	r.Abort(job.KindSearch)
	assert.Equal(t, 1, r.Len(), "abort keeps attached handle")

	assert.False(t, r.Release(job.KindSearch, "other"), "different handle")
	assert.False(t, r.Release(job.KindImport, "s1"), "empty slot")
	assert.True(t, r.Release(job.KindSearch, "s1"))
	assert.False(t, r.Release(job.KindSearch, "s1"), "second release is no-op")
	assert.Equal(t, 0, r.Len())

	assert.True(t, r.Reserve(job.KindImport))
	r.Abort(job.KindImport)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry()
	for _, h := range []*fakeHandle{
		{id: "u1", kind: job.KindUpdate, args: []string{"https://example.com/d.csv.gz"}},
		{id: "i1", kind: job.KindImport, args: []string{"/tmp/d.csv"}},
	} {
		require.True(t, r.Reserve(h.kind))
		r.Attach(h.kind, h)
	}
	require.True(t, r.Reserve(job.KindScrape))

	snap := r.Snapshot()
	require.Len(t, snap, 2, "reserved slot not in snapshot")
	assert.Equal(t, Slot{Kind: job.KindImport, ID: "i1", PID: 1000, Args: []string{"/tmp/d.csv"},
		StartedAt: snap[0].StartedAt}, snap[0])
	assert.Equal(t, job.KindUpdate, snap[1].Kind)
	assert.Equal(t, 1003, snap[1].PID)
	assert.Equal(t, 3, r.Len())
}

func TestSupersession(t *testing.T) {
	s := NewSupersession(job.KindScrape)
	assert.Equal(t, SupersedeIdle, s.State())
	_, ok := s.OnExit()
	assert.False(t, ok)

	s.OnSpawn()
	assert.Equal(t, SupersedeRunning, s.State())
	assert.True(t, s.Queue([]string{"b", "false"}), "first queue terminates running")
	assert.False(t, s.Queue([]string{"c", "true"}), "already terminating")
	assert.Equal(t, SupersedeAwaiting, s.State())
	p, ok := s.Pending()
	require.True(t, ok)
	assert.Equal(t, PendingRequest{Kind: job.KindScrape, Args: []string{"c", "true"}, Reason: ReasonSupersede}, p)

	req, ok := s.OnExit()
	require.True(t, ok)
	assert.Equal(t, []string{"c", "true"}, req.Args)
	assert.Equal(t, SupersedeIdle, s.State())
	_, ok = s.Pending()
	assert.False(t, ok)

	s.OnSpawn()
	s.Queue([]string{"d", "false"})
	assert.True(t, s.Discard())
	assert.False(t, s.Discard())
	_, ok = s.OnExit()
	assert.False(t, ok, "discarded request is not dispatched")
	assert.Equal(t, "idle", s.State().String())
}

func TestCommandArgs(t *testing.T) {
	cmd := Command{Name: CmdSearch, Args: []any{"linux", float64(100), true, "1", nil, map[string]any{"a": 1}}}
	assert.Equal(t, "linux", cmd.String(0))
	assert.Equal(t, "100", cmd.String(1))
	assert.Equal(t, "true", cmd.String(2))
	assert.Equal(t, "", cmd.String(4))
	assert.Equal(t, "", cmd.String(10))
	assert.True(t, cmd.Bool(2))
	assert.True(t, cmd.Bool(3))
	assert.True(t, cmd.Bool(1))
	assert.False(t, cmd.Bool(0))
	assert.False(t, cmd.Bool(4))
	assert.Equal(t, map[string]any{"a": 1}, cmd.Map(5))
	assert.Nil(t, cmd.Map(0))
	assert.Equal(t, []string{"linux", "100", "true", "1", "", "map[a:1]"}, cmd.Strings())
}

func TestOutcomeAndPhaseNames(t *testing.T) {
	assert.Equal(t, "accepted", Accepted.String())
	assert.Equal(t, "superseded", Superseded.String())
	assert.Equal(t, "outcome(42)", Outcome(42).String())
	assert.Equal(t, "draining", PhaseDraining.String())
	assert.Equal(t, "terminating", PhaseTerminating.String())
	assert.Equal(t, "Import", displayName(job.KindImport))
}
