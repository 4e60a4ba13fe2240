package gossip

import (
	"errors"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handoffRecorder struct {
	accept bool
	peers  []string
}

func (h *handoffRecorder) handoff(p *Peer) bool {
	h.peers = append(h.peers, p.Endpoint)
	return h.accept
}

func newTestDissemination(t *testing.T, l *PeerList, h *handoffRecorder) (*Dissemination, *fakeRequestor) {
	t.Helper()
	r := &fakeRequestor{}
	return newDissemination(l, NewShuffledPeerList(l, testRand()), r, h.handoff, testLogger(t)), r
}

// openRound drives d from Begin to OPEN.
func openRound(t *testing.T, d *Dissemination) {
	t.Helper()
	require.NoError(t, d.Begin())
	for d.State() != DisseminationOpen {
		require.False(t, d.Done(), "round ended in %s", d.State())
		d.Execute()
	}
}

func TestDisseminationAcknowledged(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch), alive("a", 1, 0))
	d, r := newTestDissemination(t, l, &handoffRecorder{})

	require.NoError(t, d.Begin())
	assert.Equal(t, DisseminationSelecting, d.State())
	d.Execute()
	assert.Equal(t, DisseminationLocking, d.State())
	d.Execute()
	assert.Equal(t, DisseminationOpening, d.State())
	assert.True(t, l.Get("a").Locked)
	d.Execute()
	require.Equal(t, DisseminationOpen, d.State())

	assert.Equal(t, "a", r.endpoint)
	assert.Equal(t, MsgGossip, r.req.Type)
	assert.Equal(t, "self", r.req.From)
	assert.NotEmpty(t, r.req.ID)
	assert.ElementsMatch(t, l.Records(), r.req.Peers)

	assert.Zero(t, d.Execute(), "no progress while waiting")
	r.respond(alive("a", 1, 4), alive("b", 2, 0))
	assert.Positive(t, d.Execute())
	assert.Equal(t, DisseminationAcknowledged, d.State())
	assert.True(t, d.Done())
	assert.Equal(t, alive("a", 1, 4), l.Get("a").Record())
	assert.NotNil(t, l.Get("b"))

	d.Close()
	assert.Equal(t, DisseminationClosed, d.State())
	assert.False(t, l.Get("a").Locked)
	assert.Equal(t, 1, r.closed)
}

func TestDisseminationSelectionFailed(t *testing.T) {
	tests := []struct {
		name  string
		peers []PeerRecord
		lock  string
	}{
		{"alone", nil, ""},
		{"only dead peers", []PeerRecord{dead("a", 1, 0)}, ""},
		{"only locked peers", []PeerRecord{alive("a", 1, 0)}, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestList(t, clockwork.NewFakeClockAt(epoch), tt.peers...)
			if tt.lock != "" {
				require.True(t, l.Lock(tt.lock))
			}
			d, r := newTestDissemination(t, l, &handoffRecorder{})

			require.NoError(t, d.Begin())
			d.Execute()

			assert.Equal(t, DisseminationSelectionFailed, d.State())
			assert.True(t, d.Done())
			assert.Zero(t, r.calls)
			d.Close()
			if tt.lock != "" {
				assert.True(t, l.Get(tt.lock).Locked, "foreign lock must survive")
			}
		})
	}
}

func TestDisseminationBeginTwice(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch), alive("a", 1, 0))
	d, _ := newTestDissemination(t, l, &handoffRecorder{})

	require.NoError(t, d.Begin())
	assert.ErrorIs(t, d.Begin(), ErrProtocolMisuse)

	d.Close()
	assert.NoError(t, d.Begin())
}

func TestDisseminationFailureHandsOffAlivePeer(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch), alive("a", 1, 0))
	h := &handoffRecorder{accept: true}
	d, r := newTestDissemination(t, l, h)

	openRound(t, d)
	r.fail()
	d.Execute()

	require.Equal(t, DisseminationFailed, d.State())
	assert.Equal(t, []string{"a"}, h.peers)
	d.Close()
	assert.True(t, l.Get("a").Locked, "lock moves to the failure detection")
}

func TestDisseminationFailureWithoutFreeDetector(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch), alive("a", 1, 0))
	h := &handoffRecorder{accept: false}
	d, r := newTestDissemination(t, l, h)

	openRound(t, d)
	r.fail()
	d.Execute()

	require.Equal(t, DisseminationFailed, d.State())
	assert.Equal(t, []string{"a"}, h.peers)
	d.Close()
	assert.False(t, l.Get("a").Locked)
	assert.Equal(t, StateAlive, l.Get("a").State, "suspicion is not raised this round")
}

func TestDisseminationFailureAgainstSuspect(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch), suspect("a", 1, 0))
	h := &handoffRecorder{accept: true}
	d, r := newTestDissemination(t, l, h)

	openRound(t, d)
	r.fail()
	d.Execute()

	assert.Equal(t, DisseminationFailed, d.State())
	assert.Empty(t, h.peers)
	d.Close()
	assert.False(t, l.Get("a").Locked)
}

func TestDisseminationBeginError(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch), alive("a", 1, 0))
	h := &handoffRecorder{accept: true}
	d, r := newTestDissemination(t, l, h)
	r.beginErr = errors.New("dial refused")

	require.NoError(t, d.Begin())
	d.Execute()
	d.Execute()
	d.Execute()

	assert.Equal(t, DisseminationFailed, d.State())
	assert.Equal(t, []string{"a"}, h.peers)
}

func TestDisseminationLockExcludesTarget(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch), alive("a", 1, 0), alive("b", 1, 0))
	shuffled := NewShuffledPeerList(l, testRand())
	h := &handoffRecorder{}
	d1 := newDissemination(l, shuffled, &fakeRequestor{}, h.handoff, testLogger(t))
	d2 := newDissemination(l, shuffled, &fakeRequestor{}, h.handoff, testLogger(t))
	d3 := newDissemination(l, shuffled, &fakeRequestor{}, h.handoff, testLogger(t))

	openRound(t, d1)
	openRound(t, d2)
	assert.NotEqual(t, d1.Target(), d2.Target())

	require.NoError(t, d3.Begin())
	d3.Execute()
	assert.Equal(t, DisseminationSelectionFailed, d3.State())
}

func TestDisseminationCloseIsIdempotent(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch), alive("a", 1, 0))
	d, _ := newTestDissemination(t, l, &handoffRecorder{})

	d.Close()
	openRound(t, d)
	d.Close()
	d.Close()

	assert.Equal(t, DisseminationClosed, d.State())
	assert.Empty(t, d.Target())
	assert.False(t, l.Get("a").Locked)
}
