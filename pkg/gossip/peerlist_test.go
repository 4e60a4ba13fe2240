package gossip

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeMonotonicity(t *testing.T) {
	tests := []struct {
		name    string
		local   PeerRecord
		in      PeerRecord
		want    PeerRecord
		changed bool
	}{
		{"stale version", alive("p", 5, 3), alive("p", 5, 2), alive("p", 5, 3), false},
		{"equal incarnation", alive("p", 5, 3), alive("p", 5, 3), alive("p", 5, 3), false},
		{"newer version", alive("p", 5, 3), alive("p", 5, 4), alive("p", 5, 4), true},
		{"newer generation", alive("p", 5, 9), alive("p", 6, 0), alive("p", 6, 0), true},
		{"older generation", alive("p", 6, 0), alive("p", 5, 9), alive("p", 6, 0), false},
		{"stale suspicion", alive("p", 5, 3), suspect("p", 5, 2), alive("p", 5, 3), false},
		{"newer suspicion", alive("p", 5, 3), suspect("p", 5, 4), suspect("p", 5, 4), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clockwork.NewFakeClockAt(epoch)
			l := newTestList(t, clk, tt.local)

			diff := l.Merge([]PeerRecord{tt.in}, nil)

			assert.Equal(t, tt.want, l.Get("p").Record())
			if tt.changed {
				assert.Equal(t, []PeerRecord{tt.want}, diff)
			} else {
				assert.Empty(t, diff)
			}
		})
	}
}

func TestMergeStaleRecordLeavesLocalUnchanged(t *testing.T) {
	clk := clockwork.NewFakeClockAt(epoch)
	l := newTestList(t, clk, alive("P", 5, 3))
	changedAt := l.Get("P").ChangeStateTime
	clk.Advance(time.Second)

	diff := l.Merge([]PeerRecord{alive("P", 5, 2)}, nil)

	require.Empty(t, diff)
	p := l.Get("P")
	assert.Equal(t, alive("P", 5, 3), p.Record())
	assert.Equal(t, changedAt, p.ChangeStateTime)
}

func TestMergeSeverity(t *testing.T) {
	t.Run("dead wins at equal incarnation", func(t *testing.T) {
		l := newTestList(t, clockwork.NewFakeClockAt(epoch), alive("p", 5, 3), suspect("q", 5, 3))
		l.Merge([]PeerRecord{dead("p", 5, 3), dead("q", 5, 3)}, nil)
		assert.Equal(t, StateDead, l.Get("p").State)
		assert.Equal(t, StateDead, l.Get("q").State)
	})
	t.Run("dead wins at newer incarnation", func(t *testing.T) {
		l := newTestList(t, clockwork.NewFakeClockAt(epoch), alive("p", 5, 3))
		l.Merge([]PeerRecord{dead("p", 5, 7)}, nil)
		assert.Equal(t, dead("p", 5, 7), l.Get("p").Record())
	})
	t.Run("alive over dead at equal or older incarnation", func(t *testing.T) {
		l := newTestList(t, clockwork.NewFakeClockAt(epoch), dead("p", 5, 3))
		diff := l.Merge([]PeerRecord{alive("p", 5, 3), alive("p", 4, 9)}, nil)
		assert.Empty(t, diff)
		assert.Equal(t, dead("p", 5, 3), l.Get("p").Record())
	})
	t.Run("dead is terminal within its generation", func(t *testing.T) {
		l := newTestList(t, clockwork.NewFakeClockAt(epoch), dead("p", 5, 3))
		diff := l.Merge([]PeerRecord{alive("p", 5, 100)}, nil)
		assert.Empty(t, diff)
		assert.Equal(t, StateDead, l.Get("p").State)
	})
	t.Run("newer generation revives", func(t *testing.T) {
		l := newTestList(t, clockwork.NewFakeClockAt(epoch), dead("p", 5, 3))
		l.Merge([]PeerRecord{alive("p", 6, 0)}, nil)
		assert.Equal(t, alive("p", 6, 0), l.Get("p").Record())
	})
	t.Run("suspect beats alive at equal incarnation", func(t *testing.T) {
		l := newTestList(t, clockwork.NewFakeClockAt(epoch), alive("p", 5, 3))
		l.Merge([]PeerRecord{suspect("p", 5, 3)}, nil)
		assert.Equal(t, StateSuspect, l.Get("p").State)
	})
	t.Run("alive does not beat suspect at equal incarnation", func(t *testing.T) {
		l := newTestList(t, clockwork.NewFakeClockAt(epoch), suspect("p", 5, 3))
		l.Merge([]PeerRecord{alive("p", 5, 3)}, nil)
		assert.Equal(t, StateSuspect, l.Get("p").State)
	})
}

func TestMergeLivenessTieBreak(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch), suspect("p", 5, 3), dead("q", 5, 3))
	l.SetTieBreak(TieBreakLiveness)

	l.Merge([]PeerRecord{alive("p", 5, 3), alive("q", 5, 3)}, nil)

	assert.Equal(t, StateAlive, l.Get("p").State)
	assert.Equal(t, StateDead, l.Get("q").State, "dead stays terminal under either policy")
}

func TestMergeRefutesSelf(t *testing.T) {
	tests := []struct {
		name string
		in   PeerRecord
		want PeerRecord
	}{
		{"dead at current generation", dead("self", 10, 0), alive("self", 10, 1)},
		{"suspect at current generation", suspect("self", 10, 0), alive("self", 10, 1)},
		{"suspect ahead of local version", suspect("self", 10, 7), alive("self", 10, 8)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestList(t, clockwork.NewFakeClockAt(epoch))

			diff := l.Merge([]PeerRecord{tt.in}, nil)

			require.Equal(t, []PeerRecord{tt.want}, diff)
			assert.Equal(t, tt.want, l.Local().Record())
		})
	}
}

func TestMergeSelfOlderGeneration(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch))

	diff := l.Merge([]PeerRecord{dead("self", 9, 40)}, nil)

	require.Equal(t, []PeerRecord{alive("self", 10, 0)}, diff, "answers with the current record")
	assert.Equal(t, alive("self", 10, 0), l.Local().Record())
}

func TestMergeSelfNewerGeneration(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch))

	diff := l.Merge([]PeerRecord{alive("self", 11, 2)}, nil)

	require.Equal(t, []PeerRecord{alive("self", 11, 2)}, diff)
	assert.Equal(t, StateAlive, l.Local().State)
	assert.True(t, l.Local().Local)
}

func TestMergeSelfAliveIsIgnored(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch))
	assert.Empty(t, l.Merge([]PeerRecord{alive("self", 10, 0)}, nil))
}

func TestMergeAddsUnknownPeersInOrder(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch))

	diff := l.Merge([]PeerRecord{alive("c", 1, 0), alive("a", 1, 0), {}}, nil)

	assert.Len(t, diff, 2)
	require.Equal(t, 3, l.Len())
	assert.Equal(t, "a", l.At(0).Endpoint)
	assert.Equal(t, "c", l.At(1).Endpoint)
	assert.Equal(t, "self", l.At(2).Endpoint)
	assert.Equal(t, -1, l.Find("b"))
	assert.Nil(t, l.Get("b"))
}

func TestMergeUpdatesChangeStateTimeOnTransitionOnly(t *testing.T) {
	clk := clockwork.NewFakeClockAt(epoch)
	l := newTestList(t, clk, alive("p", 1, 0))

	clk.Advance(time.Second)
	l.Merge([]PeerRecord{alive("p", 1, 1)}, nil)
	assert.Equal(t, epoch, l.Get("p").ChangeStateTime)

	clk.Advance(time.Second)
	now := clk.Now()
	l.Merge([]PeerRecord{suspect("p", 1, 1)}, nil)
	assert.Equal(t, now, l.Get("p").ChangeStateTime)
}

func TestOnChange(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch))
	var changes []PeerChange
	l.OnChange(func(c PeerChange) { changes = append(changes, c) })

	l.Insert(alive("p", 1, 0))
	l.Merge([]PeerRecord{alive("p", 1, 1)}, nil)
	l.MarkPeerAsSuspected("p")
	l.MarkPeerAsDead("p")

	require.Len(t, changes, 3)
	assert.True(t, changes[0].Added)
	assert.Equal(t, StateAlive, changes[1].Prev)
	assert.Equal(t, StateSuspect, changes[1].Peer.State)
	assert.Equal(t, StateSuspect, changes[2].Prev)
	assert.Equal(t, StateDead, changes[2].Peer.State)
}

func TestMarkPeerAsSuspected(t *testing.T) {
	clk := clockwork.NewFakeClockAt(epoch)
	l := newTestList(t, clk, alive("p", 1, 0), dead("d", 1, 0))
	clk.Advance(time.Second)
	now := clk.Now()

	require.True(t, l.MarkPeerAsSuspected("p"))
	assert.Equal(t, StateSuspect, l.Get("p").State)
	assert.Equal(t, now, l.Get("p").ChangeStateTime)

	clk.Advance(time.Second)
	assert.False(t, l.MarkPeerAsSuspected("p"), "already suspect")
	assert.Equal(t, now, l.Get("p").ChangeStateTime)
	assert.False(t, l.MarkPeerAsSuspected("d"), "dead")
	assert.False(t, l.MarkPeerAsSuspected("missing"))
	assert.False(t, l.MarkPeerAsSuspected("self"))
}

func TestMarkPeerAsDead(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch), suspect("p", 1, 0))

	require.True(t, l.MarkPeerAsDead("p"))
	assert.Equal(t, StateDead, l.Get("p").State)
	assert.False(t, l.MarkPeerAsDead("p"))
	assert.False(t, l.MarkPeerAsDead("self"))
	assert.False(t, l.MarkPeerAsDead("missing"))
}

func TestSetPreservesFlags(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch), alive("p", 1, 0))
	require.True(t, l.Lock("p"))

	l.Set(Peer{Endpoint: "p", State: StateSuspect, Incarnation: Incarnation{1, 4}})
	l.Set(Peer{Endpoint: "self", State: StateAlive, Incarnation: Incarnation{10, 3}})
	added := l.Set(Peer{Endpoint: "q", Local: true})

	assert.True(t, l.Get("p").Locked)
	assert.Equal(t, suspect("p", 1, 4), l.Get("p").Record())
	assert.True(t, l.Get("self").Local)
	assert.Same(t, l.Local(), l.Get("self"))
	assert.False(t, added.Local)
}

func TestInsertKeepsExisting(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch), alive("p", 3, 0))

	p, added := l.Insert(alive("p", 0, 0))

	assert.False(t, added)
	assert.Equal(t, alive("p", 3, 0), p.Record())
}

func TestLock(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch), alive("p", 1, 0))

	require.True(t, l.Lock("p"))
	assert.False(t, l.Lock("p"), "second lock must fail")
	assert.False(t, l.Lock("missing"))

	l.Unlock("p")
	assert.True(t, l.Lock("p"))
	l.Unlock("missing")
}

func TestHeartbeat(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch))
	l.Local().State = StateSuspect

	l.Heartbeat()
	rec := l.Heartbeat()

	assert.Equal(t, alive("self", 10, 2), rec)
}

func TestDiffAgainst(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch), alive("a", 1, 5), alive("b", 1, 5), dead("c", 1, 5))

	remote := []PeerRecord{
		alive("a", 1, 5),   // same
		alive("b", 1, 9),   // remote fresher
		alive("c", 1, 5),   // local dead wins
		alive("zzz", 1, 0), // unknown locally
	}
	diff := l.DiffAgainst(remote, nil)

	assert.ElementsMatch(t, []PeerRecord{dead("c", 1, 5), alive("self", 10, 0)}, diff)
}

func TestDiffAgainstSkipsRecordsAlreadyInOut(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch), alive("a", 1, 0))
	out := []PeerRecord{alive("a", 1, 0)}

	diff := l.DiffAgainst(nil, out)

	assert.Equal(t, []PeerRecord{alive("a", 1, 0), alive("self", 10, 0)}, diff)
}

func TestCount(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch), alive("a", 1, 0), suspect("b", 1, 0), dead("c", 1, 0), dead("d", 1, 0))
	a, s, d := l.Count()
	assert.Equal(t, []int{2, 1, 2}, []int{a, s, d})
}

func TestIncarnationCompare(t *testing.T) {
	assert.Equal(t, 0, Incarnation{1, 1}.Compare(Incarnation{1, 1}))
	assert.True(t, Incarnation{2, 0}.NewerThan(Incarnation{1, 99}))
	assert.True(t, Incarnation{1, 2}.NewerThan(Incarnation{1, 1}))
	assert.False(t, Incarnation{1, 1}.NewerThan(Incarnation{1, 2}))
	assert.Equal(t, "3.4", Incarnation{3, 4}.String())
}

func TestStateText(t *testing.T) {
	for _, s := range []State{StateAlive, StateSuspect, StateDead} {
		text, err := s.MarshalText()
		require.NoError(t, err)
		var got State
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, s, got)
	}
	var s State
	assert.Error(t, s.UnmarshalText([]byte("ZOMBIE")))
	_, err := State(9).MarshalText()
	assert.Error(t, err)
}
