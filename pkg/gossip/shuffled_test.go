package gossip

import (
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShuffledRoundVisitsEveryPeerOnce(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch), alive("a", 1, 0), alive("b", 1, 0), alive("c", 1, 0))
	s := NewShuffledPeerList(l, testRand())

	for round := 0; round < 3; round++ {
		seen := map[string]int{}
		for i := 0; i < l.Len(); i++ {
			p := s.Next()
			require.NotNil(t, p)
			seen[p.Endpoint]++
		}
		assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1, "self": 1}, seen, "round %d", round)
	}
}

func TestShuffledPicksUpNewPeersNextRound(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch), alive("a", 1, 0))
	s := NewShuffledPeerList(l, testRand())
	s.Next()

	l.Insert(alive("b", 1, 0))
	found := false
	for i := 0; i < 4; i++ {
		if s.Next().Endpoint == "b" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestShuffledSelect(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch), alive("a", 1, 0), dead("b", 1, 0), alive("c", 1, 0))
	require.True(t, l.Lock("c"))
	s := NewShuffledPeerList(l, testRand())

	for i := 0; i < 10; i++ {
		p := s.Select(func(p *Peer) bool { return !p.Local && p.State != StateDead && !p.Locked })
		require.NotNil(t, p)
		assert.Equal(t, "a", p.Endpoint)
	}
	assert.Nil(t, s.Select(func(*Peer) bool { return false }))
}

func TestShuffledNextN(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch),
		alive("a", 1, 0), alive("b", 1, 0), suspect("c", 1, 0), dead("d", 1, 0), alive("e", 1, 0), alive("f", 1, 0))
	require.True(t, l.Lock("e"))
	s := NewShuffledPeerList(l, testRand())

	for i := 0; i < 5; i++ {
		got := s.NextN(3, "f")
		require.Len(t, got, 3)
		eps := map[string]bool{}
		for _, p := range got {
			eps[p.Endpoint] = true
		}
		assert.Len(t, eps, 3, "peers must be distinct")
		assert.Subset(t, []string{"a", "b", "c"}, keys(eps))
	}
}

func TestShuffledNextNShortList(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch), alive("a", 1, 0), alive("b", 1, 0))
	s := NewShuffledPeerList(l, testRand())

	got := s.NextN(3, "b")
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Endpoint)
	assert.Empty(t, s.NextN(0, ""))
}

func TestShuffledOnlySelf(t *testing.T) {
	l := newTestList(t, clockwork.NewFakeClockAt(epoch))
	s := NewShuffledPeerList(l, testRand())

	assert.Equal(t, "self", s.Next().Endpoint)
	assert.Empty(t, s.NextN(2, ""))
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
