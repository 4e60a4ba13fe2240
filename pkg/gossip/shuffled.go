package gossip

import "math/rand/v2"

// ShuffledPeerList is a randomized cursor over a PeerList. Each round visits
// every endpoint once in random order; a new permutation is drawn when the
// round is exhausted, so peers added meanwhile join the next round.
type ShuffledPeerList struct {
	peers  *PeerList
	rnd    *rand.Rand
	order  []string
	cursor int
}

func NewShuffledPeerList(peers *PeerList, rnd *rand.Rand) *ShuffledPeerList {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &ShuffledPeerList{peers: peers, rnd: rnd}
}

// Next returns the next peer of the current round, or nil if the list is
// empty.
func (s *ShuffledPeerList) Next() *Peer {
	for attempts := 0; attempts <= s.peers.Len(); attempts++ {
		if s.cursor >= len(s.order) {
			s.reshuffle()
			if len(s.order) == 0 {
				return nil
			}
		}
		ep := s.order[s.cursor]
		s.cursor++
		if p := s.peers.Get(ep); p != nil {
			return p
		}
	}
	return nil
}

// Select returns the first drawn peer accepted by pred, or nil. It draws
// until a complete round has been seen.
func (s *ShuffledPeerList) Select(pred func(*Peer) bool) *Peer {
	for i, n := 0, s.span(); i < n; i++ {
		p := s.Next()
		if p == nil {
			return nil
		}
		if pred(p) {
			return p
		}
	}
	return nil
}

// NextN returns up to k distinct peers that are neither local, DEAD, locked
// nor equal to exclude. It draws until a complete round has been seen.
func (s *ShuffledPeerList) NextN(k int, exclude string) []*Peer {
	if k <= 0 {
		return nil
	}
	out := make([]*Peer, 0, k)
	seen := make(map[string]struct{}, k)
	for i, n := 0, s.span(); i < n && len(out) < k; i++ {
		p := s.Next()
		if p == nil {
			break
		}
		if p.Local || p.State == StateDead || p.Locked || p.Endpoint == exclude {
			continue
		}
		if _, dup := seen[p.Endpoint]; dup {
			continue
		}
		seen[p.Endpoint] = struct{}{}
		out = append(out, p)
	}
	return out
}

// span is the number of draws that finishes the current round and covers
// one full round after it.
func (s *ShuffledPeerList) span() int {
	return len(s.order) - s.cursor + s.peers.Len()
}

func (s *ShuffledPeerList) reshuffle() {
	s.order = s.order[:0]
	for i := 0; i < s.peers.Len(); i++ {
		s.order = append(s.order, s.peers.At(i).Endpoint)
	}
	s.rnd.Shuffle(len(s.order), func(i, j int) {
		s.order[i], s.order[j] = s.order[j], s.order[i]
	})
	s.cursor = 0
}
