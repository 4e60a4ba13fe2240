package gossip

import (
	"sort"
	"time"
)

// TieBreak decides which of two records with equal incarnation wins a merge.
type TieBreak uint8

const (
	// TieBreakSeverity lets the more severe state win (DEAD > SUSPECT > ALIVE).
	TieBreakSeverity TieBreak = iota
	// TieBreakLiveness lets the less severe state win. DEAD stays terminal
	// for its generation under both policies.
	TieBreakLiveness
)

func (t TieBreak) String() string {
	if t == TieBreakLiveness {
		return "liveness"
	}
	return "severity"
}

// PeerChange describes a state transition observed by a PeerList.
type PeerChange struct {
	Peer  PeerRecord
	Prev  State
	Added bool
}

type ChangeFunc func(PeerChange)

// PeerList is the set of known peers ordered by endpoint. It is owned by a
// single goroutine (the controller's) and is not safe for concurrent use.
type PeerList struct {
	peers    []*Peer // sorted by Endpoint
	local    *Peer
	tieBreak TieBreak
	now      func() time.Time
	onChange []ChangeFunc
}

// NewPeerList creates a list holding only the local peer, ALIVE at the given
// incarnation.
func NewPeerList(local PeerRecord, now func() time.Time) *PeerList {
	if now == nil {
		now = time.Now
	}
	self := &Peer{
		Endpoint:        local.Endpoint,
		State:           StateAlive,
		Incarnation:     local.Incarnation(),
		ChangeStateTime: now(),
		Local:           true,
	}
	return &PeerList{
		peers: []*Peer{self},
		local: self,
		now:   now,
	}
}

func (l *PeerList) SetTieBreak(t TieBreak) { l.tieBreak = t }

// OnChange registers fn to be called for every added peer and every state
// transition. fn runs on the goroutine that mutated the list.
func (l *PeerList) OnChange(fn ChangeFunc) {
	l.onChange = append(l.onChange, fn)
}

func (l *PeerList) Local() *Peer { return l.local }

func (l *PeerList) Len() int { return len(l.peers) }

// At returns the i-th peer in endpoint order.
func (l *PeerList) At(i int) *Peer { return l.peers[i] }

// Find returns the index of endpoint, or -1.
func (l *PeerList) Find(endpoint string) int {
	i, ok := l.search(endpoint)
	if !ok {
		return -1
	}
	return i
}

// Get returns the peer for endpoint, or nil.
func (l *PeerList) Get(endpoint string) *Peer {
	if i, ok := l.search(endpoint); ok {
		return l.peers[i]
	}
	return nil
}

// Set replaces the record for p.Endpoint in place, or inserts it. The Local
// and Locked flags of an existing record are preserved.
func (l *PeerList) Set(p Peer) *Peer {
	i, ok := l.search(p.Endpoint)
	if !ok {
		stored := p
		stored.Local = false
		l.insertAt(i, &stored)
		l.notify(PeerChange{Peer: stored.Record(), Added: true})
		return &stored
	}
	cur := l.peers[i]
	prev := cur.State
	cur.Incarnation = p.Incarnation
	cur.State = p.State
	cur.ChangeStateTime = p.ChangeStateTime
	if prev != cur.State {
		l.notify(PeerChange{Peer: cur.Record(), Prev: prev})
	}
	return cur
}

// Insert adds rec unless the endpoint is already known. It reports whether
// the record was added.
func (l *PeerList) Insert(rec PeerRecord) (*Peer, bool) {
	i, ok := l.search(rec.Endpoint)
	if ok {
		return l.peers[i], false
	}
	p := &Peer{
		Endpoint:        rec.Endpoint,
		State:           rec.State,
		Incarnation:     rec.Incarnation(),
		ChangeStateTime: l.now(),
	}
	l.insertAt(i, p)
	l.notify(PeerChange{Peer: p.Record(), Added: true})
	return p, true
}

// Merge folds incoming records into the list. A record replaces the local one
// iff its incarnation is strictly newer, or it is equal and wins the
// tie-break. A DEAD record only yields to a strictly newer generation.
// Records about the local node are never adopted as non-ALIVE; they are
// refuted by bumping the local version instead. Every added, replaced or
// refuted record is appended to diff, which is returned.
func (l *PeerList) Merge(incoming []PeerRecord, diff []PeerRecord) []PeerRecord {
	now := l.now()
	for _, in := range incoming {
		if in.Endpoint == "" {
			continue
		}
		if in.Endpoint == l.local.Endpoint {
			if rec, ok := l.mergeSelf(in); ok {
				diff = append(diff, rec)
			}
			continue
		}

		i, ok := l.search(in.Endpoint)
		if !ok {
			p := &Peer{
				Endpoint:        in.Endpoint,
				State:           in.State,
				Incarnation:     in.Incarnation(),
				ChangeStateTime: now,
			}
			l.insertAt(i, p)
			diff = append(diff, p.Record())
			l.notify(PeerChange{Peer: p.Record(), Added: true})
			continue
		}

		p := l.peers[i]
		if !l.supersedes(in, p) {
			continue
		}
		prev := p.State
		p.Incarnation = in.Incarnation()
		if p.State != in.State {
			p.State = in.State
			p.ChangeStateTime = now
		}
		diff = append(diff, p.Record())
		if prev != p.State {
			l.notify(PeerChange{Peer: p.Record(), Prev: prev})
		}
	}
	return diff
}

// mergeSelf handles a record about the local node.
func (l *PeerList) mergeSelf(in PeerRecord) (PeerRecord, bool) {
	self := l.local
	inc := in.Incarnation()
	changed := false
	if inc.Generation > self.Incarnation.Generation {
		self.Incarnation = inc
		changed = true
	}
	switch {
	case in.State == StateAlive:
	case inc.Generation == self.Incarnation.Generation:
		v := self.Incarnation.Version
		if inc.Version > v {
			v = inc.Version
		}
		self.Incarnation.Version = v + 1
		changed = true
	default:
		// Claim about an older generation: answer with the current record so
		// the sender catches up.
		return self.Record(), true
	}
	if !changed {
		return PeerRecord{}, false
	}
	return self.Record(), true
}

func (l *PeerList) supersedes(in PeerRecord, p *Peer) bool {
	inc := in.Incarnation()
	if p.State == StateDead && inc.Generation <= p.Incarnation.Generation {
		return false
	}
	switch cmp := inc.Compare(p.Incarnation); {
	case cmp > 0:
		return true
	case cmp < 0:
		return false
	}
	if l.tieBreak == TieBreakLiveness {
		return in.State < p.State
	}
	return in.State > p.State
}

// DiffAgainst appends to out every local record the remote view is missing
// or that would supersede the remote copy, skipping endpoints already in out.
func (l *PeerList) DiffAgainst(remote []PeerRecord, out []PeerRecord) []PeerRecord {
	known := make(map[string]PeerRecord, len(remote))
	for _, r := range remote {
		known[r.Endpoint] = r
	}
	present := make(map[string]struct{}, len(out))
	for _, r := range out {
		present[r.Endpoint] = struct{}{}
	}
	for _, p := range l.peers {
		if _, ok := present[p.Endpoint]; ok {
			continue
		}
		r, ok := known[p.Endpoint]
		if ok && !l.supersedesRecord(p.Record(), r) {
			continue
		}
		out = append(out, p.Record())
	}
	return out
}

func (l *PeerList) supersedesRecord(mine, theirs PeerRecord) bool {
	return l.supersedes(mine, &Peer{State: theirs.State, Incarnation: theirs.Incarnation()})
}

// MarkPeerAsSuspected moves an ALIVE peer to SUSPECT. It reports whether
// the state changed.
func (l *PeerList) MarkPeerAsSuspected(endpoint string) bool {
	p := l.Get(endpoint)
	if p == nil || p.Local || p.State != StateAlive {
		return false
	}
	l.transition(p, StateSuspect)
	return true
}

// MarkPeerAsDead moves a peer to DEAD. DEAD is terminal for the peer's
// current generation.
func (l *PeerList) MarkPeerAsDead(endpoint string) bool {
	p := l.Get(endpoint)
	if p == nil || p.Local || p.State == StateDead {
		return false
	}
	l.transition(p, StateDead)
	return true
}

func (l *PeerList) transition(p *Peer, to State) {
	prev := p.State
	p.State = to
	p.ChangeStateTime = l.now()
	l.notify(PeerChange{Peer: p.Record(), Prev: prev})
}

// Lock flags endpoint as targeted by an in-flight round. It fails if the
// peer is unknown or already locked.
func (l *PeerList) Lock(endpoint string) bool {
	p := l.Get(endpoint)
	if p == nil || p.Locked {
		return false
	}
	p.Locked = true
	return true
}

func (l *PeerList) Unlock(endpoint string) {
	if p := l.Get(endpoint); p != nil {
		p.Locked = false
	}
}

// Heartbeat bumps the local version and re-asserts ALIVE.
func (l *PeerList) Heartbeat() PeerRecord {
	l.local.Incarnation.Version++
	l.local.State = StateAlive
	return l.local.Record()
}

// Records returns a snapshot of every peer, in endpoint order.
func (l *PeerList) Records() []PeerRecord {
	out := make([]PeerRecord, 0, len(l.peers))
	for _, p := range l.peers {
		out = append(out, p.Record())
	}
	return out
}

// Count returns the number of peers in each state, local peer included.
func (l *PeerList) Count() (alive, suspect, dead int) {
	for _, p := range l.peers {
		switch p.State {
		case StateAlive:
			alive++
		case StateSuspect:
			suspect++
		case StateDead:
			dead++
		}
	}
	return alive, suspect, dead
}

func (l *PeerList) search(endpoint string) (int, bool) {
	i := sort.Search(len(l.peers), func(i int) bool { return l.peers[i].Endpoint >= endpoint })
	return i, i < len(l.peers) && l.peers[i].Endpoint == endpoint
}

func (l *PeerList) insertAt(i int, p *Peer) {
	l.peers = append(l.peers, nil)
	copy(l.peers[i+1:], l.peers[i:])
	l.peers[i] = p
}

func (l *PeerList) notify(c PeerChange) {
	for _, fn := range l.onChange {
		fn(c)
	}
}
