package gossip

import (
	"fmt"
	"time"
)

// State is the health of a peer. The numeric order is the severity order
// used when merging records of equal incarnation.
type State uint8

const (
	StateAlive State = iota
	StateSuspect
	StateDead
)

func (s State) String() string {
	switch s {
	case StateAlive:
		return "ALIVE"
	case StateSuspect:
		return "SUSPECT"
	case StateDead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) {
	if s > StateDead {
		return nil, fmt.Errorf("invalid peer state %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "ALIVE":
		*s = StateAlive
	case "SUSPECT":
		*s = StateSuspect
	case "DEAD":
		*s = StateDead
	default:
		return fmt.Errorf("invalid peer state %q", text)
	}
	return nil
}

// Incarnation identifies how fresh a peer's self-asserted state is.
// Generation changes when the peer restarts or refutes a suspicion of itself
// across restarts, Version on every heartbeat.
type Incarnation struct {
	Generation int64
	Version    int64
}

// Compare orders incarnations lexicographically: -1, 0 or +1.
func (i Incarnation) Compare(o Incarnation) int {
	switch {
	case i.Generation < o.Generation:
		return -1
	case i.Generation > o.Generation:
		return 1
	case i.Version < o.Version:
		return -1
	case i.Version > o.Version:
		return 1
	default:
		return 0
	}
}

func (i Incarnation) NewerThan(o Incarnation) bool { return i.Compare(o) > 0 }

func (i Incarnation) String() string {
	return fmt.Sprintf("%d.%d", i.Generation, i.Version)
}

// Peer is one cluster member as seen by this node.
type Peer struct {
	Endpoint        string // host:port, immutable
	State           State
	Incarnation     Incarnation
	ChangeStateTime time.Time
	// Locked is set while a dissemination round (or the failure detection it
	// handed over to) targets this peer.
	Locked bool
	// Local marks the record describing this node.
	Local bool
}

func (p *Peer) Record() PeerRecord {
	return PeerRecord{
		Endpoint:   p.Endpoint,
		State:      p.State,
		Generation: p.Incarnation.Generation,
		Version:    p.Incarnation.Version,
	}
}

func (p *Peer) String() string {
	return fmt.Sprintf("%s(%s@%s)", p.Endpoint, p.State, p.Incarnation)
}
