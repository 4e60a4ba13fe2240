package gossip

import "github.com/google/uuid"

// Wire protocol: gossip exchanges and indirect probes. Content is normative,
// the encoding is left to the transport.

type MsgType uint8

const (
	// MsgGossip carries the sender's peer list and expects the receiver's
	// diff back (push-pull).
	MsgGossip MsgType = iota
	// MsgProbe asks the receiver to gossip with Target on the sender's behalf.
	MsgProbe
)

func (t MsgType) String() string {
	switch t {
	case MsgGossip:
		return "gossip"
	case MsgProbe:
		return "probe"
	default:
		return "unknown"
	}
}

// PeerRecord is the transferable form of a Peer.
type PeerRecord struct {
	Endpoint   string `json:"endpoint"`
	State      State  `json:"state"`
	Generation int64  `json:"generation"`
	Version    int64  `json:"version"`
}

func (r PeerRecord) Incarnation() Incarnation {
	return Incarnation{Generation: r.Generation, Version: r.Version}
}

type Request struct {
	ID     string       `json:"id,omitempty"`
	Type   MsgType      `json:"type"`
	From   string       `json:"from"`
	Target string       `json:"target,omitempty"` // for MsgProbe
	Peers  []PeerRecord `json:"peers,omitempty"`
}

type Response struct {
	From  string       `json:"from"`
	Peers []PeerRecord `json:"peers,omitempty"`
}

func newRequestID() string { return uuid.NewString() }
