package gossip

import (
	"fmt"

	"go.uber.org/zap"
)

type DisseminationState uint8

const (
	DisseminationClosed DisseminationState = iota
	DisseminationSelecting
	DisseminationSelectionFailed
	DisseminationLocking
	DisseminationOpening
	DisseminationOpen
	DisseminationAcknowledged
	DisseminationFailed
)

func (s DisseminationState) String() string {
	switch s {
	case DisseminationClosed:
		return "CLOSED"
	case DisseminationSelecting:
		return "SELECTING"
	case DisseminationSelectionFailed:
		return "SELECTION_FAILED"
	case DisseminationLocking:
		return "LOCKING"
	case DisseminationOpening:
		return "OPENING"
	case DisseminationOpen:
		return "OPEN"
	case DisseminationAcknowledged:
		return "ACKNOWLEDGED"
	case DisseminationFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Dissemination runs one push-pull round: it picks a random eligible peer,
// locks it, ships the local peer list and merges the reply. A failed round
// against an ALIVE peer hands the peer to a failure detection.
type Dissemination struct {
	state     DisseminationState
	peers     *PeerList
	shuffled  *ShuffledPeerList
	requestor Requestor
	// handoff starts a failure detection for the peer and reports whether a
	// detector took it. The lock moves with the peer when it does.
	handoff func(*Peer) bool
	log     *zap.Logger

	target    *Peer
	locked    bool
	handedOff bool
	request   Request
}

func newDissemination(peers *PeerList, shuffled *ShuffledPeerList, requestor Requestor, handoff func(*Peer) bool, log *zap.Logger) *Dissemination {
	return &Dissemination{
		peers:     peers,
		shuffled:  shuffled,
		requestor: requestor,
		handoff:   handoff,
		log:       log,
	}
}

func (d *Dissemination) State() DisseminationState { return d.state }

// Target returns the endpoint of the current round's peer, if one was
// selected.
func (d *Dissemination) Target() string {
	if d.target == nil {
		return ""
	}
	return d.target.Endpoint
}

func (d *Dissemination) Begin() error {
	if d.state != DisseminationClosed {
		return fmt.Errorf("%w: dissemination is %s", ErrProtocolMisuse, d.state)
	}
	d.state = DisseminationSelecting
	return nil
}

// Done reports whether the machine reached a terminal state.
func (d *Dissemination) Done() bool {
	switch d.state {
	case DisseminationAcknowledged, DisseminationFailed, DisseminationSelectionFailed:
		return true
	}
	return false
}

func (d *Dissemination) Execute() int {
	switch d.state {
	case DisseminationSelecting:
		d.state = d.selectTarget()
		return 1
	case DisseminationLocking:
		d.state = d.lockTarget()
		return 1
	case DisseminationOpening:
		d.state = d.open()
		return 1
	case DisseminationOpen:
		next, work := d.poll()
		d.state = next
		return work
	default:
		return 0
	}
}

func (d *Dissemination) selectTarget() DisseminationState {
	d.target = d.shuffled.Select(func(p *Peer) bool {
		return !p.Local && p.State != StateDead && !p.Locked
	})
	if d.target == nil {
		return DisseminationSelectionFailed
	}
	return DisseminationLocking
}

func (d *Dissemination) lockTarget() DisseminationState {
	if !d.peers.Lock(d.target.Endpoint) {
		return DisseminationSelectionFailed
	}
	d.locked = true
	return DisseminationOpening
}

func (d *Dissemination) open() DisseminationState {
	d.request = Request{
		ID:    newRequestID(),
		Type:  MsgGossip,
		From:  d.peers.Local().Endpoint,
		Peers: d.peers.Records(),
	}
	if err := d.requestor.Begin(d.target.Endpoint, &d.request); err != nil {
		d.log.Debug("gossip request not sent", zap.String("endpoint", d.target.Endpoint), zap.Error(err))
		return d.fail()
	}
	return DisseminationOpen
}

func (d *Dissemination) poll() (DisseminationState, int) {
	work := d.requestor.Execute()
	switch {
	case d.requestor.IsResponseAvailable():
		d.peers.Merge(d.requestor.Response().Peers, nil)
		return DisseminationAcknowledged, work + 1
	case d.requestor.IsFailed():
		return d.fail(), work + 1
	default:
		return DisseminationOpen, work
	}
}

func (d *Dissemination) fail() DisseminationState {
	d.log.Debug("gossip round failed",
		zap.String("endpoint", d.target.Endpoint),
		zap.Stringer("state", d.target.State))
	if d.target.State == StateAlive && d.handoff != nil && d.handoff(d.target) {
		d.handedOff = true
	}
	return DisseminationFailed
}

// Close releases the requestor and, unless the target was handed to a
// failure detection, the lock on the target. It is always safe to call.
func (d *Dissemination) Close() {
	d.requestor.Close()
	if d.locked && !d.handedOff {
		d.peers.Unlock(d.target.Endpoint)
	}
	d.target = nil
	d.locked = false
	d.handedOff = false
	d.request = Request{}
	d.state = DisseminationClosed
}
