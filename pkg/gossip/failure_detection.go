package gossip

import (
	"fmt"

	"go.uber.org/zap"
)

type FailureDetectionState uint8

const (
	FailureDetectionClosed FailureDetectionState = iota
	FailureDetectionSelecting
	FailureDetectionOpening
	FailureDetectionOpen
	FailureDetectionAcknowledged
	FailureDetectionFailed
)

func (s FailureDetectionState) String() string {
	switch s {
	case FailureDetectionClosed:
		return "CLOSED"
	case FailureDetectionSelecting:
		return "SELECTING"
	case FailureDetectionOpening:
		return "OPENING"
	case FailureDetectionOpen:
		return "OPEN"
	case FailureDetectionAcknowledged:
		return "ACKNOWLEDGED"
	case FailureDetectionFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// FailureDetection probes a peer indirectly: it asks up to len(requestors)
// relays to gossip with the suspect. The first relay that answers clears the
// suspect; if every relay fails, or none is available, the suspect is marked
// SUSPECT.
type FailureDetection struct {
	state      FailureDetectionState
	peers      *PeerList
	shuffled   *ShuffledPeerList
	requestors []Requestor
	log        *zap.Logger

	suspect string
	relays  []*Peer
	failed  []bool
	request Request
}

func newFailureDetection(peers *PeerList, shuffled *ShuffledPeerList, requestors []Requestor, log *zap.Logger) *FailureDetection {
	return &FailureDetection{
		peers:      peers,
		shuffled:   shuffled,
		requestors: requestors,
		log:        log,
		relays:     make([]*Peer, 0, len(requestors)),
		failed:     make([]bool, len(requestors)),
	}
}

func (f *FailureDetection) State() FailureDetectionState { return f.state }

// Suspect returns the endpoint under investigation, empty when closed.
func (f *FailureDetection) Suspect() string { return f.suspect }

func (f *FailureDetection) Begin(suspect *Peer) error {
	if f.state != FailureDetectionClosed {
		return fmt.Errorf("%w: failure detection is %s", ErrProtocolMisuse, f.state)
	}
	f.suspect = suspect.Endpoint
	f.state = FailureDetectionSelecting
	return nil
}

func (f *FailureDetection) Done() bool {
	return f.state == FailureDetectionAcknowledged || f.state == FailureDetectionFailed
}

func (f *FailureDetection) Execute() int {
	switch f.state {
	case FailureDetectionSelecting:
		f.state = f.selectRelays()
		return 1
	case FailureDetectionOpening:
		f.state = f.open()
		return 1
	case FailureDetectionOpen:
		next, work := f.poll()
		f.state = next
		return work
	default:
		return 0
	}
}

func (f *FailureDetection) selectRelays() FailureDetectionState {
	f.relays = append(f.relays[:0], f.shuffled.NextN(len(f.requestors), f.suspect)...)
	if len(f.relays) == 0 {
		f.log.Debug("no relay available for indirect probe", zap.String("endpoint", f.suspect))
		return f.fail()
	}
	return FailureDetectionOpening
}

func (f *FailureDetection) open() FailureDetectionState {
	f.request = Request{
		ID:     newRequestID(),
		Type:   MsgProbe,
		From:   f.peers.Local().Endpoint,
		Target: f.suspect,
	}
	for i, relay := range f.relays {
		if err := f.requestors[i].Begin(relay.Endpoint, &f.request); err != nil {
			f.log.Debug("indirect probe not sent",
				zap.String("relay", relay.Endpoint),
				zap.String("endpoint", f.suspect),
				zap.Error(err))
			f.failed[i] = true
		}
	}
	if f.allFailed() {
		return f.fail()
	}
	return FailureDetectionOpen
}

func (f *FailureDetection) poll() (FailureDetectionState, int) {
	work := 0
	for i := range f.relays {
		if f.failed[i] {
			continue
		}
		r := f.requestors[i]
		work += r.Execute()
		switch {
		case r.IsResponseAvailable():
			f.peers.Merge(r.Response().Peers, nil)
			return FailureDetectionAcknowledged, work + 1
		case r.IsFailed():
			f.failed[i] = true
			work++
		}
	}
	if f.allFailed() {
		return f.fail(), work
	}
	return FailureDetectionOpen, work
}

func (f *FailureDetection) allFailed() bool {
	for i := range f.relays {
		if !f.failed[i] {
			return false
		}
	}
	return true
}

func (f *FailureDetection) fail() FailureDetectionState {
	if f.peers.MarkPeerAsSuspected(f.suspect) {
		f.log.Info("peer suspected", zap.String("endpoint", f.suspect), zap.Int("relays", len(f.relays)))
	}
	return FailureDetectionFailed
}

// Close closes every relay call and unlocks the suspect.
func (f *FailureDetection) Close() {
	for _, r := range f.requestors {
		r.Close()
	}
	if f.suspect != "" {
		f.peers.Unlock(f.suspect)
	}
	for i := range f.failed {
		f.failed[i] = false
	}
	f.relays = f.relays[:0]
	f.suspect = ""
	f.request = Request{}
	f.state = FailureDetectionClosed
}
