package gossip

import (
	"fmt"

	"go.uber.org/zap"
)

type ProbeState uint8

const (
	ProbeClosed ProbeState = iota
	ProbeOpen
	ProbeAcknowledged
	ProbeFailed
)

func (s ProbeState) String() string {
	switch s {
	case ProbeClosed:
		return "CLOSED"
	case ProbeOpen:
		return "OPEN"
	case ProbeAcknowledged:
		return "ACKNOWLEDGED"
	case ProbeFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Probe serves an indirect probe: it gossips with the target on behalf of a
// remote caller and answers the caller's deferred request with the diff the
// target's reply produced. When the target does not answer the caller gets
// no reply at all and observes its own timeout.
type Probe struct {
	state     ProbeState
	peers     *PeerList
	requestor Requestor
	log       *zap.Logger

	target  string
	reply   *Deferred
	request Request
}

func newProbe(peers *PeerList, requestor Requestor, log *zap.Logger) *Probe {
	return &Probe{peers: peers, requestor: requestor, log: log}
}

func (p *Probe) State() ProbeState { return p.state }

func (p *Probe) Target() string { return p.target }

func (p *Probe) Begin(target string, reply *Deferred) error {
	if p.state != ProbeClosed {
		return fmt.Errorf("%w: probe is %s", ErrProtocolMisuse, p.state)
	}
	p.target = target
	p.reply = reply
	p.request = Request{
		ID:    newRequestID(),
		Type:  MsgGossip,
		From:  p.peers.Local().Endpoint,
		Peers: p.peers.Records(),
	}
	if err := p.requestor.Begin(target, &p.request); err != nil {
		p.log.Debug("probe relay not sent", zap.String("endpoint", target), zap.Error(err))
		p.state = ProbeFailed
		return nil
	}
	p.state = ProbeOpen
	return nil
}

func (p *Probe) Done() bool {
	return p.state == ProbeAcknowledged || p.state == ProbeFailed
}

func (p *Probe) Execute() int {
	if p.state != ProbeOpen {
		return 0
	}
	next, work := p.poll()
	p.state = next
	return work
}

func (p *Probe) poll() (ProbeState, int) {
	work := p.requestor.Execute()
	switch {
	case p.requestor.IsResponseAvailable():
		diff := p.peers.Merge(p.requestor.Response().Peers, nil)
		p.respond(&Response{From: p.peers.Local().Endpoint, Peers: diff})
		return ProbeAcknowledged, work + 1
	case p.requestor.IsFailed():
		p.log.Debug("probe relay failed", zap.String("endpoint", p.target))
		return ProbeFailed, work + 1
	default:
		return ProbeOpen, work
	}
}

func (p *Probe) respond(resp *Response) {
	err := p.reply.Write(resp)
	if err == nil {
		err = p.reply.Commit()
	}
	if err != nil {
		// The caller is gone; the relay itself succeeded.
		p.log.Debug("probe reply dropped", zap.String("endpoint", p.target), zap.Error(err))
		p.reply.Abort()
	}
}

func (p *Probe) Close() {
	p.requestor.Close()
	p.target = ""
	p.reply = nil
	p.request = Request{}
	p.state = ProbeClosed
}
