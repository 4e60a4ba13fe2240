package gossip

import (
	"time"

	"go.uber.org/zap"
)

// Suspicion declares peers DEAD once they have been SUSPECT for longer than
// the timeout. It only ever strengthens state, so it can run between merges.
type Suspicion struct {
	peers   *PeerList
	timeout time.Duration
	now     func() time.Time
	log     *zap.Logger
}

func NewSuspicion(peers *PeerList, timeout time.Duration, now func() time.Time, log *zap.Logger) *Suspicion {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Suspicion{peers: peers, timeout: timeout, now: now, log: log}
}

// Process returns the number of peers declared dead.
func (s *Suspicion) Process() int {
	now := s.now()
	dead := 0
	for i := 0; i < s.peers.Len(); i++ {
		p := s.peers.At(i)
		if p.State != StateSuspect || now.Before(p.ChangeStateTime.Add(s.timeout)) {
			continue
		}
		since := p.ChangeStateTime
		if s.peers.MarkPeerAsDead(p.Endpoint) {
			s.log.Info("peer declared dead",
				zap.String("endpoint", p.Endpoint),
				zap.Duration("suspected_for", now.Sub(since)))
			dead++
		}
	}
	return dead
}
