package memtransport

import (
	"time"

	"github.com/ryandielhenn/zephyrgossip/pkg/gossip"
)

type requestor struct {
	net     *Network
	from    string
	timeout time.Duration

	busy     bool
	to       string
	deadline time.Time
	reply    *gossip.Deferred
	resp     *gossip.Response
	failed   bool
}

func (r *requestor) Begin(endpoint string, req *gossip.Request) error {
	if r.busy {
		return gossip.ErrRequestorBusy
	}
	r.busy = true
	r.to = endpoint
	r.deadline = r.net.now().Add(r.timeout)

	// The receiver reads the request on its own tick, after the sender may
	// have reset it.
	cp := *req
	cp.Peers = append([]gossip.PeerRecord(nil), req.Peers...)
	if h, ok := r.net.route(r.from, endpoint); ok {
		if d, err := h.Enqueue(&cp); err == nil {
			r.reply = d
		}
	}
	return nil
}

func (r *requestor) Execute() int {
	if !r.busy || r.resp != nil || r.failed {
		return 0
	}
	// Anything committed after the deadline is discarded.
	if !r.net.now().Before(r.deadline) {
		if r.reply != nil {
			r.reply.Abort()
			r.reply = nil
		}
		r.failed = true
		return 1
	}
	if r.reply == nil {
		return 0
	}
	select {
	case <-r.reply.Done():
		resp, ok := r.reply.Result()
		r.reply = nil
		if !ok {
			r.failed = true
			return 1
		}
		if r.net.linkUp(r.to, r.from) {
			r.resp = resp
			return 1
		}
		// Reply lost on the way back; wait for the deadline.
	default:
	}
	return 0
}

func (r *requestor) IsResponseAvailable() bool { return r.resp != nil }

func (r *requestor) IsFailed() bool { return r.failed }

func (r *requestor) Response() *gossip.Response { return r.resp }

func (r *requestor) Close() {
	if r.reply != nil {
		r.reply.Abort()
	}
	r.busy = false
	r.to = ""
	r.reply = nil
	r.resp = nil
	r.failed = false
}
