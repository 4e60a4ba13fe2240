package gossip

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeRequestor is a scripted Requestor. Tests resolve calls with respond
// and fail.
type fakeRequestor struct {
	busy     bool
	endpoint string
	req      *Request
	resp     *Response
	failed   bool
	beginErr error
	calls    int
	closed   int
}

func (r *fakeRequestor) Begin(endpoint string, req *Request) error {
	if r.beginErr != nil {
		return r.beginErr
	}
	if r.busy {
		return ErrRequestorBusy
	}
	r.busy = true
	r.endpoint = endpoint
	cp := *req
	r.req = &cp
	r.calls++
	return nil
}

func (r *fakeRequestor) Execute() int { return 0 }

func (r *fakeRequestor) IsResponseAvailable() bool { return r.resp != nil }

func (r *fakeRequestor) IsFailed() bool { return r.failed }

func (r *fakeRequestor) Response() *Response { return r.resp }

func (r *fakeRequestor) Close() {
	r.busy = false
	r.endpoint = ""
	r.resp = nil
	r.failed = false
	r.closed++
}

func (r *fakeRequestor) respond(peers ...PeerRecord) {
	r.resp = &Response{From: r.endpoint, Peers: peers}
}

func (r *fakeRequestor) fail() { r.failed = true }

// fakeTransport hands out fakeRequestors in creation order.
type fakeTransport struct {
	requestors []*fakeRequestor
}

func (t *fakeTransport) NewRequestor(time.Duration) Requestor {
	r := &fakeRequestor{}
	t.requestors = append(t.requestors, r)
	return r
}

// busy returns the requestors with an outstanding call to endpoint.
func (t *fakeTransport) busy(endpoint string) []*fakeRequestor {
	var out []*fakeRequestor
	for _, r := range t.requestors {
		if r.busy && r.endpoint == endpoint && r.resp == nil && !r.failed {
			out = append(out, r)
		}
	}
	return out
}

func alive(ep string, gen, ver int64) PeerRecord {
	return PeerRecord{Endpoint: ep, State: StateAlive, Generation: gen, Version: ver}
}

func suspect(ep string, gen, ver int64) PeerRecord {
	return PeerRecord{Endpoint: ep, State: StateSuspect, Generation: gen, Version: ver}
}

func dead(ep string, gen, ver int64) PeerRecord {
	return PeerRecord{Endpoint: ep, State: StateDead, Generation: gen, Version: ver}
}

// newTestList returns a list for "self" at generation 10 holding the given
// peers.
func newTestList(t *testing.T, clk *clockwork.FakeClock, peers ...PeerRecord) *PeerList {
	t.Helper()
	l := NewPeerList(alive("self", 10, 0), clk.Now)
	for _, p := range peers {
		l.Insert(p)
	}
	return l
}

func testRand() *rand.Rand { return rand.New(rand.NewPCG(1, 2)) }

func testLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t)
}
