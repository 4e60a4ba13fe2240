// Package memtransport is an in-process gossip transport. A Network routes
// requests between registered controllers and can cut links in either
// direction; lost requests fail when their deadline passes on the network's
// clock, which lets tests drive timeouts deterministically.
package memtransport

import (
	"sync"
	"time"

	"github.com/ryandielhenn/zephyrgossip/pkg/gossip"
)

// Handler accepts inbound requests. *gossip.Controller implements it.
type Handler interface {
	Enqueue(req *gossip.Request) (*gossip.Deferred, error)
}

type link struct{ from, to string }

type Network struct {
	mu    sync.Mutex
	nodes map[string]Handler
	cut   map[link]bool
	now   func() time.Time
}

func NewNetwork(now func() time.Time) *Network {
	if now == nil {
		now = time.Now
	}
	return &Network{
		nodes: make(map[string]Handler),
		cut:   make(map[link]bool),
		now:   now,
	}
}

func (n *Network) Register(endpoint string, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nodes[endpoint] = h
}

// Unregister makes endpoint unreachable, as if the process had stopped.
func (n *Network) Unregister(endpoint string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.nodes, endpoint)
}

// Cut drops every message sent from one endpoint to the other.
func (n *Network) Cut(from, to string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cut[link{from, to}] = true
}

// Partition cuts the link between a and b in both directions.
func (n *Network) Partition(a, b string) {
	n.Cut(a, b)
	n.Cut(b, a)
}

// Heal restores the link between a and b in both directions.
func (n *Network) Heal(a, b string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.cut, link{a, b})
	delete(n.cut, link{b, a})
}

func (n *Network) route(from, to string) (Handler, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cut[link{from, to}] {
		return nil, false
	}
	h, ok := n.nodes[to]
	return h, ok
}

func (n *Network) linkUp(from, to string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.cut[link{from, to}]
}

// Transport returns the transport used by the node at endpoint.
func (n *Network) Transport(endpoint string) gossip.Transport {
	return transport{net: n, from: endpoint}
}

type transport struct {
	net  *Network
	from string
}

func (t transport) NewRequestor(timeout time.Duration) gossip.Requestor {
	return &requestor{net: t.net, from: t.from, timeout: timeout}
}
