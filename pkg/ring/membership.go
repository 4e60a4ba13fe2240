package ring

import "github.com/ryandielhenn/zephyrgossip/pkg/gossip"

// Observe keeps the ring in step with a peer list: ALIVE peers are placed,
// SUSPECT and DEAD ones removed. Register it with PeerList.OnChange.
func (r *HashRing) Observe(c gossip.PeerChange) {
	if c.Peer.State == gossip.StateAlive {
		r.Add(c.Peer.Endpoint)
		return
	}
	r.Remove(c.Peer.Endpoint)
}
