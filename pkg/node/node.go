// Package node is the admin HTTP surface of a gossip node: liveness,
// membership and partition placement views.
package node

import (
	"context"

	"github.com/ryandielhenn/zephyrgossip/pkg/gossip"
	"github.com/ryandielhenn/zephyrgossip/pkg/ring"
)

// Membership gives read access to the peer list owned by the gossip
// controller. *gossip.Controller implements it.
type Membership interface {
	Query(ctx context.Context, fn func(*gossip.PeerList)) error
}

type Node struct {
	members    Membership
	ring       *ring.HashRing
	addr       string
	partitions int
	rf         int
}

func NewNode(members Membership, r *ring.HashRing, addr string, partitions, replicationFactor int) *Node {
	return &Node{
		members:    members,
		ring:       r,
		addr:       addr,
		partitions: partitions,
		rf:         replicationFactor,
	}
}

func (n *Node) Addr() string {
	return n.addr
}
