// Package gossip implements the membership and failure-detection layer of a
// zephyrgossip node: a SWIM-like push-pull protocol that keeps an eventually
// consistent view of which peers exist and which of them are reachable.
//
// The protocol is driven by a single Controller that owns a PeerList and
// fixed-size pools of state machines (Dissemination, FailureDetection, Probe).
// Every machine is advanced by non-blocking Execute calls from the
// controller's DoWork, so the whole protocol runs on one goroutine and the
// PeerList needs no locks. Network calls go through the Requestor seam and
// are polled, never awaited.
//
// Typical usage:
//
//	ctrl := gossip.NewController(cfg, "10.0.0.1:7946", transport,
//		gossip.WithLogger(logger))
//	ctrl.AddSeeds(seeds)
//	go ctrl.Run(ctx)
//
// Inbound requests from a transport server are handed over with Enqueue and
// answered through the returned Deferred.
package gossip
