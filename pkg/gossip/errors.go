package gossip

import "errors"

var (
	// ErrProtocolMisuse is returned by Begin when a machine is not CLOSED.
	ErrProtocolMisuse = errors.New("gossip: protocol machine is not closed")
	// ErrInboxFull is returned by Enqueue when the controller cannot accept
	// more inbound requests this tick.
	ErrInboxFull = errors.New("gossip: inbound queue is full")
	// ErrDeferredResolved is returned when a Deferred was already committed
	// or aborted.
	ErrDeferredResolved = errors.New("gossip: deferred response already resolved")
	// ErrRequestorBusy is returned by Requestor.Begin while a call is still
	// outstanding.
	ErrRequestorBusy = errors.New("gossip: requestor has an outstanding call")
	// ErrControllerStopped is returned by Enqueue and Query once Run has
	// exited.
	ErrControllerStopped = errors.New("gossip: controller stopped")
)
