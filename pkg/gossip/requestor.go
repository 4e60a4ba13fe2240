package gossip

import "time"

// Requestor is a reusable, non-blocking request/response handle supplied by
// the transport. At most one call is outstanding per instance, and every
// call eventually reports either a response or a failure.
type Requestor interface {
	// Begin issues req to endpoint without waiting for the reply.
	Begin(endpoint string, req *Request) error
	// Execute advances the call and returns the amount of work done.
	Execute() int
	IsResponseAvailable() bool
	IsFailed() bool
	// Response returns the reply once IsResponseAvailable reports true.
	Response() *Response
	// Close abandons any outstanding call and makes the handle reusable.
	Close()
}

// Transport creates requestors. The controller preallocates one per machine
// slot, so NewRequestor is only called at construction.
type Transport interface {
	NewRequestor(timeout time.Duration) Requestor
}
