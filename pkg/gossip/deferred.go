package gossip

import "sync"

// Deferred is the reply handle of an inbound request. The controller fills it
// on its own goroutine while the transport waits on Done from another, so it
// is safe for concurrent use. It resolves exactly once, either committed with
// a response or aborted.
type Deferred struct {
	mu       sync.Mutex
	pending  *Response
	resp     *Response
	resolved bool
	done     chan struct{}
}

func NewDeferred() *Deferred {
	return &Deferred{done: make(chan struct{})}
}

// Write stages resp as the reply. It becomes visible on Commit.
func (d *Deferred) Write(resp *Response) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.resolved {
		return ErrDeferredResolved
	}
	d.pending = resp
	return nil
}

// Commit publishes the staged reply.
func (d *Deferred) Commit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.resolved {
		return ErrDeferredResolved
	}
	if d.pending == nil {
		d.pending = &Response{}
	}
	d.resp = d.pending
	d.resolve()
	return nil
}

// Abort resolves without a reply. Aborting a resolved Deferred is a no-op.
func (d *Deferred) Abort() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.resolved {
		return
	}
	d.resolve()
}

func (d *Deferred) resolve() {
	d.pending = nil
	d.resolved = true
	close(d.done)
}

// Done is closed once the Deferred is committed or aborted.
func (d *Deferred) Done() <-chan struct{} { return d.done }

// Result returns the committed reply; ok is false if the Deferred was
// aborted or is still open.
func (d *Deferred) Result() (resp *Response, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resp, d.resp != nil
}
