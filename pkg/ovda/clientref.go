package ovda

import "sync/atomic"

// clientRef is the invalidation authority standing in for a weak
// reference to the client. Invalidate is called from StopOnError and
// from Destroy, and from the first such call every Deliver call
// becomes a silent no-op — even one already in flight on another
// goroutine, since the generation check and the callback both happen
// under the same control-thread task and Invalidate itself runs as a
// control-thread task.
type clientRef struct {
	client      Client
	invalidated atomic.Bool
}

func newClientRef(c Client) *clientRef {
	return &clientRef{client: c}
}

// Invalidate permanently disables further delivery. Idempotent.
func (r *clientRef) Invalidate() {
	r.invalidated.Store(true)
}

func (r *clientRef) valid() bool {
	return r != nil && !r.invalidated.Load()
}

// deliver runs fn against the live client, or does nothing if the ref
// has been invalidated. Every Client notification in coordinator.go
// goes through this instead of calling r.client directly.
func (r *clientRef) deliver(fn func(Client)) {
	if !r.valid() {
		return
	}
	fn(r.client)
}
