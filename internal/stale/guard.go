// Package stale reconciles fire-and-forget work against live state.
//
// The document processor has no cancellation: once a request is issued it
// runs to completion. A Guard keeps at most one job in flight per key, remembers
// the target the job was issued for, and at completion only commits the result
// if that target still matches the live one. A caller whose result turned out
// stale simply begins again for the live target.
//
//	g.Begin(live)        // capture target at issue
//	... remote call ...
//	if g.Finish(live) {  // compare at completion
//	    commit
//	} else {
//	    resubmit
//	}
package stale

// Guard tracks one in-flight job and the target of the last committed result.
// NOT safe for concurrent use: callers hold their own lock around every method.
type Guard[T comparable] struct {
	busy   bool
	target T // target of the in-flight job
	tag    T // target the committed result was produced for
	valid  bool
	done   chan struct{}
}

// Fresh reports whether the committed result was produced for live.
func (g *Guard[T]) Fresh(live T) bool {
	return g.valid && g.tag == live
}

// Busy reports whether a job is in flight.
func (g *Guard[T]) Busy() bool {
	return g.busy
}

// Target returns the target of the in-flight job.
func (g *Guard[T]) Target() (T, bool) {
	return g.target, g.busy
}

// Tag returns the target of the committed result.
func (g *Guard[T]) Tag() (T, bool) {
	return g.tag, g.valid
}

// Begin starts a job for live. Returns false, starting nothing, if the
// committed result is already fresh for live or another job is in flight.
func (g *Guard[T]) Begin(live T) bool {
	if g.busy || g.Fresh(live) {
		return false
	}
	g.busy = true
	g.target = live
	g.done = make(chan struct{})
	return true
}

// Wait returns a channel closed when the in-flight job settles, or nil when idle.
// The channel must be read without holding the caller's lock.
func (g *Guard[T]) Wait() <-chan struct{} {
	if !g.busy {
		return nil
	}
	return g.done
}

// Finish settles the in-flight job. If its target still equals live the result
// is committed and Finish returns true; otherwise the result must be discarded.
func (g *Guard[T]) Finish(live T) bool {
	if !g.busy {
		return false
	}
	g.settle()
	if g.target != live {
		return false
	}
	g.tag = g.target
	g.valid = true
	return true
}

// Abort settles the in-flight job without committing. The previous committed
// result, if any, stays current.
func (g *Guard[T]) Abort() {
	if g.busy {
		g.settle()
	}
}

// Invalidate forgets the committed result so the next Begin always starts.
func (g *Guard[T]) Invalidate() {
	g.valid = false
}

// Reset settles any in-flight job and forgets the committed result.
func (g *Guard[T]) Reset() {
	g.Abort()
	var zero T
	g.tag = zero
	g.valid = false
}

func (g *Guard[T]) settle() {
	g.busy = false
	close(g.done)
	g.done = nil
}
