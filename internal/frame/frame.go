// Package frame abstracts per-frame callback scheduling.
//
// The playback clock and the rotation controller's coasting phase are the
// only recurring work in the engine. Both request one callback per frame
// through a Scheduler, so the same logic runs under a real-time Loop, a
// fixed-step game loop, or a test harness stepping a simulated clock.
//
// Contract shared by all implementations:
//   - A callback requested while a frame is being delivered runs on the next
//     frame, never re-entrantly in the current one.
//   - After Cancel returns, the cancelled callback never runs.
//   - Callbacks receive the frame timestamp from a monotonic source.
package frame

import "time"

// Callback receives the monotonic frame timestamp.
type Callback func(now time.Duration)

// Handle identifies a pending callback. The zero Handle is never issued.
type Handle uint64

// Scheduler delivers callbacks on frame boundaries.
type Scheduler interface {
	// Request schedules fn for the next frame.
	Request(fn Callback) Handle

	// Cancel drops a pending callback. Cancelling an unknown or already
	// delivered handle is a no-op.
	Cancel(h Handle)
}

// Queue is the pending-callback bookkeeping behind a Scheduler. It is not
// safe for concurrent use; Loop guards it with a mutex.
type Queue struct {
	next  Handle
	order []Handle
	fns   map[Handle]Callback
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{fns: make(map[Handle]Callback)}
}

// Request implements Scheduler.
func (q *Queue) Request(fn Callback) Handle {
	q.next++
	h := q.next
	q.order = append(q.order, h)
	q.fns[h] = fn
	return h
}

// Cancel implements Scheduler.
func (q *Queue) Cancel(h Handle) {
	delete(q.fns, h)
}

// Len returns the number of live pending callbacks.
func (q *Queue) Len() int { return len(q.fns) }

// Due detaches the handles pending right now, in request order. Handles
// requested afterwards belong to the next frame.
func (q *Queue) Due() []Handle {
	due := q.order
	q.order = nil
	return due
}

// Pop removes and returns the callback for h if it is still live.
func (q *Queue) Pop(h Handle) (Callback, bool) {
	fn, ok := q.fns[h]
	if ok {
		delete(q.fns, h)
	}
	return fn, ok
}

// Deliver runs every callback pending at the time of the call and returns
// how many ran. Callbacks cancelled during delivery are skipped.
func (q *Queue) Deliver(now time.Duration) int {
	ran := 0
	for _, h := range q.Due() {
		fn, ok := q.Pop(h)
		if !ok {
			continue
		}
		fn(now)
		ran++
	}
	return ran
}
