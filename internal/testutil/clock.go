package testutil

import (
	"time"

	"github.com/kilosayaw/seqsync-sub000/internal/frame"
)

// ManualScheduler is a frame.Scheduler whose frames are delivered only when
// the test asks for them.
//
// Unlike frame.Loop, nothing runs in the background: Step delivers one frame
// at Now()+Interval, Advance delivers one frame after an arbitrary (possibly
// long) gap. This makes delayed-frame catch-up and coasting decay exactly
// reproducible.
//
// Thread-safety: not safe for concurrent use; tests drive it from one
// goroutine, matching the engine's single-writer model.
type ManualScheduler struct {
	queue    *frame.Queue
	now      time.Duration
	frames   int
	Interval time.Duration
}

// NewManualScheduler creates a scheduler at time 0. A non-positive interval
// defaults to frame.DefaultInterval.
func NewManualScheduler(interval time.Duration) *ManualScheduler {
	if interval <= 0 {
		interval = frame.DefaultInterval
	}
	return &ManualScheduler{queue: frame.NewQueue(), Interval: interval}
}

// Request implements frame.Scheduler.
func (s *ManualScheduler) Request(fn frame.Callback) frame.Handle {
	return s.queue.Request(fn)
}

// Cancel implements frame.Scheduler.
func (s *ManualScheduler) Cancel(h frame.Handle) {
	s.queue.Cancel(h)
}

// Now returns the simulated monotonic time.
func (s *ManualScheduler) Now() time.Duration {
	return s.now
}

// Pending returns the number of callbacks waiting for the next frame.
func (s *ManualScheduler) Pending() int {
	return s.queue.Len()
}

// Frames returns how many frames have been delivered.
func (s *ManualScheduler) Frames() int {
	return s.frames
}

// Step advances one interval and delivers a frame.
func (s *ManualScheduler) Step() int {
	return s.Advance(s.Interval)
}

// StepN delivers n regular frames.
func (s *ManualScheduler) StepN(n int) {
	for i := 0; i < n; i++ {
		s.Step()
	}
}

// Advance moves time forward by d and delivers a single frame, simulating a
// delayed frame when d is larger than Interval.
func (s *ManualScheduler) Advance(d time.Duration) int {
	s.now += d
	s.frames++
	return s.queue.Deliver(s.now)
}

// RunUntilIdle steps until no callback is pending or max frames have been
// delivered. It returns the number of frames stepped.
func (s *ManualScheduler) RunUntilIdle(max int) int {
	n := 0
	for n < max && s.queue.Len() > 0 {
		s.Step()
		n++
	}
	return n
}
