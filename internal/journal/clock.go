package journal

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Clock hands out strictly increasing edit seq numbers.
//
// Thread-safety: safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that resumes after start, used when appending
// to an existing session.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next seq number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued seq number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// SessionIDGenerator names new sessions.
type SessionIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session ids, so listing
// sessions by id also lists them by creation time.
type UUIDv7Generator struct{}

// Generate returns a hyphenated UUIDv7. Panics if generation fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
