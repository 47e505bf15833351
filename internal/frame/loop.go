package frame

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is one display refresh at 60 Hz.
const DefaultInterval = time.Second / 60

// Loop is a real-time Scheduler that runs every frame callback and every
// posted function on the single goroutine calling Run. It is the engine's
// single writer: mutate engine state only from callbacks or Post.
//
// Thread-safety model:
//   - Request, Cancel, Post, Now: safe from any goroutine
//   - Run: must be called from exactly one goroutine
type Loop struct {
	mu       sync.Mutex
	queue    *Queue
	posted   []func()
	signal   chan struct{}
	interval time.Duration
	start    time.Time
	logger   *slog.Logger
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithInterval sets the frame period.
func WithInterval(d time.Duration) LoopOption {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithLogger sets the loop logger.
func WithLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoop creates a loop. Timestamps are measured from this call.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		queue:    NewQueue(),
		signal:   make(chan struct{}, 1),
		interval: DefaultInterval,
		start:    time.Now(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the monotonic time since the loop was created.
func (l *Loop) Now() time.Duration {
	return time.Since(l.start)
}

// Request implements Scheduler.
func (l *Loop) Request(fn Callback) Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Request(fn)
}

// Cancel implements Scheduler.
func (l *Loop) Cancel(h Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue.Cancel(h)
}

// Post runs fn on the loop goroutine as soon as possible.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.posted = append(l.posted, fn)
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// Run delivers frames until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Debug("frame loop starting", "interval", l.interval)
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("frame loop stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-l.signal:
			l.runPosted()
		case <-ticker.C:
			l.runPosted()
			l.deliver(l.Now())
		}
	}
}

func (l *Loop) runPosted() {
	l.mu.Lock()
	work := l.posted
	l.posted = nil
	l.mu.Unlock()

	for _, fn := range work {
		fn()
	}
}

// deliver runs callbacks without holding the lock so they can request the
// next frame.
func (l *Loop) deliver(now time.Duration) {
	l.mu.Lock()
	due := l.queue.Due()
	l.mu.Unlock()

	for _, h := range due {
		l.mu.Lock()
		fn, ok := l.queue.Pop(h)
		l.mu.Unlock()
		if ok {
			fn(now)
		}
	}
}
