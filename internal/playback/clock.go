// Package playback maps elapsed playback time onto beat addresses, fires
// beat-boundary events and records live poses into the sequence store.
//
// The clock owns no goroutine. Each tick is a frame callback requested from
// a Scheduler; Stop cancels the pending callback, so no tick can run after
// Stop returns.
package playback

import (
	"log/slog"
	"math"
	"time"

	"github.com/kilosayaw/seqsync-sub000/internal/biomech"
	"github.com/kilosayaw/seqsync-sub000/internal/frame"
	"github.com/kilosayaw/seqsync-sub000/internal/sequence"
)

// RecordMinScore is the visibility threshold for recorded joints.
const RecordMinScore = 0.5

// Scheduler is a frame scheduler with a monotonic time source.
type Scheduler interface {
	frame.Scheduler
	Now() time.Duration
}

// State is the transport state.
type State int

const (
	Stopped State = iota
	Playing
	Recording
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Recording:
		return "recording"
	}
	return "unknown"
}

// BeatEvent is fired once per crossed beat boundary.
type BeatEvent struct {
	// Index counts boundaries since Play, starting at 0. With looping it
	// keeps growing past the grid length.
	Index     int
	Address   sequence.Address
	Elapsed   time.Duration
	Recording bool
}

// Cursor is the derived playback position. Index is -1 before the first
// boundary.
type Cursor struct {
	Elapsed time.Duration
	Index   int
	Address sequence.Address
}

// Clock is the playback transport.
//
// Thread-safety: not safe for concurrent use. Drive it from the
// scheduler's goroutine.
type Clock struct {
	sched      Scheduler
	store      *sequence.Store
	poses      PoseSource
	classifier biomech.Classifier
	minScore   float64
	loop       bool
	logger     *slog.Logger

	state   State
	start   time.Duration
	elapsed time.Duration
	handle  frame.Handle

	// beat detector: boundaries are counted from the anchor, which moves on
	// every tempo change so the count stays continuous.
	last        int
	anchor      time.Duration
	anchorBeats float64
	bpm         float64
	prevElapsed time.Duration

	take *sequence.Take
	prev biomech.Joints

	subs    []beatSubscriber
	nextSub int
}

type beatSubscriber struct {
	id int
	fn func(BeatEvent)
}

// Option configures a Clock.
type Option func(*Clock)

// WithLoop wraps addresses past the end of the grid instead of stopping.
func WithLoop(loop bool) Option {
	return func(c *Clock) { c.loop = loop }
}

// WithPoseSource sets the live pose collaborator used while recording.
func WithPoseSource(p PoseSource) Option {
	return func(c *Clock) { c.poses = p }
}

// WithClassifier replaces the default classifier.
func WithClassifier(cl biomech.Classifier) Option {
	return func(c *Clock) { c.classifier = cl }
}

// WithMinScore sets the visibility threshold for recorded joints.
func WithMinScore(min float64) Option {
	return func(c *Clock) {
		if min >= 0 && min <= 1 {
			c.minScore = min
		}
	}
}

// WithLogger sets the clock logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Clock) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClock creates a stopped clock over store.
func NewClock(sched Scheduler, store *sequence.Store, opts ...Option) *Clock {
	c := &Clock{
		sched:      sched,
		store:      store,
		classifier: biomech.DefaultClassifier(),
		minScore:   RecordMinScore,
		logger:     slog.Default(),
		last:       -1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the transport state.
func (c *Clock) State() State { return c.state }

// Elapsed returns the playback time at the last tick.
func (c *Clock) Elapsed() time.Duration { return c.elapsed }

// SetLoop toggles looping.
func (c *Clock) SetLoop(loop bool) { c.loop = loop }

// Cursor returns the derived position.
func (c *Clock) Cursor() Cursor {
	cur := Cursor{Elapsed: c.elapsed, Index: c.last}
	if c.last >= 0 {
		seq := c.store.Current()
		cur.Address = seq.AddressOf(c.wrap(c.last, seq.Len()))
	}
	return cur
}

// Subscribe registers fn for beat events.
func (c *Clock) Subscribe(fn func(BeatEvent)) (cancel func()) {
	c.nextSub++
	id := c.nextSub
	c.subs = append(c.subs, beatSubscriber{id: id, fn: fn})
	return func() {
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// Play starts playback from zero. It is a no-op unless stopped.
func (c *Clock) Play() {
	if c.state != Stopped {
		return
	}
	seq := c.store.Current()
	c.state = Playing
	c.start = c.sched.Now()
	c.elapsed = 0
	c.prevElapsed = 0
	c.last = -1
	c.bpm = seq.BPM
	c.anchor = seconds(seq.GridOffset)
	c.anchorBeats = 0
	c.prev = nil
	c.handle = c.sched.Request(c.tick)
	c.logger.Debug("playback started", "bpm", c.bpm, "grid_offset", seq.GridOffset)
}

// Record starts recording, starting playback first when stopped. Every
// pose written until StopRecording or Stop lands in one take.
func (c *Clock) Record() error {
	if c.state == Recording {
		return nil
	}
	take, err := c.store.BeginTake()
	if err != nil {
		return err
	}
	c.take = take
	if c.state == Stopped {
		c.Play()
	}
	c.state = Recording
	c.logger.Debug("recording started")
	return nil
}

// StopRecording commits the take and keeps playing. It reports whether a
// history entry was created.
func (c *Clock) StopRecording() (bool, error) {
	if c.state != Recording {
		return false, nil
	}
	c.state = Playing
	return c.commit()
}

// Stop halts playback, committing an open take.
func (c *Clock) Stop() {
	if c.state == Stopped {
		return
	}
	if c.state == Recording {
		if _, err := c.commit(); err != nil {
			c.logger.Error("commit take", "error", err)
		}
	}
	c.sched.Cancel(c.handle)
	c.handle = 0
	c.state = Stopped
	c.logger.Debug("playback stopped", "elapsed", c.elapsed, "beats", c.last+1)
}

func (c *Clock) commit() (bool, error) {
	take := c.take
	c.take = nil
	if take == nil {
		return false, nil
	}
	n := take.Len()
	ok, err := take.Commit()
	if err == nil {
		c.logger.Info("take committed", "writes", n, "history", c.store.HistoryLen())
	}
	return ok, err
}

func (c *Clock) tick(now time.Duration) {
	c.handle = 0
	if c.state == Stopped {
		return
	}
	c.elapsed = now - c.start
	c.rebase()

	target := c.beatsAt(c.elapsed)
	for c.last < target {
		c.last++
		c.fire(c.last)
		if c.state == Stopped {
			return
		}
	}
	c.prevElapsed = c.elapsed
	c.handle = c.sched.Request(c.tick)
}

// rebase moves the anchor to the previous tick when the tempo changed, so
// the boundaries already fired stay fired and the next ones follow the new
// period.
func (c *Clock) rebase() {
	bpm := c.store.Current().BPM
	if bpm == c.bpm {
		return
	}
	c.anchorBeats += (c.prevElapsed - c.anchor).Seconds() * c.bpm / 60
	c.anchor = c.prevElapsed
	c.logger.Debug("tempo change", "from", c.bpm, "to", bpm, "beat", c.last)
	c.bpm = bpm
}

// beatsAt returns the index of the last boundary at or before elapsed, -1
// and below before the first beat.
func (c *Clock) beatsAt(elapsed time.Duration) int {
	beats := c.anchorBeats + (elapsed-c.anchor).Seconds()*c.bpm/60
	// absorb float noise right at a boundary
	return int(math.Floor(beats + 1e-9))
}

func (c *Clock) wrap(index, total int) int {
	if total == 0 {
		return 0
	}
	return index % total
}

func (c *Clock) fire(index int) {
	seq := c.store.Current()
	total := seq.Len()
	if index >= total && !c.loop {
		c.logger.Debug("end of sequence", "beats", total)
		c.Stop()
		return
	}
	addr := seq.AddressOf(c.wrap(index, total))

	recording := c.state == Recording
	if recording {
		c.record(addr)
	}
	ev := BeatEvent{Index: index, Address: addr, Elapsed: c.elapsed, Recording: recording}
	for _, s := range append([]beatSubscriber(nil), c.subs...) {
		s.fn(ev)
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
