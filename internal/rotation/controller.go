// Package rotation turns pointer drags around a center into an angle with
// inertial coasting after release.
//
// A gesture is Start, any number of Move calls, then End. If the pointer was
// still moving at End, the controller coasts: every frame the velocity decays
// by the friction factor and is added to the angle until it falls below the
// minimum velocity. The end callback fires exactly once per gesture, after
// the angle has settled. Cancel aborts a gesture without firing it.
package rotation

import (
	"log/slog"
	"math"
	"time"

	"github.com/kilosayaw/seqsync-sub000/internal/frame"
	"github.com/kilosayaw/seqsync-sub000/internal/geom"
)

const (
	// DefaultFriction is the per-frame velocity decay while coasting.
	DefaultFriction = 0.95

	// DefaultMinVelocity in degrees per frame ends coasting.
	DefaultMinVelocity = 0.02
)

// State is the controller phase.
type State int

const (
	Idle State = iota
	Dragging
	Coasting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Coasting:
		return "coasting"
	}
	return "unknown"
}

// Controller is a damped rotation controller.
//
// Thread-safety: not safe for concurrent use. Call it from the goroutine
// that delivers frames for its Scheduler (frame.Loop.Post, or a test
// stepping a manual scheduler).
type Controller struct {
	sched       frame.Scheduler
	logger      *slog.Logger
	friction    float64
	minVelocity float64

	clamped  bool
	min, max float64

	state    State
	angle    float64 // unclamped accumulator
	center   geom.Vec2
	pointer  float64 // last pointer angle around center, degrees
	velocity float64
	handle   frame.Handle

	onChange func(angle float64)
	onEnd    func(angle float64)
}

// Option configures a Controller.
type Option func(*Controller)

// WithFriction sets the coasting decay factor. Values outside (0,1) are
// ignored.
func WithFriction(f float64) Option {
	return func(c *Controller) {
		if f > 0 && f < 1 {
			c.friction = f
		}
	}
}

// WithMinVelocity sets the velocity below which motion stops.
func WithMinVelocity(v float64) Option {
	return func(c *Controller) {
		if v > 0 {
			c.minVelocity = v
		}
	}
}

// WithRange clamps reported angles to [min, max]. The internal accumulator
// stays unclamped so dragging back from past a limit feels continuous.
func WithRange(min, max float64) Option {
	return func(c *Controller) {
		if min > max {
			min, max = max, min
		}
		c.clamped = true
		c.min, c.max = min, max
	}
}

// WithAngle sets the initial angle.
func WithAngle(deg float64) Option {
	return func(c *Controller) { c.angle = deg }
}

// OnChange registers the callback fired on every angle change.
func OnChange(fn func(angle float64)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// OnEnd registers the callback fired once per completed gesture.
func OnEnd(fn func(angle float64)) Option {
	return func(c *Controller) { c.onEnd = fn }
}

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates an idle controller driven by sched.
func New(sched frame.Scheduler, opts ...Option) *Controller {
	c := &Controller{
		sched:       sched,
		logger:      slog.Default(),
		friction:    DefaultFriction,
		minVelocity: DefaultMinVelocity,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current phase.
func (c *Controller) State() State { return c.state }

// Velocity returns the last per-frame angular velocity in degrees.
func (c *Controller) Velocity() float64 { return c.velocity }

// RawAngle returns the unclamped accumulator.
func (c *Controller) RawAngle() float64 { return c.angle }

// Angle returns the reported (possibly clamped) angle.
func (c *Controller) Angle() float64 {
	if c.clamped {
		return geom.Clamp(c.angle, c.min, c.max)
	}
	return c.angle
}

// SetAngle jumps to deg. It is ignored mid-gesture.
func (c *Controller) SetAngle(deg float64) {
	if c.state != Idle {
		return
	}
	c.angle = deg
	c.emitChange()
}

// Start begins a gesture. A coasting or still-dragging gesture is finished
// first, so its end callback fires before the new gesture begins.
func (c *Controller) Start(pointer, center geom.Vec2) {
	switch c.state {
	case Coasting:
		c.finish()
	case Dragging:
		// a lost End settles the old gesture where it stands
		c.logger.Debug("rotation start while dragging, settling previous gesture")
		c.finish()
	}
	c.state = Dragging
	c.center = center
	c.pointer = pointerAngle(pointer, center)
	c.velocity = 0
}

// Move updates the angle from a new pointer position.
func (c *Controller) Move(pointer geom.Vec2) {
	if c.state != Dragging {
		return
	}
	a := pointerAngle(pointer, c.center)
	delta := geom.WrapDelta(a - c.pointer)
	if math.IsNaN(delta) {
		return
	}
	c.pointer = a
	c.velocity = delta
	if delta == 0 {
		return
	}
	c.angle += delta
	c.emitChange()
}

// End releases the pointer. Slow releases settle immediately; fast ones
// coast.
func (c *Controller) End() {
	if c.state != Dragging {
		return
	}
	if math.Abs(c.velocity) < c.minVelocity {
		c.finish()
		return
	}
	c.state = Coasting
	c.handle = c.sched.Request(c.tick)
}

// Cancel halts the gesture without firing the end callback.
func (c *Controller) Cancel() {
	if c.state == Coasting {
		c.sched.Cancel(c.handle)
	}
	c.handle = 0
	c.state = Idle
	c.velocity = 0
}

func (c *Controller) tick(time.Duration) {
	if c.state != Coasting {
		return
	}
	c.velocity *= c.friction
	c.angle += c.velocity
	c.emitChange()
	if math.Abs(c.velocity) < c.minVelocity {
		c.finish()
		return
	}
	c.handle = c.sched.Request(c.tick)
}

func (c *Controller) finish() {
	if c.state == Coasting && c.handle != 0 {
		c.sched.Cancel(c.handle)
	}
	c.handle = 0
	c.state = Idle
	c.velocity = 0
	if c.onEnd != nil {
		c.onEnd(c.Angle())
	}
}

func (c *Controller) emitChange() {
	if c.onChange != nil {
		c.onChange(c.Angle())
	}
}

// pointerAngle is the clockwise-from-up angle of p around center, matching
// the safe-zone convention x = sin, y = cos.
func pointerAngle(p, center geom.Vec2) float64 {
	d := p.Sub(center)
	return geom.Deg(math.Atan2(d.X, d.Y))
}
