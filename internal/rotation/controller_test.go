package rotation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilosayaw/seqsync-sub000/internal/geom"
	"github.com/kilosayaw/seqsync-sub000/internal/testutil"
)

var origin = geom.Vec2{}

// at returns the pointer position deg degrees clockwise from straight up.
func at(deg float64) geom.Vec2 {
	return geom.Vec2{X: math.Sin(geom.Rad(deg)), Y: math.Cos(geom.Rad(deg))}
}

type recorder struct {
	changes []float64
	ends    []float64
}

func newController(t *testing.T, opts ...Option) (*Controller, *testutil.ManualScheduler, *recorder) {
	t.Helper()
	sched := testutil.NewManualScheduler(0)
	rec := &recorder{}
	opts = append(opts,
		OnChange(func(a float64) { rec.changes = append(rec.changes, a) }),
		OnEnd(func(a float64) { rec.ends = append(rec.ends, a) }),
	)
	return New(sched, opts...), sched, rec
}

func TestController_TinyDragSettlesImmediately(t *testing.T) {
	c, sched, rec := newController(t, WithAngle(30))

	c.Start(at(0), origin)
	c.Move(at(0.01))
	c.End()

	assert.Equal(t, Idle, c.State())
	assert.Equal(t, 0, sched.Pending(), "no coasting frame requested")
	require.Len(t, rec.ends, 1)
	assert.InDelta(t, 30.01, rec.ends[0], 1e-9)

	sched.StepN(10)
	assert.Len(t, rec.ends, 1)
}

func TestController_StartEndWithoutMove(t *testing.T) {
	c, _, rec := newController(t, WithAngle(12))

	c.Start(at(45), origin)
	c.End()

	require.Len(t, rec.ends, 1)
	assert.Equal(t, 12.0, rec.ends[0])
	assert.Empty(t, rec.changes)
}

func TestController_DragAccumulatesAcrossWrap(t *testing.T) {
	c, _, _ := newController(t)

	c.Start(at(170), origin)
	c.Move(at(-170))
	assert.InDelta(t, 20.0, c.Angle(), 1e-9)
	assert.InDelta(t, 20.0, c.Velocity(), 1e-9)

	c.Move(at(-160))
	assert.InDelta(t, 30.0, c.Angle(), 1e-9)
}

func TestController_CoastingDecays(t *testing.T) {
	c, sched, rec := newController(t)

	c.Start(at(0), origin)
	c.Move(at(10))
	c.End()
	assert.Equal(t, Coasting, c.State())

	frames := sched.RunUntilIdle(1000)

	// 10 * 0.95^n drops under 0.02 at n = 122
	assert.Equal(t, 122, frames)
	assert.Equal(t, Idle, c.State())
	require.Len(t, rec.ends, 1)

	expected := 10 + 10*0.95*(1-math.Pow(0.95, 122))/0.05
	assert.InDelta(t, expected, rec.ends[0], 1e-6)
	assert.InDelta(t, expected, c.Angle(), 1e-6)
	assert.Len(t, rec.changes, 1+122)
}

func TestController_ClampedRange(t *testing.T) {
	c, _, rec := newController(t, WithRange(25, -25))

	c.Start(at(0), origin)
	c.Move(at(20))
	c.Move(at(40))
	assert.Equal(t, 25.0, c.Angle())
	assert.InDelta(t, 40.0, c.RawAngle(), 1e-9)

	// dragging back stays pinned until the accumulator re-enters the range
	c.Move(at(30))
	assert.Equal(t, 25.0, c.Angle())
	c.Move(at(10))
	assert.InDelta(t, 10.0, c.Angle(), 1e-9)

	for _, a := range rec.changes {
		assert.LessOrEqual(t, a, 25.0)
		assert.GreaterOrEqual(t, a, -25.0)
	}
}

func TestController_CancelDuringCoasting(t *testing.T) {
	c, sched, rec := newController(t)

	c.Start(at(0), origin)
	c.Move(at(5))
	c.End()
	sched.StepN(3)

	c.Cancel()
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, 0, sched.Pending())

	sched.StepN(10)
	assert.Empty(t, rec.ends)
	assert.Len(t, rec.changes, 1+3)
}

func TestController_StartDuringCoastingFinishesPrevious(t *testing.T) {
	c, sched, rec := newController(t)

	c.Start(at(0), origin)
	c.Move(at(5))
	c.End()
	sched.StepN(2)
	frozen := c.Angle()

	c.Start(at(90), origin)
	require.Len(t, rec.ends, 1)
	assert.Equal(t, frozen, rec.ends[0])
	assert.Equal(t, Dragging, c.State())
	assert.Equal(t, 0, sched.Pending())

	c.End()
	assert.Len(t, rec.ends, 2)
}

func TestController_StartDuringDragFinishesPrevious(t *testing.T) {
	c, sched, rec := newController(t)

	c.Start(at(0), origin)
	c.Move(at(20))

	c.Start(at(90), origin)
	require.Len(t, rec.ends, 1, "abandoned drag reports its end")
	assert.InDelta(t, 20.0, rec.ends[0], 1e-9)
	assert.Equal(t, Dragging, c.State())
	assert.Equal(t, 0, sched.Pending())

	c.Move(at(95))
	c.End()
	sched.RunUntilIdle(1000)
	require.Len(t, rec.ends, 2)
	assert.Greater(t, rec.ends[1], 25.0)
}

func TestController_SetAngleIgnoredMidGesture(t *testing.T) {
	c, _, _ := newController(t)

	c.SetAngle(7)
	assert.Equal(t, 7.0, c.Angle())

	c.Start(at(0), origin)
	c.SetAngle(99)
	assert.Equal(t, 7.0, c.Angle())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "dragging", Dragging.String())
	assert.Equal(t, "coasting", Coasting.String())
}
