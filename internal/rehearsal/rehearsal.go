// Package rehearsal runs scripted sessions against the real engine: a
// sequence store, the playback clock, tap tempo and the rotation
// controller, all driven by a manual frame scheduler.
//
// Scenarios are YAML files. A run produces a trace of every edit, beat
// boundary, transport change, tap and settled rotation, which tests compare
// against golden files. Nothing depends on wall-clock time, so a scenario
// always produces the same trace.
package rehearsal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kilosayaw/seqsync-sub000/internal/biomech"
	"github.com/kilosayaw/seqsync-sub000/internal/geom"
	"github.com/kilosayaw/seqsync-sub000/internal/notation"
	"github.com/kilosayaw/seqsync-sub000/internal/playback"
	"github.com/kilosayaw/seqsync-sub000/internal/rotation"
	"github.com/kilosayaw/seqsync-sub000/internal/sequence"
	"github.com/kilosayaw/seqsync-sub000/internal/testutil"
)

// DefaultFrameMS is the simulated frame interval when a scenario sets none.
const DefaultFrameMS = 10

type runner struct {
	store  *sequence.Store
	sched  *testutil.ManualScheduler
	clock  *playback.Clock
	tapper playback.TapTempo
	logger *slog.Logger

	pose      *playback.Pose
	step      int
	lastState playback.State
	result    *Result
}

// Run executes a scenario and evaluates its assertions. Edits the store
// rejects are traced, not returned; an error means the scenario itself
// could not run.
func Run(s *Scenario) (*Result, error) {
	return RunWithLogger(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with engine logging sent to logger.
func RunWithLogger(s *Scenario, logger *slog.Logger) (*Result, error) {
	seq, err := sequence.NewSequence(s.Sequence.Bars, s.Sequence.StepsPerBar, s.Sequence.BPM)
	if err != nil {
		return nil, fmt.Errorf("failed to create sequence: %w", err)
	}
	seq.GridOffset = s.Sequence.GridOffset
	store, err := sequence.FromSequence(seq, sequence.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	frameMS := s.Sequence.FrameMS
	if frameMS == 0 {
		frameMS = DefaultFrameMS
	}

	r := &runner{
		store:  store,
		sched:  testutil.NewManualScheduler(time.Duration(frameMS) * time.Millisecond),
		logger: logger,
		result: NewResult(),
	}
	r.clock = playback.NewClock(r.sched, store,
		playback.WithLoop(s.Sequence.Loop),
		playback.WithPoseSource(playback.PoseFunc(r.livePose)),
		playback.WithLogger(logger),
	)

	store.Subscribe(r.onEdit)
	r.clock.Subscribe(r.onBeat)

	for i, step := range s.Steps {
		r.step = i + 1
		if err := r.exec(step); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		r.traceState()
	}

	res := r.result
	res.Sequence = store.Current()
	res.HistoryLen = store.HistoryLen()
	res.State = r.clock.State().String()
	for _, msg := range EvaluateAssertions(res, s.Assertions) {
		res.AddError(msg)
	}
	return res, nil
}

func (r *runner) exec(s Step) error {
	switch {
	case s.Edit != nil:
		return r.edit(s.Edit)
	case s.Sound != nil:
		addr, err := sequence.ParseAddress(s.Sound.At)
		if err != nil {
			return err
		}
		if s.Sound.Add != "" {
			_, err = r.store.AddSound(addr, s.Sound.Add)
			return r.rejected(sequence.OpAddSound, addr.String(), err)
		}
		_, err = r.store.RemoveSound(addr, s.Sound.Remove)
		return r.rejected(sequence.OpRemoveSound, addr.String(), err)
	case s.Resize != nil:
		_, err := r.store.ResizeBars(*s.Resize)
		return r.rejected(sequence.OpResize, "", err)
	case s.BPM != nil:
		_, err := r.store.SetBPM(*s.BPM)
		return r.rejected(sequence.OpSetBPM, "", err)
	case s.Undo != nil:
		for i := 0; i < *s.Undo; i++ {
			r.store.Undo()
		}
	case s.Redo != nil:
		for i := 0; i < *s.Redo; i++ {
			r.store.Redo()
		}
	case s.Play:
		r.clock.Play()
	case s.Record:
		if err := r.clock.Record(); err != nil {
			r.trace(TraceEvent{Kind: KindRejected, Op: string(sequence.OpTake), Value: err.Error()})
		}
	case s.StopRecording:
		_, err := r.clock.StopRecording()
		return r.rejected(sequence.OpTake, "", err)
	case s.Stop:
		r.clock.Stop()
	case s.Frames != nil:
		r.sched.StepN(*s.Frames)
	case s.Advance != nil:
		r.sched.Advance(time.Duration(*s.Advance) * time.Millisecond)
	case s.Pose != nil:
		return r.setPose(s.Pose)
	case s.Tap != nil:
		if *s.Tap > 0 {
			r.sched.Advance(time.Duration(*s.Tap) * time.Millisecond)
		}
		value := "ignored"
		if bpm, ok := r.clock.Tap(&r.tapper); ok {
			value = fmt.Sprintf("%.2f", bpm)
		}
		r.trace(TraceEvent{Kind: KindTap, Value: value})
	case s.Drag != nil:
		return r.drag(s.Drag)
	}
	return nil
}

func (r *runner) edit(e *EditStep) error {
	addr, err := sequence.ParseAddress(e.At)
	if err != nil {
		return err
	}
	u := sequence.JointUpdate{
		Score:     e.Score,
		Rotation:  e.Rotation,
		Grounding: e.Grounding,
		Pivot:     e.Pivot,
	}
	if e.Vector != nil {
		u.Vector = &geom.Vec3{X: e.Vector[0], Y: e.Vector[1], Z: e.Vector[2]}
	}
	if e.Orientation != nil {
		o := biomech.Orientation(*e.Orientation)
		u.Orientation = &o
	}
	if e.Role != nil {
		role := sequence.Role(*e.Role)
		u.Role = &role
	}
	err = r.store.SetJointField(addr, e.Joint, u)
	return r.rejected(sequence.OpSetJoint, addr.String(), err)
}

func (r *runner) setPose(p *PoseStep) error {
	pose := playback.Pose{
		Joints:      make(biomech.Joints, len(p.Joints)),
		Grounding:   make(map[notation.Side]string, len(p.Grounding)),
		FaceVisible: p.FaceVisible,
	}
	for id, j := range p.Joints {
		pose.Joints[id] = biomech.Keypoint{
			Vector: geom.Vec3{X: j.Vector[0], Y: j.Vector[1], Z: j.Vector[2]},
			Score:  j.Score,
		}
	}
	for s, g := range p.Grounding {
		side, err := notation.ParseSide(s)
		if err != nil {
			return fmt.Errorf("pose grounding: %w", err)
		}
		pose.Grounding[side] = g
	}
	r.pose = &pose
	return nil
}

func (r *runner) livePose() (playback.Pose, bool) {
	if r.pose == nil {
		return playback.Pose{}, false
	}
	return *r.pose, true
}

// drag runs one gesture around the origin. The settled angle is written
// when the controller ends, which for a fast release happens during later
// frames.
func (r *runner) drag(d *DragStep) error {
	addr, err := sequence.ParseAddress(d.At)
	if err != nil {
		return err
	}
	beat, err := r.store.Current().At(addr)
	if err != nil {
		return r.rejected(sequence.OpSetJoint, addr.String(), err)
	}

	ctl := rotation.New(r.sched,
		rotation.WithAngle(beat.Joints[d.Joint].Rotation),
		rotation.WithLogger(r.logger),
		rotation.OnEnd(func(angle float64) {
			r.trace(TraceEvent{Kind: KindRotation, Address: addr.String(), Joint: d.Joint, Value: fmt.Sprintf("%.3f", angle)})
			err := r.store.SetJointField(addr, d.Joint, sequence.JointUpdate{Rotation: &angle})
			if err := r.rejected(sequence.OpSetJoint, addr.String(), err); err != nil {
				r.logger.Error("rotation write failed", "error", err)
			}
		}),
	)

	first := d.Points[0]
	ctl.Start(geom.Vec2{X: first[0], Y: first[1]}, geom.Vec2{})
	for _, p := range d.Points[1:] {
		ctl.Move(geom.Vec2{X: p[0], Y: p[1]})
	}
	ctl.End()
	return nil
}

// rejected traces an edit the store refused. Errors that are not store
// validation errors abort the run.
func (r *runner) rejected(op sequence.Op, addr string, err error) error {
	if err == nil {
		return nil
	}
	var serr *sequence.Error
	if !errors.As(err, &serr) {
		return err
	}
	r.trace(TraceEvent{Kind: KindRejected, Op: string(op), Address: addr, Value: string(serr.Code)})
	return nil
}

func (r *runner) onEdit(ev sequence.Event) {
	te := TraceEvent{
		Kind:    KindEdit,
		Op:      string(ev.Edit.Op),
		Joint:   ev.Edit.Joint,
		History: ev.HistoryLen,
		Cursor:  intPtr(ev.Cursor),
	}
	if ev.Edit.Address != nil {
		te.Address = ev.Edit.Address.String()
	}
	r.trace(te)
}

func (r *runner) onBeat(ev playback.BeatEvent) {
	r.trace(TraceEvent{
		Kind:      KindBeat,
		Index:     intPtr(ev.Index),
		Address:   ev.Address.String(),
		ElapsedMS: millis(ev.Elapsed),
		Recording: ev.Recording,
	})
}

func (r *runner) traceState() {
	st := r.clock.State()
	if st == r.lastState {
		return
	}
	r.lastState = st
	r.trace(TraceEvent{Kind: KindState, Value: st.String()})
}

func (r *runner) trace(ev TraceEvent) {
	ev.Step = r.step
	r.result.Trace = append(r.result.Trace, ev)
}
