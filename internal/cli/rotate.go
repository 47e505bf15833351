package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilosayaw/seqsync-sub000/internal/biomech"
	"github.com/kilosayaw/seqsync-sub000/internal/geom"
	"github.com/kilosayaw/seqsync-sub000/internal/notation"
	"github.com/kilosayaw/seqsync-sub000/internal/rotation"
	"github.com/kilosayaw/seqsync-sub000/internal/seqfile"
	"github.com/kilosayaw/seqsync-sub000/internal/sequence"
	"github.com/kilosayaw/seqsync-sub000/internal/testutil"
)

// maxCoastFrames bounds the simulated coasting phase.
const maxCoastFrames = 10000

// RotateOptions holds flags for the rotate command.
type RotateOptions struct {
	*RootOptions
	Points   []string
	KneeZone bool
	Output   string
}

// RotateResult is the settled rotation of one joint.
type RotateResult struct {
	Address string      `json:"address"`
	Joint   string      `json:"joint"`
	From    float64     `json:"from"`
	Angle   float64     `json:"angle"`
	Frames  int         `json:"coast_frames"`
	Range   *[2]float64 `json:"range,omitempty"`
	Output  string      `json:"output"`
	Session string      `json:"session,omitempty"`
}

// Text renders a one-line summary.
func (r RotateResult) Text() string {
	s := fmt.Sprintf("%s %s rotation %.3f -> %.3f", r.Address, r.Joint, r.From, r.Angle)
	if r.Frames > 0 {
		s += fmt.Sprintf(" after %d coasting frame(s)", r.Frames)
	}
	if r.Range != nil {
		s += fmt.Sprintf(" within [%.1f, %.1f]", r.Range[0], r.Range[1])
	}
	return s + "\n"
}

// NewRotateCommand creates the rotate command.
func NewRotateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RotateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rotate <sequence.json> <bar:beat> <joint>",
		Short: "Apply a drag gesture to a joint rotation",
		Long: `Apply a pointer drag around the origin to a joint's rotation.

Each --point is an "x,y" pointer position; the first starts the gesture and
the last releases it. A fast release keeps coasting with the configured
friction until it settles, and the settled angle is written to the beat.
With --knee-zone a knee's rotation is kept inside the safe zone derived from
the same beat's hip and foot rotations.

Exit codes:
  0 - Rotation written
  1 - The edit was rejected (bad address or joint)
  2 - Command error (bad point, unreadable file)

Examples:
  seqsync rotate dance.json 0:3 LK --point 0,1 --point 1,0 --knee-zone`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRotate(opts, args[0], args[1], args[2], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Points, "point", nil, "pointer position x,y (repeat, at least two)")
	cmd.Flags().BoolVar(&opts.KneeZone, "knee-zone", false, "clamp knee rotation to its safe zone")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "where to write the sequence (default: in place)")

	return cmd
}

func runRotate(opts *RotateOptions, path, at, joint string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	cfg, logger, err := opts.settings(cmd)
	if err != nil {
		return err
	}

	points, err := parsePoints(opts.Points)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid --point", err, nil)
	}
	addr, err := sequence.ParseAddress(at)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid address", err, nil)
	}

	seq, _, err := readSequence(path, cfg, logger)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeNotFound, "failed to load sequence", err, nil)
	}
	store, err := sequence.FromSequence(seq, storeOptions(cfg, logger)...)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidFile, "invalid sequence", err, nil)
	}
	beat, err := store.Current().At(addr)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeInvalidInput, "rotation rejected", err, nil)
	}

	res := RotateResult{Address: addr.String(), Joint: joint, From: beat.Joints[joint].Rotation}
	ctlOpts := []rotation.Option{
		rotation.WithAngle(res.From),
		rotation.WithFriction(cfg.Rotation.Friction),
		rotation.WithMinVelocity(cfg.Rotation.MinVelocity),
		rotation.WithLogger(logger),
	}
	if opts.KneeZone {
		side, ok := kneeSide(joint)
		if !ok {
			return f.Fail(ExitCommandError, ErrCodeInvalidInput, fmt.Sprintf("--knee-zone needs a knee joint, got %s", joint), nil, nil)
		}
		zone, err := store.Current().KneeZone(addr, side, false)
		if err != nil {
			return f.Fail(ExitFailure, ErrCodeInvalidInput, "rotation rejected", err, nil)
		}
		res.Range = &[2]float64{zone.Min, zone.Max}
		ctlOpts = append(ctlOpts, rotation.WithRange(zone.Min, zone.Max))
	}

	var settled *float64
	ctlOpts = append(ctlOpts, rotation.OnEnd(func(angle float64) { settled = &angle }))

	sched := testutil.NewManualScheduler(cfg.FrameInterval())
	ctl := rotation.New(sched, ctlOpts...)
	ctl.Start(points[0], geom.Vec2{})
	for _, p := range points[1:] {
		ctl.Move(p)
	}
	ctl.End()
	res.Frames = sched.RunUntilIdle(maxCoastFrames)
	if settled == nil {
		ctl.Cancel()
		return f.Fail(ExitCommandError, ErrCodeGeneric, "rotation did not settle", nil, nil)
	}
	res.Angle = *settled

	session, err := startJournal(commandContext(cmd), cfg, logger, path, store)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeJournal, "failed to open journal", err, nil)
	}
	err = store.SetJointField(addr, joint, sequence.JointUpdate{Rotation: &res.Angle})
	if closeErr := session.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeInvalidInput, "rotation rejected", err, nil)
	}

	res.Output = opts.Output
	if res.Output == "" {
		res.Output = path
	}
	if err := seqfile.WriteFile(res.Output, store.Current()); err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to write sequence", err, nil)
	}
	res.Session = session.SessionID()
	return f.Success(res)
}

func kneeSide(joint string) (notation.Side, bool) {
	switch joint {
	case biomech.LeftKnee:
		return notation.Left, true
	case biomech.RightKnee:
		return notation.Right, true
	}
	return 0, false
}

func parsePoints(raw []string) ([]geom.Vec2, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("need at least two points, got %d", len(raw))
	}
	out := make([]geom.Vec2, 0, len(raw))
	for _, r := range raw {
		xs, ys, ok := strings.Cut(r, ",")
		if !ok {
			return nil, fmt.Errorf("point %q is not x,y", r)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
		if err != nil {
			return nil, fmt.Errorf("point %q: %w", r, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
		if err != nil {
			return nil, fmt.Errorf("point %q: %w", r, err)
		}
		out = append(out, geom.Vec2{X: x, Y: y})
	}
	return out, nil
}
