package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilosayaw/seqsync-sub000/internal/frame"
	"github.com/kilosayaw/seqsync-sub000/internal/notation"
	"github.com/kilosayaw/seqsync-sub000/internal/playback"
	"github.com/kilosayaw/seqsync-sub000/internal/seqfile"
	"github.com/kilosayaw/seqsync-sub000/internal/sequence"
	"github.com/kilosayaw/seqsync-sub000/internal/testutil"
)

// PlayOptions holds flags for the play command.
type PlayOptions struct {
	*RootOptions
	Loop     bool
	Simulate bool
	Duration time.Duration
	Poses    string
	Output   string
}

// BeatLine is one fired beat.
type BeatLine struct {
	Index     int     `json:"index"`
	Address   string  `json:"address"`
	ElapsedMS float64 `json:"elapsed_ms"`
	Recording bool    `json:"recording,omitempty"`
}

func (b BeatLine) String() string {
	s := fmt.Sprintf("beat %d\t%s\t%.0fms", b.Index, b.Address, b.ElapsedMS)
	if b.Recording {
		s += "\trec"
	}
	return s
}

// PlayResult summarizes a playback run.
type PlayResult struct {
	File      string     `json:"file"`
	BPM       float64    `json:"bpm"`
	Beats     []BeatLine `json:"beats"`
	ElapsedMS float64    `json:"elapsed_ms"`
	Recorded  bool       `json:"recorded"`
	Output    string     `json:"output,omitempty"`
	Session   string     `json:"session,omitempty"`
	Warnings  []string   `json:"warnings,omitempty"`

	streamed bool
}

// Text renders the beats (unless already streamed) and a summary.
func (r PlayResult) Text() string {
	var b strings.Builder
	if !r.streamed {
		for _, l := range r.Beats {
			b.WriteString(l.String())
			b.WriteByte('\n')
		}
	}
	fmt.Fprintf(&b, "%d beat(s) in %.0fms at %g BPM\n", len(r.Beats), r.ElapsedMS, r.BPM)
	if r.Recorded {
		fmt.Fprintf(&b, "take written to %s\n", r.Output)
	}
	if r.Session != "" {
		fmt.Fprintf(&b, "journal session %s\n", r.Session)
	}
	return b.String()
}

// NewPlayCommand creates the play command.
func NewPlayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "play <sequence.json>",
		Short: "Play a sequence against the frame clock",
		Long: `Play a sequence and print every beat boundary as it is crossed.

Playback runs on a real-time frame loop until the last beat, --duration, or
an interrupt. With --simulate frames are stepped on a simulated clock and
the run finishes immediately.

With --poses the run records: the file holds one pose per line in the
classify input format plus "grounding": {"L": "L123T12345"}, and each
beat consumes the next pose. The take is written to --output (default: the
input file) as a single history entry.

Exit codes:
  0 - Playback finished
  2 - Command error (unreadable sequence or poses, write failure)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Loop, "loop", false, "wrap to the first beat (default from config)")
	cmd.Flags().BoolVar(&opts.Simulate, "simulate", false, "step a simulated clock instead of real time")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this much playback time")
	cmd.Flags().StringVar(&opts.Poses, "poses", "", "record poses from a JSON lines file")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "where to write the recorded sequence")

	return cmd
}

func runPlay(opts *PlayOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	cfg, logger, err := opts.settings(cmd)
	if err != nil {
		return err
	}

	seq, warnings, err := readSequence(path, cfg, logger)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeNotFound, "failed to load sequence", err, nil)
	}
	store, err := sequence.FromSequence(seq, storeOptions(cfg, logger)...)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidFile, "invalid sequence", err, nil)
	}

	var poses *poseFeed
	if opts.Poses != "" {
		if poses, err = loadPoses(opts.Poses); err != nil {
			return f.Fail(ExitCommandError, ErrCodeInvalidInput, "failed to load poses", err, nil)
		}
		f.VerboseLog("Loaded %d pose(s) from %s", len(poses.poses), opts.Poses)
	}

	classifier, err := cfg.NewClassifier()
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid classifier config", err, nil)
	}
	loop := cfg.Playback.Loop
	if cmd.Flags().Changed("loop") {
		loop = opts.Loop
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := startJournal(ctx, cfg, logger, path, store)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeJournal, "failed to open journal", err, nil)
	}

	res := PlayResult{
		File:     path,
		BPM:      seq.BPM,
		Beats:    []BeatLine{},
		Session:  session.SessionID(),
		Warnings: warnings,
		streamed: opts.Format != "json",
	}
	onBeat := func(ev playback.BeatEvent) {
		line := BeatLine{
			Index:     ev.Index,
			Address:   ev.Address.String(),
			ElapsedMS: float64(ev.Elapsed) / float64(time.Millisecond),
			Recording: ev.Recording,
		}
		res.Beats = append(res.Beats, line)
		if res.streamed {
			fmt.Fprintln(f.Writer, line.String())
		}
	}

	clockOpts := []playback.Option{
		playback.WithLoop(loop),
		playback.WithClassifier(classifier),
		playback.WithMinScore(cfg.Playback.RecordMinScore),
		playback.WithLogger(logger),
	}
	if poses != nil {
		clockOpts = append(clockOpts, playback.WithPoseSource(poses))
	}

	limit := opts.Duration
	if limit == 0 && (loop || opts.Simulate) {
		// one full pass; a non-looping clock stops on its own
		limit = passLength(seq)
		if !loop {
			limit += time.Second
		}
	}

	var elapsed time.Duration
	if opts.Simulate {
		elapsed, err = playSimulated(cfg.FrameInterval(), store, clockOpts, poses != nil, limit, onBeat)
	} else {
		elapsed, err = playRealtime(ctx, cfg.FrameInterval(), store, clockOpts, poses != nil, limit, onBeat, logger)
	}
	if closeErr := session.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "playback failed", err, nil)
	}
	res.ElapsedMS = float64(elapsed) / float64(time.Millisecond)

	if poses != nil {
		out := opts.Output
		if out == "" {
			out = path
		}
		if err := seqfile.WriteFile(out, store.Current()); err != nil {
			return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to write sequence", err, nil)
		}
		res.Recorded = true
		res.Output = out
	}
	return f.Success(res)
}

// passLength is the playback time of one pass over the grid.
func passLength(seq *sequence.Sequence) time.Duration {
	secs := seq.GridOffset + float64(seq.Len())*seq.BeatDuration()
	return time.Duration(secs * float64(time.Second))
}

func startClock(clock *playback.Clock, record bool) error {
	if record {
		return clock.Record()
	}
	clock.Play()
	return nil
}

func playSimulated(interval time.Duration, store *sequence.Store, opts []playback.Option, record bool, limit time.Duration, onBeat func(playback.BeatEvent)) (time.Duration, error) {
	sched := testutil.NewManualScheduler(interval)
	clock := playback.NewClock(sched, store, opts...)
	clock.Subscribe(onBeat)

	if err := startClock(clock, record); err != nil {
		return 0, err
	}
	// a frame is delivered only when it falls before the limit, as in real time
	for clock.State() != playback.Stopped && sched.Now()+sched.Interval < limit {
		sched.Step()
	}
	elapsed := clock.Elapsed()
	clock.Stop()
	return elapsed, nil
}

func playRealtime(ctx context.Context, interval time.Duration, store *sequence.Store, opts []playback.Option, record bool, limit time.Duration, onBeat func(playback.BeatEvent), logger *slog.Logger) (time.Duration, error) {
	if limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loop := frame.NewLoop(frame.WithInterval(interval), frame.WithLogger(logger))
	clock := playback.NewClock(loop, store, opts...)
	clock.Subscribe(onBeat)

	var startErr error
	loop.Post(func() {
		if startErr = startClock(clock, record); startErr != nil {
			cancel()
			return
		}
		// end the loop once the clock stops at the last beat
		var watch frame.Callback
		watch = func(time.Duration) {
			if clock.State() == playback.Stopped {
				cancel()
				return
			}
			loop.Request(watch)
		}
		loop.Request(watch)
	})

	err := loop.Run(ctx)
	logger.Debug("frame loop exited", "reason", err)
	elapsed := clock.Elapsed()
	clock.Stop()
	return elapsed, startErr
}

// poseFeed hands out one pose per recorded beat.
type poseFeed struct {
	poses []playback.Pose
	next  int
}

// Pose implements playback.PoseSource.
func (p *poseFeed) Pose() (playback.Pose, bool) {
	if p.next >= len(p.poses) {
		return playback.Pose{}, false
	}
	pose := p.poses[p.next]
	p.next++
	return pose, true
}

func loadPoses(path string) (*poseFeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	feed := &poseFeed{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var in PoseInput
		if err := json.Unmarshal(text, &in); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		pose, err := in.Pose()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		feed.poses = append(feed.poses, pose)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return feed, nil
}

// Pose converts the input into a live pose.
func (in PoseInput) Pose() (playback.Pose, error) {
	p := playback.Pose{Joints: in.Joints, FaceVisible: in.FaceVisible}
	if len(in.Grounding) > 0 {
		p.Grounding = make(map[notation.Side]string, len(in.Grounding))
		for k, v := range in.Grounding {
			side, err := notation.ParseSide(k)
			if err != nil {
				return playback.Pose{}, err
			}
			p.Grounding[side] = v
		}
	}
	return p, nil
}
