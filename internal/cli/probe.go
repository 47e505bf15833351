package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilosayaw/seqsync-sub000/internal/media"
)

// ProbeOptions holds flags for the probe command.
type ProbeOptions struct {
	*RootOptions
	StepsPerBar int
}

// ProbeResult is the media info plus the grid it would need.
type ProbeResult struct {
	media.Info
	DurationSeconds float64 `json:"duration_seconds"`
	SuggestedBars   int     `json:"suggested_bars"`
	SuggestedBPM    float64 `json:"suggested_bpm"`
}

// Text renders one field per line.
func (r ProbeResult) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "file\t%s\n", r.Path)
	fmt.Fprintf(&b, "format\t%s\n", r.Format)
	fmt.Fprintf(&b, "duration\t%s\n", r.Duration)
	if r.Title != "" {
		fmt.Fprintf(&b, "title\t%s\n", r.Title)
	}
	if r.Artist != "" {
		fmt.Fprintf(&b, "artist\t%s\n", r.Artist)
	}
	if r.BPM != 0 {
		fmt.Fprintf(&b, "tagged bpm\t%g\n", r.BPM)
	}
	fmt.Fprintf(&b, "bars\t%d at %g BPM\n", r.SuggestedBars, r.SuggestedBPM)
	return b.String()
}

// NewProbeCommand creates the probe command.
func NewProbeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProbeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "probe <audio>",
		Short: "Report duration, tags and grid size of an audio file",
		Long: `Report the duration, tags and grid size of a WAV, FLAC or MP3 file.

The suggested bar count covers the whole track at the tagged BPM, or at the
configured BPM when the file carries no tempo tag.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.StepsPerBar, "steps", 0, "steps per bar (default from config)")

	return cmd
}

func runProbe(opts *ProbeOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	cfg, logger, err := opts.settings(cmd)
	if err != nil {
		return err
	}

	info, err := media.NewProber(logger).Probe(path)
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedFormat) {
			return f.Fail(ExitCommandError, ErrCodeUnsupported, "unsupported audio file", err, nil)
		}
		return f.Fail(ExitCommandError, ErrCodeNotFound, "failed to probe audio", err, nil)
	}

	steps := cfg.Sequence.StepsPerBar
	if opts.StepsPerBar > 0 {
		steps = opts.StepsPerBar
	}
	bpm := info.BPM
	if bpm == 0 {
		bpm = cfg.Sequence.BPM
	}
	return f.Success(ProbeResult{
		Info:            info,
		DurationSeconds: info.Duration.Seconds(),
		SuggestedBars:   media.BarsFor(info.Duration, bpm, steps),
		SuggestedBPM:    bpm,
	})
}
