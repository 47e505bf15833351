package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilosayaw/seqsync-sub000/internal/media"
	"github.com/kilosayaw/seqsync-sub000/internal/seqfile"
	"github.com/kilosayaw/seqsync-sub000/internal/sequence"
)

// NewOptions holds flags for the new command.
type NewOptions struct {
	*RootOptions
	Bars        int
	StepsPerBar int
	BPM         float64
	GridOffset  float64
	Audio       string
	VideoURL    string
	Force       bool
}

// NewResult describes the created sequence file.
type NewResult struct {
	Path          string  `json:"path"`
	Bars          int     `json:"bars"`
	StepsPerBar   int     `json:"steps_per_bar"`
	BPM           float64 `json:"bpm"`
	GridOffset    float64 `json:"grid_offset"`
	AudioFileName string  `json:"audio_file_name,omitempty"`
}

// Text renders a one-line summary.
func (r NewResult) Text() string {
	s := fmt.Sprintf("created %s: %d bar(s) x %d steps at %g BPM", r.Path, r.Bars, r.StepsPerBar, r.BPM)
	if r.AudioFileName != "" {
		s += ", audio " + r.AudioFileName
	}
	return s + "\n"
}

// NewNewCommand creates the new command.
func NewNewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NewOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "new <sequence.json>",
		Short: "Create an empty sequence file",
		Long: `Create an empty sequence file.

Shape and tempo default to the sequence section of the config. With --audio
the file is probed: its tagged BPM (unless --bpm is given) and duration size
the grid, and its name is recorded as the sequence audio file.

Exit codes:
  0 - File created
  2 - Command error (file exists, bad shape, unreadable audio)

Examples:
  seqsync new dance.json --bars 4 --bpm 96
  seqsync new dance.json --audio track.flac`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNew(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Bars, "bars", 0, "number of bars (default from config)")
	cmd.Flags().IntVar(&opts.StepsPerBar, "steps", 0, "steps per bar (default from config)")
	cmd.Flags().Float64Var(&opts.BPM, "bpm", 0, "tempo (default from config or audio tag)")
	cmd.Flags().Float64Var(&opts.GridOffset, "offset", 0, "grid offset in seconds")
	cmd.Flags().StringVar(&opts.Audio, "audio", "", "size the sequence from an audio file")
	cmd.Flags().StringVar(&opts.VideoURL, "video", "", "video reference stored with the sequence")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "overwrite an existing file")

	return cmd
}

func runNew(opts *NewOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	cfg, logger, err := opts.settings(cmd)
	if err != nil {
		return err
	}

	if !opts.Force && fileExists(path) {
		return f.Fail(ExitCommandError, ErrCodeInvalidInput, fmt.Sprintf("%s already exists (use --force)", path), nil, nil)
	}

	bars, steps, bpm := cfg.Sequence.Bars, cfg.Sequence.StepsPerBar, cfg.Sequence.BPM
	if opts.Bars != 0 {
		bars = opts.Bars
	}
	if opts.StepsPerBar != 0 {
		steps = opts.StepsPerBar
	}

	var seq *sequence.Sequence
	if opts.Audio != "" {
		info, err := media.NewProber(logger).Probe(opts.Audio)
		if err != nil {
			code := ErrCodeNotFound
			if errors.Is(err, media.ErrUnsupportedFormat) {
				code = ErrCodeUnsupported
			}
			return f.Fail(ExitCommandError, code, "failed to probe audio", err, nil)
		}
		if opts.BPM != 0 {
			info.BPM = opts.BPM
		}
		f.VerboseLog("Probed %s: %s, tagged BPM %g", info.Path, info.Duration, info.BPM)
		seq, err = info.NewSequence(bpm, steps)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid sequence shape", err, nil)
		}
	} else {
		if opts.BPM != 0 {
			bpm = opts.BPM
		}
		seq, err = sequence.NewSequence(bars, steps, bpm)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid sequence shape", err, nil)
		}
	}
	seq.GridOffset = opts.GridOffset
	seq.VideoURL = opts.VideoURL
	if err := seq.Validate(); err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid sequence", err, nil)
	}

	if err := seqfile.WriteFile(path, seq); err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to write sequence", err, nil)
	}
	logger.Debug("sequence created", "path", path, "beats", seq.Len())

	return f.Success(NewResult{
		Path:          path,
		Bars:          seq.Bars(),
		StepsPerBar:   seq.StepsPerBar,
		BPM:           seq.BPM,
		GridOffset:    seq.GridOffset,
		AudioFileName: seq.AudioFileName,
	})
}
