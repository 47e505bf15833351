package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilosayaw/seqsync-sub000/internal/playback"
	"github.com/kilosayaw/seqsync-sub000/internal/seqfile"
	"github.com/kilosayaw/seqsync-sub000/internal/sequence"
)

// TapOptions holds flags for the tap command.
type TapOptions struct {
	*RootOptions
	Into string
}

// TapLine is the estimate after one tap; BPM is nil while no estimate is
// accepted.
type TapLine struct {
	AtMS float64  `json:"at_ms"`
	BPM  *float64 `json:"bpm"`
}

// TapResult is the tap tempo outcome.
type TapResult struct {
	Taps    []TapLine `json:"taps"`
	BPM     float64   `json:"bpm"`
	Applied string    `json:"applied,omitempty"`
	Session string    `json:"session,omitempty"`
}

// Text renders one tap per line and the final estimate.
func (r TapResult) Text() string {
	var b strings.Builder
	for _, t := range r.Taps {
		if t.BPM == nil {
			fmt.Fprintf(&b, "%8.0fms\t-\n", t.AtMS)
		} else {
			fmt.Fprintf(&b, "%8.0fms\t%.2f\n", t.AtMS, *t.BPM)
		}
	}
	if r.BPM == 0 {
		b.WriteString("no tempo estimate\n")
		return b.String()
	}
	fmt.Fprintf(&b, "bpm %.2f\n", r.BPM)
	if r.Applied != "" {
		fmt.Fprintf(&b, "written to %s\n", r.Applied)
	}
	return b.String()
}

// NewTapCommand creates the tap command.
func NewTapCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TapOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tap <ms>...",
		Short: "Estimate a tempo from tap timestamps",
		Long: fmt.Sprintf(`Estimate a tempo from tap timestamps in milliseconds.

The estimate averages the last %d taps. A gap longer than %s starts over,
and estimates outside %g..%g BPM are ignored. With --into the final estimate
is written to a sequence file.

Exit codes:
  0 - Estimate computed (or no estimate without --into)
  1 - --into given but the taps produced no estimate
  2 - Command error (bad timestamp, unreadable file)

Examples:
  seqsync tap 0 400 800 1200
  seqsync tap 0 500 1000 --into dance.json`, playback.TapWindow, playback.TapReset, playback.TapMinBPM, playback.TapMaxBPM),
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTap(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Into, "into", "", "write the estimate into this sequence file")

	return cmd
}

func runTap(opts *TapOptions, args []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	cfg, logger, err := opts.settings(cmd)
	if err != nil {
		return err
	}

	var tempo playback.TapTempo
	res := TapResult{Taps: make([]TapLine, 0, len(args))}
	for _, arg := range args {
		ms, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeInvalidInput, fmt.Sprintf("invalid timestamp %q", arg), err, nil)
		}
		line := TapLine{AtMS: ms}
		if bpm, ok := tempo.Tap(time.Duration(ms * float64(time.Millisecond))); ok {
			line.BPM = &bpm
			res.BPM = bpm
		}
		res.Taps = append(res.Taps, line)
	}

	if opts.Into == "" {
		return f.Success(res)
	}
	if res.BPM == 0 {
		return f.Fail(ExitFailure, ErrCodeInvalidInput, "taps produced no tempo estimate", nil, nil)
	}

	seq, _, err := readSequence(opts.Into, cfg, logger)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeNotFound, "failed to load sequence", err, nil)
	}
	store, err := sequence.FromSequence(seq, storeOptions(cfg, logger)...)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidFile, "invalid sequence", err, nil)
	}
	session, err := startJournal(commandContext(cmd), cfg, logger, opts.Into, store)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeJournal, "failed to open journal", err, nil)
	}
	_, err = store.SetBPM(res.BPM)
	if closeErr := session.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to set tempo", err, nil)
	}
	if err := seqfile.WriteFile(opts.Into, store.Current()); err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to write sequence", err, nil)
	}
	res.Applied = opts.Into
	res.Session = session.SessionID()
	return f.Success(res)
}
