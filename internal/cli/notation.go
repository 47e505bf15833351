package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilosayaw/seqsync-sub000/internal/notation"
)

// NotationOptions holds flags for the notation commands.
type NotationOptions struct {
	*RootOptions
	Strict bool
}

// NotationResult describes one grounding state.
type NotationResult struct {
	Side     string   `json:"side"`
	Points   []string `json:"points"`
	Notation string   `json:"notation"`
	Pivot    string   `json:"pivot,omitempty"`
}

// Text renders the notation followed by its points.
func (r NotationResult) Text() string {
	pivot := r.Pivot
	if pivot == "" {
		pivot = "-"
	}
	return fmt.Sprintf("%s\tpoints=%s\tpivot=%s\n", r.Notation, strings.Join(r.Points, ","), pivot)
}

type notationTable []notation.TableRow

func (t notationTable) Text() string { return notation.FormatTable(t) }

// NewNotationCommand creates the notation command group.
func NewNotationCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NotationOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "notation",
		Short: "Encode and decode foot grounding notation",
		Long: `Encode and decode the compact foot grounding notation.

Points are 1 (ball inner), 2 (ball outer), 3 (heel) and T1..T5 (toes).
Notation is <SIDE><sole digits>[T<toe digits>], e.g. L123T12345 for full
contact and L0 for an ungrounded foot.`,
	}

	encode := &cobra.Command{
		Use:   "encode <L|R> [point...]",
		Short: "Encode contact points as notation",
		Example: `  seqsync notation encode L 1 3 T1
  seqsync notation encode R`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotationEncode(opts, args[0], args[1:], cmd)
		},
	}

	decode := &cobra.Command{
		Use:   "decode <L|R> <notation>",
		Short: "Decode notation into contact points",
		Long: `Decode notation into contact points.

By default decoding is lenient: unknown notation decodes to ungrounded
and an empty string to full contact. With --strict malformed notation is
an error (exit code 1).`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotationDecode(opts, args[0], args[1], cmd)
		},
	}
	decode.Flags().BoolVar(&opts.Strict, "strict", false, "reject malformed notation")

	table := &cobra.Command{
		Use:           "table <L|R>",
		Short:         "Print the notation of all 256 contact subsets",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotationTable(opts, args[0], cmd)
		},
	}

	cmd.AddCommand(encode, decode, table)
	return cmd
}

func runNotationEncode(opts *NotationOptions, sideArg string, ids []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	side, err := notation.ParseSide(sideArg)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid side", err, nil)
	}
	set, err := notation.NewPointSet(ids...)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid point", err, nil)
	}
	return f.Success(notationResult(set, side))
}

func runNotationDecode(opts *NotationOptions, sideArg, text string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	side, err := notation.ParseSide(sideArg)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid side", err, nil)
	}

	var set notation.PointSet
	if opts.Strict {
		set, err = notation.Parse(text, side)
		if err != nil {
			return f.Fail(ExitFailure, ErrCodeInvalidInput, "invalid notation", err, nil)
		}
	} else {
		set = notation.Decode(text, side)
	}
	return f.Success(notationResult(set, side))
}

func runNotationTable(opts *NotationOptions, sideArg string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	side, err := notation.ParseSide(sideArg)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid side", err, nil)
	}
	return f.Success(notationTable(notation.Table(side)))
}

func notationResult(set notation.PointSet, side notation.Side) NotationResult {
	return NotationResult{
		Side:     side.String(),
		Points:   set.IDs(),
		Notation: notation.Encode(set, side),
		Pivot:    notation.PivotPoint(set),
	}
}
