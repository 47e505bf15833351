package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilosayaw/seqsync-sub000/internal/seqfile"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Watch   bool
	Lenient bool
}

// ValidationResult holds validation results.
type ValidationResult struct {
	File     string   `json:"file"`
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Text renders the verdict and every finding.
func (r ValidationResult) Text() string {
	var b strings.Builder
	if r.Valid {
		fmt.Fprintf(&b, "✓ %s is valid\n", r.File)
	} else {
		fmt.Fprintf(&b, "✗ %s has %d problem(s)\n", r.File, len(r.Problems))
	}
	for _, p := range r.Problems {
		fmt.Fprintf(&b, "  %s\n", p)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "  warning: %s\n", w)
	}
	return b.String()
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <sequence.json>",
		Short: "Validate a sequence file",
		Long: `Validate a sequence file against the sequence schema.

Strict validation checks field types, the bar/beat grid shape, joint and
grounding records and sound limits. With --lenient the file is instead
loaded the way playback loads it, and every repair is reported as a
warning. With --watch the file is revalidated on every save until
interrupted.

Exit codes:
  0 - File is valid (or --watch was interrupted)
  1 - File is invalid
  2 - Command error (file not found, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "revalidate whenever the file changes")
	cmd.Flags().BoolVar(&opts.Lenient, "lenient", false, "load leniently and report repairs")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	cfg, logger, err := opts.settings(cmd)
	if err != nil {
		return err
	}

	if !fileExists(path) {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("file not found: %s", path), nil, nil)
	}

	if opts.Lenient {
		_, warnings, err := readSequence(path, cfg, logger)
		if err != nil {
			res := ValidationResult{File: path, Problems: []string{err.Error()}}
			if outErr := f.Success(res); outErr != nil {
				return outErr
			}
			return NewExitError(ExitFailure, "sequence file is invalid")
		}
		return f.Success(ValidationResult{File: path, Valid: true, Warnings: warnings})
	}

	v, err := seqfile.NewValidator()
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to load schema", err, nil)
	}

	if opts.Watch {
		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()
		err := seqfile.Watch(ctx, path, v, logger, func(err error) {
			if outErr := f.Success(validationResult(path, err)); outErr != nil {
				logger.Error("write validation result", "error", outErr)
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return f.Fail(ExitCommandError, ErrCodeGeneric, "watch failed", err, nil)
		}
		return nil
	}

	err = v.ValidateFile(path)
	var ve *seqfile.ValidationError
	if err != nil && !errors.As(err, &ve) {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to read sequence", err, nil)
	}
	res := validationResult(path, err)
	if outErr := f.Success(res); outErr != nil {
		return outErr
	}
	if !res.Valid {
		return NewExitError(ExitFailure, "sequence file is invalid")
	}
	return nil
}

func validationResult(path string, err error) ValidationResult {
	res := ValidationResult{File: path, Valid: err == nil}
	var ve *seqfile.ValidationError
	switch {
	case errors.As(err, &ve):
		for _, p := range ve.Problems {
			res.Problems = append(res.Problems, p.String())
		}
	case err != nil:
		res.Problems = []string{err.Error()}
	}
	return res
}

// commandContext returns the command context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
