// Package cli implements the seqsync command tree.
package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kilosayaw/seqsync-sub000/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Config and Logger are filled by the root command before a subcommand
	// runs. Commands constructed on their own load them lazily.
	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the seqsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "seqsync",
		Short: "seqsync - motion notation and synchronized sequencing",
		Long: `Edit, play back and record step-sequenced movement notation.

A sequence is a grid of bars and beats. Every beat holds per-joint pose
data, foot grounding notation and sound triggers. seqsync encodes and
decodes grounding notation, classifies poses, computes knee safe zones,
plays sequences against a frame clock, and replays edit journals.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if err := opts.load(cmd.ErrOrStderr()); err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ./seqsync.yaml when present)")

	cmd.AddCommand(NewNotationCommand(opts))
	cmd.AddCommand(NewClassifyCommand(opts))
	cmd.AddCommand(NewSafeZoneCommand(opts))
	cmd.AddCommand(NewNewCommand(opts))
	cmd.AddCommand(NewProbeCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewPlayCommand(opts))
	cmd.AddCommand(NewTapCommand(opts))
	cmd.AddCommand(NewRotateCommand(opts))
	cmd.AddCommand(NewRehearseCommand(opts))
	cmd.AddCommand(NewJournalCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

// load reads .env and the config file, then builds the logger.
func (o *RootOptions) load(logOut io.Writer) error {
	if o.Config == nil {
		if err := config.LoadDotEnv(""); err != nil {
			return err
		}
		cfg, err := config.Load(o.ConfigPath)
		if err != nil {
			return err
		}
		o.Config = cfg
	}
	if o.Logger == nil {
		level := o.Config.SlogLevel()
		if o.Verbose {
			level = slog.LevelDebug
		}
		o.Logger = slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))
	}
	return nil
}

// settings returns the effective config and logger for a running command.
func (o *RootOptions) settings(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	if err := o.load(cmd.ErrOrStderr()); err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return o.Config, o.Logger, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
