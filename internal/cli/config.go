package cli

import (
	"github.com/spf13/cobra"

	"github.com/kilosayaw/seqsync-sub000/internal/config"
)

// ConfigResult is the effective configuration.
type ConfigResult struct {
	File   string         `json:"file,omitempty"`
	Config *config.Config `json:"config"`

	yaml string
}

// Text renders the configuration as YAML.
func (r ConfigResult) Text() string {
	if r.File == "" {
		return "# built-in defaults\n" + r.yaml
	}
	return "# " + r.File + "\n" + r.yaml
}

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the effective configuration.

Settings come from built-in defaults, then seqsync.yaml (or --config), then
SEQSYNC_* environment variables, which may also be set in a .env file.
Nested keys use underscores, e.g. SEQSYNC_SEQUENCE_BPM=96.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(rootOpts, cmd)
		},
	}
	return cmd
}

func runConfig(opts *RootOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	cfg, _, err := opts.settings(cmd)
	if err != nil {
		return err
	}
	data, err := cfg.YAML()
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to render config", err, nil)
	}
	return f.Success(ConfigResult{File: cfg.File, Config: cfg, yaml: string(data)})
}
