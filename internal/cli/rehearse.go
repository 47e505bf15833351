package cli

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilosayaw/seqsync-sub000/internal/rehearsal"
)

// RehearseOptions holds flags for the rehearse command.
type RehearseOptions struct {
	*RootOptions
	Filter string // scenario filter (glob pattern)
	Golden string // golden directory, empty to skip comparison
	Update bool   // regenerate golden files
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// RehearseResult holds the overall result.
type RehearseResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// Text renders a check mark per scenario and a summary line.
func (r RehearseResult) Text() string {
	if r.Total == 0 {
		return "No scenarios found.\n"
	}
	var b strings.Builder
	for _, s := range r.Scenarios {
		mark := "✓"
		if !s.Pass {
			mark = "✗"
		}
		fmt.Fprintf(&b, "%s %s\n", mark, s.Name)
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "  %s\n", e)
		}
	}
	fmt.Fprintf(&b, "\n%d passed, %d failed, %d total\n", r.Passed, r.Failed, r.Total)
	return b.String()
}

// NewRehearseCommand creates the rehearse command.
func NewRehearseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RehearseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rehearse <scenario.yaml|dir>",
		Short: "Run rehearsal scenarios against a simulated clock",
		Long: `Run YAML rehearsal scenarios.

Each scenario scripts edits, transport actions, poses, taps and drags
against a simulated frame clock, then checks its assertions. With --golden
the event trace of every scenario is compared with <dir>/<name>.golden;
--update rewrites those files instead.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  seqsync rehearse ./scenarios
  seqsync rehearse ./scenarios --filter "record_*"
  seqsync rehearse ./scenarios --golden ./golden --update`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRehearse(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "compare traces with golden files in this directory")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")

	return cmd
}

func runRehearse(opts *RehearseOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	_, logger, err := opts.settings(cmd)
	if err != nil {
		return err
	}

	files, err := findScenarioFiles(path, opts.Filter)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeNotFound, "failed to find scenarios", err, nil)
	}
	if opts.Update && opts.Golden == "" {
		return f.Fail(ExitCommandError, ErrCodeInvalidInput, "--update requires --golden", nil, nil)
	}

	result := RehearseResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, file := range files {
		sr := runScenario(opts, file, logger)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if err := f.Success(result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

func runScenario(opts *RehearseOptions, file string, logger *slog.Logger) ScenarioResult {
	sr := ScenarioResult{Name: filepath.Base(file), File: file}

	scenario, err := rehearsal.LoadScenario(file)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return sr
	}
	sr.Name = scenario.Name

	res, err := rehearsal.RunWithLogger(scenario, logger)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return sr
	}
	logger.Debug("scenario finished", "scenario", scenario.Name, "events", len(res.Trace), "pass", res.Pass)
	sr.Pass = res.Pass
	sr.Errors = append(sr.Errors, res.Errors...)

	if opts.Golden == "" {
		return sr
	}
	if err := checkGolden(opts, scenario.Name, res); err != nil {
		sr.Pass = false
		sr.Errors = append(sr.Errors, err.Error())
	}
	return sr
}

func checkGolden(opts *RehearseOptions, name string, res *rehearsal.Result) error {
	data, err := rehearsal.Snapshot(name, res)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	path := filepath.Join(opts.Golden, name+".golden")

	if opts.Update {
		if err := os.MkdirAll(opts.Golden, 0o755); err != nil {
			return fmt.Errorf("update golden: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("update golden: %w", err)
		}
		return nil
	}

	want, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("golden file: %w", err)
	}
	if !bytes.Equal(want, data) {
		return fmt.Errorf("trace differs from %s", path)
	}
	return nil
}

// findScenarioFiles returns path itself when it is a file, otherwise every
// .yaml/.yml file below it, sorted.
func findScenarioFiles(path, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(p), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, p)
		return nil
	})
	sort.Strings(files)
	return files, err
}
