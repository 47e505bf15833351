package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilosayaw/seqsync-sub000/internal/journal"
	"github.com/kilosayaw/seqsync-sub000/internal/seqfile"
)

// JournalOptions holds flags for the journal commands.
type JournalOptions struct {
	*RootOptions
	Database string
	Session  string
	Output   string
}

// SessionLine summarizes one journal session.
type SessionLine struct {
	ID          string         `json:"id"`
	Label       string         `json:"label"`
	Bars        int            `json:"bars"`
	StepsPerBar int            `json:"steps_per_bar"`
	BPM         float64        `json:"bpm"`
	Edits       int            `json:"edits"`
	LastSeq     int64          `json:"last_seq"`
	Ops         map[string]int `json:"ops,omitempty"`
}

// SessionList is the journal sessions output.
type SessionList struct {
	Sessions []SessionLine `json:"sessions"`
}

// Text renders one session per line.
func (l SessionList) Text() string {
	if len(l.Sessions) == 0 {
		return "No sessions found in journal.\n"
	}
	var b strings.Builder
	for _, s := range l.Sessions {
		fmt.Fprintf(&b, "%s\t%s\t%dx%d @ %g BPM\t%d edit(s)\n", s.ID, s.Label, s.Bars, s.StepsPerBar, s.BPM, s.Edits)
		ops := make([]string, 0, len(s.Ops))
		for op := range s.Ops {
			ops = append(ops, op)
		}
		sort.Strings(ops)
		for _, op := range ops {
			fmt.Fprintf(&b, "  %s\t%d\n", op, s.Ops[op])
		}
	}
	return b.String()
}

// ReplaySessionResult holds the replay result for a single session.
type ReplaySessionResult struct {
	Session       string  `json:"session"`
	Edits         int     `json:"edits"`
	Bars          int     `json:"bars"`
	BPM           float64 `json:"bpm"`
	Deterministic bool    `json:"deterministic"`
	Error         string  `json:"error,omitempty"`
}

// JournalReplayResult holds the overall replay result.
type JournalReplayResult struct {
	Sessions         []ReplaySessionResult `json:"sessions"`
	Total            int                   `json:"total"`
	AllDeterministic bool                  `json:"all_deterministic"`
	Output           string                `json:"output,omitempty"`
}

// Text renders a verdict per session.
func (r JournalReplayResult) Text() string {
	if r.Total == 0 {
		return "No sessions found in journal.\n"
	}
	var b strings.Builder
	for _, s := range r.Sessions {
		if s.Deterministic {
			fmt.Fprintf(&b, "✓ %s: %d edit(s), %d bar(s) at %g BPM\n", s.Session, s.Edits, s.Bars, s.BPM)
		} else {
			fmt.Fprintf(&b, "✗ %s: %s\n", s.Session, s.Error)
		}
	}
	if r.Output != "" {
		fmt.Fprintf(&b, "replayed sequence written to %s\n", r.Output)
	}
	if r.AllDeterministic {
		b.WriteString("All sessions replay deterministically.\n")
	}
	return b.String()
}

// NewJournalCommand creates the journal command group.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect and replay the edit journal",
		Long: `Inspect and replay the SQLite edit journal.

When the journal is enabled in the config, every command that edits a
sequence records its edits as a session.`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "journal database (default journal.path from config)")

	sessions := &cobra.Command{
		Use:           "sessions",
		Short:         "List journal sessions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournalSessions(opts, cmd)
		},
	}

	replay := &cobra.Command{
		Use:   "replay",
		Short: "Replay sessions and verify determinism",
		Long: `Replay journal sessions and verify determinism.

Each session is rebuilt twice from its base sequence and recorded edits;
both results must encode identically. With --session and --output the
replayed sequence is written as a sequence file.

Exit codes:
  0 - All sessions are deterministic
  1 - A session failed to replay or replays differ
  2 - Command error (database not found, etc.)

Examples:
  seqsync journal replay --db ./seqsync.db
  seqsync journal replay --session 0190... --output restored.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournalReplay(opts, cmd)
		},
	}
	replay.Flags().StringVar(&opts.Session, "session", "", "replay a single session")
	replay.Flags().StringVarP(&opts.Output, "output", "o", "", "write the replayed sequence (requires --session)")

	cmd.AddCommand(sessions, replay)
	return cmd
}

func (o *JournalOptions) open(cmd *cobra.Command, f *OutputFormatter) (*journal.Journal, error) {
	cfg, logger, err := o.settings(cmd)
	if err != nil {
		return nil, err
	}
	path := o.Database
	if path == "" {
		path = cfg.Journal.Path
	}
	if !fileExists(path) {
		return nil, f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("journal not found: %s", path), nil, nil)
	}
	j, err := journal.Open(path, logger)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeJournal, "failed to open journal", err, nil)
	}
	return j, nil
}

func runJournalSessions(opts *JournalOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	j, err := opts.open(cmd, f)
	if err != nil {
		return err
	}
	defer j.Close()

	ctx := commandContext(cmd)
	sessions, err := j.Sessions(ctx)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeJournal, "failed to list sessions", err, nil)
	}

	out := SessionList{Sessions: make([]SessionLine, 0, len(sessions))}
	for _, s := range sessions {
		counts, err := j.OpCounts(ctx, s.ID)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeJournal, "failed to count edits", err, nil)
		}
		line := SessionLine{
			ID:          s.ID,
			Label:       s.Label,
			Bars:        s.Bars,
			StepsPerBar: s.StepsPerBar,
			BPM:         s.BPM,
			Edits:       s.Edits,
			LastSeq:     s.LastSeq,
			Ops:         make(map[string]int, len(counts)),
		}
		for op, n := range counts {
			line.Ops[string(op)] = n
		}
		out.Sessions = append(out.Sessions, line)
	}
	return f.Success(out)
}

func runJournalReplay(opts *JournalOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if opts.Output != "" && opts.Session == "" {
		return f.Fail(ExitCommandError, ErrCodeInvalidInput, "--output requires --session", nil, nil)
	}
	j, err := opts.open(cmd, f)
	if err != nil {
		return err
	}
	defer j.Close()

	ctx := commandContext(cmd)
	var ids []string
	if opts.Session != "" {
		ids = []string{opts.Session}
	} else {
		sessions, err := j.Sessions(ctx)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeJournal, "failed to list sessions", err, nil)
		}
		for _, s := range sessions {
			ids = append(ids, s.ID)
		}
	}

	result := JournalReplayResult{
		Sessions:         make([]ReplaySessionResult, 0, len(ids)),
		Total:            len(ids),
		AllDeterministic: true,
	}
	for _, id := range ids {
		f.VerboseLog("Replaying session %s", id)
		entries, err := j.Entries(ctx, id)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeJournal, fmt.Sprintf("failed to read session %s", id), err, nil)
		}
		sr := ReplaySessionResult{Session: id, Edits: len(entries)}

		seq, err := j.Verify(ctx, id)
		switch {
		case err == nil:
			sr.Deterministic = true
			sr.Bars = seq.Bars()
			sr.BPM = seq.BPM
			if opts.Output != "" {
				if err := seqfile.WriteFile(opts.Output, seq); err != nil {
					return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to write sequence", err, nil)
				}
				result.Output = opts.Output
			}
		case errors.Is(err, journal.ErrNondeterministic):
			sr.Error = err.Error()
		default:
			sr.Error = fmt.Sprintf("replay failed: %v", err)
		}
		if !sr.Deterministic {
			result.AllDeterministic = false
		}
		result.Sessions = append(result.Sessions, sr)
	}

	if err := f.Success(result); err != nil {
		return err
	}
	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "journal replay is not deterministic")
	}
	return nil
}
