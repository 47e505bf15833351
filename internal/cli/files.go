package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/kilosayaw/seqsync-sub000/internal/config"
	"github.com/kilosayaw/seqsync-sub000/internal/journal"
	"github.com/kilosayaw/seqsync-sub000/internal/seqfile"
	"github.com/kilosayaw/seqsync-sub000/internal/sequence"
)

// readSequence loads a sequence file leniently, merging it onto the
// configured defaults. Repairs are logged as warnings.
func readSequence(path string, cfg *config.Config, logger *slog.Logger) (*sequence.Sequence, []string, error) {
	d := seqfile.NewDecoder(logger)
	d.Defaults = seqfile.Defaults{
		Bars:        cfg.Sequence.Bars,
		StepsPerBar: cfg.Sequence.StepsPerBar,
		BPM:         cfg.Sequence.BPM,
	}
	return seqfile.ReadFile(path, d)
}

// storeOptions are the store options the config asks for.
func storeOptions(cfg *config.Config, logger *slog.Logger) []sequence.Option {
	opts := []sequence.Option{sequence.WithLogger(logger)}
	if cfg.Sequence.History > 0 {
		opts = append(opts, sequence.WithHistoryLimit(cfg.Sequence.History))
	}
	return opts
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}

// journalSession records the edits of one command run.
type journalSession struct {
	journal  *journal.Journal
	recorder *journal.Recorder
}

// startJournal opens the configured journal and starts a session over
// store. It returns nil when the journal is disabled.
func startJournal(ctx context.Context, cfg *config.Config, logger *slog.Logger, label string, store *sequence.Store) (*journalSession, error) {
	if !cfg.Journal.Enabled {
		return nil, nil
	}
	j, err := journal.Open(cfg.Journal.Path, logger)
	if err != nil {
		return nil, err
	}
	rec, err := journal.NewRecorder(ctx, j, journal.UUIDv7Generator{}, label, store)
	if err != nil {
		j.Close()
		return nil, err
	}
	logger.Debug("journal session started", "session", rec.SessionID(), "path", cfg.Journal.Path)
	return &journalSession{journal: j, recorder: rec}, nil
}

// SessionID returns the session id, empty for a nil session.
func (s *journalSession) SessionID() string {
	if s == nil {
		return ""
	}
	return s.recorder.SessionID()
}

// Close stops recording and closes the database. It reports the first
// append failure.
func (s *journalSession) Close() error {
	if s == nil {
		return nil
	}
	recErr := s.recorder.Close()
	if err := s.journal.Close(); err != nil && recErr == nil {
		return err
	}
	return recErr
}
