package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kilosayaw/seqsync-sub000/internal/sequence"
)

// ErrNondeterministic is returned by Verify when two replays of the same
// session disagree.
var ErrNondeterministic = errors.New("replay is not deterministic")

// Replay rebuilds a store by applying entries, in order, to a fresh store
// seeded with base. Rejected edits are reported with their seq: a journal
// only ever holds edits that were accepted when recorded.
func Replay(base *sequence.Sequence, entries []Entry, opts ...sequence.Option) (*sequence.Store, error) {
	store, err := sequence.FromSequence(base.DeepCopy(), opts...)
	if err != nil {
		return nil, fmt.Errorf("replay base: %w", err)
	}
	for _, entry := range entries {
		if _, err := store.Apply(entry.Edit); err != nil {
			return nil, fmt.Errorf("replay seq %d (%s): %w", entry.Seq, entry.Edit.Op, err)
		}
	}
	return store, nil
}

// Replay rebuilds the final sequence of a session.
func (j *Journal) Replay(ctx context.Context, sessionID string) (*sequence.Sequence, error) {
	base, err := j.Base(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	entries, err := j.Entries(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	store, err := Replay(base, entries, sequence.WithLogger(j.logger))
	if err != nil {
		return nil, err
	}
	return store.Current(), nil
}

// Verify replays a session twice and checks both results encode to the
// same bytes.
func (j *Journal) Verify(ctx context.Context, sessionID string) (*sequence.Sequence, error) {
	first, err := j.Replay(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	second, err := j.Replay(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	a, err := json.Marshal(first)
	if err != nil {
		return nil, fmt.Errorf("encode replay: %w", err)
	}
	b, err := json.Marshal(second)
	if err != nil {
		return nil, fmt.Errorf("encode replay: %w", err)
	}
	if !bytes.Equal(a, b) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNondeterministic)
	}
	return first, nil
}
