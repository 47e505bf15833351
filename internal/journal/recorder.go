package journal

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kilosayaw/seqsync-sub000/internal/sequence"
)

// Recorder appends every edit a store commits to a journal session.
//
// Store notifications are synchronous, so the append happens on whatever
// goroutine performed the edit. The first append failure is kept and
// returned from Err and Close; later edits are still attempted.
type Recorder struct {
	journal *Journal
	session string
	clock   *Clock
	ctx     context.Context
	logger  *slog.Logger
	cancel  func()

	mu  sync.Mutex
	err error
}

// NewRecorder starts a session named by gen, seeded with the store's current
// sequence, and subscribes to the store.
func NewRecorder(ctx context.Context, j *Journal, gen SessionIDGenerator, label string, store *sequence.Store) (*Recorder, error) {
	id := gen.Generate()
	if err := j.BeginSession(ctx, id, label, store.Current()); err != nil {
		return nil, err
	}
	return attach(ctx, j, id, NewClock(), store), nil
}

// Resume continues an existing session. The store must already hold the
// session's replayed sequence.
func Resume(ctx context.Context, j *Journal, sessionID string, store *sequence.Store) (*Recorder, error) {
	last, err := j.LastSeq(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return attach(ctx, j, sessionID, NewClockAt(last), store), nil
}

func attach(ctx context.Context, j *Journal, id string, clock *Clock, store *sequence.Store) *Recorder {
	r := &Recorder{
		journal: j,
		session: id,
		clock:   clock,
		ctx:     ctx,
		logger:  j.logger.With("session", id),
	}
	r.cancel = store.Subscribe(r.record)
	return r
}

// SessionID returns the session being written.
func (r *Recorder) SessionID() string { return r.session }

// Seq returns the last seq written.
func (r *Recorder) Seq() int64 { return r.clock.Current() }

func (r *Recorder) record(ev sequence.Event) {
	seq := r.clock.Next()
	if err := r.journal.Append(r.ctx, r.session, seq, ev.Edit); err != nil {
		r.logger.Error("journal append failed", "seq", seq, "op", ev.Edit.Op, "error", err)
		r.mu.Lock()
		if r.err == nil {
			r.err = err
		}
		r.mu.Unlock()
		return
	}
	r.logger.Debug("journaled edit", "seq", seq, "op", ev.Edit.Op)
}

// Err returns the first append failure.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close unsubscribes from the store and returns the first append failure.
func (r *Recorder) Close() error {
	r.cancel()
	return r.Err()
}
