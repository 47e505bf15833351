package sequence

import (
	"fmt"
	"log/slog"

	"github.com/kilosayaw/seqsync-sub000/internal/notation"
)

// Event is delivered to subscribers after every committed operation.
type Event struct {
	Edit       Edit
	Generation uint64
	Cursor     int
	HistoryLen int
}

// Store owns the current sequence, its history and the preset bank.
//
// Thread-safety: single writer. All methods must be called from one
// goroutine (the frame loop). Snapshots returned by Current are immutable
// and may be handed to other goroutines.
type Store struct {
	history    []*Sequence
	cursor     int
	limit      int
	generation uint64

	presets map[presetKey]map[string]JointRecord
	take    *Take

	subs    []subscriber
	nextSub int

	logger *slog.Logger
}

type presetKey struct {
	side notation.Side
	page int
	slot int
}

type subscriber struct {
	id int
	fn func(Event)
}

// Option configures a Store.
type Option func(*Store)

// WithHistoryLimit keeps at most n snapshots, dropping the oldest. Values
// below 2 are ignored.
func WithHistoryLimit(n int) Option {
	return func(s *Store) {
		if n >= 2 {
			s.limit = n
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a store holding a fresh bars x stepsPerBar sequence.
func New(bars, stepsPerBar int, bpm float64, opts ...Option) (*Store, error) {
	seq, err := NewSequence(bars, stepsPerBar, bpm)
	if err != nil {
		return nil, err
	}
	return newStore(seq, opts), nil
}

// FromSequence creates a store whose history starts at seq.
func FromSequence(seq *Sequence, opts ...Option) (*Store, error) {
	if err := seq.Validate(); err != nil {
		return nil, fmt.Errorf("open sequence: %w", err)
	}
	return newStore(seq, opts), nil
}

func newStore(seq *Sequence, opts []Option) *Store {
	normalizeBeats(seq)
	s := &Store{
		history: []*Sequence{seq},
		presets: make(map[presetKey]map[string]JointRecord),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the sequence at the history cursor.
func (s *Store) Current() *Sequence { return s.history[s.cursor] }

// Cursor returns the history cursor.
func (s *Store) Cursor() int { return s.cursor }

// HistoryLen returns the number of snapshots.
func (s *Store) HistoryLen() int { return len(s.history) }

// CanUndo reports whether Undo would move the cursor.
func (s *Store) CanUndo() bool { return s.cursor > 0 }

// CanRedo reports whether Redo would move the cursor.
func (s *Store) CanRedo() bool { return s.cursor < len(s.history)-1 }

// Generation is bumped by Replace. Tickets from an older generation are
// stale.
func (s *Store) Generation() uint64 { return s.generation }

// Subscribe registers fn for every committed operation and returns a
// function that removes it.
func (s *Store) Subscribe(fn func(Event)) (cancel func()) {
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	return func() {
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) notify(e Edit) {
	ev := Event{Edit: e, Generation: s.generation, Cursor: s.cursor, HistoryLen: len(s.history)}
	for _, sub := range append([]subscriber(nil), s.subs...) {
		sub.fn(ev)
	}
}

// commit truncates the redo tail, appends next and notifies.
func (s *Store) commit(next *Sequence, e Edit) {
	s.history = append(s.history[:s.cursor+1:s.cursor+1], next)
	s.cursor = len(s.history) - 1
	if s.limit > 0 && len(s.history) > s.limit {
		drop := len(s.history) - s.limit
		s.history = append([]*Sequence(nil), s.history[drop:]...)
		s.cursor -= drop
	}
	s.logger.Debug("sequence edit", "op", e.Op, "cursor", s.cursor, "history", len(s.history))
	s.notify(e)
}

type transform func(cur *Sequence) (*Sequence, bool, error)

func (s *Store) run(e Edit, fn transform) (bool, error) {
	next, changed, err := fn(s.Current())
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}
	s.commit(next, e)
	return true, nil
}

// SetJointField merges u into one joint of the beat at addr.
func (s *Store) SetJointField(addr Address, joint string, u JointUpdate) error {
	_, err := s.run(Edit{Op: OpSetJoint, Address: &addr, Joint: joint, Update: &u},
		func(cur *Sequence) (*Sequence, bool, error) { return setJoint(cur, addr, joint, u) })
	return err
}

// AddSound cues a sound on a beat. It reports false, without error, when
// the beat already holds MaxSounds sounds or the same id.
func (s *Store) AddSound(addr Address, id string) (bool, error) {
	id = NormalizeSound(id)
	return s.run(Edit{Op: OpAddSound, Address: &addr, Sound: id},
		func(cur *Sequence) (*Sequence, bool, error) { return addSound(cur, addr, id) })
}

// RemoveSound removes a cued sound. Removing an absent id is a no-op.
func (s *Store) RemoveSound(addr Address, id string) (bool, error) {
	id = NormalizeSound(id)
	return s.run(Edit{Op: OpRemoveSound, Address: &addr, Sound: id},
		func(cur *Sequence) (*Sequence, bool, error) { return removeSound(cur, addr, id) })
}

// ResizeBars grows or truncates the grid. Beats of unaffected bars are
// carried over unchanged.
func (s *Store) ResizeBars(bars int) (bool, error) {
	return s.run(Edit{Op: OpResize, Bars: bars},
		func(cur *Sequence) (*Sequence, bool, error) { return resize(cur, bars) })
}

// SetBPM changes the tempo.
func (s *Store) SetBPM(bpm float64) (bool, error) {
	return s.run(Edit{Op: OpSetBPM, BPM: bpm},
		func(cur *Sequence) (*Sequence, bool, error) { return setBPM(cur, bpm) })
}

// SetGridOffset sets the seconds from media start to the first beat.
func (s *Store) SetGridOffset(seconds float64) (bool, error) {
	return s.run(Edit{Op: OpSetGridOffset, GridOffset: &seconds},
		func(cur *Sequence) (*Sequence, bool, error) { return setGridOffset(cur, seconds) })
}

// SetMedia updates the media references. Nil leaves a reference unchanged.
func (s *Store) SetMedia(audio, video *string) (bool, error) {
	return s.run(Edit{Op: OpSetMedia, Audio: audio, Video: video},
		func(cur *Sequence) (*Sequence, bool, error) { return setMedia(cur, audio, video) })
}

// SetMeta sets (or with a nil value deletes) one meta key on a beat.
func (s *Store) SetMeta(addr Address, key string, value *string) (bool, error) {
	return s.run(Edit{Op: OpSetMeta, Address: &addr, Key: key, Value: value},
		func(cur *Sequence) (*Sequence, bool, error) { return setMeta(cur, addr, key, value) })
}

// ClearBeat resets a beat to its empty default.
func (s *Store) ClearBeat(addr Address) (bool, error) {
	return s.run(Edit{Op: OpClearBeat, Address: &addr},
		func(cur *Sequence) (*Sequence, bool, error) { return clearBeat(cur, addr) })
}

// CopyBeat replaces the beat at to with the contents of the beat at from.
func (s *Store) CopyBeat(from, to Address) (bool, error) {
	return s.run(Edit{Op: OpCopyBeat, From: &from, Address: &to},
		func(cur *Sequence) (*Sequence, bool, error) { return copyBeat(cur, from, to) })
}

// Undo moves the cursor back. It returns false at the oldest snapshot.
func (s *Store) Undo() bool {
	if !s.CanUndo() {
		return false
	}
	s.cursor--
	s.notify(Edit{Op: OpUndo})
	return true
}

// Redo moves the cursor forward. It returns false at the newest snapshot.
func (s *Store) Redo() bool {
	if !s.CanRedo() {
		return false
	}
	s.cursor++
	s.notify(Edit{Op: OpRedo})
	return true
}

// Replace installs seq as a new history root, as on media load or file
// import. Presets survive; pending tickets become stale; an open take is
// discarded.
func (s *Store) Replace(seq *Sequence) error {
	if err := seq.Validate(); err != nil {
		return fmt.Errorf("replace sequence: %w", err)
	}
	if s.take != nil {
		s.logger.Warn("discarding open take on replace", "writes", len(s.take.writes))
		s.take = nil
	}
	normalizeBeats(seq)
	s.history = []*Sequence{seq}
	s.cursor = 0
	s.generation++
	s.notify(Edit{Op: OpReplace, Sequence: seq})
	return nil
}

// Apply re-executes a recorded edit. It reports whether the store changed.
func (s *Store) Apply(e Edit) (bool, error) {
	need := func() (Address, error) {
		if e.Address == nil {
			return Address{}, NewFieldError("address", fmt.Sprintf("%s edit has no address", e.Op))
		}
		return *e.Address, nil
	}

	switch e.Op {
	case OpSetJoint:
		addr, err := need()
		if err != nil {
			return false, err
		}
		var u JointUpdate
		if e.Update != nil {
			u = *e.Update
		}
		if err := s.SetJointField(addr, e.Joint, u); err != nil {
			return false, err
		}
		return true, nil
	case OpAddSound:
		addr, err := need()
		if err != nil {
			return false, err
		}
		return s.AddSound(addr, e.Sound)
	case OpRemoveSound:
		addr, err := need()
		if err != nil {
			return false, err
		}
		return s.RemoveSound(addr, e.Sound)
	case OpResize:
		return s.ResizeBars(e.Bars)
	case OpOverlay:
		addr, err := need()
		if err != nil {
			return false, err
		}
		return s.run(e, func(cur *Sequence) (*Sequence, bool, error) { return overlay(cur, addr, e.Joints) })
	case OpSetBPM:
		return s.SetBPM(e.BPM)
	case OpSetGridOffset:
		if e.GridOffset == nil {
			return false, NewFieldError("gridOffset", "missing")
		}
		return s.SetGridOffset(*e.GridOffset)
	case OpSetMedia:
		return s.SetMedia(e.Audio, e.Video)
	case OpSetMeta:
		addr, err := need()
		if err != nil {
			return false, err
		}
		return s.SetMeta(addr, e.Key, e.Value)
	case OpClearBeat:
		addr, err := need()
		if err != nil {
			return false, err
		}
		return s.ClearBeat(addr)
	case OpCopyBeat:
		addr, err := need()
		if err != nil {
			return false, err
		}
		if e.From == nil {
			return false, NewFieldError("from", "copy edit has no source")
		}
		return s.CopyBeat(*e.From, addr)
	case OpTake:
		writes := e.Writes
		return s.run(e, func(cur *Sequence) (*Sequence, bool, error) { return applyWrites(cur, writes) })
	case OpUndo:
		return s.Undo(), nil
	case OpRedo:
		return s.Redo(), nil
	case OpReplace:
		if e.Sequence == nil {
			return false, NewFieldError("sequence", "replace edit has no sequence")
		}
		return true, s.Replace(e.Sequence.DeepCopy())
	}
	return false, NewFieldError("op", fmt.Sprintf("unknown operation %q", e.Op))
}

func normalizeBeats(seq *Sequence) {
	for _, b := range seq.Beats {
		b.Normalize()
	}
}
