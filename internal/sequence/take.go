package sequence

import "errors"

// ErrTakeOpen is returned by BeginTake while another take is recording.
var ErrTakeOpen = errors.New("take already open")

// Take batches recorded joint updates into a single history entry.
//
// Writes are validated against the current grid when made, so a rejected
// write is reported immediately and does not poison the rest of the take.
type Take struct {
	store  *Store
	writes []TakeWrite
	closed bool
}

// BeginTake opens a take.
func (s *Store) BeginTake() (*Take, error) {
	if s.take != nil {
		return nil, ErrTakeOpen
	}
	s.take = &Take{store: s}
	return s.take, nil
}

// Recording reports whether a take is open.
func (s *Store) Recording() bool { return s.take != nil }

// Len returns the number of accepted writes.
func (t *Take) Len() int { return len(t.writes) }

// Write records one joint update.
func (t *Take) Write(addr Address, joint string, u JointUpdate) error {
	if t.closed || t.store.take != t {
		return errors.New("write to closed take")
	}
	cur := t.store.Current()
	if _, ok := cur.Index(addr); !ok {
		return NewAddressError(addr, cur.Bars(), cur.StepsPerBar)
	}
	norm, err := u.normalize(addr, joint)
	if err != nil {
		return err
	}
	t.writes = append(t.writes, TakeWrite{Address: addr, Joint: joint, Update: norm})
	return nil
}

// Commit applies every write as one history entry. An empty take commits
// nothing and reports false.
func (t *Take) Commit() (bool, error) {
	if t.closed || t.store.take != t {
		return false, errors.New("commit of closed take")
	}
	t.closed = true
	t.store.take = nil
	writes := t.writes
	return t.store.run(Edit{Op: OpTake, Writes: writes},
		func(cur *Sequence) (*Sequence, bool, error) { return applyWrites(cur, writes) })
}

// Discard drops the take without touching history.
func (t *Take) Discard() {
	if t.store.take == t {
		t.store.take = nil
	}
	t.closed = true
}
