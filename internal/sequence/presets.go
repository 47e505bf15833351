package sequence

import (
	"fmt"
	"strings"

	"github.com/kilosayaw/seqsync-sub000/internal/notation"
)

// Presets live outside history: saving one is not undoable and survives
// Replace.

func presetKeyFor(side notation.Side, page, slot int) (presetKey, error) {
	if !side.Valid() {
		return presetKey{}, NewFieldError("side", fmt.Sprintf("invalid side %q", string(side)))
	}
	if page < 0 || slot < 0 {
		return presetKey{}, NewFieldError("preset", fmt.Sprintf("page %d slot %d must not be negative", page, slot))
	}
	return presetKey{side: side, page: page, slot: slot}, nil
}

// sideJoints returns the joints whose id starts with the side letter.
func sideJoints(b *Beat, side notation.Side) map[string]JointRecord {
	out := make(map[string]JointRecord)
	for id, rec := range b.Joints {
		if strings.HasPrefix(id, side.String()) {
			out[id] = rec
		}
	}
	return out
}

// SavePreset copies one side's joints at addr into the bank.
func (s *Store) SavePreset(addr Address, side notation.Side, page, slot int) error {
	key, err := presetKeyFor(side, page, slot)
	if err != nil {
		return err
	}
	b, err := s.Current().At(addr)
	if err != nil {
		return err
	}
	s.presets[key] = sideJoints(b, side)
	s.logger.Debug("preset saved", "side", side, "page", page, "slot", slot, "joints", len(s.presets[key]))
	return nil
}

// HasPreset reports whether a preset is stored.
func (s *Store) HasPreset(side notation.Side, page, slot int) bool {
	key, err := presetKeyFor(side, page, slot)
	if err != nil {
		return false
	}
	_, ok := s.presets[key]
	return ok
}

// LoadPreset overlays a saved preset onto the beat at addr. Joints not in
// the preset are kept. It reports false when the slot is empty.
func (s *Store) LoadPreset(addr Address, side notation.Side, page, slot int) (bool, error) {
	key, err := presetKeyFor(side, page, slot)
	if err != nil {
		return false, err
	}
	joints, ok := s.presets[key]
	if !ok {
		return false, nil
	}
	copied := make(map[string]JointRecord, len(joints))
	for id, rec := range joints {
		copied[id] = rec
	}
	return s.run(Edit{Op: OpOverlay, Address: &addr, Joints: copied},
		func(cur *Sequence) (*Sequence, bool, error) { return overlay(cur, addr, copied) })
}
