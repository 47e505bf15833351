package sequence

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/kilosayaw/seqsync-sub000/internal/biomech"
	"github.com/kilosayaw/seqsync-sub000/internal/geom"
	"github.com/kilosayaw/seqsync-sub000/internal/notation"
)

// Op names a history-producing operation.
type Op string

const (
	OpSetJoint      Op = "set_joint"
	OpAddSound      Op = "add_sound"
	OpRemoveSound   Op = "remove_sound"
	OpResize        Op = "resize"
	OpOverlay       Op = "overlay"
	OpSetBPM        Op = "set_bpm"
	OpSetGridOffset Op = "set_grid_offset"
	OpSetMedia      Op = "set_media"
	OpSetMeta       Op = "set_meta"
	OpClearBeat     Op = "clear_beat"
	OpCopyBeat      Op = "copy_beat"
	OpTake          Op = "take"
	OpUndo          Op = "undo"
	OpRedo          Op = "redo"
	OpReplace       Op = "replace"
)

// Edit is the serializable description of one committed operation. Store
// subscribers receive it, and Store.Apply re-executes it, which is how the
// edit journal replays a session.
type Edit struct {
	Op         Op                     `json:"op"`
	Address    *Address               `json:"address,omitempty"`
	From       *Address               `json:"from,omitempty"`
	Joint      string                 `json:"joint,omitempty"`
	Update     *JointUpdate           `json:"update,omitempty"`
	Joints     map[string]JointRecord `json:"joints,omitempty"`
	Sound      string                 `json:"sound,omitempty"`
	Bars       int                    `json:"bars,omitempty"`
	BPM        float64                `json:"bpm,omitempty"`
	GridOffset *float64               `json:"gridOffset,omitempty"`
	Audio      *string                `json:"audio,omitempty"`
	Video      *string                `json:"video,omitempty"`
	Key        string                 `json:"key,omitempty"`
	Value      *string                `json:"value,omitempty"`
	Writes     []TakeWrite            `json:"writes,omitempty"`
	Sequence   *Sequence              `json:"sequence,omitempty"`
}

// JointUpdate is a partial joint record. Nil fields are left unchanged.
type JointUpdate struct {
	Vector      *geom.Vec3           `json:"vector,omitempty"`
	Score       *float64             `json:"score,omitempty"`
	Orientation *biomech.Orientation `json:"orientation,omitempty"`
	Role        *Role                `json:"role,omitempty"`
	Rotation    *float64             `json:"rotation,omitempty"`
	Grounding   *string              `json:"grounding,omitempty"`
	Pivot       *string              `json:"pivot,omitempty"`
}

// TakeWrite is one joint update recorded during a take.
type TakeWrite struct {
	Address Address     `json:"address"`
	Joint   string      `json:"joint"`
	Update  JointUpdate `json:"update"`
}

// IsZero reports whether the update changes nothing.
func (u JointUpdate) IsZero() bool {
	return u == JointUpdate{}
}

// normalize validates u for joint and returns it with the grounding in
// canonical form and the pivot derived from it when not given.
func (u JointUpdate) normalize(addr Address, joint string) (JointUpdate, error) {
	if joint == "" {
		return u, NewFieldError("joint", "id is empty")
	}
	if u.Vector != nil && !u.Vector.IsFinite() {
		return u, NewFieldError(joint+".vector", "must be finite")
	}
	if u.Score != nil && (!isFinite(*u.Score) || *u.Score < 0 || *u.Score > 1) {
		return u, NewFieldError(joint+".score", fmt.Sprintf("%g outside [0, 1]", *u.Score))
	}
	if u.Orientation != nil && !u.Orientation.Valid() {
		return u, NewFieldError(joint+".orientation", fmt.Sprintf("unknown label %q", *u.Orientation))
	}
	if u.Role != nil && !u.Role.Valid() {
		return u, NewFieldError(joint+".role", fmt.Sprintf("unknown role %q", *u.Role))
	}
	if u.Rotation != nil && !isFinite(*u.Rotation) {
		return u, NewFieldError(joint+".rotation", "must be finite")
	}

	if u.Grounding != nil {
		if !biomech.IsFoot(joint) {
			return u, NewNotationError(addr, joint, *u.Grounding,
				fmt.Errorf("%w: grounding only applies to feet", notation.ErrInvalidNotation))
		}
		side := notation.Side(joint[0])
		canon, err := notation.Canonical(*u.Grounding, side)
		if err != nil {
			return u, NewNotationError(addr, joint, *u.Grounding, err)
		}
		u.Grounding = &canon
		if u.Pivot == nil && canon != "" {
			pivot := notation.PivotPoint(notation.Decode(canon, side))
			u.Pivot = &pivot
		}
	}
	if u.Pivot != nil && *u.Pivot != "" {
		if !biomech.IsFoot(joint) {
			return u, NewFieldError(joint+".pivot", "only feet have a pivot")
		}
		if _, err := notation.ParsePoint(*u.Pivot); err != nil {
			return u, NewFieldError(joint+".pivot", err.Error())
		}
	}
	return u, nil
}

// merge applies the non-nil fields of u to rec.
func (u JointUpdate) merge(rec JointRecord) JointRecord {
	if u.Vector != nil {
		rec.Vector = *u.Vector
	}
	if u.Score != nil {
		rec.Score = *u.Score
	}
	if u.Orientation != nil {
		rec.Orientation = *u.Orientation
	}
	if u.Role != nil {
		rec.Role = *u.Role
	}
	if u.Rotation != nil {
		rec.Rotation = *u.Rotation
	}
	if u.Grounding != nil {
		rec.Grounding = *u.Grounding
	}
	if u.Pivot != nil {
		rec.Pivot = *u.Pivot
	}
	return rec
}

// NormalizeSound trims and NFC-normalizes a sound id so visually identical
// names compare equal.
func NormalizeSound(id string) string {
	return norm.NFC.String(strings.TrimSpace(id))
}

// The functions below compute the next snapshot from cur. They never
// modify cur or any beat it references. A false changed result means the
// operation was a no-op and produces no history entry.

func setJoint(cur *Sequence, addr Address, joint string, u JointUpdate) (*Sequence, bool, error) {
	i, ok := cur.Index(addr)
	if !ok {
		return nil, false, NewAddressError(addr, cur.Bars(), cur.StepsPerBar)
	}
	u, err := u.normalize(addr, joint)
	if err != nil {
		return nil, false, err
	}
	next := cur.Clone()
	b := cur.Beats[i].Clone()
	b.Joints[joint] = u.merge(b.Joints[joint])
	next.Beats[i] = b
	return next, true, nil
}

func addSound(cur *Sequence, addr Address, id string) (*Sequence, bool, error) {
	i, ok := cur.Index(addr)
	if !ok {
		return nil, false, NewAddressError(addr, cur.Bars(), cur.StepsPerBar)
	}
	if id == "" {
		return nil, false, NewFieldError("sound", "id is empty")
	}
	old := cur.Beats[i]
	if len(old.Sounds) >= MaxSounds || old.HasSound(id) {
		return cur, false, nil
	}
	next := cur.Clone()
	b := old.Clone()
	b.Sounds = append(b.Sounds, id)
	next.Beats[i] = b
	return next, true, nil
}

func removeSound(cur *Sequence, addr Address, id string) (*Sequence, bool, error) {
	i, ok := cur.Index(addr)
	if !ok {
		return nil, false, NewAddressError(addr, cur.Bars(), cur.StepsPerBar)
	}
	old := cur.Beats[i]
	if !old.HasSound(id) {
		return cur, false, nil
	}
	next := cur.Clone()
	b := old.Clone()
	kept := b.Sounds[:0]
	for _, s := range b.Sounds {
		if s != id {
			kept = append(kept, s)
		}
	}
	b.Sounds = kept
	next.Beats[i] = b
	return next, true, nil
}

func resize(cur *Sequence, bars int) (*Sequence, bool, error) {
	if err := validateShape(bars, cur.StepsPerBar); err != nil {
		return nil, false, err
	}
	if bars == cur.Bars() {
		return cur, false, nil
	}
	n := bars * cur.StepsPerBar
	next := cur.Clone()
	if n < len(next.Beats) {
		next.Beats = next.Beats[:n:n]
		return next, true, nil
	}
	for i := len(next.Beats); i < n; i++ {
		next.Beats = append(next.Beats, NewBeat(next.AddressOf(i)))
	}
	return next, true, nil
}

func overlay(cur *Sequence, addr Address, joints map[string]JointRecord) (*Sequence, bool, error) {
	i, ok := cur.Index(addr)
	if !ok {
		return nil, false, NewAddressError(addr, cur.Bars(), cur.StepsPerBar)
	}
	if len(joints) == 0 {
		return cur, false, nil
	}
	next := cur.Clone()
	b := cur.Beats[i].Clone()
	for id, rec := range joints {
		b.Joints[id] = rec
	}
	next.Beats[i] = b
	return next, true, nil
}

func setBPM(cur *Sequence, bpm float64) (*Sequence, bool, error) {
	if err := validateBPM(bpm); err != nil {
		return nil, false, err
	}
	if bpm == cur.BPM {
		return cur, false, nil
	}
	next := cur.Clone()
	next.BPM = bpm
	return next, true, nil
}

func setGridOffset(cur *Sequence, seconds float64) (*Sequence, bool, error) {
	if !isFinite(seconds) {
		return nil, false, NewFieldError("gridOffset", "must be finite")
	}
	if seconds == cur.GridOffset {
		return cur, false, nil
	}
	next := cur.Clone()
	next.GridOffset = seconds
	return next, true, nil
}

func setMedia(cur *Sequence, audio, video *string) (*Sequence, bool, error) {
	next := cur.Clone()
	if audio != nil {
		next.AudioFileName = norm.NFC.String(*audio)
	}
	if video != nil {
		next.VideoURL = *video
	}
	if next.AudioFileName == cur.AudioFileName && next.VideoURL == cur.VideoURL {
		return cur, false, nil
	}
	return next, true, nil
}

func setMeta(cur *Sequence, addr Address, key string, value *string) (*Sequence, bool, error) {
	i, ok := cur.Index(addr)
	if !ok {
		return nil, false, NewAddressError(addr, cur.Bars(), cur.StepsPerBar)
	}
	if key == "" {
		return nil, false, NewFieldError("meta", "key is empty")
	}
	old := cur.Beats[i]
	prev, had := old.Meta[key]
	if (value == nil && !had) || (value != nil && had && prev == *value) {
		return cur, false, nil
	}
	next := cur.Clone()
	b := old.Clone()
	if value == nil {
		delete(b.Meta, key)
	} else {
		b.Meta[key] = *value
	}
	next.Beats[i] = b
	return next, true, nil
}

func clearBeat(cur *Sequence, addr Address) (*Sequence, bool, error) {
	i, ok := cur.Index(addr)
	if !ok {
		return nil, false, NewAddressError(addr, cur.Bars(), cur.StepsPerBar)
	}
	old := cur.Beats[i]
	if len(old.Joints) == 0 && len(old.Sounds) == 0 && len(old.Meta) == 0 {
		return cur, false, nil
	}
	next := cur.Clone()
	next.Beats[i] = NewBeat(addr)
	return next, true, nil
}

func copyBeat(cur *Sequence, from, to Address) (*Sequence, bool, error) {
	src, ok := cur.Index(from)
	if !ok {
		return nil, false, NewAddressError(from, cur.Bars(), cur.StepsPerBar)
	}
	dst, ok := cur.Index(to)
	if !ok {
		return nil, false, NewAddressError(to, cur.Bars(), cur.StepsPerBar)
	}
	if src == dst {
		return cur, false, nil
	}
	next := cur.Clone()
	b := cur.Beats[src].Clone()
	b.Bar, b.Beat = to.Bar, to.Beat
	next.Beats[dst] = b
	return next, true, nil
}

// applyWrites merges a take into cur, cloning each touched beat once.
func applyWrites(cur *Sequence, writes []TakeWrite) (*Sequence, bool, error) {
	if len(writes) == 0 {
		return cur, false, nil
	}
	next := cur.Clone()
	touched := make(map[int]bool)
	for _, w := range writes {
		i, ok := next.Index(w.Address)
		if !ok {
			return nil, false, NewAddressError(w.Address, next.Bars(), next.StepsPerBar)
		}
		u, err := w.Update.normalize(w.Address, w.Joint)
		if err != nil {
			return nil, false, err
		}
		if !touched[i] {
			next.Beats[i] = next.Beats[i].Clone()
			touched[i] = true
		}
		b := next.Beats[i]
		b.Joints[w.Joint] = u.merge(b.Joints[w.Joint])
	}
	return next, true, nil
}
