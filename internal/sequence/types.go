// Package sequence owns the bar/beat grid of per-beat joint, sound and meta
// data, and its linear undo/redo history.
//
// # Copy-on-write
//
// A Sequence holds its beats as []*Beat. Every edit clones the slice header
// and replaces only the touched beats with fresh copies, so consecutive
// history snapshots share every unchanged *Beat. A Beat reachable from any
// snapshot is never mutated after it is committed. Callers reading
// Store.Current() must treat the returned Sequence and its beats as
// read-only.
//
// # Errors
//
// Every rejected operation returns a *Error and leaves the sequence and the
// history exactly as they were.
package sequence

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kilosayaw/seqsync-sub000/internal/biomech"
	"github.com/kilosayaw/seqsync-sub000/internal/geom"
	"github.com/kilosayaw/seqsync-sub000/internal/notation"
)

const (
	DefaultStepsPerBar = 16
	DefaultBPM         = 120.0

	// MaxSounds is the number of sounds one beat can trigger at once.
	MaxSounds = 4

	MinBPM = 1.0
	MaxBPM = 999.0

	// MaxBeats bounds bars x stepsPerBar of any grid.
	MaxBeats = 1 << 16
)

// Address identifies one beat slot. Beat is the step within the bar.
type Address struct {
	Bar  int `json:"bar"`
	Beat int `json:"beat"`
}

// String renders "bar:beat".
func (a Address) String() string {
	return fmt.Sprintf("%d:%d", a.Bar, a.Beat)
}

// ParseAddress parses "bar:beat".
func ParseAddress(s string) (Address, error) {
	barStr, beatStr, ok := strings.Cut(s, ":")
	if !ok {
		return Address{}, fmt.Errorf("parse address %q: want bar:beat", s)
	}
	bar, err := strconv.Atoi(strings.TrimSpace(barStr))
	if err != nil {
		return Address{}, fmt.Errorf("parse address %q: %w", s, err)
	}
	beat, err := strconv.Atoi(strings.TrimSpace(beatStr))
	if err != nil {
		return Address{}, fmt.Errorf("parse address %q: %w", s, err)
	}
	return Address{Bar: bar, Beat: beat}, nil
}

// Role tags a joint's function in a movement.
type Role string

const (
	RoleNone       Role = ""
	RoleMover      Role = "mover"
	RoleStabilizer Role = "stabilizer"
	RoleFrame      Role = "frame"
	RoleCoiled     Role = "coiled"
)

// Valid reports whether r is a known role or unset.
func (r Role) Valid() bool {
	switch r {
	case RoleNone, RoleMover, RoleStabilizer, RoleFrame, RoleCoiled:
		return true
	}
	return false
}

// JointRecord is one joint at one beat. Grounding and Pivot are only set on
// foot joints.
type JointRecord struct {
	Vector      geom.Vec3           `json:"vector"`
	Score       float64             `json:"score"`
	Orientation biomech.Orientation `json:"orientation,omitempty"`
	Role        Role                `json:"role,omitempty"`
	Rotation    float64             `json:"rotation,omitempty"`
	Grounding   string              `json:"grounding,omitempty"`
	Pivot       string              `json:"pivot,omitempty"`
}

// Visible reports whether the record clears a consumer's score threshold.
func (j JointRecord) Visible(min float64) bool {
	return j.Score >= min && j.Vector.IsFinite()
}

// Beat is one slot of the grid.
type Beat struct {
	Bar    int                    `json:"bar"`
	Beat   int                    `json:"beat"`
	Joints map[string]JointRecord `json:"joints,omitempty"`
	Sounds []string               `json:"sounds"`
	Meta   map[string]string      `json:"meta,omitempty"`
}

// NewBeat returns an empty beat at addr.
func NewBeat(addr Address) *Beat {
	return &Beat{
		Bar:    addr.Bar,
		Beat:   addr.Beat,
		Joints: map[string]JointRecord{},
		Sounds: []string{},
		Meta:   map[string]string{},
	}
}

// Address returns the beat's identity.
func (b *Beat) Address() Address { return Address{Bar: b.Bar, Beat: b.Beat} }

// Clone returns an independent copy.
func (b *Beat) Clone() *Beat {
	c := NewBeat(b.Address())
	for k, v := range b.Joints {
		c.Joints[k] = v
	}
	c.Sounds = append(c.Sounds, b.Sounds...)
	for k, v := range b.Meta {
		c.Meta[k] = v
	}
	return c
}

// Normalize fills nil collections so decoded and freshly created beats
// compare equal.
func (b *Beat) Normalize() {
	if b.Joints == nil {
		b.Joints = map[string]JointRecord{}
	}
	if b.Sounds == nil {
		b.Sounds = []string{}
	}
	if b.Meta == nil {
		b.Meta = map[string]string{}
	}
}

// HasSound reports whether id is already cued on the beat.
func (b *Beat) HasSound(id string) bool {
	for _, s := range b.Sounds {
		if s == id {
			return true
		}
	}
	return false
}

// Sequence is the grid plus its global timing and media references. Media
// payloads are never held, only their names.
type Sequence struct {
	Beats         []*Beat `json:"beats"`
	BPM           float64 `json:"bpm"`
	StepsPerBar   int     `json:"stepsPerBar"`
	GridOffset    float64 `json:"gridOffset"`
	AudioFileName string  `json:"audioFileName,omitempty"`
	VideoURL      string  `json:"videoUrl,omitempty"`
}

// NewSequence allocates a fully populated bars x stepsPerBar grid.
func NewSequence(bars, stepsPerBar int, bpm float64) (*Sequence, error) {
	if err := validateShape(bars, stepsPerBar); err != nil {
		return nil, err
	}
	if err := validateBPM(bpm); err != nil {
		return nil, err
	}
	seq := &Sequence{BPM: bpm, StepsPerBar: stepsPerBar}
	seq.Beats = make([]*Beat, 0, bars*stepsPerBar)
	for i := 0; i < bars*stepsPerBar; i++ {
		seq.Beats = append(seq.Beats, NewBeat(seq.AddressOf(i)))
	}
	return seq, nil
}

// Bars returns the number of bars.
func (s *Sequence) Bars() int {
	if s.StepsPerBar <= 0 {
		return 0
	}
	return len(s.Beats) / s.StepsPerBar
}

// Len returns the number of beats.
func (s *Sequence) Len() int { return len(s.Beats) }

// Index returns the flat index of addr.
func (s *Sequence) Index(addr Address) (int, bool) {
	if addr.Bar < 0 || addr.Beat < 0 || addr.Beat >= s.StepsPerBar || addr.Bar >= s.Bars() {
		return 0, false
	}
	return addr.Bar*s.StepsPerBar + addr.Beat, true
}

// AddressOf returns the address of flat index i.
func (s *Sequence) AddressOf(i int) Address {
	return Address{Bar: i / s.StepsPerBar, Beat: i % s.StepsPerBar}
}

// At returns the beat at addr. The beat is shared with history; do not
// modify it.
func (s *Sequence) At(addr Address) (*Beat, error) {
	i, ok := s.Index(addr)
	if !ok {
		return nil, NewAddressError(addr, s.Bars(), s.StepsPerBar)
	}
	return s.Beats[i], nil
}

// BeatDuration returns the seconds per beat at the current BPM.
func (s *Sequence) BeatDuration() float64 { return 60 / s.BPM }

// Clone copies the sequence header and beat slice. Beats are shared.
func (s *Sequence) Clone() *Sequence {
	c := *s
	c.Beats = make([]*Beat, len(s.Beats))
	copy(c.Beats, s.Beats)
	return &c
}

// DeepCopy copies the sequence and every beat.
func (s *Sequence) DeepCopy() *Sequence {
	c := s.Clone()
	for i, b := range c.Beats {
		c.Beats[i] = b.Clone()
	}
	return c
}

// Validate checks the grid invariants of a sequence built outside NewSequence.
func (s *Sequence) Validate() error {
	if s.StepsPerBar <= 0 {
		return NewFieldError("stepsPerBar", "must be positive")
	}
	if len(s.Beats) == 0 || len(s.Beats)%s.StepsPerBar != 0 {
		return NewFieldError("beats", fmt.Sprintf("count %d is not a positive multiple of %d", len(s.Beats), s.StepsPerBar))
	}
	if err := validateBPM(s.BPM); err != nil {
		return err
	}
	if !isFinite(s.GridOffset) {
		return NewFieldError("gridOffset", "must be finite")
	}
	for i, b := range s.Beats {
		if b == nil {
			return NewFieldError("beats", fmt.Sprintf("beat %d is missing", i))
		}
		if b.Address() != s.AddressOf(i) {
			return NewFieldError("beats", fmt.Sprintf("beat %d has address %s", i, b.Address()))
		}
	}
	return nil
}

// KneeZone computes the knee safe zone for side from the stored hip and
// foot rotations at addr. In strict mode disjoint windows are an error
// instead of the fallback zone.
func (s *Sequence) KneeZone(addr Address, side notation.Side, strict bool) (biomech.SafeZone, error) {
	b, err := s.At(addr)
	if err != nil {
		return biomech.SafeZone{}, err
	}
	hip := b.Joints[side.String()+"H"].Rotation
	foot := b.Joints[side.String()+"F"].Rotation
	if !strict {
		return biomech.KneeSafeZone(hip, foot), nil
	}
	z, err := biomech.StrictKneeSafeZone(hip, foot)
	if err != nil {
		return biomech.SafeZone{}, NewEmptyIntersectionError(hip, foot)
	}
	return z, nil
}

func validateShape(bars, stepsPerBar int) error {
	if bars < 1 {
		return NewFieldError("bars", fmt.Sprintf("%d must be at least 1", bars))
	}
	if stepsPerBar < 1 {
		return NewFieldError("stepsPerBar", fmt.Sprintf("%d must be at least 1", stepsPerBar))
	}
	if stepsPerBar > MaxBeats || bars > MaxBeats/stepsPerBar {
		return NewFieldError("bars", fmt.Sprintf("%d x %d exceeds %d beats", bars, stepsPerBar, MaxBeats))
	}
	return nil
}

func validateBPM(bpm float64) error {
	if !isFinite(bpm) || bpm < MinBPM || bpm > MaxBPM {
		return NewFieldError("bpm", fmt.Sprintf("%g outside [%g, %g]", bpm, MinBPM, MaxBPM))
	}
	return nil
}

func isFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
