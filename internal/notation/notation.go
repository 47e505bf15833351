// Package notation encodes and decodes foot grounding states.
//
// A grounding state is the set of foot-contact points touching the floor for
// one foot. Eight canonical points exist: three sole zones (1 ball-inner,
// 2 ball-outer, 3 heel) and five toe zones (T1..T5). The compact notation is
//
//	<SIDE><soleDigits>[T<toeDigits>]
//
// with digits in ascending order, e.g. "L123T12345" (full contact), "L3"
// (heel only) and "L0" (ungrounded). Notation strings are embedded in saved
// sequence files, so Encode output must stay byte-stable.
//
// Two decode paths exist. Decode is lenient and never fails: it is used on
// records read back from partially initialized data and falls back to
// ungrounded. Parse is strict and reports ErrInvalidNotation.
package notation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidNotation is returned for unknown point ids, malformed notation
// tokens and invalid sides.
var ErrInvalidNotation = errors.New("invalid notation")

// Side identifies a foot.
type Side byte

const (
	Left  Side = 'L'
	Right Side = 'R'
)

// String returns "L" or "R".
func (s Side) String() string { return string(s) }

// Valid reports whether s is Left or Right.
func (s Side) Valid() bool { return s == Left || s == Right }

// ParseSide accepts "L"/"R" (case-insensitive) and "left"/"right".
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "L", "LEFT":
		return Left, nil
	case "R", "RIGHT":
		return Right, nil
	}
	return 0, fmt.Errorf("%w: unknown side %q", ErrInvalidNotation, s)
}

// Point is one canonical contact point, represented as a single bit.
type Point uint8

const (
	BallInner Point = 1 << iota
	BallOuter
	Heel
	Toe1
	Toe2
	Toe3
	Toe4
	Toe5
)

// Points lists every canonical point in notation order.
var Points = []Point{BallInner, BallOuter, Heel, Toe1, Toe2, Toe3, Toe4, Toe5}

var pointIDs = map[Point]string{
	BallInner: "1",
	BallOuter: "2",
	Heel:      "3",
	Toe1:      "T1",
	Toe2:      "T2",
	Toe3:      "T3",
	Toe4:      "T4",
	Toe5:      "T5",
}

// ID returns the point id used in notation ("1".."3", "T1".."T5").
func (p Point) ID() string {
	if id, ok := pointIDs[p]; ok {
		return id
	}
	return fmt.Sprintf("?%d", uint8(p))
}

// IsToe reports whether p is one of T1..T5.
func (p Point) IsToe() bool { return p >= Toe1 && p <= Toe5 && p&(p-1) == 0 }

// ParsePoint maps a point id to its Point. Unknown ids are rejected.
func ParsePoint(id string) (Point, error) {
	for p, pid := range pointIDs {
		if pid == id {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown point id %q", ErrInvalidNotation, id)
}

// PointSet is a set of contact points.
type PointSet uint8

const (
	// Ungrounded is the empty set.
	Ungrounded PointSet = 0

	// FullContact is the set of all eight points.
	FullContact PointSet = 0xFF

	soleMask PointSet = PointSet(BallInner | BallOuter | Heel)
)

// NewPointSet builds a set from point ids, rejecting unknown ids.
func NewPointSet(ids ...string) (PointSet, error) {
	var s PointSet
	for _, id := range ids {
		p, err := ParsePoint(id)
		if err != nil {
			return 0, err
		}
		s = s.Add(p)
	}
	return s, nil
}

// Has reports whether p is in the set.
func (s PointSet) Has(p Point) bool { return s&PointSet(p) != 0 }

// Add returns the set with p added.
func (s PointSet) Add(p Point) PointSet { return s | PointSet(p) }

// Remove returns the set with p removed.
func (s PointSet) Remove(p Point) PointSet { return s &^ PointSet(p) }

// Toggle returns the set with p flipped.
func (s PointSet) Toggle(p Point) PointSet { return s ^ PointSet(p) }

// Len returns the number of points in the set.
func (s PointSet) Len() int {
	n := 0
	for v := s; v != 0; v &= v - 1 {
		n++
	}
	return n
}

// IDs returns the point ids in notation order.
func (s PointSet) IDs() []string {
	ids := make([]string, 0, s.Len())
	for _, p := range Points {
		if s.Has(p) {
			ids = append(ids, p.ID())
		}
	}
	return ids
}

// String renders the set as "{1,3,T2}".
func (s PointSet) String() string {
	return "{" + strings.Join(s.IDs(), ",") + "}"
}

// Shorthand returns the canonical full-contact notation for side.
func Shorthand(side Side) string {
	return side.String() + "123T12345"
}

// UngroundedNotation returns the notation of an empty set for side.
func UngroundedNotation(side Side) string {
	return side.String() + "0"
}

// Encode renders points as canonical notation for side.
func Encode(points PointSet, side Side) string {
	switch points {
	case Ungrounded:
		return UngroundedNotation(side)
	case FullContact:
		return Shorthand(side)
	}

	var b strings.Builder
	b.WriteByte(byte(side))
	for i, p := range []Point{BallInner, BallOuter, Heel} {
		if points.Has(p) {
			b.WriteByte(byte('1' + i))
		}
	}
	if points&^soleMask != 0 {
		b.WriteByte('T')
		for i, p := range []Point{Toe1, Toe2, Toe3, Toe4, Toe5} {
			if points.Has(p) {
				b.WriteByte(byte('1' + i))
			}
		}
	}
	return b.String()
}

// EncodeIDs encodes a list of point ids. Unknown ids are an error, never
// silently dropped.
func EncodeIDs(ids []string, side Side) (string, error) {
	if !side.Valid() {
		return "", fmt.Errorf("%w: invalid side %q", ErrInvalidNotation, string(side))
	}
	set, err := NewPointSet(ids...)
	if err != nil {
		return "", err
	}
	return Encode(set, side), nil
}

// Decode is the lenient decoder. An empty notation, or one ending with the
// full-contact shorthand, is full contact. Anything unrecognized decodes to
// Ungrounded.
func Decode(notation string, side Side) PointSet {
	if notation == "" || strings.HasSuffix(notation, Shorthand(side)) {
		return FullContact
	}
	set, err := Parse(notation, side)
	if err != nil {
		return Ungrounded
	}
	return set
}

// Parse is the strict decoder. Digits may appear in any order but must not
// repeat. The side prefix must match side.
func Parse(notation string, side Side) (PointSet, error) {
	if !side.Valid() {
		return 0, fmt.Errorf("%w: invalid side %q", ErrInvalidNotation, string(side))
	}
	if notation == "" {
		return FullContact, nil
	}
	if Side(notation[0]) != side {
		return 0, fmt.Errorf("%w: %q does not start with side %s", ErrInvalidNotation, notation, side)
	}

	body := notation[1:]
	switch body {
	case "":
		return 0, fmt.Errorf("%w: %q has no points", ErrInvalidNotation, notation)
	case "0":
		return Ungrounded, nil
	}

	sole, toes, hasToes := strings.Cut(body, "T")
	if hasToes && toes == "" {
		return 0, fmt.Errorf("%w: %q has an empty toe group", ErrInvalidNotation, notation)
	}

	var set PointSet
	for i := 0; i < len(sole); i++ {
		p, err := digitPoint(sole[i], '3', BallInner)
		if err != nil {
			return 0, fmt.Errorf("%w: sole digit in %q", err, notation)
		}
		if set.Has(p) {
			return 0, fmt.Errorf("%w: duplicate point %s in %q", ErrInvalidNotation, p.ID(), notation)
		}
		set = set.Add(p)
	}
	for i := 0; i < len(toes); i++ {
		p, err := digitPoint(toes[i], '5', Toe1)
		if err != nil {
			return 0, fmt.Errorf("%w: toe digit in %q", err, notation)
		}
		if set.Has(p) {
			return 0, fmt.Errorf("%w: duplicate point %s in %q", ErrInvalidNotation, p.ID(), notation)
		}
		set = set.Add(p)
	}
	return set, nil
}

func digitPoint(c, max byte, first Point) (Point, error) {
	if c < '1' || c > max {
		return 0, fmt.Errorf("%w: unexpected %q", ErrInvalidNotation, c)
	}
	return first << (c - '1'), nil
}

// Valid reports whether notation passes the strict decoder for side.
func Valid(notation string, side Side) bool {
	_, err := Parse(notation, side)
	return err == nil
}

// Canonical re-encodes a strictly valid notation. Empty input stays empty so
// that "unset" records are not rewritten as full contact.
func Canonical(notation string, side Side) (string, error) {
	if notation == "" {
		return "", nil
	}
	set, err := Parse(notation, side)
	if err != nil {
		return "", err
	}
	return Encode(set, side), nil
}

// PivotPoint returns the id of the point a grounded foot rotates about:
// the heel when planted, otherwise the inner ball, the outer ball, or the
// first grounded toe. Ungrounded feet have no pivot.
func PivotPoint(points PointSet) string {
	for _, p := range []Point{Heel, BallInner, BallOuter, Toe1, Toe2, Toe3, Toe4, Toe5} {
		if points.Has(p) {
			return p.ID()
		}
	}
	return ""
}
