package notation

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip_AllSubsets(t *testing.T) {
	for _, side := range []Side{Left, Right} {
		for m := 0; m < 256; m++ {
			set := PointSet(m)
			encoded := Encode(set, side)

			assert.Equal(t, set, Decode(encoded, side), "decode(encode(%s)) side %s", set, side)

			strict, err := Parse(encoded, side)
			require.NoError(t, err, "strict parse of %q", encoded)
			assert.Equal(t, set, strict)

			assert.Equal(t, encoded, Encode(Decode(encoded, side), side), "re-encoding must be byte-identical")
		}
	}
}

func TestEncode_Shorthand(t *testing.T) {
	assert.Equal(t, "L123T12345", Encode(FullContact, Left))
	assert.Equal(t, "R123T12345", Encode(FullContact, Right))
	assert.Equal(t, "L0", Encode(Ungrounded, Left))
	assert.Equal(t, "L3", Encode(PointSet(Heel), Left))
	assert.Equal(t, "RT24", Encode(PointSet(Toe2|Toe4), Right))
}

func TestEncodeIDs_OrderIndependent(t *testing.T) {
	a, err := EncodeIDs([]string{"T3", "3", "1", "T1"}, Left)
	require.NoError(t, err)
	b, err := EncodeIDs([]string{"1", "T1", "T3", "3"}, Left)
	require.NoError(t, err)

	assert.Equal(t, "L13T13", a)
	assert.Equal(t, a, b)
}

func TestEncodeIDs_RejectsUnknown(t *testing.T) {
	_, err := EncodeIDs([]string{"1", "T6"}, Left)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidNotation)

	_, err = EncodeIDs([]string{"heel"}, Left)
	assert.ErrorIs(t, err, ErrInvalidNotation)

	_, err = EncodeIDs([]string{"1"}, Side('X'))
	assert.ErrorIs(t, err, ErrInvalidNotation)
}

func TestDecode_Lenient(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected PointSet
	}{
		{"empty is full contact", "", FullContact},
		{"shorthand", "L123T12345", FullContact},
		{"ends with shorthand", "xxL123T12345", FullContact},
		{"ungrounded", "L0", Ungrounded},
		{"heel", "L3", PointSet(Heel)},
		{"unordered digits", "L31", PointSet(Heel | BallInner)},
		{"toes only", "LT15", PointSet(Toe1 | Toe5)},
		{"garbage", "hello", Ungrounded},
		{"wrong side", "R3", Ungrounded},
		{"bad sole digit", "L4", Ungrounded},
		{"bad toe digit", "LT6", Ungrounded},
		{"dangling T", "L1T", Ungrounded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Decode(tt.input, Left))
		})
	}
}

func TestParse_Strict(t *testing.T) {
	bad := []string{"R3", "L", "L4", "L11", "LT11", "L1T", "L1TT2", "L1x", "LT6"}
	for _, input := range bad {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input, Left)
			assert.ErrorIs(t, err, ErrInvalidNotation)
		})
	}

	set, err := Parse("", Left)
	require.NoError(t, err)
	assert.Equal(t, FullContact, set)
}

func TestCanonical(t *testing.T) {
	c, err := Canonical("L321T51", Left)
	require.NoError(t, err)
	assert.Equal(t, "L123T15", c)

	c, err = Canonical("", Left)
	require.NoError(t, err)
	assert.Equal(t, "", c)

	_, err = Canonical("L9", Left)
	assert.ErrorIs(t, err, ErrInvalidNotation)
}

func TestPointSet_Ops(t *testing.T) {
	s, err := NewPointSet("1", "T2")
	require.NoError(t, err)

	assert.True(t, s.Has(BallInner))
	assert.False(t, s.Has(Heel))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"1", "T2"}, s.IDs())
	assert.Equal(t, "{1,T2}", s.String())

	s = s.Toggle(Heel).Remove(BallInner)
	assert.Equal(t, []string{"3", "T2"}, s.IDs())
	assert.True(t, Toe3.IsToe())
	assert.False(t, Heel.IsToe())
}

func TestPivotPoint(t *testing.T) {
	assert.Equal(t, "3", PivotPoint(FullContact))
	assert.Equal(t, "1", PivotPoint(PointSet(BallInner|Toe1)))
	assert.Equal(t, "T4", PivotPoint(PointSet(Toe4|Toe5)))
	assert.Equal(t, "", PivotPoint(Ungrounded))
}

func TestParseSide(t *testing.T) {
	s, err := ParseSide("left")
	require.NoError(t, err)
	assert.Equal(t, Left, s)

	s, err = ParseSide("R")
	require.NoError(t, err)
	assert.Equal(t, Right, s)

	_, err = ParseSide("up")
	assert.ErrorIs(t, err, ErrInvalidNotation)
}

// The table is the byte-stable contract for saved files.
func TestTable_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "table_L", []byte(FormatTable(Table(Left))))
}
