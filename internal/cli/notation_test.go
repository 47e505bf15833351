package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotationEncode(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"heel and toe", []string{"encode", "L", "1", "3", "T1"}, "L13T1\tpoints=1,3,T1\tpivot=3\n"},
		{"no points", []string{"encode", "R"}, "R0\tpoints=\tpivot=-\n"},
		{"order independent", []string{"encode", "right", "T5", "2"}, "R2T5\tpoints=2,T5\tpivot=2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, NewNotationCommand(testOptions("text")), tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestNotationEncode_RejectsUnknownPoint(t *testing.T) {
	out, err := run(t, NewNotationCommand(testOptions("json")), "encode", "L", "1", "T9")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeInvalidInput, decodeError(t, out).Code)
}

func TestNotationDecode_JSON(t *testing.T) {
	out, err := run(t, NewNotationCommand(testOptions("json")), "decode", "L", "L123T12345")
	require.NoError(t, err)

	var res NotationResult
	decodeData(t, out, &res)
	assert.Equal(t, "L", res.Side)
	assert.Equal(t, []string{"1", "2", "3", "T1", "T2", "T3", "T4", "T5"}, res.Points)
	assert.Equal(t, "L123T12345", res.Notation)
	assert.Equal(t, "3", res.Pivot)
}

func TestNotationDecode_LenientVersusStrict(t *testing.T) {
	out, err := run(t, NewNotationCommand(testOptions("text")), "decode", "L", "L9")
	require.NoError(t, err)
	assert.Equal(t, "L0\tpoints=\tpivot=-\n", out)

	out, err = run(t, NewNotationCommand(testOptions("text")), "decode", "--strict", "L", "L9")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "invalid notation")
}

func TestNotationDecode_InvalidSide(t *testing.T) {
	_, err := run(t, NewNotationCommand(testOptions("text")), "decode", "Q", "L1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestNotationTable(t *testing.T) {
	out, err := run(t, NewNotationCommand(testOptions("json")), "table", "R")
	require.NoError(t, err)

	var rows []struct {
		Mask     uint8    `json:"mask"`
		Points   []string `json:"points"`
		Notation string   `json:"notation"`
	}
	decodeData(t, out, &rows)
	require.Len(t, rows, 256)
	assert.Equal(t, "R0", rows[0].Notation)
	assert.Equal(t, "R3", rows[4].Notation)
	assert.Equal(t, "R123T12345", rows[255].Notation)

	text, err := run(t, NewNotationCommand(testOptions("text")), "table", "R")
	require.NoError(t, err)
	assert.Contains(t, text, "00000100\t3\tR3\n")
}
