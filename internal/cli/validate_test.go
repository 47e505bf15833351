package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Valid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seq.json")
	writeSequence(t, path, 1, 4, 120)

	out, err := run(t, NewValidateCommand(testOptions("text")), path)
	require.NoError(t, err)
	assert.Equal(t, "✓ "+path+" is valid\n", out)
}

func TestValidate_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seq.json")
	writeFile(t, path, `{"bpm": 120, "stepsPerBar": 1, "bars": {"first": []}, "audioBuffer": "AAAA"}`)

	out, err := run(t, NewValidateCommand(testOptions("json")), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var res ValidationResult
	decodeData(t, out, &res)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Problems)
	assert.Contains(t, out, "audioBuffer")
}

func TestValidate_Lenient(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seq.json")
	writeFile(t, path, `{"bpm": 120, "stepsPerBar": 1, "bars": {"first": []}}`)

	out, err := run(t, NewValidateCommand(testOptions("text")), "--lenient", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+path+" is valid\n")
	assert.Contains(t, out, `warning: bar key "first" dropped`)
}

func TestValidate_LenientUnreadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seq.json")
	writeFile(t, path, `{"bpm":`)

	out, err := run(t, NewValidateCommand(testOptions("text")), "--lenient", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ "+path+" has 1 problem(s)")
}

func TestValidate_MissingFile(t *testing.T) {
	out, err := run(t, NewValidateCommand(testOptions("json")), filepath.Join(t.TempDir(), "none.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeNotFound, decodeError(t, out).Code)
}
