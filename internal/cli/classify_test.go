package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilosayaw/seqsync-sub000/internal/biomech"
)

const leftArmPose = `{
  "joints": {
    "LS": {"vector": [0, 0, 0], "score": 0.9},
    "LE": {"vector": [0, -1, 0], "score": 0.9},
    "LW": {"vector": [1, -1, 0], "score": 0.9},
    "RS": {"vector": [2, 0, 0], "score": 0.1}
  },
  "previous": {
    "LE": {"vector": {"x": 0, "y": -1, "z": -0.4}, "score": 0.9}
  },
  "faceVisible": false
}`

func TestClassify_Text(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pose.json")
	writeFile(t, path, leftArmPose)

	out, err := run(t, NewClassifyCommand(testOptions("text")), path)
	require.NoError(t, err)
	// face hidden: the facing policy halves the 0.4 delta and clamps it to 0.15
	assert.Equal(t, "LE\tFLEX\tdz=+0.150\nLS\tOUT\n", out)
}

func TestClassify_RawDepthFromStdin(t *testing.T) {
	cmd := NewClassifyCommand(testOptions("json"))
	cmd.SetIn(strings.NewReader(leftArmPose))

	out, err := run(t, cmd, "--depth-policy", "raw", "-")
	require.NoError(t, err)

	var res ClassifyResult
	decodeData(t, out, &res)
	assert.Equal(t, biomech.Flex, res.Orientations["LE"])
	assert.Equal(t, biomech.Out, res.Orientations["LS"])
	assert.NotContains(t, res.Orientations, "RE")
	assert.InDelta(t, 0.4, res.Depth["LE"], 1e-12)
}

func TestClassify_MinScoreOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pose.json")
	writeFile(t, path, leftArmPose)

	out, err := run(t, NewClassifyCommand(testOptions("text")), "--min-score", "0.95", path)
	require.NoError(t, err)
	assert.Equal(t, "no classifiable joints\n", out)
}

func TestClassify_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	writeFile(t, bad, `{"joints": [1, 2]}`)

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"missing file", []string{filepath.Join(dir, "none.json")}, ErrCodeNotFound},
		{"malformed pose", []string{bad}, ErrCodeInvalidInput},
		{"unknown policy", []string{"--depth-policy", "magic", bad}, ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, NewClassifyCommand(testOptions("json")), tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Equal(t, tt.code, decodeError(t, out).Code)
		})
	}
}
