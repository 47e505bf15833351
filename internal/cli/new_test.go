package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilosayaw/seqsync-sub000/internal/seqfile"
	"github.com/kilosayaw/seqsync-sub000/internal/sequence"
)

// writeSequence writes an empty sequence of the given shape to path.
func writeSequence(t *testing.T, path string, bars, steps int, bpm float64) {
	t.Helper()
	seq, err := sequence.NewSequence(bars, steps, bpm)
	require.NoError(t, err)
	require.NoError(t, seqfile.WriteFile(path, seq))
}

// loadSequence reads path back the way the commands do.
func loadSequence(t *testing.T, path string) *sequence.Sequence {
	t.Helper()
	seq, _, err := seqfile.ReadFile(path, seqfile.NewDecoder(nil))
	require.NoError(t, err)
	return seq
}

// writeWAV encodes seconds of silence as 16-bit mono PCM.
func writeWAV(t *testing.T, path string, sampleRate int, seconds float64) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, int(float64(sampleRate)*seconds)),
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

func TestNew_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dance.json")

	out, err := run(t, NewNewCommand(testOptions("text")), path)
	require.NoError(t, err)
	assert.Equal(t, "created "+path+": 1 bar(s) x 16 steps at 120 BPM\n", out)

	seq := loadSequence(t, path)
	assert.Equal(t, 1, seq.Bars())
	assert.Equal(t, 16, seq.StepsPerBar)
	assert.Equal(t, 120.0, seq.BPM)
}

func TestNew_Flags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dance.json")

	out, err := run(t, NewNewCommand(testOptions("json")), path,
		"--bars", "3", "--steps", "8", "--bpm", "96", "--offset", "0.25", "--video", "https://example.com/v.mp4")
	require.NoError(t, err)

	var res NewResult
	decodeData(t, out, &res)
	assert.Equal(t, NewResult{Path: path, Bars: 3, StepsPerBar: 8, BPM: 96, GridOffset: 0.25}, res)

	seq := loadSequence(t, path)
	assert.Equal(t, 24, seq.Len())
	assert.Equal(t, 0.25, seq.GridOffset)
	assert.Equal(t, "https://example.com/v.mp4", seq.VideoURL)
}

func TestNew_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dance.json")
	writeSequence(t, path, 2, 4, 100)

	_, err := run(t, NewNewCommand(testOptions("text")), path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, 2, loadSequence(t, path).Bars(), "file must be untouched")

	_, err = run(t, NewNewCommand(testOptions("text")), "--force", path)
	require.NoError(t, err)
	assert.Equal(t, 1, loadSequence(t, path).Bars())
}

func TestNew_InvalidShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dance.json")
	out, err := run(t, NewNewCommand(testOptions("json")), path, "--bpm", "5000")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeInvalidInput, decodeError(t, out).Code)
	assert.NoFileExists(t, path)
}

func TestNew_FromAudio(t *testing.T) {
	dir := t.TempDir()
	track := filepath.Join(dir, "groove.wav")
	writeWAV(t, track, 8000, 4)
	path := filepath.Join(dir, "dance.json")

	// 4s at 300 BPM is 20 beats, two bars of 16
	out, err := run(t, NewNewCommand(testOptions("json")), path, "--audio", track, "--bpm", "300")
	require.NoError(t, err)

	var res NewResult
	decodeData(t, out, &res)
	assert.Equal(t, 2, res.Bars)
	assert.Equal(t, 300.0, res.BPM)
	assert.Equal(t, "groove.wav", res.AudioFileName)
	assert.Equal(t, "groove.wav", loadSequence(t, path).AudioFileName)
}

func TestNew_UnsupportedAudio(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, NewNewCommand(testOptions("json")), filepath.Join(dir, "dance.json"), "--audio", filepath.Join(dir, "clip.ogg"))
	require.Error(t, err)
	assert.Equal(t, ErrCodeUnsupported, decodeError(t, out).Code)
}

func TestProbe(t *testing.T) {
	track := filepath.Join(t.TempDir(), "groove.wav")
	writeWAV(t, track, 8000, 10)

	out, err := run(t, NewProbeCommand(testOptions("json")), track)
	require.NoError(t, err)

	var res ProbeResult
	decodeData(t, out, &res)
	assert.Equal(t, track, res.Path)
	assert.InDelta(t, 10.0, res.DurationSeconds, 1e-3)
	assert.Equal(t, 8000, res.SampleRate)
	// untagged: 10s at the configured 120 BPM is 20 beats
	assert.Equal(t, 120.0, res.SuggestedBPM)
	assert.Equal(t, 2, res.SuggestedBars)

	out, err = run(t, NewProbeCommand(testOptions("json")), track, "--steps", "4")
	require.NoError(t, err)
	decodeData(t, out, &res)
	assert.Equal(t, 5, res.SuggestedBars)
}

func TestProbe_Text(t *testing.T) {
	track := filepath.Join(t.TempDir(), "groove.wav")
	writeWAV(t, track, 8000, 2)

	out, err := run(t, NewProbeCommand(testOptions("text")), track)
	require.NoError(t, err)
	assert.Contains(t, out, "format\twav\n")
	assert.Contains(t, out, "title\tgroove\n")
	assert.Contains(t, out, "bars\t1 at 120 BPM\n")
	assert.NotContains(t, out, "tagged bpm")
}

func TestProbe_Errors(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, NewProbeCommand(testOptions("json")), filepath.Join(dir, "clip.m4a"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeUnsupported, decodeError(t, out).Code)

	out, err = run(t, NewProbeCommand(testOptions("json")), filepath.Join(dir, "missing.wav"))
	require.Error(t, err)
	assert.Equal(t, ErrCodeNotFound, decodeError(t, out).Code)
}
