package media

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietProber() *Prober {
	return NewProber(slog.New(slog.NewTextHandler(io.Discard, nil)))
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

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"a.wav", WAV},
		{"B.WAV", WAV},
		{"x.wave", WAV},
		{"song.flac", FLAC},
		{"dir.v2/track.Mp3", MP3},
	}
	for _, tt := range tests {
		got, err := FormatOf(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}

	_, err := FormatOf("clip.m4a")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	_, err = FormatOf("noext")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestProbe_WAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groove.wav")
	writeWAV(t, path, 8000, 4)

	info, err := quietProber().Probe(path)
	require.NoError(t, err)
	assert.Equal(t, WAV, info.Format)
	assert.InDelta(t, 4.0, info.Duration.Seconds(), 1e-3)
	assert.Equal(t, 8000, info.SampleRate)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, "groove", info.Title, "untagged files are titled by name")
	assert.Zero(t, info.BPM)

	seq, err := info.NewSequence(120, 16)
	require.NoError(t, err)
	assert.Equal(t, 1, seq.Bars())
	assert.Equal(t, 120.0, seq.BPM)
	assert.Equal(t, "groove.wav", seq.AudioFileName)

	// 4s at 300 BPM is 20 beats, two bars of 16
	seq, err = info.NewSequence(300, 16)
	require.NoError(t, err)
	assert.Equal(t, 2, seq.Bars())
}

func TestProbe_Errors(t *testing.T) {
	dir := t.TempDir()
	p := quietProber()

	_, err := p.Probe(filepath.Join(dir, "clip.ogg"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = p.Probe(filepath.Join(dir, "missing.wav"))
	assert.Error(t, err)

	for _, name := range []string{"junk.wav", "junk.flac", "junk.mp3"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("definitely not audio"), 0o644))
		_, err := p.Probe(path)
		assert.Error(t, err, name)
	}

	empty := filepath.Join(dir, "empty.mp3")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = p.Probe(empty)
	assert.ErrorContains(t, err, "no mp3 frames")
}

func TestTaggedBPM(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]interface{}
		want float64
	}{
		{"id3v2.4", map[string]interface{}{"TBPM": "128"}, 128},
		{"id3v2.2", map[string]interface{}{"TBP": " 96.5 "}, 96.5},
		{"vorbis lowercase", map[string]interface{}{"bpm": "174"}, 174},
		{"mp4 int", map[string]interface{}{"tmpo": 90}, 90},
		{"garbage", map[string]interface{}{"TBPM": "fast"}, 0},
		{"out of range", map[string]interface{}{"TBPM": "5000"}, 0},
		{"zero", map[string]interface{}{"TBPM": "0"}, 0},
		{"preferred key wins", map[string]interface{}{"TBPM": "100", "bpm": "140"}, 100},
		{"none", map[string]interface{}{"TIT2": "Song"}, 0},
		{"nil", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TaggedBPM(tt.raw))
		})
	}
}

func TestBarsFor(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		bpm      float64
		steps    int
		want     int
	}{
		{"exact bars", 16 * time.Second, 120, 16, 2},
		{"partial bar rounds up", 17 * time.Second, 120, 16, 3},
		{"short clip", time.Second, 120, 16, 1},
		{"zero duration", 0, 120, 16, 1},
		{"zero bpm", time.Minute, 0, 16, 1},
		{"zero steps", time.Minute, 120, 0, 1},
		{"eight steps", 8 * time.Second, 60, 8, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BarsFor(tt.duration, tt.bpm, tt.steps))
		})
	}
}
