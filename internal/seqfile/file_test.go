package seqfile

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilosayaw/seqsync-sub000/internal/biomech"
	"github.com/kilosayaw/seqsync-sub000/internal/geom"
	"github.com/kilosayaw/seqsync-sub000/internal/notation"
	"github.com/kilosayaw/seqsync-sub000/internal/sequence"
)

func quietDecoder() *Decoder {
	return NewDecoder(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func ptr[T any](v T) *T { return &v }

func TestSaveLoad_EndToEnd(t *testing.T) {
	store, err := sequence.New(1, 16, 120)
	require.NoError(t, err)

	heel, err := notation.NewPointSet("3")
	require.NoError(t, err)
	require.NoError(t, store.SetJointField(sequence.Address{}, "LF", sequence.JointUpdate{
		Grounding: ptr(notation.Encode(heel, notation.Left)),
	}))

	path := filepath.Join(t.TempDir(), "take.json")
	require.NoError(t, WriteFile(path, store.Current()))

	loaded, warnings, err := ReadFile(path, quietDecoder())
	require.NoError(t, err)
	assert.Empty(t, warnings)

	got := loaded.Beats[0].Joints["LF"].Grounding
	assert.Equal(t, heel, notation.Decode(got, notation.Left))

	fresh, err := sequence.NewSequence(1, 16, 120)
	require.NoError(t, err)
	require.Equal(t, fresh.Len(), loaded.Len())
	for i := 1; i < fresh.Len(); i++ {
		assert.Equal(t, fresh.Beats[i], loaded.Beats[i], "beat %d", i)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	store, err := sequence.New(3, 8, 97.5)
	require.NoError(t, err)
	require.NoError(t, store.SetJointField(sequence.Address{Bar: 2, Beat: 7}, "RF", sequence.JointUpdate{
		Vector:    &geom.Vec3{X: 0.5, Y: -0.25, Z: 0.125},
		Score:     ptr(0.75),
		Grounding: ptr("RT531"),
		Rotation:  ptr(-12.5),
	}))
	require.NoError(t, store.SetJointField(sequence.Address{Bar: 1, Beat: 0}, "LE", sequence.JointUpdate{
		Orientation: ptr(biomech.Flex),
		Role:        ptr(sequence.RoleCoiled),
	}))
	_, err = store.AddSound(sequence.Address{Bar: 1, Beat: 3}, "snare")
	require.NoError(t, err)
	_, err = store.SetMeta(sequence.Address{Beat: 1}, "cue", ptr("intro"))
	require.NoError(t, err)
	_, err = store.SetGridOffset(0.42)
	require.NoError(t, err)
	_, err = store.SetMedia(ptr("song.flac"), ptr("https://example.com/v.mp4"))
	require.NoError(t, err)

	data, err := Encode(store.Current())
	require.NoError(t, err)

	loaded, warnings, err := quietDecoder().Decode(data)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, store.Current(), loaded)
	assert.Equal(t, "RT135", loaded.Beats[23].Joints["RF"].Grounding)

	require.NoError(t, Validate("roundtrip.json", data))
}

func TestDecode_MissingFieldsUseDefaults(t *testing.T) {
	seq, warnings, err := quietDecoder().Decode([]byte(`{"gridOffset": 1.5}`))
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, 16, seq.Len())
	assert.Equal(t, 120.0, seq.BPM)
	assert.Equal(t, 1.5, seq.GridOffset)
	require.NoError(t, seq.Validate())
}

func TestDecode_ArrayShapedBars(t *testing.T) {
	doc := `{
		"stepsPerBar": 2,
		"bars": [
			[{"bar": 0, "beat": 0, "sounds": ["kick"]}, {"sounds": []}],
			[{"joints": {"LF": {"vector": {"x": 0.1}, "score": 0.9, "grounding": "L3"}}}]
		]
	}`
	seq, warnings, err := quietDecoder().Decode([]byte(doc))
	require.NoError(t, err)
	assert.Empty(t, warnings)

	require.Equal(t, 4, seq.Len())
	assert.Equal(t, []string{"kick"}, seq.Beats[0].Sounds)
	lf := seq.Beats[2].Joints["LF"]
	assert.Equal(t, "L3", lf.Grounding)
	assert.Equal(t, 0.1, lf.Vector.X)
	assert.Equal(t, sequence.Address{Bar: 1, Beat: 0}, seq.Beats[2].Address())
}

func TestDecode_RepairsAndWarns(t *testing.T) {
	doc := `{
		"bpm": 5000,
		"stepsPerBar": 2,
		"bars": {
			"x": [],
			"0": [
				{"joints": {
					"LF": {"grounding": "R1", "pivot": "3"},
					"RF": {"grounding": "R21", "pivot": "T9"},
					"LK": {"grounding": "L1", "score": 3, "orientation": "SIDEWAYS"}
				},
				 "sounds": ["a", "b", "a", "c", "d", "e"]},
				"not a beat",
				{"sounds": ["late"]}
			]
		}
	}`
	seq, warnings, err := quietDecoder().Decode([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, 120.0, seq.BPM)
	assert.Equal(t, 2, seq.Len())

	b := seq.Beats[0]
	assert.Equal(t, "", b.Joints["LF"].Grounding, "side mismatch dropped")
	assert.Equal(t, "", b.Joints["LF"].Pivot)
	assert.Equal(t, "R12", b.Joints["RF"].Grounding)
	assert.Equal(t, "", b.Joints["RF"].Pivot)
	assert.Equal(t, "", b.Joints["LK"].Grounding)
	assert.Equal(t, 1.0, b.Joints["LK"].Score)
	assert.Equal(t, biomech.None, b.Joints["LK"].Orientation)
	assert.Equal(t, []string{"a", "b", "c", "d"}, b.Sounds)
	assert.Equal(t, sequence.NewBeat(sequence.Address{Beat: 1}), seq.Beats[1])

	assert.Len(t, warnings, 10)
}

func TestDecode_NotAnObject(t *testing.T) {
	_, _, err := quietDecoder().Decode([]byte(`[1, 2`))
	assert.Error(t, err)
	_, _, err = ReadFile(filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.Error(t, err)
}

func TestDecode_GrowsToHighestBar(t *testing.T) {
	seq, _, err := quietDecoder().Decode([]byte(`{"stepsPerBar": 4, "bars": {"3": [{"sounds": ["x"]}]}}`))
	require.NoError(t, err)
	assert.Equal(t, 4, seq.Bars())
	assert.Equal(t, []string{"x"}, seq.Beats[12].Sounds)
}

func TestDecode_DropsOutOfRangeBarKeys(t *testing.T) {
	for _, key := range []string{
		"9223372036854775807",
		"1152921504606846976",
		"100000000",
		"4096",
	} {
		t.Run(key, func(t *testing.T) {
			doc := `{"bars": {"` + key + `": [{"sounds": ["kick"]}], "1": [{"sounds": ["snare"]}]}}`
			seq, warnings, err := quietDecoder().Decode([]byte(doc))
			require.NoError(t, err)

			require.NoError(t, seq.Validate())
			assert.Equal(t, 2, seq.Bars())
			assert.Equal(t, 32, seq.Len())
			assert.Empty(t, seq.Beats[0].Sounds, "beat 0 untouched")
			assert.Equal(t, []string{"snare"}, seq.Beats[16].Sounds)
			require.Len(t, warnings, 1)
			assert.Contains(t, warnings[0], "bar "+key+" beyond")
		})
	}
}

func TestDecode_LastBarWithinCap(t *testing.T) {
	doc := `{"stepsPerBar": 16, "bars": {"4095": [{"sounds": ["kick"]}]}}`
	seq, warnings, err := quietDecoder().Decode([]byte(doc))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, sequence.MaxBeats, seq.Len())
	assert.Equal(t, []string{"kick"}, seq.Beats[sequence.MaxBeats-16].Sounds)
}

func TestDecode_HugeStepsPerBarIgnored(t *testing.T) {
	seq, warnings, err := quietDecoder().Decode([]byte(`{"stepsPerBar": 1000000}`))
	require.NoError(t, err)
	assert.Equal(t, sequence.DefaultStepsPerBar, seq.StepsPerBar)
	assert.Equal(t, []string{"stepsPerBar 1000000 ignored"}, warnings)
}

func TestFromSequence_KeysBars(t *testing.T) {
	seq, err := sequence.NewSequence(2, 4, 120)
	require.NoError(t, err)
	f := FromSequence(seq)
	require.Len(t, f.Bars, 2)
	assert.Len(t, f.Bars["1"], 4)
	assert.Equal(t, sequence.Address{Bar: 1, Beat: 2}, f.Bars["1"][2].Address())

	data, err := json.Marshal(f)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "beats", "file shape keys beats by bar")
}

func TestWriteFile_BadPath(t *testing.T) {
	seq, err := sequence.NewSequence(1, 4, 120)
	require.NoError(t, err)
	dir := t.TempDir()
	err = WriteFile(filepath.Join(dir, "nope", "x.json"), seq)
	assert.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "nope"))
	assert.True(t, os.IsNotExist(statErr))
}
