// Package seqfile reads and writes sequence files.
//
// The file shape is
//
//	{"bars": {"0": [Beat, ...], "1": [...]}, "gridOffset": 0,
//	 "audioFileName": "song.wav", "bpm": 120, "stepsPerBar": 16,
//	 "videoUrl": ""}
//
// Media payloads are never embedded; audioFileName and videoUrl are
// references the caller re-attaches out of band.
//
// Decode is tolerant: it merges whatever it can read onto a freshly created
// default sequence and reports what it had to drop. Validate is the strict
// path used by tooling.
package seqfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"

	"github.com/kilosayaw/seqsync-sub000/internal/biomech"
	"github.com/kilosayaw/seqsync-sub000/internal/notation"
	"github.com/kilosayaw/seqsync-sub000/internal/sequence"
)

// File is the on-disk document.
type File struct {
	Bars          map[string][]*sequence.Beat `json:"bars"`
	GridOffset    float64                     `json:"gridOffset"`
	AudioFileName string                      `json:"audioFileName,omitempty"`
	BPM           float64                     `json:"bpm"`
	StepsPerBar   int                         `json:"stepsPerBar"`
	VideoURL      string                      `json:"videoUrl,omitempty"`
}

// FromSequence converts a sequence into its file form.
func FromSequence(seq *sequence.Sequence) File {
	f := File{
		Bars:          make(map[string][]*sequence.Beat, seq.Bars()),
		GridOffset:    seq.GridOffset,
		AudioFileName: seq.AudioFileName,
		BPM:           seq.BPM,
		StepsPerBar:   seq.StepsPerBar,
		VideoURL:      seq.VideoURL,
	}
	for bar := 0; bar < seq.Bars(); bar++ {
		start := bar * seq.StepsPerBar
		f.Bars[strconv.Itoa(bar)] = seq.Beats[start : start+seq.StepsPerBar]
	}
	return f
}

// Encode renders seq as indented JSON.
func Encode(seq *sequence.Sequence) ([]byte, error) {
	data, err := json.MarshalIndent(FromSequence(seq), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode sequence: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteFile saves seq to path.
func WriteFile(path string, seq *sequence.Sequence) error {
	data, err := Encode(seq)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write sequence file: %w", err)
	}
	return nil
}

// Defaults shape the fresh sequence a file is merged onto.
type Defaults struct {
	Bars        int
	StepsPerBar int
	BPM         float64
}

// DefaultDefaults is a single 16-step bar at 120 BPM.
func DefaultDefaults() Defaults {
	return Defaults{Bars: 1, StepsPerBar: sequence.DefaultStepsPerBar, BPM: sequence.DefaultBPM}
}

// Decoder merges sequence files onto defaults.
type Decoder struct {
	Defaults Defaults
	Logger   *slog.Logger
}

// NewDecoder creates a decoder with DefaultDefaults.
func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{Defaults: DefaultDefaults(), Logger: logger}
}

// document mirrors File with every field optional.
type document struct {
	Bars          json.RawMessage `json:"bars"`
	GridOffset    *float64        `json:"gridOffset"`
	AudioFileName *string         `json:"audioFileName"`
	BPM           *float64        `json:"bpm"`
	StepsPerBar   *int            `json:"stepsPerBar"`
	VideoURL      *string         `json:"videoUrl"`
}

// Decode reads data onto a fresh default sequence. Only a document that is
// not a JSON object at all is an error; everything else that cannot be used
// is dropped and reported in the returned warnings.
func (d *Decoder) Decode(data []byte) (*sequence.Sequence, []string, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode sequence file: %w", err)
	}

	var warnings []string
	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		warnings = append(warnings, msg)
		d.Logger.Warn("sequence file", "problem", msg)
	}

	steps := d.Defaults.StepsPerBar
	if doc.StepsPerBar != nil {
		if *doc.StepsPerBar >= 1 && *doc.StepsPerBar <= sequence.MaxBeats {
			steps = *doc.StepsPerBar
		} else {
			warn("stepsPerBar %d ignored", *doc.StepsPerBar)
		}
	}
	bpm := d.Defaults.BPM
	if doc.BPM != nil {
		if *doc.BPM >= sequence.MinBPM && *doc.BPM <= sequence.MaxBPM {
			bpm = *doc.BPM
		} else {
			warn("bpm %g ignored", *doc.BPM)
		}
	}

	bars, err := d.decodeBars(doc.Bars, warn)
	if err != nil {
		return nil, warnings, err
	}

	count := d.Defaults.Bars
	for idx := range bars {
		// idx < MaxBeats/steps keeps (idx+1)*steps within the grid cap
		if idx >= sequence.MaxBeats/steps {
			warn("bar %d beyond %d beats dropped", idx, sequence.MaxBeats)
			delete(bars, idx)
			continue
		}
		if idx+1 > count {
			count = idx + 1
		}
	}
	seq, err := sequence.NewSequence(count, steps, bpm)
	if err != nil {
		return nil, warnings, fmt.Errorf("decode sequence file: %w", err)
	}
	if doc.GridOffset != nil {
		seq.GridOffset = *doc.GridOffset
	}
	if doc.AudioFileName != nil {
		seq.AudioFileName = *doc.AudioFileName
	}
	if doc.VideoURL != nil {
		seq.VideoURL = *doc.VideoURL
	}

	for _, idx := range sortedKeys(bars) {
		for j, raw := range bars[idx] {
			addr := sequence.Address{Bar: idx, Beat: j}
			if j >= steps {
				warn("bar %d: beat %d beyond %d steps dropped", idx, j, steps)
				continue
			}
			b, ok := d.decodeBeat(raw, addr, warn)
			if !ok {
				continue
			}
			i, ok := seq.Index(addr)
			if !ok {
				warn("beat %s outside the grid dropped", addr)
				continue
			}
			seq.Beats[i] = b
		}
	}
	return seq, warnings, nil
}

// decodeBars accepts the current object shape and the older array shape.
func (d *Decoder) decodeBars(raw json.RawMessage, warn func(string, ...any)) (map[int][]json.RawMessage, error) {
	out := make(map[int][]json.RawMessage)
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out, nil
	}

	switch raw[0] {
	case '{':
		var byKey map[string]json.RawMessage
		if err := json.Unmarshal(raw, &byKey); err != nil {
			return nil, fmt.Errorf("decode bars: %w", err)
		}
		for key, v := range byKey {
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 {
				warn("bar key %q dropped", key)
				continue
			}
			var beats []json.RawMessage
			if err := json.Unmarshal(v, &beats); err != nil {
				warn("bar %d dropped: %v", idx, err)
				continue
			}
			out[idx] = beats
		}
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode bars: %w", err)
		}
		for idx, v := range list {
			var beats []json.RawMessage
			if err := json.Unmarshal(v, &beats); err != nil {
				warn("bar %d dropped: %v", idx, err)
				continue
			}
			out[idx] = beats
		}
	default:
		warn("bars field of unexpected shape dropped")
	}
	return out, nil
}

// decodeBeat repairs one beat. Its identity always comes from its position.
func (d *Decoder) decodeBeat(raw json.RawMessage, addr sequence.Address, warn func(string, ...any)) (*sequence.Beat, bool) {
	var in sequence.Beat
	if err := json.Unmarshal(raw, &in); err != nil {
		warn("beat %s dropped: %v", addr, err)
		return nil, false
	}

	b := sequence.NewBeat(addr)
	for id, rec := range in.Joints {
		if !rec.Vector.IsFinite() {
			warn("beat %s: joint %s dropped, vector not finite", addr, id)
			continue
		}
		if rec.Score < 0 || rec.Score > 1 {
			warn("beat %s: joint %s score %g clamped", addr, id, rec.Score)
			if rec.Score < 0 {
				rec.Score = 0
			} else {
				rec.Score = 1
			}
		}
		if !rec.Orientation.Valid() {
			warn("beat %s: joint %s orientation %q dropped", addr, id, rec.Orientation)
			rec.Orientation = biomech.None
		}
		if !rec.Role.Valid() {
			warn("beat %s: joint %s role %q dropped", addr, id, rec.Role)
			rec.Role = sequence.RoleNone
		}
		rec.Grounding, rec.Pivot = repairGrounding(id, rec.Grounding, rec.Pivot, func(msg string) {
			warn("beat %s: joint %s %s", addr, id, msg)
		})
		b.Joints[id] = rec
	}

	for _, s := range in.Sounds {
		s = sequence.NormalizeSound(s)
		switch {
		case s == "" || b.HasSound(s):
		case len(b.Sounds) >= sequence.MaxSounds:
			warn("beat %s: sound %q beyond %d dropped", addr, s, sequence.MaxSounds)
		default:
			b.Sounds = append(b.Sounds, s)
		}
	}
	for k, v := range in.Meta {
		b.Meta[k] = v
	}
	return b, true
}

func repairGrounding(joint, grounding, pivot string, warn func(string)) (string, string) {
	if grounding == "" && pivot == "" {
		return "", ""
	}
	if !biomech.IsFoot(joint) {
		warn("grounding on a non-foot joint dropped")
		return "", ""
	}
	side := notation.Side(joint[0])
	if grounding != "" {
		canon, err := notation.Canonical(grounding, side)
		if err != nil {
			warn(fmt.Sprintf("grounding %q dropped", grounding))
			return "", ""
		}
		grounding = canon
	}
	if pivot != "" {
		if _, err := notation.ParsePoint(pivot); err != nil {
			warn(fmt.Sprintf("pivot %q dropped", pivot))
			pivot = ""
		}
	}
	return grounding, pivot
}

// Decode merges data onto a single default bar.
func Decode(data []byte) (*sequence.Sequence, []string, error) {
	return NewDecoder(nil).Decode(data)
}

// ReadFile loads and decodes path.
func ReadFile(path string, d *Decoder) (*sequence.Sequence, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read sequence file: %w", err)
	}
	if d == nil {
		d = NewDecoder(nil)
	}
	return d.Decode(data)
}

func sortedKeys(m map[int][]json.RawMessage) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
