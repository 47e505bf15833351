// Package media reads what the sequencer needs from an audio file: its
// duration, and the title and BPM it may be tagged with. Audio payloads are
// never kept; a sequence only stores the file name.
package media

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/tcolgate/mp3"

	"github.com/kilosayaw/seqsync-sub000/internal/sequence"
)

// Format is a supported container.
type Format string

const (
	WAV  Format = "wav"
	FLAC Format = "flac"
	MP3  Format = "mp3"
)

// ErrUnsupportedFormat is returned for files whose extension is not a
// supported container.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// FormatOf picks the container from the file extension.
func FormatOf(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		return WAV, nil
	case ".flac":
		return FLAC, nil
	case ".mp3":
		return MP3, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Info is the probe result. BPM is 0 when the file carries no usable tempo
// tag.
type Info struct {
	Path       string        `json:"path"`
	Format     Format        `json:"format"`
	Duration   time.Duration `json:"duration"`
	Title      string        `json:"title"`
	Artist     string        `json:"artist,omitempty"`
	BPM        float64       `json:"bpm,omitempty"`
	SampleRate int           `json:"sampleRate,omitempty"`
	Channels   int           `json:"channels,omitempty"`
}

// Prober reads audio files.
type Prober struct {
	logger *slog.Logger
}

// NewProber creates a prober. A nil logger uses slog.Default().
func NewProber(logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{logger: logger}
}

// Probe reads duration and tags. A missing or unreadable tag block is not an
// error: the title falls back to the file name.
func (p *Prober) Probe(path string) (Info, error) {
	format, err := FormatOf(path)
	if err != nil {
		return Info{}, err
	}
	info := Info{
		Path:   path,
		Format: format,
		Title:  strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
	}

	switch format {
	case WAV:
		err = probeWAV(path, &info)
	case FLAC:
		err = probeFLAC(path, &info)
	case MP3:
		err = probeMP3(path, &info)
	}
	if err != nil {
		return Info{}, fmt.Errorf("probe %s: %w", filepath.Base(path), err)
	}

	if err := readTags(path, &info); err != nil {
		p.logger.Debug("no usable tags", "path", path, "error", err)
	}
	p.logger.Debug("probed media", "path", path, "format", format, "duration", info.Duration, "bpm", info.BPM)
	return info, nil
}

// Probe runs a default prober.
func Probe(path string) (Info, error) {
	return NewProber(nil).Probe(path)
}

func probeWAV(path string, info *Info) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return fmt.Errorf("invalid wav file")
	}
	if dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return fmt.Errorf("invalid wav header")
	}
	d, err := dec.Duration()
	if err != nil {
		return fmt.Errorf("read wav duration: %w", err)
	}
	info.Duration = d
	info.SampleRate = int(dec.SampleRate)
	info.Channels = int(dec.NumChans)
	return nil
}

// probeFLAC reads STREAMINFO only; frames are never decoded.
func probeFLAC(path string, info *Info) error {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return err
	}
	defer stream.Close()

	si := stream.Info
	if si.NSamples == 0 || si.SampleRate == 0 {
		return fmt.Errorf("flac stream missing sample info")
	}
	info.Duration = time.Duration(float64(si.NSamples) / float64(si.SampleRate) * float64(time.Second))
	info.SampleRate = int(si.SampleRate)
	info.Channels = int(si.NChannels)
	return nil
}

// probeMP3 sums frame durations. A stream that breaks mid-way keeps what was
// decoded; a stream without a single frame is an error.
func probeMP3(path string, info *Info) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := mp3.NewDecoder(f)
	var (
		total   time.Duration
		skipped int
		frames  int
	)
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if errors.Is(err, io.EOF) || frames > 0 {
				break
			}
			return fmt.Errorf("decode mp3 frame: %w", err)
		}
		total += fr.Duration()
		frames++
	}
	if frames == 0 {
		return fmt.Errorf("no mp3 frames")
	}
	info.Duration = total
	return nil
}

func readTags(path string, info *Info) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return err
	}
	if title := strings.TrimSpace(m.Title()); title != "" {
		info.Title = title
	}
	info.Artist = strings.TrimSpace(m.Artist())
	info.BPM = TaggedBPM(m.Raw())
	return nil
}

// bpmKeys are the raw tag names carrying tempo: ID3v2.3/2.4, ID3v2.2,
// Vorbis comments and MP4 atoms.
var bpmKeys = []string{"TBPM", "TBP", "BPM", "TMPO"}

// TaggedBPM extracts a tempo from raw tag values. Keys match case-insensitively;
// values outside the sequencer's BPM range are ignored.
func TaggedBPM(raw map[string]interface{}) float64 {
	for _, want := range bpmKeys {
		for k, v := range raw {
			if !strings.EqualFold(k, want) {
				continue
			}
			if bpm, ok := parseBPM(v); ok {
				return bpm
			}
		}
	}
	return 0
}

func parseBPM(v interface{}) (float64, bool) {
	var bpm float64
	switch x := v.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		bpm = f
	case int:
		bpm = float64(x)
	case float64:
		bpm = x
	default:
		return 0, false
	}
	if math.IsNaN(bpm) || bpm < sequence.MinBPM || bpm > sequence.MaxBPM {
		return 0, false
	}
	return bpm, true
}

// BarsFor returns how many bars cover duration at bpm, where one grid step
// is one beat. The result is at least one bar.
func BarsFor(duration time.Duration, bpm float64, stepsPerBar int) int {
	if duration <= 0 || bpm <= 0 || stepsPerBar <= 0 || math.IsNaN(bpm) {
		return 1
	}
	beats := duration.Seconds() * bpm / 60
	bars := int(math.Ceil(beats/float64(stepsPerBar) - 1e-9))
	if bars < 1 {
		return 1
	}
	return bars
}

// NewSequence sizes an empty sequence for the probed file. The tagged BPM
// wins over fallbackBPM; the audio file name is recorded on the sequence.
func (i Info) NewSequence(fallbackBPM float64, stepsPerBar int) (*sequence.Sequence, error) {
	bpm := i.BPM
	if bpm == 0 {
		bpm = fallbackBPM
	}
	seq, err := sequence.NewSequence(BarsFor(i.Duration, bpm, stepsPerBar), stepsPerBar, bpm)
	if err != nil {
		return nil, err
	}
	seq.AudioFileName = filepath.Base(i.Path)
	return seq, nil
}
