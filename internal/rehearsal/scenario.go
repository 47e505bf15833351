package rehearsal

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilosayaw/seqsync-sub000/internal/sequence"
)

// Scenario scripts one rehearsal session against a fresh store, playback
// clock and rotation controller.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description"`

	// Sequence is the starting grid.
	Sequence Setup `yaml:"sequence"`

	// Steps run in order. Each step sets exactly one action.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Setup shapes the starting sequence and the simulated frame clock.
type Setup struct {
	Bars        int     `yaml:"bars"`
	StepsPerBar int     `yaml:"steps_per_bar"`
	BPM         float64 `yaml:"bpm"`
	GridOffset  float64 `yaml:"grid_offset,omitempty"`
	Loop        bool    `yaml:"loop,omitempty"`

	// FrameMS is the frame interval of the manual scheduler. Defaults to 10.
	FrameMS int `yaml:"frame_ms,omitempty"`
}

// Step is one scripted action.
type Step struct {
	Edit   *EditStep  `yaml:"edit,omitempty"`
	Sound  *SoundStep `yaml:"sound,omitempty"`
	Resize *int       `yaml:"resize,omitempty"`
	BPM    *float64   `yaml:"bpm,omitempty"`
	Undo   *int       `yaml:"undo,omitempty"`
	Redo   *int       `yaml:"redo,omitempty"`

	Play          bool `yaml:"play,omitempty"`
	Record        bool `yaml:"record,omitempty"`
	StopRecording bool `yaml:"stop_recording,omitempty"`
	Stop          bool `yaml:"stop,omitempty"`

	// Frames delivers n regular frames.
	Frames *int `yaml:"frames,omitempty"`

	// Advance delivers a single frame after a gap of n milliseconds.
	Advance *int `yaml:"advance,omitempty"`

	// Pose sets the live pose returned to the recorder from now on.
	Pose *PoseStep `yaml:"pose,omitempty"`

	// Tap waits n milliseconds (delivering one frame) and taps the tempo.
	Tap *int `yaml:"tap,omitempty"`

	Drag *DragStep `yaml:"drag,omitempty"`
}

// EditStep sets fields of one joint.
type EditStep struct {
	At          string    `yaml:"at"`
	Joint       string    `yaml:"joint"`
	Vector      []float64 `yaml:"vector,omitempty"`
	Score       *float64  `yaml:"score,omitempty"`
	Orientation *string   `yaml:"orientation,omitempty"`
	Role        *string   `yaml:"role,omitempty"`
	Rotation    *float64  `yaml:"rotation,omitempty"`
	Grounding   *string   `yaml:"grounding,omitempty"`
	Pivot       *string   `yaml:"pivot,omitempty"`
}

// SoundStep cues or removes one sound.
type SoundStep struct {
	At     string `yaml:"at"`
	Add    string `yaml:"add,omitempty"`
	Remove string `yaml:"remove,omitempty"`
}

// PoseStep is a live pose. Joint vectors are [x, y, z].
type PoseStep struct {
	Joints      map[string]PoseJoint `yaml:"joints"`
	Grounding   map[string]string    `yaml:"grounding,omitempty"`
	FaceVisible bool                 `yaml:"face_visible,omitempty"`
}

type PoseJoint struct {
	Vector []float64 `yaml:"vector"`
	Score  float64   `yaml:"score"`
}

// DragStep drives the rotation controller around the origin. The angle it
// settles on is written to the joint's rotation.
type DragStep struct {
	At     string       `yaml:"at"`
	Joint  string       `yaml:"joint"`
	Points [][]float64 `yaml:"points"`
}

// Assertion checks the trace or the final sequence.
type Assertion struct {
	Type string `yaml:"type"`

	At    string `yaml:"at,omitempty"`
	Joint string `yaml:"joint,omitempty"`

	Count   *int     `yaml:"count,omitempty"`
	Indexes []int    `yaml:"indexes,omitempty"`
	Value   string   `yaml:"value,omitempty"`
	Number  *float64 `yaml:"number,omitempty"`
	Sounds  []string `yaml:"sounds,omitempty"`
}

// Assertion types.
const (
	AssertBeatCount  = "beat_count"
	AssertBeatEvents = "beat_events"
	AssertGrounding  = "grounding"
	AssertHistoryLen = "history_len"
	AssertBPM        = "bpm"
	AssertSounds     = "sounds"
	AssertRotation   = "rotation"
	AssertState      = "state"
)

// LoadScenario reads a scenario file. Unknown fields are rejected so typos
// fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Sequence.Bars < 1 {
		return fmt.Errorf("sequence.bars must be at least 1")
	}
	if s.Sequence.StepsPerBar < 1 {
		return fmt.Errorf("sequence.steps_per_bar must be at least 1")
	}
	if s.Sequence.BPM < sequence.MinBPM || s.Sequence.BPM > sequence.MaxBPM {
		return fmt.Errorf("sequence.bpm out of range")
	}
	if s.Sequence.FrameMS < 0 {
		return fmt.Errorf("sequence.frame_ms must not be negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(s Step) error {
	set := 0
	for _, present := range []bool{
		s.Edit != nil, s.Sound != nil, s.Resize != nil, s.BPM != nil,
		s.Undo != nil, s.Redo != nil, s.Play, s.Record, s.StopRecording,
		s.Stop, s.Frames != nil, s.Advance != nil, s.Pose != nil,
		s.Tap != nil, s.Drag != nil,
	} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one action is required, got %d", set)
	}

	switch {
	case s.Edit != nil:
		if s.Edit.At == "" || s.Edit.Joint == "" {
			return fmt.Errorf("edit: at and joint are required")
		}
		if s.Edit.Vector != nil && len(s.Edit.Vector) != 3 {
			return fmt.Errorf("edit: vector must have 3 components")
		}
	case s.Sound != nil:
		if s.Sound.At == "" {
			return fmt.Errorf("sound: at is required")
		}
		if (s.Sound.Add == "") == (s.Sound.Remove == "") {
			return fmt.Errorf("sound: exactly one of add or remove is required")
		}
	case s.Undo != nil && *s.Undo < 1, s.Redo != nil && *s.Redo < 1:
		return fmt.Errorf("undo/redo count must be at least 1")
	case s.Frames != nil && *s.Frames < 1:
		return fmt.Errorf("frames must be at least 1")
	case s.Advance != nil && *s.Advance < 0, s.Tap != nil && *s.Tap < 0:
		return fmt.Errorf("advance/tap gap must not be negative")
	case s.Pose != nil:
		for id, j := range s.Pose.Joints {
			if len(j.Vector) != 3 {
				return fmt.Errorf("pose: joint %s vector must have 3 components", id)
			}
		}
	case s.Drag != nil:
		if s.Drag.At == "" || s.Drag.Joint == "" {
			return fmt.Errorf("drag: at and joint are required")
		}
		if len(s.Drag.Points) < 1 {
			return fmt.Errorf("drag: at least one point is required")
		}
		for _, p := range s.Drag.Points {
			if len(p) != 2 {
				return fmt.Errorf("drag: points must be [x, y]")
			}
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertBeatCount, AssertHistoryLen:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("count is required for %s", a.Type)
		}
	case AssertBeatEvents:
		if a.Indexes == nil {
			return fmt.Errorf("indexes is required for beat_events")
		}
	case AssertGrounding:
		if a.At == "" || a.Joint == "" {
			return fmt.Errorf("at and joint are required for grounding")
		}
	case AssertBPM:
		if a.Number == nil {
			return fmt.Errorf("number is required for bpm")
		}
	case AssertSounds:
		if a.At == "" {
			return fmt.Errorf("at is required for sounds")
		}
	case AssertRotation:
		if a.At == "" || a.Joint == "" || a.Number == nil {
			return fmt.Errorf("at, joint and number are required for rotation")
		}
	case AssertState:
		if a.Value == "" {
			return fmt.Errorf("value is required for state")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
