package rehearsal

import (
	"fmt"
	"math"
	"strings"

	"github.com/kilosayaw/seqsync-sub000/internal/sequence"
)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(res *Result, assertions []Assertion) []string {
	errs := []string{}
	for i, a := range assertions {
		if err := evaluate(res, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(res *Result, a Assertion) error {
	switch a.Type {
	case AssertBeatCount:
		got := len(res.BeatIndexes())
		if got != *a.Count {
			return mismatch(a.Type, fmt.Sprint(*a.Count), fmt.Sprint(got))
		}
	case AssertBeatEvents:
		got := res.BeatIndexes()
		if fmt.Sprint(got) != fmt.Sprint(a.Indexes) {
			return mismatch(a.Type, fmt.Sprint(a.Indexes), fmt.Sprint(got))
		}
	case AssertHistoryLen:
		if res.HistoryLen != *a.Count {
			return mismatch(a.Type, fmt.Sprint(*a.Count), fmt.Sprint(res.HistoryLen))
		}
	case AssertBPM:
		if math.Abs(res.Sequence.BPM-*a.Number) > 1e-9 {
			return mismatch(a.Type, fmt.Sprint(*a.Number), fmt.Sprint(res.Sequence.BPM))
		}
	case AssertState:
		if res.State != a.Value {
			return mismatch(a.Type, a.Value, res.State)
		}
	case AssertGrounding:
		rec, err := jointAt(res.Sequence, a.At, a.Joint)
		if err != nil {
			return err
		}
		if rec.Grounding != a.Value {
			return mismatch(a.Type, fmt.Sprintf("%s %s = %q", a.At, a.Joint, a.Value), fmt.Sprintf("%q", rec.Grounding))
		}
	case AssertRotation:
		rec, err := jointAt(res.Sequence, a.At, a.Joint)
		if err != nil {
			return err
		}
		if math.Abs(rec.Rotation-*a.Number) > 1e-6 {
			return mismatch(a.Type, fmt.Sprintf("%s %s = %v", a.At, a.Joint, *a.Number), fmt.Sprint(rec.Rotation))
		}
	case AssertSounds:
		beat, err := beatAt(res.Sequence, a.At)
		if err != nil {
			return err
		}
		want := a.Sounds
		if want == nil {
			want = []string{}
		}
		if strings.Join(beat.Sounds, ",") != strings.Join(want, ",") || len(beat.Sounds) != len(want) {
			return mismatch(a.Type, fmt.Sprintf("%s %v", a.At, want), fmt.Sprint(beat.Sounds))
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func mismatch(typ, expected, actual string) error {
	return &AssertionError{Type: typ, Expected: expected, Actual: actual}
}

func beatAt(seq *sequence.Sequence, at string) (*sequence.Beat, error) {
	addr, err := sequence.ParseAddress(at)
	if err != nil {
		return nil, err
	}
	return seq.At(addr)
}

func jointAt(seq *sequence.Sequence, at, joint string) (sequence.JointRecord, error) {
	beat, err := beatAt(seq, at)
	if err != nil {
		return sequence.JointRecord{}, err
	}
	return beat.Joints[joint], nil
}
