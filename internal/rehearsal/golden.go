package rehearsal

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot is the golden-file form of a run.
type TraceSnapshot struct {
	Scenario   string       `json:"scenario"`
	Pass       bool         `json:"pass"`
	HistoryLen int          `json:"history_len"`
	State      string       `json:"state"`
	Trace      []TraceEvent `json:"trace"`
}

// Snapshot renders a result as indented JSON with a trailing newline.
func Snapshot(name string, res *Result) ([]byte, error) {
	data, err := json.MarshalIndent(TraceSnapshot{
		Scenario:   name,
		Pass:       res.Pass,
		HistoryLen: res.HistoryLen,
		State:      res.State,
		Trace:      res.Trace,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden runs a scenario and compares its trace with
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/rehearsal -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	res, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, res); err != nil {
		return nil, err
	}
	return res, nil
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, name string, res *Result) error {
	t.Helper()

	data, err := Snapshot(name, res)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
