package rehearsal

import (
	"time"

	"github.com/kilosayaw/seqsync-sub000/internal/sequence"
)

// Trace event kinds.
const (
	KindEdit     = "edit"
	KindRejected = "rejected"
	KindBeat     = "beat"
	KindState    = "state"
	KindTap      = "tap"
	KindRotation = "rotation"
)

// TraceEvent is one observable effect of a step. Step is the 1-based index
// of the step during which the event happened.
type TraceEvent struct {
	Step      int      `json:"step"`
	Kind      string   `json:"kind"`
	Op        string   `json:"op,omitempty"`
	Address   string   `json:"address,omitempty"`
	Joint     string   `json:"joint,omitempty"`
	Index     *int     `json:"index,omitempty"`
	ElapsedMS *float64 `json:"elapsed_ms,omitempty"`
	Recording bool     `json:"recording,omitempty"`
	History   int      `json:"history,omitempty"`
	Cursor    *int     `json:"cursor,omitempty"`
	Value     string   `json:"value,omitempty"`
}

// Result is the outcome of a rehearsal.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace lists every event in the order it happened.
	Trace []TraceEvent `json:"trace"`

	// Errors holds assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Sequence is the final sequence.
	Sequence *sequence.Sequence `json:"-"`

	// HistoryLen is the final number of history entries.
	HistoryLen int `json:"history_len"`

	// State is the final transport state.
	State string `json:"state"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records an assertion failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// BeatIndexes returns the index of every beat event in order.
func (r *Result) BeatIndexes() []int {
	out := []int{}
	for _, ev := range r.Trace {
		if ev.Kind == KindBeat && ev.Index != nil {
			out = append(out, *ev.Index)
		}
	}
	return out
}

func intPtr(v int) *int { return &v }

func millis(d time.Duration) *float64 {
	ms := float64(d) / float64(time.Millisecond)
	return &ms
}
