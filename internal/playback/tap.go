package playback

import "time"

const (
	TapWindow = 4
	TapReset  = 3000 * time.Millisecond
	TapMinBPM = 40.0
	TapMaxBPM = 240.0
)

// TapTempo estimates BPM from manual taps.
type TapTempo struct {
	taps []time.Duration
}

// Tap records a tap at monotonic time ts and returns the estimated BPM. ok
// is false until two taps are in the window, or when the estimate falls
// outside [TapMinBPM, TapMaxBPM]. A gap longer than TapReset, or a
// timestamp going backwards, starts a new window.
func (t *TapTempo) Tap(ts time.Duration) (bpm float64, ok bool) {
	if n := len(t.taps); n > 0 {
		gap := ts - t.taps[n-1]
		if gap > TapReset || gap < 0 {
			t.taps = t.taps[:0]
		}
	}
	t.taps = append(t.taps, ts)
	if len(t.taps) > TapWindow {
		t.taps = append(t.taps[:0], t.taps[len(t.taps)-TapWindow:]...)
	}
	if len(t.taps) < 2 {
		return 0, false
	}

	mean := (t.taps[len(t.taps)-1] - t.taps[0]) / time.Duration(len(t.taps)-1)
	if mean <= 0 {
		return 0, false
	}
	bpm = float64(time.Minute) / float64(mean)
	if bpm < TapMinBPM || bpm > TapMaxBPM {
		return 0, false
	}
	return bpm, true
}

// Len returns the number of taps in the window.
func (t *TapTempo) Len() int { return len(t.taps) }

// Reset clears the window.
func (t *TapTempo) Reset() { t.taps = t.taps[:0] }

// Tap feeds a tap at the scheduler's current time and, when the estimate
// is accepted, applies it to the sequence. The detector rebases on the
// next tick.
func (c *Clock) Tap(t *TapTempo) (float64, bool) {
	bpm, ok := t.Tap(c.sched.Now())
	if !ok {
		return 0, false
	}
	if _, err := c.store.SetBPM(bpm); err != nil {
		c.logger.Warn("tap tempo rejected", "bpm", bpm, "error", err)
		return 0, false
	}
	return bpm, true
}
