// Package detect holds the small stateful classifiers the control loop
// consults: silence tracking for endpointing, one-shot speech detection for
// barge-in, and the wake-word adapter.
package detect

import (
	"sync"
	"time"

	"github.com/earshot-ai/earshot/pkg/assistant/audio"
)

// SilenceTracker decides when the speaker has stopped talking. Feed it every
// frame; SilenceElapsed reports whether no frame has crossed the energy
// threshold for at least the given duration.
type SilenceTracker struct {
	threshold float64
	lastLoud  time.Time
	started   time.Time
	now       func() time.Time
}

func NewSilenceTracker(threshold float64) *SilenceTracker {
	return newSilenceTrackerAt(threshold, time.Now)
}

func newSilenceTrackerAt(threshold float64, now func() time.Time) *SilenceTracker {
	t := now()
	return &SilenceTracker{threshold: threshold, lastLoud: t, started: t, now: now}
}

// Observe records one frame and returns its RMS energy.
func (s *SilenceTracker) Observe(f audio.Frame) float64 {
	rms := audio.RMS(f.Samples)
	if rms > s.threshold {
		s.lastLoud = s.now()
	}
	return rms
}

// SilenceElapsed is true when every frame in the trailing window of length d
// stayed at or below the threshold.
func (s *SilenceTracker) SilenceElapsed(d time.Duration) bool {
	return s.now().Sub(s.lastLoud) >= d
}

// SpeechDetector watches playback-time audio for the user cutting in. It
// keeps a pre-roll ring of recent frames so that, once speech is detected,
// recording can resume without losing the onset. Detection is one-shot: the
// Detected channel closes at the first frame above threshold and the
// detector must be discarded afterwards.
type SpeechDetector struct {
	threshold float64
	preroll   int

	mu       sync.Mutex
	ring     []audio.Frame
	after    []audio.Frame
	latched  bool
	detected chan struct{}
}

func NewSpeechDetector(threshold float64, prerollFrames int) *SpeechDetector {
	if prerollFrames <= 0 {
		prerollFrames = 8
	}
	return &SpeechDetector{
		threshold: threshold,
		preroll:   prerollFrames,
		detected:  make(chan struct{}),
	}
}

// Observe feeds one frame. Before the latch it maintains the pre-roll ring;
// after the latch every frame is kept for the resumed recording.
func (d *SpeechDetector) Observe(f audio.Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.latched {
		d.after = append(d.after, f)
		return
	}
	d.ring = append(d.ring, f)
	if len(d.ring) > d.preroll {
		d.ring = d.ring[1:]
	}
	if audio.RMS(f.Samples) > d.threshold {
		d.latched = true
		close(d.detected)
	}
}

// Detected is closed once, at the first above-threshold frame.
func (d *SpeechDetector) Detected() <-chan struct{} { return d.detected }

// Buffer returns pre-roll plus everything observed since the latch, in
// capture order. Empty until Detected fires.
func (d *SpeechDetector) Buffer() []audio.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.latched {
		return nil
	}
	out := make([]audio.Frame, 0, len(d.ring)+len(d.after))
	out = append(out, d.ring...)
	out = append(out, d.after...)
	return out
}
