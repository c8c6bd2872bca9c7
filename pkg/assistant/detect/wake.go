package detect

import (
	"sync"
	"time"

	"github.com/earshot-ai/earshot/pkg/assistant/audio"
)

// WakeClassifier scores a window of recent audio for the wake phrase.
// Implementations wrap whatever model the deployment uses; the listener
// treats them as a black box.
type WakeClassifier interface {
	Score(samples []int16) float64
}

// WakeListener buffers capture frames and polls the classifier at a fixed
// cadence, so an expensive model runs a few times per second rather than per
// frame.
type WakeListener struct {
	classifier WakeClassifier
	threshold  float64
	interval   time.Duration
	windowLen  int

	mu       sync.Mutex
	window   []int16
	lastPoll time.Time
	now      func() time.Time
}

// NewWakeListener polls classifier every interval over a trailing window of
// windowSamples samples, firing when the score exceeds threshold.
func NewWakeListener(classifier WakeClassifier, threshold float64, interval time.Duration, windowSamples int) *WakeListener {
	if windowSamples <= 0 {
		windowSamples = 32000 // 2s at 16kHz
	}
	return &WakeListener{
		classifier: classifier,
		threshold:  threshold,
		interval:   interval,
		windowLen:  windowSamples,
		now:        time.Now,
	}
}

// Observe appends a frame to the window and, when a poll is due, scores the
// window. Returns true when the wake phrase was heard.
func (w *WakeListener) Observe(f audio.Frame) bool {
	w.mu.Lock()
	w.window = append(w.window, f.Samples...)
	if over := len(w.window) - w.windowLen; over > 0 {
		w.window = w.window[over:]
	}
	now := w.now()
	if now.Sub(w.lastPoll) < w.interval {
		w.mu.Unlock()
		return false
	}
	w.lastPoll = now
	window := make([]int16, len(w.window))
	copy(window, w.window)
	w.mu.Unlock()

	return w.classifier.Score(window) > w.threshold
}

// Reset clears the trailing window, used after a turn completes so stale
// audio cannot re-trigger.
func (w *WakeListener) Reset() {
	w.mu.Lock()
	w.window = w.window[:0]
	w.mu.Unlock()
}

// EnergyClassifier is the model-free fallback: it scores sustained speech
// energy, effectively turning the wake stage into voice activation for
// deployments without a wake model.
type EnergyClassifier struct {
	Threshold float64
}

func (e EnergyClassifier) Score(samples []int16) float64 {
	th := e.Threshold
	if th <= 0 {
		th = 0.01
	}
	rms := audio.RMS(samples)
	return rms / th / 2
}
