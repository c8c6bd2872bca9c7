// Package record turns the live frame stream into finished utterances.
package record

import (
	"context"
	"time"

	"github.com/earshot-ai/earshot/pkg/assistant/audio"
	"github.com/earshot-ai/earshot/pkg/assistant/detect"
)

// Options controls a single record-until-silence run.
type Options struct {
	SampleRateHz int
	// Threshold is the RMS level above which a frame counts as speech.
	Threshold float64
	// Silence is how long the signal must stay below Threshold to end the
	// recording.
	Silence time.Duration
	// MaxDuration caps the recording regardless of activity.
	MaxDuration time.Duration
	// Prefix frames are prepended before any live frame, used to resume a
	// recording from a detector's pre-roll without a gap.
	Prefix []audio.Frame
	// OnLevel, when set, receives a 0..1 loudness value per frame for UI
	// feedback. The value is RMS boosted 5x and clamped, which tracks
	// perceived speech volume better than raw RMS.
	OnLevel func(float64)
}

func (o *Options) fillDefaults() {
	if o.SampleRateHz == 0 {
		o.SampleRateHz = 16000
	}
	if o.Threshold == 0 {
		o.Threshold = 0.01
	}
	if o.Silence == 0 {
		o.Silence = 1500 * time.Millisecond
	}
	if o.MaxDuration == 0 {
		o.MaxDuration = 30 * time.Second
	}
}

// UntilSilence records from src until the signal has been quiet for
// opts.Silence, the recording hits opts.MaxDuration, or ctx ends. When
// nothing at all was captured it returns (nil, nil): callers never see a
// zero-length utterance.
func UntilSilence(ctx context.Context, src audio.Source, opts Options) (*audio.Utterance, error) {
	opts.fillDefaults()

	started := time.Now()
	deadline := started.Add(opts.MaxDuration)
	tracker := detect.NewSilenceTracker(opts.Threshold)

	var samples []int16
	for _, f := range opts.Prefix {
		samples = append(samples, f.Samples...)
		tracker.Observe(f)
	}

	for {
		if err := ctx.Err(); err != nil {
			break
		}
		if time.Now().After(deadline) {
			break
		}
		f, ok := audio.NextFrame(ctx, src, 100*time.Millisecond)
		if ok {
			samples = append(samples, f.Samples...)
			rms := tracker.Observe(f)
			if opts.OnLevel != nil {
				opts.OnLevel(clampLevel(rms * 5))
			}
		}
		if tracker.SilenceElapsed(opts.Silence) {
			break
		}
	}

	if len(samples) == 0 {
		return nil, nil
	}
	return &audio.Utterance{
		Samples:      samples,
		SampleRateHz: opts.SampleRateHz,
		Started:      started,
		Duration:     time.Duration(len(samples)) * time.Second / time.Duration(opts.SampleRateHz),
	}, nil
}

func clampLevel(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
