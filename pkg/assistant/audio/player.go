package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Player turns PCM16 into sound. Play blocks until the clip finishes, the
// context ends, or Stop is called from another goroutine (barge-in).
type Player interface {
	Play(ctx context.Context, pcm []byte, sampleRateHz int) error
	Stop()
	Close() error
}

// SpeakerPlayer drives the default output device through oto. The oto
// context is created once per process at a fixed rate; clips at other rates
// are resampled naively before playback.
type SpeakerPlayer struct {
	logger *slog.Logger

	mu      sync.Mutex
	otoCtx  *oto.Context
	rate    int
	current *oto.Player
	stopped bool
}

func NewSpeakerPlayer(sampleRateHz int, logger *slog.Logger) (*SpeakerPlayer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if sampleRateHz <= 0 {
		sampleRateHz = 16000
	}
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRateHz,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready
	return &SpeakerPlayer{logger: logger, otoCtx: otoCtx, rate: sampleRateHz}, nil
}

func (p *SpeakerPlayer) Play(ctx context.Context, pcm []byte, sampleRateHz int) error {
	if sampleRateHz != p.rate && sampleRateHz > 0 {
		pcm = resamplePCM16(pcm, sampleRateHz, p.rate)
	}

	p.mu.Lock()
	p.stopped = false
	player := p.otoCtx.NewPlayer(bytes.NewReader(pcm))
	p.current = player
	p.mu.Unlock()

	player.Play()
	defer func() {
		p.mu.Lock()
		p.current = nil
		p.mu.Unlock()
		player.Close()
	}()

	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-tick.C:
		}
		p.mu.Lock()
		stopped := p.stopped
		p.mu.Unlock()
		if stopped {
			return nil
		}
		if !player.IsPlaying() && player.BufferedSize() == 0 {
			return nil
		}
	}
}

// Stop halts the in-flight clip immediately. Safe to call when idle.
func (p *SpeakerPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	if p.current != nil {
		p.current.Pause()
	}
}

func (p *SpeakerPlayer) Close() error {
	p.Stop()
	return nil
}

// resamplePCM16 is nearest-sample rate conversion; synthesis output is close
// enough to the device rate that quality is acceptable for speech.
func resamplePCM16(pcm []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 {
		return pcm
	}
	in := BytesToSamples(pcm)
	outLen := int(int64(len(in)) * int64(to) / int64(from))
	out := make([]int16, outLen)
	for i := range out {
		j := int(int64(i) * int64(from) / int64(to))
		if j >= len(in) {
			j = len(in) - 1
		}
		out[i] = in[j]
	}
	return SamplesToBytes(out)
}

// discardPlayer is a Player that swallows audio; used when the host has no
// output device and in tests.
type discardPlayer struct{}

func NewDiscardPlayer() Player { return discardPlayer{} }

func (discardPlayer) Play(ctx context.Context, pcm []byte, sampleRateHz int) error {
	if sampleRateHz <= 0 {
		sampleRateHz = 16000
	}
	d := time.Duration(len(pcm)/2) * time.Second / time.Duration(sampleRateHz)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (discardPlayer) Stop()        {}
func (discardPlayer) Close() error { return nil }
