package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
)

// Source is the frame producer consumed by the wake listener and the
// recorder. Frames() yields capture-order frames; when the consumer falls
// behind the internal queue bound, the oldest unread frame is discarded so
// the capture callback never blocks.
type Source interface {
	Frames() <-chan Frame
	Dropped() uint64
}

// CaptureConfig shapes the microphone stream.
type CaptureConfig struct {
	SampleRateHz int
	Channels     int
	FrameMS      int
	QueueDepth   int
}

func (c *CaptureConfig) fillDefaults() {
	if c.SampleRateHz == 0 {
		c.SampleRateHz = 16000
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
	if c.FrameMS == 0 {
		c.FrameMS = 80
	}
	if c.QueueDepth == 0 {
		c.QueueDepth = 64
	}
}

// CaptureStream reads the default capture device through malgo and exposes
// frames over a bounded drop-oldest channel.
type CaptureStream struct {
	cfg    CaptureConfig
	logger *slog.Logger

	frames  chan Frame
	dropped atomic.Uint64

	mu      sync.Mutex
	actx    *malgo.AllocatedContext
	device  *malgo.Device
	pending []int16
	open    bool
}

func NewCaptureStream(cfg CaptureConfig, logger *slog.Logger) *CaptureStream {
	cfg.fillDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &CaptureStream{
		cfg:    cfg,
		logger: logger,
		frames: make(chan Frame, cfg.QueueDepth),
	}
}

// Open initializes the capture device and starts streaming. It is an error
// to call Open twice.
func (s *CaptureStream) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return fmt.Errorf("capture stream already open")
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(s.cfg.Channels)
	deviceConfig.SampleRate = uint32(s.cfg.SampleRateHz)
	deviceConfig.PeriodSizeInMilliseconds = uint32(s.cfg.FrameMS)

	frameSamples := s.cfg.SampleRateHz * s.cfg.FrameMS / 1000

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			s.onCapture(in, frameSamples)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		return fmt.Errorf("start capture device: %w", err)
	}

	s.actx = mctx
	s.device = device
	s.open = true
	s.logger.Info("capture stream open",
		"sample_rate_hz", s.cfg.SampleRateHz,
		"frame_ms", s.cfg.FrameMS,
		"queue_depth", s.cfg.QueueDepth)
	return nil
}

// onCapture runs on the audio thread. It re-slices the raw buffer into
// fixed-size frames and pushes each without ever blocking.
func (s *CaptureStream) onCapture(in []byte, frameSamples int) {
	s.mu.Lock()
	s.pending = append(s.pending, BytesToSamples(in)...)
	var ready [][]int16
	for len(s.pending) >= frameSamples {
		frame := make([]int16, frameSamples)
		copy(frame, s.pending[:frameSamples])
		s.pending = s.pending[frameSamples:]
		ready = append(ready, frame)
	}
	s.mu.Unlock()

	now := time.Now()
	for _, samples := range ready {
		s.Push(Frame{Samples: samples, Captured: now})
	}
}

// Push enqueues a frame, discarding the oldest unread frame when the queue
// is full. Exposed so tests and synthetic sources can feed the stream.
func (s *CaptureStream) Push(f Frame) {
	for {
		select {
		case s.frames <- f:
			return
		default:
		}
		select {
		case <-s.frames:
			s.dropped.Add(1)
		default:
		}
	}
}

func (s *CaptureStream) Frames() <-chan Frame { return s.frames }

// Dropped reports how many frames have been discarded due to backpressure.
func (s *CaptureStream) Dropped() uint64 { return s.dropped.Load() }

func (s *CaptureStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	s.open = false
	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	if s.actx != nil {
		_ = s.actx.Uninit()
		s.actx.Free()
		s.actx = nil
	}
	if n := s.dropped.Load(); n > 0 {
		s.logger.Warn("capture stream closed with dropped frames", "dropped", n)
	}
	return nil
}

// NextFrame pulls one frame from src with a timeout, returning false when
// nothing arrived in time or ctx ended.
func NextFrame(ctx context.Context, src Source, timeout time.Duration) (Frame, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case f, ok := <-src.Frames():
		return f, ok
	case <-t.C:
		return Frame{}, false
	case <-ctx.Done():
		return Frame{}, false
	}
}
