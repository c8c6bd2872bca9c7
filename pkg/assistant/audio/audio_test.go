package audio

import (
	"math"
	"testing"
	"time"
)

func TestStatsSilence(t *testing.T) {
	p := make([]byte, 640)
	peak, rms := Stats(p)
	if peak != 0 || rms != 0 {
		t.Fatalf("silence: peak=%d rms=%f", peak, rms)
	}
}

func TestStatsFullScale(t *testing.T) {
	samples := make([]int16, 320)
	for i := range samples {
		samples[i] = 32767
	}
	peak, rms := Stats(SamplesToBytes(samples))
	if peak != 32767 {
		t.Fatalf("peak=%d, want 32767", peak)
	}
	if math.Abs(rms-1.0) > 0.001 {
		t.Fatalf("rms=%f, want ~1.0", rms)
	}
}

func TestSamplesRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 12345}
	out := BytesToSamples(SamplesToBytes(in))
	if len(out) != len(in) {
		t.Fatalf("length %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("sample %d: got %d, want %d", i, out[i], in[i])
		}
	}
}

func TestPushDropsOldest(t *testing.T) {
	s := NewCaptureStream(CaptureConfig{QueueDepth: 4}, nil)
	for i := 0; i < 5; i++ {
		s.Push(Frame{Samples: []int16{int16(i)}})
	}
	if got := s.Dropped(); got != 1 {
		t.Fatalf("dropped=%d, want 1", got)
	}
	// Frames 1..4 remain, in order.
	for want := int16(1); want <= 4; want++ {
		select {
		case f := <-s.Frames():
			if f.Samples[0] != want {
				t.Fatalf("got frame %d, want %d", f.Samples[0], want)
			}
		default:
			t.Fatalf("queue exhausted before frame %d", want)
		}
	}
	select {
	case f := <-s.Frames():
		t.Fatalf("unexpected extra frame %v", f.Samples)
	default:
	}
}

func TestWAVRoundTrip(t *testing.T) {
	samples := []int16{100, -100, 2000, -2000, 0, 32767}
	wav := EncodeWAV(SamplesToBytes(samples), 16000, 1)
	pcm, rate, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rate != 16000 {
		t.Fatalf("rate=%d, want 16000", rate)
	}
	got := BytesToSamples(pcm)
	if len(got) != len(samples) {
		t.Fatalf("length %d, want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Fatalf("sample %d: got %d, want %d", i, got[i], samples[i])
		}
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("not a wav file, not even close......................")); err == nil {
		t.Fatal("expected error for non-WAV input")
	}
	if _, _, err := DecodeWAV(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestUtteranceSaveWAV(t *testing.T) {
	u := &Utterance{
		Samples:      []int16{1, 2, 3, 4},
		SampleRateHz: 16000,
		Started:      time.Unix(1700000000, 0),
	}
	dir := t.TempDir()
	path, err := u.SaveWAV(dir, "utterance")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	want := dir + "/utterance_1700000000.wav"
	if path != want {
		t.Fatalf("path=%q, want %q", path, want)
	}
}
