package record

import (
	"context"
	"testing"
	"time"

	"github.com/earshot-ai/earshot/pkg/assistant/audio"
)

type fakeSource struct {
	ch chan audio.Frame
}

func newFakeSource(frames ...audio.Frame) *fakeSource {
	ch := make(chan audio.Frame, len(frames)+1)
	for _, f := range frames {
		ch <- f
	}
	return &fakeSource{ch: ch}
}

func (f *fakeSource) Frames() <-chan audio.Frame { return f.ch }
func (f *fakeSource) Dropped() uint64            { return 0 }

func loud(n int) audio.Frame {
	s := make([]int16, n)
	for i := range s {
		s[i] = 8000
	}
	return audio.Frame{Samples: s, Captured: time.Now()}
}

func quiet(n int) audio.Frame {
	return audio.Frame{Samples: make([]int16, n), Captured: time.Now()}
}

func TestUntilSilenceStopsAfterQuiet(t *testing.T) {
	src := newFakeSource(loud(160), loud(160), quiet(160))

	u, err := UntilSilence(context.Background(), src, Options{
		Threshold:   0.01,
		Silence:     150 * time.Millisecond,
		MaxDuration: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if u == nil {
		t.Fatal("expected an utterance")
	}
	if len(u.Samples) != 480 {
		t.Fatalf("got %d samples, want 480", len(u.Samples))
	}
}

func TestUntilSilenceEmptyStreamReturnsNil(t *testing.T) {
	src := &fakeSource{ch: make(chan audio.Frame)}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	u, err := UntilSilence(ctx, src, Options{
		Silence:     50 * time.Millisecond,
		MaxDuration: time.Second,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if u != nil {
		t.Fatalf("expected nil utterance, got %d samples", len(u.Samples))
	}
}

func TestUntilSilencePrefixComesFirst(t *testing.T) {
	prefix := []audio.Frame{{Samples: []int16{42, 42}}}
	src := newFakeSource(quiet(160))

	u, err := UntilSilence(context.Background(), src, Options{
		Prefix:      prefix,
		Silence:     100 * time.Millisecond,
		MaxDuration: time.Second,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if u == nil {
		t.Fatal("expected an utterance")
	}
	if u.Samples[0] != 42 || u.Samples[1] != 42 {
		t.Fatalf("prefix samples not first: %v", u.Samples[:2])
	}
}

func TestUntilSilenceReportsLevels(t *testing.T) {
	src := newFakeSource(loud(160), quiet(160))

	var levels []float64
	_, err := UntilSilence(context.Background(), src, Options{
		Threshold:   0.01,
		Silence:     100 * time.Millisecond,
		MaxDuration: time.Second,
		OnLevel:     func(v float64) { levels = append(levels, v) },
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(levels) < 2 {
		t.Fatalf("got %d level callbacks, want >= 2", len(levels))
	}
	for _, v := range levels {
		if v < 0 || v > 1 {
			t.Fatalf("level %f out of [0,1]", v)
		}
	}
}

func TestUntilSilenceHonorsMaxDuration(t *testing.T) {
	src := &fakeSource{ch: make(chan audio.Frame, 64)}
	go func() {
		for i := 0; i < 200; i++ {
			src.ch <- loud(160)
			time.Sleep(5 * time.Millisecond)
		}
	}()

	start := time.Now()
	u, err := UntilSilence(context.Background(), src, Options{
		Threshold:   0.01,
		Silence:     10 * time.Second,
		MaxDuration: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if u == nil {
		t.Fatal("expected an utterance")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("recording ran %v past the cap", elapsed)
	}
}
